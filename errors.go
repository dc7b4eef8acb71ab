package x402

// Closed taxonomy of invalidReason / errorReason values. The protocol uses
// these strings literally on the wire; emit them unchanged.
const (
	ReasonInsufficientFunds       = "insufficient_funds"
	ReasonUnsupportedScheme       = "unsupported_scheme"
	ReasonNetworkMismatch         = "network_mismatch"
	ReasonMissingEIP712Domain     = "missing_eip712_domain"
	ReasonInvalidSignature        = "invalid_exact_evm_payload_signature"
	ReasonUndeployedSmartWallet   = "invalid_exact_evm_payload_undeployed_smart_wallet"
	ReasonRecipientMismatch       = "invalid_exact_evm_payload_recipient_mismatch"
	ReasonAuthValidBefore         = "invalid_exact_evm_payload_authorization_valid_before"
	ReasonAuthValidAfter          = "invalid_exact_evm_payload_authorization_valid_after"
	ReasonAuthValue               = "invalid_exact_evm_payload_authorization_value"
	ReasonInvalidScheme           = "invalid_scheme"
	ReasonInvalidTransactionState = "invalid_transaction_state"
	ReasonInvalidPayload          = "invalid_payload"
	ReasonInvalidNetwork          = "invalid_network"
	ReasonInvalidX402Version      = "invalid_x402_version"
	ReasonPaymentExpired          = "payment_expired"
	ReasonUnexpectedVerifyError   = "unexpected_verify_error"
	ReasonUnexpectedSettleError   = "unexpected_settle_error"

	// Emitted when the facilitator contract reports a replayed authorization
	// nonce during settlement.
	ReasonNonceUsed = "nonce_used"
)
