package evm

const (
	// Scheme identifier
	SchemeExact = "exact"

	// FacilitatorContractAddress is the facilitator transfer contract used for
	// tokens without EIP-3009 support and for contract-signed transfers.
	// Same address on every supported chain via CREATE2 deployment.
	FacilitatorContractAddress = "0x555e3311a9893c9B17444C1Ff0d88192a57Ef13e"

	// EIP-712 domain of the facilitator contract
	FacilitatorDomainName    = "Facilitator"
	FacilitatorDomainVersion = "1"

	// Function names
	FunctionTransferWithAuthorization      = "transferWithAuthorization"
	FunctionTokenTransferWithAuthorization = "tokenTransferWithAuthorization"

	// Transaction status
	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// BlockTimeBuffer is the number of seconds validBefore must extend past
	// now to survive block inclusion delay.
	BlockTimeBuffer = 6

	// ERC-6492 magic value (last 32 bytes of a wrapped signature)
	// This is bytes32(uint256(keccak256("erc6492.invalid.signature")) - 1)
	ERC6492MagicValue = "0x6492649264926492649264926492649264926492649264926492649264926492"

	// EIP-1271 magic value (returned by isValidSignature on success)
	EIP1271MagicValue = "0x1626ba7e"

	// Gasless settlement is only sponsored on BSC
	SponsoredChainID = 56

	// Nonce-conflict retry budget for sponsored submission
	DefaultNonceRetryAttempts = 5
)

// Facilitator contract revert selectors. The contract reverts with these
// 4-byte custom errors; both verify's gas simulation and settle's submission
// classify them deterministically.
const (
	SelectorInsufficientAllowance = "0x13be252b"
	SelectorInvalidOperator       = "0xccea9e6f"
	SelectorAuthNotYetValid       = "0xdf8e4372"
	SelectorAuthExpired           = "0x0f05f5bf"
	SelectorNonceUsed             = "0x1f6d5aef"
	SelectorInvalidSignature      = "0x8baa579f"
)

var (
	// FacilitatorABI covers the facilitator contract's settlement entrypoint.
	FacilitatorABI = []byte(`[
		{
			"inputs": [
				{"name": "token", "type": "address"},
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "needApprove", "type": "bool"},
				{"name": "signature", "type": "bytes"}
			],
			"name": "tokenTransferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// TransferWithAuthorizationBytesABI is the EIP-3009 entrypoint with a
	// bytes signature; used both for the capability probe and direct transfers.
	TransferWithAuthorizationBytesABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "signature", "type": "bytes"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// ERC20AllowanceABI for checking facilitator approval
	ERC20AllowanceABI = []byte(`[
		{
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"name": "allowance",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20ApproveABI for granting facilitator approval
	ERC20ApproveABI = []byte(`[
		{
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "approve",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// ERC20BalanceOfABI for checking token balance
	ERC20BalanceOfABI = []byte(`[
		{
			"inputs": [
				{"name": "account", "type": "address"}
			],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)
