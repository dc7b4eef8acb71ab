package facilitator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	x402 "github.com/aeon-xyz/x402-go"
	"github.com/aeon-xyz/x402-go/mechanisms/evm"
	"github.com/aeon-xyz/x402-go/paymaster"
	"github.com/aeon-xyz/x402-go/scan"
)

// Settle executes a verified payment on chain. The pipeline is three stages:
//
//	A. smart wallet deployment from ERC-6492 factory data, when enabled
//	B. sponsored (gasless) submission through the paymaster, BSC only
//	C. direct facilitator-contract submission paying gas ourselves
//
// Stage B failures other than classified reverts fall through to Stage C.
func (f *ExactEvmFacilitator) Settle(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.SettleResponse, error) {
	if requirements.MaxTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(requirements.MaxTimeoutSeconds)*time.Second)
		defer cancel()
	}

	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	if !verifyResp.IsValid {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: verifyResp.InvalidReason,
			Network:     requirements.Network,
			Payer:       verifyResp.Payer,
		}, nil
	}
	payer := verifyResp.Payer

	evmPayload, err := evm.PayloadFromMap(payload.Payload)
	if err != nil {
		return settleFailure(x402.ReasonInvalidPayload, requirements.Network, payer), nil
	}
	signature, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil {
		return settleFailure(x402.ReasonInvalidSignature, requirements.Network, payer), nil
	}

	// Stage A: deploy the smart wallet from the ERC-6492 envelope, then
	// settle with the unwrapped inner signature.
	if evm.IsERC6492Signature(signature) {
		parsed, err := evm.ParseERC6492Signature(signature)
		if err != nil {
			return settleFailure(x402.ReasonInvalidSignature, requirements.Network, payer), nil
		}
		if f.deployWithEIP6492 {
			if err := f.deployWallet(ctx, evmPayload.Authorization.From, parsed); err != nil {
				f.logger.Printf("smart wallet deployment failed for %s: %v", evmPayload.Authorization.From, err)
				resp := settleFailure(x402.ReasonUnexpectedSettleError, requirements.Network, payer)
				resp.ErrorMessage = err.Error()
				return resp, nil
			}
		}
		signature = parsed.InnerSignature
	}

	chainID := evm.ChainID(string(requirements.Network))
	supports3009, err := evm.SupportsEIP3009(ctx, f.signer, f.cache, chainID, requirements.Asset)
	if err != nil {
		return settleFailure(x402.ReasonUnexpectedSettleError, requirements.Network, payer), nil
	}

	data, err := f.encodeSettleCall(requirements.Asset, evmPayload.Authorization, !supports3009, signature)
	if err != nil {
		return settleFailure(x402.ReasonInvalidPayload, requirements.Network, payer), nil
	}

	// Stage B: sponsored submission. Any non-terminal failure falls through.
	if chainID.Int64() == evm.SponsoredChainID && f.sponsor != nil {
		resp, terminal := f.settleSponsored(ctx, data, evmPayload, requirements, payer)
		if terminal {
			return resp, nil
		}
		if resp != nil {
			return resp, nil
		}
		f.logger.Printf("sponsored settlement unavailable, falling back to direct submission")
	}

	// Stage C: direct submission paying gas from the facilitator account.
	return f.settleDirect(ctx, evmPayload, requirements, supports3009, signature, payer)
}

// deployWallet broadcasts the ERC-6492 factory call when the wallet has no
// code yet. A deployment that was attempted and failed aborts settlement;
// an inner signature against a never-deployed wallet cannot settle.
func (f *ExactEvmFacilitator) deployWallet(ctx context.Context, wallet string, parsed *evm.ERC6492SignatureData) error {
	if !parsed.HasDeployment() {
		return nil
	}
	code, err := f.signer.GetCode(ctx, wallet)
	if err != nil || len(code) > 0 {
		// Already deployed, or unreadable; the settlement call surfaces the
		// real error if the wallet is genuinely missing.
		return nil
	}

	factory := evm.BytesToHex(parsed.Factory[:])
	txHash, err := f.signer.SendTransaction(ctx, factory, parsed.FactoryCalldata)
	if err != nil {
		return fmt.Errorf("smart wallet deployment failed: %w", err)
	}
	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return fmt.Errorf("smart wallet deployment receipt wait failed: %w", err)
	}
	if receipt.Status != evm.TxStatusSuccess {
		return fmt.Errorf("smart wallet deployment transaction %s reverted", txHash)
	}
	return nil
}

// settleSponsored submits the settlement through the paymaster with gas price
// zero. The returned bool marks a terminal outcome that must not fall through
// to direct submission.
func (f *ExactEvmFacilitator) settleSponsored(
	ctx context.Context,
	data []byte,
	evmPayload *evm.ExactPayload,
	requirements x402.PaymentRequirements,
	payer string,
) (*x402.SettleResponse, bool) {
	operator := f.signer.GetAddresses()[0]

	decision, err := f.sponsor.Validate(ctx, paymaster.SponsorRequest{
		RequestID: uuid.NewString(),
		ChainID:   evm.SponsoredChainID,
		From:      operator,
		To:        f.facilitatorAddress,
		Data:      evm.BytesToHex(data),
		GasPrice:  "0",
	})
	if err != nil {
		f.logger.Printf("paymaster validation failed: %v", err)
		return nil, false
	}
	if !decision.Sponsorable {
		f.logger.Printf("paymaster declined sponsorship: %s", decision.Reason)
		return nil, false
	}

	useLatest := false
	for attempt := 1; attempt <= f.nonceRetryAttempts; attempt++ {
		var nonce uint64
		var nonceErr error
		if useLatest {
			nonce, nonceErr = f.signer.LatestNonce(ctx, operator)
		} else {
			nonce, nonceErr = f.signer.PendingNonce(ctx, operator)
		}
		if nonceErr != nil {
			return nil, false
		}
		useLatest = false

		txHash, err := f.signer.SendRawTransaction(ctx, f.facilitatorAddress, data, nonce, big.NewInt(0))
		if err == nil {
			return f.awaitSettlement(ctx, txHash, evmPayload, requirements, payer, true)
		}

		if reason, ok := classifyRevert(err); ok {
			return settleFailure(reason, requirements.Network, payer), true
		}

		switch classifyNonceError(err) {
		case nonceConflictTooLow:
			sleepCtx(ctx, time.Duration(attempt)*2*time.Second)
		case nonceConflictTooHigh:
			useLatest = true
			sleepCtx(ctx, 500*time.Millisecond)
		case nonceConflictAlreadyUsed:
			sleepCtx(ctx, time.Duration(attempt*1500)*time.Millisecond)
		case nonceConflictOther:
			sleepCtx(ctx, time.Duration(attempt)*time.Second)
		default:
			f.logger.Printf("sponsored submission failed: %v", err)
			return nil, false
		}
		if ctx.Err() != nil {
			return nil, false
		}
	}

	f.logger.Printf("sponsored submission exhausted %d nonce retries", f.nonceRetryAttempts)
	return nil, false
}

// settleDirect submits the settlement from the facilitator account. Tokens
// with native EIP-3009 are called directly; everything else goes through the
// facilitator contract.
func (f *ExactEvmFacilitator) settleDirect(
	ctx context.Context,
	evmPayload *evm.ExactPayload,
	requirements x402.PaymentRequirements,
	supports3009 bool,
	signature []byte,
	payer string,
) (*x402.SettleResponse, error) {
	auth := evmPayload.Authorization
	value, _ := new(big.Int).SetString(auth.Value, 10)
	validAfter, _ := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)
	nonce, err := evm.NonceBytes32(auth.Nonce)
	if err != nil {
		return settleFailure(x402.ReasonInvalidPayload, requirements.Network, payer), nil
	}

	from := common.HexToAddress(auth.From)
	to := common.HexToAddress(auth.To)

	var txHash string
	if supports3009 {
		txHash, err = f.signer.WriteContract(
			ctx,
			requirements.Asset,
			evm.TransferWithAuthorizationBytesABI,
			evm.FunctionTransferWithAuthorization,
			from, to, value, validAfter, validBefore, nonce, signature,
		)
	} else {
		txHash, err = f.signer.WriteContract(
			ctx,
			f.facilitatorAddress,
			evm.FacilitatorABI,
			evm.FunctionTokenTransferWithAuthorization,
			common.HexToAddress(requirements.Asset), from, to, value, validAfter, validBefore, nonce, true, signature,
		)
	}
	if err != nil {
		if reason, ok := classifyRevert(err); ok {
			return settleFailure(reason, requirements.Network, payer), nil
		}
		resp := settleFailure(x402.ReasonUnexpectedSettleError, requirements.Network, payer)
		resp.ErrorMessage = err.Error()
		return resp, nil
	}

	resp, _ := f.awaitSettlement(ctx, txHash, evmPayload, requirements, payer, false)
	return resp, nil
}

// awaitSettlement waits for the settlement receipt and builds the response.
// Timeout errors keep their original message alongside the hash so callers
// can still follow the transaction.
func (f *ExactEvmFacilitator) awaitSettlement(
	ctx context.Context,
	txHash string,
	evmPayload *evm.ExactPayload,
	requirements x402.PaymentRequirements,
	payer string,
	sponsored bool,
) (*x402.SettleResponse, bool) {
	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		resp := settleFailure(x402.ReasonUnexpectedSettleError, requirements.Network, payer)
		resp.Transaction = txHash
		if isTimeoutError(err) {
			resp.ErrorMessage = err.Error()
		}
		return resp, true
	}
	if receipt.Status != evm.TxStatusSuccess {
		resp := settleFailure(x402.ReasonInvalidTransactionState, requirements.Network, payer)
		resp.Transaction = txHash
		return resp, true
	}

	if sponsored && f.sink != nil {
		auth := evmPayload.Authorization
		rec := scan.Record{
			Network:     string(requirements.Network),
			Asset:       requirements.Asset,
			From:        auth.From,
			To:          auth.To,
			Value:       auth.Value,
			ValidAfter:  auth.ValidAfter,
			ValidBefore: auth.ValidBefore,
			Nonce:       auth.Nonce,
			Transaction: txHash,
			Resource:    requirements.Resource,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}
		if amount, err := requirements.AtomicAmount(); err == nil {
			rec.Amount = amount.String()
		}
		f.sink.Enqueue(rec)
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     requirements.Network,
		Payer:       payer,
	}, true
}

func settleFailure(reason string, network x402.Network, payer string) *x402.SettleResponse {
	return &x402.SettleResponse{
		Success:     false,
		ErrorReason: reason,
		Network:     network,
		Payer:       payer,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
