package engine

import (
	"context"
	"encoding/json"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/model"
	"github.com/nmorales94/swapflow/internal/providers"
)

// TypedDataSigner signs EIP-712 documents for the gasless path. A user
// decline must surface as CodeWalletRejected.
type TypedDataSigner interface {
	Address() common.Address
	SignTypedData(doc json.RawMessage) (providers.TypedSignature, error)
}

// EVMBackend covers every on-chain effect the driver needs. Send broadcasts
// a signed transaction and returns its hash; WaitReceipt blocks until the
// transaction mines or the wait times out.
type EVMBackend interface {
	Allowance(ctx context.Context, chainID int64, token, owner, spender string) (*big.Int, error)
	Send(ctx context.Context, tx model.TxRequest) (string, error)
	WaitReceipt(ctx context.Context, chainID int64, hash string) (reverted bool, err error)
}

type SolanaBackend interface {
	SignAndSend(ctx context.Context, payload model.SolanaPayload) (string, error)
	WaitConfirmation(ctx context.Context, signature string) (failed bool, err error)
}

// Recorder persists terminal outcomes. Calls are fire-and-forget; failures
// never block or fail the attempt.
type Recorder interface {
	Record(entry model.HistoryEntry)
}

// Driver runs one execution attempt at a time over a resolved quote. All
// transitions go through Apply; the driver only performs the effects each
// non-terminal status implies.
type Driver struct {
	Gasless  providers.GaslessProvider
	EVM      EVMBackend
	Solana   SolanaBackend
	Signer   TypedDataSigner
	Recorder Recorder

	// FreshQuote re-resolves the active request. Required for the mandatory
	// re-fetches after approval and at bridge confirmation.
	FreshQuote func(ctx context.Context) (model.Quote, error)

	// ConfirmBridge, when set, is asked before a bridge deposit is signed.
	// It receives the freshly re-fetched quote.
	ConfirmBridge func(quote model.Quote) bool

	OnTransition func(Attempt)

	PollInterval time.Duration
	PollAttempts int
	Now          func() time.Time

	inFlight atomic.Bool
}

// InFlight reports whether an attempt is currently executing. Quote refresh
// loops use this to stay out of the way.
func (d *Driver) InFlight() bool { return d.inFlight.Load() }

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Driver) pollInterval() time.Duration {
	if d.PollInterval > 0 {
		return d.PollInterval
	}
	return 2 * time.Second
}

func (d *Driver) pollAttempts() int {
	if d.PollAttempts > 0 {
		return d.PollAttempts
	}
	return 20
}

// Execute drives the quote to a terminal status. The returned error is the
// typed cause for non-confirmed outcomes and nil when confirmed.
func (d *Driver) Execute(ctx context.Context, quote model.Quote) (Attempt, error) {
	if !d.inFlight.CompareAndSwap(false, true) {
		return Attempt{}, clierr.New(clierr.CodeUsage, "an execution attempt is already in flight")
	}
	defer d.inFlight.Store(false)

	attempt := Attempt{Status: StatusIdle, Path: quote.Path}
	execErr := d.run(ctx, &attempt, quote)

	if execErr != nil && !attempt.Status.Terminal() {
		_ = d.apply(&attempt, terminalEvent(execErr))
	}
	d.record(attempt, quote)

	if attempt.Status == StatusConfirmed {
		return attempt, nil
	}
	if execErr == nil {
		execErr = errorForStatus(attempt)
	}
	return attempt, execErr
}

func (d *Driver) run(ctx context.Context, a *Attempt, quote model.Quote) error {
	switch payload := quote.Exec.(type) {
	case model.WrapPayload:
		return d.runWrap(ctx, a, quote, payload)
	case model.GaslessPayload:
		return d.runGasless(ctx, a, quote, payload)
	case model.OnchainPayload:
		return d.runOnchain(ctx, a, quote, payload)
	case model.BridgePayload:
		return d.runBridge(ctx, a, quote, payload)
	case model.SolanaPayload:
		return d.runSolana(ctx, a, quote, payload)
	default:
		return clierr.New(clierr.CodeInternal, "quote has no executable payload")
	}
}

func (d *Driver) apply(a *Attempt, ev Event) error {
	next, err := Apply(*a, ev)
	if err != nil {
		return err
	}
	*a = next
	if d.OnTransition != nil {
		d.OnTransition(next)
	}
	return nil
}

// needsOnchainApproval reads the live allowance; the quote's snapshot may be
// stale by the time execution starts.
func (d *Driver) needsOnchainApproval(ctx context.Context, quote model.Quote) (bool, error) {
	req := quote.Allowance
	if req == nil || req.GaslessSignable {
		return false, nil
	}
	chainID, err := evmChainID(quote.Sell.ChainID)
	if err != nil {
		return false, err
	}
	current, err := d.EVM.Allowance(ctx, chainID, req.Token, d.Signer.Address().Hex(), req.Spender)
	if err != nil {
		return false, err
	}
	required, ok := new(big.Int).SetString(req.RequiredBase, 10)
	if !ok {
		return false, clierr.New(clierr.CodeInternal, "invalid allowance requirement")
	}
	return current.Cmp(required) < 0, nil
}

// approveAndRefresh sends an unlimited approval, waits for it to mine, then
// re-fetches the quote. The old quote's payload was priced against the old
// allowance state and must not be reused.
func (d *Driver) approveAndRefresh(ctx context.Context, a *Attempt, quote model.Quote) (model.Quote, error) {
	req := quote.Allowance
	chainID, err := evmChainID(quote.Sell.ChainID)
	if err != nil {
		return quote, err
	}
	tx, err := ApprovalTx(chainID, req.Token, req.Spender)
	if err != nil {
		return quote, err
	}
	hash, err := d.EVM.Send(ctx, tx)
	if err != nil {
		return quote, err
	}
	if err := d.apply(a, EvApprovalSent{Hash: hash}); err != nil {
		return quote, err
	}
	reverted, err := d.EVM.WaitReceipt(ctx, chainID, hash)
	if err != nil {
		return quote, err
	}
	if reverted {
		return quote, clierr.New(clierr.CodeReverted, "approval transaction reverted")
	}
	if err := d.apply(a, EvApproved{}); err != nil {
		return quote, err
	}

	if d.FreshQuote == nil {
		return quote, clierr.New(clierr.CodeQuoteExpired, "quote is stale after approval and cannot be refreshed")
	}
	fresh, err := d.FreshQuote(ctx)
	if err != nil {
		return quote, clierr.Wrap(clierr.CodeQuoteExpired, "refresh quote after approval", err)
	}
	return fresh, nil
}

// ensureFresh hands back the quote if it is inside its TTL, otherwise
// replaces it with a re-resolved one.
func (d *Driver) ensureFresh(ctx context.Context, quote model.Quote) (model.Quote, error) {
	if !quote.Expired(d.now()) {
		return quote, nil
	}
	if d.FreshQuote == nil {
		return quote, clierr.New(clierr.CodeQuoteExpired, "quote expired; retry with a fresh quote")
	}
	fresh, err := d.FreshQuote(ctx)
	if err != nil {
		return quote, clierr.Wrap(clierr.CodeQuoteExpired, "refresh expired quote", err)
	}
	if fresh.Expired(d.now()) {
		return quote, clierr.New(clierr.CodeQuoteExpired, "refreshed quote is already expired")
	}
	return fresh, nil
}

func (d *Driver) runGasless(ctx context.Context, a *Attempt, quote model.Quote, payload model.GaslessPayload) error {
	needsApproval, err := d.needsOnchainApproval(ctx, quote)
	if err != nil {
		return err
	}
	if err := d.apply(a, EvStart{NeedsApproval: needsApproval}); err != nil {
		return err
	}
	if needsApproval {
		fresh, err := d.approveAndRefresh(ctx, a, quote)
		if err != nil {
			return err
		}
		quote = fresh
		refreshed, ok := quote.Exec.(model.GaslessPayload)
		if !ok {
			return clierr.New(clierr.CodeInternal, "refreshed quote is no longer gasless")
		}
		payload = refreshed
	}

	quote, err = d.ensureFresh(ctx, quote)
	if err != nil {
		return err
	}
	if fresh, ok := quote.Exec.(model.GaslessPayload); ok {
		payload = fresh
	}

	chainID, err := evmChainID(quote.Sell.ChainID)
	if err != nil {
		return err
	}

	sub := providers.GaslessSubmission{ChainID: chainID}
	if len(payload.ApprovalTypedData) > 0 {
		sig, err := d.Signer.SignTypedData(payload.ApprovalTypedData)
		if err != nil {
			return d.signingError(a, err)
		}
		sub.Approval = &providers.SignedTypedData{
			Type:      payload.ApprovalType,
			EIP712:    payload.ApprovalTypedData,
			Signature: sig,
		}
	}
	tradeSig, err := d.Signer.SignTypedData(payload.TradeTypedData)
	if err != nil {
		return d.signingError(a, err)
	}
	sub.Trade = providers.SignedTypedData{
		Type:      payload.TradeType,
		EIP712:    payload.TradeTypedData,
		Signature: tradeSig,
	}
	if err := d.apply(a, EvSigned{}); err != nil {
		return err
	}

	tradeHash, err := d.Gasless.SubmitGasless(ctx, sub)
	if err != nil {
		return err
	}
	if err := d.apply(a, EvSubmitted{TradeHash: tradeHash}); err != nil {
		return err
	}

	return d.pollGasless(ctx, a, chainID, tradeHash)
}

// pollGasless queries trade status at a fixed interval for a bounded number
// of attempts. Exhaustion is a soft success: the meta-transaction may still
// land after the window.
func (d *Driver) pollGasless(ctx context.Context, a *Attempt, chainID int64, tradeHash string) error {
	ticker := time.NewTicker(d.pollInterval())
	defer ticker.Stop()

	for i := 0; i < d.pollAttempts(); i++ {
		select {
		case <-ctx.Done():
			return clierr.Wrap(clierr.CodeTimeout, "status polling cancelled", ctx.Err())
		case <-ticker.C:
		}

		status, err := d.Gasless.GaslessStatus(ctx, chainID, tradeHash)
		if err != nil {
			// Transient poll failures consume an attempt but do not fail
			// the trade.
			if applyErr := d.apply(a, EvPoll{}); applyErr != nil {
				return applyErr
			}
			continue
		}
		ev := EvPoll{
			Confirmed:       status.Confirmed() && status.TransactionHash != "",
			Failed:          status.Failed(),
			TransactionHash: status.TransactionHash,
			Reason:          status.Reason,
		}
		if err := d.apply(a, ev); err != nil {
			return err
		}
		if a.Status.Terminal() {
			return nil
		}
	}
	return d.apply(a, EvPollExhausted{})
}

func (d *Driver) runOnchain(ctx context.Context, a *Attempt, quote model.Quote, payload model.OnchainPayload) error {
	needsApproval, err := d.needsOnchainApproval(ctx, quote)
	if err != nil {
		return err
	}
	if err := d.apply(a, EvStart{NeedsApproval: needsApproval}); err != nil {
		return err
	}
	if needsApproval {
		fresh, err := d.approveAndRefresh(ctx, a, quote)
		if err != nil {
			return err
		}
		quote = fresh
		refreshed, ok := quote.Exec.(model.OnchainPayload)
		if !ok {
			return clierr.New(clierr.CodeInternal, "refreshed quote is no longer an onchain swap")
		}
		payload = refreshed
	}

	quote, err = d.ensureFresh(ctx, quote)
	if err != nil {
		return err
	}
	if fresh, ok := quote.Exec.(model.OnchainPayload); ok {
		payload = fresh
	}

	return d.broadcastAndWait(ctx, a, payload.Tx)
}

func (d *Driver) runBridge(ctx context.Context, a *Attempt, quote model.Quote, payload model.BridgePayload) error {
	// Bridge deposits always sign against a quote fetched at confirmation
	// time, not the one the user was shown earlier.
	if d.FreshQuote != nil {
		fresh, err := d.FreshQuote(ctx)
		if err != nil {
			return clierr.Wrap(clierr.CodeQuoteExpired, "re-fetch bridge quote before confirmation", err)
		}
		quote = fresh
		refreshed, ok := quote.Exec.(model.BridgePayload)
		if !ok {
			return clierr.New(clierr.CodeInternal, "refreshed quote is no longer a bridge route")
		}
		payload = refreshed
	}
	if d.ConfirmBridge != nil && !d.ConfirmBridge(quote) {
		if err := d.apply(a, EvStart{}); err != nil {
			return err
		}
		return d.apply(a, EvRejected{})
	}

	if err := d.apply(a, EvStart{NeedsApproval: len(payload.ApprovalTxns) > 0}); err != nil {
		return err
	}
	if len(payload.ApprovalTxns) > 0 {
		chainID := payload.SwapTx.ChainID
		var lastHash string
		for _, tx := range payload.ApprovalTxns {
			hash, err := d.EVM.Send(ctx, tx)
			if err != nil {
				return err
			}
			lastHash = hash
		}
		if err := d.apply(a, EvApprovalSent{Hash: lastHash}); err != nil {
			return err
		}
		reverted, err := d.EVM.WaitReceipt(ctx, chainID, lastHash)
		if err != nil {
			return err
		}
		if reverted {
			return clierr.New(clierr.CodeReverted, "bridge approval transaction reverted")
		}
		if err := d.apply(a, EvApproved{}); err != nil {
			return err
		}
		if d.FreshQuote != nil {
			fresh, err := d.FreshQuote(ctx)
			if err != nil {
				return clierr.Wrap(clierr.CodeQuoteExpired, "refresh quote after approval", err)
			}
			quote = fresh
			if refreshed, ok := quote.Exec.(model.BridgePayload); ok {
				payload = refreshed
			}
		}
	}

	quote, err := d.ensureFresh(ctx, quote)
	if err != nil {
		return err
	}
	if fresh, ok := quote.Exec.(model.BridgePayload); ok {
		payload = fresh
	}
	return d.broadcastAndWait(ctx, a, payload.SwapTx)
}

func (d *Driver) runWrap(ctx context.Context, a *Attempt, quote model.Quote, payload model.WrapPayload) error {
	if err := d.apply(a, EvStart{}); err != nil {
		return err
	}
	tx, err := WrapTx(payload, quote.SellAmount.AmountBaseUnits)
	if err != nil {
		return err
	}
	return d.broadcastAndWait(ctx, a, tx)
}

func (d *Driver) runSolana(ctx context.Context, a *Attempt, quote model.Quote, payload model.SolanaPayload) error {
	if err := d.apply(a, EvStart{}); err != nil {
		return err
	}
	var err error
	quote, err = d.ensureFresh(ctx, quote)
	if err != nil {
		return err
	}
	if fresh, ok := quote.Exec.(model.SolanaPayload); ok {
		payload = fresh
	}

	signature, err := d.Solana.SignAndSend(ctx, payload)
	if err != nil {
		return d.signingError(a, err)
	}
	if err := d.apply(a, EvSigned{}); err != nil {
		return err
	}
	if err := d.apply(a, EvBroadcast{Hash: signature}); err != nil {
		return err
	}
	failed, err := d.Solana.WaitConfirmation(ctx, signature)
	if err != nil {
		return err
	}
	return d.apply(a, EvReceipt{Reverted: failed})
}

// broadcastAndWait walks signing, submitting, polling, and the receipt for a
// wallet-broadcast transaction.
func (d *Driver) broadcastAndWait(ctx context.Context, a *Attempt, tx model.TxRequest) error {
	hash, err := d.EVM.Send(ctx, tx)
	if err != nil {
		return d.signingError(a, err)
	}
	if err := d.apply(a, EvSigned{}); err != nil {
		return err
	}
	if err := d.apply(a, EvBroadcast{Hash: hash}); err != nil {
		return err
	}
	reverted, err := d.EVM.WaitReceipt(ctx, tx.ChainID, hash)
	if err != nil {
		return err
	}
	return d.apply(a, EvReceipt{Reverted: reverted})
}

// signingError maps a wallet decline to the rejected state; anything else
// propagates for the generic failure path.
func (d *Driver) signingError(a *Attempt, err error) error {
	if clierr.HasCode(err, clierr.CodeWalletRejected) && a.Status == StatusSigning {
		return d.apply(a, EvRejected{})
	}
	return err
}

func (d *Driver) record(a Attempt, quote model.Quote) {
	if d.Recorder == nil || !a.Status.Terminal() {
		return
	}
	hash := a.TransactionHash
	if hash == "" {
		hash = a.TradeHash
	}
	d.Recorder.Record(model.HistoryEntry{
		Timestamp:       d.now().UTC(),
		Path:            quote.Path,
		Provider:        quote.Provider,
		FromChainID:     quote.Sell.ChainID,
		ToChainID:       quote.Buy.ChainID,
		SellAssetID:     quote.Sell.AssetID,
		BuyAssetID:      quote.Buy.AssetID,
		SellSymbol:      quote.Sell.Symbol,
		BuySymbol:       quote.Buy.Symbol,
		SellAmount:      quote.SellAmount.AmountDecimal,
		BuyAmount:       quote.BuyAmount.AmountDecimal,
		Status:          string(a.Status),
		TransactionHash: hash,
		Message:         a.Message,
	})
}

// terminalEvent converts an effect error into the matching terminal event.
func terminalEvent(err error) Event {
	switch {
	case clierr.HasCode(err, clierr.CodeWalletRejected):
		return EvFailed{Message: "signature request rejected"}
	case clierr.HasCode(err, clierr.CodeQuoteExpired):
		return EvExpired{}
	case clierr.HasCode(err, clierr.CodeReverted):
		return EvFailed{Message: messageOf(err)}
	default:
		return EvFailed{Message: messageOf(err)}
	}
}

func errorForStatus(a Attempt) error {
	switch a.Status {
	case StatusRejected:
		return clierr.New(clierr.CodeWalletRejected, a.Message)
	case StatusExpired:
		return clierr.New(clierr.CodeQuoteExpired, a.Message)
	case StatusReverted:
		return clierr.New(clierr.CodeReverted, a.Message)
	case StatusFailed:
		msg := a.Message
		if msg == "" {
			msg = "execution failed"
		}
		return clierr.New(clierr.CodeInternal, msg)
	default:
		return nil
	}
}

func messageOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
