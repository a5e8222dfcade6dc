package providers

import (
	"context"
	"encoding/json"

	"github.com/nmorales94/swapflow/internal/id"
	"github.com/nmorales94/swapflow/internal/model"
)

type Provider interface {
	Info() model.ProviderInfo
}

// QuoteRequest is the normalized input every quote provider accepts. ToChain
// equals FromChain for same-chain paths.
type QuoteRequest struct {
	FromChain       id.Chain
	ToChain         id.Chain
	Sell            id.Asset
	Buy             id.Asset
	AmountBaseUnits string
	AmountDecimal   string
	Taker           string
	Recipient       string
	SlippageBps     int
	FeeRecipient    string
	FeeBps          int
}

// GaslessProvider serves the meta-transaction path: quote returns typed-data
// to sign off-chain, submit exchanges signatures for a trade handle, and
// status is polled by handle until a transaction hash appears.
type GaslessProvider interface {
	Provider
	QuoteGasless(ctx context.Context, req QuoteRequest) (model.Quote, error)
	SubmitGasless(ctx context.Context, sub GaslessSubmission) (string, error)
	GaslessStatus(ctx context.Context, chainID int64, tradeHash string) (TradeStatus, error)
}

// SignedTypedData pairs an EIP-712 document with its signature, split the way
// the submit endpoint wants it.
type SignedTypedData struct {
	Type      string          `json:"type,omitempty"`
	EIP712    json.RawMessage `json:"eip712"`
	Signature TypedSignature  `json:"signature"`
}

type TypedSignature struct {
	R             string `json:"r"`
	S             string `json:"s"`
	V             int    `json:"v"`
	SignatureType int    `json:"signatureType"`
}

type GaslessSubmission struct {
	ChainID  int64
	Trade    SignedTypedData
	Approval *SignedTypedData
}

// TradeStatus is one poll result for a submitted gasless trade.
type TradeStatus struct {
	Status          string
	TransactionHash string
	Reason          string
}

func (s TradeStatus) Confirmed() bool {
	return s.Status == "confirmed" || s.Status == "succeeded"
}

func (s TradeStatus) Failed() bool {
	return s.Status == "failed"
}

// SwapProvider serves same-chain swaps that settle with a user-broadcast
// transaction.
type SwapProvider interface {
	Provider
	QuoteSwap(ctx context.Context, req QuoteRequest) (model.Quote, error)
}

type BridgeProvider interface {
	Provider
	QuoteBridge(ctx context.Context, req QuoteRequest) (model.Quote, error)
}

// SolanaSwapProvider returns a pre-built transaction to sign and submit over
// Solana RPC.
type SolanaSwapProvider interface {
	Provider
	QuoteSolanaSwap(ctx context.Context, req QuoteRequest) (model.Quote, error)
}

// PriceProvider resolves USD prices for display and fee estimates. Lookup
// failures degrade to unknown values, never hard errors for callers.
type PriceProvider interface {
	Provider
	USDPrices(ctx context.Context, coinIDs []string) (map[string]float64, error)
}
