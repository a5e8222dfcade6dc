package model

import (
	"encoding/json"
	"time"
)

const EnvelopeVersion = "v1"

// Execution paths, evaluated by the resolver in a fixed order.
const (
	PathWrap             = "wrap"
	PathUnwrap           = "unwrap"
	PathGaslessSameChain = "gasless-same-chain"
	PathOnchainSameChain = "onchain-swap-same-chain"
	PathBridgeCrossChain = "bridge-cross-chain"
)

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type ProviderInfo struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	RequiresKey   bool     `json:"requires_key"`
	Capabilities  []string `json:"capabilities"`
	KeyEnvVarName string   `json:"key_env_var,omitempty"`
}

type AssetRef struct {
	ChainID   string `json:"chain_id"`
	ChainSlug string `json:"chain_slug,omitempty"`
	AssetID   string `json:"asset_id"`
	Address   string `json:"address"`
	Symbol    string `json:"symbol"`
	Decimals  int    `json:"decimals"`
	Native    bool   `json:"native,omitempty"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

type FeeAmount struct {
	AssetID         string  `json:"asset_id,omitempty"`
	Symbol          string  `json:"symbol,omitempty"`
	AmountBaseUnits string  `json:"amount_base_units,omitempty"`
	AmountDecimal   string  `json:"amount_decimal,omitempty"`
	AmountUSD       float64 `json:"amount_usd,omitempty"`
}

type FeeBreakdown struct {
	IntegratorFee *FeeAmount `json:"integrator_fee,omitempty"`
	GasFee        *FeeAmount `json:"gas_fee,omitempty"`
	RelayerFee    *FeeAmount `json:"relayer_fee,omitempty"`
	LPFee         *FeeAmount `json:"lp_fee,omitempty"`
	TotalFeeUSD   float64    `json:"total_fee_usd,omitempty"`
}

// AllowanceRequirement is present when the sell token must be approved to a
// spender before the trade can execute.
type AllowanceRequirement struct {
	Token           string `json:"token"`
	Spender         string `json:"spender"`
	RequiredBase    string `json:"required_base_units"`
	CurrentBase     string `json:"current_base_units,omitempty"`
	GaslessSignable bool   `json:"gasless_signable"`
}

// ExecPayload carries the path-specific material needed to execute a quote.
// Exactly one concrete variant backs each Quote.
type ExecPayload interface {
	ExecPath() string
}

// GaslessPayload holds EIP-712 typed data for the meta-transaction path. The
// approval document is optional; when present it replaces an on-chain approve.
type GaslessPayload struct {
	ApprovalTypedData json.RawMessage `json:"approval_typed_data,omitempty"`
	ApprovalType      string          `json:"approval_type,omitempty"`
	TradeTypedData    json.RawMessage `json:"trade_typed_data"`
	TradeType         string          `json:"trade_type,omitempty"`
}

func (GaslessPayload) ExecPath() string { return PathGaslessSameChain }

// TxRequest is a raw EVM transaction to sign and broadcast.
type TxRequest struct {
	To       string `json:"to"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	GasLimit string `json:"gas_limit,omitempty"`
	GasPrice string `json:"gas_price,omitempty"`
	ChainID  int64  `json:"chain_id"`
}

type OnchainPayload struct {
	Tx              TxRequest `json:"tx"`
	AllowanceTarget string    `json:"allowance_target,omitempty"`
}

func (OnchainPayload) ExecPath() string { return PathOnchainSameChain }

// BridgePayload carries the provider-built approval transactions plus the
// deposit transaction for a cross-chain route.
type BridgePayload struct {
	ApprovalTxns       []TxRequest `json:"approval_txns,omitempty"`
	SwapTx             TxRequest   `json:"swap_tx"`
	DestinationChainID string      `json:"destination_chain_id"`
	FillDeadline       int64       `json:"fill_deadline,omitempty"`
	EstimatedFillTimeS int64       `json:"estimated_fill_time_s,omitempty"`
}

func (BridgePayload) ExecPath() string { return PathBridgeCrossChain }

// SolanaPayload wraps the base64 transaction returned by the swap API,
// signed locally and submitted over Solana RPC.
type SolanaPayload struct {
	SwapTransaction           string `json:"swap_transaction"`
	LastValidBlockHeight      uint64 `json:"last_valid_block_height,omitempty"`
	PrioritizationFeeLamports uint64 `json:"prioritization_fee_lamports,omitempty"`
}

func (SolanaPayload) ExecPath() string { return PathOnchainSameChain }

// WrapPayload describes a direct deposit/withdraw call on the wrapped-native
// contract. No external provider is involved and the rate is exactly 1:1.
type WrapPayload struct {
	Direction       string `json:"direction"`
	WrappedContract string `json:"wrapped_contract"`
	ChainID         int64  `json:"chain_id"`
}

func (p WrapPayload) ExecPath() string { return p.Direction }

// Quote is the normalized result of path selection plus a provider response.
type Quote struct {
	Path        string                `json:"path"`
	Provider    string                `json:"provider"`
	Sell        AssetRef              `json:"sell"`
	Buy         AssetRef              `json:"buy"`
	SellAmount  AmountInfo            `json:"sell_amount"`
	BuyAmount   AmountInfo            `json:"buy_amount"`
	MinBuy      *AmountInfo           `json:"min_buy_amount,omitempty"`
	Price       string                `json:"price,omitempty"`
	PriceUSD    float64               `json:"price_usd,omitempty"`
	Fees        *FeeBreakdown         `json:"fees,omitempty"`
	Allowance   *AllowanceRequirement `json:"allowance,omitempty"`
	ReceivedAt  time.Time             `json:"received_at"`
	TTLSeconds  int64                 `json:"ttl_seconds"`
	Exec        ExecPayload           `json:"exec,omitempty"`
	ProviderRef string                `json:"provider_ref,omitempty"`
}

// Expired reports whether the quote has reached its TTL at the given
// instant; the deadline itself counts as expired. Wrap/unwrap quotes carry
// no TTL and never expire.
func (q Quote) Expired(now time.Time) bool {
	if q.TTLSeconds <= 0 {
		return false
	}
	return !now.Before(q.ReceivedAt.Add(time.Duration(q.TTLSeconds) * time.Second))
}

// HistoryEntry records one terminal execution outcome.
type HistoryEntry struct {
	ID              int64     `json:"id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Path            string    `json:"path"`
	Provider        string    `json:"provider"`
	FromChainID     string    `json:"from_chain_id"`
	ToChainID       string    `json:"to_chain_id"`
	SellAssetID     string    `json:"sell_asset_id"`
	BuyAssetID      string    `json:"buy_asset_id"`
	SellSymbol      string    `json:"sell_symbol"`
	BuySymbol       string    `json:"buy_symbol"`
	SellAmount      string    `json:"sell_amount"`
	BuyAmount       string    `json:"buy_amount"`
	Status          string    `json:"status"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	Message         string    `json:"message,omitempty"`
}
