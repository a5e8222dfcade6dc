package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/httpx"
	"github.com/nmorales94/swapflow/internal/id"
	"github.com/nmorales94/swapflow/internal/model"
	"github.com/nmorales94/swapflow/internal/providers"
)

const (
	defaultLiteBase    = "https://lite-api.jup.ag/swap/v1"
	defaultProBase     = "https://api.jup.ag/swap/v1"
	solanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	apiKey = strings.TrimSpace(apiKey)
	baseURL := defaultLiteBase
	if apiKey != "" {
		baseURL = defaultProBase
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		apiKey:  apiKey,
		now:     time.Now,
	}
}

func (c *Client) SetBaseURL(u string) {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u != "" {
		c.baseURL = u
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "jupiter",
		Type:          "swap",
		RequiresKey:   false,
		KeyEnvVarName: "SWAPFLOW_JUPITER_API_KEY",
		Capabilities: []string{
			"swap.quote.solana",
			"swap.build.solana",
		},
	}
}

type quoteResponse struct {
	InAmount       string          `json:"inAmount"`
	OutAmount      string          `json:"outAmount"`
	OtherAmountOut string          `json:"otherAmountThreshold"`
	PriceImpactPct string          `json:"priceImpactPct"`
	RoutePlan      json.RawMessage `json:"routePlan"`
}

type swapBuildResponse struct {
	SwapTransaction           string `json:"swapTransaction"`
	LastValidBlockHeight      uint64 `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports"`
}

// QuoteSolanaSwap fetches a route and immediately builds the transaction for
// it, so the returned quote is directly executable.
func (c *Client) QuoteSolanaSwap(ctx context.Context, req providers.QuoteRequest) (model.Quote, error) {
	if !req.FromChain.IsSolana() {
		return model.Quote{}, clierr.New(clierr.CodeUnsupported, "jupiter swaps support only Solana chains")
	}
	if req.FromChain.CAIP2 != solanaMainnetCAIP2 {
		return model.Quote{}, clierr.New(clierr.CodeUnsupported, "jupiter swaps support only Solana mainnet")
	}
	taker := strings.TrimSpace(req.Taker)
	if taker == "" {
		return model.Quote{}, clierr.New(clierr.CodeUsage, "solana swap requires user public key")
	}

	slippageBps := req.SlippageBps
	if slippageBps <= 0 {
		slippageBps = 50
	}

	vals := url.Values{}
	vals.Set("inputMint", req.Sell.Address)
	vals.Set("outputMint", req.Buy.Address)
	vals.Set("amount", req.AmountBaseUnits)
	vals.Set("slippageBps", strconv.Itoa(slippageBps))

	endpoint := fmt.Sprintf("%s/quote?%s", c.baseURL, vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Quote{}, clierr.Wrap(clierr.CodeInternal, "build jupiter quote request", err)
	}
	if c.apiKey != "" {
		hReq.Header.Set("x-api-key", c.apiKey)
	}

	var route quoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &route); err != nil {
		return model.Quote{}, err
	}
	if strings.TrimSpace(route.OutAmount) == "" {
		return model.Quote{}, clierr.New(clierr.CodeNoLiquidity, fmt.Sprintf("no route for %s -> %s", req.Sell.Symbol, req.Buy.Symbol))
	}

	built, err := c.buildSwap(ctx, taker, route)
	if err != nil {
		return model.Quote{}, err
	}

	quote := model.Quote{
		Path:       model.PathOnchainSameChain,
		Provider:   "jupiter",
		Sell:       assetRef(req.FromChain, req.Sell),
		Buy:        assetRef(req.FromChain, req.Buy),
		SellAmount: amountInfo(req.AmountBaseUnits, req.Sell.Decimals),
		BuyAmount:  amountInfo(route.OutAmount, req.Buy.Decimals),
		ReceivedAt: c.now().UTC(),
		TTLSeconds: 30,
		Exec: model.SolanaPayload{
			SwapTransaction:           built.SwapTransaction,
			LastValidBlockHeight:      built.LastValidBlockHeight,
			PrioritizationFeeLamports: built.PrioritizationFeeLamports,
		},
	}
	if strings.TrimSpace(route.OtherAmountOut) != "" {
		mb := amountInfo(route.OtherAmountOut, req.Buy.Decimals)
		quote.MinBuy = &mb
	}
	return quote, nil
}

func (c *Client) buildSwap(ctx context.Context, userPublicKey string, route quoteResponse) (swapBuildResponse, error) {
	body, err := json.Marshal(map[string]any{
		"userPublicKey": userPublicKey,
		"quoteResponse": map[string]any{
			"inAmount":             route.InAmount,
			"outAmount":            route.OutAmount,
			"otherAmountThreshold": route.OtherAmountOut,
			"priceImpactPct":       route.PriceImpactPct,
			"routePlan":            route.RoutePlan,
		},
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": "auto",
	})
	if err != nil {
		return swapBuildResponse{}, clierr.Wrap(clierr.CodeInternal, "encode jupiter swap request", err)
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["x-api-key"] = c.apiKey
	}

	var resp swapBuildResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/swap", body, headers, &resp); err != nil {
		return swapBuildResponse{}, err
	}
	if strings.TrimSpace(resp.SwapTransaction) == "" {
		return swapBuildResponse{}, clierr.New(clierr.CodeUnavailable, "jupiter swap response missing transaction")
	}
	return resp, nil
}

func assetRef(chain id.Chain, asset id.Asset) model.AssetRef {
	return model.AssetRef{
		ChainID:   asset.ChainID,
		ChainSlug: chain.Slug,
		AssetID:   asset.AssetID,
		Address:   asset.Address,
		Symbol:    asset.Symbol,
		Decimals:  asset.Decimals,
	}
}

func amountInfo(baseUnits string, decimals int) model.AmountInfo {
	baseUnits = strings.TrimSpace(baseUnits)
	if baseUnits == "" {
		baseUnits = "0"
	}
	_, dec, err := id.NormalizeAmount(baseUnits, "", decimals)
	if err != nil {
		dec = ""
	}
	return model.AmountInfo{
		AmountBaseUnits: baseUnits,
		AmountDecimal:   dec,
		Decimals:        decimals,
	}
}
