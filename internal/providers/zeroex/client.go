package zeroex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/httpx"
	"github.com/nmorales94/swapflow/internal/id"
	"github.com/nmorales94/swapflow/internal/model"
	"github.com/nmorales94/swapflow/internal/providers"
)

const defaultBase = "https://api.0x.org"

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: defaultBase, apiKey: apiKey, now: time.Now}
}

// SetBaseURL overrides the API endpoint, mainly for self-hosted proxies.
func (c *Client) SetBaseURL(u string) {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u != "" {
		c.baseURL = u
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "0x",
		Type:        "swap",
		RequiresKey: true,
		Capabilities: []string{
			"swap.quote.gasless",
			"swap.quote.onchain",
			"swap.submit.gasless",
			"swap.status.gasless",
		},
		KeyEnvVarName: "SWAPFLOW_0X_API_KEY",
	}
}

type allowanceIssue struct {
	Actual  string `json:"actual"`
	Spender string `json:"spender"`
}

type quoteIssues struct {
	Allowance       *allowanceIssue `json:"allowance"`
	Balance         json.RawMessage `json:"balance"`
	SimulationValid *bool           `json:"simulationIncomplete"`
}

type typedDataEnvelope struct {
	Type   string          `json:"type"`
	Hash   string          `json:"hash"`
	EIP712 json.RawMessage `json:"eip712"`
}

type feeEntry struct {
	Amount string `json:"amount"`
	Token  string `json:"token"`
	Type   string `json:"type"`
}

type gaslessQuoteResponse struct {
	LiquidityAvailable bool               `json:"liquidityAvailable"`
	SellAmount         string             `json:"sellAmount"`
	BuyAmount          string             `json:"buyAmount"`
	MinBuyAmount       string             `json:"minBuyAmount"`
	Issues             quoteIssues        `json:"issues"`
	Approval           *typedDataEnvelope `json:"approval"`
	Trade              *typedDataEnvelope `json:"trade"`
	Fees               struct {
		IntegratorFee *feeEntry `json:"integratorFee"`
		ZeroExFee     *feeEntry `json:"zeroExFee"`
		GasFee        *feeEntry `json:"gasFee"`
	} `json:"fees"`
}

type swapQuoteResponse struct {
	LiquidityAvailable bool        `json:"liquidityAvailable"`
	SellAmount         string      `json:"sellAmount"`
	BuyAmount          string      `json:"buyAmount"`
	MinBuyAmount       string      `json:"minBuyAmount"`
	Issues             quoteIssues `json:"issues"`
	Transaction        struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Gas      string `json:"gas"`
		GasPrice string `json:"gasPrice"`
		Value    string `json:"value"`
	} `json:"transaction"`
}

func (c *Client) QuoteGasless(ctx context.Context, req providers.QuoteRequest) (model.Quote, error) {
	if !req.FromChain.IsEVM() {
		return model.Quote{}, clierr.New(clierr.CodeUnsupported, "gasless quotes support only EVM chains")
	}
	if req.Sell.IsNative() || req.Buy.IsNative() {
		return model.Quote{}, clierr.New(clierr.CodeUnsupported, "gasless quotes do not support native assets")
	}

	vals := c.quoteValues(req)
	reqURL := c.baseURL + "/gasless/quote?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Quote{}, clierr.Wrap(clierr.CodeInternal, "build gasless quote request", err)
	}
	c.setHeaders(hReq)

	var resp gaslessQuoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return model.Quote{}, err
	}
	if !resp.LiquidityAvailable {
		return model.Quote{}, clierr.New(clierr.CodeNoLiquidity, fmt.Sprintf("no liquidity for %s -> %s", req.Sell.Symbol, req.Buy.Symbol))
	}
	if resp.Trade == nil || len(resp.Trade.EIP712) == 0 {
		return model.Quote{}, clierr.New(clierr.CodeUnavailable, "gasless quote response missing trade payload")
	}

	payload := model.GaslessPayload{
		TradeTypedData: resp.Trade.EIP712,
		TradeType:      resp.Trade.Type,
	}
	if resp.Approval != nil && len(resp.Approval.EIP712) > 0 {
		payload.ApprovalTypedData = resp.Approval.EIP712
		payload.ApprovalType = resp.Approval.Type
	}

	quote := c.baseQuote(req, model.PathGaslessSameChain, resp.SellAmount, resp.BuyAmount, resp.MinBuyAmount)
	quote.Exec = payload
	quote.Allowance = allowanceFromIssues(req, resp.Issues, payload.ApprovalTypedData != nil)
	quote.Fees = feesFromGasless(resp, req)
	return quote, nil
}

func (c *Client) QuoteSwap(ctx context.Context, req providers.QuoteRequest) (model.Quote, error) {
	if !req.FromChain.IsEVM() {
		return model.Quote{}, clierr.New(clierr.CodeUnsupported, "onchain swap quotes support only EVM chains")
	}

	vals := c.quoteValues(req)
	reqURL := c.baseURL + "/swap/allowance-holder/quote?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Quote{}, clierr.Wrap(clierr.CodeInternal, "build swap quote request", err)
	}
	c.setHeaders(hReq)

	var resp swapQuoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return model.Quote{}, err
	}
	if !resp.LiquidityAvailable {
		return model.Quote{}, clierr.New(clierr.CodeNoLiquidity, fmt.Sprintf("no liquidity for %s -> %s", req.Sell.Symbol, req.Buy.Symbol))
	}
	if strings.TrimSpace(resp.Transaction.To) == "" || strings.TrimSpace(resp.Transaction.Data) == "" {
		return model.Quote{}, clierr.New(clierr.CodeUnavailable, "swap quote response missing transaction payload")
	}

	quote := c.baseQuote(req, model.PathOnchainSameChain, resp.SellAmount, resp.BuyAmount, resp.MinBuyAmount)
	allowanceTarget := ""
	if resp.Issues.Allowance != nil {
		allowanceTarget = resp.Issues.Allowance.Spender
	}
	quote.Exec = model.OnchainPayload{
		Tx: model.TxRequest{
			To:       common.HexToAddress(resp.Transaction.To).Hex(),
			Data:     ensureHexPrefix(resp.Transaction.Data),
			Value:    normalizeTransactionValue(resp.Transaction.Value),
			GasLimit: resp.Transaction.Gas,
			GasPrice: resp.Transaction.GasPrice,
			ChainID:  req.FromChain.EVMChainID,
		},
		AllowanceTarget: allowanceTarget,
	}
	quote.Allowance = allowanceFromIssues(req, resp.Issues, false)
	return quote, nil
}

type submitResponse struct {
	TradeHash string `json:"tradeHash"`
}

func (c *Client) SubmitGasless(ctx context.Context, sub providers.GaslessSubmission) (string, error) {
	body := map[string]any{
		"chainId": sub.ChainID,
		"trade":   sub.Trade,
	}
	if sub.Approval != nil {
		body["approval"] = sub.Approval
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode gasless submit request", err)
	}

	var resp submitResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/gasless/submit", buf, c.headerMap(), &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.TradeHash) == "" {
		return "", clierr.New(clierr.CodeUnavailable, "gasless submit response missing trade hash")
	}
	return resp.TradeHash, nil
}

type statusResponse struct {
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	Transactions []struct {
		Hash      string `json:"hash"`
		Timestamp int64  `json:"timestamp"`
	} `json:"transactions"`
}

func (c *Client) GaslessStatus(ctx context.Context, chainID int64, tradeHash string) (providers.TradeStatus, error) {
	tradeHash = strings.TrimSpace(tradeHash)
	if tradeHash == "" {
		return providers.TradeStatus{}, clierr.New(clierr.CodeUsage, "trade hash is required")
	}
	vals := url.Values{}
	vals.Set("chainId", strconv.FormatInt(chainID, 10))

	reqURL := c.baseURL + "/gasless/status/" + url.PathEscape(tradeHash) + "?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return providers.TradeStatus{}, clierr.Wrap(clierr.CodeInternal, "build gasless status request", err)
	}
	c.setHeaders(hReq)

	var resp statusResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return providers.TradeStatus{}, err
	}

	out := providers.TradeStatus{Status: strings.ToLower(strings.TrimSpace(resp.Status)), Reason: resp.Reason}
	for _, tx := range resp.Transactions {
		if strings.TrimSpace(tx.Hash) != "" {
			out.TransactionHash = tx.Hash
			break
		}
	}
	return out, nil
}

func (c *Client) quoteValues(req providers.QuoteRequest) url.Values {
	vals := url.Values{}
	vals.Set("chainId", strconv.FormatInt(req.FromChain.EVMChainID, 10))
	vals.Set("sellToken", req.Sell.Address)
	vals.Set("buyToken", req.Buy.Address)
	vals.Set("sellAmount", req.AmountBaseUnits)
	if strings.TrimSpace(req.Taker) != "" {
		vals.Set("taker", req.Taker)
	}
	if req.SlippageBps > 0 {
		vals.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	}
	if strings.TrimSpace(req.FeeRecipient) != "" && req.FeeBps > 0 {
		vals.Set("swapFeeRecipient", req.FeeRecipient)
		vals.Set("swapFeeBps", strconv.Itoa(req.FeeBps))
		vals.Set("swapFeeToken", feeTokenAddress(req))
	}
	return vals
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("0x-api-key", c.apiKey)
	}
	req.Header.Set("0x-version", "v2")
}

func (c *Client) headerMap() map[string]string {
	headers := map[string]string{"0x-version": "v2"}
	if c.apiKey != "" {
		headers["0x-api-key"] = c.apiKey
	}
	return headers
}

func (c *Client) baseQuote(req providers.QuoteRequest, path, sellAmount, buyAmount, minBuy string) model.Quote {
	if strings.TrimSpace(sellAmount) == "" {
		sellAmount = req.AmountBaseUnits
	}
	quote := model.Quote{
		Path:       path,
		Provider:   "0x",
		Sell:       assetRef(req.FromChain, req.Sell),
		Buy:        assetRef(req.FromChain, req.Buy),
		SellAmount: amountInfo(sellAmount, req.Sell.Decimals),
		BuyAmount:  amountInfo(buyAmount, req.Buy.Decimals),
		ReceivedAt: c.now().UTC(),
		TTLSeconds: 30,
	}
	if strings.TrimSpace(minBuy) != "" {
		mb := amountInfo(minBuy, req.Buy.Decimals)
		quote.MinBuy = &mb
	}
	return quote
}

// Fee token preference mirrors quote resolution: a stable side first, then
// the buy token, then the sell token.
func feeTokenAddress(req providers.QuoteRequest) string {
	if id.IsStableSymbol(req.Sell.Symbol) {
		return req.Sell.Address
	}
	if id.IsStableSymbol(req.Buy.Symbol) {
		return req.Buy.Address
	}
	if !req.Buy.IsNative() {
		return req.Buy.Address
	}
	return req.Sell.Address
}

func allowanceFromIssues(req providers.QuoteRequest, issues quoteIssues, gaslessSignable bool) *model.AllowanceRequirement {
	if issues.Allowance == nil {
		return nil
	}
	return &model.AllowanceRequirement{
		Token:           req.Sell.Address,
		Spender:         issues.Allowance.Spender,
		RequiredBase:    req.AmountBaseUnits,
		CurrentBase:     issues.Allowance.Actual,
		GaslessSignable: gaslessSignable,
	}
}

func feesFromGasless(resp gaslessQuoteResponse, req providers.QuoteRequest) *model.FeeBreakdown {
	out := &model.FeeBreakdown{}
	any := false
	if fee := feeAmount(resp.Fees.IntegratorFee, req); fee != nil {
		out.IntegratorFee = fee
		any = true
	}
	if fee := feeAmount(resp.Fees.GasFee, req); fee != nil {
		out.GasFee = fee
		any = true
	}
	if !any {
		return nil
	}
	return out
}

func feeAmount(entry *feeEntry, req providers.QuoteRequest) *model.FeeAmount {
	if entry == nil || strings.TrimSpace(entry.Amount) == "" || entry.Amount == "0" {
		return nil
	}
	decimals := req.Sell.Decimals
	symbol := req.Sell.Symbol
	if strings.EqualFold(entry.Token, req.Buy.Address) {
		decimals = req.Buy.Decimals
		symbol = req.Buy.Symbol
	}
	return &model.FeeAmount{
		Symbol:          symbol,
		AmountBaseUnits: entry.Amount,
		AmountDecimal:   formatBase(entry.Amount, decimals),
	}
}

func assetRef(chain id.Chain, asset id.Asset) model.AssetRef {
	return model.AssetRef{
		ChainID:   asset.ChainID,
		ChainSlug: chain.Slug,
		AssetID:   asset.AssetID,
		Address:   asset.Address,
		Symbol:    asset.Symbol,
		Decimals:  asset.Decimals,
		Native:    asset.IsNative(),
	}
}

func amountInfo(baseUnits string, decimals int) model.AmountInfo {
	baseUnits = strings.TrimSpace(baseUnits)
	if baseUnits == "" {
		baseUnits = "0"
	}
	return model.AmountInfo{
		AmountBaseUnits: baseUnits,
		AmountDecimal:   formatBase(baseUnits, decimals),
		Decimals:        decimals,
	}
}

func formatBase(baseUnits string, decimals int) string {
	_, dec, err := id.NormalizeAmount(baseUnits, "", decimals)
	if err != nil {
		return ""
	}
	return dec
}

func ensureHexPrefix(v string) string {
	clean := strings.TrimSpace(v)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		return clean
	}
	return "0x" + clean
}

func normalizeTransactionValue(v string) string {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0"
	}
	return clean
}
