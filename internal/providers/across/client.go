package across

import (
	"context"
	"fmt"
	"math/big"
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

const defaultBase = "https://app.across.to/api"

type Client struct {
	http    *httpx.Client
	baseURL string
	now     func() time.Time
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBase, now: time.Now}
}

func (c *Client) SetBaseURL(u string) {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u != "" {
		c.baseURL = u
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "across",
		Type:        "bridge",
		RequiresKey: false,
		Capabilities: []string{
			"bridge.quote",
			"bridge.execute",
		},
	}
}

type swapApprovalResponse struct {
	ApprovalTxns []struct {
		ChainID int64  `json:"chainId"`
		To      string `json:"to"`
		Data    string `json:"data"`
		Value   string `json:"value"`
	} `json:"approvalTxns"`
	SwapTx struct {
		ChainID int64  `json:"chainId"`
		To      string `json:"to"`
		Data    string `json:"data"`
		Value   string `json:"value"`
	} `json:"swapTx"`
	MinOutputAmount      string `json:"minOutputAmount"`
	ExpectedOutputAmount string `json:"expectedOutputAmount"`
	ExpectedFillTime     int64  `json:"expectedFillTime"`
	Fees                 struct {
		Total struct {
			Amount    string `json:"amount"`
			AmountUSD string `json:"amountUsd"`
		} `json:"total"`
		RelayerTotal struct {
			Amount string `json:"amount"`
		} `json:"relayerTotal"`
		LPFee struct {
			Amount string `json:"amount"`
		} `json:"lpFee"`
	} `json:"fees"`
}

// QuoteBridge gets a ready-to-sign deposit route. Amounts must already be in
// ERC-20 terms; native sides are substituted with wrapped-native upstream.
func (c *Client) QuoteBridge(ctx context.Context, req providers.QuoteRequest) (model.Quote, error) {
	if !req.FromChain.IsEVM() || !req.ToChain.IsEVM() {
		return model.Quote{}, clierr.New(clierr.CodeUnsupported, "across bridge routes support only EVM chains")
	}
	taker := strings.TrimSpace(req.Taker)
	if taker == "" {
		return model.Quote{}, clierr.New(clierr.CodeUsage, "bridge quote requires sender address")
	}
	if !common.IsHexAddress(taker) {
		return model.Quote{}, clierr.New(clierr.CodeUsage, "bridge sender must be a valid EVM address")
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		recipient = taker
	}
	if !common.IsHexAddress(recipient) {
		return model.Quote{}, clierr.New(clierr.CodeUsage, "bridge recipient must be a valid EVM address")
	}
	if !common.IsHexAddress(req.Sell.Address) || !common.IsHexAddress(req.Buy.Address) {
		return model.Quote{}, clierr.New(clierr.CodeUsage, "bridge routes require ERC20 token addresses")
	}
	slippageBps := req.SlippageBps
	if slippageBps <= 0 {
		slippageBps = 50
	}
	if slippageBps >= 10_000 {
		return model.Quote{}, clierr.New(clierr.CodeUsage, "slippage bps must be less than 10000")
	}

	if err := c.checkLimits(ctx, req); err != nil {
		return model.Quote{}, err
	}

	vals := url.Values{}
	vals.Set("amount", req.AmountBaseUnits)
	vals.Set("inputToken", req.Sell.Address)
	vals.Set("outputToken", req.Buy.Address)
	vals.Set("originChainId", strconv.FormatInt(req.FromChain.EVMChainID, 10))
	vals.Set("destinationChainId", strconv.FormatInt(req.ToChain.EVMChainID, 10))
	vals.Set("depositor", taker)
	vals.Set("recipient", recipient)
	vals.Set("slippage", formatSlippage(slippageBps))

	reqURL := c.baseURL + "/swap/approval?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Quote{}, clierr.Wrap(clierr.CodeInternal, "build across route request", err)
	}
	var resp swapApprovalResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return model.Quote{}, err
	}
	if strings.TrimSpace(resp.SwapTx.To) == "" || strings.TrimSpace(resp.SwapTx.Data) == "" {
		return model.Quote{}, clierr.New(clierr.CodeUnavailable, "across route response missing deposit transaction")
	}
	if resp.SwapTx.ChainID != 0 && resp.SwapTx.ChainID != req.FromChain.EVMChainID {
		return model.Quote{}, clierr.New(clierr.CodePlan, "across deposit transaction chain does not match source chain")
	}

	expectedOut := firstNonEmpty(resp.ExpectedOutputAmount, resp.MinOutputAmount)
	if expectedOut == "" {
		return model.Quote{}, clierr.New(clierr.CodeUnavailable, "across route response missing output amount")
	}

	payload := model.BridgePayload{
		SwapTx: model.TxRequest{
			To:      common.HexToAddress(resp.SwapTx.To).Hex(),
			Data:    ensureHexPrefix(resp.SwapTx.Data),
			Value:   normalizeTransactionValue(resp.SwapTx.Value),
			ChainID: req.FromChain.EVMChainID,
		},
		DestinationChainID: req.ToChain.CAIP2,
		EstimatedFillTimeS: resp.ExpectedFillTime,
	}
	for _, approval := range resp.ApprovalTxns {
		if strings.TrimSpace(approval.To) == "" || strings.TrimSpace(approval.Data) == "" {
			continue
		}
		if approval.ChainID != 0 && approval.ChainID != req.FromChain.EVMChainID {
			continue
		}
		payload.ApprovalTxns = append(payload.ApprovalTxns, model.TxRequest{
			To:      common.HexToAddress(approval.To).Hex(),
			Data:    ensureHexPrefix(approval.Data),
			Value:   normalizeTransactionValue(approval.Value),
			ChainID: req.FromChain.EVMChainID,
		})
	}

	quote := model.Quote{
		Path:       model.PathBridgeCrossChain,
		Provider:   "across",
		Sell:       assetRef(req.FromChain, req.Sell),
		Buy:        assetRef(req.ToChain, req.Buy),
		SellAmount: amountInfo(req.AmountBaseUnits, req.Sell.Decimals),
		BuyAmount:  amountInfo(expectedOut, req.Buy.Decimals),
		ReceivedAt: c.now().UTC(),
		TTLSeconds: 30,
		Exec:       payload,
	}
	if strings.TrimSpace(resp.MinOutputAmount) != "" {
		mb := amountInfo(resp.MinOutputAmount, req.Buy.Decimals)
		quote.MinBuy = &mb
	}
	if len(payload.ApprovalTxns) > 0 {
		quote.Allowance = &model.AllowanceRequirement{
			Token:        req.Sell.Address,
			Spender:      payload.ApprovalTxns[0].To,
			RequiredBase: req.AmountBaseUnits,
		}
	}
	quote.Fees = feesFromRoute(resp, req)
	return quote, nil
}

func (c *Client) checkLimits(ctx context.Context, req providers.QuoteRequest) error {
	vals := url.Values{}
	vals.Set("originChainId", strconv.FormatInt(req.FromChain.EVMChainID, 10))
	vals.Set("destinationChainId", strconv.FormatInt(req.ToChain.EVMChainID, 10))
	vals.Set("token", req.Sell.Address)
	vals.Set("amount", req.AmountBaseUnits)

	limitsURL := c.baseURL + "/limits?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, limitsURL, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build across limits request", err)
	}

	var limits struct {
		MinDeposit string `json:"minDeposit"`
		MaxDeposit string `json:"maxDeposit"`
	}
	if _, err := c.http.DoJSON(ctx, hReq, &limits); err != nil {
		return err
	}

	if limits.MinDeposit != "" && compareBaseUnits(req.AmountBaseUnits, limits.MinDeposit) < 0 {
		minDec := formatBase(limits.MinDeposit, req.Sell.Decimals)
		return clierr.New(clierr.CodeBelowMinimum, fmt.Sprintf("amount below bridge minimum of %s %s", minDec, req.Sell.Symbol))
	}
	if limits.MaxDeposit != "" && compareBaseUnits(req.AmountBaseUnits, limits.MaxDeposit) > 0 {
		return clierr.New(clierr.CodeUsage, "amount exceeds bridge deposit limit")
	}
	return nil
}

func feesFromRoute(resp swapApprovalResponse, req providers.QuoteRequest) *model.FeeBreakdown {
	out := &model.FeeBreakdown{}
	any := false
	if fee := feeAmountFromBase(resp.Fees.RelayerTotal.Amount, req.Sell.Decimals, req.Sell.Symbol); fee != nil {
		out.RelayerFee = fee
		any = true
	}
	if fee := feeAmountFromBase(resp.Fees.LPFee.Amount, req.Sell.Decimals, req.Sell.Symbol); fee != nil {
		out.LPFee = fee
		any = true
	}
	if usd := strings.TrimSpace(resp.Fees.Total.AmountUSD); usd != "" {
		if v, err := strconv.ParseFloat(usd, 64); err == nil && v > 0 {
			out.TotalFeeUSD = v
			any = true
		}
	}
	if !any {
		return nil
	}
	return out
}

func feeAmountFromBase(amountBase string, decimals int, symbol string) *model.FeeAmount {
	amountBase = trimLeadingZeros(strings.TrimSpace(amountBase))
	if amountBase == "" || amountBase == "0" {
		return nil
	}
	return &model.FeeAmount{
		Symbol:          symbol,
		AmountBaseUnits: amountBase,
		AmountDecimal:   formatBase(amountBase, decimals),
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

func compareBaseUnits(a, b string) int {
	a = trimLeadingZeros(a)
	b = trimLeadingZeros(b)
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func trimLeadingZeros(v string) string {
	v = strings.TrimLeft(v, "0")
	if v == "" {
		return "0"
	}
	return v
}

func formatSlippage(bps int) string {
	return strconv.FormatFloat(float64(bps)/10000, 'f', 6, 64)
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
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		n := new(big.Int)
		if _, ok := n.SetString(clean[2:], 16); ok {
			return n.String()
		}
		return "0"
	}
	if n, ok := new(big.Int).SetString(clean, 10); ok {
		return n.String()
	}
	return "0"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
