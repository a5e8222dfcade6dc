package across

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/httpx"
	"github.com/nmorales94/swapflow/internal/id"
	"github.com/nmorales94/swapflow/internal/model"
	"github.com/nmorales94/swapflow/internal/providers"
)

func TestBaseUnitMathHelpers(t *testing.T) {
	if compareBaseUnits("100", "99") <= 0 {
		t.Fatal("compareBaseUnits expected 100 > 99")
	}
	if compareBaseUnits("0099", "99") != 0 {
		t.Fatal("compareBaseUnits must ignore leading zeros")
	}
	if out := normalizeTransactionValue("0x0"); out != "0" {
		t.Fatalf("unexpected hex value normalization: %s", out)
	}
	if out := normalizeTransactionValue("0xde0b6b3a7640000"); out != "1000000000000000000" {
		t.Fatalf("unexpected hex value normalization: %s", out)
	}
}

func bridgeRequest(t *testing.T) providers.QuoteRequest {
	t.Helper()
	fromChain, _ := id.ParseChain("ethereum")
	toChain, _ := id.ParseChain("base")
	sell, _ := id.ParseAsset("USDC", fromChain)
	buy, _ := id.ParseAsset("USDC", toChain)
	return providers.QuoteRequest{
		FromChain:       fromChain,
		ToChain:         toChain,
		Sell:            sell,
		Buy:             buy,
		AmountBaseUnits: "1000000",
		AmountDecimal:   "1",
		Taker:           "0x00000000000000000000000000000000000000AA",
		SlippageBps:     50,
	}
}

func TestQuoteBridgeBuildsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/limits":
			_, _ = w.Write([]byte(`{"minDeposit":"500007","maxDeposit":"1954894537806"}`))
		case "/swap/approval":
			_, _ = w.Write([]byte(`{
				"approvalTxns": [{
					"chainId": 1,
					"to": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
					"data": "095ea7b3",
					"value": "0"
				}],
				"swapTx": {
					"chainId": 1,
					"to": "0x5c7BCd6E7De5423a257D81B442095A1a6ced35C5",
					"data": "0xad5425c6",
					"value": "0x0"
				},
				"minOutputAmount": "990000",
				"expectedOutputAmount": "995000",
				"expectedFillTime": 5,
				"fees": {"total": {"amountUsd": "0.42"}, "relayerTotal": {"amount": "2533"}}
			}`))
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0))
	c.baseURL = srv.URL

	got, err := c.QuoteBridge(context.Background(), bridgeRequest(t))
	if err != nil {
		t.Fatalf("QuoteBridge failed: %v", err)
	}
	if got.Path != model.PathBridgeCrossChain {
		t.Fatalf("unexpected path: %s", got.Path)
	}
	if got.BuyAmount.AmountBaseUnits != "995000" {
		t.Fatalf("unexpected buy amount: %s", got.BuyAmount.AmountBaseUnits)
	}
	if got.MinBuy == nil || got.MinBuy.AmountBaseUnits != "990000" {
		t.Fatalf("unexpected min buy: %+v", got.MinBuy)
	}

	payload, ok := got.Exec.(model.BridgePayload)
	if !ok {
		t.Fatalf("expected bridge payload, got %T", got.Exec)
	}
	if len(payload.ApprovalTxns) != 1 {
		t.Fatalf("expected one approval txn, got %d", len(payload.ApprovalTxns))
	}
	if payload.ApprovalTxns[0].Data != "0x095ea7b3" {
		t.Fatalf("expected hex prefix on approval data, got %s", payload.ApprovalTxns[0].Data)
	}
	if payload.SwapTx.Value != "0" {
		t.Fatalf("unexpected swap tx value: %s", payload.SwapTx.Value)
	}
	if got.Allowance == nil || got.Allowance.Spender != payload.ApprovalTxns[0].To {
		t.Fatalf("unexpected allowance requirement: %+v", got.Allowance)
	}
	if got.Fees == nil || got.Fees.TotalFeeUSD != 0.42 {
		t.Fatalf("unexpected fees: %+v", got.Fees)
	}
}

func TestQuoteBridgeBelowMinimum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/limits" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"minDeposit":"5000000","maxDeposit":"1954894537806"}`))
	}))
	defer srv.Close()

	c := New(httpx.New(time.Second, 0))
	c.baseURL = srv.URL

	_, err := c.QuoteBridge(context.Background(), bridgeRequest(t))
	if !clierr.HasCode(err, clierr.CodeBelowMinimum) {
		t.Fatalf("expected below-minimum error, got %v", err)
	}
}

func TestQuoteBridgeRejectsNonEVMChains(t *testing.T) {
	req := bridgeRequest(t)
	fromChain, _ := id.ParseChain("solana")
	req.FromChain = fromChain

	c := New(httpx.New(time.Second, 0))
	_, err := c.QuoteBridge(context.Background(), req)
	if !clierr.HasCode(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported chain error, got %v", err)
	}
}
