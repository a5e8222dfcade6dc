package jupiter

import (
	"context"
	"encoding/json"
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

func solanaRequest(t *testing.T) providers.QuoteRequest {
	t.Helper()
	chain, _ := id.ParseChain("solana")
	sell, _ := id.ParseAsset("USDC", chain)
	buy, _ := id.ParseAsset("SOL", chain)
	return providers.QuoteRequest{
		FromChain:       chain,
		ToChain:         chain,
		Sell:            sell,
		Buy:             buy,
		AmountBaseUnits: "1000000",
		AmountDecimal:   "1",
		Taker:           "4Nd1mY5ZsduBP7z4Fv3jnQ3HseQk4nS7exCrAdZcfHPT",
	}
}

func TestQuoteSolanaSwapBuildsTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			if r.URL.Query().Get("inputMint") != "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" {
				t.Fatalf("unexpected input mint: %s", r.URL.Query().Get("inputMint"))
			}
			_, _ = w.Write([]byte(`{
				"inAmount": "1000000",
				"outAmount": "6200000",
				"otherAmountThreshold": "6169000",
				"priceImpactPct": "0.01",
				"routePlan": [{"swapInfo": {"label": "Orca"}}]
			}`))
		case "/swap":
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode swap body: %v", err)
			}
			if body["userPublicKey"] != "4Nd1mY5ZsduBP7z4Fv3jnQ3HseQk4nS7exCrAdZcfHPT" {
				t.Fatalf("unexpected user public key: %v", body["userPublicKey"])
			}
			_, _ = w.Write([]byte(`{
				"swapTransaction": "AQAAAA==",
				"lastValidBlockHeight": 279632475,
				"prioritizationFeeLamports": 9999
			}`))
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), "")
	c.baseURL = srv.URL

	got, err := c.QuoteSolanaSwap(context.Background(), solanaRequest(t))
	if err != nil {
		t.Fatalf("QuoteSolanaSwap failed: %v", err)
	}
	if got.Path != model.PathOnchainSameChain {
		t.Fatalf("unexpected path: %s", got.Path)
	}
	payload, ok := got.Exec.(model.SolanaPayload)
	if !ok {
		t.Fatalf("expected solana payload, got %T", got.Exec)
	}
	if payload.SwapTransaction != "AQAAAA==" || payload.LastValidBlockHeight != 279632475 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if got.MinBuy == nil || got.MinBuy.AmountBaseUnits != "6169000" {
		t.Fatalf("unexpected min buy: %+v", got.MinBuy)
	}
}

func TestQuoteSolanaSwapNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"outAmount": ""}`))
	}))
	defer srv.Close()

	c := New(httpx.New(time.Second, 0), "")
	c.baseURL = srv.URL

	_, err := c.QuoteSolanaSwap(context.Background(), solanaRequest(t))
	if !clierr.HasCode(err, clierr.CodeNoLiquidity) {
		t.Fatalf("expected no-liquidity error, got %v", err)
	}
}

func TestQuoteSolanaSwapRejectsEVMChain(t *testing.T) {
	req := solanaRequest(t)
	chain, _ := id.ParseChain("ethereum")
	req.FromChain = chain

	c := New(httpx.New(time.Second, 0), "")
	_, err := c.QuoteSolanaSwap(context.Background(), req)
	if !clierr.HasCode(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}
