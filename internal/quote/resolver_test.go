package quote

import (
	"context"
	"strings"
	"testing"
	"time"

	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/id"
	"github.com/nmorales94/swapflow/internal/model"
	"github.com/nmorales94/swapflow/internal/providers"
)

type fakeGasless struct {
	lastReq providers.QuoteRequest
	quote   model.Quote
	err     error
	calls   int
}

func (f *fakeGasless) Info() model.ProviderInfo { return model.ProviderInfo{Name: "fake-gasless"} }

func (f *fakeGasless) QuoteGasless(_ context.Context, req providers.QuoteRequest) (model.Quote, error) {
	f.calls++
	f.lastReq = req
	return f.quote, f.err
}

func (f *fakeGasless) SubmitGasless(context.Context, providers.GaslessSubmission) (string, error) {
	return "", nil
}

func (f *fakeGasless) GaslessStatus(context.Context, int64, string) (providers.TradeStatus, error) {
	return providers.TradeStatus{}, nil
}

type fakeSwap struct {
	quote model.Quote
	calls int
}

func (f *fakeSwap) Info() model.ProviderInfo { return model.ProviderInfo{Name: "fake-swap"} }

func (f *fakeSwap) QuoteSwap(_ context.Context, req providers.QuoteRequest) (model.Quote, error) {
	f.calls++
	return f.quote, nil
}

type fakeBridge struct {
	lastReq providers.QuoteRequest
	quote   model.Quote
	calls   int
}

func (f *fakeBridge) Info() model.ProviderInfo { return model.ProviderInfo{Name: "fake-bridge"} }

func (f *fakeBridge) QuoteBridge(_ context.Context, req providers.QuoteRequest) (model.Quote, error) {
	f.calls++
	f.lastReq = req
	return f.quote, nil
}

func mustChain(t *testing.T, input string) id.Chain {
	t.Helper()
	chain, err := id.ParseChain(input)
	if err != nil {
		t.Fatalf("ParseChain(%s): %v", input, err)
	}
	return chain
}

func mustAsset(t *testing.T, input string, chain id.Chain) id.Asset {
	t.Helper()
	asset, err := id.ParseAsset(input, chain)
	if err != nil {
		t.Fatalf("ParseAsset(%s): %v", input, err)
	}
	return asset
}

func TestSelectPathIsPureAndOrdered(t *testing.T) {
	eth := mustChain(t, "ethereum")
	base := mustChain(t, "base")
	sol := mustChain(t, "solana")

	nativeETH := mustAsset(t, "ETH", eth)
	weth := mustAsset(t, "WETH", eth)
	usdc := mustAsset(t, "USDC", eth)
	usdcBase := mustAsset(t, "USDC", base)
	solUSDC := mustAsset(t, "USDC", sol)
	solSOL := mustAsset(t, "SOL", sol)

	cases := []struct {
		name      string
		fromChain id.Chain
		toChain   id.Chain
		sell, buy id.Asset
		want      string
	}{
		{"wrap", eth, eth, nativeETH, weth, model.PathWrap},
		{"unwrap", eth, eth, weth, nativeETH, model.PathUnwrap},
		{"gasless erc20 pair", eth, eth, usdc, weth, model.PathGaslessSameChain},
		{"native sell goes onchain", eth, eth, nativeETH, usdc, model.PathOnchainSameChain},
		{"native buy goes onchain", eth, eth, usdc, nativeETH, model.PathOnchainSameChain},
		{"solana same chain", sol, sol, solUSDC, solSOL, model.PathOnchainSameChain},
		{"cross chain", eth, base, usdc, usdcBase, model.PathBridgeCrossChain},
	}
	for _, tc := range cases {
		for i := 0; i < 3; i++ {
			got, err := SelectPath(tc.fromChain, tc.toChain, tc.sell, tc.buy)
			if err != nil {
				t.Fatalf("%s: SelectPath failed: %v", tc.name, err)
			}
			if got != tc.want {
				t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
			}
		}
	}

	if _, err := SelectPath(eth, sol, usdc, solUSDC); !clierr.HasCode(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported for cross-chain solana, got %v", err)
	}
}

func TestResolveBelowMinimumBeforeProviderCall(t *testing.T) {
	eth := mustChain(t, "ethereum")
	gasless := &fakeGasless{}
	r := &Resolver{Gasless: gasless, Swap: &fakeSwap{}, Bridge: &fakeBridge{}}

	_, err := r.Resolve(context.Background(), Request{
		FromChain:     eth,
		ToChain:       eth,
		Sell:          mustAsset(t, "WETH", eth),
		Buy:           mustAsset(t, "USDC", eth),
		AmountDecimal: "0.0005",
	})
	if !clierr.HasCode(err, clierr.CodeBelowMinimum) {
		t.Fatalf("expected below-minimum error, got %v", err)
	}
	if !strings.Contains(err.Error(), "minimum 0.001 WETH") {
		t.Fatalf("error must name the minimum, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "entered 0.0005 WETH") {
		t.Fatalf("error must name the entered amount, got %q", err.Error())
	}
	if gasless.calls != 0 {
		t.Fatalf("provider must not be called for below-minimum amounts, got %d calls", gasless.calls)
	}
}

func TestResolveWrapIsLocalAndExact(t *testing.T) {
	eth := mustChain(t, "ethereum")
	gasless := &fakeGasless{}
	swap := &fakeSwap{}
	r := &Resolver{Gasless: gasless, Swap: swap, Bridge: &fakeBridge{}}

	got, err := r.Resolve(context.Background(), Request{
		FromChain:     eth,
		ToChain:       eth,
		Sell:          mustAsset(t, "ETH", eth),
		Buy:           mustAsset(t, "WETH", eth),
		AmountDecimal: "1.5",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Path != model.PathWrap {
		t.Fatalf("unexpected path: %s", got.Path)
	}
	if got.BuyAmount.AmountDecimal != "1.5" || got.BuyAmount.AmountBaseUnits != "1500000000000000000" {
		t.Fatalf("wrap output must equal input exactly: %+v", got.BuyAmount)
	}
	if got.Fees != nil {
		t.Fatalf("wrap quote must carry no fees: %+v", got.Fees)
	}
	if got.TTLSeconds != 0 {
		t.Fatalf("wrap quote must not expire, ttl=%d", got.TTLSeconds)
	}
	if gasless.calls+swap.calls != 0 {
		t.Fatal("wrap must not call any provider")
	}
	payload, ok := got.Exec.(model.WrapPayload)
	if !ok || payload.Direction != model.PathWrap {
		t.Fatalf("unexpected exec payload: %+v", got.Exec)
	}
}

func TestResolveBridgeSubstitutesWrappedNative(t *testing.T) {
	eth := mustChain(t, "ethereum")
	base := mustChain(t, "base")
	bridge := &fakeBridge{quote: model.Quote{Path: model.PathBridgeCrossChain, TTLSeconds: 30}}
	r := &Resolver{Gasless: &fakeGasless{}, Swap: &fakeSwap{}, Bridge: bridge}

	nativeETH := mustAsset(t, "ETH", eth)
	got, err := r.Resolve(context.Background(), Request{
		FromChain:     eth,
		ToChain:       base,
		Sell:          nativeETH,
		Buy:           mustAsset(t, "USDC", base),
		AmountDecimal: "1",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	wrapped, _ := id.WrappedNative(eth.CAIP2)
	if bridge.lastReq.Sell.Address != wrapped.Address {
		t.Fatalf("expected wrapped-native substitution, provider saw %s", bridge.lastReq.Sell.Address)
	}
	// User-facing side stays native.
	if !got.Sell.Native || got.Sell.Symbol != "ETH" {
		t.Fatalf("expected native sell in result, got %+v", got.Sell)
	}
}

func TestResolveGaslessPassesFeeConfig(t *testing.T) {
	eth := mustChain(t, "ethereum")
	gasless := &fakeGasless{quote: model.Quote{Path: model.PathGaslessSameChain, TTLSeconds: 30}}
	r := &Resolver{
		Gasless:      gasless,
		Swap:         &fakeSwap{},
		Bridge:       &fakeBridge{},
		SlippageBps:  75,
		FeeRecipient: "0x00000000000000000000000000000000000000FE",
		FeeBps:       15,
		TTL:          30 * time.Second,
	}

	got, err := r.Resolve(context.Background(), Request{
		FromChain:     eth,
		ToChain:       eth,
		Sell:          mustAsset(t, "USDC", eth),
		Buy:           mustAsset(t, "WETH", eth),
		AmountDecimal: "10",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if gasless.lastReq.FeeRecipient == "" || gasless.lastReq.FeeBps != 15 {
		t.Fatalf("fee config not forwarded: %+v", gasless.lastReq)
	}
	if gasless.lastReq.SlippageBps != 75 {
		t.Fatalf("slippage not forwarded: %d", gasless.lastReq.SlippageBps)
	}
	if gasless.lastReq.AmountBaseUnits != "10000000" {
		t.Fatalf("amount not normalized: %s", gasless.lastReq.AmountBaseUnits)
	}
	if got.TTLSeconds != 30 {
		t.Fatalf("unexpected ttl: %d", got.TTLSeconds)
	}
}

func TestMinimumPolicyDefaultsAndOverrides(t *testing.T) {
	eth := mustChain(t, "ethereum")
	usdc := mustAsset(t, "USDC", eth)
	weth := mustAsset(t, "WETH", eth)
	wbtc := mustAsset(t, "WBTC", eth)

	policy := MinimumPolicy{}
	if base, dec := policy.MinimumFor(usdc); base.String() != "1000000" || dec != "1" {
		t.Fatalf("unexpected stable minimum: %v %s", base, dec)
	}
	if base, dec := policy.MinimumFor(weth); base.String() != "1000000000000000" || dec != "0.001" {
		t.Fatalf("unexpected 18-decimal minimum: %v %s", base, dec)
	}
	if base, _ := policy.MinimumFor(wbtc); base != nil {
		t.Fatalf("expected no minimum for 8-decimal non-stable, got %v", base)
	}

	override := MinimumPolicy{Overrides: map[string]string{usdc.AssetID: "5"}}
	if base, dec := override.MinimumFor(usdc); base.String() != "5000000" || dec != "5" {
		t.Fatalf("unexpected override minimum: %v %s", base, dec)
	}
}

func TestQuoteExpiry(t *testing.T) {
	now := time.Now()
	q := model.Quote{ReceivedAt: now, TTLSeconds: 30}
	if q.Expired(now.Add(29 * time.Second)) {
		t.Fatal("quote must still be fresh at 29s")
	}
	if !q.Expired(now.Add(31 * time.Second)) {
		t.Fatal("quote must be expired at 31s")
	}

	wrap := model.Quote{ReceivedAt: now, TTLSeconds: 0}
	if wrap.Expired(now.Add(24 * time.Hour)) {
		t.Fatal("wrap quotes must never expire")
	}
}
