package quote

import (
	"context"
	"testing"
	"time"

	"github.com/nmorales94/swapflow/internal/model"
)

func TestWatcherRefreshesWhenIdle(t *testing.T) {
	eth := mustChain(t, "ethereum")
	gasless := &fakeGasless{quote: model.Quote{Path: model.PathGaslessSameChain, TTLSeconds: 30}}
	r := &Resolver{Gasless: gasless, Swap: &fakeSwap{}, Bridge: &fakeBridge{}}

	got := make(chan model.Quote, 1)
	w := &Watcher{
		Resolver: r,
		Req: Request{
			FromChain:     eth,
			ToChain:       eth,
			Sell:          mustAsset(t, "USDC", eth),
			Buy:           mustAsset(t, "WETH", eth),
			AmountDecimal: "10",
		},
		Interval: 5 * time.Millisecond,
		InFlight: func() bool { return false },
		OnQuote: func(q model.Quote) {
			select {
			case got <- q:
			default:
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.RefreshLoop(ctx)

	select {
	case q := <-got:
		if q.Path != model.PathGaslessSameChain {
			t.Fatalf("unexpected refreshed quote: %+v", q)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher never refreshed")
	}
}

func TestWatcherSuppressedWhileAttemptInFlight(t *testing.T) {
	eth := mustChain(t, "ethereum")
	gasless := &fakeGasless{quote: model.Quote{Path: model.PathGaslessSameChain}}
	r := &Resolver{Gasless: gasless, Swap: &fakeSwap{}, Bridge: &fakeBridge{}}

	w := &Watcher{
		Resolver: r,
		Req: Request{
			FromChain:     eth,
			ToChain:       eth,
			Sell:          mustAsset(t, "USDC", eth),
			Buy:           mustAsset(t, "WETH", eth),
			AmountDecimal: "10",
		},
		Interval: 2 * time.Millisecond,
		InFlight: func() bool { return true },
		OnQuote: func(model.Quote) {
			t.Error("refresh must not run while an attempt is in flight")
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	w.RefreshLoop(ctx)

	if gasless.calls != 0 {
		t.Fatalf("expected no resolver calls while in flight, got %d", gasless.calls)
	}
}
