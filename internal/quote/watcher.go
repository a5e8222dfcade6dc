package quote

import (
	"context"
	"time"

	"github.com/nmorales94/swapflow/internal/model"
)

// Watcher re-resolves a quote on an interval so an idle user always sees a
// fresh price. Refreshes are skipped while an execution attempt is in
// flight: the active attempt keeps the quote it started with, and the next
// idle cycle picks up the refreshed one.
type Watcher struct {
	Resolver *Resolver
	Req      Request
	Interval time.Duration

	InFlight func() bool
	OnQuote  func(model.Quote)
	OnError  func(error)
}

// RefreshLoop runs until the context is cancelled.
func (w *Watcher) RefreshLoop(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if w.InFlight != nil && w.InFlight() {
			continue
		}
		quote, err := w.Resolver.Resolve(ctx, w.Req)
		if err != nil {
			if w.OnError != nil {
				w.OnError(err)
			}
			continue
		}
		if w.OnQuote != nil {
			w.OnQuote(quote)
		}
	}
}
