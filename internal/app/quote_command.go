package app

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/id"
	"github.com/nmorales94/swapflow/internal/model"
	"github.com/nmorales94/swapflow/internal/quote"
	"github.com/spf13/cobra"
)

type quoteArgs struct {
	fromChain  string
	toChain    string
	sell       string
	buy        string
	amount     string
	amountBase string
	amountUSD  float64
	taker      string
	recipient  string
}

func (a *quoteArgs) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.fromChain, "from-chain", "", "Source chain (slug, chain id, or CAIP-2)")
	cmd.Flags().StringVar(&a.toChain, "to-chain", "", "Destination chain (defaults to the source chain)")
	cmd.Flags().StringVar(&a.sell, "sell", "", "Asset to sell (ticker, symbol, address, or CAIP-19)")
	cmd.Flags().StringVar(&a.buy, "buy", "", "Asset to buy (ticker, symbol, address, or CAIP-19)")
	cmd.Flags().StringVar(&a.amount, "amount", "", "Sell amount in decimal units")
	cmd.Flags().StringVar(&a.amountBase, "amount-base", "", "Sell amount in base units")
	cmd.Flags().Float64Var(&a.amountUSD, "amount-usd", 0, "Sell amount in USD, converted at the current price")
	cmd.Flags().StringVar(&a.taker, "taker", "", "Taker address (defaults to the configured wallet)")
	cmd.Flags().StringVar(&a.recipient, "recipient", "", "Recipient address (defaults to the taker)")
	_ = cmd.MarkFlagRequired("from-chain")
	_ = cmd.MarkFlagRequired("sell")
	_ = cmd.MarkFlagRequired("buy")
}

func (a *quoteArgs) toRequest() (quote.Request, error) {
	set := 0
	for _, present := range []bool{
		strings.TrimSpace(a.amount) != "",
		strings.TrimSpace(a.amountBase) != "",
		a.amountUSD > 0,
	} {
		if present {
			set++
		}
	}
	if set == 0 {
		return quote.Request{}, clierr.New(clierr.CodeUsage, "one of --amount, --amount-base, or --amount-usd is required")
	}
	if set > 1 {
		return quote.Request{}, clierr.New(clierr.CodeUsage, "--amount, --amount-base, and --amount-usd are mutually exclusive")
	}

	fromChain, err := id.ParseChain(a.fromChain)
	if err != nil {
		return quote.Request{}, err
	}
	toChain := fromChain
	if strings.TrimSpace(a.toChain) != "" {
		toChain, err = id.ParseChain(a.toChain)
		if err != nil {
			return quote.Request{}, err
		}
	}
	sell, err := id.ParseAsset(a.sell, fromChain)
	if err != nil {
		return quote.Request{}, err
	}
	buy, err := id.ParseAsset(a.buy, toChain)
	if err != nil {
		return quote.Request{}, err
	}

	return quote.Request{
		FromChain:       fromChain,
		ToChain:         toChain,
		Sell:            sell,
		Buy:             buy,
		AmountBaseUnits: strings.TrimSpace(a.amountBase),
		AmountDecimal:   strings.TrimSpace(a.amount),
		AmountUSD:       a.amountUSD,
		Taker:           strings.TrimSpace(a.taker),
		Recipient:       strings.TrimSpace(a.recipient),
	}, nil
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var args quoteArgs
	var watch bool
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch a swap quote without executing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := args.toRequest()
			if err != nil {
				return err
			}
			start := time.Now()
			q, err := s.resolver.Resolve(cmd.Context(), req)
			latency := time.Since(start).Milliseconds()
			if err != nil {
				return err
			}
			status := []model.ProviderStatus{{Name: q.Provider, Status: "ok", LatencyMS: latency}}
			if err := s.emitSuccess(trimRootPath(cmd.CommandPath()), q, nil, status); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return s.watchQuote(cmd, req)
		},
	}
	args.register(cmd)
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep refreshing the quote until interrupted")
	return cmd
}

// watchQuote re-resolves on the configured TTL interval and re-emits each
// refresh until the user interrupts.
func (s *runtimeState) watchQuote(cmd *cobra.Command, req quote.Request) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &quote.Watcher{
		Resolver: s.resolver,
		Req:      req,
		Interval: s.settings.QuoteTTL,
		OnQuote: func(q model.Quote) {
			status := []model.ProviderStatus{{Name: q.Provider, Status: "ok"}}
			_ = s.emitSuccess(trimRootPath(cmd.CommandPath()), q, nil, status)
		},
		OnError: func(err error) {
			s.renderError(trimRootPath(cmd.CommandPath()), err)
		},
	}
	w.RefreshLoop(ctx)
	return nil
}
