package app

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/nmorales94/swapflow/internal/engine"
	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/history"
	"github.com/nmorales94/swapflow/internal/id"
	"github.com/nmorales94/swapflow/internal/model"
	"github.com/nmorales94/swapflow/internal/quote"
	"github.com/nmorales94/swapflow/internal/wallet"
	"github.com/spf13/cobra"
)

// executionResult is the data payload emitted after an attempt reaches a
// terminal status.
type executionResult struct {
	Status          string      `json:"status"`
	Path            string      `json:"path"`
	Provider        string      `json:"provider"`
	ApprovalTxHash  string      `json:"approval_tx_hash,omitempty"`
	TradeHash       string      `json:"trade_hash,omitempty"`
	TransactionHash string      `json:"transaction_hash,omitempty"`
	Message         string      `json:"message,omitempty"`
	Quote           model.Quote `json:"quote"`
}

// execFlags tune a single execution run without touching the config file.
type execFlags struct {
	rpcURL        string
	pollInterval  time.Duration
	pollAttempts  int
	gasMultiplier float64
	confirmBridge bool
}

func (f *execFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.rpcURL, "rpc-url", "", "RPC endpoint override for the source chain")
	cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", 0, "Receipt polling interval")
	cmd.Flags().IntVar(&f.pollAttempts, "poll-attempts", 0, "Maximum receipt polling attempts")
	cmd.Flags().Float64Var(&f.gasMultiplier, "gas-multiplier", 0, "Gas estimate safety multiplier")
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var args quoteArgs
	var ef execFlags
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Quote and execute a swap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := args.toRequest()
			if err != nil {
				return err
			}
			return s.runExecute(cmd, req, ef)
		},
	}
	args.register(cmd)
	ef.register(cmd)
	cmd.Flags().BoolVar(&ef.confirmBridge, "confirm", false, "Acknowledge a cross-chain deposit when running with --yes")
	return cmd
}

func (s *runtimeState) newWrapCommand() *cobra.Command {
	var chainArg, amount, amountBase string
	var ef execFlags
	cmd := &cobra.Command{
		Use:   "wrap",
		Short: "Wrap the native coin into its wrapped token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := s.wrapRequest(chainArg, amount, amountBase, false)
			if err != nil {
				return err
			}
			return s.runExecute(cmd, req, ef)
		},
	}
	ef.register(cmd)
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain (slug, chain id, or CAIP-2)")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in decimal units")
	cmd.Flags().StringVar(&amountBase, "amount-base", "", "Amount in base units")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func (s *runtimeState) newUnwrapCommand() *cobra.Command {
	var chainArg, amount, amountBase string
	var ef execFlags
	cmd := &cobra.Command{
		Use:   "unwrap",
		Short: "Unwrap the wrapped token back into the native coin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := s.wrapRequest(chainArg, amount, amountBase, true)
			if err != nil {
				return err
			}
			return s.runExecute(cmd, req, ef)
		},
	}
	ef.register(cmd)
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain (slug, chain id, or CAIP-2)")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in decimal units")
	cmd.Flags().StringVar(&amountBase, "amount-base", "", "Amount in base units")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func (s *runtimeState) wrapRequest(chainArg, amount, amountBase string, unwrap bool) (quote.Request, error) {
	if strings.TrimSpace(amount) == "" && strings.TrimSpace(amountBase) == "" {
		return quote.Request{}, clierr.New(clierr.CodeUsage, "--amount or --amount-base is required")
	}
	chain, err := id.ParseChain(chainArg)
	if err != nil {
		return quote.Request{}, err
	}
	native, ok := id.NativeAsset(chain)
	if !ok {
		return quote.Request{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no native coin registered for %s", chain.CAIP2))
	}
	wrapped, ok := id.WrappedNative(chain.CAIP2)
	if !ok {
		return quote.Request{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no wrapped-native token registered for %s", chain.CAIP2))
	}
	wrappedAsset, err := id.ParseAsset(wrapped.Address, chain)
	if err != nil {
		return quote.Request{}, err
	}

	req := quote.Request{
		FromChain:       chain,
		ToChain:         chain,
		Sell:            native,
		Buy:             wrappedAsset,
		AmountBaseUnits: strings.TrimSpace(amountBase),
		AmountDecimal:   strings.TrimSpace(amount),
	}
	if unwrap {
		req.Sell, req.Buy = req.Buy, req.Sell
	}
	return req, nil
}

func (s *runtimeState) runExecute(cmd *cobra.Command, req quote.Request, ef execFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pollInterval := s.settings.PollInterval
	if ef.pollInterval > 0 {
		pollInterval = ef.pollInterval
	}
	pollAttempts := s.settings.PollAttempts
	if ef.pollAttempts > 0 {
		pollAttempts = ef.pollAttempts
	}

	rec := s.recorder()
	defer rec.Wait()

	d := &engine.Driver{
		Gasless:      s.zeroEx,
		Recorder:     rec,
		PollInterval: pollInterval,
		PollAttempts: pollAttempts,
		Now:          s.runner.now,
		FreshQuote: func(ctx context.Context) (model.Quote, error) {
			return s.resolver.Resolve(ctx, req)
		},
	}

	if req.FromChain.IsSolana() {
		key, err := s.solanaKey()
		if err != nil {
			return err
		}
		req.Taker = key.PublicKey().String()
		solanaURL := s.settings.SolanaRPCURL
		if ef.rpcURL != "" {
			solanaURL = ef.rpcURL
		}
		d.Solana = engine.NewSolanaClient(key, solanaURL)
	} else {
		w, err := s.evmWallet()
		if err != nil {
			return err
		}
		req.Taker = w.Address().Hex()
		d.Signer = w
		evm := engine.NewEVMClient(w, func(chainID int64) (string, error) {
			if ef.rpcURL != "" {
				return ef.rpcURL, nil
			}
			return engine.ResolveRPCURL(s.settings.RPCOverrides, chainID)
		})
		evm.PollInterval = pollInterval
		if ef.gasMultiplier > 0 {
			evm.GasMultiplier = ef.gasMultiplier
		}
		defer evm.Close()
		d.EVM = evm
	}

	q, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return err
	}

	if !s.settings.AutoConfirm {
		if !s.confirm(swapSummary(q)) {
			return clierr.New(clierr.CodeWalletRejected, "swap cancelled")
		}
	}
	if q.Path == model.PathBridgeCrossChain {
		// Cross-chain deposits always need a second acknowledgement on top
		// of the first confirmation; --yes alone does not grant it.
		if s.settings.AutoConfirm {
			if !ef.confirmBridge {
				return clierr.New(clierr.CodeUsage, "cross-chain deposits need an explicit acknowledgement: add --confirm, or drop --yes to confirm interactively")
			}
		} else {
			// The deposit re-confirms against a quote fetched right before
			// signing; the numbers may have moved.
			d.ConfirmBridge = func(fresh model.Quote) bool {
				return s.confirm("Updated route: " + swapSummary(fresh))
			}
		}
	}

	interactive := s.settings.OutputMode == "plain"
	var spin *spinner.Spinner
	if interactive {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.runner.stderr))
		spin.Suffix = " starting"
		spin.Start()
		defer spin.Stop()
	}
	d.OnTransition = func(a engine.Attempt) {
		if spin != nil {
			spin.Suffix = " " + string(a.Status)
		}
	}

	attempt, execErr := d.Execute(ctx, q)
	if spin != nil {
		spin.Stop()
		spin = nil
	}
	if execErr != nil {
		if interactive && attempt.Message != "" {
			color.New(color.FgRed).Fprintln(s.runner.stderr, attempt.Message)
		}
		return execErr
	}

	if interactive {
		if attempt.TransactionHash != "" {
			color.New(color.FgGreen).Fprintf(s.runner.stderr, "confirmed: %s\n", attempt.TransactionHash)
		} else {
			color.New(color.FgYellow).Fprintln(s.runner.stderr, attempt.Message)
		}
	}

	result := executionResult{
		Status:          string(attempt.Status),
		Path:            q.Path,
		Provider:        q.Provider,
		ApprovalTxHash:  attempt.ApprovalTxHash,
		TradeHash:       attempt.TradeHash,
		TransactionHash: attempt.TransactionHash,
		Message:         attempt.Message,
		Quote:           q,
	}
	var warnings []string
	if attempt.TransactionHash == "" && attempt.Message != "" {
		warnings = append(warnings, attempt.Message)
	}
	status := []model.ProviderStatus{{Name: q.Provider, Status: "ok"}}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, warnings, status)
}

// recorder returns a history recorder. When the store cannot be opened the
// recorder silently drops entries; recording never blocks execution.
func (s *runtimeState) recorder() *history.Recorder {
	store, err := s.openHistory()
	if err != nil {
		return history.NewRecorder(nil)
	}
	return history.NewRecorder(store)
}

func (s *runtimeState) evmWallet() (*wallet.LocalWallet, error) {
	cfg := wallet.ConfigFromEnv()
	if strings.TrimSpace(s.settings.EVMPrivateKey) != "" {
		cfg.PrivateKeyHex = s.settings.EVMPrivateKey
	}
	return wallet.NewLocalWallet(cfg)
}

func (s *runtimeState) solanaKey() (solana.PrivateKey, error) {
	if raw := strings.TrimSpace(s.settings.SolanaPrivateKey); raw != "" {
		key, err := solana.PrivateKeyFromBase58(raw)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "parse solana private key", err)
		}
		return key, nil
	}
	return wallet.LoadSolanaKey()
}

func (s *runtimeState) confirm(prompt string) bool {
	_, _ = fmt.Fprintf(s.runner.stderr, "%s Proceed? (y/N): ", prompt)
	reader := bufio.NewReader(s.runner.stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func swapSummary(q model.Quote) string {
	return fmt.Sprintf("Swap %s %s on %s for %s %s on %s via %s (%s).",
		q.SellAmount.AmountDecimal, q.Sell.Symbol, q.Sell.ChainID,
		q.BuyAmount.AmountDecimal, q.Buy.Symbol, q.Buy.ChainID,
		q.Provider, q.Path)
}
