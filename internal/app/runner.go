package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nmorales94/swapflow/internal/config"
	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/history"
	"github.com/nmorales94/swapflow/internal/httpx"
	"github.com/nmorales94/swapflow/internal/model"
	"github.com/nmorales94/swapflow/internal/out"
	"github.com/nmorales94/swapflow/internal/providers/across"
	"github.com/nmorales94/swapflow/internal/providers/coingecko"
	"github.com/nmorales94/swapflow/internal/providers/jupiter"
	"github.com/nmorales94/swapflow/internal/providers/zeroex"
	"github.com/nmorales94/swapflow/internal/quote"
	"github.com/nmorales94/swapflow/internal/schema"
	"github.com/nmorales94/swapflow/internal/version"
	"github.com/spf13/cobra"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithStreams(os.Stdout, os.Stderr, os.Stdin)
}

func NewRunnerWithStreams(stdout, stderr io.Writer, stdin io.Reader) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		stdin:  stdin,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string

	zeroEx        *zeroex.Client
	across        *across.Client
	jupiter       *jupiter.Client
	gecko         *coingecko.Client
	resolver      *quote.Resolver
	historyStore  *history.Store
	providerInfos []model.ProviderInfo
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if state.historyStore != nil {
		_ = state.historyStore.Close()
	}
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Non-custodial multi-path swap CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())

			if s.resolver == nil {
				httpClient := httpx.New(settings.Timeout, settings.Retries)
				s.zeroEx = zeroex.New(httpClient, settings.ZeroExAPIKey)
				s.across = across.New(httpClient)
				s.jupiter = jupiter.New(httpClient, settings.JupiterAPIKey)
				s.gecko = coingecko.New(httpClient)
				if settings.ZeroExBaseURL != "" {
					s.zeroEx.SetBaseURL(settings.ZeroExBaseURL)
				}
				if settings.AcrossBaseURL != "" {
					s.across.SetBaseURL(settings.AcrossBaseURL)
				}
				if settings.JupiterBaseURL != "" {
					s.jupiter.SetBaseURL(settings.JupiterBaseURL)
				}
				if settings.CoinGeckoBaseURL != "" {
					s.gecko.SetBaseURL(settings.CoinGeckoBaseURL)
				}

				s.resolver = &quote.Resolver{
					Gasless:      s.zeroEx,
					Swap:         s.zeroEx,
					Bridge:       s.across,
					Solana:       s.jupiter,
					Prices:       s.gecko,
					Minimums:     quote.MinimumPolicy{Overrides: settings.MinimumOverrides},
					SlippageBps:  settings.SlippageBps,
					FeeRecipient: settings.FeeRecipient,
					FeeBps:       settings.FeeBps,
					TTL:          settings.QuoteTTL,
					Now:          s.runner.now,
				}
				s.providerInfos = []model.ProviderInfo{
					s.zeroEx.Info(),
					s.across.Info(),
					s.jupiter.Info(),
					s.gecko.Info(),
				}
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Provider request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().Float64Var(&s.flags.Slippage, "slippage", 0, "Slippage tolerance in percent")
	cmd.PersistentFlags().BoolVarP(&s.flags.Yes, "yes", "y", false, "Skip confirmation prompts")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newQuoteCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newWrapCommand())
	cmd.AddCommand(s.newUnwrapCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Describe(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, nil)
		},
	}
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List supported providers and API key metadata (no keys required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.providerInfos, nil, nil)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	root := &cobra.Command{Use: "history", Short: "Past swap outcomes"}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded swaps, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openHistory()
			if err != nil {
				return err
			}
			entries, err := store.List(limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "read history", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), entries, nil, nil)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum entries to return")
	root.AddCommand(list)
	return root
}

func (s *runtimeState) openHistory() (*history.Store, error) {
	if s.historyStore != nil {
		return s.historyStore, nil
	}
	store, err := history.Open(s.settings.HistoryPath, s.settings.HistoryLockPath, s.settings.HistoryCap)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open history store", err)
	}
	s.historyStore = store
	return store, nil
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, providers []model.ProviderStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings.OutputMode)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := errorType(err)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
	}
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	_ = out.Render(s.runner.stderr, env, mode)
}

func errorType(err error) string {
	cErr, ok := clierr.As(err)
	if !ok {
		return "internal_error"
	}
	switch cErr.Code {
	case clierr.CodeUsage:
		return "usage_error"
	case clierr.CodeAuth:
		return "auth_error"
	case clierr.CodeRateLimited:
		return "rate_limited"
	case clierr.CodeUnavailable:
		return "provider_unavailable"
	case clierr.CodeUnsupported:
		return "unsupported"
	case clierr.CodeNoLiquidity:
		return "no_liquidity"
	case clierr.CodeBelowMinimum:
		return "below_minimum"
	case clierr.CodePriceUnavailable:
		return "price_unavailable"
	case clierr.CodeQuoteExpired:
		return "quote_expired"
	case clierr.CodeWalletRejected:
		return "wallet_rejected"
	case clierr.CodeReverted:
		return "transaction_reverted"
	case clierr.CodeSigner:
		return "signer_error"
	case clierr.CodeTimeout:
		return "timeout"
	case clierr.CodePlan, clierr.CodeSim:
		return "execution_error"
	default:
		return "internal_error"
	}
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		default:
			return "error"
		}
	}
	return "error"
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
