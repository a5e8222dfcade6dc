package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/model"
)

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("swapflow providers list"); got != "providers list" {
		t.Fatalf("unexpected trim result: %s", got)
	}
	if got := trimRootPath("swapflow"); got != "swapflow" {
		t.Fatalf("bare root should pass through, got %s", got)
	}
}

func TestStatusFromErr(t *testing.T) {
	if got := statusFromErr(nil); got != "ok" {
		t.Fatalf("nil error status = %s", got)
	}
	if got := statusFromErr(clierr.New(clierr.CodeRateLimited, "slow down")); got != "rate_limited" {
		t.Fatalf("rate limited status = %s", got)
	}
	if got := statusFromErr(errors.New("boom")); got != "error" {
		t.Fatalf("generic error status = %s", got)
	}
}

func TestNormalizeRunErrorWrapsCobraUsage(t *testing.T) {
	err := normalizeRunError(errors.New("unknown flag: --bogus"))
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

// newTestRunner isolates config and cache lookups in a temp home so tests
// never read or write the developer's real swapflow state.
func newTestRunner(t *testing.T, configYAML string) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	if configYAML != "" {
		dir := filepath.Join(home, "config", "swapflow")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir config dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	var stdout, stderr bytes.Buffer
	r := NewRunnerWithStreams(&stdout, &stderr, strings.NewReader(""))
	return r, &stdout, &stderr
}

func decodeEnvelope(t *testing.T, buf *bytes.Buffer) model.Envelope {
	t.Helper()
	var env model.Envelope
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse envelope: %v output=%s", err, buf.String())
	}
	return env
}

func TestRunnerVersion(t *testing.T) {
	r, stdout, stderr := newTestRunner(t, "")
	code := r.Run([]string{"version"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) == "" {
		t.Fatalf("expected version output")
	}
}

func TestRunnerProvidersList(t *testing.T) {
	r, stdout, stderr := newTestRunner(t, "")
	code := r.Run([]string{"providers", "list"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeEnvelope(t, stdout)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", stdout.String())
	}
	raw, _ := json.Marshal(env.Data)
	var infos []model.ProviderInfo
	if err := json.Unmarshal(raw, &infos); err != nil {
		t.Fatalf("failed to parse provider infos: %v", err)
	}
	if len(infos) != 4 {
		t.Fatalf("expected 4 providers, got %d", len(infos))
	}
	if env.Meta.Command != "providers list" {
		t.Fatalf("unexpected meta command %q", env.Meta.Command)
	}
}

func TestRunnerUnknownFlagIsUsageError(t *testing.T) {
	r, _, stderr := newTestRunner(t, "")
	code := r.Run([]string{"providers", "list", "--bogus"})
	if code != int(clierr.CodeUsage) {
		t.Fatalf("expected exit %d, got %d", clierr.CodeUsage, code)
	}
	env := decodeEnvelope(t, stderr)
	if env.Success {
		t.Fatalf("expected failure envelope")
	}
	if env.Error == nil || env.Error.Type != "usage_error" {
		t.Fatalf("expected usage_error, got %+v", env.Error)
	}
}

func TestRunnerQuoteRequiresExactlyOneAmount(t *testing.T) {
	r, _, stderr := newTestRunner(t, "")
	code := r.Run([]string{"quote", "--from-chain", "ethereum", "--sell", "USDC", "--buy", "DAI"})
	if code != int(clierr.CodeUsage) {
		t.Fatalf("expected usage exit, got %d stderr=%s", code, stderr.String())
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || !strings.Contains(env.Error.Message, "--amount") {
		t.Fatalf("expected amount guidance, got %+v", env.Error)
	}
}

func TestRunnerQuoteWrapPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/simple/price") {
			fmt.Fprint(w, `{"ethereum":{"usd":3200.5}}`)
			return
		}
		http.NotFound(w, req)
	}))
	defer srv.Close()

	cfg := fmt.Sprintf("providers:\n  coingecko:\n    base_url: %s\n", srv.URL)
	r, stdout, stderr := newTestRunner(t, cfg)
	code := r.Run([]string{"quote", "--from-chain", "ethereum", "--sell", "ETH", "--buy", "WETH", "--amount", "1.5"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeEnvelope(t, stdout)
	raw, _ := json.Marshal(env.Data)
	var q struct {
		Path       string `json:"path"`
		Provider   string `json:"provider"`
		Price      string `json:"price"`
		TTLSeconds int64  `json:"ttl_seconds"`
		SellAmount struct {
			AmountBaseUnits string `json:"amount_base_units"`
		} `json:"sell_amount"`
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		t.Fatalf("failed to parse quote: %v", err)
	}
	if q.Path != model.PathWrap || q.Provider != "local" {
		t.Fatalf("expected local wrap quote, got path=%s provider=%s", q.Path, q.Provider)
	}
	if q.Price != "1" {
		t.Fatalf("wrap price must be 1:1, got %s", q.Price)
	}
	if q.TTLSeconds != 0 {
		t.Fatalf("wrap quotes must not expire, got ttl %d", q.TTLSeconds)
	}
	if q.SellAmount.AmountBaseUnits != "1500000000000000000" {
		t.Fatalf("unexpected base units %s", q.SellAmount.AmountBaseUnits)
	}
}

func TestRunnerQuoteGasless(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch {
		case strings.HasPrefix(req.URL.Path, "/gasless/quote"):
			fmt.Fprint(w, `{
				"liquidityAvailable": true,
				"sellAmount": "100000000",
				"buyAmount": "99820000000000000000",
				"minBuyAmount": "98821800000000000000",
				"trade": {"type": "settler_metatransaction", "eip712": {"domain": {"name": "Settler"}}}
			}`)
		case strings.HasPrefix(req.URL.Path, "/simple/price"):
			fmt.Fprint(w, `{"usd-coin":{"usd":1.0}}`)
		default:
			http.NotFound(w, req)
		}
	}))
	defer srv.Close()

	cfg := fmt.Sprintf("providers:\n  zeroex:\n    base_url: %s\n  coingecko:\n    base_url: %s\n", srv.URL, srv.URL)
	r, stdout, stderr := newTestRunner(t, cfg)
	code := r.Run([]string{"quote", "--from-chain", "ethereum", "--sell", "USDC", "--buy", "DAI", "--amount", "100"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeEnvelope(t, stdout)
	raw, _ := json.Marshal(env.Data)
	var q struct {
		Path     string `json:"path"`
		Provider string `json:"provider"`
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		t.Fatalf("failed to parse quote: %v", err)
	}
	if q.Path != model.PathGaslessSameChain {
		t.Fatalf("expected gasless path, got %s", q.Path)
	}
	if len(env.Meta.Providers) != 1 || env.Meta.Providers[0].Status != "ok" {
		t.Fatalf("expected one ok provider status, got %+v", env.Meta.Providers)
	}
}

func TestRunnerQuoteNoLiquidity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"liquidityAvailable": false}`)
	}))
	defer srv.Close()

	cfg := fmt.Sprintf("providers:\n  zeroex:\n    base_url: %s\n", srv.URL)
	r, _, stderr := newTestRunner(t, cfg)
	code := r.Run([]string{"quote", "--from-chain", "ethereum", "--sell", "USDC", "--buy", "DAI", "--amount", "100"})
	if code != int(clierr.CodeNoLiquidity) {
		t.Fatalf("expected exit %d, got %d stderr=%s", clierr.CodeNoLiquidity, code, stderr.String())
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || env.Error.Type != "no_liquidity" {
		t.Fatalf("expected no_liquidity error, got %+v", env.Error)
	}
}

func TestRunnerQuoteSolanaCrossChainUnsupported(t *testing.T) {
	r, _, stderr := newTestRunner(t, "")
	code := r.Run([]string{"quote", "--from-chain", "solana", "--to-chain", "ethereum", "--sell", "SOL", "--buy", "ETH", "--amount", "1"})
	if code != int(clierr.CodeUnsupported) {
		t.Fatalf("expected exit %d, got %d stderr=%s", clierr.CodeUnsupported, code, stderr.String())
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || env.Error.Type != "unsupported" {
		t.Fatalf("expected unsupported error, got %+v", env.Error)
	}
}

func TestRunnerBridgeSwapWithYesRequiresConfirm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch {
		case strings.HasPrefix(req.URL.Path, "/limits"):
			fmt.Fprint(w, `{}`)
		case strings.HasPrefix(req.URL.Path, "/swap/approval"):
			fmt.Fprint(w, `{
				"expectedOutputAmount": "99500000",
				"expectedFillTime": 4,
				"swapTx": {"to": "0x09aea4b2242abc8bb4bb78d537a67a245a7bec64", "data": "0xdeadbeef"}
			}`)
		case strings.HasPrefix(req.URL.Path, "/simple/price"):
			fmt.Fprint(w, `{}`)
		default:
			http.NotFound(w, req)
		}
	}))
	defer srv.Close()

	cfg := fmt.Sprintf("providers:\n  across:\n    base_url: %s\n  coingecko:\n    base_url: %s\n", srv.URL, srv.URL)
	r, _, stderr := newTestRunner(t, cfg)
	t.Setenv("SWAPFLOW_EVM_PRIVATE_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")

	code := r.Run([]string{
		"swap", "--from-chain", "ethereum", "--to-chain", "base",
		"--sell", "USDC", "--buy", "USDC", "--amount", "100", "--yes",
	})
	if code != int(clierr.CodeUsage) {
		t.Fatalf("expected usage exit, got %d stderr=%s", code, stderr.String())
	}
	env := decodeEnvelope(t, stderr)
	if env.Error == nil || !strings.Contains(env.Error.Message, "--confirm") {
		t.Fatalf("expected guidance naming --confirm, got %+v", env.Error)
	}
}

func TestRunnerSchemaCommand(t *testing.T) {
	r, stdout, stderr := newTestRunner(t, "")
	code := r.Run([]string{"schema", "history", "list"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeEnvelope(t, stdout)
	raw, _ := json.Marshal(env.Data)
	var s struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("failed to parse schema: %v", err)
	}
	if s.Path != "swapflow history list" {
		t.Fatalf("unexpected schema path %q", s.Path)
	}
}

func TestRunnerHistoryListEmpty(t *testing.T) {
	r, stdout, stderr := newTestRunner(t, "")
	code := r.Run([]string{"history", "list"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeEnvelope(t, stdout)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", stdout.String())
	}
}
