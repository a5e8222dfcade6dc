package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Plain      bool
	Timeout    string
	Retries    int
	Slippage   float64
	Yes        bool
}

type Settings struct {
	OutputMode  string
	Timeout     time.Duration
	Retries     int
	SlippageBps int
	AutoConfirm bool

	QuoteTTL     time.Duration
	PollInterval time.Duration
	PollAttempts int

	HistoryPath     string
	HistoryLockPath string
	HistoryCap      int

	FeeRecipient string
	FeeBps       int

	ZeroExAPIKey  string
	JupiterAPIKey string

	ZeroExBaseURL    string
	AcrossBaseURL    string
	JupiterBaseURL   string
	CoinGeckoBaseURL string

	RPCOverrides map[int64]string
	SolanaRPCURL string

	EVMPrivateKey    string
	SolanaPrivateKey string

	MinimumOverrides map[string]string
}

type fileConfig struct {
	Output   string `yaml:"output"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	Slippage *int   `yaml:"slippage_bps"`
	Quote    struct {
		TTL          string `yaml:"ttl"`
		PollInterval string `yaml:"poll_interval"`
		PollAttempts *int   `yaml:"poll_attempts"`
	} `yaml:"quote"`
	History struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		Cap      *int   `yaml:"cap"`
	} `yaml:"history"`
	Fees struct {
		Recipient string `yaml:"recipient"`
		Bps       *int   `yaml:"bps"`
	} `yaml:"fees"`
	Providers struct {
		ZeroEx struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
		} `yaml:"zeroex"`
		Across struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"across"`
		Jupiter struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
		} `yaml:"jupiter"`
		CoinGecko struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"coingecko"`
	} `yaml:"providers"`
	RPC struct {
		Solana string            `yaml:"solana"`
		EVM    map[string]string `yaml:"evm"`
	} `yaml:"rpc"`
	Minimums map[string]string `yaml:"minimums"`
}

func Load(flags GlobalFlags) (Settings, error) {
	// Local .env files are a convenience for keys; missing files are fine.
	_ = godotenv.Load()

	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.QuoteTTL <= 0 {
		settings.QuoteTTL = 30 * time.Second
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.PollAttempts <= 0 {
		settings.PollAttempts = 20
	}
	if settings.HistoryCap <= 0 {
		settings.HistoryCap = 100
	}
	if settings.SlippageBps <= 0 {
		settings.SlippageBps = 100
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:       "json",
		Timeout:          10 * time.Second,
		Retries:          2,
		SlippageBps:      100,
		QuoteTTL:         30 * time.Second,
		PollInterval:     2 * time.Second,
		PollAttempts:     20,
		HistoryPath:      filepath.Join(dataDir, "history.db"),
		HistoryLockPath:  filepath.Join(dataDir, "history.lock"),
		HistoryCap:       100,
		ZeroExBaseURL:    "https://api.0x.org",
		AcrossBaseURL:    "https://app.across.to/api",
		JupiterBaseURL:   "https://quote-api.jup.ag/v6",
		CoinGeckoBaseURL: "https://api.coingecko.com/api/v3",
		SolanaRPCURL:     "https://api.mainnet-beta.solana.com",
		RPCOverrides:     map[int64]string{},
		MinimumOverrides: map[string]string{},
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "swapflow", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "swapflow"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Slippage != nil {
		settings.SlippageBps = *cfg.Slippage
	}
	if cfg.Quote.TTL != "" {
		d, err := time.ParseDuration(cfg.Quote.TTL)
		if err != nil {
			return fmt.Errorf("config quote.ttl: %w", err)
		}
		settings.QuoteTTL = d
	}
	if cfg.Quote.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Quote.PollInterval)
		if err != nil {
			return fmt.Errorf("config quote.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Quote.PollAttempts != nil {
		settings.PollAttempts = *cfg.Quote.PollAttempts
	}
	if cfg.History.Path != "" {
		settings.HistoryPath = cfg.History.Path
	}
	if cfg.History.LockPath != "" {
		settings.HistoryLockPath = cfg.History.LockPath
	}
	if cfg.History.Cap != nil {
		settings.HistoryCap = *cfg.History.Cap
	}
	if cfg.Fees.Recipient != "" {
		settings.FeeRecipient = cfg.Fees.Recipient
	}
	if cfg.Fees.Bps != nil {
		settings.FeeBps = *cfg.Fees.Bps
	}
	if cfg.Providers.ZeroEx.APIKey != "" {
		settings.ZeroExAPIKey = cfg.Providers.ZeroEx.APIKey
	}
	if cfg.Providers.ZeroEx.APIKeyEnv != "" {
		settings.ZeroExAPIKey = os.Getenv(cfg.Providers.ZeroEx.APIKeyEnv)
	}
	if cfg.Providers.ZeroEx.BaseURL != "" {
		settings.ZeroExBaseURL = cfg.Providers.ZeroEx.BaseURL
	}
	if cfg.Providers.Across.BaseURL != "" {
		settings.AcrossBaseURL = cfg.Providers.Across.BaseURL
	}
	if cfg.Providers.Jupiter.APIKey != "" {
		settings.JupiterAPIKey = cfg.Providers.Jupiter.APIKey
	}
	if cfg.Providers.Jupiter.APIKeyEnv != "" {
		settings.JupiterAPIKey = os.Getenv(cfg.Providers.Jupiter.APIKeyEnv)
	}
	if cfg.Providers.Jupiter.BaseURL != "" {
		settings.JupiterBaseURL = cfg.Providers.Jupiter.BaseURL
	}
	if cfg.Providers.CoinGecko.BaseURL != "" {
		settings.CoinGeckoBaseURL = cfg.Providers.CoinGecko.BaseURL
	}
	if cfg.RPC.Solana != "" {
		settings.SolanaRPCURL = cfg.RPC.Solana
	}
	for key, url := range cfg.RPC.EVM {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("config rpc.evm key %q: %w", key, err)
		}
		settings.RPCOverrides[id] = url
	}
	for assetID, min := range cfg.Minimums {
		settings.MinimumOverrides[assetID] = min
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("SWAPFLOW_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("SWAPFLOW_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("SWAPFLOW_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("SWAPFLOW_SLIPPAGE_BPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.SlippageBps = n
		}
	}
	if v := os.Getenv("SWAPFLOW_QUOTE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.QuoteTTL = d
		}
	}
	if v := os.Getenv("SWAPFLOW_HISTORY_PATH"); v != "" {
		settings.HistoryPath = v
	}
	if v := os.Getenv("SWAPFLOW_HISTORY_LOCK_PATH"); v != "" {
		settings.HistoryLockPath = v
	}
	if v := os.Getenv("SWAPFLOW_FEE_RECIPIENT"); v != "" {
		settings.FeeRecipient = v
	}
	if v := os.Getenv("SWAPFLOW_FEE_BPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.FeeBps = n
		}
	}
	if v := os.Getenv("SWAPFLOW_0X_API_KEY"); v != "" {
		settings.ZeroExAPIKey = v
	}
	if v := os.Getenv("SWAPFLOW_JUPITER_API_KEY"); v != "" {
		settings.JupiterAPIKey = v
	}
	if v := os.Getenv("SWAPFLOW_SOLANA_RPC_URL"); v != "" {
		settings.SolanaRPCURL = v
	}
	if v := os.Getenv("SWAPFLOW_EVM_PRIVATE_KEY"); v != "" {
		settings.EVMPrivateKey = v
	}
	if v := os.Getenv("SWAPFLOW_SOLANA_PRIVATE_KEY"); v != "" {
		settings.SolanaPrivateKey = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.Slippage > 0 {
		settings.SlippageBps = int(flags.Slippage * 100)
	}
	if flags.Yes {
		settings.AutoConfirm = true
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
