package engine

import (
	"fmt"
	"strings"

	clierr "github.com/nmorales94/swapflow/internal/errors"
)

var defaultRPCByChainID = map[int64]string{
	1:     "https://eth.llamarpc.com",
	10:    "https://mainnet.optimism.io",
	137:   "https://polygon-rpc.com",
	8453:  "https://mainnet.base.org",
	42161: "https://arb1.arbitrum.io/rpc",
}

const defaultSolanaRPCURL = "https://api.mainnet-beta.solana.com"

func DefaultRPCURL(chainID int64) (string, bool) {
	v, ok := defaultRPCByChainID[chainID]
	return v, ok
}

// ResolveRPCURL prefers a configured override, then the built-in default.
func ResolveRPCURL(overrides map[int64]string, chainID int64) (string, error) {
	if url, ok := overrides[chainID]; ok && strings.TrimSpace(url) != "" {
		return strings.TrimSpace(url), nil
	}
	if v, ok := DefaultRPCURL(chainID); ok {
		return v, nil
	}
	return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("no rpc endpoint configured for chain id %d", chainID))
}

func ResolveSolanaRPCURL(override string) string {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override)
	}
	return defaultSolanaRPCURL
}
