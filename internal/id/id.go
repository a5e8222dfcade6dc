package id

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/nmorales94/swapflow/internal/errors"
)

var (
	eip155ChainPattern      = regexp.MustCompile(`^eip155:[0-9]+$`)
	solanaChainPattern      = regexp.MustCompile(`^solana:[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	evmAddressPattern       = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	solanaTokenMintPattern  = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	eip155AssetPattern      = regexp.MustCompile(`^eip155:[0-9]+/erc20:0x[0-9a-fA-F]{40}$`)
	solanaTokenAssetPattern = regexp.MustCompile(`^solana:[1-9A-HJ-NP-Za-km-z]{32,44}/token:[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// NativeSentinel is the pseudo-address aggregator APIs use for a chain's
// native asset, which has no ERC-20 contract of its own.
const NativeSentinel = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

const (
	solanaMainnetRef   = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	solanaMainnetCAIP2 = "solana:" + solanaMainnetRef

	wrappedSOLMint = "So11111111111111111111111111111111111111112"
)

type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
}

func (c Chain) Namespace() string {
	return chainNamespace(c.CAIP2)
}

func (c Chain) IsEVM() bool {
	return c.Namespace() == "eip155"
}

func (c Chain) IsSolana() bool {
	return c.Namespace() == "solana"
}

type Asset struct {
	ChainID  string
	AssetID  string
	Address  string
	Symbol   string
	Decimals int
}

// IsNative reports whether the asset is the chain's native coin rather than a
// token contract.
func (a Asset) IsNative() bool {
	return strings.EqualFold(strings.TrimSpace(a.Address), NativeSentinel)
}

type Token struct {
	Symbol   string
	Address  string
	Decimals int
}

var chainBySlug = map[string]Chain{
	"ethereum":       {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1},
	"mainnet":        {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1},
	"base":           {Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453},
	"arbitrum":       {Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161},
	"optimism":       {Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", EVMChainID: 10},
	"polygon":        {Name: "Polygon", Slug: "polygon", CAIP2: "eip155:137", EVMChainID: 137},
	"solana":         {Name: "Solana", Slug: "solana", CAIP2: solanaMainnetCAIP2},
	"solana-mainnet": {Name: "Solana", Slug: "solana", CAIP2: solanaMainnetCAIP2},
	"mainnet-beta":   {Name: "Solana", Slug: "solana", CAIP2: solanaMainnetCAIP2},
}

var chainByID = map[int64]Chain{
	1:     chainBySlug["ethereum"],
	10:    chainBySlug["optimism"],
	137:   chainBySlug["polygon"],
	8453:  chainBySlug["base"],
	42161: chainBySlug["arbitrum"],
}

var chainByCAIP2 = func() map[string]Chain {
	out := make(map[string]Chain, len(chainBySlug))
	for _, chain := range chainBySlug {
		out[chain.CAIP2] = chain
	}
	return out
}()

// nativeBySymbol maps the native coin ticker per chain. The native asset is
// representable on every supported EVM chain through the sentinel address.
var nativeByChain = map[string]Token{
	"eip155:1":     {Symbol: "ETH", Address: NativeSentinel, Decimals: 18},
	"eip155:10":    {Symbol: "ETH", Address: NativeSentinel, Decimals: 18},
	"eip155:137":   {Symbol: "POL", Address: NativeSentinel, Decimals: 18},
	"eip155:8453":  {Symbol: "ETH", Address: NativeSentinel, Decimals: 18},
	"eip155:42161": {Symbol: "ETH", Address: NativeSentinel, Decimals: 18},
}

// wrappedNativeByChain names the canonical wrapped form of each chain's
// native coin; the wrap/unwrap path and bridge requests rely on it.
var wrappedNativeByChain = map[string]Token{
	"eip155:1":     {Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18},
	"eip155:10":    {Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	"eip155:137":   {Symbol: "WPOL", Address: "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270", Decimals: 18},
	"eip155:8453":  {Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	"eip155:42161": {Symbol: "WETH", Address: "0x82af49447d8a07e3bd95bd0d56f35241523fbab1", Decimals: 18},
}

// Bootstrap registry for deterministic asset parsing on supported chains.
var tokenRegistry = map[string][]Token{
	"eip155:1": {
		{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
		{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
		{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18},
		{Symbol: "WBTC", Address: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Decimals: 8},
	},
	"eip155:8453": {
		{Symbol: "USDC", Address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Decimals: 6},
		{Symbol: "DAI", Address: "0x50c5725949a6f0c72e6c4a641f24049a917db0cb", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:42161": {
		{Symbol: "USDC", Address: "0xaf88d065e77c8cc2239327c5edb3a432268e5831", Decimals: 6},
		{Symbol: "USDT", Address: "0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9", Decimals: 6},
		{Symbol: "DAI", Address: "0xda10009cbd5d07dd0cecc66161fc93d7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x82af49447d8a07e3bd95bd0d56f35241523fbab1", Decimals: 18},
	},
	"eip155:10": {
		{Symbol: "USDC", Address: "0x7f5c764cbc14f9669b88837ca1490cca17c31607", Decimals: 6},
		{Symbol: "USDT", Address: "0x94b008aa00579c1307b0ef2c499ad98a8ce58e58", Decimals: 6},
		{Symbol: "DAI", Address: "0xda10009cbd5d07dd0cecc66161fc93d7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:137": {
		{Symbol: "USDC", Address: "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359", Decimals: 6},
		{Symbol: "USDT", Address: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", Decimals: 6},
		{Symbol: "WETH", Address: "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619", Decimals: 18},
		{Symbol: "WPOL", Address: "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270", Decimals: 18},
	},
	solanaMainnetCAIP2: {
		{Symbol: "USDC", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
		{Symbol: "USDT", Address: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
		{Symbol: "SOL", Address: wrappedSOLMint, Decimals: 9},
		{Symbol: "JUP", Address: "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", Decimals: 6},
	},
}

func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		if known, ok := chainByID[id]; ok {
			return known, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: norm, EVMChainID: id}, nil
	}

	if solanaChainPattern.MatchString(raw) {
		if known, ok := chainByCAIP2[raw]; ok {
			return known, nil
		}
		return Chain{Name: "Solana", Slug: "solana-custom", CAIP2: raw}, nil
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chain, ok := chainByID[id]; ok {
			return chain, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: fmt.Sprintf("eip155:%d", id), EVMChainID: id}, nil
	}

	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

func ParseAsset(input string, chain Chain) (Asset, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Asset{}, clierr.New(clierr.CodeUsage, "asset is required")
	}

	// Native ticker resolves to the sentinel asset for the chain.
	if chain.IsEVM() {
		if native, ok := nativeByChain[chain.CAIP2]; ok && strings.EqualFold(raw, native.Symbol) {
			return nativeAsset(chain), nil
		}
	}

	if strings.Contains(raw, "/") {
		if !eip155AssetPattern.MatchString(raw) && !solanaTokenAssetPattern.MatchString(raw) {
			return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid CAIP-19 asset format: %s", input))
		}
		parts := strings.SplitN(raw, "/", 2)
		if parts[0] != chain.CAIP2 {
			return Asset{}, clierr.New(clierr.CodeUsage, "asset chain does not match --chain")
		}
		assetParts := strings.SplitN(parts[1], ":", 2)
		if len(assetParts) != 2 {
			return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid CAIP-19 asset format: %s", input))
		}
		address := strings.TrimSpace(assetParts[1])
		addr := normalizeTokenAddress(chain.CAIP2, address)
		token, _ := findTokenByAddress(chain.CAIP2, addr)
		return Asset{ChainID: chain.CAIP2, AssetID: canonicalAssetID(chain.CAIP2, addr), Address: addr, Symbol: token.Symbol, Decimals: token.Decimals}, nil
	}

	if chain.IsEVM() && evmAddressPattern.MatchString(raw) {
		addr := normalizeTokenAddress(chain.CAIP2, raw)
		if addr == NativeSentinel {
			return nativeAsset(chain), nil
		}
		token, _ := findTokenByAddress(chain.CAIP2, addr)
		return Asset{ChainID: chain.CAIP2, AssetID: canonicalAssetID(chain.CAIP2, addr), Address: addr, Symbol: token.Symbol, Decimals: token.Decimals}, nil
	}

	if chain.IsSolana() && solanaTokenMintPattern.MatchString(raw) {
		addr := normalizeTokenAddress(chain.CAIP2, raw)
		token, _ := findTokenByAddress(chain.CAIP2, addr)
		symbol := token.Symbol
		decimals := token.Decimals
		if symbol == "" {
			// Unknown mints still parse; decimals must come from elsewhere.
			decimals = 0
		}
		return Asset{ChainID: chain.CAIP2, AssetID: canonicalAssetID(chain.CAIP2, addr), Address: addr, Symbol: symbol, Decimals: decimals}, nil
	}

	matches := findTokensBySymbol(chain.CAIP2, raw)
	if len(matches) == 0 {
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s not found in registry for chain %s", input, chain.CAIP2))
	}
	if len(matches) > 1 {
		addresses := make([]string, 0, len(matches))
		for _, m := range matches {
			addresses = append(addresses, m.Address)
		}
		sort.Strings(addresses)
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s is ambiguous on chain %s, use address or CAIP-19 (%s)", input, chain.CAIP2, strings.Join(addresses, ", ")))
	}
	t := matches[0]
	addr := normalizeTokenAddress(chain.CAIP2, t.Address)
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  canonicalAssetID(chain.CAIP2, addr),
		Address:  addr,
		Symbol:   strings.ToUpper(t.Symbol),
		Decimals: t.Decimals,
	}, nil
}

func nativeAsset(chain Chain) Asset {
	native := nativeByChain[chain.CAIP2]
	if native.Symbol == "" {
		native = Token{Symbol: "ETH", Address: NativeSentinel, Decimals: 18}
	}
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  canonicalAssetID(chain.CAIP2, NativeSentinel),
		Address:  NativeSentinel,
		Symbol:   native.Symbol,
		Decimals: native.Decimals,
	}
}

// NativeAsset returns the chain's native coin as a sentinel-addressed asset.
func NativeAsset(chain Chain) (Asset, bool) {
	if _, ok := nativeByChain[chain.CAIP2]; !ok {
		return Asset{}, false
	}
	return nativeAsset(chain), true
}

// WrappedNative returns the canonical wrapped-native token for the chain.
func WrappedNative(chainID string) (Token, bool) {
	t, ok := wrappedNativeByChain[chainID]
	return t, ok
}

// IsWrappedNative reports whether the asset is the chain's wrapped-native token.
func IsWrappedNative(asset Asset) bool {
	wrapped, ok := wrappedNativeByChain[asset.ChainID]
	if !ok {
		return false
	}
	return tokenAddressEqual(asset.ChainID, asset.Address, wrapped.Address)
}

// IsStableSymbol reports whether the symbol is a USD-pegged stablecoin. Used
// for fee-token preference and the minimum-amount policy.
func IsStableSymbol(symbol string) bool {
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case "USDC", "USDT", "USDT0", "DAI", "USDE", "USDS", "FRAX", "GHO", "TUSD", "LUSD", "PYUSD":
		return true
	default:
		return false
	}
}

func chainNamespace(caip2 string) string {
	parts := strings.SplitN(strings.TrimSpace(caip2), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[0])
}

func canonicalAssetID(chainID, address string) string {
	switch chainNamespace(chainID) {
	case "eip155":
		return fmt.Sprintf("%s/erc20:%s", chainID, strings.ToLower(strings.TrimSpace(address)))
	case "solana":
		return fmt.Sprintf("%s/token:%s", chainID, strings.TrimSpace(address))
	default:
		return fmt.Sprintf("%s/asset:%s", chainID, strings.TrimSpace(address))
	}
}

func normalizeTokenAddress(chainID, address string) string {
	address = strings.TrimSpace(address)
	if chainNamespace(chainID) == "eip155" {
		return strings.ToLower(address)
	}
	return address
}

func tokenAddressEqual(chainID, a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if chainNamespace(chainID) == "eip155" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func findTokenByAddress(chainID, address string) (Token, bool) {
	for _, t := range tokenRegistry[chainID] {
		if tokenAddressEqual(chainID, t.Address, address) {
			return Token{
				Symbol:   strings.ToUpper(t.Symbol),
				Address:  normalizeTokenAddress(chainID, t.Address),
				Decimals: t.Decimals,
			}, true
		}
	}
	return Token{}, false
}

func findTokensBySymbol(chainID, symbol string) []Token {
	matches := []Token{}
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			matches = append(matches, Token{
				Symbol:   strings.ToUpper(t.Symbol),
				Address:  normalizeTokenAddress(chainID, t.Address),
				Decimals: t.Decimals,
			})
		}
	}
	return matches
}

func KnownToken(chainID, symbol string) (Token, bool) {
	matches := findTokensBySymbol(chainID, symbol)
	if len(matches) != 1 {
		return Token{}, false
	}
	return matches[0], true
}

func LookupByAddress(chainID, address string) (Token, bool) {
	return findTokenByAddress(chainID, normalizeTokenAddress(chainID, address))
}
