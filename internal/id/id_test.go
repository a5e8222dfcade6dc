package id

import "testing"

func TestParseChainVariants(t *testing.T) {
	chain, err := ParseChain("base")
	if err != nil {
		t.Fatalf("ParseChain(base) failed: %v", err)
	}
	if chain.CAIP2 != "eip155:8453" {
		t.Fatalf("unexpected CAIP2: %s", chain.CAIP2)
	}

	chain, err = ParseChain("8453")
	if err != nil {
		t.Fatalf("ParseChain(8453) failed: %v", err)
	}
	if chain.Slug != "base" {
		t.Fatalf("unexpected slug: %s", chain.Slug)
	}

	chain, err = ParseChain("solana")
	if err != nil {
		t.Fatalf("ParseChain(solana) failed: %v", err)
	}
	if !chain.IsSolana() || chain.IsEVM() {
		t.Fatalf("expected solana namespace, got %+v", chain)
	}

	chain, err = ParseChain("eip155:999999")
	if err != nil {
		t.Fatalf("ParseChain(eip155:999999) failed: %v", err)
	}
	if chain.EVMChainID != 999999 {
		t.Fatalf("unexpected chain ID: %d", chain.EVMChainID)
	}
}

func TestParseAssetSymbolAndAddress(t *testing.T) {
	chain, _ := ParseChain("ethereum")

	asset, err := ParseAsset("USDC", chain)
	if err != nil {
		t.Fatalf("ParseAsset(USDC) failed: %v", err)
	}
	if asset.AssetID == "" || asset.Decimals != 6 {
		t.Fatalf("unexpected asset result: %+v", asset)
	}

	asset2, err := ParseAsset("0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48", chain)
	if err != nil {
		t.Fatalf("ParseAsset(address) failed: %v", err)
	}
	if asset2.Symbol != "USDC" {
		t.Fatalf("expected USDC, got %s", asset2.Symbol)
	}
}

func TestParseAssetNativeTicker(t *testing.T) {
	chain, _ := ParseChain("ethereum")

	asset, err := ParseAsset("ETH", chain)
	if err != nil {
		t.Fatalf("ParseAsset(ETH) failed: %v", err)
	}
	if !asset.IsNative() {
		t.Fatalf("expected native asset, got %+v", asset)
	}
	if asset.Address != NativeSentinel || asset.Decimals != 18 {
		t.Fatalf("unexpected native asset: %+v", asset)
	}

	// The sentinel address parses to the same native asset.
	asset2, err := ParseAsset("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE", chain)
	if err != nil {
		t.Fatalf("ParseAsset(sentinel) failed: %v", err)
	}
	if asset2.Symbol != "ETH" || !asset2.IsNative() {
		t.Fatalf("unexpected sentinel asset: %+v", asset2)
	}
}

func TestParseAssetSolanaMint(t *testing.T) {
	chain, _ := ParseChain("solana")

	asset, err := ParseAsset("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", chain)
	if err != nil {
		t.Fatalf("ParseAsset(mint) failed: %v", err)
	}
	if asset.Symbol != "USDC" || asset.Decimals != 6 {
		t.Fatalf("unexpected mint asset: %+v", asset)
	}

	asset2, err := ParseAsset("SOL", chain)
	if err != nil {
		t.Fatalf("ParseAsset(SOL) failed: %v", err)
	}
	if asset2.Decimals != 9 {
		t.Fatalf("unexpected SOL asset: %+v", asset2)
	}
}

func TestParseAssetChainMismatch(t *testing.T) {
	chain, _ := ParseChain("base")
	_, err := ParseAsset("eip155:1/erc20:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", chain)
	if err == nil {
		t.Fatal("expected chain mismatch error")
	}
}

func TestWrappedNativeRegistry(t *testing.T) {
	wrapped, ok := WrappedNative("eip155:1")
	if !ok || wrapped.Symbol != "WETH" {
		t.Fatalf("unexpected wrapped native: %+v ok=%v", wrapped, ok)
	}

	chain, _ := ParseChain("ethereum")
	asset, err := ParseAsset("WETH", chain)
	if err != nil {
		t.Fatalf("ParseAsset(WETH) failed: %v", err)
	}
	if !IsWrappedNative(asset) {
		t.Fatalf("expected WETH to be wrapped native: %+v", asset)
	}
	if asset.IsNative() {
		t.Fatal("WETH must not report native")
	}
}

func TestIsStableSymbol(t *testing.T) {
	for _, sym := range []string{"USDC", "usdt", "DAI"} {
		if !IsStableSymbol(sym) {
			t.Fatalf("expected %s to be stable", sym)
		}
	}
	for _, sym := range []string{"WETH", "ETH", "SOL", ""} {
		if IsStableSymbol(sym) {
			t.Fatalf("expected %s to not be stable", sym)
		}
	}
}
