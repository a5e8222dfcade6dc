package quote

import (
	"math/big"

	"github.com/nmorales94/swapflow/internal/id"
)

// MinimumPolicy guards against dust trades the providers reject with opaque
// errors. Defaults: one whole unit for stablecoins, 0.001 for 18-decimal
// assets, no floor otherwise. Per-asset overrides win.
type MinimumPolicy struct {
	Overrides map[string]string
}

// MinimumFor returns the floor in base units plus its decimal rendering, or
// nil when the asset has no minimum.
func (p MinimumPolicy) MinimumFor(asset id.Asset) (*big.Int, string) {
	if decimal, ok := p.Overrides[asset.AssetID]; ok {
		base, err := id.ToBaseUnits(decimal, asset.Decimals)
		if err != nil {
			return nil, ""
		}
		return base, decimal
	}

	decimal := ""
	switch {
	case id.IsStableSymbol(asset.Symbol):
		decimal = "1"
	case asset.Decimals == 18:
		decimal = "0.001"
	default:
		return nil, ""
	}
	base, err := id.ToBaseUnits(decimal, asset.Decimals)
	if err != nil {
		return nil, ""
	}
	return base, decimal
}
