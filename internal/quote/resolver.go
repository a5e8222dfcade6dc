package quote

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/id"
	"github.com/nmorales94/swapflow/internal/model"
	"github.com/nmorales94/swapflow/internal/providers"
)

// Request is one user-initiated quote resolution. AmountUSD, when set,
// replaces the token amount and is converted through the price provider.
type Request struct {
	FromChain       id.Chain
	ToChain         id.Chain
	Sell            id.Asset
	Buy             id.Asset
	AmountBaseUnits string
	AmountDecimal   string
	AmountUSD       float64
	Taker           string
	Recipient       string
}

type Resolver struct {
	Gasless providers.GaslessProvider
	Swap    providers.SwapProvider
	Bridge  providers.BridgeProvider
	Solana  providers.SolanaSwapProvider
	Prices  providers.PriceProvider

	Minimums     MinimumPolicy
	SlippageBps  int
	FeeRecipient string
	FeeBps       int
	TTL          time.Duration

	Now func() time.Time
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// SelectPath decides the execution path for a pair. It is a pure function of
// the chain and asset identities; identical inputs always yield the same
// path.
func SelectPath(fromChain, toChain id.Chain, sell, buy id.Asset) (string, error) {
	sameChain := fromChain.CAIP2 == toChain.CAIP2

	if sameChain {
		if sell.IsNative() && id.IsWrappedNative(buy) {
			return model.PathWrap, nil
		}
		if id.IsWrappedNative(sell) && buy.IsNative() {
			return model.PathUnwrap, nil
		}
		if fromChain.IsSolana() {
			return model.PathOnchainSameChain, nil
		}
		if !sell.IsNative() && !buy.IsNative() {
			return model.PathGaslessSameChain, nil
		}
		return model.PathOnchainSameChain, nil
	}

	if fromChain.IsSolana() || toChain.IsSolana() {
		return "", clierr.New(clierr.CodeUnsupported, "cross-chain routes involving Solana are not supported")
	}
	return model.PathBridgeCrossChain, nil
}

// Resolve normalizes the amount, runs the pre-flight minimum check, selects
// the path, and returns the provider-backed quote.
func (r *Resolver) Resolve(ctx context.Context, req Request) (model.Quote, error) {
	if req.AmountUSD > 0 {
		dec, err := r.usdToSellAmount(ctx, req)
		if err != nil {
			return model.Quote{}, err
		}
		req.AmountDecimal = dec
		req.AmountBaseUnits = ""
	}

	base, dec, err := id.NormalizeAmount(req.AmountBaseUnits, req.AmountDecimal, req.Sell.Decimals)
	if err != nil {
		return model.Quote{}, err
	}
	req.AmountBaseUnits = base
	req.AmountDecimal = dec

	if err := r.checkMinimum(req.Sell, base, dec); err != nil {
		return model.Quote{}, err
	}

	path, err := SelectPath(req.FromChain, req.ToChain, req.Sell, req.Buy)
	if err != nil {
		return model.Quote{}, err
	}

	var quote model.Quote
	switch path {
	case model.PathWrap, model.PathUnwrap:
		quote, err = r.wrapQuote(path, req)
	case model.PathGaslessSameChain:
		quote, err = r.Gasless.QuoteGasless(ctx, r.providerRequest(req))
	case model.PathOnchainSameChain:
		if req.FromChain.IsSolana() {
			quote, err = r.Solana.QuoteSolanaSwap(ctx, r.providerRequest(req))
		} else {
			quote, err = r.Swap.QuoteSwap(ctx, r.providerRequest(req))
		}
	case model.PathBridgeCrossChain:
		quote, err = r.bridgeQuote(ctx, req)
	default:
		err = clierr.New(clierr.CodeInternal, fmt.Sprintf("unknown path %q", path))
	}
	if err != nil {
		return model.Quote{}, err
	}

	if r.TTL > 0 && quote.TTLSeconds > 0 {
		quote.TTLSeconds = int64(r.TTL / time.Second)
	}
	r.attachUSDPrice(ctx, &quote)
	return quote, nil
}

func (r *Resolver) providerRequest(req Request) providers.QuoteRequest {
	return providers.QuoteRequest{
		FromChain:       req.FromChain,
		ToChain:         req.ToChain,
		Sell:            req.Sell,
		Buy:             req.Buy,
		AmountBaseUnits: req.AmountBaseUnits,
		AmountDecimal:   req.AmountDecimal,
		Taker:           req.Taker,
		Recipient:       req.Recipient,
		SlippageBps:     r.SlippageBps,
		FeeRecipient:    r.FeeRecipient,
		FeeBps:          r.FeeBps,
	}
}

// wrapQuote is served locally: the rate is 1:1 and there is nothing to
// expire.
func (r *Resolver) wrapQuote(path string, req Request) (model.Quote, error) {
	wrapped, ok := id.WrappedNative(req.FromChain.CAIP2)
	if !ok {
		return model.Quote{}, clierr.New(clierr.CodeUnsupported, "no wrapped-native contract for chain "+req.FromChain.CAIP2)
	}
	amount := model.AmountInfo{
		AmountBaseUnits: req.AmountBaseUnits,
		AmountDecimal:   req.AmountDecimal,
		Decimals:        req.Sell.Decimals,
	}
	return model.Quote{
		Path:       path,
		Provider:   "local",
		Sell:       resolverAssetRef(req.FromChain, req.Sell),
		Buy:        resolverAssetRef(req.FromChain, req.Buy),
		SellAmount: amount,
		BuyAmount:  amount,
		Price:      "1",
		ReceivedAt: r.now().UTC(),
		TTLSeconds: 0,
		Exec: model.WrapPayload{
			Direction:       path,
			WrappedContract: wrapped.Address,
			ChainID:         req.FromChain.EVMChainID,
		},
	}, nil
}

// bridgeQuote substitutes wrapped-native addresses for native sides before
// asking the bridge, keeping the user-facing assets native in the result.
func (r *Resolver) bridgeQuote(ctx context.Context, req Request) (model.Quote, error) {
	preq := r.providerRequest(req)

	sellNative := req.Sell.IsNative()
	buyNative := req.Buy.IsNative()
	if sellNative {
		substituted, err := substituteWrapped(req.FromChain, req.Sell)
		if err != nil {
			return model.Quote{}, err
		}
		preq.Sell = substituted
	}
	if buyNative {
		substituted, err := substituteWrapped(req.ToChain, req.Buy)
		if err != nil {
			return model.Quote{}, err
		}
		preq.Buy = substituted
	}

	quote, err := r.Bridge.QuoteBridge(ctx, preq)
	if err != nil {
		return model.Quote{}, err
	}
	if sellNative {
		quote.Sell = resolverAssetRef(req.FromChain, req.Sell)
	}
	if buyNative {
		quote.Buy = resolverAssetRef(req.ToChain, req.Buy)
	}
	return quote, nil
}

func substituteWrapped(chain id.Chain, asset id.Asset) (id.Asset, error) {
	wrapped, ok := id.WrappedNative(chain.CAIP2)
	if !ok {
		return id.Asset{}, clierr.New(clierr.CodeUnsupported, "no wrapped-native contract for chain "+chain.CAIP2)
	}
	out, err := id.ParseAsset(wrapped.Address, chain)
	if err != nil {
		return id.Asset{}, err
	}
	return out, nil
}

func (r *Resolver) checkMinimum(sell id.Asset, amountBase, amountDecimal string) error {
	minBase, minDecimal := r.Minimums.MinimumFor(sell)
	if minBase == nil || minBase.Sign() <= 0 {
		return nil
	}
	amount, ok := new(big.Int).SetString(amountBase, 10)
	if !ok {
		return clierr.New(clierr.CodeUsage, "invalid amount")
	}
	if amount.Cmp(minBase) < 0 {
		return clierr.New(clierr.CodeBelowMinimum,
			fmt.Sprintf("minimum %s %s, entered %s %s", minDecimal, sell.Symbol, amountDecimal, sell.Symbol))
	}
	return nil
}

// usdToSellAmount converts a dollar amount into sell-token units. A missing
// price is a hard error here because the amount itself depends on it.
func (r *Resolver) usdToSellAmount(ctx context.Context, req Request) (string, error) {
	if r.Prices == nil {
		return "", clierr.New(clierr.CodePriceUnavailable, "price provider unavailable for USD amounts")
	}
	coinID := coinIDFor(req.Sell.Symbol)
	if coinID == "" {
		return "", clierr.New(clierr.CodePriceUnavailable, fmt.Sprintf("no USD price source for %s", req.Sell.Symbol))
	}
	prices, err := r.Prices.USDPrices(ctx, []string{coinID})
	if err != nil {
		return "", clierr.Wrap(clierr.CodePriceUnavailable, "fetch USD price", err)
	}
	price := prices[coinID]
	if price <= 0 {
		return "", clierr.New(clierr.CodePriceUnavailable, fmt.Sprintf("no USD price for %s", req.Sell.Symbol))
	}

	precision := req.Sell.Decimals
	if precision > 8 {
		precision = 8
	}
	return strconv.FormatFloat(req.AmountUSD/price, 'f', precision, 64), nil
}

func (r *Resolver) attachUSDPrice(ctx context.Context, quote *model.Quote) {
	if r.Prices == nil {
		return
	}
	coinID := coinIDFor(quote.Sell.Symbol)
	if coinID == "" {
		return
	}
	prices, err := r.Prices.USDPrices(ctx, []string{coinID})
	if err != nil {
		// Display-only: degrade to an unknown price.
		return
	}
	quote.PriceUSD = prices[coinID]
}

func resolverAssetRef(chain id.Chain, asset id.Asset) model.AssetRef {
	return model.AssetRef{
		ChainID:   asset.ChainID,
		ChainSlug: chain.Slug,
		AssetID:   asset.AssetID,
		Address:   asset.Address,
		Symbol:    asset.Symbol,
		Decimals:  asset.Decimals,
		Native:    asset.IsNative(),
	}
}

func coinIDFor(symbol string) string {
	return coinIDBySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
}

// Kept package-local so the resolver does not depend on a concrete price
// client implementation.
var coinIDBySymbol = map[string]string{
	"ETH":  "ethereum",
	"WETH": "weth",
	"POL":  "polygon-ecosystem-token",
	"WPOL": "polygon-ecosystem-token",
	"SOL":  "solana",
	"USDC": "usd-coin",
	"USDT": "tether",
	"DAI":  "dai",
	"WBTC": "wrapped-bitcoin",
	"JUP":  "jupiter-exchange-solana",
}
