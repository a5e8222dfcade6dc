package coingecko

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/httpx"
	"github.com/nmorales94/swapflow/internal/model"
)

const defaultBase = "https://api.coingecko.com/api/v3"

// cacheTTL bounds how stale a displayed USD price may be.
const cacheTTL = 60 * time.Second

type cachedPrice struct {
	value     float64
	fetchedAt time.Time
}

type Client struct {
	http    *httpx.Client
	baseURL string
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrice
}

func New(httpClient *httpx.Client) *Client {
	return &Client{
		http:    httpClient,
		baseURL: defaultBase,
		now:     time.Now,
		cache:   map[string]cachedPrice{},
	}
}

func (c *Client) SetBaseURL(u string) {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u != "" {
		c.baseURL = u
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "coingecko",
		Type:        "prices",
		RequiresKey: false,
		Capabilities: []string{
			"prices.usd",
		},
	}
}

// CoinIDBySymbol maps common tickers to CoinGecko coin ids. Unknown symbols
// simply have no USD display price.
var CoinIDBySymbol = map[string]string{
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

// USDPrices returns prices for the requested coin ids, serving from a short
// cache. Missing entries are omitted rather than treated as errors.
func (c *Client) USDPrices(ctx context.Context, coinIDs []string) (map[string]float64, error) {
	out := map[string]float64{}
	missing := make([]string, 0, len(coinIDs))

	c.mu.Lock()
	for _, coinID := range coinIDs {
		coinID = strings.TrimSpace(coinID)
		if coinID == "" {
			continue
		}
		if entry, ok := c.cache[coinID]; ok && c.now().Sub(entry.fetchedAt) < cacheTTL {
			out[coinID] = entry.value
			continue
		}
		missing = append(missing, coinID)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	vals := url.Values{}
	vals.Set("ids", strings.Join(missing, ","))
	vals.Set("vs_currencies", "usd")

	reqURL := c.baseURL + "/simple/price?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build price request", err)
	}

	var resp map[string]struct {
		USD float64 `json:"usd"`
	}
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for coinID, entry := range resp {
		out[coinID] = entry.USD
		c.cache[coinID] = cachedPrice{value: entry.USD, fetchedAt: c.now()}
	}
	c.mu.Unlock()

	return out, nil
}
