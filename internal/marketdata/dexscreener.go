package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultDexScreenerURL = "https://api.dexscreener.com/latest/dex"

// DexScreener reads pool liquidity from the public DexScreener API
type DexScreener struct {
	BaseURL string
	HTTP    *http.Client
}

func NewDexScreener(baseURL string) *DexScreener {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultDexScreenerURL
	}
	return &DexScreener{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenPairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	Liquidity *struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"liquidity"`
}

// TokenLiquidityUSD sums the USD liquidity of every Solana pair that trades mint.
// A token with no pairs has zero liquidity, which is not an error.
func (d *DexScreener) TokenLiquidityUSD(ctx context.Context, mint string) (decimal.Decimal, error) {
	if strings.TrimSpace(mint) == "" {
		return decimal.Zero, fmt.Errorf("mint is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/tokens/"+url.PathEscape(mint), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("accept", "application/json")

	res, err := d.HTTP.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("dexscreener request: %w", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if res.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("dexscreener http %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out tokenPairsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode dexscreener response: %w", err)
	}

	total := decimal.Zero
	for _, p := range out.Pairs {
		if p.ChainID != "solana" || p.Liquidity == nil {
			continue
		}
		total = total.Add(p.Liquidity.USD)
	}
	return total, nil
}
