package constants

import "time"

// Redis keys
const (
	RedisKeyRecentTrades  = "copytrade:recent"
	RedisKeySeenPrefix    = "copytrade:seen:"
	RedisKeyLiquidityPref = "copytrade:liquidity:"
)

// Redis Pub/Sub channels
const (
	PubSubChannelOutcomes = "copytrade:outcomes"
)

// Limits
const (
	MaxRecentTrades    = 200
	SignatureBatchSize = 10
	SeenSignatureTTL   = 24 * time.Hour
	LiquidityCacheTTL  = 30 * time.Second
)

// Rate limiting
const (
	DelayBetweenTxFetch = 500 * time.Millisecond // Delay between getTransaction calls
)

// Native SOL
const (
	LamportsPerSOL = 1_000_000_000
	SOLDecimals    = 9
	// WrappedSOLMint is the SPL mint that represents native SOL inside token programs.
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
)

// Enhanced transaction types that describe a token swap.
var DefaultSwapEventTypes = []string{"SWAP"}

// Token mint addresses to symbols, used only for log readability.
var TokenSymbols = map[string]string{
	WrappedSOLMint: "SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "mSOL",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr": "POPCAT",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",
	"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R": "RAY",
}

// ShortMint returns the known symbol for a mint, or a shortened mint.
func ShortMint(mint string) string {
	if symbol, ok := TokenSymbols[mint]; ok {
		return symbol
	}
	if len(mint) > 8 {
		return mint[:4] + "..." + mint[len(mint)-4:]
	}
	return mint
}
