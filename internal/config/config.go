package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Wallets
	TrackedWallet    string
	OperatorWallet   string // optional, must match the signing key when set
	WalletPrivateKey string
	WalletCommitment string

	// RPC settings
	RPCUrl       string
	PollInterval time.Duration

	// HTTP client settings
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// Safety gate
	Cooldown         time.Duration
	MaxTradesPerHour int
	MaxDailyValueSOL decimal.Decimal
	Blacklist        []string
	MinLiquidityUSD  decimal.Decimal
	MaxPriceImpact   decimal.Decimal

	// Sizing
	MaxSOLPerTrade decimal.Decimal
	MinSOLBalance  decimal.Decimal

	// Execution
	MaxSubmissionRetries int
	ConfirmTimeout       time.Duration
	BlockhashMaxAge      time.Duration
	SlippageBps          uint16
	DryRun               bool

	// Classification
	SwapEventTypes []string

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ClickHouse settings, empty address disables the store
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// HTTP API
	APIAddr       string
	APIKey        string
	WebhookSecret string
	DevMode       bool

	// Market data
	JupiterBaseURL     string
	JupiterAPIKey      string
	DexScreenerBaseURL string

	// Stream provider: webhook | rpc
	StreamProvider string
}

// Load reads the environment once. Malformed values fall back to defaults;
// Validate reports what cannot be defaulted.
func Load() *Config {
	return &Config{
		// Wallets
		TrackedWallet:    getEnv("TRACKED_WALLET_ADDRESS", ""),
		OperatorWallet:   getEnv("OPERATOR_WALLET_ADDRESS", ""),
		WalletPrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),
		WalletCommitment: getEnv("WALLET_COMMITMENT", "confirmed"),

		// RPC
		RPCUrl:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		PollInterval: getDurationEnv("POLL_INTERVAL", 10*time.Second),

		// HTTP
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 5),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		// Safety gate
		Cooldown:         getDurationEnv("COOLDOWN_DURATION", 60*time.Second),
		MaxTradesPerHour: getIntEnv("MAX_TRADES_PER_HOUR", 10),
		MaxDailyValueSOL: getDecimalEnv("MAX_DAILY_TRADE_VALUE_SOL", decimal.NewFromInt(5)),
		Blacklist:        getListEnv("BLACKLISTED_TOKENS", nil),
		MinLiquidityUSD:  getDecimalEnv("MIN_LIQUIDITY_USD", decimal.NewFromInt(50_000)),
		MaxPriceImpact:   getDecimalEnv("MAX_PRICE_IMPACT", decimal.RequireFromString("0.03")),

		// Sizing
		MaxSOLPerTrade: getDecimalEnv("MAX_SOL_PER_TRADE", decimal.RequireFromString("0.1")),
		MinSOLBalance:  getDecimalEnv("MIN_SOL_BALANCE", decimal.RequireFromString("0.05")),

		// Execution
		MaxSubmissionRetries: getIntEnv("MAX_SUBMISSION_RETRIES", 3),
		ConfirmTimeout:       getDurationEnv("CONFIRM_TIMEOUT", 90*time.Second),
		BlockhashMaxAge:      getDurationEnv("BLOCKHASH_MAX_AGE", 60*time.Second),
		SlippageBps:          uint16(getIntEnv("SLIPPAGE_BPS", 100)),
		DryRun:               getBoolEnv("DRY_RUN", false),

		// Classification
		SwapEventTypes: getListEnv("SWAP_EVENT_TYPES", constants.DefaultSwapEventTypes),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "solana"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// HTTP API
		APIAddr:       getEnv("API_ADDR", ":8090"),
		APIKey:        getEnv("API_KEY", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		DevMode:       getBoolEnv("DEV_MODE", false),

		// Market data
		JupiterBaseURL:     getEnv("JUPITER_BASE_URL", ""),
		JupiterAPIKey:      getEnv("JUPITER_API_KEY", ""),
		DexScreenerBaseURL: getEnv("DEXSCREENER_BASE_URL", ""),

		// Stream
		StreamProvider: strings.ToLower(getEnv("STREAM_PROVIDER", "webhook")),
	}
}

// Validate checks everything the copy trader cannot start without
func (c *Config) Validate() error {
	var errs []error

	if c.TrackedWallet == "" {
		errs = append(errs, errors.New("TRACKED_WALLET_ADDRESS is required"))
	} else if _, err := solana.PublicKeyFromBase58(c.TrackedWallet); err != nil {
		errs = append(errs, fmt.Errorf("TRACKED_WALLET_ADDRESS: %w", err))
	}
	if c.OperatorWallet != "" {
		if _, err := solana.PublicKeyFromBase58(c.OperatorWallet); err != nil {
			errs = append(errs, fmt.Errorf("OPERATOR_WALLET_ADDRESS: %w", err))
		}
		if c.OperatorWallet == c.TrackedWallet {
			errs = append(errs, errors.New("OPERATOR_WALLET_ADDRESS must differ from TRACKED_WALLET_ADDRESS"))
		}
	}
	if c.WalletPrivateKey == "" {
		errs = append(errs, errors.New("WALLET_PRIVATE_KEY is required"))
	}

	if c.Cooldown < 0 {
		errs = append(errs, errors.New("COOLDOWN_DURATION must not be negative"))
	}
	if c.MaxTradesPerHour < 0 {
		errs = append(errs, errors.New("MAX_TRADES_PER_HOUR must not be negative"))
	}
	if c.MaxDailyValueSOL.IsNegative() {
		errs = append(errs, errors.New("MAX_DAILY_TRADE_VALUE_SOL must not be negative"))
	}
	if c.MinLiquidityUSD.IsNegative() {
		errs = append(errs, errors.New("MIN_LIQUIDITY_USD must not be negative"))
	}
	if c.MaxPriceImpact.IsNegative() || c.MaxPriceImpact.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("MAX_PRICE_IMPACT must be a fraction between 0 and 1"))
	}
	if !c.MaxSOLPerTrade.IsPositive() {
		errs = append(errs, errors.New("MAX_SOL_PER_TRADE must be positive"))
	}
	if c.MinSOLBalance.IsNegative() {
		errs = append(errs, errors.New("MIN_SOL_BALANCE must not be negative"))
	}
	if c.MaxSubmissionRetries < 1 {
		errs = append(errs, errors.New("MAX_SUBMISSION_RETRIES must be at least 1"))
	}
	if c.SlippageBps == 0 || c.SlippageBps > 10_000 {
		errs = append(errs, errors.New("SLIPPAGE_BPS must be between 1 and 10000"))
	}
	if len(c.SwapEventTypes) == 0 {
		errs = append(errs, errors.New("SWAP_EVENT_TYPES must list at least one type"))
	}

	switch c.StreamProvider {
	case "webhook", "rpc":
	default:
		errs = append(errs, fmt.Errorf("STREAM_PROVIDER %q is not webhook or rpc", c.StreamProvider))
	}
	if c.StreamProvider == "rpc" && c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}

// getDurationEnv accepts Go durations ("90s") or whole seconds ("90")
func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func getDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(val)); err == nil {
			return d
		}
	}
	return defaultVal
}

// getListEnv splits a comma separated value, dropping blanks
func getListEnv(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
