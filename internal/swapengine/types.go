package swapengine

import (
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/shopspring/decimal"
)

// Reason explains a TradeDecision
type Reason string

const (
	ReasonOK              Reason = "OK"
	ReasonCooldown        Reason = "COOLDOWN"
	ReasonHourlyLimit     Reason = "HOURLY_LIMIT"
	ReasonDailyLimit      Reason = "DAILY_LIMIT"
	ReasonBlacklisted     Reason = "BLACKLISTED"
	ReasonLowLiquidity    Reason = "LOW_LIQUIDITY"
	ReasonHighPriceImpact Reason = "HIGH_PRICE_IMPACT"
)

// Candidate is a sized BUY waiting for a gate decision
type Candidate struct {
	Signal    models.TradeSignal
	Mint      string
	AmountSOL decimal.Decimal
}

// TradeDecision is the SafetyGate verdict for one candidate.
// Denials are expected outcomes and are never returned as errors.
type TradeDecision struct {
	Allowed bool
	Reason  Reason
	Detail  string
	Err     error // set when market data was unavailable (fail-closed)
}

// SafetyState is the gate's rate-limit bookkeeping
type SafetyState struct {
	LastTradeAt      time.Time       `json:"last_trade_at"`
	TradesThisHour   int             `json:"trades_this_hour"`
	HourWindowStart  time.Time       `json:"hour_window_start"`
	ValueTradedToday decimal.Decimal `json:"value_traded_today_sol"`
	DayWindowStart   time.Time       `json:"day_window_start"`
}

// ExecutionStatus is the externally reported state of an execution
type ExecutionStatus string

const (
	StatusSubmitted ExecutionStatus = "SUBMITTED"
	StatusConfirmed ExecutionStatus = "CONFIRMED"
	StatusFailed    ExecutionStatus = "FAILED"
)

// ExecutionState is a step of the executor state machine
type ExecutionState string

const (
	StateBuilding  ExecutionState = "BUILDING"
	StateSigned    ExecutionState = "SIGNED"
	StateSubmitted ExecutionState = "SUBMITTED"
	StateConfirmed ExecutionState = "CONFIRMED"
	StateFailed    ExecutionState = "FAILED"
)

// ExecutionResult represents the complete execution lifecycle of one mirrored trade
type ExecutionResult struct {
	// Identifiers
	ExecutionID     string
	SourceSignature string
	Signature       string // operator transaction signature, empty until signed

	// Outcome
	Status   ExecutionStatus
	State    ExecutionState
	Err      error // *ExecError when Status is FAILED
	Attempts int

	// Execution timeline
	StartedAt   time.Time
	SignedAt    *time.Time
	SentAt      *time.Time
	ConfirmedAt *time.Time
	CompletedAt time.Time

	// Blockchain details
	Slot        uint64
	Transitions []ExecutionState
}

// Stage is how far an event got through the pipeline
type Stage string

const (
	StageClassified Stage = "classified" // SELL or IGNORE, stopped after classification
	StageSkipped    Stage = "skipped"    // kill switch, duplicate, sizing or balance failure
	StageDenied     Stage = "denied"
	StageDryRun     Stage = "dry_run"
	StageExecuted   Stage = "executed"
)

// Outcome is what the orchestrator reports for one event
type Outcome struct {
	Signal    models.TradeSignal
	Stage     Stage
	Decision  *TradeDecision
	SkipCause string // set when Stage is skipped
	AmountSOL decimal.Decimal
	Result    *ExecutionResult
	Err       error
	At        time.Time
}

// Record flattens an outcome for caches and stores
func (o *Outcome) Record() *models.TradeRecord {
	rec := &models.TradeRecord{
		SourceSignature: o.Signal.SourceSignature,
		Timestamp:       o.At,
		Side:            string(o.Signal.Side),
		Mint:            o.Signal.Mint,
		Stage:           string(o.Stage),
		AmountSOL:       o.AmountSOL.InexactFloat64(),
		DryRun:          o.Stage == StageDryRun,
	}
	if o.Decision != nil && !o.Decision.Allowed {
		rec.Reason = string(o.Decision.Reason)
	} else {
		rec.Reason = o.SkipCause
	}
	if o.Result != nil {
		rec.ExecutionID = o.Result.ExecutionID
		rec.Status = string(o.Result.Status)
		rec.Signature = o.Result.Signature
		rec.Attempts = o.Result.Attempts
		if o.Result.Err != nil {
			rec.Error = o.Result.Err.Error()
		}
	}
	if o.Err != nil && rec.Error == "" {
		rec.Error = o.Err.Error()
	}
	return rec
}
