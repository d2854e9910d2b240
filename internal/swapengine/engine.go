package swapengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/observability"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/signal"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/switches"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Skip causes reported when a BUY stops before the gate
const (
	SkipKillSwitch          = "kill_switch"
	SkipDuplicate           = "duplicate"
	SkipBalanceUnavailable  = "balance_unavailable"
	SkipInsufficientBalance = "insufficient_balance"
)

// TradeExecutor runs one mirrored buy to a terminal result; *Executor implements it
type TradeExecutor interface {
	Execute(ctx context.Context, signal models.TradeSignal, lamports uint64) *ExecutionResult
}

// BalanceSource reads the operator balance; *wallet.Wallet implements it
type BalanceSource interface {
	PublicKey() solana.PublicKey
	GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error)
}

// SwitchReader resolves runtime switches; *switches.Store implements it
type SwitchReader interface {
	IsOn(ctx context.Context, key string) (bool, error)
}

// OutcomeCache is the part of storage.TradeCache the engine writes to
type OutcomeCache interface {
	AddRecentTrade(ctx context.Context, rec *models.TradeRecord) error
	PublishTrade(ctx context.Context, rec *models.TradeRecord) error
	ClaimSignature(ctx context.Context, signature string, ttl time.Duration) (bool, error)
	ReleaseSignature(ctx context.Context, signature string) error
}

// OutcomeStore is the part of storage.TradeStore the engine writes to
type OutcomeStore interface {
	InsertTrade(ctx context.Context, rec *models.TradeRecord) error
}

// EngineConfig wires the pipeline. Cache, Store, Switches and Metrics are optional.
type EngineConfig struct {
	TrackedWallet string

	Classifier *signal.Classifier
	Gate       *SafetyGate
	Sizer      TradeSizer
	Executor   TradeExecutor
	Balance    BalanceSource

	Cache    OutcomeCache
	Store    OutcomeStore
	Switches SwitchReader
	Metrics  *observability.Metrics
	Logger   *logrus.Logger

	DryRun      bool
	DedupeTTL   time.Duration
	Concurrency int // events of one batch processed in parallel
}

// Engine is the copy-trade orchestrator: classify, size, gate, execute, report.
type Engine struct {
	cfg    EngineConfig
	logger *logrus.Logger
	now    func() time.Time

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// NewEngine validates the wiring and returns a ready engine
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.TrackedWallet == "" {
		return nil, fmt.Errorf("tracked wallet is required")
	}
	if _, err := solana.PublicKeyFromBase58(cfg.TrackedWallet); err != nil {
		return nil, fmt.Errorf("invalid tracked wallet: %w", err)
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("safety gate is nil")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is nil")
	}
	if cfg.Balance == nil {
		return nil, fmt.Errorf("balance source is nil")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = signal.NewClassifier(nil)
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = constants.SeenSignatureTTL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       cfg,
		logger:    cfg.Logger,
		now:       time.Now,
		runCtx:    runCtx,
		cancelRun: cancel,
	}, nil
}

// HandleJSON normalizes a raw notification body and processes it synchronously
func (e *Engine) HandleJSON(ctx context.Context, body []byte) ([]Outcome, error) {
	batch, err := signal.NormalizeJSON(body)
	if err != nil {
		return nil, err
	}
	return e.ProcessEvents(ctx, e.accept(batch)), nil
}

// HandlePayload is HandleJSON for an already decoded payload
func (e *Engine) HandlePayload(ctx context.Context, payload any) ([]Outcome, error) {
	batch, err := signal.Normalize(payload)
	if err != nil {
		return nil, err
	}
	return e.ProcessEvents(ctx, e.accept(batch)), nil
}

// Accept normalizes body and hands the events to Submit. It returns the
// number of events accepted.
func (e *Engine) Accept(body []byte) (int, error) {
	batch, err := signal.NormalizeJSON(body)
	if err != nil {
		return 0, err
	}
	events := e.accept(batch)
	e.Submit(events)
	return len(events), nil
}

func (e *Engine) accept(batch *signal.Batch) []models.TransactionEvent {
	for _, d := range batch.Dropped {
		e.logger.WithFields(logrus.Fields{"index": d.Index, "reason": d.Reason}).Warn("dropped malformed event")
	}
	if m := e.cfg.Metrics; m != nil {
		m.EventsReceived.Add(float64(len(batch.Events)))
		m.EventsDropped.Add(float64(len(batch.Dropped)))
	}
	return batch.Events
}

// ProcessEvents runs every event through the pipeline. Events are
// independent: a failure in one never affects the others. Outcomes are
// returned in event order.
func (e *Engine) ProcessEvents(ctx context.Context, events []models.TransactionEvent) []Outcome {
	outcomes := make([]Outcome, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i := range events {
		g.Go(func() error {
			outcomes[i] = e.processEvent(gctx, events[i])
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Submit processes events in the background, detached from the caller's
// request. Shutdown waits for it.
func (e *Engine) Submit(events []models.TransactionEvent) {
	if len(events) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.ProcessEvents(e.runCtx, events)
	}()
}

// Wait blocks until every submitted batch has finished
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown waits for submitted batches. When ctx ends first, in-flight work
// is canceled and ctx's error is returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancelRun()
		return nil
	case <-ctx.Done():
		e.cancelRun()
		<-done
		return ctx.Err()
	}
}

func (e *Engine) processEvent(ctx context.Context, ev models.TransactionEvent) Outcome {
	start := e.now()
	sig := e.cfg.Classifier.Classify(ev, e.cfg.TrackedWallet)
	if m := e.cfg.Metrics; m != nil {
		m.RecordSignal(string(sig.Side))
	}

	out := e.decide(ctx, sig)
	out.At = e.now()

	if m := e.cfg.Metrics; m != nil {
		m.EventLatency.Observe(out.At.Sub(start).Seconds())
	}
	e.report(ctx, &out)
	return out
}

// decide runs the BUY path: kill switch, dedupe, size, gate, execute
func (e *Engine) decide(ctx context.Context, sig models.TradeSignal) Outcome {
	out := Outcome{Signal: sig, Stage: StageClassified}
	if sig.Side != models.SideBuy {
		return out
	}

	enabled, dryRun := e.switchState(ctx)
	if !enabled {
		out.Stage, out.SkipCause = StageSkipped, SkipKillSwitch
		return out
	}

	claimed := false
	if e.cfg.Cache != nil {
		fresh, err := e.cfg.Cache.ClaimSignature(ctx, sig.SourceSignature, e.cfg.DedupeTTL)
		if err != nil {
			// the executor's in-flight guard still stops concurrent duplicates
			e.logger.WithError(err).WithField("source", sig.SourceSignature).Warn("dedupe check failed")
		} else if !fresh {
			out.Stage, out.SkipCause = StageSkipped, SkipDuplicate
			return out
		}
		claimed = err == nil
	}

	balance, err := e.cfg.Balance.GetBalance(ctx, e.cfg.Balance.PublicKey())
	if err != nil {
		// transient: a redelivery of this notification should be mirrored
		if claimed {
			if rerr := e.cfg.Cache.ReleaseSignature(ctx, sig.SourceSignature); rerr != nil {
				e.logger.WithError(rerr).WithField("source", sig.SourceSignature).Warn("dedupe release failed")
			}
		}
		out.Stage, out.SkipCause, out.Err = StageSkipped, SkipBalanceUnavailable, err
		return out
	}

	amount, lamports, err := e.cfg.Sizer.SizeLamports(balance)
	if err != nil {
		out.Stage, out.SkipCause, out.Err = StageSkipped, SkipInsufficientBalance, err
		return out
	}
	out.AmountSOL = amount

	decision := e.cfg.Gate.Evaluate(ctx, Candidate{Signal: sig, Mint: sig.Mint, AmountSOL: amount})
	out.Decision = &decision
	if m := e.cfg.Metrics; m != nil {
		m.RecordDecision(string(decision.Reason))
	}
	if !decision.Allowed {
		out.Stage, out.Err = StageDenied, decision.Err
		return out
	}

	if dryRun {
		out.Stage = StageDryRun
		return out
	}

	res := e.cfg.Executor.Execute(ctx, sig, lamports)
	out.Stage, out.Result = StageExecuted, res
	if m := e.cfg.Metrics; m != nil && res != nil {
		m.RecordExecution(string(res.Status), KindName(res.Err), res.Attempts, res.CompletedAt.Sub(res.StartedAt))
	}
	return out
}

// switchState returns (trading enabled, dry run). Switch read errors keep
// the configured defaults.
func (e *Engine) switchState(ctx context.Context) (bool, bool) {
	enabled, dryRun := true, e.cfg.DryRun
	if e.cfg.Switches == nil {
		return enabled, dryRun
	}

	if on, err := e.cfg.Switches.IsOn(ctx, switches.TradingEnabled); err == nil {
		enabled = on
	} else if !errors.Is(err, switches.ErrNotFound) {
		e.logger.WithError(err).Warn("kill switch read failed, trading stays enabled")
	}

	if on, err := e.cfg.Switches.IsOn(ctx, switches.DryRun); err == nil {
		dryRun = dryRun || on
	} else if !errors.Is(err, switches.ErrNotFound) {
		e.logger.WithError(err).Warn("dry run switch read failed")
	}
	return enabled, dryRun
}

// report logs an outcome and writes it to the cache and store.
// IGNORE outcomes only reach the log.
func (e *Engine) report(ctx context.Context, o *Outcome) {
	rec := o.Record()
	log := e.logger.WithFields(logrus.Fields{
		"source": rec.SourceSignature,
		"side":   rec.Side,
		"stage":  rec.Stage,
	})
	if rec.Mint != "" {
		log = log.WithField("mint", constants.ShortMint(rec.Mint))
	}

	switch o.Stage {
	case StageClassified:
		if o.Signal.Side == models.SideIgnore {
			log.Debug("event ignored")
			return
		}
		log.Info("tracked wallet sold, not mirrored")
	case StageSkipped:
		entry := log.WithField("cause", o.SkipCause)
		if o.Err != nil {
			entry.WithError(o.Err).Warn("buy skipped")
		} else {
			entry.Info("buy skipped")
		}
	case StageDenied:
		entry := log.WithFields(logrus.Fields{"reason": rec.Reason, "detail": o.Decision.Detail, "amount_sol": rec.AmountSOL})
		if o.Err != nil {
			entry.WithError(o.Err).Warn("buy denied")
		} else {
			entry.Info("buy denied")
		}
	case StageDryRun:
		log.WithField("amount_sol", rec.AmountSOL).Info("dry run, buy not sent")
	case StageExecuted:
		entry := log.WithFields(logrus.Fields{
			"execution_id": rec.ExecutionID,
			"status":       rec.Status,
			"signature":    rec.Signature,
			"attempts":     rec.Attempts,
			"amount_sol":   rec.AmountSOL,
		})
		if o.Result != nil && o.Result.Status == StatusConfirmed {
			entry.Info("buy confirmed")
		} else {
			entry.WithField("error", rec.Error).Warn("buy failed")
		}
	}

	if e.cfg.Cache != nil {
		if err := e.cfg.Cache.AddRecentTrade(ctx, rec); err != nil {
			e.reportError("cache", err, rec)
		}
		if err := e.cfg.Cache.PublishTrade(ctx, rec); err != nil {
			e.reportError("pubsub", err, rec)
		}
	}
	if e.cfg.Store != nil {
		if err := e.cfg.Store.InsertTrade(ctx, rec); err != nil {
			e.reportError("store", err, rec)
		}
	}
}

func (e *Engine) reportError(sink string, err error, rec *models.TradeRecord) {
	e.logger.WithError(err).WithFields(logrus.Fields{"sink": sink, "source": rec.SourceSignature}).Warn("failed to record outcome")
	if m := e.cfg.Metrics; m != nil {
		m.RecordReportError(sink)
	}
}

// Status is a point-in-time view of the engine for the status endpoint
type Status struct {
	TrackedWallet string      `json:"tracked_wallet"`
	Operator      string      `json:"operator_wallet"`
	DryRun        bool        `json:"dry_run"`
	Safety        SafetyState `json:"safety"`
	Limits        Limits      `json:"limits"`
}

// Limits is RiskConfig and the sizer caps in a JSON friendly form
type Limits struct {
	CooldownSeconds  float64  `json:"cooldown_seconds"`
	MaxTradesPerHour int      `json:"max_trades_per_hour"`
	MaxDailyValueSOL string   `json:"max_daily_value_sol"`
	MinLiquidityUSD  string   `json:"min_liquidity_usd"`
	MaxPriceImpact   string   `json:"max_price_impact"`
	MaxSOLPerTrade   string   `json:"max_sol_per_trade"`
	MinSOLBalance    string   `json:"min_sol_balance"`
	Blacklist        []string `json:"blacklist"`
}

func (e *Engine) Status(ctx context.Context) Status {
	_, dryRun := e.switchState(ctx)
	rc := e.cfg.Gate.Config()
	bl := rc.Blacklist
	if bl == nil {
		bl = []string{}
	}
	return Status{
		TrackedWallet: e.cfg.TrackedWallet,
		Operator:      e.cfg.Balance.PublicKey().String(),
		DryRun:        dryRun,
		Safety:        e.cfg.Gate.Snapshot(),
		Limits: Limits{
			CooldownSeconds:  rc.Cooldown.Seconds(),
			MaxTradesPerHour: rc.MaxTradesPerHour,
			MaxDailyValueSOL: rc.MaxDailyValueSOL.String(),
			MinLiquidityUSD:  rc.MinLiquidityUSD.String(),
			MaxPriceImpact:   rc.MaxPriceImpact.String(),
			MaxSOLPerTrade:   e.cfg.Sizer.MaxPerTradeSOL.String(),
			MinSOLBalance:    e.cfg.Sizer.MinReserveSOL.String(),
			Blacklist:        bl,
		},
	}
}
