package swapengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/rpc"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChainClient is the operator wallet as seen by the executor.
// *wallet.Wallet implements it.
type ChainClient interface {
	PublicKey() solana.PublicKey
	GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error)
	GetLatestBlockhashInfo(ctx context.Context) (wallet.BlockhashInfo, error)
	SignTx(tx *solana.Transaction) error
	SendTx(ctx context.Context, tx *solana.Transaction, opts *wallet.SendOptions) (string, error)
	Confirm(ctx context.Context, signature string, info wallet.BlockhashInfo) (*wallet.ConfirmResult, error)
}

// InstructionBuilder assembles the instructions that buy mint with lamports of SOL
type InstructionBuilder interface {
	BuildBuy(ctx context.Context, owner solana.PublicKey, mint string, lamports uint64) ([]solana.Instruction, error)
}

type ExecutorConfig struct {
	MaxSubmissionRetries int           // hard ceiling on broadcast attempts
	RetryBackoff         time.Duration // first backoff, doubled per attempt
	MaxBackoff           time.Duration
	ConfirmTimeout       time.Duration
	BlockhashMaxAge      time.Duration // re-fetch before signing past this age
	SendOptions          *wallet.SendOptions
	Logger               *logrus.Logger
}

// DefaultExecutorConfig returns sensible defaults
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxSubmissionRetries: 3,
		RetryBackoff:         500 * time.Millisecond,
		MaxBackoff:           4 * time.Second,
		ConfirmTimeout:       90 * time.Second,
		BlockhashMaxAge:      60 * time.Second,
	}
}

// Executor runs the BUILDING -> SIGNED -> SUBMITTED -> CONFIRMED|FAILED
// state machine for one mirrored trade at a time per source signature.
type Executor struct {
	chain   ChainClient
	builder InstructionBuilder
	cfg     ExecutorConfig
	logger  *logrus.Logger
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewExecutor(chain ChainClient, builder InstructionBuilder, cfg ExecutorConfig) *Executor {
	def := DefaultExecutorConfig()
	if cfg.MaxSubmissionRetries <= 0 {
		cfg.MaxSubmissionRetries = def.MaxSubmissionRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		cfg.MaxBackoff = cfg.RetryBackoff * 8
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.BlockhashMaxAge <= 0 {
		cfg.BlockhashMaxAge = def.BlockhashMaxAge
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Executor{
		chain:    chain,
		builder:  builder,
		cfg:      cfg,
		logger:   cfg.Logger,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// Execute buys signal.Mint with lamports of SOL and waits for the outcome.
// The returned result is always terminal (CONFIRMED or FAILED); a FAILED
// result is never retried here.
func (e *Executor) Execute(ctx context.Context, signal models.TradeSignal, lamports uint64) *ExecutionResult {
	res := &ExecutionResult{
		ExecutionID:     uuid.NewString(),
		SourceSignature: signal.SourceSignature,
		StartedAt:       e.now(),
	}
	log := e.logger.WithFields(logrus.Fields{
		"execution_id": res.ExecutionID,
		"source":       signal.SourceSignature,
		"mint":         signal.Mint,
		"lamports":     lamports,
	})

	if !e.acquire(signal.SourceSignature) {
		return e.fail(res, ErrAlreadyInFlight, nil)
	}
	defer e.release(signal.SourceSignature)

	// BUILDING
	e.transition(res, StateBuilding)
	owner := e.chain.PublicKey()

	ixs, err := e.builder.BuildBuy(ctx, owner, signal.Mint, lamports)
	if err != nil {
		return e.fail(res, ErrBuildFailed, fmt.Errorf("instructions: %w", err))
	}

	info, err := e.chain.GetLatestBlockhashInfo(ctx)
	if err != nil {
		return e.fail(res, ErrBuildFailed, fmt.Errorf("blockhash: %w", err))
	}

	tx, err := solana.NewTransaction(ixs, info.Blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return e.fail(res, ErrBuildFailed, fmt.Errorf("transaction: %w", err))
	}

	// SIGNED
	if e.now().Sub(info.FetchedAt) > e.cfg.BlockhashMaxAge {
		if info, err = e.refreshBlockhash(ctx, tx); err != nil {
			return e.fail(res, ErrBuildFailed, err)
		}
	}
	if err := e.chain.SignTx(tx); err != nil {
		return e.fail(res, ErrBuildFailed, err)
	}
	signedAt := e.now()
	res.SignedAt = &signedAt
	res.Signature = firstSignature(tx)
	e.transition(res, StateSigned)

	// SUBMITTED
	sig, info, err := e.submit(ctx, tx, info, res, log)
	if err != nil {
		return e.fail(res, kindOf(err), err)
	}
	sentAt := e.now()
	res.SentAt = &sentAt
	res.Signature = sig
	res.Status = StatusSubmitted
	e.transition(res, StateSubmitted)
	log.WithFields(logrus.Fields{"signature": sig, "attempts": res.Attempts}).Info("transaction submitted")

	// CONFIRMED | FAILED
	cctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	out, err := e.chain.Confirm(cctx, sig, info)
	if err != nil {
		return e.fail(res, ErrTimeout, err)
	}
	res.Slot = out.Slot

	switch out.Status {
	case wallet.ConfirmLanded:
		confirmedAt := e.now()
		res.ConfirmedAt = &confirmedAt
		res.Status = StatusConfirmed
		res.CompletedAt = confirmedAt
		e.transition(res, StateConfirmed)
		return res
	case wallet.ConfirmExpired:
		return e.fail(res, ErrExpired, fmt.Errorf("last valid block height %d passed", info.LastValidBlockHeight))
	default:
		return e.fail(res, ErrBroadcastRejected, fmt.Errorf("on-chain error: %s", out.Err))
	}
}

// submit broadcasts tx with bounded retries. Transient failures resend the
// same signed transaction, which is idempotent on chain. A blockhash the
// node no longer knows is replaced and the transaction re-signed.
func (e *Executor) submit(
	ctx context.Context,
	tx *solana.Transaction,
	info wallet.BlockhashInfo,
	res *ExecutionResult,
	log *logrus.Entry,
) (string, wallet.BlockhashInfo, error) {

	backoff := e.cfg.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxSubmissionRetries; attempt++ {
		res.Attempts = attempt

		sig, err := e.chain.SendTx(ctx, tx, e.cfg.SendOptions)
		if err == nil {
			return sig, info, nil
		}
		lastErr = err

		switch classifySendError(err) {
		case sendInsufficientFunds:
			return "", info, execErr(ErrInsufficientFunds, err)
		case sendRejected:
			return "", info, execErr(ErrBroadcastRejected, err)
		case sendCanceled:
			return "", info, execErr(ErrTimeout, err)
		case sendStaleBlockhash:
			fresh, rerr := e.refreshBlockhash(ctx, tx)
			if rerr != nil {
				lastErr = rerr
			} else {
				info = fresh
				if serr := e.chain.SignTx(tx); serr != nil {
					return "", info, execErr(ErrBuildFailed, serr)
				}
				res.Signature = firstSignature(tx)
			}
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     e.cfg.MaxSubmissionRetries,
		}).Warn("broadcast failed")

		if attempt == e.cfg.MaxSubmissionRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", info, execErr(ErrTimeout, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
			if backoff > e.cfg.MaxBackoff {
				backoff = e.cfg.MaxBackoff
			}
		}
	}

	return "", info, execErr(ErrBroadcastRejected,
		fmt.Errorf("gave up after %d attempts: %w", e.cfg.MaxSubmissionRetries, lastErr))
}

// refreshBlockhash fetches a new blockhash into tx. The caller re-signs.
func (e *Executor) refreshBlockhash(ctx context.Context, tx *solana.Transaction) (wallet.BlockhashInfo, error) {
	info, err := e.chain.GetLatestBlockhashInfo(ctx)
	if err != nil {
		return wallet.BlockhashInfo{}, fmt.Errorf("refresh blockhash: %w", err)
	}
	tx.Message.RecentBlockhash = info.Blockhash
	return info, nil
}

type sendErrorClass int

const (
	sendTransient sendErrorClass = iota
	sendStaleBlockhash
	sendInsufficientFunds
	sendRejected
	sendCanceled
)

// classifySendError separates retryable broadcast failures from deterministic
// rejections. Node errors arrive as *rpc.RPCError; anything else is transport.
func classifySendError(err error) sendErrorClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return sendCanceled
	}

	var rpcErr *rpc.RPCError
	if !errors.As(err, &rpcErr) {
		if rpc.Retryable(err) {
			return sendTransient
		}
		return sendRejected
	}

	msg := strings.ToLower(rpcErr.Message + " " + string(rpcErr.Data))
	switch {
	case strings.Contains(msg, "blockhash not found"):
		return sendStaleBlockhash
	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "insufficient lamports"),
		strings.Contains(msg, "found no record of a prior credit"):
		return sendInsufficientFunds
	case rpc.Retryable(rpcErr):
		return sendTransient
	default:
		return sendRejected
	}
}

func firstSignature(tx *solana.Transaction) string {
	if len(tx.Signatures) == 0 {
		return ""
	}
	return tx.Signatures[0].String()
}

func kindOf(err error) error {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ErrBroadcastRejected
}

func (e *Executor) fail(res *ExecutionResult, kind, err error) *ExecutionResult {
	var ee *ExecError
	if !errors.As(err, &ee) {
		ee = execErr(kind, err)
	}
	res.Status = StatusFailed
	res.Err = ee
	res.CompletedAt = e.now()
	e.transition(res, StateFailed)
	return res
}

func (e *Executor) transition(res *ExecutionResult, s ExecutionState) {
	res.State = s
	res.Transitions = append(res.Transitions, s)
}

func (e *Executor) acquire(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[key]; busy {
		return false
	}
	e.inFlight[key] = struct{}{}
	return true
}

func (e *Executor) release(key string) {
	e.mu.Lock()
	delete(e.inFlight, key)
	e.mu.Unlock()
}
