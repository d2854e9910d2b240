package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/rpc"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/storage"
	"github.com/shopspring/decimal"

	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned by Start when the poller is active
var ErrAlreadyRunning = errors.New("poller already running")

// TransactionSource is the slice of the RPC API the poller needs; *rpc.Client implements it
type TransactionSource interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts map[string]interface{}) (*rpc.SignaturesResponse, error)
	GetTransaction(ctx context.Context, signature string) (*rpc.TransactionResponse, error)
}

var _ storage.StreamProvider = (*RPCPoller)(nil)

// RPCPoller implements StreamProvider by polling the tracked wallet's
// signature history and rebuilding each transaction's balance movements.
type RPCPoller struct {
	client       TransactionSource
	wallet       string
	pollInterval time.Duration
	fetchDelay   time.Duration
	logger       *logrus.Logger

	mu            sync.RWMutex
	lastSignature string
	primed        bool
	running       bool
	cancel        context.CancelFunc
}

// RPCPollerConfig holds configuration for the RPC poller
type RPCPollerConfig struct {
	RPCClient     TransactionSource
	TrackedWallet string
	PollInterval  time.Duration
	// FetchDelay spaces getTransaction calls; defaults to constants.DelayBetweenTxFetch
	FetchDelay time.Duration
	// Backfill processes the newest batch on the first poll instead of only
	// recording the cursor.
	Backfill bool
	Logger   *logrus.Logger
}

// NewRPCPoller creates a new RPC poller
func NewRPCPoller(cfg RPCPollerConfig) (*RPCPoller, error) {
	if cfg.RPCClient == nil {
		return nil, errors.New("rpc client is required")
	}
	if cfg.TrackedWallet == "" {
		return nil, errors.New("tracked wallet is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.FetchDelay < 0 {
		cfg.FetchDelay = 0
	} else if cfg.FetchDelay == 0 {
		cfg.FetchDelay = constants.DelayBetweenTxFetch
	}

	return &RPCPoller{
		client:       cfg.RPCClient,
		wallet:       cfg.TrackedWallet,
		pollInterval: cfg.PollInterval,
		fetchDelay:   cfg.FetchDelay,
		logger:       cfg.Logger,
		primed:       cfg.Backfill,
	}, nil
}

// Start polls until ctx is done or Stop is called
func (r *RPCPoller) Start(ctx context.Context, handler storage.EventHandler) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.WithFields(logrus.Fields{
		"interval": r.pollInterval,
		"wallet":   r.wallet,
	}).Info("starting RPC polling")

	for {
		if err := r.poll(ctx, handler); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Error("poll error")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop stops the poller
func (r *RPCPoller) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

// Cursor returns the newest signature seen so far
func (r *RPCPoller) Cursor() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSignature
}

// poll fetches signatures newer than the cursor and hands their events to
// handler oldest first. The very first poll only records the cursor unless
// backfill was requested, so history is never mirrored on startup.
func (r *RPCPoller) poll(ctx context.Context, handler storage.EventHandler) error {
	opts := map[string]interface{}{
		"limit":      constants.SignatureBatchSize,
		"commitment": "confirmed",
	}

	r.mu.RLock()
	lastSig, primed := r.lastSignature, r.primed
	r.mu.RUnlock()

	if lastSig != "" {
		opts["until"] = lastSig
		r.logger.WithField("after", short(lastSig)).Debug("fetching new signatures")
	}

	sigResp, err := r.client.GetSignaturesForAddress(ctx, r.wallet, opts)
	if err != nil {
		return fmt.Errorf("failed to get signatures: %w", err)
	}

	if len(sigResp.Result) == 0 {
		r.logger.Debug("no new transactions")
		return nil
	}

	r.mu.Lock()
	r.lastSignature = sigResp.Result[0].Signature
	r.primed = true
	r.mu.Unlock()

	if !primed {
		r.logger.WithField("cursor", short(sigResp.Result[0].Signature)).Info("recorded starting signature")
		return nil
	}

	r.logger.WithField("count", len(sigResp.Result)).Info("found new signatures")

	events := make([]models.TransactionEvent, 0, len(sigResp.Result))
	fetched := 0
	for i := len(sigResp.Result) - 1; i >= 0; i-- {
		sig := sigResp.Result[i]
		if sig.Err != nil {
			r.logger.WithField("signature", short(sig.Signature)).Debug("skipping failed transaction")
			continue
		}

		if fetched > 0 && r.fetchDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.fetchDelay):
			}
		}
		fetched++

		ev, err := r.fetchEvent(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.WithError(err).WithField("signature", short(sig.Signature)).Warn("failed to fetch transaction")
			continue
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}

	if len(events) > 0 {
		handler(ctx, events)
	}
	return nil
}

func (r *RPCPoller) fetchEvent(ctx context.Context, sig rpc.SignatureInfo) (*models.TransactionEvent, error) {
	txResp, err := r.client.GetTransaction(ctx, sig.Signature)
	if err != nil {
		return nil, err
	}
	if txResp.Result == nil || txResp.Result.Meta == nil || txResp.Result.Transaction == nil {
		return nil, errors.New("empty transaction result")
	}
	if txResp.Result.Meta.Err != nil {
		return nil, nil
	}

	ev := EventFromTransaction(sig.Signature, txResp.Result, r.wallet)
	if ev == nil {
		r.logger.WithField("signature", short(sig.Signature)).Debug("wallet balances unchanged")
		return nil, nil
	}
	if ev.Timestamp.IsZero() && sig.BlockTime > 0 {
		ev.Timestamp = time.Unix(sig.BlockTime, 0).UTC()
	}
	return ev, nil
}

// EventFromTransaction rebuilds the wallet's movements in tx from its balance
// deltas. Lamports leaving the wallet become a native transfer to an unnamed
// counterparty, and every changed token balance the wallet owns becomes a
// token transfer. The fee is added back when the wallet paid it. The event is
// typed SWAP when value moved both out of and into the wallet, TRANSFER
// otherwise. Returns nil when nothing the wallet holds changed.
func EventFromTransaction(signature string, tx *rpc.TransactionResult, wallet string) *models.TransactionEvent {
	if tx == nil || tx.Meta == nil || tx.Transaction == nil {
		return nil
	}
	meta := tx.Meta
	keys := tx.Transaction.Message.AccountKeys

	ev := &models.TransactionEvent{
		Signature: signature,
		Slot:      tx.Slot,
		Type:      "TRANSFER",
		Source:    "RPC",
	}
	if len(keys) > 0 {
		ev.FeePayer = keys[0].Pubkey
	}
	if tx.BlockTime != nil {
		ev.Timestamp = time.Unix(*tx.BlockTime, 0).UTC()
	}

	var outgoing, incoming bool

	for i, key := range keys {
		if key.Pubkey != wallet || i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			continue
		}
		delta := meta.PostBalances[i] - meta.PreBalances[i]
		if i == 0 {
			delta += int64(meta.Fee)
		}
		switch {
		case delta < 0:
			outgoing = true
			ev.NativeTransfers = append(ev.NativeTransfers, models.NativeTransfer{
				FromUserAccount: wallet,
				Amount:          uint64(-delta),
			})
		case delta > 0:
			incoming = true
			ev.NativeTransfers = append(ev.NativeTransfers, models.NativeTransfer{
				ToUserAccount: wallet,
				Amount:        uint64(delta),
			})
		}
		break
	}

	deltas := tokenDeltas(meta, wallet)
	mints := make([]string, 0, len(deltas))
	for mint := range deltas {
		mints = append(mints, mint)
	}
	sort.Strings(mints)

	for _, mint := range mints {
		d := deltas[mint]
		switch d.Sign() {
		case -1:
			outgoing = true
			ev.TokenTransfers = append(ev.TokenTransfers, models.TokenTransfer{
				Mint:            mint,
				FromUserAccount: wallet,
				TokenAmount:     d.Neg(),
			})
		case 1:
			incoming = true
			ev.TokenTransfers = append(ev.TokenTransfers, models.TokenTransfer{
				Mint:          mint,
				ToUserAccount: wallet,
				TokenAmount:   d,
			})
		}
	}

	if !outgoing && !incoming {
		return nil
	}
	if outgoing && incoming {
		ev.Type = "SWAP"
	}
	return ev
}

// tokenDeltas sums post minus pre UI amounts per mint over token accounts
// the wallet owns. Accounts missing from one side count as zero there.
func tokenDeltas(meta *rpc.TransactionMeta, wallet string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	apply := func(balances []rpc.TokenBalance, sign int64) {
		for _, b := range balances {
			if b.Owner != wallet {
				continue
			}
			amt, err := decimal.NewFromString(b.UITokenAmount.UIAmountString)
			if err != nil {
				amt = decimal.NewFromFloat(b.UITokenAmount.UIAmount)
			}
			out[b.Mint] = out[b.Mint].Add(amt.Mul(decimal.NewFromInt(sign)))
		}
	}
	apply(meta.PreTokenBalances, -1)
	apply(meta.PostTokenBalances, 1)
	return out
}

func short(sig string) string {
	if len(sig) > 8 {
		return sig[:8]
	}
	return sig
}
