package swapengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeMarket returns fixed market data and counts lookups
type fakeMarket struct {
	liquidity    decimal.Decimal
	impact       decimal.Decimal
	liquidityErr error
	impactErr    error
	delay        time.Duration

	liquidityCalls atomic.Int32
	impactCalls    atomic.Int32
}

func goodMarket() *fakeMarket {
	return &fakeMarket{liquidity: dec("1000000"), impact: dec("0.001")}
}

func (f *fakeMarket) GetLiquidity(ctx context.Context, _ string) (decimal.Decimal, error) {
	f.liquidityCalls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	return f.liquidity, f.liquidityErr
}

func (f *fakeMarket) EstimatePriceImpact(_ context.Context, _ string, _ uint64) (decimal.Decimal, error) {
	f.impactCalls.Add(1)
	return f.impact, f.impactErr
}

// fakeChain signs with a real key and scripts broadcast and confirmation
type fakeChain struct {
	key     solana.PrivateKey
	balance uint64

	mu             sync.Mutex
	sendErrs       []error // consumed in order, nil means success
	sendCalls      int
	sentSigs       []string
	blockhashCalls int
	balanceErr     error
	confirm        *wallet.ConfirmResult
	confirmErr     error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		key:     solana.NewWallet().PrivateKey,
		balance: 5 * 1_000_000_000,
		confirm: &wallet.ConfirmResult{Status: wallet.ConfirmLanded, Slot: 42},
	}
}

func (f *fakeChain) PublicKey() solana.PublicKey { return f.key.PublicKey() }

func (f *fakeChain) GetBalance(_ context.Context, _ solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.balanceErr
}

func (f *fakeChain) GetLatestBlockhashInfo(_ context.Context) (wallet.BlockhashInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashCalls++
	return wallet.BlockhashInfo{
		Blockhash:            solana.Hash{byte(f.blockhashCalls)},
		LastValidBlockHeight: 1000,
		FetchedAt:            time.Now(),
	}, nil
}

func (f *fakeChain) SignTx(tx *solana.Transaction) error {
	tx.Signatures = nil
	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(f.key.PublicKey()) {
			return &f.key
		}
		return nil
	})
	return err
}

func (f *fakeChain) SendTx(_ context.Context, tx *solana.Transaction, _ *wallet.SendOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	sig := firstSignature(tx)
	f.sentSigs = append(f.sentSigs, sig)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return sig, nil
}

func (f *fakeChain) Confirm(_ context.Context, _ string, _ wallet.BlockhashInfo) (*wallet.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.confirm, nil
}

// fakeBuilder returns a single system-program instruction. When gate is set
// BuildBuy signals entered and blocks until gate is closed.
type fakeBuilder struct {
	err     error
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
}

func (b *fakeBuilder) BuildBuy(_ context.Context, owner solana.PublicKey, _ string, _ uint64) ([]solana.Instruction, error) {
	b.calls.Add(1)
	if b.gate != nil {
		b.entered <- struct{}{}
		<-b.gate
	}
	if b.err != nil {
		return nil, b.err
	}
	ix := solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{solana.NewAccountMeta(owner, true, true)},
		[]byte{2, 0, 0, 0},
	)
	return []solana.Instruction{ix}, nil
}

// fakeExecutor records calls and returns a confirmed result
type fakeExecutor struct {
	mu    sync.Mutex
	calls []models.TradeSignal
	fail  error
}

func (f *fakeExecutor) Execute(_ context.Context, sig models.TradeSignal, _ uint64) *ExecutionResult {
	f.mu.Lock()
	f.calls = append(f.calls, sig)
	f.mu.Unlock()

	now := time.Now()
	res := &ExecutionResult{
		ExecutionID:     "exec-" + sig.SourceSignature,
		SourceSignature: sig.SourceSignature,
		Signature:       "op-" + sig.SourceSignature,
		Status:          StatusConfirmed,
		State:           StateConfirmed,
		Attempts:        1,
		StartedAt:       now,
		CompletedAt:     now,
	}
	if f.fail != nil {
		res.Status, res.State, res.Err = StatusFailed, StateFailed, execErr(f.fail, errors.New("scripted"))
	}
	return res
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memCache is an in-memory OutcomeCache
type memCache struct {
	mu        sync.Mutex
	seen      map[string]bool
	recent    []*models.TradeRecord
	published []*models.TradeRecord
}

func newMemCache() *memCache { return &memCache{seen: map[string]bool{}} }

func (m *memCache) AddRecentTrade(_ context.Context, rec *models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append(m.recent, rec)
	return nil
}

func (m *memCache) PublishTrade(_ context.Context, rec *models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, rec)
	return nil
}

func (m *memCache) ClaimSignature(_ context.Context, sig string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[sig] {
		return false, nil
	}
	m.seen[sig] = true
	return true, nil
}

func (m *memCache) ReleaseSignature(_ context.Context, sig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, sig)
	return nil
}

// memStore is an in-memory OutcomeStore
type memStore struct {
	mu   sync.Mutex
	rows []*models.TradeRecord
}

func (m *memStore) InsertTrade(_ context.Context, rec *models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rec)
	return nil
}

// staticSwitches is a SwitchReader backed by a map
type staticSwitches map[string]bool

func (s staticSwitches) IsOn(_ context.Context, key string) (bool, error) {
	return s[key], nil
}
