package signal

import (
	"sort"
	"strings"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/shopspring/decimal"
)

var lamportsPerSOL = decimal.NewFromInt(constants.LamportsPerSOL)

// Classifier decides whether an event is a buy or a sell by the tracked wallet.
// It holds only immutable configuration and is safe for concurrent use.
type Classifier struct {
	swapTypes map[string]struct{}
}

// NewClassifier creates a classifier that treats the given event types as
// swaps. An empty list falls back to constants.DefaultSwapEventTypes.
func NewClassifier(swapTypes []string) *Classifier {
	if len(swapTypes) == 0 {
		swapTypes = constants.DefaultSwapEventTypes
	}
	set := make(map[string]struct{}, len(swapTypes))
	for _, t := range swapTypes {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return &Classifier{swapTypes: set}
}

// tokenLeg is one candidate traded token with its native counter leg.
type tokenLeg struct {
	mint         string
	amount       decimal.Decimal
	counterparts map[string]struct{}
	counterLeg   uint64
}

// Classify returns the trade direction of ev relative to trackedWallet.
//
// BUY: the wallet receives a token and pays native SOL.
// SELL: the wallet sends a token and receives native SOL.
// Everything else, including a tie between both directions, is IGNORE.
// When several tokens qualify, the one with the largest native counter leg
// wins; equal legs fall back to larger token amount, then smaller mint.
func (c *Classifier) Classify(ev models.TransactionEvent, trackedWallet string) models.TradeSignal {
	ignore := models.TradeSignal{Side: models.SideIgnore, SourceSignature: ev.Signature}

	if trackedWallet == "" {
		return ignore
	}
	if _, ok := c.swapTypes[strings.ToUpper(ev.Type)]; !ok {
		return ignore
	}

	// Native legs, keyed by counterparty. Wrapped SOL counts as native.
	paid := make(map[string]uint64)
	received := make(map[string]uint64)
	var paidTotal, receivedTotal uint64

	for _, nt := range ev.NativeTransfers {
		if nt.Amount == 0 || nt.FromUserAccount == nt.ToUserAccount {
			continue
		}
		switch trackedWallet {
		case nt.FromUserAccount:
			paid[nt.ToUserAccount] += nt.Amount
			paidTotal += nt.Amount
		case nt.ToUserAccount:
			received[nt.FromUserAccount] += nt.Amount
			receivedTotal += nt.Amount
		}
	}

	in := make(map[string]*tokenLeg)
	out := make(map[string]*tokenLeg)

	for _, tt := range ev.TokenTransfers {
		if !tt.TokenAmount.IsPositive() || tt.FromUserAccount == tt.ToUserAccount {
			continue
		}
		if tt.Mint == constants.WrappedSOLMint {
			lamports := uint64(tt.TokenAmount.Mul(lamportsPerSOL).IntPart())
			switch trackedWallet {
			case tt.FromUserAccount:
				paid[tt.ToUserAccount] += lamports
				paidTotal += lamports
			case tt.ToUserAccount:
				received[tt.FromUserAccount] += lamports
				receivedTotal += lamports
			}
			continue
		}
		switch trackedWallet {
		case tt.ToUserAccount:
			addLeg(in, tt.Mint, tt.TokenAmount, tt.FromUserAccount)
		case tt.FromUserAccount:
			addLeg(out, tt.Mint, tt.TokenAmount, tt.ToUserAccount)
		}
	}

	buy := bestLeg(in, paid, paidTotal)
	sell := bestLeg(out, received, receivedTotal)

	switch {
	case buy != nil && sell != nil:
		if buy.counterLeg == sell.counterLeg {
			return ignore
		}
		if buy.counterLeg > sell.counterLeg {
			sell = nil
		} else {
			buy = nil
		}
	case buy == nil && sell == nil:
		return ignore
	}

	if buy != nil {
		return models.TradeSignal{
			Side:            models.SideBuy,
			Mint:            buy.mint,
			SourceSignature: ev.Signature,
			TokenAmount:     buy.amount,
			NativeLamports:  buy.counterLeg,
		}
	}
	return models.TradeSignal{
		Side:            models.SideSell,
		Mint:            sell.mint,
		SourceSignature: ev.Signature,
		TokenAmount:     sell.amount,
		NativeLamports:  sell.counterLeg,
	}
}

func addLeg(legs map[string]*tokenLeg, mint string, amount decimal.Decimal, counterparty string) {
	leg, ok := legs[mint]
	if !ok {
		leg = &tokenLeg{mint: mint, amount: decimal.Zero, counterparts: make(map[string]struct{})}
		legs[mint] = leg
	}
	leg.amount = leg.amount.Add(amount)
	if counterparty != "" {
		leg.counterparts[counterparty] = struct{}{}
	}
}

// bestLeg attaches the native counter leg to every token leg and returns the
// winner. A leg's counter leg is the native flow exchanged with the same
// counterparties as the token. Only when no leg matches a counterparty is the
// whole native flow used; otherwise unmatched legs do not qualify.
func bestLeg(legs map[string]*tokenLeg, native map[string]uint64, nativeTotal uint64) *tokenLeg {
	if len(legs) == 0 || nativeTotal == 0 {
		return nil
	}

	anyMatched := false
	for _, leg := range legs {
		leg.counterLeg = 0
		for cp := range leg.counterparts {
			leg.counterLeg += native[cp]
		}
		if leg.counterLeg > 0 {
			anyMatched = true
		}
	}

	candidates := make([]*tokenLeg, 0, len(legs))
	for _, leg := range legs {
		if !anyMatched {
			leg.counterLeg = nativeTotal
		} else if leg.counterLeg == 0 {
			continue
		}
		candidates = append(candidates, leg)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.counterLeg != b.counterLeg {
			return a.counterLeg > b.counterLeg
		}
		if cmp := a.amount.Cmp(b.amount); cmp != 0 {
			return cmp > 0
		}
		return a.mint < b.mint
	})
	return candidates[0]
}

var defaultClassifier = NewClassifier(nil)

// Classify uses the default swap event types.
func Classify(ev models.TransactionEvent, trackedWallet string) models.TradeSignal {
	return defaultClassifier.Classify(ev, trackedWallet)
}
