package swapengine

import (
	"math/big"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/shopspring/decimal"
)

// Size returns min(available - minReserve, maxPerTrade).
// A result at or below zero fails with ErrInsufficientBalance.
func Size(available, maxPerTrade, minReserve decimal.Decimal) (decimal.Decimal, error) {
	amount := decimal.Min(available.Sub(minReserve), maxPerTrade)
	if !amount.IsPositive() {
		return decimal.Zero, ErrInsufficientBalance
	}
	return amount, nil
}

// TradeSizer applies the configured caps to an operator balance
type TradeSizer struct {
	MaxPerTradeSOL decimal.Decimal
	MinReserveSOL  decimal.Decimal
}

// SizeLamports sizes a trade from a lamport balance and returns the amount in
// SOL together with its lamport value. Lamports are truncated, never rounded up.
func (s TradeSizer) SizeLamports(balance uint64) (decimal.Decimal, uint64, error) {
	amount, err := Size(LamportsToSOL(balance), s.MaxPerTradeSOL, s.MinReserveSOL)
	if err != nil {
		return decimal.Zero, 0, err
	}
	lamports := SOLToLamports(amount)
	if lamports == 0 {
		return decimal.Zero, 0, ErrInsufficientBalance
	}
	return LamportsToSOL(lamports), lamports, nil
}

func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -constants.SOLDecimals)
}

func SOLToLamports(sol decimal.Decimal) uint64 {
	if !sol.IsPositive() {
		return 0
	}
	return sol.Shift(constants.SOLDecimals).Truncate(0).BigInt().Uint64()
}
