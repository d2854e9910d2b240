package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionEvent is a normalized on-chain transaction notification.
// Built once by the signal normalizer and only read afterwards.
type TransactionEvent struct {
	Signature       string           `json:"signature"`
	Slot            uint64           `json:"slot"`
	Type            string           `json:"type"` // e.g. "SWAP", "TRANSFER"
	Source          string           `json:"source,omitempty"`
	FeePayer        string           `json:"fee_payer"`
	Timestamp       time.Time        `json:"timestamp"`
	NativeTransfers []NativeTransfer `json:"native_transfers"`
	TokenTransfers  []TokenTransfer  `json:"token_transfers"`
}

// NativeTransfer is a SOL movement in lamports.
type NativeTransfer struct {
	FromUserAccount string `json:"from_user_account"`
	ToUserAccount   string `json:"to_user_account"`
	Amount          uint64 `json:"amount"`
}

// TokenTransfer is an SPL token movement in UI units.
type TokenTransfer struct {
	Mint            string          `json:"mint"`
	FromUserAccount string          `json:"from_user_account"`
	ToUserAccount   string          `json:"to_user_account"`
	TokenAmount     decimal.Decimal `json:"token_amount"`
}

type Side string

const (
	SideBuy    Side = "BUY"
	SideSell   Side = "SELL"
	SideIgnore Side = "IGNORE"
)

// TradeSignal is the direction the tracked wallet traded in a single event.
type TradeSignal struct {
	Side            Side            `json:"side"`
	Mint            string          `json:"mint,omitempty"`
	SourceSignature string          `json:"source_signature"`
	TokenAmount     decimal.Decimal `json:"token_amount"`
	NativeLamports  uint64          `json:"native_lamports"`
}
