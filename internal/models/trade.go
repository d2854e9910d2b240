// ============================================================================
// models/trade.go
// ============================================================================
package models

import "time"

// TradeRecord is the flattened outcome of one processed event, as cached in
// Redis, published to subscribers and stored in ClickHouse.
type TradeRecord struct {
	SourceSignature string    `json:"source_signature"`
	Timestamp       time.Time `json:"timestamp"`
	Side            string    `json:"side"`
	Mint            string    `json:"mint"`
	Stage           string    `json:"stage"`  // classified | skipped | denied | dry_run | executed
	Reason          string    `json:"reason"` // gate reason or skip reason
	AmountSOL       float64   `json:"amount_sol"`
	ExecutionID     string    `json:"execution_id,omitempty"`
	Status          string    `json:"status,omitempty"` // SUBMITTED | CONFIRMED | FAILED
	Signature       string    `json:"signature,omitempty"`
	Attempts        int       `json:"attempts"`
	Error           string    `json:"error,omitempty"`
	DryRun          bool      `json:"dry_run"`
}
