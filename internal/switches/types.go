package switches

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("switch not found")

// Runtime switches read by the copy-trade pipeline on every BUY
const (
	TradingEnabled = "copytrade.enabled" // false halts all mirrored buys
	DryRun         = "copytrade.dry_run" // true runs the gate but never touches the chain
)

// Switch is a named boolean that operators flip at runtime
type Switch struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	Default   bool      `json:"default"` // true when Value is the built-in default, not a stored override
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
