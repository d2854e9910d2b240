package storage

import (
	"context"
	"io"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
)

// TradeCache defines the interface for short-lived copy-trade state
type TradeCache interface {
	// AddRecentTrade adds an outcome to the recent trades list
	AddRecentTrade(ctx context.Context, rec *models.TradeRecord) error

	// GetRecentTrades retrieves the most recent outcomes, newest first
	GetRecentTrades(ctx context.Context, limit int64) ([]*models.TradeRecord, error)

	// PublishTrade publishes an outcome to the Pub/Sub channel
	PublishTrade(ctx context.Context, rec *models.TradeRecord) error

	// SubscribeTrades subscribes to real-time outcomes
	SubscribeTrades(ctx context.Context) (<-chan *models.TradeRecord, error)

	// ClaimSignature marks a source signature as seen. It returns false when
	// the signature was already claimed within ttl.
	ClaimSignature(ctx context.Context, signature string, ttl time.Duration) (bool, error)

	// ReleaseSignature drops a claim so a later delivery is processed again
	ReleaseSignature(ctx context.Context, signature string) error

	// Ping checks if the cache is reachable
	Ping(ctx context.Context) error

	// Close closes the cache connection
	io.Closer
}

// TradeStore defines the interface for persistent outcome storage
type TradeStore interface {
	// InsertTrade inserts an outcome into the store
	InsertTrade(ctx context.Context, rec *models.TradeRecord) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}

// EventHandler processes a batch of normalized transaction events
type EventHandler func(ctx context.Context, events []models.TransactionEvent)

// StreamProvider defines the interface for transaction event streaming
type StreamProvider interface {
	// Start begins streaming events for the tracked wallet; it blocks until
	// ctx is done or Stop is called
	Start(ctx context.Context, handler EventHandler) error

	// Stop stops the stream provider
	Stop() error
}
