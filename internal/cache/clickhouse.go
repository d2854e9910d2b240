package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/sirupsen/logrus"
)

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// ClickHouseStore persists every copy-trade outcome
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

const createCopyTradesTable = `
	CREATE TABLE IF NOT EXISTS copy_trades (
		source_signature String,
		timestamp        DateTime64(3, 'UTC'),
		side             LowCardinality(String),
		mint             String,
		stage            LowCardinality(String),
		reason           LowCardinality(String),
		amount_sol       Float64,
		execution_id     String,
		status           LowCardinality(String),
		signature        String,
		attempts         UInt8,
		error            String,
		dry_run          Bool
	) ENGINE = MergeTree
	ORDER BY (timestamp, source_signature)
`

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := conn.Exec(ctx, createCopyTradesTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create copy_trades table: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{"addr": cfg.Addr, "database": cfg.Database}).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: cfg.Logger}, nil
}

func (c *ClickHouseStore) InsertTrade(ctx context.Context, rec *models.TradeRecord) error {
	query := `
		INSERT INTO copy_trades (
			source_signature, timestamp, side, mint, stage, reason,
			amount_sol, execution_id, status, signature, attempts, error, dry_run
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	attempts := rec.Attempts
	if attempts > 255 {
		attempts = 255
	}

	err := c.conn.Exec(ctx, query,
		rec.SourceSignature,
		rec.Timestamp,
		rec.Side,
		rec.Mint,
		rec.Stage,
		rec.Reason,
		rec.AmountSOL,
		rec.ExecutionID,
		rec.Status,
		rec.Signature,
		uint8(attempts),
		rec.Error,
		rec.DryRun,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	return nil
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
