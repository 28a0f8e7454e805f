package pg

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"botfleet/internal/core/domain"
	"botfleet/internal/core/logger"
	"botfleet/internal/core/metrics"
	"botfleet/internal/core/retry"
)

// Gateway is the Postgres persistence layer. Every statement runs through a
// classified retry: transient failures (deadlock, serialization, dropped
// connection) are retried with exponential backoff, everything else surfaces
// immediately. Callers never manage connections; the pool reconnects on its
// own once the server is reachable again.
type Gateway struct {
	db              *gorm.DB
	policy          retry.Policy
	retryableStates []string
	log             interface {
		Warn(msg string, args ...any)
	}
}

// Open connects, verifies the connection with a ping, and migrates the
// schema. A failure here is fatal by contract: the caller must not start
// orchestration against a database it could never reach.
func Open(dsn string, policy retry.Policy, retryableStates []string) (*Gateway, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("initial ping: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.Robot{},
		&domain.Device{},
		&domain.Assignment{},
		&domain.Schedule{},
		&domain.Execution{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Gateway{
		db:              db,
		policy:          policy,
		retryableStates: retryableStates,
		log:             logger.With("component", "gateway"),
	}, nil
}

func (g *Gateway) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *Gateway) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withRetry runs op under the gateway's retry policy. A liveness probe before
// each attempt lets the pool re-establish dropped connections so the real
// statement does not burn an attempt on a dead socket.
func (g *Gateway) withRetry(ctx context.Context, op func() error) error {
	classify := func(err error) retry.Class {
		return Classify(err, g.retryableStates)
	}
	notify := func(err error, attempt int, delay time.Duration) {
		metrics.DBRetriesTotal.Inc()
		g.log.Warn("retrying statement",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err)
	}
	return g.policy.Do(ctx, classify, notify, func() error {
		if err := g.Ping(ctx); err != nil {
			return err
		}
		return op()
	})
}

// Result carries whichever half of a statement's outcome applies: rows for
// queries, the affected count for writes.
type Result struct {
	Rows     []map[string]any
	Affected int64
}

// Execute runs one statement with classified retry. Queries return their rows;
// writes return the affected-row count, falling back to 1 per statement when
// the driver cannot report one.
func (g *Gateway) Execute(ctx context.Context, stmt string, params []any, isQuery bool) (Result, error) {
	var res Result
	err := g.withRetry(ctx, func() error {
		if isQuery {
			var rows []map[string]any
			if err := g.db.WithContext(ctx).Raw(stmt, params...).Scan(&rows).Error; err != nil {
				return err
			}
			res.Rows = rows
			return nil
		}
		tx := g.db.WithContext(ctx).Exec(stmt, params...)
		if tx.Error != nil {
			return tx.Error
		}
		res.Affected = tx.RowsAffected
		if res.Affected < 0 {
			res.Affected = 1
		}
		return nil
	})
	return res, err
}

// ExecuteMany runs one statement once per parameter set inside a single
// transaction. All sets commit or none do; the batch is not retried because a
// partially applied batch must never be re-run blindly.
func (g *Gateway) ExecuteMany(ctx context.Context, stmt string, paramSets [][]any) (int64, error) {
	var total int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, params := range paramSets {
			r := tx.Exec(stmt, params...)
			if r.Error != nil {
				return r.Error
			}
			if r.RowsAffected < 0 {
				total++
			} else {
				total += r.RowsAffected
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
