// Package sqlite archives fetched charts so indicators and backtests can be
// rerun offline.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/pkg/finance"
)

const (
	defaultBatchSize  = 50
	defaultFlushDelay = 2 * time.Second
)

// ErrNotArchived is returned by LoadChart for an unknown symbol/interval.
var ErrNotArchived = errors.New("sqlite: chart not archived")

// Archive is a single-writer SQLite store of charts keyed by symbol and
// interval. Saving a chart merges its candles into what is already stored.
type Archive struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// DB returns the underlying sql.DB for health checks.
func (a *Archive) DB() *sql.DB { return a.db }

// Open opens (creating if needed) the archive at path in WAL mode.
func Open(path string, log *zap.Logger) (*Archive, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("archive opened", zap.String("path", path))
	return &Archive{db: db, log: log, now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS charts (
			symbol     TEXT    NOT NULL,
			intvl      TEXT    NOT NULL,
			span       TEXT    NOT NULL,
			currency   TEXT    NOT NULL DEFAULT '',
			exchange   TEXT    NOT NULL DEFAULT '',
			timezone   TEXT    NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, intvl)
		);

		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			intvl     TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    INTEGER NOT NULL,
			adj_close REAL,
			PRIMARY KEY (symbol, intvl, ts)
		);
	`)
	return err
}

// SaveChart stores a chart's metadata and upserts its candles in one
// transaction.
func (a *Archive) SaveChart(ctx context.Context, c *finance.Chart) error {
	return a.saveBatch(ctx, []*finance.Chart{c})
}

func (a *Archive) saveBatch(ctx context.Context, charts []*finance.Chart) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	meta, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO charts (symbol, intvl, span, currency, exchange, timezone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer meta.Close()

	bars, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, intvl, ts, open, high, low, close, volume, adj_close)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer bars.Close()

	updated := a.now().Unix()
	for _, c := range charts {
		if c == nil || c.Symbol == "" {
			continue
		}
		if _, err := meta.ExecContext(ctx, c.Symbol, string(c.Interval), string(c.Range),
			c.Currency, c.Exchange, c.Timezone, updated); err != nil {
			return fmt.Errorf("save %s: %w", c.Symbol, err)
		}
		for _, k := range c.Candles {
			if _, err := bars.ExecContext(ctx, c.Symbol, string(c.Interval), k.Timestamp,
				k.Open, k.High, k.Low, k.Close, k.Volume, k.AdjClose); err != nil {
				return fmt.Errorf("save %s candle %d: %w", c.Symbol, k.Timestamp, err)
			}
		}
	}
	return tx.Commit()
}

// LoadChart returns the archived chart with candles newer than since
// (unix seconds), oldest first.
func (a *Archive) LoadChart(ctx context.Context, symbol string, interval finance.Interval, since int64) (*finance.Chart, error) {
	c := &finance.Chart{Symbol: symbol, Interval: interval}
	var rng string
	err := a.db.QueryRowContext(ctx, `
		SELECT span, currency, exchange, timezone FROM charts
		WHERE symbol = ? AND intvl = ?
	`, symbol, string(interval)).Scan(&rng, &c.Currency, &c.Exchange, &c.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotArchived, symbol, interval)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query charts: %w", err)
	}
	c.Range = finance.Range(rng)

	rows, err := a.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, adj_close
		FROM candles
		WHERE symbol = ? AND intvl = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, string(interval), since)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k finance.Candle
		var adj null.Float
		if err := rows.Scan(&k.Timestamp, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &adj); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		k.AdjClose = adj
		c.Candles = append(c.Candles, k)
	}
	return c, rows.Err()
}

// LastTimestamp returns the newest archived candle time, or 0.
func (a *Archive) LastTimestamp(ctx context.Context, symbol string, interval finance.Interval) (int64, error) {
	var ts sql.NullInt64
	err := a.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND intvl = ?`,
		symbol, string(interval),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	return ts.Int64, nil
}

// Symbols lists every archived symbol, sorted.
func (a *Archive) Symbols(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM charts ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Run saves charts read from ch in batched transactions, flushing every
// defaultBatchSize charts or defaultFlushDelay, whichever comes first.
// Blocks until ctx is cancelled or ch is closed; pending charts are flushed
// either way.
func (a *Archive) Run(ctx context.Context, ch <-chan *finance.Chart) {
	batch := make([]*finance.Chart, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// the batch must land even when ctx is already done
		if err := a.saveBatch(context.Background(), batch); err != nil {
			a.log.Error("archive batch failed", zap.Int("charts", len(batch)), zap.Error(err))
		} else {
			a.log.Debug("archive batch committed", zap.Int("charts", len(batch)), zap.Duration("took", time.Since(start)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
