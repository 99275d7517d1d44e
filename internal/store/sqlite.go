package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Historical OHLCV bars
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	-- One row per saved backtest; metrics holds the full report as JSON
	CREATE TABLE IF NOT EXISTS backtest_runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		strategy TEXT NOT NULL,
		params TEXT,
		symbols TEXT NOT NULL,
		preset TEXT,
		initial_capital REAL NOT NULL,
		final_equity REAL NOT NULL,
		total_return_pct REAL,
		sharpe_ratio REAL,
		max_drawdown_pct REAL,
		total_trades INTEGER DEFAULT 0,
		rejections INTEGER DEFAULT 0,
		price_gaps INTEGER DEFAULT 0,
		start_time DATETIME,
		end_time DATETIME,
		metrics TEXT
	);

	-- Trade log; money columns are decimal strings
	CREATE TABLE IF NOT EXISTS backtest_trades (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		period INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		gross TEXT NOT NULL,
		commission TEXT NOT NULL,
		tax TEXT NOT NULL,
		reason TEXT,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
	);

	-- Equity curve
	CREATE TABLE IF NOT EXISTS backtest_equity (
		run_id TEXT NOT NULL,
		period INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		cash REAL NOT NULL,
		equity REAL NOT NULL,
		PRIMARY KEY (run_id, period),
		FOREIGN KEY (run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_candles_symbol_timeframe ON candles(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_candles_timestamp ON candles(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_strategy ON backtest_runs(strategy);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON backtest_runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Candles Methods
// ============================================================================

// SaveCandles saves candles to the database, replacing bars with the same
// timestamp.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	if err := ValidateSymbol(symbol); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, timeframe, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetCandles retrieves candles in [from, to]. A zero bound is open.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	query := "SELECT timestamp, open, high, low, close, volume FROM candles WHERE symbol = ? AND timeframe = ?"
	args := []interface{}{symbol, timeframe}
	if !from.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, to.UTC())
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	if len(candles) == 0 {
		return nil, apperrors.NewDataError("candles", symbol, "no bars stored for "+timeframe, apperrors.ErrDataNotFound)
	}
	return candles, nil
}

// ListSeries returns every stored symbol/timeframe with its bar count and
// date range.
func (s *SQLiteStore) ListSeries(ctx context.Context) ([]SeriesInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM candles
		GROUP BY symbol, timeframe
		ORDER BY symbol, timeframe
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var out []SeriesInfo
	for rows.Next() {
		var info SeriesInfo
		var first, last string
		if err := rows.Scan(&info.Symbol, &info.Timeframe, &info.Bars, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan series: %w", err)
		}
		info.First = parseDBTime(first)
		info.Last = parseDBTime(last)
		out = append(out, info)
	}
	return out, rows.Err()
}

// ============================================================================
// Backtest Run Methods
// ============================================================================

// SaveRun stores a run with its trades and equity curve in one transaction.
// An empty ID is filled with a new ULID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.ID == "" {
		run.ID = NewRunID(run.CreatedAt)
	}
	for _, symbol := range run.Symbols {
		if err := ValidateSymbol(symbol); err != nil {
			return err
		}
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	metrics, err := json.Marshal(run.Performance)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (id, created_at, strategy, params, symbols, preset, initial_capital, final_equity,
			total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades, rejections, price_gaps, start_time, end_time, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.UTC(), run.Strategy, string(params), strings.Join(run.Symbols, ","), run.Preset,
		run.InitialCapital, run.FinalEquity, run.TotalReturnPct, run.SharpeRatio, run.MaxDrawdownPct,
		run.TotalTrades, run.Rejections, run.PriceGaps, run.StartTime.UTC(), run.EndTime.UTC(), string(metrics))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (run_id, seq, period, timestamp, symbol, side, price, quantity, gross, commission, tax, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer tradeStmt.Close()

	for i, t := range run.Trades {
		_, err := tradeStmt.ExecContext(ctx, run.ID, i, t.Period, t.Timestamp.UTC(), t.Symbol, string(t.Side),
			t.Price.String(), t.Quantity, t.Gross.String(), t.Commission.String(), t.Tax.String(), t.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_equity (run_id, period, timestamp, cash, equity) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer equityStmt.Close()

	for _, p := range run.Equity {
		if _, err := equityStmt.ExecContext(ctx, run.ID, p.Period, p.Timestamp.UTC(), p.Cash, p.Equity); err != nil {
			return fmt.Errorf("failed to insert equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRun loads a run with its metrics, trades and equity curve.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	var params, symbols, metrics sql.NullString
	var preset sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, strategy, params, symbols, preset, initial_capital, final_equity,
			total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades, rejections, price_gaps,
			start_time, end_time, metrics
		FROM backtest_runs WHERE id = ?
	`, id).Scan(&run.ID, &run.CreatedAt, &run.Strategy, &params, &symbols, &preset, &run.InitialCapital,
		&run.FinalEquity, &run.TotalReturnPct, &run.SharpeRatio, &run.MaxDrawdownPct, &run.TotalTrades,
		&run.Rejections, &run.PriceGaps, &run.StartTime, &run.EndTime, &metrics)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewDataError("run", id, "not found", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Preset = preset.String
	run.Symbols = splitSymbols(symbols.String)
	if params.Valid && params.String != "" && params.String != "null" {
		if err := json.Unmarshal([]byte(params.String), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params: %w", err)
		}
	}
	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &run.Performance); err != nil {
			return nil, fmt.Errorf("failed to decode metrics: %w", err)
		}
	}

	if run.Trades, err = s.GetRunTrades(ctx, id); err != nil {
		return nil, err
	}
	if run.Equity, err = s.GetRunEquity(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := `SELECT id, created_at, strategy, symbols, preset, initial_capital, final_equity,
		total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades FROM backtest_runs WHERE 1=1`
	args := []interface{}{}

	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}
	if filter.Symbol != "" {
		query += " AND (',' || symbols || ',') LIKE ?"
		args = append(args, "%,"+filter.Symbol+",%")
	}

	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var symbols string
		var preset sql.NullString
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Strategy, &symbols, &preset, &r.InitialCapital,
			&r.FinalEquity, &r.TotalReturnPct, &r.SharpeRatio, &r.MaxDrawdownPct, &r.TotalTrades); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Symbols = splitSymbols(symbols)
		r.Preset = preset.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRunTrades returns the trade log of a run in execution order.
func (s *SQLiteStore) GetRunTrades(ctx context.Context, id string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, timestamp, symbol, side, price, quantity, gross, commission, tax, reason
		FROM backtest_trades WHERE run_id = ? ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var side string
		var price, gross, commission, tax string
		var reason sql.NullString
		if err := rows.Scan(&t.Period, &t.Timestamp, &t.Symbol, &side, &price, &t.Quantity,
			&gross, &commission, &tax, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = models.OrderSide(side)
		t.Reason = reason.String
		t.Timestamp = t.Timestamp.UTC()
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade price %q: %w", price, err)
		}
		if t.Gross, err = decimal.NewFromString(gross); err != nil {
			return nil, fmt.Errorf("trade gross %q: %w", gross, err)
		}
		if t.Commission, err = decimal.NewFromString(commission); err != nil {
			return nil, fmt.Errorf("trade commission %q: %w", commission, err)
		}
		if t.Tax, err = decimal.NewFromString(tax); err != nil {
			return nil, fmt.Errorf("trade tax %q: %w", tax, err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// GetRunEquity returns the equity curve of a run.
func (s *SQLiteStore) GetRunEquity(ctx context.Context, id string) ([]models.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, timestamp, cash, equity FROM backtest_equity WHERE run_id = ? ORDER BY period ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity: %w", err)
	}
	defer rows.Close()

	var curve []models.EquityPoint
	for rows.Next() {
		var p models.EquityPoint
		if err := rows.Scan(&p.Period, &p.Timestamp, &p.Cash, &p.Equity); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		curve = append(curve, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity: %w", err)
	}
	return curve, nil
}

// DeleteRun removes a run and its rows.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM backtest_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewDataError("run", id, "not found", apperrors.ErrDataNotFound)
	}
	return nil
}

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// parseDBTime parses timestamps returned by aggregate queries, which come
// back as text rather than DATETIME.
func parseDBTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		time.DateOnly,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
