package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3" // SQLite driver

	"qyquant/internal/domain"
	"qyquant/internal/ports"
)

// Repository implements ports.BacktestRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/backtests.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Job workers write concurrently; a single connection serializes them.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, now: time.Now}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist. Times are epoch ms.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS backtests (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER DEFAULT NULL,
		summary TEXT DEFAULT NULL,
		error TEXT DEFAULT NULL,
		job_id TEXT DEFAULT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_backtests_created_at ON backtests (created_at);
	CREATE INDEX IF NOT EXISTS idx_backtests_job_id ON backtests (job_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Create inserts a new run. CreatedAt, UpdatedAt and StartedAt default to now.
func (r *Repository) Create(ctx context.Context, run *domain.BacktestRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("backtest run id is required: %w", ports.ErrInvalidRequest)
	}
	const query = `
	INSERT INTO backtests (id, name, symbol, interval, provider, status, started_at, finished_at,
	                       summary, error, job_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := r.now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.CreatedAt
	}
	summary, err := encodeSummary(run.Summary)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.Name, run.Symbol, run.Interval, run.Provider, string(run.Status),
		run.StartedAt.UnixMilli(), nullMillis(run.FinishedAt), summary, nullString(run.Error),
		nullString(run.JobID), run.CreatedAt.UnixMilli(), run.UpdatedAt.UnixMilli())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("backtest %s: %w", run.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert backtest %s: %w: %w", run.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Backtest run created", map[string]interface{}{"id": run.ID, "symbol": run.Symbol, "status": run.Status})
	return nil
}

// UpdateStatus moves a run to status. Terminal statuses also stamp
// finished_at; summary and errMsg are stored as given.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.JobState, summary *domain.Summary, errMsg string) error {
	const query = `
	UPDATE backtests
	SET status = ?, summary = COALESCE(?, summary), error = ?, finished_at = COALESCE(?, finished_at), updated_at = ?
	WHERE id = ?`

	now := r.now().UTC()
	var finished sql.NullInt64
	if status.IsTerminal() {
		finished = sql.NullInt64{Int64: now.UnixMilli(), Valid: true}
	}
	encoded, err := encodeSummary(summary)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, string(status), encoded, nullString(errMsg), finished, now.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update backtest %s: %w: %w", id, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for backtest %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("backtest %s not found for update: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Backtest status updated", map[string]interface{}{"id": id, "status": status})
	return nil
}

const selectColumns = `
	SELECT id, name, symbol, interval, provider, status, started_at, finished_at,
	       summary, error, job_id, created_at, updated_at
	FROM backtests`

// FindByID retrieves a run by id. A missing run yields (nil, nil).
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.BacktestRun, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Backtest not found by ID", map[string]interface{}{"id": id})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query backtest %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return run, nil
}

// FindRecent returns up to limit runs, newest first.
func (r *Repository) FindRecent(ctx context.Context, limit int) ([]*domain.BacktestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent backtests: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	runs := make([]*domain.BacktestRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest during FindRecent: %w", err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest rows: %w", err)
	}
	return runs, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*domain.BacktestRun, error) {
	run := &domain.BacktestRun{}
	var status string
	var startedAt, createdAt, updatedAt int64
	var finishedAt sql.NullInt64
	var summary, errMsg, jobID sql.NullString
	err := s.Scan(
		&run.ID, &run.Name, &run.Symbol, &run.Interval, &run.Provider, &status,
		&startedAt, &finishedAt, &summary, &errMsg, &jobID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	run.Status = domain.JobState(status)
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if finishedAt.Valid {
		run.FinishedAt = time.UnixMilli(finishedAt.Int64).UTC()
	}
	if summary.Valid && summary.String != "" {
		var s domain.Summary
		if err := json.Unmarshal([]byte(summary.String), &s); err != nil {
			return nil, fmt.Errorf("decode summary of backtest %s: %w", run.ID, err)
		}
		run.Summary = &s
	}
	run.Error = errMsg.String
	run.JobID = jobID.String
	return run, nil
}

func encodeSummary(s *domain.Summary) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode summary: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
