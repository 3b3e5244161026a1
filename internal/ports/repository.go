package ports

import (
	"context"

	"qyquant/internal/domain"
)

// BacktestRepository defines the interface for storing backtest run records.
type BacktestRepository interface {
	// Create saves a new run record.
	Create(ctx context.Context, run *domain.BacktestRun) error
	// UpdateStatus moves a run to a new state. summary may be nil.
	UpdateStatus(ctx context.Context, id string, status domain.JobState, summary *domain.Summary, errMsg string) error
	// FindByID retrieves a run by its ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.BacktestRun, error)
	// FindRecent retrieves the most recent runs, newest first.
	FindRecent(ctx context.Context, limit int) ([]*domain.BacktestRun, error)
}
