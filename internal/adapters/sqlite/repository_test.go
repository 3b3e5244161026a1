package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qyquant/internal/domain"
	"qyquant/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "qyquant-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "nested", "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRepository_CreateAndFindByID(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = fixedClock(created)

	run := &domain.BacktestRun{
		ID:       "run-1",
		Name:     "BTC minute",
		Symbol:   "BTCUSDT",
		Interval: "1m",
		Provider: "binance",
		Status:   domain.JobPending,
		JobID:    "job-1",
	}
	require.NoError(t, repo.Create(ctx, run))
	assert.Equal(t, created, run.CreatedAt)
	assert.Equal(t, created, run.StartedAt)

	got, err := repo.FindByID(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "BTC minute", got.Name)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, "1m", got.Interval)
	assert.Equal(t, "binance", got.Provider)
	assert.Equal(t, domain.JobPending, got.Status)
	assert.Equal(t, "job-1", got.JobID)
	assert.True(t, got.StartedAt.Equal(created))
	assert.True(t, got.FinishedAt.IsZero())
	assert.Nil(t, got.Summary)
	assert.Empty(t, got.Error)

	missing, err := repo.FindByID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_CreateValidation(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(*Repository) error
		run     *domain.BacktestRun
		wantErr error
	}{
		{
			name:    "missing id",
			run:     &domain.BacktestRun{Name: "x", Symbol: "BTCUSDT", Provider: "mock", Status: domain.JobPending},
			wantErr: ports.ErrInvalidRequest,
		},
		{
			name: "duplicate id",
			setup: func(r *Repository) error {
				return r.Create(ctx, &domain.BacktestRun{ID: "dup", Name: "x", Symbol: "BTCUSDT", Provider: "mock", Status: domain.JobPending})
			},
			run:     &domain.BacktestRun{ID: "dup", Name: "y", Symbol: "ETHUSDT", Provider: "mock", Status: domain.JobPending},
			wantErr: ports.ErrDuplicateEntry,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				require.NoError(t, tt.setup(repo))
			}
			err := repo.Create(ctx, tt.run)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = fixedClock(start)

	require.NoError(t, repo.Create(ctx, &domain.BacktestRun{ID: "ok", Name: "ok", Symbol: "BTCUSDT", Provider: "mock", Status: domain.JobPending}))
	require.NoError(t, repo.Create(ctx, &domain.BacktestRun{ID: "bad", Name: "bad", Symbol: "XAU", Provider: "gold", Status: domain.JobPending}))

	repo.now = fixedClock(start.Add(time.Second))
	require.NoError(t, repo.UpdateStatus(ctx, "ok", domain.JobStarted, nil, ""))
	got, err := repo.FindByID(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStarted, got.Status)
	assert.True(t, got.FinishedAt.IsZero(), "non-terminal status leaves finished_at unset")

	finished := start.Add(5 * time.Second)
	repo.now = fixedClock(finished)
	summary := &domain.Summary{TotalReturn: 17.85, TotalTrades: 119, SharpeRatio: 12.3456}
	require.NoError(t, repo.UpdateStatus(ctx, "ok", domain.JobSuccess, summary, ""))
	got, err = repo.FindByID(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.JobSuccess, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, *summary, *got.Summary)
	assert.True(t, got.FinishedAt.Equal(finished))
	assert.True(t, got.UpdatedAt.Equal(finished))

	require.NoError(t, repo.UpdateStatus(ctx, "bad", domain.JobFailure, nil, "freegold API error 503"))
	got, err = repo.FindByID(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailure, got.Status)
	assert.Equal(t, "freegold API error 503", got.Error)
	assert.Nil(t, got.Summary)

	err = repo.UpdateStatus(ctx, "missing", domain.JobSuccess, nil, "")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_FindRecent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		repo.now = fixedClock(base.Add(time.Duration(i) * time.Minute))
		require.NoError(t, repo.Create(ctx, &domain.BacktestRun{ID: id, Name: id, Symbol: "BTCUSDT", Provider: "mock", Status: domain.JobPending}))
	}

	runs, err := repo.FindRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "d", runs[0].ID)
	assert.Equal(t, "c", runs[1].ID)
	assert.Equal(t, "b", runs[2].ID)

	all, err := repo.FindRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRepository_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")

	repo, err := NewRepository(Config{DBPath: dbPath, Logger: &mockLogger{}})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &domain.BacktestRun{ID: "keep", Name: "keep", Symbol: "BTCUSDT", Provider: "mock", Status: domain.JobPending}))
	require.NoError(t, repo.Close())

	reopened, err := NewRepository(Config{DBPath: dbPath, Logger: &mockLogger{}})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.FindByID(context.Background(), "keep")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "keep", got.Name)
}
