// Package jobs runs backtests in the background and lets callers poll for
// their outcome by job id.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"qyquant/internal/adapters/cache"
	"qyquant/internal/backtest"
	"qyquant/internal/domain"
	"qyquant/internal/ports"
)

// ErrClosed is returned by Submit once the manager is shutting down.
var ErrClosed = errors.New("job manager is closed")

const (
	defaultWorkers   = 2
	defaultResultTTL = time.Hour
)

// Runner is the part of backtest.Runner the manager needs.
type Runner interface {
	Normalize(req backtest.Request) (ports.BarsRequest, error)
	Run(ctx context.Context, req backtest.Request) (*domain.BacktestResult, error)
	ProviderName() string
}

// Config holds the Manager dependencies.
type Config struct {
	Runner     Runner
	Repository ports.BacktestRepository
	Cache      ports.Cache
	Logger     ports.Logger
	Workers    int           // max concurrently running backtests
	ResultTTL  time.Duration // how long full results stay retrievable
}

// Manager accepts backtest jobs, runs them on bounded background goroutines,
// records their lifecycle in the repository and keeps full results in the
// cache for ResultTTL.
type Manager struct {
	runner    Runner
	repo      ports.BacktestRepository
	cache     ports.Cache
	logger    ports.Logger
	sem       *semaphore.Weighted
	resultTTL time.Duration
	newID     func() string

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Runner == nil || cfg.Repository == nil || cfg.Cache == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for job manager")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	ttl := cfg.ResultTTL
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:    cfg.Runner,
		repo:      cfg.Repository,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		sem:       semaphore.NewWeighted(int64(workers)),
		resultTTL: ttl,
		newID:     uuid.NewString,
		baseCtx:   ctx,
		cancel:    cancel,
	}, nil
}

// ResultKey is the cache key holding the full result of job id.
func ResultKey(id string) string {
	return "backtest:job:" + id
}

// Submit validates req, records a PENDING run and schedules it. It returns
// as soon as the job is recorded.
func (m *Manager) Submit(ctx context.Context, name string, req backtest.Request) (string, error) {
	query, err := m.runner.Normalize(req)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	id := m.newID()
	name = strings.TrimSpace(name)
	if name == "" {
		name = query.Symbol + " backtest"
	}
	run := &domain.BacktestRun{
		ID:       id,
		Name:     name,
		Symbol:   query.Symbol,
		Interval: query.Interval,
		Provider: m.runner.ProviderName(),
		Status:   domain.JobPending,
		JobID:    id,
	}
	if err := m.repo.Create(ctx, run); err != nil {
		m.logger.Error(ctx, err, "Failed to record backtest job", map[string]interface{}{"jobID": id})
		return "", fmt.Errorf("record job: %w", err)
	}

	m.wg.Add(1)
	go m.execute(id, req)

	m.logger.Info(ctx, "Backtest job submitted", map[string]interface{}{"jobID": id, "symbol": query.Symbol})
	return id, nil
}

func (m *Manager) execute(id string, req backtest.Request) {
	defer m.wg.Done()
	ctx := m.baseCtx
	fields := map[string]interface{}{"jobID": id}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(context.Background(), id, domain.JobFailure, nil, "canceled before start")
		return
	}
	defer m.sem.Release(1)

	if err := m.repo.UpdateStatus(ctx, id, domain.JobStarted, nil, ""); err != nil {
		m.logger.Error(ctx, err, "Failed to mark job started", fields)
	}

	res, err := m.runner.Run(ctx, req)
	if err != nil {
		m.logger.Warn(ctx, "Backtest job failed", map[string]interface{}{"jobID": id, "error": err.Error()})
		m.finish(context.Background(), id, domain.JobFailure, nil, err.Error())
		return
	}

	// The outcome is recorded even when Close canceled baseCtx after Run returned.
	recordCtx := context.Background()
	if err := cache.SetJSON(recordCtx, m.cache, ResultKey(id), res, m.resultTTL); err != nil {
		m.logger.Warn(recordCtx, "Failed to store job result", map[string]interface{}{"jobID": id, "error": err.Error()})
	}
	m.finish(recordCtx, id, domain.JobSuccess, &res.Summary, "")
	m.logger.Info(recordCtx, "Backtest job succeeded", map[string]interface{}{"jobID": id, "bars": len(res.Kline)})
}

func (m *Manager) finish(ctx context.Context, id string, status domain.JobState, summary *domain.Summary, errMsg string) {
	if err := m.repo.UpdateStatus(ctx, id, status, summary, errMsg); err != nil {
		m.logger.Error(ctx, err, "Failed to record job outcome", map[string]interface{}{"jobID": id, "status": status})
	}
}

// Status reports the state of job id. Unknown ids yield ports.ErrNotFound.
// A successful job whose cached result has expired reports ResultExpired.
func (m *Manager) Status(ctx context.Context, id string) (*domain.JobStatus, error) {
	run, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if run == nil {
		return nil, fmt.Errorf("job %s: %w", id, ports.ErrNotFound)
	}

	st := &domain.JobStatus{JobID: id, Status: run.Status, Error: run.Error}
	if run.Status != domain.JobSuccess {
		return st, nil
	}

	var res domain.BacktestResult
	ok, err := cache.GetJSON(ctx, m.cache, ResultKey(id), &res)
	if err != nil {
		m.logger.Warn(ctx, "Failed to read job result", map[string]interface{}{"jobID": id, "error": err.Error()})
	}
	if !ok {
		st.ResultExpired = true
		return st, nil
	}
	st.Result = &res
	return st, nil
}

// Close stops accepting jobs and waits for in-flight ones. If ctx ends
// first, running backtests are canceled and ctx.Err() is returned once they
// have unwound.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
