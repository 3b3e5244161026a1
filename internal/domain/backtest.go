package domain

import "time"

// BacktestRun is the persisted record of a submitted backtest. Only the
// summary is stored; bars are never kept beyond the cache TTL.
type BacktestRun struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	Interval   string    `json:"interval,omitempty"`
	Provider   string    `json:"provider"`
	Status     JobState  `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`        // zero while running
	Summary    *Summary  `json:"summary,omitempty"` // nil until the run succeeds
	Error      string    `json:"error,omitempty"`
	JobID      string    `json:"jobId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// JobStatus is the pollable view of a submitted job.
type JobStatus struct {
	JobID         string          `json:"jobId"`
	Status        JobState        `json:"status"`
	Result        *BacktestResult `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	ResultExpired bool            `json:"resultExpired,omitempty"`
}
