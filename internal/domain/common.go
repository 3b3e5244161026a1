package domain

// OrderSide represents the side of an order ("BUY" or "SELL").
type OrderSide string

// JobState mirrors the task-queue lifecycle of a submitted backtest.
type JobState string

const (
	JobPending JobState = "PENDING"
	JobStarted JobState = "STARTED"
	JobSuccess JobState = "SUCCESS"
	JobFailure JobState = "FAILURE"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobState) IsTerminal() bool {
	return s == JobSuccess || s == JobFailure
}
