package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"qyquant/config"
	"qyquant/internal/adapters/logger"
	"qyquant/internal/adapters/sqlite"
	"qyquant/internal/domain"
)

func main() {
	limit := flag.Int("limit", 20, "number of most recent runs to show")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.New(os.Stderr, cfg.LogLevel)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open database %s: %v", cfg.DBPath, err)
	}
	defer repo.Close()

	runs, err := repo.FindRecent(context.Background(), *limit)
	if err != nil {
		repo.Close()
		log.Fatalf("Error loading backtest history: %v", err)
	}
	if len(runs) == 0 {
		log.Println("No backtest runs found. Submit one through the HTTP API first.")
		return
	}

	// Create a tabwriter for formatted output
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Name\tSymbol\tProvider\tStatus\tReturn%\tAnnual%\tMaxDD%\tSharpe\tTrades\tWin%\tDuration\t")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			run.Name,
			run.Symbol,
			run.Provider,
			run.Status,
			formatMetrics(run),
		)
	}
	w.Flush()

	printAggregate(runs)
}

func formatMetrics(run *domain.BacktestRun) string {
	duration := "-"
	if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
		duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
	}
	s := run.Summary
	if s == nil {
		return fmt.Sprintf("-\t-\t-\t-\t-\t-\t%s", duration)
	}
	return fmt.Sprintf("%.2f\t%.2f\t%.2f\t%.4f\t%d\t%.2f\t%s",
		s.TotalReturn, s.AnnualizedReturn, s.MaxDrawdown, s.SharpeRatio, s.TotalTrades, s.WinRate, duration)
}

// printAggregate reports success counts and the mean return of successful runs.
func printAggregate(runs []*domain.BacktestRun) {
	var succeeded, failed int
	var totalReturn float64
	for _, run := range runs {
		switch run.Status {
		case domain.JobSuccess:
			succeeded++
			if run.Summary != nil {
				totalReturn += run.Summary.TotalReturn
			}
		case domain.JobFailure:
			failed++
		}
	}
	fmt.Printf("\nRuns: %d  Succeeded: %d  Failed: %d  Pending/Running: %d\n",
		len(runs), succeeded, failed, len(runs)-succeeded-failed)
	if succeeded > 0 {
		fmt.Printf("Mean total return of successful runs: %.2f%%\n", totalReturn/float64(succeeded))
	}
}
