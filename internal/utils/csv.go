package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"qyquant/internal/domain"
)

var barHeader = []string{"open_time", "time", "open", "high", "low", "close", "volume"}

// WriteBarsToCSV writes bars to filename, creating parent directories as
// needed. open_time is informational; ReadBarsFromCSV uses the millisecond column.
func WriteBarsToCSV(bars []domain.Bar, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(barHeader); err != nil {
		return err
	}
	for _, b := range bars {
		err := writer.Write([]string{
			b.OpenTime().Format(time.RFC3339),
			strconv.FormatInt(b.Time, 10),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadBarsFromCSV loads bars written by WriteBarsToCSV.
func ReadBarsFromCSV(filename string) ([]domain.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []domain.Bar{}, nil
	}

	bars := make([]domain.Bar, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(barHeader) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", i+2, len(barHeader), len(rec))
		}
		ts, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid time %q: %w", i+2, rec[1], err)
		}
		var vals [5]float64
		for j := range vals {
			vals[j], err = strconv.ParseFloat(rec[j+2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s %q: %w", i+2, barHeader[j+2], rec[j+2], err)
			}
		}
		bars = append(bars, domain.Bar{
			Time:   ts,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return bars, nil
}
