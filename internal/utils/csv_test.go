package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qyquant/internal/domain"
)

func TestWriteBarsToCSV(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nested", "bars.csv")
	bars := []domain.Bar{
		{Time: 1704067200000, Open: 100, High: 101.5, Low: 99.25, Close: 101, Volume: 12.5},
		domain.FlatBar(1704153600000, 2058.2),
	}

	require.NoError(t, WriteBarsToCSV(bars, filename))

	raw, err := os.ReadFile(filename)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "open_time,time,open,high,low,close,volume", lines[0])
	assert.Equal(t, "2024-01-01T00:00:00Z,1704067200000,100,101.5,99.25,101,12.5", lines[1])

	got, err := ReadBarsFromCSV(filename)
	require.NoError(t, err)
	assert.Equal(t, bars, got)
}

func TestReadBarsFromCSV_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadBarsFromCSV(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("open_time,time,open,high,low,close,volume\nx,abc,1,1,1,1,0\n"), 0o644))
	_, err = ReadBarsFromCSV(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
