package marketdata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"signal-advisor/internal/model"
)

// barRow is the on-disk layout of one bar.
type barRow struct {
	Timestamp int64   `parquet:"t"` // Unix timestamp in milliseconds
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
}

// WriteParquet writes bars to path, replacing any existing file.
func WriteParquet(path string, bars []model.Bar) error {
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{Timestamp: b.Time.UnixMilli(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("parquet mkdir: %w", err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("parquet write %s: %w", path, err)
	}
	return nil
}

// ReadParquet reads bars from path in ascending time order.
func ReadParquet(path string) ([]model.Bar, error) {
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return nil, fmt.Errorf("parquet read %s: %w", path, err)
	}
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[i] = model.Bar{Time: time.UnixMilli(r.Timestamp).UTC(), Open: r.Open, High: r.High, Low: r.Low, Close: r.Close}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// ParquetArchive is a model.BarArchive storing one {SYMBOL}.parquet file
// per ticker under Dir.
type ParquetArchive struct {
	Dir string
}

var _ model.BarArchive = (*ParquetArchive)(nil)

func (a *ParquetArchive) path(symbol string) string {
	return filepath.Join(a.Dir, strings.ToUpper(symbol)+".parquet")
}

// SaveBars merges bars into the symbol's file; a bar with an existing
// timestamp replaces the stored one.
func (a *ParquetArchive) SaveBars(ctx context.Context, symbol string, bars []model.Bar) error {
	existing, err := a.ReadBars(ctx, symbol, time.Time{})
	if err != nil {
		return err
	}
	byTS := make(map[int64]model.Bar, len(existing)+len(bars))
	for _, b := range existing {
		byTS[b.Time.UnixMilli()] = b
	}
	for _, b := range bars {
		byTS[b.Time.UnixMilli()] = b
	}
	merged := make([]model.Bar, 0, len(byTS))
	for _, b := range byTS {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Time.Before(merged[j].Time) })
	return WriteParquet(a.path(symbol), merged)
}

// ReadBars returns the symbol's bars at or after since. A missing file
// yields no bars and no error.
func (a *ParquetArchive) ReadBars(ctx context.Context, symbol string, since time.Time) ([]model.Bar, error) {
	path := a.path(symbol)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	bars, err := ReadParquet(path)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		return bars, nil
	}
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(since) })
	return bars[i:], nil
}

// Symbols lists the symbols with a file in Dir.
func (a *ParquetArchive) Symbols() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(a.Dir, "*.parquet"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".parquet"))
	}
	sort.Strings(out)
	return out, nil
}
