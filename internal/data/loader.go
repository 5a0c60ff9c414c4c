// Package data implements the reference MarketDataProvider of spec.md §6:
// a CSV candle loader, OHLC invariant rejection, timestamp sorting, and
// optional minute-bar aggregation. Grounded on the teacher's
// internal/data/store.go (logger wiring, dataDir layout, in-memory cache),
// generalized from its JSON-per-symbol wire format to the CSV format
// spec.md names.
package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// Loader reads `<SYMBOL>_<TIMEFRAME>.csv` candle files from a directory,
// caching the parsed, sorted result per (symbol, timeframe).
type Loader struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	cache   map[string][]types.Candle
}

// NewLoader builds a Loader rooted at dataDir.
func NewLoader(logger *zap.Logger, dataDir string) *Loader {
	return &Loader{
		logger:  logger.Named("data"),
		dataDir: dataDir,
		cache:   make(map[string][]types.Candle),
	}
}

// GetHistoricalCandles implements spec.md §6's MarketDataProvider:
// getHistoricalCandles(symbol, timeframe, startDate, endDate) -> Candle[],
// ordered ascending by timestamp.
func (l *Loader) GetHistoricalCandles(symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Candle, error) {
	key := symbol + "|" + string(timeframe)

	l.mu.RLock()
	cached, ok := l.cache[key]
	l.mu.RUnlock()

	if !ok {
		loaded, err := l.loadFile(symbol, timeframe)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[key] = loaded
		l.mu.Unlock()
		cached = loaded
	}

	return filterRange(cached, start, end), nil
}

func filterRange(candles []types.Candle, start, end time.Time) []types.Candle {
	startMs := start.UnixMilli()
	endMs := end.UnixMilli()
	out := make([]types.Candle, 0, len(candles))
	for _, c := range candles {
		if c.TimestampMs >= startMs && c.TimestampMs <= endMs {
			out = append(out, c)
		}
	}
	return out
}

func (l *Loader) loadFile(symbol string, timeframe types.Timeframe) ([]types.Candle, error) {
	path := filepath.Join(l.dataDir, fmt.Sprintf("%s_%s.csv", symbol, timeframe))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read candle csv %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("candle csv %s is empty", path)
	}

	start := 0
	if isHeaderRow(rows[0]) {
		start = 1
	}

	candles := make([]types.Candle, 0, len(rows)-start)
	rejected := 0
	for _, row := range rows[start:] {
		if len(row) < 6 {
			rejected++
			continue
		}
		candle, err := parseRow(row, timeframe)
		if err != nil {
			l.logger.Warn("skipping malformed candle row", zap.String("symbol", symbol), zap.Error(err))
			rejected++
			continue
		}
		if !candle.Valid() {
			l.logger.Warn("skipping candle violating OHLC invariants",
				zap.String("symbol", symbol), zap.Int64("timestamp", candle.TimestampMs))
			rejected++
			continue
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].TimestampMs < candles[j].TimestampMs })

	if rejected > 0 {
		l.logger.Info("rejected malformed or invalid candle rows", zap.String("symbol", symbol), zap.Int("count", rejected))
	}

	return candles, nil
}

func isHeaderRow(row []string) bool {
	if len(row) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	return err != nil
}

func parseRow(row []string, timeframe types.Timeframe) (types.Candle, error) {
	ts, err := parseTimestamp(strings.TrimSpace(row[0]))
	if err != nil {
		return types.Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	open, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return types.Candle{}, fmt.Errorf("open: %w", err)
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return types.Candle{}, fmt.Errorf("high: %w", err)
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
	if err != nil {
		return types.Candle{}, fmt.Errorf("low: %w", err)
	}
	close, err := strconv.ParseFloat(strings.TrimSpace(row[4]), 64)
	if err != nil {
		return types.Candle{}, fmt.Errorf("close: %w", err)
	}
	volume, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
	if err != nil {
		return types.Candle{}, fmt.Errorf("volume: %w", err)
	}
	return types.Candle{
		TimestampMs: ts,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       close,
		Volume:      volume,
		Timeframe:   timeframe,
	}, nil
}

// parseTimestamp accepts either a Unix millisecond integer or an RFC3339
// timestamp string, matching spec.md §6's "timestamp|date" column.
func parseTimestamp(raw string) (int64, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("unrecognized timestamp format %q", raw)
}

// Aggregate1mTo15m groups ascending-sorted 1-minute candles into
// 15-minute buckets per spec.md §6: first open, max high, min low, last
// close, summed volume.
func Aggregate1mTo15m(candles []types.Candle) []types.Candle {
	const bucketMs = 15 * 60 * 1000
	out := make([]types.Candle, 0, len(candles)/15+1)

	var bucketStart int64 = -1
	var current types.Candle
	for _, c := range candles {
		bucket := c.TimestampMs - c.TimestampMs%bucketMs
		if bucket != bucketStart {
			if bucketStart != -1 {
				out = append(out, current)
			}
			bucketStart = bucket
			current = types.Candle{
				TimestampMs: bucket,
				Open:        c.Open,
				High:        c.High,
				Low:         c.Low,
				Close:       c.Close,
				Volume:      c.Volume,
				Timeframe:   types.Timeframe15m,
			}
			continue
		}
		if c.High > current.High {
			current.High = c.High
		}
		if c.Low < current.Low {
			current.Low = c.Low
		}
		current.Close = c.Close
		current.Volume += c.Volume
	}
	if bucketStart != -1 {
		out = append(out, current)
	}
	return out
}
