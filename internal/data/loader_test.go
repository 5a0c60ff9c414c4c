package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

func writeCandleCSV(t *testing.T, dir, symbol string, timeframe types.Timeframe, rows string) {
	t.Helper()
	path := filepath.Join(dir, symbol+"_"+string(timeframe)+".csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
}

func TestGetHistoricalCandlesParsesAndSortsRows(t *testing.T) {
	dir := t.TempDir()
	writeCandleCSV(t, dir, "BTCUSDT", types.Timeframe1h, "timestamp,open,high,low,close,volume\n"+
		"120000,101,102,100,101,10\n"+
		"60000,100,101,99,100,10\n")

	loader := NewLoader(zap.NewNop(), dir)
	candles, err := loader.GetHistoricalCandles("BTCUSDT", types.Timeframe1h, time.UnixMilli(0), time.UnixMilli(999999))

	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(60000), candles[0].TimestampMs)
	assert.Equal(t, int64(120000), candles[1].TimestampMs)
}

func TestGetHistoricalCandlesFiltersByRange(t *testing.T) {
	dir := t.TempDir()
	writeCandleCSV(t, dir, "BTCUSDT", types.Timeframe1h, ""+
		"0,100,101,99,100,10\n"+
		"60000,100,101,99,100,10\n"+
		"120000,100,101,99,100,10\n")

	loader := NewLoader(zap.NewNop(), dir)
	candles, err := loader.GetHistoricalCandles("BTCUSDT", types.Timeframe1h, time.UnixMilli(60000), time.UnixMilli(120000))

	require.NoError(t, err)
	assert.Len(t, candles, 2)
}

func TestGetHistoricalCandlesCachesParsedFile(t *testing.T) {
	dir := t.TempDir()
	writeCandleCSV(t, dir, "BTCUSDT", types.Timeframe1h, "0,100,101,99,100,10\n")

	loader := NewLoader(zap.NewNop(), dir)
	_, err := loader.GetHistoricalCandles("BTCUSDT", types.Timeframe1h, time.UnixMilli(0), time.UnixMilli(0))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "BTCUSDT_1h.csv")))

	candles, err := loader.GetHistoricalCandles("BTCUSDT", types.Timeframe1h, time.UnixMilli(0), time.UnixMilli(0))
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}

func TestGetHistoricalCandlesErrorsOnMissingFile(t *testing.T) {
	loader := NewLoader(zap.NewNop(), t.TempDir())

	_, err := loader.GetHistoricalCandles("NOPE", types.Timeframe1h, time.UnixMilli(0), time.UnixMilli(1))

	assert.Error(t, err)
}

func TestLoadFileRejectsInvalidOHLCRows(t *testing.T) {
	dir := t.TempDir()
	writeCandleCSV(t, dir, "BTCUSDT", types.Timeframe1h, ""+
		"0,100,101,99,100,10\n"+ // valid
		"60000,100,90,99,100,10\n") // high < low, invalid

	loader := NewLoader(zap.NewNop(), dir)
	candles, err := loader.GetHistoricalCandles("BTCUSDT", types.Timeframe1h, time.UnixMilli(0), time.UnixMilli(999999))

	require.NoError(t, err)
	assert.Len(t, candles, 1)
}

func TestParseTimestampAcceptsMillisAndRFC3339(t *testing.T) {
	ms, err := parseTimestamp("1700000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), ms)

	rfc, err := parseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), rfc)

	_, err = parseTimestamp("not-a-timestamp")
	assert.Error(t, err)
}

func TestAggregate1mTo15mGroupsIntoFifteenMinuteBuckets(t *testing.T) {
	candles := make([]types.Candle, 0, 30)
	for i := 0; i < 30; i++ {
		candles = append(candles, types.Candle{
			TimestampMs: int64(i) * 60_000,
			Open:        100 + float64(i),
			High:        105 + float64(i),
			Low:         95 + float64(i),
			Close:       101 + float64(i),
			Volume:      1,
			Timeframe:   types.Timeframe1m,
		})
	}

	out := Aggregate1mTo15m(candles)

	require.Len(t, out, 2)
	assert.Equal(t, int64(0), out[0].TimestampMs)
	assert.Equal(t, float64(100), out[0].Open)
	assert.Equal(t, float64(15), out[0].Volume)
	assert.Equal(t, types.Timeframe15m, out[0].Timeframe)
}
