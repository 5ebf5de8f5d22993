package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Verdenroz/finance-query-sub000/pkg/finance"
)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "charts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func chart(symbol string, start int64, closes ...float64) *finance.Chart {
	c := &finance.Chart{
		Symbol:   symbol,
		Currency: "USD",
		Exchange: "NMS",
		Timezone: "America/New_York",
		Interval: finance.Interval1d,
		Range:    finance.Range1mo,
	}
	for i, v := range closes {
		c.Candles = append(c.Candles, finance.Candle{
			Timestamp: start + int64(i)*86400,
			Open:      v - 1,
			High:      v + 1,
			Low:       v - 2,
			Close:     v,
			Volume:    int64(1000 + i),
			AdjClose:  null.FloatFrom(v * 0.99),
		})
	}
	return c
}

func TestArchive_SaveLoad(t *testing.T) {
	ctx := context.Background()
	a := openTemp(t)

	in := chart("AAPL", 1_700_000_000, 10, 11, 12)
	in.Candles[1].AdjClose = null.Float{}
	require.NoError(t, a.SaveChart(ctx, in))

	out, err := a.LoadChart(ctx, "AAPL", finance.Interval1d, 0)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.False(t, out.Candles[1].AdjClose.Valid)
}

func TestArchive_SaveMergesCandles(t *testing.T) {
	ctx := context.Background()
	a := openTemp(t)

	require.NoError(t, a.SaveChart(ctx, chart("MSFT", 1_700_000_000, 1, 2, 3)))
	// overlaps the last bar and extends by two
	require.NoError(t, a.SaveChart(ctx, chart("MSFT", 1_700_000_000+2*86400, 30, 4, 5)))

	out, err := a.LoadChart(ctx, "MSFT", finance.Interval1d, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 30, 4, 5}, out.Closes())

	last, err := a.LastTimestamp(ctx, "MSFT", finance.Interval1d)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000+4*86400), last)

	recent, err := a.LoadChart(ctx, "MSFT", finance.Interval1d, 1_700_000_000+2*86400)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, recent.Closes())
}

func TestArchive_NotArchived(t *testing.T) {
	ctx := context.Background()
	a := openTemp(t)
	require.NoError(t, a.SaveChart(ctx, chart("AAPL", 1, 1)))

	_, err := a.LoadChart(ctx, "AAPL", finance.Interval1wk, 0)
	assert.ErrorIs(t, err, ErrNotArchived)
	_, err = a.LoadChart(ctx, "NOPE", finance.Interval1d, 0)
	assert.ErrorIs(t, err, ErrNotArchived)

	last, err := a.LastTimestamp(ctx, "NOPE", finance.Interval1d)
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestArchive_Symbols(t *testing.T) {
	ctx := context.Background()
	a := openTemp(t)

	syms, err := a.Symbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, syms)

	for _, s := range []string{"MSFT", "AAPL", "MSFT"} {
		require.NoError(t, a.SaveChart(ctx, chart(s, 1, 1)))
	}
	syms, err = a.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, syms)
}

func TestArchive_RunFlushesOnClose(t *testing.T) {
	a := openTemp(t)
	ch := make(chan *finance.Chart, 4)
	ch <- chart("AAPL", 1, 1, 2)
	ch <- chart("GOOG", 1, 3)
	ch <- nil
	close(ch)

	done := make(chan struct{})
	go func() {
		a.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}

	syms, err := a.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "GOOG"}, syms)
}

func TestArchive_RunFlushesOnCancel(t *testing.T) {
	a := openTemp(t)
	ch := make(chan *finance.Chart)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, ch)
		close(done)
	}()
	ch <- chart("TSLA", 1, 1)
	cancel()
	<-done

	c, err := a.LoadChart(context.Background(), "TSLA", finance.Interval1d, 0)
	require.NoError(t, err)
	assert.Len(t, c.Candles, 1)
}
