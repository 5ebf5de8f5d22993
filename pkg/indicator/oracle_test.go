package indicator

import (
	"fmt"
	"testing"

	"github.com/markcheno/go-talib"
)

// compareTail checks got against a TA-Lib output from index first onwards.
// TA-Lib pads its look-back with zeros, so earlier entries are ignored.
func compareTail(t *testing.T, name string, got Series, want []float64, first int) {
	t.Helper()
	checkAligned(t, name, got, len(want), first)
	for i := first; i < len(want); i++ {
		if !got[i].Valid {
			t.Errorf("%s[%d]: null, want %.6f", name, i, want[i])
			continue
		}
		assertClose(t, fmt.Sprintf("%s[%d]", name, i), got[i].Float64, want[i], 1e-6)
	}
}

func TestAgainstTALib(t *testing.T) {
	d := wave(120)
	h, l, c := d.High, d.Low, d.Close

	compareTail(t, "SMA", SMA(c, 20), talib.Sma(c, 20), 19)
	compareTail(t, "EMA", EMA(c, 20), talib.Ema(c, 20), 19)
	compareTail(t, "WMA", WMA(c, 10), talib.Wma(c, 10), 9)
	compareTail(t, "DEMA", DEMA(c, 10), talib.Dema(c, 10), 18)
	compareTail(t, "TEMA", TEMA(c, 10), talib.Tema(c, 10), 27)
	compareTail(t, "RSI", RSI(c, 14), talib.Rsi(c, 14), 14)
	compareTail(t, "ATR", ATR(h, l, c, 14), talib.Atr(h, l, c, 14), 14)
	compareTail(t, "Momentum", Momentum(c, 10), talib.Mom(c, 10), 10)
	compareTail(t, "ROC", ROC(c, 10), talib.Roc(c, 10), 10)
	compareTail(t, "WilliamsR", WilliamsR(h, l, c, 14), talib.WillR(h, l, c, 14), 13)
	compareTail(t, "CCI", CCI(h, l, c, 20), talib.Cci(h, l, c, 20), 19)

	upper, middle, lower := talib.BBands(c, 20, 2, 2, talib.SMA)
	bb := Bollinger(c, 20, 2)
	compareTail(t, "BB.upper", bb.Upper, upper, 19)
	compareTail(t, "BB.middle", bb.Middle, middle, 19)
	compareTail(t, "BB.lower", bb.Lower, lower, 19)
}
