package indicator

import (
	"encoding/json"
	"math"
)

// Pattern is a candlestick pattern label. None means the bar carries no
// label.
type Pattern int

const (
	None Pattern = iota

	// one bar
	Doji
	DragonflyDoji
	GravestoneDoji
	Hammer
	InvertedHammer
	HangingMan
	ShootingStar
	BullishMarubozu
	BearishMarubozu
	SpinningTop

	// two bars
	BullishEngulfing
	BearishEngulfing
	BullishHarami
	BearishHarami
	PiercingLine
	DarkCloudCover
	TweezerTop
	TweezerBottom

	// three bars
	MorningStar
	EveningStar
	ThreeWhiteSoldiers
	ThreeBlackCrows
)

var patternNames = [...]string{
	None:               "",
	Doji:               "doji",
	DragonflyDoji:      "dragonfly_doji",
	GravestoneDoji:     "gravestone_doji",
	Hammer:             "hammer",
	InvertedHammer:     "inverted_hammer",
	HangingMan:         "hanging_man",
	ShootingStar:       "shooting_star",
	BullishMarubozu:    "bullish_marubozu",
	BearishMarubozu:    "bearish_marubozu",
	SpinningTop:        "spinning_top",
	BullishEngulfing:   "bullish_engulfing",
	BearishEngulfing:   "bearish_engulfing",
	BullishHarami:      "bullish_harami",
	BearishHarami:      "bearish_harami",
	PiercingLine:       "piercing_line",
	DarkCloudCover:     "dark_cloud_cover",
	TweezerTop:         "tweezer_top",
	TweezerBottom:      "tweezer_bottom",
	MorningStar:        "morning_star",
	EveningStar:        "evening_star",
	ThreeWhiteSoldiers: "three_white_soldiers",
	ThreeBlackCrows:    "three_black_crows",
}

func (p Pattern) String() string {
	if p < 0 || int(p) >= len(patternNames) {
		return "unknown"
	}
	return patternNames[p]
}

// Bars returns how many candles the pattern spans, 0 for None.
func (p Pattern) Bars() int {
	switch {
	case p == None:
		return 0
	case p <= SpinningTop:
		return 1
	case p <= TweezerBottom:
		return 2
	default:
		return 3
	}
}

// MarshalJSON encodes None as null and anything else by name.
func (p Pattern) MarshalJSON() ([]byte, error) {
	if p == None {
		return []byte("null"), nil
	}
	return json.Marshal(p.String())
}

// Shape thresholds as fractions of the bar's high-low range.
const (
	dojiBody   = 0.1
	smallBody  = 0.3
	longBody   = 0.6
	marubozu   = 0.9
	tinyShadow = 0.1
	tweezerTol = 0.05
)

type candle struct {
	o, h, l, c float64
}

func (k candle) body() float64  { return math.Abs(k.c - k.o) }
func (k candle) rng() float64   { return k.h - k.l }
func (k candle) upper() float64 { return k.h - math.Max(k.o, k.c) }
func (k candle) lower() float64 { return math.Min(k.o, k.c) - k.l }
func (k candle) bull() bool     { return k.c > k.o }
func (k candle) bear() bool     { return k.c < k.o }
func (k candle) top() float64   { return math.Max(k.o, k.c) }
func (k candle) bot() float64   { return math.Min(k.o, k.c) }
func (k candle) mid() float64   { return (k.o + k.c) / 2 }
func (k candle) long() bool     { return k.body() >= longBody*k.rng() }

// Patterns labels every bar with at most one pattern. A three-bar match
// ending at i wins over a two-bar match, which wins over a one-bar shape.
// Hammer-like shapes are named by the net close change over the three bars
// before i: falling gives the bullish name, rising the bearish one, flat or
// too little history leaves the bar unlabeled.
func Patterns(d OHLCV) []Pattern {
	n := d.Len()
	out := make([]Pattern, n)
	if !sameLen(n, d.Open, d.High, d.Low) {
		return out
	}
	bar := func(i int) candle {
		return candle{o: d.Open[i], h: d.High[i], l: d.Low[i], c: d.Close[i]}
	}
	for i := 0; i < n; i++ {
		cur := bar(i)
		if i >= 2 {
			if p := threeBar(bar(i-2), bar(i-1), cur); p != None {
				out[i] = p
				continue
			}
		}
		if i >= 1 {
			if p := twoBar(bar(i-1), cur); p != None {
				out[i] = p
				continue
			}
		}
		trend := 0
		if i >= 3 {
			switch delta := d.Close[i-1] - d.Close[i-3]; {
			case delta > 0:
				trend = 1
			case delta < 0:
				trend = -1
			}
		}
		out[i] = oneBar(cur, trend)
	}
	return out
}

func oneBar(k candle, trend int) Pattern {
	rng, body := k.rng(), k.body()
	if rng <= 0 {
		return Doji
	}
	switch {
	case body <= dojiBody*rng:
		switch {
		case k.upper() <= tinyShadow*rng && k.lower() >= longBody*rng:
			return DragonflyDoji
		case k.lower() <= tinyShadow*rng && k.upper() >= longBody*rng:
			return GravestoneDoji
		}
		return Doji
	case body >= marubozu*rng:
		if k.bull() {
			return BullishMarubozu
		}
		return BearishMarubozu
	case k.lower() >= 2*body && k.upper() <= tinyShadow*rng:
		switch trend {
		case -1:
			return Hammer
		case 1:
			return HangingMan
		}
		return None
	case k.upper() >= 2*body && k.lower() <= tinyShadow*rng:
		switch trend {
		case -1:
			return InvertedHammer
		case 1:
			return ShootingStar
		}
		return None
	case body <= smallBody*rng && k.upper() > body && k.lower() > body:
		return SpinningTop
	}
	return None
}

func twoBar(a, b candle) Pattern {
	switch {
	case a.bear() && b.bull() && b.c >= a.o && b.o <= a.c && b.body() > a.body():
		return BullishEngulfing
	case a.bull() && b.bear() && b.o >= a.c && b.c <= a.o && b.body() > a.body():
		return BearishEngulfing
	case a.bear() && a.long() && b.bull() && b.top() <= a.o && b.bot() >= a.c && b.body() < a.body():
		return BullishHarami
	case a.bull() && a.long() && b.bear() && b.top() <= a.c && b.bot() >= a.o && b.body() < a.body():
		return BearishHarami
	case a.bear() && a.long() && b.bull() && b.o < a.c && b.c > a.mid() && b.c < a.o:
		return PiercingLine
	case a.bull() && a.long() && b.bear() && b.o > a.c && b.c < a.mid() && b.c > a.o:
		return DarkCloudCover
	}
	tol := tweezerTol * math.Max(a.rng(), b.rng())
	switch {
	case a.bull() && b.bear() && math.Abs(a.h-b.h) <= tol:
		return TweezerTop
	case a.bear() && b.bull() && math.Abs(a.l-b.l) <= tol:
		return TweezerBottom
	}
	return None
}

func threeBar(a, b, c candle) Pattern {
	small := b.body() <= smallBody*a.body()
	switch {
	case a.bear() && a.long() && small && b.top() <= a.c && c.bull() && c.c > a.mid():
		return MorningStar
	case a.bull() && a.long() && small && b.bot() >= a.c && c.bear() && c.c < a.mid():
		return EveningStar
	case soldiers(a, b, c):
		return ThreeWhiteSoldiers
	case crows(a, b, c):
		return ThreeBlackCrows
	}
	return None
}

func soldiers(a, b, c candle) bool {
	for _, k := range []candle{a, b, c} {
		if !k.bull() || k.body() < 0.5*k.rng() {
			return false
		}
	}
	return b.c > a.c && c.c > b.c &&
		b.o >= a.o && b.o <= a.c &&
		c.o >= b.o && c.o <= b.c
}

func crows(a, b, c candle) bool {
	for _, k := range []candle{a, b, c} {
		if !k.bear() || k.body() < 0.5*k.rng() {
			return false
		}
	}
	return b.c < a.c && c.c < b.c &&
		b.o <= a.o && b.o >= a.c &&
		c.o <= b.o && c.o >= b.c
}
