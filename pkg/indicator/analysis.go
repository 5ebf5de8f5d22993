package indicator

import (
	"fmt"

	"github.com/guregu/null/v6"
)

// StandardPeriods are the moving-average look-backs computed by Analyze.
var StandardPeriods = []int{10, 20, 50, 100, 200}

// Analysis is the full indicator set over one OHLCV array at the
// conventional parameters.
type Analysis struct {
	SMA      map[int]Series `json:"sma"`
	EMA      map[int]Series `json:"ema"`
	WMA      Series         `json:"wma_20"`
	VWMA     Series         `json:"vwma_20"`
	DEMA     Series         `json:"dema_20"`
	TEMA     Series         `json:"tema_20"`
	HMA      Series         `json:"hma_20"`
	KAMA     Series         `json:"kama_10"`
	ALMA     Series         `json:"alma_9"`
	McGinley Series         `json:"mcginley_14"`
	VWAP     Series         `json:"vwap"`

	RSI                Series         `json:"rsi_14"`
	StochRSI           Oscillator     `json:"stoch_rsi"`
	Stochastic         Oscillator     `json:"stochastic"`
	MACD               MACDResult     `json:"macd"`
	PPO                MACDResult     `json:"ppo"`
	ROC                Series         `json:"roc_12"`
	Momentum           Series         `json:"momentum_10"`
	WilliamsR          Series         `json:"williams_r_14"`
	CCI                Series         `json:"cci_20"`
	AwesomeOscillator  Series         `json:"awesome_oscillator"`
	UltimateOscillator Series         `json:"ultimate_oscillator"`
	TRIX               Series         `json:"trix_15"`
	TSI                Series         `json:"tsi"`
	CMO                Series         `json:"cmo_14"`
	ElderRay           ElderRayResult `json:"elder_ray"`

	ADX             ADXResult        `json:"adx"`
	Aroon           AroonResult      `json:"aroon"`
	AroonOscillator Series           `json:"aroon_oscillator"`
	SuperTrend      SuperTrendResult `json:"supertrend"`
	Ichimoku        IchimokuResult   `json:"ichimoku"`
	ParabolicSAR    Series           `json:"parabolic_sar"`
	Donchian        Bands            `json:"donchian"`

	ATR       Series `json:"atr_14"`
	TrueRange Series `json:"true_range"`
	Bollinger Bands  `json:"bollinger"`
	StdDev    Series `json:"stddev_20"`
	Keltner   Bands  `json:"keltner"`

	OBV               Series `json:"obv"`
	MFI               Series `json:"mfi_14"`
	CMF               Series `json:"cmf_20"`
	ADLine            Series `json:"ad_line"`
	ForceIndex        Series `json:"force_index_13"`
	VPT               Series `json:"vpt"`
	ChaikinOscillator Series `json:"chaikin_oscillator"`

	Patterns []Pattern `json:"patterns"`
}

// Analyze computes every indicator and the pattern labels over d.
func Analyze(d OHLCV) *Analysis {
	h, l, c, v := d.High, d.Low, d.Close, d.Volume
	a := &Analysis{
		SMA: make(map[int]Series, len(StandardPeriods)),
		EMA: make(map[int]Series, len(StandardPeriods)),
	}
	for _, p := range StandardPeriods {
		a.SMA[p] = SMA(c, p)
		a.EMA[p] = EMA(c, p)
	}
	a.WMA = WMA(c, 20)
	a.VWMA = VWMA(c, v, 20)
	a.DEMA = DEMA(c, 20)
	a.TEMA = TEMA(c, 20)
	a.HMA = HMA(c, 20)
	a.KAMA = KAMA(c, 10)
	a.ALMA = ALMA(c, 9)
	a.McGinley = McGinley(c, 14)
	a.VWAP = VWAP(d)

	a.RSI = RSI(c, 14)
	a.StochRSI = StochRSI(c, 14, 14, 3, 3)
	a.Stochastic = Stochastic(h, l, c, 14, 3)
	a.MACD = MACD(c, 12, 26, 9)
	a.PPO = PPO(c, 12, 26, 9)
	a.ROC = ROC(c, 12)
	a.Momentum = Momentum(c, 10)
	a.WilliamsR = WilliamsR(h, l, c, 14)
	a.CCI = CCI(h, l, c, 20)
	a.AwesomeOscillator = AwesomeOscillator(h, l)
	a.UltimateOscillator = UltimateOscillator(h, l, c, 7, 14, 28)
	a.TRIX = TRIX(c, 15)
	a.TSI = TSI(c, 25, 13)
	a.CMO = CMO(c, 14)
	a.ElderRay = ElderRay(h, l, c, 13)

	a.ADX = ADX(h, l, c, 14)
	a.Aroon = Aroon(h, l, 25)
	a.AroonOscillator = AroonOscillator(h, l, 25)
	a.SuperTrend = SuperTrend(h, l, c, 10, 3)
	a.Ichimoku = Ichimoku(h, l, c, 9, 26, 52)
	a.ParabolicSAR = ParabolicSAR(h, l, 0.02, 0.2)
	a.Donchian = Donchian(h, l, 20)

	a.ATR = ATR(h, l, c, 14)
	a.TrueRange = TrueRange(h, l, c)
	a.Bollinger = Bollinger(c, 20, 2)
	a.StdDev = StdDev(c, 20)
	a.Keltner = Keltner(h, l, c, 20, 2, 10)

	a.OBV = OBV(c, v)
	a.MFI = MFI(h, l, c, v, 14)
	a.CMF = CMF(h, l, c, v, 20)
	a.ADLine = ADLine(h, l, c, v)
	a.ForceIndex = ForceIndex(c, v, 13)
	a.VPT = VPT(c, v)
	a.ChaikinOscillator = ChaikinOscillator(h, l, c, v, 3, 10)

	a.Patterns = Patterns(d)
	return a
}

// Summary maps indicator names to their value on the last bar.
type Summary map[string]null.Float

// Latest returns the most recent value of every single-line indicator and
// of each line of the multi-line ones.
func (a *Analysis) Latest() Summary {
	s := Summary{}
	for p, series := range a.SMA {
		s[fmt.Sprintf("sma_%d", p)] = series.Last()
	}
	for p, series := range a.EMA {
		s[fmt.Sprintf("ema_%d", p)] = series.Last()
	}
	set := func(name string, series Series) { s[name] = series.Last() }

	set("wma_20", a.WMA)
	set("vwma_20", a.VWMA)
	set("dema_20", a.DEMA)
	set("tema_20", a.TEMA)
	set("hma_20", a.HMA)
	set("kama_10", a.KAMA)
	set("alma_9", a.ALMA)
	set("mcginley_14", a.McGinley)
	set("vwap", a.VWAP)

	set("rsi_14", a.RSI)
	set("stoch_rsi_k", a.StochRSI.K)
	set("stoch_rsi_d", a.StochRSI.D)
	set("stochastic_k", a.Stochastic.K)
	set("stochastic_d", a.Stochastic.D)
	set("macd", a.MACD.Line)
	set("macd_signal", a.MACD.Signal)
	set("macd_histogram", a.MACD.Histogram)
	set("ppo", a.PPO.Line)
	set("ppo_signal", a.PPO.Signal)
	set("roc_12", a.ROC)
	set("momentum_10", a.Momentum)
	set("williams_r_14", a.WilliamsR)
	set("cci_20", a.CCI)
	set("awesome_oscillator", a.AwesomeOscillator)
	set("ultimate_oscillator", a.UltimateOscillator)
	set("trix_15", a.TRIX)
	set("tsi", a.TSI)
	set("cmo_14", a.CMO)
	set("elder_bull", a.ElderRay.Bull)
	set("elder_bear", a.ElderRay.Bear)

	set("adx_14", a.ADX.ADX)
	set("plus_di", a.ADX.PlusDI)
	set("minus_di", a.ADX.MinusDI)
	set("aroon_up", a.Aroon.Up)
	set("aroon_down", a.Aroon.Down)
	set("aroon_oscillator", a.AroonOscillator)
	set("supertrend", a.SuperTrend.Value)
	set("ichimoku_tenkan", a.Ichimoku.Tenkan)
	set("ichimoku_kijun", a.Ichimoku.Kijun)
	set("ichimoku_senkou_a", a.Ichimoku.SenkouA)
	set("ichimoku_senkou_b", a.Ichimoku.SenkouB)
	set("parabolic_sar", a.ParabolicSAR)
	set("donchian_upper", a.Donchian.Upper)
	set("donchian_lower", a.Donchian.Lower)

	set("atr_14", a.ATR)
	set("true_range", a.TrueRange)
	set("bollinger_upper", a.Bollinger.Upper)
	set("bollinger_middle", a.Bollinger.Middle)
	set("bollinger_lower", a.Bollinger.Lower)
	set("stddev_20", a.StdDev)
	set("keltner_upper", a.Keltner.Upper)
	set("keltner_lower", a.Keltner.Lower)

	set("obv", a.OBV)
	set("mfi_14", a.MFI)
	set("cmf_20", a.CMF)
	set("ad_line", a.ADLine)
	set("force_index_13", a.ForceIndex)
	set("vpt", a.VPT)
	set("chaikin_oscillator", a.ChaikinOscillator)
	return s
}
