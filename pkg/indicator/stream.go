package indicator

// SMAStream calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer; Update is O(1).
type SMAStream struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMA creates a streaming SMA. period must be positive.
func NewSMA(period int) *SMAStream {
	return &SMAStream{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMAStream) Name() string { return "SMA" }

func (s *SMAStream) Update(v float64) {
	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}
	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMAStream) Value() float64 { return s.current }
func (s *SMAStream) Ready() bool    { return s.count >= s.period }

func (s *SMAStream) Peek(v float64) float64 {
	if s.count < s.period {
		return (s.sum + v) / float64(s.count+1)
	}
	// idx points at the oldest value, the one v would replace
	return (s.sum - s.buf[s.idx] + v) / float64(s.period)
}

func (s *SMAStream) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// EMAStream calculates Exponential Moving Average, seeded with the SMA of the first
// period values. O(1) per update, no window storage.
type EMAStream struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a streaming EMA with k = 2/(period+1).
func NewEMA(period int) *EMAStream {
	return &EMAStream{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMAStream) Name() string { return "EMA" }

func (e *EMAStream) Update(v float64) {
	e.count++
	if e.count <= e.period {
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}
	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMAStream) Value() float64 { return e.current }
func (e *EMAStream) Ready() bool    { return e.count >= e.period }

func (e *EMAStream) Peek(v float64) float64 {
	if e.count < e.period {
		return (e.sum + v) / float64(e.count+1)
	}
	return (v * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMAStream) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}

// SMMAStream calculates the Smoothed (Wilder) Moving Average.
// First value is SMA(period), then SMMA = (prev*(period-1) + v) / period.
type SMMAStream struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a streaming SMMA.
func NewSMMA(period int) *SMMAStream {
	return &SMMAStream{period: period}
}

func (s *SMMAStream) Name() string { return "SMMA" }

func (s *SMMAStream) Update(v float64) {
	s.count++
	if s.count <= s.period {
		s.sum += v
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}
	s.current = (s.current*float64(s.period-1) + v) / float64(s.period)
}

func (s *SMMAStream) Value() float64 { return s.current }
func (s *SMMAStream) Ready() bool    { return s.count >= s.period }

func (s *SMMAStream) Peek(v float64) float64 {
	if s.count < s.period {
		return (s.sum + v) / float64(s.count+1)
	}
	return (s.current*float64(s.period-1) + v) / float64(s.period)
}

func (s *SMMAStream) Reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}

// RSIStream calculates the Relative Strength Index with Wilder's smoothing.
// The first value needs period price changes, i.e. period+1 prices.
type RSIStream struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a streaming RSI (typically period 14).
func NewRSI(period int) *RSIStream {
	return &RSIStream{period: period}
}

func (r *RSIStream) Name() string { return "RSI" }

func (r *RSIStream) Update(v float64) {
	r.count++
	if r.count == 1 {
		r.prevClose = v
		return
	}

	gain, loss := split(v - r.prevClose)
	r.prevClose = v

	if r.count <= r.period+1 {
		r.avgGain += gain
		r.avgLoss += loss
		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFrom(r.avgGain, r.avgLoss)
		}
		return
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFrom(r.avgGain, r.avgLoss)
}

func (r *RSIStream) Value() float64 { return r.current }
func (r *RSIStream) Ready() bool    { return r.count > r.period }

func (r *RSIStream) Peek(v float64) float64 {
	if r.count <= r.period {
		return r.current
	}
	gain, loss := split(v - r.prevClose)
	p := float64(r.period)
	return rsiFrom((r.avgGain*(p-1)+gain)/p, (r.avgLoss*(p-1)+loss)/p)
}

func (r *RSIStream) Reset() {
	*r = RSIStream{period: r.period}
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

// avgLoss == 0 reads as 100, including a perfectly flat market.
func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
