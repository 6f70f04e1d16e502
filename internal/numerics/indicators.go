package numerics

import "time"

// Bar is one 1-minute OHLCV bar in exchange-local time.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// EMA is a restartable exponential moving average: it retains only the last
// computed value, never an unbounded buffer of history.
type EMA struct {
	Period    int
	alpha     float64
	value     float64
	primed    bool
}

// NewEMA constructs an EMA with alpha = 2/(period+1).
func NewEMA(period int) *EMA {
	return &EMA{Period: period, alpha: 2.0 / (float64(period) + 1.0)}
}

// Update feeds the next close price and returns the updated EMA value.
func (e *EMA) Update(close float64) float64 {
	if !e.primed {
		e.value = close
		e.primed = true
		return e.value
	}
	e.value = e.alpha*close + (1-e.alpha)*e.value
	return e.value
}

// Value returns the last computed value without updating.
func (e *EMA) Value() float64 { return e.value }

// Primed reports whether at least one sample has been fed.
func (e *EMA) Primed() bool { return e.primed }

// RSI computes the Relative Strength Index using Wilder smoothing, keeping
// only the running average gain/loss rather than a window of samples.
type RSI struct {
	Period   int
	avgGain  float64
	avgLoss  float64
	lastOpen float64
	primed   bool
	seeded   bool
}

// NewRSI constructs an RSI(period) tracker, conventionally RSI(14).
func NewRSI(period int) *RSI {
	return &RSI{Period: period}
}

// Update feeds the next close price and returns the current RSI, or false
// while not yet seeded: the first sample only sets the reference close and
// the second seeds the averages from that single change, so the first RSI
// value is returned on the third sample.
func (r *RSI) Update(close float64) (float64, bool) {
	if !r.primed {
		r.lastOpen = close
		r.primed = true
		return 0, false
	}
	change := close - r.lastOpen
	r.lastOpen = close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if !r.seeded {
		r.avgGain = gain
		r.avgLoss = loss
		r.seeded = true
		return 0, false
	}

	n := float64(r.Period)
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n

	if r.avgLoss == 0 {
		return 100, true
	}
	rs := r.avgGain / r.avgLoss
	rsi := 100 - (100 / (1 + rs))
	return rsi, true
}

// VWAP accumulates volume-weighted average price from session open in
// exchange-local time; the session boundary is detected by a new calendar
// day (exchange-local) relative to the last bar seen.
type VWAP struct {
	sessionDay   time.Time
	cumPxVol     float64
	cumVol       float64
}

// Update feeds the next bar (using its typical price) and returns the
// current session VWAP.
func (v *VWAP) Update(bar Bar, loc *time.Location) float64 {
	local := bar.Timestamp.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if !v.sessionDay.Equal(day) {
		v.sessionDay = day
		v.cumPxVol = 0
		v.cumVol = 0
	}
	typical := (bar.High + bar.Low + bar.Close) / 3
	v.cumPxVol += typical * bar.Volume
	v.cumVol += bar.Volume
	if v.cumVol == 0 {
		return typical
	}
	return v.cumPxVol / v.cumVol
}

// RelativeVolumeWindow is a fixed-size ring buffer of the trailing N bar
// volumes, used to compute relative volume = current / trailing mean.
type RelativeVolumeWindow struct {
	size   int
	buf    []float64
	cursor int
	filled bool
	sum    float64
}

// NewRelativeVolumeWindow constructs a trailing window of the given size
// (conventionally 20 bars).
func NewRelativeVolumeWindow(size int) *RelativeVolumeWindow {
	return &RelativeVolumeWindow{size: size, buf: make([]float64, size)}
}

// Update pushes the next bar's volume into the ring buffer and returns the
// relative volume of currentVolume against the trailing mean computed
// BEFORE this sample was added (i.e. the mean of the prior `size` bars).
func (w *RelativeVolumeWindow) Update(currentVolume float64) (relativeVolume float64, ready bool) {
	if w.filled {
		mean := w.sum / float64(w.size)
		if mean > 0 {
			relativeVolume = currentVolume / mean
			ready = true
		}
	}
	old := w.buf[w.cursor]
	w.buf[w.cursor] = currentVolume
	w.sum += currentVolume - old
	w.cursor = (w.cursor + 1) % w.size
	if w.cursor == 0 {
		w.filled = true
	}
	return relativeVolume, ready
}
