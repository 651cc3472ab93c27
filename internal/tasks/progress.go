package tasks

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Percent converts (current, total) into a whole percentage.
// ok is false when total <= 0, in which case nothing should be reported.
func Percent(current, total int) (percent int, ok bool) {
	if total <= 0 {
		return 0, false
	}

	percent = int(math.Round(float64(current) / float64(total) * 100))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent, true
}

// NewProgressLimiter returns a limiter allowing one progress event per interval, or nil for interval <= 0
func NewProgressLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// ProgressReporter turns collaborator (current, total) callbacks into percentage events.
// Repeated percentages are dropped and, with a limiter, intermediate values are throttled.
// 0% and 100% always pass.
type ProgressReporter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	emit    func(percent int)
	last    int
}

// NewProgressReporter wraps emit. A nil limiter disables throttling.
func NewProgressReporter(limiter *rate.Limiter, emit func(percent int)) *ProgressReporter {
	return &ProgressReporter{
		limiter: limiter,
		emit:    emit,
		last:    -1,
	}
}

// Report is safe to call from any goroutine
func (p *ProgressReporter) Report(current, total int) {
	percent, ok := Percent(current, total)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if percent == p.last {
		return
	}
	if percent != 0 && percent != 100 && p.limiter != nil && !p.limiter.Allow() {
		return
	}
	p.last = percent

	// Emitted under the lock so concurrent reporters cannot reorder events
	p.emit(percent)
}
