// Package ratelimit provides the fixed-window hourly and daily budget that
// gates outbound proactive messages.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config configures the hourly and daily message budgets.
type Config struct {
	// MaxPerHour is the number of messages allowed per clock hour.
	MaxPerHour int `yaml:"max_messages_per_hour"`
	// MaxPerDay is the number of messages allowed per calendar day.
	MaxPerDay int `yaml:"max_messages_per_day"`
}

// DefaultConfig returns the default budget.
func DefaultConfig() Config {
	return Config{
		MaxPerHour: 10,
		MaxPerDay:  50,
	}
}

// DefaultCheckInterval is how often Run checks for window boundaries.
const DefaultCheckInterval = time.Minute

// Limiter counts sends in a fixed hourly window and a fixed daily window.
// The windows are not sliding: counters reset only when a boundary check
// observes that the clock hour (or calendar date) changed since the last
// reset.
type Limiter struct {
	mu        sync.Mutex
	config    Config
	now       func() time.Time
	loc       *time.Location
	hourCount int
	dayCount  int
	hourReset time.Time
	dayReset  time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLocation sets the timezone used to find hour and day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(l *Limiter) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// NewLimiter creates a limiter with empty counters.
func NewLimiter(config Config, opts ...Option) *Limiter {
	l := &Limiter{
		config: config,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	now := l.now()
	l.hourReset = now
	l.dayReset = now
	return l
}

// Allow reports whether both counters are below their maxima.
// It does not consume budget; call Record after a successful send.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hourCount < l.config.MaxPerHour && l.dayCount < l.config.MaxPerDay
}

// Record counts one sent message against both windows.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hourCount++
	l.dayCount++
}

// SetConfig replaces the budget without touching the counters.
func (l *Limiter) SetConfig(config Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = config
}

// CheckBoundaries resets the hour counter when the clock hour changed since
// the last hour reset, and the day counter when the calendar date changed
// since the last day reset.
func (l *Limiter) CheckBoundaries() (hourReset, dayReset bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().In(l.loc)
	last := l.hourReset.In(l.loc)
	if !sameDay(now, last) || now.Hour() != last.Hour() {
		l.hourCount = 0
		l.hourReset = now
		hourReset = true
	}
	if !sameDay(now, l.dayReset.In(l.loc)) {
		l.dayCount = 0
		l.dayReset = now
		dayReset = true
	}
	return hourReset, dayReset
}

// Run performs boundary checks every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.CheckBoundaries()
		}
	}
}

// Status is a snapshot of the limiter.
type Status struct {
	HourCount  int       `json:"hour_count"`
	DayCount   int       `json:"day_count"`
	MaxPerHour int       `json:"max_per_hour"`
	MaxPerDay  int       `json:"max_per_day"`
	Allowed    bool      `json:"allowed"`
	NextHourly time.Time `json:"next_hourly_reset"`
	NextDaily  time.Time `json:"next_daily_reset"`
	LastHourly time.Time `json:"last_hourly_reset"`
	LastDaily  time.Time `json:"last_daily_reset"`
}

// Status returns the current counters and the next reset boundaries.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().In(l.loc)
	nextHour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, l.loc).Add(time.Hour)
	nextDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, l.loc)
	return Status{
		HourCount:  l.hourCount,
		DayCount:   l.dayCount,
		MaxPerHour: l.config.MaxPerHour,
		MaxPerDay:  l.config.MaxPerDay,
		Allowed:    l.hourCount < l.config.MaxPerHour && l.dayCount < l.config.MaxPerDay,
		NextHourly: nextHour,
		NextDaily:  nextDay,
		LastHourly: l.hourReset,
		LastDaily:  l.dayReset,
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
