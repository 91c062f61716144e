// Package retry computes randomized backoff delays for failed
// authorization requests.
package retry

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultRandomization is the fraction by which a table entry is
// randomized in both directions.
const DefaultRandomization = 0.5

// DefaultBackoffTable holds the base delay for each retry attempt. Attempts
// beyond the end of the table reuse the last entry.
var DefaultBackoffTable = []time.Duration{
	0,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// Policy maps an attempt count to a retry delay.
//
// Policy is safe for concurrent use.
type Policy struct {
	table         []time.Duration
	randomization float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Policy.
type Option func(*Policy)

// WithRand sets the random source. Tests pass a seeded source to get
// deterministic delays.
func WithRand(rnd *rand.Rand) Option {
	return func(p *Policy) {
		p.rnd = rnd
	}
}

// WithTable replaces the backoff table. An empty table is ignored.
func WithTable(table []time.Duration) Option {
	return func(p *Policy) {
		if len(table) > 0 {
			p.table = append([]time.Duration(nil), table...)
		}
	}
}

// WithRandomization sets the randomization fraction, clamped to [0, 1].
func WithRandomization(fraction float64) Option {
	return func(p *Policy) {
		switch {
		case fraction < 0:
			fraction = 0
		case fraction > 1:
			fraction = 1
		}
		p.randomization = fraction
	}
}

// New creates a Policy using the default table and randomization.
func New(opts ...Option) *Policy {
	p := &Policy{
		table:         DefaultBackoffTable,
		randomization: DefaultRandomization,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p
}

// Base returns the unrandomized delay for attempt.
func (p *Policy) Base(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(p.table) {
		attempt = len(p.table) - 1
	}
	return p.table[attempt]
}

// Backoff returns the delay before retry number attempt, drawn uniformly
// from [base*(1-r), base*(1+r)].
func (p *Policy) Backoff(attempt int) time.Duration {
	base := p.Base(attempt)
	if base <= 0 || p.randomization == 0 {
		return base
	}

	p.mu.Lock()
	f := p.rnd.Float64()
	p.mu.Unlock()

	low := float64(base) * (1 - p.randomization)
	span := float64(base) * 2 * p.randomization
	return time.Duration(low + f*span)
}

// TimeToRetry returns the point in time, relative to now, at which retry
// number attempt should be made.
func (p *Policy) TimeToRetry(now time.Time, attempt int) time.Time {
	return now.Add(p.Backoff(attempt))
}
