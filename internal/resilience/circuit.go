package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses to reach the upstream.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

// gauge maps a state onto the breaker_state metric value.
func (s State) gauge() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	}
	return -1
}

// Breaker trips when the failure ratio over the last window outcomes reaches
// the threshold. After the cool-off a single probe is let through; its
// outcome closes or re-opens the circuit.
type Breaker struct {
	mu       sync.Mutex
	state    State
	outcomes []bool
	next     int
	filled   int
	failed   int
	ratio    float64
	openFor  time.Duration
	openedAt time.Time
	probing  bool
	target   string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewBreaker returns a closed breaker judging the last window outcomes.
func NewBreaker(window int, failureRatio float64, openFor time.Duration) *Breaker {
	if window <= 0 {
		window = 1
	}
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	failureRatio = min(failureRatio, 1)
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		outcomes: make([]bool, window),
		ratio:    failureRatio,
		openFor:  openFor,
		target:   "default",
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
}

// WithTarget names the upstream in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := strings.TrimSpace(target); t != "" {
		b.target = t
	}
	b.publishLocked()
	return b
}

// WithLogger sets the fallback logger for transitions; a logger on the
// request context wins.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State reports the current position. A nil breaker is always closed.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may go upstream. A nil breaker allows
// everything.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

// Report records the outcome of a call that Allow let through.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	b.recordLocked(success)
	if b.filled < len(b.outcomes) {
		return
	}
	if float64(b.failed)/float64(b.filled) >= b.ratio {
		b.moveLocked(ctx, Open)
	}
}

// Release gives back a call that Allow let through without recording an
// outcome, for calls the caller abandoned. A half-open breaker may probe again.
func (b *Breaker) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.probing = false
	}
}

// recordLocked pushes an outcome into the ring, evicting the oldest.
func (b *Breaker) recordLocked(success bool) {
	if b.filled == len(b.outcomes) {
		if !b.outcomes[b.next] {
			b.failed--
		}
	} else {
		b.filled++
	}
	b.outcomes[b.next] = success
	if !success {
		b.failed++
	}
	b.next = (b.next + 1) % len(b.outcomes)
}

func (b *Breaker) resetLocked() {
	b.next, b.filled, b.failed = 0, 0, 0
	b.probing = false
}

func (b *Breaker) moveLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.resetLocked()
	b.publishLocked()

	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.target, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}

	logger := b.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Warn()
	if to == Closed {
		evt = logger.Info()
	}
	evt = evt.Str("target", b.target).Str("from_state", from.String()).Str("to_state", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishLocked() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.target).Set(b.state.gauge())
	}
}
