package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the state of a source's circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets attempts through.
	CircuitClosed CircuitState = iota
	// CircuitOpen skips the source until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets a single probe attempt through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Allow while a source is being skipped.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls when a repeatedly failing source is skipped.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failed attempts that
	// opens the circuit. Zero disables the breaker.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig skips a source after three consecutive failed
// runs for half an hour.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Minute,
	}
}

// CircuitBreaker tracks consecutive failures for one source. Scheduled runs
// share breakers so a source that keeps blocking us is left alone for a while.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time

	nowFunc func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{name: name, cfg: cfg, nowFunc: time.Now}
}

// Allow returns ErrCircuitOpen while the source should be skipped.
func (cb *CircuitBreaker) Allow() error {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.nowFunc().Sub(cb.lastFailure) >= cb.cfg.ResetTimeout {
		cb.transition(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

// Record registers the outcome of an attempt that Allow let through.
func (cb *CircuitBreaker) Record(success bool) {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.failures = 0
		if cb.state != CircuitClosed {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.failures++
	cb.lastFailure = cb.nowFunc()
	switch {
	case cb.state == CircuitHalfOpen:
		cb.transition(CircuitOpen)
	case cb.state == CircuitClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.transition(CircuitOpen)
	}
}

// State returns the current state, reporting half-open once the reset
// timeout has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.lastFailure) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	zap.L().Info("source circuit state change",
		zap.String("source", cb.name),
		zap.Stringer("from", cb.state),
		zap.Stringer("to", to),
		zap.Int("consecutive_failures", cb.failures),
	)
	cb.state = to
}

// SourceBreakers holds one breaker per source name.
type SourceBreakers struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewSourceBreakers creates an empty breaker set.
func NewSourceBreakers(cfg CircuitBreakerConfig) *SourceBreakers {
	return &SourceBreakers{breakers: make(map[string]*CircuitBreaker), cfg: cfg}
}

// Get returns the breaker for source, creating it on first use. A nil
// receiver returns a nil breaker, which always allows.
func (sb *SourceBreakers) Get(source string) *CircuitBreaker {
	if sb == nil {
		return nil
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	cb, ok := sb.breakers[source]
	if !ok {
		cb = NewCircuitBreaker(source, sb.cfg)
		sb.breakers[source] = cb
	}
	return cb
}

// States returns the current state of every known breaker.
func (sb *SourceBreakers) States() map[string]CircuitState {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	out := make(map[string]CircuitState, len(sb.breakers))
	for name, cb := range sb.breakers {
		out[name] = cb.State()
	}
	return out
}
