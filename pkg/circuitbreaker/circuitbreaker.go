package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed   State = iota // 正常放行
	StateOpen                  // 熔断，直接拒绝
	StateHalfOpen              // 试探恢复
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold half-open successes close it again.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMaxRequests bounds concurrent probes.
	HalfOpenMaxRequests int
	// OnStateChange is called with the lock released.
	OnStateChange func(from, to State)
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
}

func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open. A non-nil error from fn counts
// as a failure; the error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err == nil)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	var from, to State
	changed := false
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Timeout {
		from, to, changed = cb.state, StateHalfOpen, true
		cb.setState(StateHalfOpen)
	}

	var err error
	switch cb.state {
	case StateOpen:
		err = ErrOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.HalfOpenMaxRequests {
			err = ErrOpen
		} else {
			cb.inFlight++
		}
	}
	cb.mu.Unlock()

	if changed {
		cb.notify(from, to)
	}
	return err
}

func (cb *CircuitBreaker) after(ok bool) {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateHalfOpen:
		cb.inFlight--
		if !ok {
			cb.setState(StateOpen)
			break
		}
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.setState(StateClosed)
		}
	case StateClosed:
		if ok {
			cb.failures = 0
			break
		}
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
		}
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0
	if s == StateOpen {
		cb.openedAt = cb.now()
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
}
