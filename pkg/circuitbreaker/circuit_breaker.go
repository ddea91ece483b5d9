package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is matched by errors.Is for every rejection from an open breaker
var ErrOpen = errors.New("circuit breaker is open")

// OpenError is returned while the breaker rejects calls
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open, retry in %s", e.Name, e.RetryAfter.Round(time.Second))
}

func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// Config controls when the breaker trips and recovers
type Config struct {
	Name string
	// MaxFailures consecutive failures open the breaker
	MaxFailures int
	// OpenTimeout is how long the breaker stays open before a probe
	OpenTimeout time.Duration
	// IsFailure decides whether an error counts towards tripping.
	// Nil counts every non-nil error.
	IsFailure func(error) bool
}

// Counts is a snapshot of breaker activity
type Counts struct {
	State               State     `json:"-"`
	StateName           string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Requests            int64     `json:"requests"`
	Rejected            int64     `json:"rejected"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}

// CircuitBreaker guards calls to one remote dependency. After MaxFailures
// consecutive failures it rejects calls for OpenTimeout, then lets a
// single probe through: success closes it, failure reopens it.
type CircuitBreaker struct {
	config Config
	logger logrus.FieldLogger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	requests int64
	rejected int64
}

func New(config Config, logger logrus.FieldLogger) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CircuitBreaker{config: config, logger: logger, now: time.Now}
}

// Execute runs fn unless the breaker is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.openedAt)
		if elapsed < cb.config.OpenTimeout {
			cb.rejected++
			return &OpenError{Name: cb.config.Name, RetryAfter: cb.config.OpenTimeout - elapsed}
		}
		cb.state = StateHalfOpen
		cb.probing = true
		cb.logger.WithField("circuit_breaker", cb.config.Name).Info("Circuit breaker half-open, sending probe")
		return nil
	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			return &OpenError{Name: cb.config.Name}
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil
	if failed && cb.config.IsFailure != nil {
		failed = cb.config.IsFailure(err)
	}

	if cb.state == StateHalfOpen {
		cb.probing = false
		if failed {
			cb.open()
			return
		}
		cb.state = StateClosed
		cb.failures = 0
		cb.logger.WithField("circuit_breaker", cb.config.Name).Info("Circuit breaker closed after successful probe")
		return
	}

	if !failed {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.failures >= cb.config.MaxFailures {
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.config.Name,
		"failures":        cb.failures,
		"open_for":        cb.config.OpenTimeout.String(),
	}).Warn("Circuit breaker opened")
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Counts{
		State:               cb.state,
		StateName:           cb.state.String(),
		ConsecutiveFailures: cb.failures,
		Requests:            cb.requests,
		Rejected:            cb.rejected,
		OpenedAt:            cb.openedAt,
	}
}
