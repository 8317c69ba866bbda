// breaker.go - circuit breaker in front of a Store.
//
// After a run of consecutive failures the breaker opens and store calls fail
// fast until the cooldown elapses. One probe call is then let through; its
// outcome closes or re-opens the circuit.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"task-file-drop/internal/logging"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed: calls flow normally
	StateClosed CircuitState = iota
	// StateOpen: calls fail fast
	StateOpen
	// StateHalfOpen: a single probe is testing recovery
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without touching the store while the circuit is open.
var ErrCircuitOpen = errors.New("store circuit breaker is open")

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures uint32
	cooldown    time.Duration
	log         *logging.Logger
	now         func() time.Time

	state           CircuitState
	failures        uint32
	lastFailureTime time.Time
	probing         bool

	totalRequests    uint64
	failedRequests   uint64
	rejectedRequests uint64
}

// NewCircuitBreaker creates a breaker that opens after maxFailures
// consecutive failures and probes again after cooldown.
func NewCircuitBreaker(maxFailures uint32, cooldown time.Duration, log *logging.Logger) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	if log == nil {
		log = logging.Discard()
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		log:         log,
		now:         time.Now,
		state:       StateClosed,
	}
}

// Execute runs fn unless the circuit is open. Cancellation by the caller and
// rejected arguments (see IsRequestError) are not counted as store failures.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(ctx); err != nil {
		return err
	}

	err := fn()
	if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled || IsRequestError(err)) {
		cb.release()
		return err
	}

	cb.record(ctx, err)
	return err
}

func (cb *CircuitBreaker) admit(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.cooldown {
			cb.rejectedRequests++
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.log.Info(ctx, "store circuit half-open", logging.Fields{"cooldown": cb.cooldown.String()})
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			cb.rejectedRequests++
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

// release gives back a probe slot without judging the store.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

func (cb *CircuitBreaker) record(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasProbe := cb.probing
	cb.probing = false

	if err == nil {
		if cb.state != StateClosed {
			cb.log.Info(ctx, "store circuit closed", nil)
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	cb.failedRequests++
	cb.failures++
	cb.lastFailureTime = cb.now()

	if wasProbe || cb.failures >= cb.maxFailures {
		if cb.state != StateOpen {
			cb.log.Warn(ctx, "store circuit opened", logging.Fields{
				"failures":     cb.failures,
				"max_failures": cb.maxFailures,
				"cooldown":     cb.cooldown.String(),
			}, err)
		}
		cb.state = StateOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Ping fails while the circuit is open, so health checks can report it.
func (cb *CircuitBreaker) Ping(context.Context) error {
	if cb.State() == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:            cb.state.String(),
		Failures:         cb.failures,
		TotalRequests:    cb.totalRequests,
		FailedRequests:   cb.failedRequests,
		RejectedRequests: cb.rejectedRequests,
		LastFailureTime:  cb.lastFailureTime,
	}
}

// CircuitBreakerStats holds circuit breaker statistics.
type CircuitBreakerStats struct {
	State            string    `json:"state"`
	Failures         uint32    `json:"failures"`
	TotalRequests    uint64    `json:"total_requests"`
	FailedRequests   uint64    `json:"failed_requests"`
	RejectedRequests uint64    `json:"rejected_requests"`
	LastFailureTime  time.Time `json:"last_failure_time"`
}

// BreakerStore guards every store call with a CircuitBreaker.
type BreakerStore struct {
	Inner   Store
	Breaker *CircuitBreaker
}

func NewBreakerStore(inner Store, breaker *CircuitBreaker) *BreakerStore {
	return &BreakerStore{Inner: inner, Breaker: breaker}
}

func (s *BreakerStore) FindByTask(ctx context.Context, taskID string) ([]FileRecord, error) {
	var out []FileRecord
	err := s.Breaker.Execute(ctx, func() error {
		var err error
		out, err = s.Inner.FindByTask(ctx, taskID)
		return err
	})
	return out, err
}

func (s *BreakerStore) InsertAll(ctx context.Context, records []FileRecord) (int, error) {
	var n int
	err := s.Breaker.Execute(ctx, func() error {
		var err error
		n, err = s.Inner.InsertAll(ctx, records)
		return err
	})
	return n, err
}

// Ping reports the open circuit as unhealthy, otherwise asks the inner store.
func (s *BreakerStore) Ping(ctx context.Context) error {
	if err := s.Breaker.Ping(ctx); err != nil {
		return err
	}
	if p, ok := s.Inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *BreakerStore) Close() error {
	if c, ok := s.Inner.(Closer); ok {
		return c.Close()
	}
	return nil
}
