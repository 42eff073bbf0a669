package dispatch

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/wudi/urlforward/internal/config"
	"github.com/wudi/urlforward/internal/logging"
)

// breakers is a thread-safe set of circuit breakers keyed by destination
// (see Target.BreakerKey). Each breaker is named after its forward, which
// labels its logs and gauge. Only exchanges that fail without a remote
// status count as failures.
type breakers struct {
	cfg      config.CircuitBreakerConfig
	onChange func(name string, to gobreaker.State)

	mu    sync.Mutex
	items map[string]*gobreaker.CircuitBreaker[int]
}

func newBreakers(cfg config.CircuitBreakerConfig, onChange func(string, gobreaker.State)) *breakers {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &breakers{
		cfg:      cfg,
		onChange: onChange,
		items:    make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

// get returns the breaker for key, creating it named name on first use.
func (b *breakers) get(key, name string) *gobreaker.CircuitBreaker[int] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.items[key]; ok {
		return cb
	}
	threshold := uint32(b.cfg.FailureThreshold)
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(b.cfg.MaxRequests),
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("circuit breaker state changed",
				zap.String("forward", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if b.onChange != nil {
				b.onChange(name, to)
			}
		},
	})
	b.items[key] = cb
	return cb
}

// state returns the state of key's breaker, closed when none exists yet.
func (b *breakers) state(key string) gobreaker.State {
	b.mu.Lock()
	cb, ok := b.items[key]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// retain drops breakers whose key keep rejects. A forward left without any
// breaker is reported closed.
func (b *breakers) retain(keep func(key string) bool) {
	b.mu.Lock()
	dropped := make(map[string]bool)
	for key, cb := range b.items {
		if !keep(key) {
			delete(b.items, key)
			dropped[cb.Name()] = true
		}
	}
	for _, cb := range b.items {
		delete(dropped, cb.Name())
	}
	b.mu.Unlock()

	if b.onChange == nil {
		return
	}
	for name := range dropped {
		b.onChange(name, gobreaker.StateClosed)
	}
}

// states returns the current state of every breaker by forward name.
func (b *breakers) states() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.items))
	for _, cb := range b.items {
		out[cb.Name()] = cb.State().String()
	}
	return out
}
