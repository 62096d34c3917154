package providers

import (
	"sync"
	"time"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker stops routing to a provider after consecutive failures and lets a
// single trial call through at a time once the cool-down has passed
type Breaker struct {
	mutex       sync.Mutex
	failures    int
	successes   int
	trialing    bool
	lastFailure time.Time
	state       BreakerState
	maxFailures int
	coolDown    time.Duration
	resetAfter  int
	now         func() time.Time
}

func NewBreaker(maxFailures int, coolDown time.Duration, resetAfter int) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		coolDown:    coolDown,
		resetAfter:  resetAfter,
		state:       StateClosed,
		now:         time.Now,
	}
}

func (b *Breaker) CanExecute() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.coolDown {
			b.state = StateHalfOpen
			b.successes = 0
			b.trialing = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.trialing {
			return false
		}
		b.trialing = true
		return true
	default:
		return true
	}
}

// Release ends a trial call whose result says nothing about the provider, such as a cancelled call
func (b *Breaker) Release() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.trialing = false
}

func (b *Breaker) OnSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.trialing = false
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.resetAfter {
			b.reset()
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) OnFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.trialing = false
	b.failures++
	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		if b.failures >= b.maxFailures {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
	}
}

func (b *Breaker) State() BreakerState {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

func (b *Breaker) reset() {
	b.failures = 0
	b.successes = 0
	b.trialing = false
	b.state = StateClosed
}
