// Package breaker implements a circuit breaker guarding calls into
// optional external ports (ClaimStore, EventNotifier) so a misbehaving
// adapter can never back-pressure the core pipeline.
package breaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// State is a breaker's lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
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

var (
	ErrOpen           = errors.New("breaker: circuit open")
	ErrHalfOpenLimit  = errors.New("breaker: half-open probe limit reached")
)

// Config configures a Breaker.
type Config struct {
	Name        string
	MaxFailures int
	Cooldown    time.Duration
	ProbeLimit  int
	OnTrip      func(name string, from, to State)
}

// Breaker is a single named circuit breaker.
type Breaker struct {
	name        string
	maxFailures int32
	cooldown    time.Duration
	probeLimit  int32

	state       int32
	failures    int32
	probeOK     int32
	probesInFlight int32
	trippedAt   time.Time

	mu     sync.Mutex
	onTrip func(name string, from, to State)
}

// New creates a Breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeLimit <= 0 {
		cfg.ProbeLimit = 1
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: int32(cfg.MaxFailures),
		cooldown:    cfg.Cooldown,
		probeLimit:  int32(cfg.ProbeLimit),
		onTrip:      cfg.OnTrip,
	}
}

// Call runs fn if the breaker allows it, recording the outcome.
func (b *Breaker) Call(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() error {
	switch State(atomic.LoadInt32(&b.state)) {
	case StateClosed:
		return nil
	case StateOpen:
		b.mu.Lock()
		defer b.mu.Unlock()
		if time.Since(b.trippedAt) < b.cooldown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		return nil
	case StateHalfOpen:
		if atomic.AddInt32(&b.probesInFlight, 1) > b.probeLimit {
			atomic.AddInt32(&b.probesInFlight, -1)
			return ErrHalfOpenLimit
		}
		return nil
	default:
		return errors.New("breaker: unknown state")
	}
}

func (b *Breaker) recordFailure() {
	switch State(atomic.LoadInt32(&b.state)) {
	case StateClosed:
		if atomic.AddInt32(&b.failures, 1) >= b.maxFailures {
			b.mu.Lock()
			b.trippedAt = time.Now()
			b.transition(StateOpen)
			b.mu.Unlock()
		}
	case StateHalfOpen:
		b.mu.Lock()
		b.trippedAt = time.Now()
		atomic.StoreInt32(&b.probesInFlight, 0)
		b.transition(StateOpen)
		b.mu.Unlock()
	}
}

func (b *Breaker) recordSuccess() {
	switch State(atomic.LoadInt32(&b.state)) {
	case StateClosed:
		atomic.StoreInt32(&b.failures, 0)
	case StateHalfOpen:
		if atomic.AddInt32(&b.probeOK, 1) >= b.probeLimit {
			b.mu.Lock()
			atomic.StoreInt32(&b.probeOK, 0)
			atomic.StoreInt32(&b.probesInFlight, 0)
			b.transition(StateClosed)
			b.mu.Unlock()
		}
	}
}

func (b *Breaker) transition(to State) {
	from := State(atomic.LoadInt32(&b.state))
	if from == to {
		return
	}
	atomic.StoreInt32(&b.state, int32(to))
	atomic.StoreInt32(&b.failures, 0)
	atomic.StoreInt32(&b.probeOK, 0)
	if b.onTrip != nil {
		b.onTrip(b.name, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// Group manages a set of named breakers sharing a default config.
type Group struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	template Config
}

// NewGroup creates a Group; each distinct name gets its own Breaker built
// from template on first use.
func NewGroup(template Config) *Group {
	return &Group{
		breakers: make(map[string]*Breaker),
		template: template,
	}
}

func (g *Group) Get(name string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.breakers[name]; ok {
		return b
	}
	cfg := g.template
	cfg.Name = name
	b = New(cfg)
	g.breakers[name] = b
	return b
}

// Call runs fn through the named breaker.
func (g *Group) Call(name string, fn func() error) error {
	return g.Get(name).Call(fn)
}
