package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("circuit breaker is half-open and probing")
)

// State is the position of a breaker in its Closed/Open/HalfOpen cycle.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker. Zero fields take the defaults noted below.
type Settings struct {
	// Probes is how many calls a half-open breaker lets through, and how many
	// of them must succeed in a row to close it again. Default 1.
	Probes uint32
	// Window is how long a closed breaker accumulates counts before they are
	// cleared. Default 60s.
	Window time.Duration
	// Cooldown is how long a breaker stays open. Default 30s.
	Cooldown time.Duration
	// Trip decides, after each failure of a closed breaker, whether to open
	// it. Default: five failures in a row.
	Trip func(Counts) bool
	// Healthy decides whether a call's error counts as a success. Default:
	// only nil.
	Healthy func(error) bool
	// OnStateChange is called with the breaker key on every transition.
	OnStateChange func(key string, from, to State)
	// Clock returns the current time. Default time.Now.
	Clock func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.Probes == 0 {
		s.Probes = 1
	}
	if s.Window <= 0 {
		s.Window = 60 * time.Second
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Trip == nil {
		s.Trip = func(c Counts) bool { return c.FailureStreak >= 5 }
	}
	if s.Healthy == nil {
		s.Healthy = func(err error) bool { return err == nil }
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return s
}

// Counts are the call statistics of the current window.
type Counts struct {
	Attempts      uint32
	Successes     uint32
	Failures      uint32
	SuccessStreak uint32
	FailureStreak uint32
}

// Breaker guards calls to one remote endpoint.
type Breaker struct {
	key string
	cfg Settings

	mu       sync.Mutex
	state    State
	counts   Counts
	epoch    uint64    // bumped whenever counts are cleared
	deadline time.Time // closed: end of window, open: end of cooldown
}

// New creates a closed breaker.
func New(key string, settings Settings) *Breaker {
	b := &Breaker{key: key, cfg: settings.withDefaults()}
	b.deadline = b.cfg.Clock().Add(b.cfg.Window)
	return b
}

// Key returns the name the breaker was created with.
func (b *Breaker) Key() string { return b.key }

// State returns the current state, moving an open breaker whose cooldown
// has elapsed to half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh(b.cfg.Clock())
	return b.state
}

// Counts returns the statistics of the current window.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh(b.cfg.Clock())
	return b.counts
}

// Call runs fn if b admits it and records the outcome. A panicking fn
// counts as a failure and the panic continues.
func Call[T any](b *Breaker, fn func() (T, error)) (result T, err error) {
	epoch, err := b.admit()
	if err != nil {
		return result, err
	}

	healthy := false
	defer func() { b.record(epoch, healthy) }()

	result, err = fn()
	healthy = b.cfg.Healthy(err)
	return result, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh(b.cfg.Clock())

	switch {
	case b.state == StateOpen:
		return 0, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Attempts >= b.cfg.Probes:
		return 0, ErrTooManyRequests
	}
	b.counts.Attempts++
	return b.epoch, nil
}

func (b *Breaker) record(epoch uint64, healthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.cfg.Clock()
	b.refresh(now)

	// The call started in a window that has since been cleared
	if epoch != b.epoch {
		return
	}

	if healthy {
		b.counts.Successes++
		b.counts.SuccessStreak++
		b.counts.FailureStreak = 0
		if b.state == StateHalfOpen && b.counts.SuccessStreak >= b.cfg.Probes {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.Failures++
	b.counts.FailureStreak++
	b.counts.SuccessStreak = 0
	if b.state == StateHalfOpen || b.cfg.Trip(b.counts) {
		b.transition(StateOpen, now)
	}
}

// refresh applies time-based transitions. Callers hold mu.
func (b *Breaker) refresh(now time.Time) {
	switch b.state {
	case StateClosed:
		if now.After(b.deadline) {
			b.clear(now.Add(b.cfg.Window))
		}
	case StateOpen:
		if now.After(b.deadline) {
			b.transition(StateHalfOpen, now)
		}
	}
}

func (b *Breaker) clear(deadline time.Time) {
	b.counts = Counts{}
	b.epoch++
	b.deadline = deadline
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	switch to {
	case StateClosed:
		b.clear(now.Add(b.cfg.Window))
	case StateOpen:
		b.clear(now.Add(b.cfg.Cooldown))
	case StateHalfOpen:
		b.clear(time.Time{})
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.key, from, to)
	}
}

// Group hands out one breaker per key, typically a remote host, so one
// failing site does not block fetches from the others.
type Group struct {
	settings Settings

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewGroup creates a group whose breakers share settings.
func NewGroup(settings Settings) *Group {
	return &Group{settings: settings, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it on first use.
func (g *Group) Get(key string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[key]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.breakers[key]; !ok {
		b = New(key, g.settings)
		g.breakers[key] = b
	}
	return b
}

// States returns the current state of every breaker in the group.
func (g *Group) States() map[string]State {
	g.mu.RLock()
	breakers := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		breakers = append(breakers, b)
	}
	g.mu.RUnlock()

	out := make(map[string]State, len(breakers))
	for _, b := range breakers {
		out[b.Key()] = b.State()
	}
	return out
}
