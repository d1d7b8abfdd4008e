// Package marquee drives a scrolling title as an explicit state machine.
//
// The machine owns at most one pending timer, identified by a token. Every
// transition issues a fresh token, so a timer that fires after the content
// or container changed is recognised as stale and ignored. The machine does
// not start timers itself: it returns a Timer request and the caller (a
// Bubble Tea program, for instance) calls Fire when it elapses.
//
// Units are whatever the caller measures in: pixels in a browser, cells in
// a terminal.
package marquee

import "time"

// Phase is the machine state.
type Phase int

const (
	Idle Phase = iota
	ScheduledStart
	Scrolling
	PausedBetweenCycles
)

func (p Phase) String() string {
	switch p {
	case ScheduledStart:
		return "scheduled"
	case Scrolling:
		return "scrolling"
	case PausedBetweenCycles:
		return "paused"
	default:
		return "idle"
	}
}

// Config tunes the animation.
type Config struct {
	Tolerance  float64       // overflow at or below this does not scroll
	Speed      float64       // units per second
	StartDelay time.Duration // before the first pass
	Pause      time.Duration // between passes
}

// DefaultConfig is tuned for pixel units.
func DefaultConfig() Config {
	return Config{
		Tolerance:  8,
		Speed:      30,
		StartDelay: 2 * time.Second,
		Pause:      2 * time.Second,
	}
}

// Timer asks the caller to call Fire(Token) after After.
type Timer struct {
	Token uint64
	After time.Duration
}

// Machine is not safe for concurrent use.
type Machine struct {
	cfg      Config
	phase    Phase
	token    uint64
	distance float64
	started  time.Time
}

// New returns an idle machine. Zero config fields take their defaults.
func New(cfg Config) *Machine {
	def := DefaultConfig()
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if cfg.Tolerance < 0 {
		cfg.Tolerance = 0
	}
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = def.StartDelay
	}
	if cfg.Pause <= 0 {
		cfg.Pause = def.Pause
	}
	return &Machine{cfg: cfg}
}

// Phase reports the current state.
func (m *Machine) Phase() Phase { return m.phase }

// Distance is how far one pass scrolls.
func (m *Machine) Distance() float64 { return m.distance }

// PassDuration is distance / speed.
func (m *Machine) PassDuration() time.Duration {
	if m.distance <= 0 {
		return 0
	}
	return time.Duration(m.distance / m.cfg.Speed * float64(time.Second))
}

// Reset recomputes the animation for new content or container sizes and
// cancels any pending timer. It returns a timer request when scrolling is
// needed.
func (m *Machine) Reset(content, container float64) (Timer, bool) {
	m.token++
	overflow := content - container
	if overflow <= m.cfg.Tolerance {
		m.phase = Idle
		m.distance = 0
		return Timer{}, false
	}
	m.phase = ScheduledStart
	m.distance = overflow
	return Timer{Token: m.token, After: m.cfg.StartDelay}, true
}

// Stop cancels everything; used on teardown.
func (m *Machine) Stop() {
	m.token++
	m.phase = Idle
	m.distance = 0
}

// Fire advances the machine when token is the current one. Stale tokens are
// ignored and return false.
func (m *Machine) Fire(token uint64, now time.Time) (Timer, bool) {
	if token != m.token {
		return Timer{}, false
	}
	switch m.phase {
	case ScheduledStart, PausedBetweenCycles:
		m.phase = Scrolling
		m.started = now
		m.token++
		return Timer{Token: m.token, After: m.PassDuration()}, true
	case Scrolling:
		m.phase = PausedBetweenCycles
		m.token++
		return Timer{Token: m.token, After: m.cfg.Pause}, true
	default:
		return Timer{}, false
	}
}

// Offset is the scroll position at now, in [0, Distance]. Outside a pass
// the content rests at its start.
func (m *Machine) Offset(now time.Time) float64 {
	if m.phase != Scrolling {
		return 0
	}
	pass := m.PassDuration()
	if pass <= 0 {
		return 0
	}
	elapsed := now.Sub(m.started)
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= pass {
		return m.distance
	}
	return m.distance * float64(elapsed) / float64(pass)
}
