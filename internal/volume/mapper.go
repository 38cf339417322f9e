package volume

import (
	"context"
	"math"
	"sync"
	"time"
)

// DefaultMinInterval is the minimum time between set-volume calls for a zone.
const DefaultMinInterval = 2 * time.Second

// NoDecision is the Decision.Volume reported for a disabled zone.
const NoDecision = -1

// Actuator applies a volume level to a remote audio zone.
type Actuator interface {
	SetVolume(ctx context.Context, zoneID string, volume int) error
}

// Logger defines the logging interface used by the Mapper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Params is the per-zone mapping configuration.
type Params struct {
	Enabled          bool
	MinVolume        int
	MaxVolume        int
	QuietThresholdDB float64
	LoudThresholdDB  float64
	SmoothingFactor  float64
	SustainCount     int
}

// normalized returns p with out-of-range values coerced into a usable shape.
func (p Params) normalized() Params {
	if p.MinVolume > p.MaxVolume {
		p.MinVolume, p.MaxVolume = p.MaxVolume, p.MinVolume
	}
	if !(p.SmoothingFactor > 0 && p.SmoothingFactor <= 1) {
		p.SmoothingFactor = 1
	}
	if p.SustainCount < 1 {
		p.SustainCount = 1
	}
	return p
}

// Decision is the outcome of processing one reading.
type Decision struct {
	// Volume is the zone's last applied volume, or NoDecision.
	Volume int

	// Actuated is true when a set-volume call succeeded during this reading.
	Actuated bool

	// Err holds the actuator error when a call was made and failed.
	Err error

	// Smoothed is the zone's dBFS estimate after this reading.
	Smoothed float64

	// Target is the volume the smoothed estimate maps to.
	Target int
}

// State is a snapshot of a zone's control state.
type State struct {
	Smoothed      float64
	CurrentVolume int
	Pending       int
	PendingCount  int
	LastActuation time.Time
	LastAttempt   time.Time
}

type zoneState struct {
	mu sync.Mutex

	// initialized is false until the first reading seeds the state.
	initialized bool

	smoothed      float64
	current       int
	pending       int
	pendingCount  int
	lastActuation time.Time
	lastAttempt   time.Time
}

// Mapper holds the control state of every zone it has seen.
//
// All public methods are thread-safe.
type Mapper struct {
	actuator Actuator
	interval time.Duration
	now      func() time.Time
	logger   Logger

	mu    sync.Mutex
	zones map[string]*zoneState
}

// NewMapper creates a Mapper that actuates through a. An interval of zero or
// less disables rate limiting.
func NewMapper(a Actuator, interval time.Duration) *Mapper {
	return &Mapper{
		actuator: a,
		interval: interval,
		now:      time.Now,
		logger:   noopLogger{},
		zones:    make(map[string]*zoneState),
	}
}

// SetLogger sets the logger for the mapper.
func (m *Mapper) SetLogger(logger Logger) {
	m.logger = logger
}

// SetClock replaces the time source used for rate limiting.
func (m *Mapper) SetClock(now func() time.Time) {
	m.now = now
}

// Process feeds one reading into zoneID's control loop and may call the
// Actuator. The zone's lock is held for the whole call, including the
// actuation request.
func (m *Mapper) Process(ctx context.Context, zoneID string, dbFS float64, p Params) Decision {
	if !p.Enabled {
		return Decision{Volume: NoDecision, Target: NoDecision}
	}
	p = p.normalized()

	zs := m.zone(zoneID)

	zs.mu.Lock()
	defer zs.mu.Unlock()

	if !zs.initialized {
		zs.smoothed = dbFS
		zs.current = int(math.Round(float64(p.MinVolume+p.MaxVolume) / 2))
		zs.initialized = true
	}

	zs.smoothed = p.SmoothingFactor*dbFS + (1-p.SmoothingFactor)*zs.smoothed
	target := MapDBToVolume(zs.smoothed, p.QuietThresholdDB, p.LoudThresholdDB, p.MinVolume, p.MaxVolume)

	switch {
	case target == zs.current:
		zs.pending, zs.pendingCount = 0, 0
	case zs.pendingCount > 0 && target == zs.pending:
		zs.pendingCount++
	default:
		zs.pending, zs.pendingCount = target, 1
	}

	d := Decision{Smoothed: zs.smoothed, Target: target}

	if zs.pendingCount >= p.SustainCount && m.intervalElapsed(zs) {
		d.Err = m.actuate(ctx, zoneID, zs)
		d.Actuated = d.Err == nil
	}

	d.Volume = zs.current
	return d
}

// intervalElapsed reports whether the zone may be actuated now.
func (m *Mapper) intervalElapsed(zs *zoneState) bool {
	if zs.lastAttempt.IsZero() || m.interval <= 0 {
		return true
	}
	return m.now().Sub(zs.lastAttempt) >= m.interval
}

// actuate issues the set-volume call for the pending target. zs.mu is held.
// Failed calls count against the interval but keep the pending target.
func (m *Mapper) actuate(ctx context.Context, zoneID string, zs *zoneState) error {
	start := m.now()
	zs.lastAttempt = start

	timer := newActuationTimer()
	err := m.actuator.SetVolume(ctx, zoneID, zs.pending)
	timer.ObserveDuration()

	if err != nil {
		actuationsTotal.WithLabelValues("failure").Inc()
		m.logger.Warn("set volume failed, will retry on next reading",
			"zone_id", zoneID,
			"volume", zs.pending,
			"error", err,
		)
		return err
	}

	actuationsTotal.WithLabelValues("success").Inc()
	m.logger.Info("zone volume changed",
		"zone_id", zoneID,
		"from", zs.current,
		"to", zs.pending,
		"smoothed_db", math.Round(zs.smoothed*10)/10,
	)

	zs.current = zs.pending
	zs.lastActuation = start
	zs.pending, zs.pendingCount = 0, 0
	return nil
}

// zone returns the state for zoneID, creating an uninitialized entry if
// needed. The first Process call to take the entry's lock seeds it.
func (m *Mapper) zone(zoneID string) *zoneState {
	m.mu.Lock()
	defer m.mu.Unlock()

	zs, ok := m.zones[zoneID]
	if !ok {
		zs = &zoneState{}
		m.zones[zoneID] = zs
	}
	return zs
}

// lookup returns the state for zoneID without creating it.
func (m *Mapper) lookup(zoneID string) (*zoneState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	zs, ok := m.zones[zoneID]
	return zs, ok
}

// State returns a snapshot of zoneID's control state.
func (m *Mapper) State(zoneID string) (State, bool) {
	zs, ok := m.lookup(zoneID)
	if !ok {
		return State{}, false
	}

	zs.mu.Lock()
	defer zs.mu.Unlock()
	if !zs.initialized {
		return State{}, false
	}
	return State{
		Smoothed:      zs.smoothed,
		CurrentVolume: zs.current,
		Pending:       zs.pending,
		PendingCount:  zs.pendingCount,
		LastActuation: zs.lastActuation,
		LastAttempt:   zs.lastAttempt,
	}, true
}

// Forget resets zoneID's smoothing and hysteresis state so the next
// reading starts afresh. It waits for an in-flight Process call on the zone.
// The time of the last attempt is kept, so the minimum interval still holds
// across a reset.
func (m *Mapper) Forget(zoneID string) {
	zs, ok := m.lookup(zoneID)
	if !ok {
		return
	}

	zs.mu.Lock()
	defer zs.mu.Unlock()
	zs.initialized = false
	zs.smoothed = 0
	zs.current = 0
	zs.pending, zs.pendingCount = 0, 0
}

// Zones returns the number of zones the mapper has seen.
func (m *Mapper) Zones() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.zones)
}

// MapDBToVolume maps db linearly from [quiet, loud] onto [minVol, maxVol],
// rounding to the nearest integer and clamping outside the thresholds.
// When loud does not exceed quiet, readings at or above loud map to maxVol
// and everything else to minVol.
func MapDBToVolume(db, quiet, loud float64, minVol, maxVol int) int {
	if minVol > maxVol {
		minVol, maxVol = maxVol, minVol
	}

	switch {
	case math.IsNaN(db):
		return minVol
	case loud <= quiet:
		if db >= loud {
			return maxVol
		}
		return minVol
	case db <= quiet:
		return minVol
	case db >= loud:
		return maxVol
	}

	ratio := (db - quiet) / (loud - quiet)
	v := int(math.Round(float64(minVol) + ratio*float64(maxVol-minVol)))
	return max(minVol, min(maxVol, v))
}
