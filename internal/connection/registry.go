package connection

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Conn is the registry's view of a live transport session.
type Conn interface {
	// TrySend queues data for delivery without blocking. It returns false
	// when the message was dropped.
	TrySend(data []byte) bool

	// Close terminates the underlying transport.
	Close() error
}

// Logger defines the logging interface used by the Registry.
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

// session is the registry entry for one identity.
type session struct {
	conn      Conn
	lastSeen  time.Time
	lastLevel float64
	hasLevel  bool
}

// Registry maps device identities to their live sessions.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	now      func() time.Time
	logger   Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		now:      time.Now,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the time source used for activity timestamps.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Register installs conn as the live session for identity and stamps its
// activity time. If a different session was live for identity it is
// returned so the caller can close it; Register itself never closes it.
func (r *Registry) Register(identity string, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prev Conn
	if existing, ok := r.sessions[identity]; ok && existing.conn != conn {
		prev = existing.conn
	}

	r.sessions[identity] = &session{
		conn:     conn,
		lastSeen: r.now(),
	}

	if prev != nil {
		r.logger.Info("device session replaced", "device_id", identity)
	}
	return prev
}

// Unregister removes the live session for identity. It is a no-op when
// identity is not registered.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, identity)
}

// UnregisterConn removes identity only if conn is still its live session.
// It reports whether an entry was removed. Close paths use this so an
// orphaned session shutting down late cannot evict its replacement.
func (r *Registry) UnregisterConn(identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[identity]
	if !ok || s.conn != conn {
		return false
	}
	delete(r.sessions, identity)
	return true
}

// Touch refreshes the activity timestamp for identity. It is a no-op when
// identity is not registered.
func (r *Registry) Touch(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[identity]; ok {
		s.lastSeen = r.now()
	}
}

// RecordLevel refreshes the activity timestamp and remembers the most
// recent reading for identity. It is a no-op when identity is not registered.
func (r *Registry) RecordLevel(identity string, dbFS float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[identity]; ok {
		s.lastSeen = r.now()
		s.lastLevel = dbFS
		s.hasLevel = true
	}
}

// Send JSON-encodes msg and queues it on identity's live session. Delivery
// is best-effort: the message is dropped if identity is offline, the
// session's buffer is full, or msg cannot be encoded.
func (r *Registry) Send(identity string, msg any) {
	r.mu.RLock()
	s, ok := r.sessions[identity]
	var conn Conn
	if ok {
		conn = s.conn
	}
	r.mu.RUnlock()

	if conn == nil {
		r.logger.Debug("dropping message for offline device", "device_id", identity)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Warn("failed to encode outbound message", "device_id", identity, "error", err)
		return
	}

	if !conn.TrySend(data) {
		r.logger.Debug("dropping message, session not writable", "device_id", identity)
	}
}

// IsOnline reports whether identity has a live session.
func (r *Registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[identity]
	return ok
}

// ListOnline returns the identities with a live session, sorted.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// FindIdentity returns the identity whose live session is conn.
func (r *Registry) FindIdentity(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, s := range r.sessions {
		if s.conn == conn {
			return id, true
		}
	}
	return "", false
}

// LastSeen returns the last activity time for identity.
func (r *Registry) LastSeen(identity string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[identity]
	if !ok {
		return time.Time{}, false
	}
	return s.lastSeen, true
}

// LastLevel returns the most recent dBFS reading from identity's current
// session. It reports false if the device is offline or has sent nothing.
func (r *Registry) LastLevel(identity string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[identity]
	if !ok || !s.hasLevel {
		return 0, false
	}
	return s.lastLevel, true
}
