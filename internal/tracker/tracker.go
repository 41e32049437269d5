// Package tracker maintains one page's session with the session API: lazy
// creation, heartbeats while the page is open, inactivity expiry, and a
// single close however the page goes away.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xiaot623/blogpulse/internal/domain"
	"github.com/xiaot623/blogpulse/internal/page"
)

// Client is the session API the tracker reports to.
type Client interface {
	CreateSession(ctx context.Context, req domain.CreateSessionRequest) (string, error)
	UpdateActivity(ctx context.Context, sessionID string, at time.Time) error
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) error
	// SendEndBeacon dispatches a close without waiting for the outcome.
	SendEndBeacon(sessionID string, endedAt time.Time) bool
}

// Page is the runtime the tracker observes.
type Page interface {
	Environment() page.Environment
	AddEventListener(t page.EventType, fn page.Listener) func()
	Hidden() bool
}

// State is the tracker lifecycle state.
type State int

const (
	StateIdle State = iota
	// StateCreating means a create call is in flight.
	StateCreating
	StateActive
	// StateTerminating means the close is being sent; it always ends in Idle.
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreating:
		return "creating"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Session is a copy of the live session state.
type Session struct {
	ID              string
	CreatedAt       time.Time
	LastActivityAt  time.Time
	LastHeartbeatAt time.Time
}

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSessionTimeout    = 30 * time.Minute
	DefaultRequestTimeout    = 10 * time.Second
)

// Tracker owns at most one live session. Its heartbeat goroutine and page
// listeners exist only while the session is Active.
type Tracker struct {
	client Client
	page   Page
	log    *slog.Logger
	now    func() time.Time

	heartbeatInterval time.Duration
	sessionTimeout    time.Duration
	requestTimeout    time.Duration

	// newTicker is swapped in tests to drive heartbeats by hand.
	newTicker func(d time.Duration) (<-chan time.Time, func())

	mu         sync.Mutex
	state      State
	generation uint64
	session    Session
	cancelBeat context.CancelFunc
	detach     []func()
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithHeartbeatInterval sets how often activity is reported.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(t *Tracker) { t.heartbeatInterval = d }
}

// WithSessionTimeout sets the inactivity period after which the session ends.
func WithSessionTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.sessionTimeout = d }
}

// WithRequestTimeout bounds each create, activity and close call.
func WithRequestTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.requestTimeout = d }
}

// WithLogger sets the sink for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates an idle tracker. Non-positive durations fall back to defaults.
func New(client Client, pg Page, opts ...Option) *Tracker {
	t := &Tracker{
		client:            client,
		page:              pg,
		log:               slog.Default(),
		now:               time.Now,
		heartbeatInterval: DefaultHeartbeatInterval,
		sessionTimeout:    DefaultSessionTimeout,
		requestTimeout:    DefaultRequestTimeout,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			ticker := time.NewTicker(d)
			return ticker.C, ticker.Stop
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.heartbeatInterval <= 0 {
		t.heartbeatInterval = DefaultHeartbeatInterval
	}
	if t.sessionTimeout <= 0 {
		t.sessionTimeout = DefaultSessionTimeout
	}
	if t.requestTimeout <= 0 {
		t.requestTimeout = DefaultRequestTimeout
	}
	return t
}

// Initialize creates the session unless one is live or being created.
// An empty referrer falls back to the page's inbound referrer. Failures are
// logged and leave the tracker Idle.
func (t *Tracker) Initialize(ctx context.Context, referrer string) {
	t.mu.Lock()
	if t.state == StateActive || t.state == StateCreating {
		t.mu.Unlock()
		return
	}
	t.generation++
	gen := t.generation
	t.state = StateCreating
	t.mu.Unlock()

	req := t.descriptor(referrer)
	reqCtx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	id, err := t.client.CreateSession(reqCtx, req)
	cancel()

	t.mu.Lock()
	current := t.generation == gen && t.state == StateCreating
	if err != nil {
		if current {
			t.state = StateIdle
		}
		t.mu.Unlock()
		t.log.Warn("session creation failed", "error", err)
		return
	}
	if !current {
		t.mu.Unlock()
		// EndSession ran while the create call was in flight.
		t.log.Info("closing session created after end", "session_id", id)
		t.sendClose(context.WithoutCancel(ctx), id)
		return
	}

	now := t.now()
	t.session = Session{ID: id, CreatedAt: now, LastActivityAt: now}
	t.state = StateActive
	t.attachLocked()
	t.startHeartbeatLocked()
	t.mu.Unlock()

	t.log.Info("session started", "session_id", id)
}

// RecordPageView marks activity for a route change. It makes no network call.
func (t *Tracker) RecordPageView(path string) {
	if t.touch(t.now()) {
		t.log.Debug("page view", "path", path)
	}
}

// EndSession closes the live session. The tracker is Idle when it returns,
// whatever happened to the close request.
func (t *Tracker) EndSession(ctx context.Context) {
	t.mu.Lock()
	switch t.state {
	case StateCreating:
		// The pending create is closed by Initialize when it returns.
		t.state = StateIdle
		t.mu.Unlock()
	case StateActive:
		t.terminateLocked(ctx, "explicit")
	default:
		t.mu.Unlock()
	}
}

// CurrentSessionID returns the live session id, or "" when there is none.
func (t *Tracker) CurrentSessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.ID
}

// IsSessionActive reports whether a session is live.
func (t *Tracker) IsSessionActive() bool {
	return t.CurrentSessionID() != ""
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Session returns a copy of the live session, if any.
func (t *Tracker) Session() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session, t.session.ID != ""
}

func (t *Tracker) descriptor(referrer string) domain.CreateSessionRequest {
	env := t.page.Environment()
	if referrer == "" {
		referrer = env.Referrer
	}
	return domain.CreateSessionRequest{
		UserAgent:        env.UserAgent,
		Referrer:         referrer,
		ScreenResolution: env.ScreenResolution,
		Language:         env.Language,
	}
}

// touch moves lastActivityAt forward to at. Older timestamps are ignored.
func (t *Tracker) touch(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return false
	}
	if at.After(t.session.LastActivityAt) {
		t.session.LastActivityAt = at
	}
	return true
}

// expire ends session generation gen if it has still seen no activity for
// the session timeout. Activity may have arrived since the heartbeat looked.
func (t *Tracker) expire(ctx context.Context, gen uint64) {
	t.mu.Lock()
	if t.state != StateActive || t.generation != gen ||
		t.now().Sub(t.session.LastActivityAt) < t.sessionTimeout {
		t.mu.Unlock()
		return
	}
	t.terminateLocked(ctx, "inactivity")
}

// terminateLocked must be called with t.mu held on an Active tracker; it
// releases the lock before sending the close request.
func (t *Tracker) terminateLocked(ctx context.Context, reason string) {
	id, gen := t.session.ID, t.generation
	t.releaseLocked()
	t.mu.Unlock()

	t.log.Info("session ending", "session_id", id, "reason", reason)
	t.sendClose(ctx, id)
	t.finish(gen)
}

// releaseLocked clears the session and frees its heartbeat and listeners.
func (t *Tracker) releaseLocked() {
	t.state = StateTerminating
	t.session = Session{}
	if t.cancelBeat != nil {
		t.cancelBeat()
		t.cancelBeat = nil
	}
	for _, remove := range t.detach {
		remove()
	}
	t.detach = nil
}

// finish completes Terminating -> Idle unless a newer Initialize took over.
func (t *Tracker) finish(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generation == gen && t.state == StateTerminating {
		t.state = StateIdle
	}
}

func (t *Tracker) sendClose(ctx context.Context, id string) {
	reqCtx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()
	if err := t.client.EndSession(reqCtx, id, t.now()); err != nil {
		t.log.Warn("session close failed", "session_id", id, "error", err)
	}
}
