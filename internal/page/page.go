// Package page models the runtime a session tracker observes: an environment
// snapshot and an event target that delivers interaction, visibility and
// teardown signals.
package page

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType names a page signal.
type EventType string

const (
	EventClick       EventType = "click"
	EventScroll      EventType = "scroll"
	EventKeyPress    EventType = "keypress"
	EventPointerMove EventType = "pointermove"

	EventBeforeUnload     EventType = "beforeunload"
	EventUnload           EventType = "unload"
	EventPageHide         EventType = "pagehide"
	EventVisibilityChange EventType = "visibilitychange"
)

// InteractionEvents are the signals that count as user activity.
var InteractionEvents = []EventType{EventClick, EventScroll, EventKeyPress, EventPointerMove}

// Event is a single dispatched signal.
type Event struct {
	Type EventType
	Time time.Time
}

// Listener handles a dispatched event.
type Listener func(Event)

// Environment is what the page knows about its host.
type Environment struct {
	UserAgent        string
	Referrer         string
	ScreenResolution string
	Language         string
}

type registration struct {
	fn      Listener
	removed atomic.Bool
}

// Page is an in-process event target with DOM-like listener semantics:
// listeners run synchronously in registration order on the dispatching
// goroutine, and a listener removed mid-dispatch is not invoked.
type Page struct {
	env Environment
	now func() time.Time

	mu        sync.Mutex
	listeners map[EventType][]*registration
	hidden    bool
}

// New creates a visible page with the given environment.
func New(env Environment) *Page {
	return &Page{
		env:       env,
		now:       time.Now,
		listeners: make(map[EventType][]*registration),
	}
}

// Environment returns the environment snapshot.
func (p *Page) Environment() Environment {
	return p.env
}

// AddEventListener registers fn for t. The returned function removes exactly
// this registration and may be called any number of times.
func (p *Page) AddEventListener(t EventType, fn Listener) func() {
	reg := &registration{fn: fn}

	p.mu.Lock()
	p.listeners[t] = append(p.listeners[t], reg)
	p.mu.Unlock()

	return func() {
		if reg.removed.Swap(true) {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		regs := p.listeners[t]
		for i, r := range regs {
			if r == reg {
				p.listeners[t] = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
		if len(p.listeners[t]) == 0 {
			delete(p.listeners, t)
		}
	}
}

// ListenerCount returns how many listeners are registered for t.
func (p *Page) ListenerCount(t EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners[t])
}

// TotalListeners returns the number of registered listeners of any type.
func (p *Page) TotalListeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, regs := range p.listeners {
		n += len(regs)
	}
	return n
}

// Dispatch delivers e to the listeners registered for its type. A zero
// e.Time is stamped with the current time.
func (p *Page) Dispatch(e Event) {
	if e.Time.IsZero() {
		e.Time = p.now()
	}

	p.mu.Lock()
	regs := append([]*registration(nil), p.listeners[e.Type]...)
	p.mu.Unlock()

	for _, reg := range regs {
		if reg.removed.Load() {
			continue
		}
		reg.fn(e)
	}
}

// Hidden reports the current visibility state.
func (p *Page) Hidden() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hidden
}

// SetHidden changes the visibility state and dispatches visibilitychange
// when it actually changed.
func (p *Page) SetHidden(hidden bool) {
	p.mu.Lock()
	changed := p.hidden != hidden
	p.hidden = hidden
	p.mu.Unlock()

	if changed {
		p.Dispatch(Event{Type: EventVisibilityChange})
	}
}

// Unload runs the browser's close sequence: beforeunload, pagehide, the page
// turning hidden, then unload.
func (p *Page) Unload() {
	p.Dispatch(Event{Type: EventBeforeUnload})
	p.Dispatch(Event{Type: EventPageHide})
	p.SetHidden(true)
	p.Dispatch(Event{Type: EventUnload})
}
