package tracker

import (
	"context"

	"github.com/xiaot623/blogpulse/internal/page"
)

var teardownEvents = []page.EventType{page.EventBeforeUnload, page.EventUnload, page.EventPageHide}

// attachLocked registers the interaction, teardown and visibility listeners
// and keeps their removers for releaseLocked.
func (t *Tracker) attachLocked() {
	for _, typ := range page.InteractionEvents {
		t.detach = append(t.detach, t.page.AddEventListener(typ, func(e page.Event) {
			t.touch(e.Time)
		}))
	}
	for _, typ := range teardownEvents {
		t.detach = append(t.detach, t.page.AddEventListener(typ, t.onTeardown))
	}
	t.detach = append(t.detach, t.page.AddEventListener(page.EventVisibilityChange, t.onVisibilityChange))
}

// onTeardown closes the session through the beacon. Whichever teardown signal
// arrives first wins; the rest find the tracker no longer Active.
func (t *Tracker) onTeardown(e page.Event) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return
	}
	id, gen := t.session.ID, t.generation
	t.releaseLocked()
	t.mu.Unlock()

	t.log.Info("session ending", "session_id", id, "reason", string(e.Type))
	if !t.client.SendEndBeacon(id, t.now()) {
		t.log.Warn("session close beacon was not queued", "session_id", id)
	}
	t.finish(gen)
}

// onVisibilityChange reports activity as soon as the page is hidden, so the
// server knows the last visible moment even if no unload signal ever fires.
func (t *Tracker) onVisibilityChange(page.Event) {
	if !t.page.Hidden() {
		return
	}

	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return
	}
	id, gen := t.session.ID, t.generation
	t.mu.Unlock()

	go t.reportActivity(context.Background(), id, gen)
}
