package tracker

import (
	"context"
	"time"
)

func (t *Tracker) startHeartbeatLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelBeat = cancel
	ticks, stop := t.newTicker(t.heartbeatInterval)
	go t.runHeartbeat(ctx, ticks, stop)
}

func (t *Tracker) runHeartbeat(ctx context.Context, ticks <-chan time.Time, stop func()) {
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			t.updateActivity(ctx)
		}
	}
}

// updateActivity is one heartbeat tick: expire an idle session or report
// that it is still alive. A failed report never ends the session.
func (t *Tracker) updateActivity(ctx context.Context) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return
	}
	id, gen := t.session.ID, t.generation
	idle := t.now().Sub(t.session.LastActivityAt)
	t.mu.Unlock()

	if idle >= t.sessionTimeout {
		// ctx belongs to this heartbeat and is cancelled by the end itself.
		t.expire(context.WithoutCancel(ctx), gen)
		return
	}
	t.reportActivity(ctx, id, gen)
}

// reportActivity sends a best-effort activity update for session id.
func (t *Tracker) reportActivity(ctx context.Context, id string, gen uint64) {
	at := t.now()
	reqCtx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()

	if err := t.client.UpdateActivity(reqCtx, id, at); err != nil {
		t.log.Warn("session activity update failed", "session_id", id, "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generation == gen && t.state == StateActive && at.After(t.session.LastHeartbeatAt) {
		t.session.LastHeartbeatAt = at
	}
}
