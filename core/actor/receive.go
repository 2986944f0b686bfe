package actor

import (
	"context"
	"log/slog"
	"time"
)

// ReceiveContext is handed to a behavior for the duration of one Init or
// Receive call. It is the only way actors interact with the rest of the
// tree: sends are enqueued (run-to-completion is preserved), spawns register
// the child immediately, and effects are scheduled off the loop.
type ReceiveContext struct {
	tree *Tree
	cell *cell
}

// Self returns the address of the receiving actor.
func (rc *ReceiveContext) Self() Address { return rc.cell.addr }

// Parent returns the address of the spawning actor; zero for the root.
func (rc *ReceiveContext) Parent() Address { return rc.cell.parent }

// Log returns a logger annotated with the tree and actor identity.
func (rc *ReceiveContext) Log() *slog.Logger { return rc.cell.log }

// Context returns the tree's lifetime context.
func (rc *ReceiveContext) Context() context.Context { return rc.tree.ctx }

// Send enqueues an event for the actor at addr. The event is processed after
// the current delivery completes. Sending to an unknown address is a silent
// drop.
func (rc *ReceiveContext) Send(to Address, ev Event) {
	_ = rc.tree.enqueue(delivery{to: to, ev: ev})
}

// SendSelf enqueues an event for the receiving actor itself.
func (rc *ReceiveContext) SendSelf(ev Event) {
	rc.Send(rc.cell.addr, ev)
}

// SendParent enqueues an event for the spawning actor. No-op for the root.
func (rc *ReceiveContext) SendParent(ev Event) {
	if rc.cell.parent.IsZero() {
		return
	}
	rc.Send(rc.cell.parent, ev)
}

// Spawn registers a child actor at addr and runs its Init before returning,
// so a Send enqueued right after resolves the child. Returns ErrActorExists
// if the address is taken.
func (rc *ReceiveContext) Spawn(addr Address, b Behavior) error {
	if _, ok := rc.tree.actors[addr]; ok {
		return ErrActorExists
	}
	rc.tree.register(addr, rc.cell.addr, b)
	return nil
}

// Respawn registers a child actor at addr, replacing any previous actor
// living there. Pending effect results of the replaced actor are discarded
// on delivery.
func (rc *ReceiveContext) Respawn(addr Address, b Behavior) {
	rc.tree.register(addr, rc.cell.addr, b)
}

// Kill removes the actor at addr from the tree. Events already enqueued for
// it are dropped on delivery.
func (rc *ReceiveContext) Kill(addr Address) {
	delete(rc.tree.actors, addr)
}

// Exists reports whether an actor lives at addr.
func (rc *ReceiveContext) Exists(addr Address) bool {
	_, ok := rc.tree.actors[addr]
	return ok
}

// Peek returns the snapshot of the actor at addr. Safe because the caller
// already runs on the tree loop; the snapshot must be treated as read-only.
func (rc *ReceiveContext) Peek(addr Address) (state string, ctx any, ok bool) {
	c, found := rc.tree.actors[addr]
	if !found {
		return "", nil, false
	}
	state, ctx = c.behavior.Snapshot()
	return state, ctx, true
}

// Pipe schedules task on the tree's effect scheduler. The returned event, if
// non-nil, is delivered to the receiving actor's mailbox when the task
// settles. The actor keeps processing other events while the task runs.
func (rc *ReceiveContext) Pipe(task func(ctx context.Context) Event) {
	self := rc.cell.addr
	tree := rc.tree
	tree.sched.Schedule(func() {
		ev := task(tree.ctx)
		if ev == nil {
			return
		}
		_ = tree.enqueue(delivery{to: self, ev: ev})
	})
}

// After delivers ev to the receiving actor once d elapses. The returned
// cancel function stops the timer; a timer that already fired delivers
// normally and must be filtered by the behavior.
func (rc *ReceiveContext) After(d time.Duration, ev Event) (cancel func()) {
	self := rc.cell.addr
	tree := rc.tree
	timer := time.AfterFunc(d, func() {
		_ = tree.enqueue(delivery{to: self, ev: ev})
	})
	return func() { timer.Stop() }
}
