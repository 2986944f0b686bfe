package fsm

import (
	"context"
	"log/slog"
	"time"

	"github.com/posixpascal/knusperity/core/actor"
)

// Guard decides whether a transition rule applies to the inbound event.
type Guard[C any] func(c *C, ev actor.Event) bool

// Action runs as part of a transition. It may mutate the context through the
// step and emit sends or spawns through the step's actor handle.
type Action[C any] func(step *Step[C], ev actor.Event)

// Rule is one guarded transition. Rules are evaluated in declaration order;
// the first rule whose event type matches and whose guard passes (or is nil)
// wins. An empty Target makes the transition internal: actions run, the
// state is not exited.
type Rule[C any] struct {
	Event   string
	Guard   Guard[C]
	Target  string
	Actions []Action[C]
}

// Next describes the continuation of an invoked effect: actions applied to
// the settlement event, then an optional transition.
type Next[C any] struct {
	Target  string
	Actions []Action[C]
}

// Effect is an asynchronous function started on state entry. It receives a
// snapshot of the context taken at invoke time and the event that caused the
// entry; it must not touch live actor state.
type Effect[C any] func(ctx context.Context, snap C, cause actor.Event) (any, error)

// Invoke declares an effect run on state entry. Exactly one of OnDone or
// OnError fires once the effect settles, unless the actor has left the state
// by then, in which case the result is discarded. A nil OnError means a
// failure is logged and swallowed, leaving the actor in the invoking state.
type Invoke[C any] struct {
	Run     Effect[C]
	OnDone  Next[C]
	OnError *Next[C]
}

// Delayed is an automatic transition taken when the actor has stayed in the
// state for the given duration. Leaving the state cancels the timer.
type Delayed struct {
	After  time.Duration
	Target string
}

// State is one named node of the machine.
type State[C any] struct {
	Entry  []Action[C]
	On     []Rule[C]
	Invoke *Invoke[C]
	After  *Delayed
}

// Definition is the immutable state graph shared by all instances of one
// actor kind.
type Definition[C any] struct {
	Name    string
	Initial string
	// Snapshot clones the context handed to effects. Defaults to a plain
	// copy; kinds whose context holds slices or maps that later transitions
	// mutate in place should deep-copy here.
	Snapshot func(C) C
	// Global rules apply in every state, after the current state's own rules.
	Global []Rule[C]
	States map[string]State[C]
}

// Step is the per-transition handle given to actions.
type Step[C any] struct {
	rc *actor.ReceiveContext
	c  *C
}

// Context returns the mutable actor context.
func (s *Step[C]) Context() *C { return s.c }

// Actor exposes the runtime: sends, spawns, peeks.
func (s *Step[C]) Actor() *actor.ReceiveContext { return s.rc }

// Log returns the actor's logger.
func (s *Step[C]) Log() *slog.Logger { return s.rc.Log() }

// Done is the synthetic event delivered to OnDone actions; Output carries
// the effect's result.
type Done struct {
	Output any
}

func (Done) EventType() string { return "done.invoke" }

// Fail is the synthetic event delivered to OnError actions.
type Fail struct {
	Err error
}

func (Fail) EventType() string { return "error.invoke" }

// effectResult carries a settled effect back into the owning mailbox. The
// instance id and epoch pin it to the exact state residency that started it.
type effectResult struct {
	inst   string
	epoch  uint64
	output any
	err    error
}

func (effectResult) EventType() string { return "fsm.invoke.settled" }

// timerFired carries a delayed transition back into the owning mailbox.
type timerFired struct {
	inst  string
	epoch uint64
}

func (timerFired) EventType() string { return "fsm.after.elapsed" }
