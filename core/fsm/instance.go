package fsm

import (
	"context"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/posixpascal/knusperity/core/actor"
)

// Instance is one running machine: a definition plus current state, context
// and in-flight effect/timer bookkeeping. It implements actor.Behavior and
// is driven entirely by its tree's loop goroutine.
type Instance[C any] struct {
	def   *Definition[C]
	id    string
	state string
	ctx   C

	// epoch increments on every state exit. Effect settlements and timer
	// fires carry the epoch of the residency that scheduled them; a mismatch
	// means the actor has moved on and the event is discarded.
	epoch       uint64
	cancelTimer func()
}

// NewInstance creates an instance of def with the given initial context. The
// initial state is entered when the actor is spawned.
func NewInstance[C any](def *Definition[C], initial C) *Instance[C] {
	return &Instance[C]{
		def: def,
		id:  gonanoid.Must(8),
		ctx: initial,
	}
}

// Init enters the definition's initial state.
func (i *Instance[C]) Init(rc *actor.ReceiveContext) {
	i.enter(rc, i.def.Initial, nil)
}

// Snapshot returns the current state name and a copy of the context.
func (i *Instance[C]) Snapshot() (string, any) {
	return i.state, i.snapshot()
}

// Receive applies one event. Unmatched events are a documented no-op.
func (i *Instance[C]) Receive(rc *actor.ReceiveContext, ev actor.Event) {
	switch e := ev.(type) {
	case effectResult:
		i.settle(rc, e)
	case timerFired:
		if e.inst != i.id || e.epoch != i.epoch {
			return
		}
		st := i.def.States[i.state]
		if st.After == nil {
			return
		}
		i.transition(rc, st.After.Target, ev)
	default:
		i.dispatch(rc, ev)
	}
}

func (i *Instance[C]) dispatch(rc *actor.ReceiveContext, ev actor.Event) {
	rule := i.match(i.def.States[i.state].On, ev)
	if rule == nil {
		rule = i.match(i.def.Global, ev)
	}
	if rule == nil {
		rc.Log().Debug("event ignored",
			slog.String("machine", i.def.Name),
			slog.String("state", i.state),
			slog.String("event", ev.EventType()),
		)
		return
	}

	step := &Step[C]{rc: rc, c: &i.ctx}
	for _, a := range rule.Actions {
		a(step, ev)
	}
	if rule.Target != "" {
		i.transition(rc, rule.Target, ev)
	}
}

// match returns the first rule matching the event type whose guard passes.
func (i *Instance[C]) match(rules []Rule[C], ev actor.Event) *Rule[C] {
	for idx := range rules {
		r := &rules[idx]
		if r.Event != ev.EventType() {
			continue
		}
		if r.Guard != nil && !r.Guard(&i.ctx, ev) {
			continue
		}
		return r
	}
	return nil
}

func (i *Instance[C]) settle(rc *actor.ReceiveContext, e effectResult) {
	if e.inst != i.id || e.epoch != i.epoch {
		// Last state wins: the actor left the invoking state before the
		// effect settled.
		rc.Log().Debug("stale effect result discarded",
			slog.String("machine", i.def.Name),
			slog.String("state", i.state),
		)
		return
	}

	st := i.def.States[i.state]
	if st.Invoke == nil {
		return
	}

	if e.err != nil {
		if st.Invoke.OnError == nil {
			rc.Log().Warn("invoked effect failed with no error transition",
				slog.String("machine", i.def.Name),
				slog.String("state", i.state),
				slog.Any("error", e.err),
			)
			return
		}
		i.applyNext(rc, *st.Invoke.OnError, Fail{Err: e.err})
		return
	}

	i.applyNext(rc, st.Invoke.OnDone, Done{Output: e.output})
}

func (i *Instance[C]) applyNext(rc *actor.ReceiveContext, n Next[C], ev actor.Event) {
	step := &Step[C]{rc: rc, c: &i.ctx}
	for _, a := range n.Actions {
		a(step, ev)
	}
	if n.Target != "" {
		i.transition(rc, n.Target, ev)
	}
}

// transition exits the current state and enters target. A transition whose
// target equals the current state still exits and re-enters, re-arming
// timers and re-running any invoke.
func (i *Instance[C]) transition(rc *actor.ReceiveContext, target string, cause actor.Event) {
	if i.cancelTimer != nil {
		i.cancelTimer()
		i.cancelTimer = nil
	}
	i.epoch++
	i.enter(rc, target, cause)
}

func (i *Instance[C]) enter(rc *actor.ReceiveContext, target string, cause actor.Event) {
	st, ok := i.def.States[target]
	if !ok {
		rc.Log().Error("transition to unknown state",
			slog.String("machine", i.def.Name),
			slog.String("target", target),
		)
		return
	}
	i.state = target

	step := &Step[C]{rc: rc, c: &i.ctx}
	for _, a := range st.Entry {
		a(step, cause)
	}

	if st.After != nil {
		i.cancelTimer = rc.After(st.After.After, timerFired{inst: i.id, epoch: i.epoch})
	}

	if st.Invoke != nil {
		run := st.Invoke.Run
		snap := i.snapshot()
		result := effectResult{inst: i.id, epoch: i.epoch}
		rc.Pipe(func(ctx context.Context) actor.Event {
			out, err := run(ctx, snap, cause)
			result.output, result.err = out, err
			return result
		})
	}
}

func (i *Instance[C]) snapshot() C {
	if i.def.Snapshot != nil {
		return i.def.Snapshot(i.ctx)
	}
	return i.ctx
}

var _ actor.Behavior = (*Instance[struct{}])(nil)
