package fsm

import (
	"log/slog"

	"github.com/posixpascal/knusperity/core/actor"
)

// Arm pairs a predicate over (context, event) with the actions to run when
// it is the first arm to match.
type Arm[C any] struct {
	Match func(c *C, ev actor.Event) bool
	Run   []Action[C]
}

// When builds an arm from a predicate and its actions.
func When[C any](match func(c *C, ev actor.Event) bool, run ...Action[C]) Arm[C] {
	return Arm[C]{Match: match, Run: run}
}

// Otherwise builds the default arm. It always matches.
func Otherwise[C any](run ...Action[C]) Arm[C] {
	return Arm[C]{Run: run}
}

// Choose evaluates arms in declaration order and executes only the first
// matching arm's actions. An arm with a nil predicate is a default and
// should come last; without one, an event matching no arm is logged and
// ignored.
func Choose[C any](arms ...Arm[C]) Action[C] {
	return func(step *Step[C], ev actor.Event) {
		for _, arm := range arms {
			if arm.Match == nil || arm.Match(step.c, ev) {
				for _, a := range arm.Run {
					a(step, ev)
				}
				return
			}
		}
		step.Log().Debug("no cascade arm matched", slog.String("event", ev.EventType()))
	}
}
