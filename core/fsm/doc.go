// Package fsm is a small state machine engine executed on top of the actor
// runtime.
//
// A [Definition] is an immutable graph of named states with ordered, guarded
// transition rules, entry actions, delayed transitions ([Delayed]) and
// invoked asynchronous effects ([Invoke]). An [Instance] binds a definition
// to a mutable context and implements actor.Behavior, so machine instances
// are spawned as actors and driven by their tree's sequential loop.
//
// # Semantics
//
//   - Rules are evaluated in declaration order; the first whose guard passes
//     wins. An event matching no rule leaves state and context untouched.
//   - Entering a state that declares an invoke starts its effect without
//     blocking the mailbox. The settlement comes back as a synthetic event;
//     if the actor has left the state by then, the result is discarded.
//   - A delayed transition's timer is cancelled when the state is exited by
//     any other event.
//   - A transition targeting the current state exits and re-enters it,
//     re-running entry actions and restarting timers and invokes.
//
// [Choose] provides the guard-cascade combinator for command-string events:
// an ordered list of (predicate, actions) arms evaluated until first match,
// with an explicit [Otherwise] default.
package fsm
