// Package actor provides the conversation-scoped actor runtime: a tree of
// actors sharing one sequential event loop.
//
// Each conversation owns a [Tree]. Actors within a tree are addressed by a
// structured (kind, scope) [Address] and process events strictly one at a
// time relative to every other actor of the same tree, which removes data
// races on context shared along the parent/child axis. Separate trees run
// concurrently and share nothing but the process-wide [Registry].
//
// # Behaviors
//
// An actor is a [Behavior] bound to an address. Behaviors interact with the
// tree only through the [ReceiveContext] passed into Init and Receive:
//
//   - [ReceiveContext.Send] enqueues an event for another actor; delivery to
//     an unknown address is a silent drop, mirroring the permissive routing
//     contract.
//   - [ReceiveContext.Spawn] registers a child and runs its Init before
//     returning, so a spawn followed by a send in the same handler always
//     resolves.
//   - [ReceiveContext.Pipe] runs an asynchronous effect off the loop and
//     delivers its settlement back into the mailbox as a synthetic event.
//   - [ReceiveContext.After] schedules a delayed event with a cancel handle.
//
// # Mailbox discipline
//
// A delivery is handled to completion, including all synchronous actions,
// before the next one starts. Effects scheduled via Pipe run concurrently
// with the loop; the actor that started one is immediately ready for its
// next event.
package actor
