package actor

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

var (
	// ErrActorExists is returned by Spawn when the address is already taken.
	ErrActorExists = errors.New("actor already exists")
	// ErrTreeStopped is returned by Send after the tree shut down.
	ErrTreeStopped = errors.New("tree stopped")
)

// Behavior is the message-handling half of an actor: a state machine
// instance bound to one mailbox. All methods are invoked on the tree loop
// goroutine only.
type Behavior interface {
	// Init runs once when the actor is spawned, before any delivery.
	Init(rc *ReceiveContext)
	// Receive handles one event to completion.
	Receive(rc *ReceiveContext, ev Event)
	// Snapshot exposes the current state name and context for inspection by
	// the parent (routing, checkout cart assembly) and by tests.
	Snapshot() (state string, context any)
}

// OnPanic is called when a Receive call panics. The tree keeps running.
type OnPanic func(recovered any, stack []byte, addr Address, ev Event)

// TreeOptions configures a conversation tree.
type TreeOptions struct {
	// Name identifies the tree, typically the conversation id.
	Name string
	// Context bounds the tree's lifetime.
	Context context.Context
	Logger  *slog.Logger
	OnPanic OnPanic
	// MaxConcurrentEffects caps effects run via ReceiveContext.Pipe.
	// If 0, a small default applies; negative means unlimited.
	MaxConcurrentEffects int
	Metrics              TreeMetrics
}

type delivery struct {
	to   Address
	ev   Event
	task taskFunc // control/read task; when set, to and ev are ignored
}

type cell struct {
	addr     Address
	parent   Address
	behavior Behavior
	log      *slog.Logger
}

// Tree is a single conversation's actor tree. All actors registered in a
// tree process their events strictly sequentially on one loop goroutine, so
// no two transitions of the same tree ever run concurrently. Separate trees
// are fully independent.
type Tree struct {
	name    string
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger
	onPanic OnPanic
	metrics TreeMetrics
	sched   Scheduler

	mu     sync.Mutex
	queue  []delivery
	notify chan struct{}
	closed bool

	done chan struct{}

	// loop-owned, never touched outside the loop goroutine
	actors map[Address]*cell
}

// NewTree creates a tree and starts its loop.
func NewTree(opt TreeOptions) *Tree {
	if opt.Context == nil {
		opt.Context = context.Background()
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Metrics == nil {
		opt.Metrics = NopTreeMetrics()
	}
	if opt.MaxConcurrentEffects == 0 {
		opt.MaxConcurrentEffects = 32
	}
	log := opt.Logger.With(slog.String("tree", opt.Name))
	if opt.OnPanic == nil {
		opt.OnPanic = func(recovered any, stack []byte, addr Address, ev Event) {
			log.Error("actor panicked",
				slog.Any("recovered", recovered),
				slog.String("actor", addr.String()),
				slog.String("stack", string(stack)),
			)
		}
	}

	ctx, cancel := context.WithCancel(opt.Context)

	t := &Tree{
		name:    opt.Name,
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
		onPanic: opt.OnPanic,
		metrics: opt.Metrics,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		actors:  make(map[Address]*cell),
	}
	t.sched = NewScheduler(ctx, opt.MaxConcurrentEffects, opt.Name, opt.Metrics)

	go t.loop()
	return t
}

// Name returns the tree's identifying name.
func (t *Tree) Name() string { return t.name }

// Done is closed when the tree loop exits.
func (t *Tree) Done() <-chan struct{} { return t.done }

// Stop shuts the tree down and waits for the loop to exit.
func (t *Tree) Stop() {
	t.cancel()
	<-t.done
}

// Send delivers one event to the actor at addr. Delivery is fire-and-forget:
// if no actor lives at addr by the time the event is processed, it is
// dropped.
func (t *Tree) Send(ctx context.Context, to Address, ev Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return t.enqueue(delivery{to: to, ev: ev})
}

// SpawnRoot registers the root actor of the tree. Like every mutation it is
// applied on the loop, in order with any sends enqueued after it.
func (t *Tree) SpawnRoot(addr Address, b Behavior) error {
	return t.enqueue(delivery{task: func() {
		t.register(addr, Address{}, b)
	}})
}

// Read runs f on the loop with the snapshot of the actor at addr, blocking
// until done. ok is false when no actor lives there. Intended for tests and
// for composition code outside the tree.
func (t *Tree) Read(addr Address, f func(state string, context any, ok bool)) error {
	ready := make(chan struct{})
	err := t.enqueue(delivery{task: func() {
		defer close(ready)
		c, ok := t.actors[addr]
		if !ok {
			f("", nil, false)
			return
		}
		state, sctx := c.behavior.Snapshot()
		f(state, sctx, true)
	}})
	if err != nil {
		return err
	}
	select {
	case <-ready:
		return nil
	case <-t.ctx.Done():
		return ErrTreeStopped
	}
}

// Barrier blocks until every delivery enqueued before the call has been
// processed. It does not wait for in-flight effects.
func (t *Tree) Barrier() error {
	ready := make(chan struct{})
	if err := t.enqueue(delivery{task: func() { close(ready) }}); err != nil {
		return err
	}
	select {
	case <-ready:
		return nil
	case <-t.ctx.Done():
		return ErrTreeStopped
	}
}

// ---- internals ----

func (t *Tree) enqueue(d delivery) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTreeStopped
	}
	t.queue = append(t.queue, d)
	depth := len(t.queue)
	t.mu.Unlock()

	t.metrics.MailboxDepth(t.name, depth)

	select {
	case t.notify <- struct{}{}:
	default:
	}
	return nil
}

func (t *Tree) dequeue() (delivery, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return delivery{}, false
	}
	d := t.queue[0]
	t.queue = t.queue[1:]
	t.metrics.MailboxDepth(t.name, len(t.queue))
	return d, true
}

func (t *Tree) loop() {
	defer close(t.done)
	defer func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
	}()

	for {
		d, ok := t.dequeue()
		if !ok {
			select {
			case <-t.ctx.Done():
				return
			case <-t.notify:
				continue
			}
		}
		t.process(d)

		select {
		case <-t.ctx.Done():
			return
		default:
		}
	}
}

func (t *Tree) process(d delivery) {
	if d.task != nil {
		d.task()
		return
	}

	c, ok := t.actors[d.to]
	if !ok {
		// Routing miss: permissive drop, not an error.
		t.log.Debug("delivery dropped, no actor at address",
			slog.String("actor", d.to.String()),
			slog.String("event", d.ev.EventType()),
		)
		return
	}

	defer t.metrics.MessageDuration(d.ev.EventType()).ObserveDuration()

	ok = t.safeReceive(c, d.ev)
	t.metrics.MessageProcessed(d.ev.EventType(), ok)
}

func (t *Tree) safeReceive(c *cell, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			t.metrics.MessagePanic(ev.EventType())
			t.onPanic(r, debug.Stack(), c.addr, ev)
		}
	}()
	c.behavior.Receive(&ReceiveContext{tree: t, cell: c}, ev)
	return true
}

// register adds an actor cell and runs its Init synchronously, so that the
// child is resolvable before any send enqueued afterwards is processed.
// Registering over a live address replaces the previous actor.
func (t *Tree) register(addr, parent Address, b Behavior) {
	c := &cell{
		addr:     addr,
		parent:   parent,
		behavior: b,
		log:      t.log.With(slog.String("actor", addr.String())),
	}
	t.actors[addr] = c
	t.safeInit(c)
}

func (t *Tree) safeInit(c *cell) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.MessagePanic("init")
			t.onPanic(r, debug.Stack(), c.addr, nil)
		}
	}()
	c.behavior.Init(&ReceiveContext{tree: t, cell: c})
}
