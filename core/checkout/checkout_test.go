package checkout

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/cart"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/core/order"
	"github.com/posixpascal/knusperity/ports/automation"
	"github.com/posixpascal/knusperity/ports/catalog"
	"github.com/posixpascal/knusperity/ports/chat"
	"github.com/posixpascal/knusperity/ports/kv"
)

var (
	pia = chat.User{ID: 7, FirstName: "Pia"}
	tom = chat.User{ID: 8, FirstName: "Tom"}

	oatMilk = catalog.Product{
		ID: 1, Name: "Oat Milk", TextualAmount: "1 l",
		Price: catalog.Price{Amount: 1.99, Currency: "€"},
		Link:  "https://shop.example/p/oat-milk--1",
	}
	ryeBread = catalog.Product{
		ID: 2, Name: "Rye Bread", TextualAmount: "500 g",
		Price: catalog.Price{Amount: 2.49, Currency: "€"},
		Link:  "https://shop.example/p/rye-bread--2",
	}
)

func twoCarts() []CartSnapshot {
	return []CartSnapshot{
		{User: pia, Items: []cart.LineItem{{Product: oatMilk, Quantity: 2}}},
		{User: tom, Items: []cart.LineItem{{Product: ryeBread, Quantity: 1}, {Product: oatMilk, Quantity: 1}}},
	}
}

type recordingParent struct {
	mu    sync.Mutex
	got   []actor.Event
	spawn func(rc *actor.ReceiveContext)
}

func (r *recordingParent) Init(rc *actor.ReceiveContext) { r.spawn(rc) }

func (r *recordingParent) Receive(_ *actor.ReceiveContext, ev actor.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
}

func (r *recordingParent) Snapshot() (string, any) { return "recording", nil }

func (r *recordingParent) events() []actor.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]actor.Event(nil), r.got...)
}

type fixture struct {
	tree      *actor.Tree
	addr      actor.Address
	parent    *recordingParent
	transport *chat.FakeTransport
	auto      *automation.FakeService
	orders    *order.Store
}

func newFixture(t *testing.T, auto *automation.FakeService, carts []CartSnapshot) *fixture {
	t.Helper()
	f := &fixture{
		transport: chat.NewFakeTransport(),
		auto:      auto,
		orders:    order.NewStore(kv.NewMemStore()),
		addr:      events.CheckoutAddr(),
	}
	def := Machine(Deps{Transport: f.transport, Automation: f.auto, Orders: f.orders})
	f.parent = &recordingParent{spawn: func(rc *actor.ReceiveContext) {
		require.NoError(t, rc.Spawn(f.addr, New(def, 100, carts)))
	}}
	f.tree = actor.NewTree(actor.TreeOptions{Name: "test", Context: t.Context()})
	t.Cleanup(f.tree.Stop)
	require.NoError(t, f.tree.SpawnRoot(events.ConversationAddr(), f.parent))
	return f
}

func (f *fixture) state(t *testing.T) (st string, c Context) {
	t.Helper()
	require.NoError(t, f.tree.Read(f.addr, func(s string, sc any, ok bool) {
		require.True(t, ok)
		st = s
		c = sc.(Context)
	}))
	return st, c
}

func (f *fixture) waitState(t *testing.T, want string) Context {
	t.Helper()
	var c Context
	require.Eventually(t, func() bool {
		st, sc := f.state(t)
		c = sc
		return st == want
	}, 2*time.Second, 10*time.Millisecond)
	return c
}

func (f *fixture) send(t *testing.T, ev actor.Event) {
	t.Helper()
	require.NoError(t, f.tree.Send(t.Context(), f.addr, ev))
}

func TestCheckoutQuorumTally(t *testing.T) {
	f := newFixture(t, automation.NewFakeService(), twoCarts())
	f.waitState(t, StateConfirming)
	require.True(t, f.transport.Contains("0/2 confirmed"))

	f.send(t, events.ConfirmCheckout{From: pia})
	require.Eventually(t, func() bool {
		return f.transport.Contains("1/2 confirmed")
	}, 2*time.Second, 10*time.Millisecond)

	// re-confirming is idempotent
	f.send(t, events.ConfirmCheckout{From: pia})
	c := f.waitState(t, StateConfirming)
	require.Equal(t, 1, c.Confirmed.Len())

	// a stranger's confirm is dropped
	f.send(t, events.ConfirmCheckout{From: chat.User{ID: 99, FirstName: "Eve"}})
	require.NoError(t, f.tree.Barrier())
	_, c = f.state(t)
	require.Equal(t, 1, c.Confirmed.Len())

	// the automation pipeline has not started
	require.Empty(t, f.auto.Calls())
}

func TestCheckoutFullRun(t *testing.T) {
	f := newFixture(t, automation.NewFakeService(), twoCarts())
	f.waitState(t, StateConfirming)

	f.send(t, events.ConfirmCheckout{From: pia})
	f.send(t, events.ConfirmCheckout{From: tom})

	// pipeline runs until the group must pick a delivery slot
	c := f.waitState(t, StateDeliveryPick)
	require.NotEmpty(t, c.Options)
	require.NotEmpty(t, c.Marker)
	require.True(t, f.transport.Contains("Pick a delivery slot"))

	// the order record was persisted before any automation ran
	rec, err := f.orders.Load(t.Context(), 100)
	require.NoError(t, err)
	require.Len(t, rec.Carts, 2)
	require.Equal(t, pia.ID, rec.Carts[0].UserID)

	// a pick from a stale options list is dropped
	f.send(t, events.SelectDelivery{From: pia, Index: 0, Marker: "stale"})
	require.NoError(t, f.tree.Barrier())
	st, _ := f.state(t)
	require.Equal(t, StateDeliveryPick, st)

	f.send(t, events.SelectDelivery{From: pia, Index: 0, Marker: c.Marker})
	c = f.waitState(t, StateDone)

	require.Equal(t, FlagOK, c.Status.Get(FlagConnected))
	require.Equal(t, FlagOK, c.Status.Get(FlagDelivery))
	require.Equal(t, FlagOK, c.Status.Get(FlagConfirmation))
	// placing the real order stays manual
	require.Equal(t, FlagPending, c.Status.Get(FlagOrdered))

	// cross-cart quantities were summed for the storefront
	items := f.auto.PopulatedItems()
	require.Len(t, items, 2)
	require.Equal(t, 3, items[0].Quantity)

	require.True(t, f.transport.Contains("not* been submitted"))
	require.Contains(t, f.parent.events(), actor.Event(events.CheckoutCompleted{}))
}

func TestCheckoutDenyAborts(t *testing.T) {
	f := newFixture(t, automation.NewFakeService(), twoCarts())
	f.waitState(t, StateConfirming)

	f.send(t, events.ConfirmCheckout{From: pia})
	f.send(t, events.DenyCheckout{From: tom})

	c := f.waitState(t, StateAborted)
	require.Equal(t, []chat.UserID{tom.ID}, c.Removed)
	require.Len(t, c.Carts, 1, "denier's cart dropped from the snapshot")

	require.Eventually(t, func() bool {
		return f.transport.Contains("Checkout aborted")
	}, 2*time.Second, 10*time.Millisecond)

	var aborted []events.CheckoutAborted
	for _, ev := range f.parent.events() {
		if a, ok := ev.(events.CheckoutAborted); ok {
			aborted = append(aborted, a)
		}
	}
	require.Len(t, aborted, 1)
	require.Equal(t, []chat.UserID{tom.ID}, aborted[0].Removed)

	require.Empty(t, f.auto.Calls())
}

func TestCheckoutFailsafeOnStageFailure(t *testing.T) {
	auto := automation.NewFakeService()
	auto.FailAt = automation.StageLogin
	f := newFixture(t, auto, twoCarts())
	f.waitState(t, StateConfirming)

	f.send(t, events.ConfirmCheckout{From: pia})
	f.send(t, events.ConfirmCheckout{From: tom})

	c := f.waitState(t, StateFailed)
	require.Equal(t, FlagOK, c.Status.Get(FlagConnected))
	require.Equal(t, FlagOK, c.Status.Get(FlagTerms))
	require.Equal(t, FlagFailed, c.Status.Get(FlagLoggedIn))
	require.Equal(t, FlagPending, c.Status.Get(FlagPayment))

	// manual fallback lists every product link across every cart
	require.Eventually(t, func() bool {
		return f.transport.Contains("Order manually") &&
			f.transport.Contains(oatMilk.Link) &&
			f.transport.Contains(ryeBread.Link)
	}, 2*time.Second, 10*time.Millisecond)

	// no retries: the stage was attempted exactly once and nothing after ran
	calls := f.auto.Calls()
	require.Equal(t, []string{automation.StageConnect, automation.StageTerms, automation.StageLogin}, calls)
}
