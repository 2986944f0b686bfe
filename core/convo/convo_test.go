package convo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/cart"
	"github.com/posixpascal/knusperity/core/checkout"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/core/order"
	"github.com/posixpascal/knusperity/core/search"
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
)

type fixture struct {
	tree      *actor.Tree
	root      actor.Address
	transport *chat.FakeTransport
	catalog   *catalog.FakeService
	auto      *automation.FakeService
	orders    *order.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		transport: chat.NewFakeTransport(),
		catalog:   catalog.NewFakeService(),
		auto:      automation.NewFakeService(),
		orders:    order.NewStore(kv.NewMemStore()),
		root:      events.ConversationAddr(),
	}
	f.catalog.AddProduct(oatMilk)

	deps := Deps{
		Transport: f.transport,
		Carts:     cart.Machine(cart.Deps{Transport: f.transport, Catalog: f.catalog}),
		Searches:  search.Machine(search.Deps{Transport: f.transport, Catalog: f.catalog}),
		Checkouts: checkout.Machine(checkout.Deps{Transport: f.transport, Automation: f.auto, Orders: f.orders}),
	}
	f.tree = actor.NewTree(actor.TreeOptions{Name: "chat-100", Context: t.Context()})
	t.Cleanup(f.tree.Stop)
	require.NoError(t, f.tree.SpawnRoot(f.root, New(Machine(deps), chat.Chat{ID: 100, Title: "lunch crew"})))
	return f
}

func (f *fixture) send(t *testing.T, ev actor.Event) {
	t.Helper()
	require.NoError(t, f.tree.Send(t.Context(), f.root, ev))
}

func (f *fixture) rootCtx(t *testing.T) (st string, c Context) {
	t.Helper()
	require.NoError(t, f.tree.Read(f.root, func(s string, sc any, ok bool) {
		require.True(t, ok)
		st = s
		c = sc.(Context)
	}))
	return st, c
}

func (f *fixture) cartItems(t *testing.T, uid chat.UserID) (items []cart.LineItem, exists bool) {
	t.Helper()
	require.NoError(t, f.tree.Read(events.CartAddr(int64(uid)), func(_ string, sc any, ok bool) {
		if !ok {
			return
		}
		exists = true
		items = sc.(cart.Context).Items
	}))
	return items, exists
}

func (f *fixture) waitCartItems(t *testing.T, uid chat.UserID, want func([]cart.LineItem) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		items, ok := f.cartItems(t, uid)
		return ok && want(items)
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStartOrderDoesNotDuplicateCart(t *testing.T) {
	f := newFixture(t)
	f.send(t, events.StartOrder{From: pia})
	f.send(t, events.StartOrder{From: pia})

	require.NoError(t, f.tree.Barrier())
	_, c := f.rootCtx(t)
	require.Len(t, c.Members, 1)

	// the second /order re-announces the existing cart's anchor
	require.Eventually(t, func() bool {
		return f.transport.Count() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRootReadHandsOutDetachedContext(t *testing.T) {
	f := newFixture(t)
	f.send(t, events.StartOrder{From: pia})
	require.NoError(t, f.tree.Barrier())

	_, before := f.rootCtx(t)
	require.Len(t, before.Members, 1)

	// later transitions must not leak into the copy already handed out
	f.send(t, events.StartOrder{From: tom})
	require.NoError(t, f.tree.Barrier())
	require.Len(t, before.Members, 1)
	require.False(t, before.cartIndex[tom.ID])

	// and mutating the copy must not corrupt the live index
	delete(before.cartIndex, pia.ID)
	_, after := f.rootCtx(t)
	require.True(t, after.cartIndex[pia.ID])
	require.True(t, after.cartIndex[tom.ID])
}

func TestCartLifecycleThroughRoot(t *testing.T) {
	f := newFixture(t)
	f.send(t, events.StartOrder{From: pia})

	// pasting the same link twice merges into quantity 2
	f.send(t, events.LinkPasted{From: pia, ProductIDs: []int64{oatMilk.ID}})
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool {
		return len(items) == 1 && items[0].Quantity == 1
	})
	f.send(t, events.LinkPasted{From: pia, ProductIDs: []int64{oatMilk.ID}})
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool {
		return len(items) == 1 && items[0].Quantity == 2
	})

	// two decrements empty the cart; a third is a no-op
	dec := events.CallbackPressed{From: pia, Command: events.CmdCartDec(oatMilk.ID)}
	f.send(t, dec)
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool {
		return len(items) == 1 && items[0].Quantity == 1
	})
	f.send(t, dec)
	f.send(t, dec)
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool {
		return len(items) == 0
	})
}

func TestQuantityCommandRoutesByPressingUser(t *testing.T) {
	f := newFixture(t)
	f.send(t, events.StartOrder{From: pia})
	f.send(t, events.LinkPasted{From: pia, ProductIDs: []int64{oatMilk.ID}})
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool { return len(items) == 1 })

	// Tom has no cart; his press must not touch Pia's
	f.send(t, events.CallbackPressed{From: tom, Command: events.CmdCartInc(oatMilk.ID)})
	require.NoError(t, f.tree.Barrier())
	items, _ := f.cartItems(t, pia.ID)
	require.Equal(t, 1, items[0].Quantity)
	_, exists := f.cartItems(t, tom.ID)
	require.False(t, exists)
}

func TestSearchCardFeedsCart(t *testing.T) {
	f := newFixture(t)
	f.catalog.ScriptSearch("milk", oatMilk)

	f.send(t, events.SearchRequested{From: pia, MessageID: 41, Query: "milk"})

	// the rendered card gets indexed by its message id
	var cardMsg chat.MessageID
	require.Eventually(t, func() bool {
		_, c := f.rootCtx(t)
		for id := range c.searchIndex {
			cardMsg = id
			return true
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	// add press on the card: root enriches with the shown product and the
	// cart is spawned on demand
	f.send(t, events.CallbackPressed{From: pia, MessageID: cardMsg, Command: events.CmdCartAdd})
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool {
		return len(items) == 1 && items[0].Product.ID == oatMilk.ID
	})

	// paging presses route to the card's search actor; page 2 is empty so
	// the card reports no results
	f.send(t, events.CallbackPressed{From: pia, MessageID: cardMsg, Command: events.CmdSearchNext})
	require.Eventually(t, func() bool {
		return f.transport.Contains("No results for *milk*")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckoutRoundTripThroughRoot(t *testing.T) {
	f := newFixture(t)
	f.send(t, events.StartOrder{From: pia})
	f.send(t, events.LinkPasted{From: pia, ProductIDs: []int64{oatMilk.ID}})
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool { return len(items) == 1 })

	f.send(t, events.OpenCheckout{From: pia})
	require.Eventually(t, func() bool {
		_, c := f.rootCtx(t)
		return c.hasCheckout
	}, 2*time.Second, 10*time.Millisecond)

	// duplicate /checkout only posts a notice
	f.send(t, events.OpenCheckout{From: tom})
	require.Eventually(t, func() bool {
		return f.transport.Contains("already running")
	}, 2*time.Second, 10*time.Millisecond)

	f.send(t, events.CallbackPressed{From: pia, Command: events.CmdCheckoutConfirm})

	// single participant: one confirm completes the quorum and the pipeline
	// pauses at the delivery pick
	var marker string
	require.Eventually(t, func() bool {
		var st string
		require.NoError(t, f.tree.Read(events.CheckoutAddr(), func(s string, sc any, ok bool) {
			if !ok {
				return
			}
			st = s
			marker = sc.(checkout.Context).Marker
		}))
		return st == checkout.StateDeliveryPick
	}, 3*time.Second, 10*time.Millisecond)

	f.send(t, events.CallbackPressed{From: pia, Command: events.CmdDelivery(0, marker)})

	// completion tears down the checkout and retires every cart
	require.Eventually(t, func() bool {
		_, c := f.rootCtx(t)
		return !c.hasCheckout && len(c.Members) == 0
	}, 3*time.Second, 10*time.Millisecond)
	_, exists := f.cartItems(t, pia.ID)
	require.False(t, exists)

	rec, err := f.orders.Load(t.Context(), 100)
	require.NoError(t, err)
	require.Len(t, rec.Carts, 1)
}

func TestDenyAbortsAndDropsDenier(t *testing.T) {
	f := newFixture(t)
	f.send(t, events.StartOrder{From: pia})
	f.send(t, events.StartOrder{From: tom})
	f.send(t, events.LinkPasted{From: pia, ProductIDs: []int64{oatMilk.ID}})
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool { return len(items) == 1 })

	f.send(t, events.OpenCheckout{From: pia})
	require.Eventually(t, func() bool {
		_, c := f.rootCtx(t)
		return c.hasCheckout
	}, 2*time.Second, 10*time.Millisecond)

	f.send(t, events.CallbackPressed{From: tom, Command: events.CmdCheckoutDeny})

	// the deny removes Tom entirely; Pia's cart survives and stays editable
	require.Eventually(t, func() bool {
		_, c := f.rootCtx(t)
		return !c.hasCheckout && len(c.Members) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, tomExists := f.cartItems(t, tom.ID)
	require.False(t, tomExists)

	f.send(t, events.CallbackPressed{From: pia, Command: events.CmdCartInc(oatMilk.ID)})
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool {
		return len(items) == 1 && items[0].Quantity == 2
	})
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(t)
	f.send(t, events.StartOrder{From: pia})
	f.send(t, events.LinkPasted{From: pia, ProductIDs: []int64{oatMilk.ID}})
	f.waitCartItems(t, pia.ID, func(items []cart.LineItem) bool { return len(items) == 1 })

	f.send(t, events.ResetRequested{From: tom})
	require.NoError(t, f.tree.Barrier())

	st, c := f.rootCtx(t)
	require.Equal(t, StateResetting, st)
	require.Empty(t, c.Members)
	_, exists := f.cartItems(t, pia.ID)
	require.False(t, exists)

	// commands during the quiet period are dropped
	f.send(t, events.StartOrder{From: pia})
	require.NoError(t, f.tree.Barrier())
	_, c = f.rootCtx(t)
	require.Empty(t, c.Members)

	// the conversation comes back by itself
	require.Eventually(t, func() bool {
		st, _ := f.rootCtx(t)
		return st == StateActive
	}, 4*time.Second, 20*time.Millisecond)
	require.True(t, f.transport.Contains("Conversation reset"))
}
