package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/ports/catalog"
	"github.com/posixpascal/knusperity/ports/chat"
)

var (
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

func TestMergeIncrementsOrAppends(t *testing.T) {
	items := Merge(nil, oatMilk)
	require.Len(t, items, 1)
	require.Equal(t, 1, items[0].Quantity)

	items = Merge(items, oatMilk)
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].Quantity)

	items = Merge(items, ryeBread)
	require.Len(t, items, 2)
	require.Equal(t, int64(2), items[1].Product.ID)
}

func TestAdjustRemovesAtZero(t *testing.T) {
	items := []LineItem{{Product: oatMilk, Quantity: 2}}

	items = Adjust(items, oatMilk.ID, -1)
	require.Equal(t, 1, items[0].Quantity)

	items = Adjust(items, oatMilk.ID, -1)
	require.Empty(t, items)

	// decrementing an empty cart is a no-op
	items = Adjust(items, oatMilk.ID, -1)
	require.Empty(t, items)

	// unknown product is a no-op
	items = Adjust([]LineItem{{Product: oatMilk, Quantity: 1}}, 999, -1)
	require.Len(t, items, 1)
}

func TestTotalSumsLines(t *testing.T) {
	items := []LineItem{
		{Product: oatMilk, Quantity: 2},
		{Product: ryeBread, Quantity: 1},
	}
	total := Total(items)
	require.InDelta(t, 6.47, total.Amount, 0.001)
	require.Equal(t, "6,47 €", total.String())
}

func newCartTree(t *testing.T, deps Deps) (*actor.Tree, actor.Address) {
	t.Helper()
	tree := actor.NewTree(actor.TreeOptions{Name: "test", Context: t.Context()})
	t.Cleanup(tree.Stop)

	addr := events.CartAddr(7)
	def := Machine(deps)
	require.NoError(t, tree.SpawnRoot(addr, New(def, 100, chat.User{ID: 7, FirstName: "Pia"})))
	return tree, addr
}

func readItems(t *testing.T, tree *actor.Tree, addr actor.Address) (state string, items []LineItem) {
	t.Helper()
	require.NoError(t, tree.Read(addr, func(s string, c any, ok bool) {
		require.True(t, ok)
		state = s
		items = c.(Context).Items
	}))
	return state, items
}

func TestCartAnchorAndDebouncedRender(t *testing.T) {
	transport := chat.NewFakeTransport()
	tree, addr := newCartTree(t, Deps{Transport: transport, Catalog: catalog.NewFakeService()})

	// anchor posted by the initializing state
	require.Eventually(t, func() bool {
		state, _ := readItems(t, tree, addr)
		return state == StateIdle
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, transport.Contains("Cart — Pia"))
	require.True(t, transport.Contains("cart is empty"))

	// a burst of edits coalesces into one debounced re-render
	user := chat.User{ID: 7, FirstName: "Pia"}
	require.NoError(t, tree.Send(t.Context(), addr, events.AddToCart{From: user, Product: oatMilk}))
	require.NoError(t, tree.Send(t.Context(), addr, events.AddToCart{From: user, Product: oatMilk}))
	require.NoError(t, tree.Send(t.Context(), addr, events.AddToCart{From: user, Product: ryeBread}))

	require.Eventually(t, func() bool {
		state, items := readItems(t, tree, addr)
		return state == StateIdle && len(items) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return transport.Contains("2 × Oat Milk (1 l) — 3,98 €") &&
			transport.Contains("Total: 6,47 €")
	}, 2*time.Second, 10*time.Millisecond)

	// the anchor is edited in place, not reposted
	require.Equal(t, 1, transport.Count())
}

func TestCartDecrementToEmpty(t *testing.T) {
	transport := chat.NewFakeTransport()
	tree, addr := newCartTree(t, Deps{Transport: transport, Catalog: catalog.NewFakeService()})

	user := chat.User{ID: 7, FirstName: "Pia"}
	require.NoError(t, tree.Send(t.Context(), addr, events.AddToCart{From: user, Product: oatMilk}))
	require.NoError(t, tree.Send(t.Context(), addr, events.AddToCart{From: user, Product: oatMilk}))
	require.NoError(t, tree.Send(t.Context(), addr, events.AdjustItem{ProductID: oatMilk.ID, Delta: -1}))
	require.NoError(t, tree.Send(t.Context(), addr, events.AdjustItem{ProductID: oatMilk.ID, Delta: -1}))

	require.Eventually(t, func() bool {
		state, items := readItems(t, tree, addr)
		return state == StateIdle && len(items) == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return transport.Contains("cart is empty")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCartBulkLinkExtraction(t *testing.T) {
	transport := chat.NewFakeTransport()
	cat := catalog.NewFakeService()
	cat.AddProduct(oatMilk)
	cat.AddProduct(ryeBread)
	tree, addr := newCartTree(t, Deps{Transport: transport, Catalog: cat})

	user := chat.User{ID: 7, FirstName: "Pia"}
	require.NoError(t, tree.Send(t.Context(), addr, events.LinkPasted{
		From:       user,
		ProductIDs: []int64{oatMilk.ID, ryeBread.ID, 999, oatMilk.ID},
	}))

	// 999 is unresolvable and skipped; the duplicate merges into quantity 2
	require.Eventually(t, func() bool {
		state, items := readItems(t, tree, addr)
		return state == StateIdle && len(items) == 2 && items[0].Quantity == 2
	}, 2*time.Second, 10*time.Millisecond)

	// the progress message got cleaned up
	for _, m := range transport.Messages() {
		if m.Ref.MessageID == 2 {
			require.True(t, m.Deleted)
		}
	}
}

func TestCartAppliesEditsSentBeforeAnchorSettles(t *testing.T) {
	transport := chat.NewFakeTransport()
	tree, addr := newCartTree(t, Deps{Transport: transport, Catalog: catalog.NewFakeService()})

	// no waiting for idle: the adds race the anchor post
	user := chat.User{ID: 7, FirstName: "Pia"}
	require.NoError(t, tree.Send(t.Context(), addr, events.AddToCart{From: user, Product: oatMilk}))
	require.NoError(t, tree.Send(t.Context(), addr, events.AddToCart{From: user, Product: oatMilk}))

	require.Eventually(t, func() bool {
		state, items := readItems(t, tree, addr)
		return state == StateIdle && len(items) == 1 && items[0].Quantity == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return transport.Contains("2 × Oat Milk (1 l) — 3,98 €")
	}, 2*time.Second, 10*time.Millisecond)

	// held edits re-render the anchor, they never repost it
	require.Equal(t, 1, transport.Count())
}

func TestCartAppliesLinksPastedBeforeAnchorSettles(t *testing.T) {
	transport := chat.NewFakeTransport()
	cat := catalog.NewFakeService()
	cat.AddProduct(oatMilk)
	cat.AddProduct(ryeBread)
	tree, addr := newCartTree(t, Deps{Transport: transport, Catalog: cat})

	user := chat.User{ID: 7, FirstName: "Pia"}
	require.NoError(t, tree.Send(t.Context(), addr, events.LinkPasted{
		From:       user,
		ProductIDs: []int64{oatMilk.ID, ryeBread.ID},
	}))

	require.Eventually(t, func() bool {
		state, items := readItems(t, tree, addr)
		return state == StateIdle && len(items) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return transport.Contains("Oat Milk") && transport.Contains("Rye Bread")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCartReannounceRequestedBeforeAnchorSettles(t *testing.T) {
	transport := chat.NewFakeTransport()
	tree, addr := newCartTree(t, Deps{Transport: transport, Catalog: catalog.NewFakeService()})

	require.NoError(t, tree.Send(t.Context(), addr, events.StartOrder{From: chat.User{ID: 7}}))

	// the second announce happens whether the command raced the first anchor
	// post or landed after it
	require.Eventually(t, func() bool {
		return transport.Count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		var anchor chat.MessageRef
		require.NoError(t, tree.Read(addr, func(_ string, c any, ok bool) {
			require.True(t, ok)
			anchor = c.(Context).Anchor
		}))
		return anchor.MessageID == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCartReannounceOnOrderCommand(t *testing.T) {
	transport := chat.NewFakeTransport()
	tree, addr := newCartTree(t, Deps{Transport: transport, Catalog: catalog.NewFakeService()})

	require.Eventually(t, func() bool {
		state, _ := readItems(t, tree, addr)
		return state == StateIdle
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, transport.Count())

	require.NoError(t, tree.Send(t.Context(), addr, events.StartOrder{From: chat.User{ID: 7}}))

	require.Eventually(t, func() bool {
		return transport.Count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// the fresh anchor is the one kept for future renders
	require.NoError(t, tree.Barrier())
	require.Eventually(t, func() bool {
		var anchor chat.MessageRef
		require.NoError(t, tree.Read(addr, func(_ string, c any, ok bool) {
			require.True(t, ok)
			anchor = c.(Context).Anchor
		}))
		return anchor.MessageID == 2
	}, 2*time.Second, 10*time.Millisecond)
}
