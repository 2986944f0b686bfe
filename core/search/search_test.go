package search

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/ports/catalog"
	"github.com/posixpascal/knusperity/ports/chat"
)

var (
	firstHit = catalog.Product{
		ID: 11, Name: "Almond Butter", TextualAmount: "250 g",
		Price: catalog.Price{Amount: 4.99, Currency: "€"},
		Link:  "https://shop.example/p/almond-butter--11",
	}
	secondHit = catalog.Product{
		ID: 12, Name: "Peanut Butter", TextualAmount: "350 g",
		Price: catalog.Price{Amount: 2.99, Currency: "€"},
		Link:  "https://shop.example/p/peanut-butter--12",
	}
)

// recordingParent spawns a search child and records everything sent back up.
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

func (r *recordingParent) rendered() []events.SearchRendered {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.SearchRendered
	for _, ev := range r.got {
		if sr, ok := ev.(events.SearchRendered); ok {
			out = append(out, sr)
		}
	}
	return out
}

func newSearchTree(t *testing.T, deps Deps, query string) (*actor.Tree, actor.Address, *recordingParent) {
	t.Helper()
	tree := actor.NewTree(actor.TreeOptions{Name: "test", Context: t.Context()})
	t.Cleanup(tree.Stop)

	addr := events.SearchAddr("s1")
	def := Machine(deps)
	parent := &recordingParent{spawn: func(rc *actor.ReceiveContext) {
		require.NoError(t, rc.Spawn(addr, New(def, 100, chat.User{ID: 7, FirstName: "Pia"}, 55, query)))
	}}
	require.NoError(t, tree.SpawnRoot(events.ConversationAddr(), parent))
	return tree, addr, parent
}

func state(t *testing.T, tree *actor.Tree, addr actor.Address) (st string, c Context) {
	t.Helper()
	require.NoError(t, tree.Read(addr, func(s string, sc any, ok bool) {
		require.True(t, ok)
		st = s
		c = sc.(Context)
	}))
	return st, c
}

func TestSearchRendersCardAndNotifies(t *testing.T) {
	transport := chat.NewFakeTransport()
	cat := catalog.NewFakeService()
	cat.ScriptSearch("butter", firstHit, secondHit)
	tree, addr, parent := newSearchTree(t, Deps{Transport: transport, Catalog: cat}, "butter")

	require.Eventually(t, func() bool {
		st, c := state(t, tree, addr)
		return st == StateIdle && c.Product.ID == firstHit.ID
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, transport.Contains("Almond Butter"))
	require.True(t, transport.Contains("4,99 €"))
	require.Equal(t, 1, transport.Count(), "placeholder is edited, not reposted")

	rendered := parent.rendered()
	require.Len(t, rendered, 1)
	require.Equal(t, addr, rendered[0].Addr)
	require.Equal(t, firstHit.ID, rendered[0].Product.ID)
}

func TestSearchPagingClampsAtFirstPage(t *testing.T) {
	transport := chat.NewFakeTransport()
	cat := catalog.NewFakeService()
	cat.ScriptSearch("butter", firstHit, secondHit)
	tree, addr, parent := newSearchTree(t, Deps{Transport: transport, Catalog: cat}, "butter")

	require.Eventually(t, func() bool {
		st, _ := state(t, tree, addr)
		return st == StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	// prev on the first page is dropped
	require.NoError(t, tree.Send(t.Context(), addr, events.PagePrev{}))
	require.NoError(t, tree.Barrier())
	_, c := state(t, tree, addr)
	require.Equal(t, 1, c.Page)

	require.NoError(t, tree.Send(t.Context(), addr, events.PageNext{}))
	require.Eventually(t, func() bool {
		st, c := state(t, tree, addr)
		return st == StateIdle && c.Product.ID == secondHit.ID
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, transport.Contains("Peanut Butter"))

	// the card message was edited in place and re-announced to the parent
	require.Equal(t, 1, transport.Count())
	require.Len(t, parent.rendered(), 2)

	require.NoError(t, tree.Send(t.Context(), addr, events.PagePrev{}))
	require.Eventually(t, func() bool {
		_, c := state(t, tree, addr)
		return c.Page == 1 && c.Product.ID == firstHit.ID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSearchNoResults(t *testing.T) {
	transport := chat.NewFakeTransport()
	cat := catalog.NewFakeService() // nothing scripted
	tree, addr, parent := newSearchTree(t, Deps{Transport: transport, Catalog: cat}, "unobtainium")

	require.Eventually(t, func() bool {
		st, _ := state(t, tree, addr)
		return st == StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, transport.Contains("No results for *unobtainium*"))
	require.Empty(t, parent.rendered())
}
