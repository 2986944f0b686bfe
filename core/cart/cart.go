// Package cart implements the per-user shopping cart actor. One cart exists
// per participating group member; it owns the member's line items and an
// anchor message in the chat that it keeps edited to the current cart state.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/core/fsm"
	"github.com/posixpascal/knusperity/ports/catalog"
	"github.com/posixpascal/knusperity/ports/chat"
)

// LineItem is one product row in a cart. Quantity is always >= 1; a line
// decremented to zero is removed instead.
type LineItem struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Context is the cart actor's state machine context.
type Context struct {
	ChatID chat.ChatID
	Owner  chat.User
	Anchor chat.MessageRef
	Items  []LineItem

	// Held while an anchor post or link extraction is in flight; replayed by
	// flushHeld once the invoke settles.
	pendingLinks []int64
	reannounce   bool
	dirty        bool
}

// refreshCart asks an idle cart to re-render. Sent to self when quantity
// edits landed while the anchor was still being posted.
type refreshCart struct{}

func (refreshCart) EventType() string { return "cart.refresh" }

// Deps are the external services a cart machine needs.
type Deps struct {
	Transport chat.Transport
	Catalog   catalog.Service
}

// State names.
const (
	StateInitializing = "initializing"
	StateIdle         = "idle"
	StateExtracting   = "extracting"
	StateDebounce     = "debounce"
	StateRendering    = "rendering"
)

// Rapid quantity edits within this window coalesce into one re-render.
const debounceWindow = 300 * time.Millisecond

// During bulk link extraction, the progress message is refreshed after this
// many resolved products.
const progressEvery = 8

// New creates a cart actor for owner, anchored in the given chat.
func New(def *fsm.Definition[Context], chatID chat.ChatID, owner chat.User) *fsm.Instance[Context] {
	return fsm.NewInstance(def, Context{ChatID: chatID, Owner: owner})
}

// Machine builds the cart state machine definition. The definition is shared
// by every cart instance of a conversation tree.
func Machine(deps Deps) *fsm.Definition[Context] {
	return &fsm.Definition[Context]{
		Name:     "cart",
		Initial:  StateInitializing,
		Snapshot: snapshot,
		States: map[string]fsm.State[Context]{
			StateInitializing: {
				Invoke: &fsm.Invoke[Context]{
					Run:    postAnchor(deps),
					OnDone: fsm.Next[Context]{Actions: actions(rememberAnchor, flushHeld), Target: StateIdle},
				},
				On: []fsm.Rule[Context]{
					// the anchor is still being posted: quantity edits apply in
					// place, links and re-announces are held for flushHeld
					{Event: events.AddToCart{}.EventType(), Actions: actions(mergeAdded, markDirty)},
					{Event: events.AdjustItem{}.EventType(), Actions: actions(applyAdjust, markDirty)},
					{Event: events.LinkPasted{}.EventType(), Actions: actions(holdLinks)},
					{Event: events.StartOrder{}.EventType(), Actions: actions(noteReannounce)},
				},
			},
			StateIdle: {
				On: []fsm.Rule[Context]{
					{Event: events.AddToCart{}.EventType(), Actions: actions(mergeAdded), Target: StateDebounce},
					{Event: events.AdjustItem{}.EventType(), Actions: actions(applyAdjust), Target: StateDebounce},
					{Event: events.LinkPasted{}.EventType(), Target: StateExtracting},
					{Event: events.StartOrder{}.EventType(), Target: StateInitializing},
					{Event: refreshCart{}.EventType(), Target: StateDebounce},
				},
			},
			StateExtracting: {
				Invoke: &fsm.Invoke[Context]{
					Run:     resolveLinks(deps),
					OnDone:  fsm.Next[Context]{Actions: actions(mergeResolved, flushHeld), Target: StateDebounce},
					OnError: &fsm.Next[Context]{Actions: actions(warnExtract, flushHeld), Target: StateDebounce},
				},
				On: []fsm.Rule[Context]{
					// quantity edits during extraction mutate in place; the
					// post-extraction render picks them up
					{Event: events.AddToCart{}.EventType(), Actions: actions(mergeAdded)},
					{Event: events.AdjustItem{}.EventType(), Actions: actions(applyAdjust)},
					{Event: events.LinkPasted{}.EventType(), Actions: actions(holdLinks)},
					{Event: events.StartOrder{}.EventType(), Actions: actions(noteReannounce)},
				},
			},
			StateDebounce: {
				After: &fsm.Delayed{After: debounceWindow, Target: StateRendering},
				On: []fsm.Rule[Context]{
					// re-entering resets the window, coalescing bursts
					{Event: events.AddToCart{}.EventType(), Actions: actions(mergeAdded), Target: StateDebounce},
					{Event: events.AdjustItem{}.EventType(), Actions: actions(applyAdjust), Target: StateDebounce},
					{Event: events.LinkPasted{}.EventType(), Target: StateExtracting},
					{Event: events.StartOrder{}.EventType(), Target: StateInitializing},
				},
			},
			StateRendering: {
				Invoke: &fsm.Invoke[Context]{
					Run:     render(deps),
					OnDone:  fsm.Next[Context]{Target: StateIdle},
					OnError: &fsm.Next[Context]{Actions: actions(warnRender), Target: StateIdle},
				},
				On: []fsm.Rule[Context]{
					// an edit racing the render abandons it and re-debounces
					{Event: events.AddToCart{}.EventType(), Actions: actions(mergeAdded), Target: StateDebounce},
					{Event: events.AdjustItem{}.EventType(), Actions: actions(applyAdjust), Target: StateDebounce},
					{Event: events.LinkPasted{}.EventType(), Target: StateExtracting},
					{Event: events.StartOrder{}.EventType(), Target: StateInitializing},
				},
			},
		},
	}
}

func snapshot(c Context) Context {
	c.Items = append([]LineItem(nil), c.Items...)
	c.pendingLinks = append([]int64(nil), c.pendingLinks...)
	return c
}

func actions(a ...fsm.Action[Context]) []fsm.Action[Context] { return a }

// Merge merges one unit of p into items: increment if present, else append
// with quantity 1.
func Merge(items []LineItem, p catalog.Product) []LineItem {
	for i := range items {
		if items[i].Product.ID == p.ID {
			items[i].Quantity++
			return items
		}
	}
	return append(items, LineItem{Product: p, Quantity: 1})
}

// Adjust changes the quantity of the line matching id by delta, removing the
// line when it reaches zero. Unknown ids are a no-op.
func Adjust(items []LineItem, id int64, delta int) []LineItem {
	for i := range items {
		if items[i].Product.ID != id {
			continue
		}
		items[i].Quantity += delta
		if items[i].Quantity <= 0 {
			return append(items[:i], items[i+1:]...)
		}
		return items
	}
	return items
}

func mergeAdded(step *fsm.Step[Context], ev actor.Event) {
	add, ok := ev.(events.AddToCart)
	if !ok {
		return
	}
	step.Context().Items = Merge(step.Context().Items, add.Product)
}

func applyAdjust(step *fsm.Step[Context], ev actor.Event) {
	adj, ok := ev.(events.AdjustItem)
	if !ok {
		return
	}
	step.Context().Items = Adjust(step.Context().Items, adj.ProductID, adj.Delta)
}

func markDirty(step *fsm.Step[Context], _ actor.Event) {
	step.Context().dirty = true
}

func holdLinks(step *fsm.Step[Context], ev actor.Event) {
	pasted, ok := ev.(events.LinkPasted)
	if !ok {
		return
	}
	c := step.Context()
	c.pendingLinks = append(c.pendingLinks, pasted.ProductIDs...)
}

func noteReannounce(step *fsm.Step[Context], _ actor.Event) {
	step.Context().reannounce = true
}

// flushHeld replays events held while an invoke was in flight. Replays are
// self-sends so they go through the regular idle rules. A held re-announce
// wins: links stay held until the fresh anchor is up.
func flushHeld(step *fsm.Step[Context], _ actor.Event) {
	c := step.Context()
	if c.reannounce {
		c.reannounce = false
		step.Actor().SendSelf(events.StartOrder{From: c.Owner})
		return
	}
	if len(c.pendingLinks) > 0 {
		ids := c.pendingLinks
		c.pendingLinks = nil
		c.dirty = false
		step.Actor().SendSelf(events.LinkPasted{From: c.Owner, ProductIDs: ids})
		return
	}
	if c.dirty {
		c.dirty = false
		step.Actor().SendSelf(refreshCart{})
	}
}

func rememberAnchor(step *fsm.Step[Context], ev actor.Event) {
	done, ok := ev.(fsm.Done)
	if !ok {
		return
	}
	if ref, ok := done.Output.(chat.MessageRef); ok {
		step.Context().Anchor = ref
	}
}

func mergeResolved(step *fsm.Step[Context], ev actor.Event) {
	done, ok := ev.(fsm.Done)
	if !ok {
		return
	}
	products, ok := done.Output.([]catalog.Product)
	if !ok {
		return
	}
	c := step.Context()
	for _, p := range products {
		c.Items = Merge(c.Items, p)
	}
}

func warnExtract(step *fsm.Step[Context], ev actor.Event) {
	if fail, ok := ev.(fsm.Fail); ok {
		step.Log().Warn("link extraction failed", slog.Any("error", fail.Err))
	}
}

func warnRender(step *fsm.Step[Context], ev actor.Event) {
	if fail, ok := ev.(fsm.Fail); ok {
		step.Log().Warn("cart render failed", slog.Any("error", fail.Err))
	}
}

// postAnchor sends (or re-announces) the cart's anchor message and returns
// its reference.
func postAnchor(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		ref, err := deps.Transport.SendMessage(ctx, snap.ChatID, RenderText(snap), chat.SendOptions{
			Keyboard: RenderKeyboard(snap),
			Markdown: true,
		})
		if err != nil {
			return nil, fmt.Errorf("post cart anchor: %w", err)
		}
		return ref, nil
	}
}

// render edits the anchor message to the current cart state.
func render(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		if snap.Anchor.IsZero() {
			return nil, nil
		}
		err := deps.Transport.EditMessage(ctx, snap.Anchor, RenderText(snap), chat.SendOptions{
			Keyboard: RenderKeyboard(snap),
			Markdown: true,
		})
		if err != nil {
			return nil, fmt.Errorf("edit cart anchor: %w", err)
		}
		return nil, nil
	}
}

// resolveLinks sequentially resolves the pasted product ids, posting a
// progress message that is refreshed every few products and deleted at the
// end. Unresolvable ids are skipped.
func resolveLinks(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, cause actor.Event) (any, error) {
		pasted, ok := cause.(events.LinkPasted)
		if !ok || len(pasted.ProductIDs) == 0 {
			return []catalog.Product(nil), nil
		}

		progress, err := deps.Transport.SendMessage(ctx, snap.ChatID,
			fmt.Sprintf("Resolving %d product link(s)…", len(pasted.ProductIDs)), chat.SendOptions{})
		if err != nil {
			return nil, fmt.Errorf("post progress message: %w", err)
		}
		defer func() { _ = deps.Transport.DeleteMessage(ctx, progress) }()

		resolved := make([]catalog.Product, 0, len(pasted.ProductIDs))
		for i, id := range pasted.ProductIDs {
			p, err := deps.Catalog.ProductByID(ctx, id)
			if err != nil {
				continue
			}
			resolved = append(resolved, *p)
			if (i+1)%progressEvery == 0 {
				_ = deps.Transport.EditMessage(ctx, progress,
					fmt.Sprintf("Resolving product links… %d/%d", i+1, len(pasted.ProductIDs)), chat.SendOptions{})
			}
		}
		return resolved, nil
	}
}
