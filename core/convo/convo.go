// Package convo implements the root conversation actor: one per group chat,
// top of the actor tree. It spawns and indexes the cart, search and checkout
// children and routes every inbound event to the right one.
package convo

import (
	"context"
	"log/slog"
	"time"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/cart"
	"github.com/posixpascal/knusperity/core/checkout"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/core/fsm"
	"github.com/posixpascal/knusperity/core/search"
	"github.com/posixpascal/knusperity/ports/chat"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Context is the root actor's state machine context. The indexes replace
// child-collection scans: carts resolve by user id, search cards by rendered
// message id (with the shown product, so cart.add presses are enriched
// without reading the search actor's state), the checkout is a singleton.
type Context struct {
	Chat        chat.Chat
	Members     []chat.User
	cartIndex   map[chat.UserID]bool
	searchIndex map[chat.MessageID]events.SearchRendered
	hasCheckout bool
}

// Deps are the machine definitions and services the root wires together.
type Deps struct {
	Transport chat.Transport
	Carts     *fsm.Definition[cart.Context]
	Searches  *fsm.Definition[search.Context]
	Checkouts *fsm.Definition[checkout.Context]
}

// State names.
const (
	StateActive    = "active"
	StateResetting = "resetting"
)

// After /reset the conversation stays quiet for this long before accepting
// events again.
const resetQuietPeriod = 2 * time.Second

// New creates the root actor for one group chat.
func New(def *fsm.Definition[Context], c chat.Chat) *fsm.Instance[Context] {
	return fsm.NewInstance(def, Context{
		Chat:        c,
		cartIndex:   map[chat.UserID]bool{},
		searchIndex: map[chat.MessageID]events.SearchRendered{},
	})
}

// Machine builds the root state machine definition.
func Machine(deps Deps) *fsm.Definition[Context] {
	return &fsm.Definition[Context]{
		Name:     "conversation",
		Initial:  StateActive,
		Snapshot: snapshot,
		States: map[string]fsm.State[Context]{
			StateActive: {
				On: []fsm.Rule[Context]{
					{Event: events.HelpRequested{}.EventType(), Actions: one(postHelp(deps))},
					{Event: events.StartOrder{}.EventType(), Actions: one(startOrder(deps))},
					{Event: events.SearchRequested{}.EventType(), Actions: one(startSearch(deps))},
					{Event: events.LinkPasted{}.EventType(), Actions: one(routeLinks(deps))},
					{Event: events.SearchRendered{}.EventType(), Actions: one(indexSearch)},
					{Event: events.CallbackPressed{}.EventType(), Actions: one(routeCallback(deps))},
					{Event: events.OpenCheckout{}.EventType(), Actions: one(openCheckout(deps))},
					{Event: events.CheckoutAborted{}.EventType(), Actions: one(closeCheckout(false))},
					{Event: events.CheckoutCompleted{}.EventType(), Actions: one(closeCheckout(true))},
					{Event: events.ResetRequested{}.EventType(), Target: StateResetting},
				},
			},
			StateResetting: {
				Entry: one(resetConversation(deps)),
				After: &fsm.Delayed{After: resetQuietPeriod, Target: StateActive},
			},
		},
	}
}

// snapshot deep-copies the context so Read and Peek callers can keep it past
// the loop callback while transitions keep mutating the live maps.
func snapshot(c Context) Context {
	c.Members = append([]chat.User(nil), c.Members...)
	cartIndex := make(map[chat.UserID]bool, len(c.cartIndex))
	for k, v := range c.cartIndex {
		cartIndex[k] = v
	}
	c.cartIndex = cartIndex
	searchIndex := make(map[chat.MessageID]events.SearchRendered, len(c.searchIndex))
	for k, v := range c.searchIndex {
		searchIndex[k] = v
	}
	c.searchIndex = searchIndex
	return c
}

func one(a fsm.Action[Context]) []fsm.Action[Context] { return []fsm.Action[Context]{a} }

const helpText = `🥨 *Group ordering*

/order — open your cart
/checkout — start the group checkout
/reset — discard everything and start over
/help — this message

Paste product links to fill your cart, or type a product name to search.`

func postHelp(deps Deps) fsm.Action[Context] {
	return func(step *fsm.Step[Context], _ actor.Event) {
		announce(step, deps, helpText)
	}
}

// announce posts a fire-and-forget message from the root itself.
func announce(step *fsm.Step[Context], deps Deps, text string) {
	chatID := step.Context().Chat.ID
	log := step.Log()
	step.Actor().Pipe(func(ctx context.Context) actor.Event {
		if _, err := deps.Transport.SendMessage(ctx, chatID, text, chat.SendOptions{Markdown: true}); err != nil {
			log.Warn("announcement failed", slog.Any("error", err))
		}
		return nil
	})
}

// ensureCart spawns the user's cart if absent and returns its address.
func ensureCart(step *fsm.Step[Context], deps Deps, from chat.User) actor.Address {
	c := step.Context()
	addr := events.CartAddr(int64(from.ID))
	if c.cartIndex[from.ID] {
		return addr
	}
	if err := step.Actor().Spawn(addr, cart.New(deps.Carts, c.Chat.ID, from)); err != nil {
		step.Log().Error("cart spawn failed", slog.Any("error", err))
		return addr
	}
	c.cartIndex[from.ID] = true
	c.Members = append(c.Members, from)
	return addr
}

// startOrder opens a cart for the requester. An existing cart is not
// duplicated: the event is forwarded and the cart re-announces its anchor.
func startOrder(deps Deps) fsm.Action[Context] {
	return func(step *fsm.Step[Context], ev actor.Event) {
		e, ok := ev.(events.StartOrder)
		if !ok {
			return
		}
		if step.Context().cartIndex[e.From.ID] {
			step.Actor().Send(events.CartAddr(int64(e.From.ID)), e)
			return
		}
		ensureCart(step, deps, e.From)
	}
}

func startSearch(deps Deps) fsm.Action[Context] {
	return func(step *fsm.Step[Context], ev actor.Event) {
		e, ok := ev.(events.SearchRequested)
		if !ok {
			return
		}
		addr := events.SearchAddr(gonanoid.Must(8))
		inst := search.New(deps.Searches, step.Context().Chat.ID, e.From, e.MessageID, e.Query)
		if err := step.Actor().Spawn(addr, inst); err != nil {
			step.Log().Error("search spawn failed", slog.Any("error", err))
		}
	}
}

func routeLinks(deps Deps) fsm.Action[Context] {
	return func(step *fsm.Step[Context], ev actor.Event) {
		e, ok := ev.(events.LinkPasted)
		if !ok {
			return
		}
		addr := ensureCart(step, deps, e.From)
		step.Actor().Send(addr, e)
	}
}

func indexSearch(step *fsm.Step[Context], ev actor.Event) {
	if e, ok := ev.(events.SearchRendered); ok {
		step.Context().searchIndex[e.MessageID] = e
	}
}

// routeCallback resolves a keyboard press to exactly one child by command
// prefix plus the identity key carried by the event: the pressing user for
// carts, the card's message id for searches, the singleton for checkout.
func routeCallback(deps Deps) fsm.Action[Context] {
	return func(step *fsm.Step[Context], ev actor.Event) {
		e, ok := ev.(events.CallbackPressed)
		if !ok {
			return
		}
		route := fsm.Choose(
			fsm.When[Context](func(c *Context, _ actor.Event) bool { return e.Command == events.CmdCartAdd },
				func(step *fsm.Step[Context], _ actor.Event) {
					entry, ok := step.Context().searchIndex[e.MessageID]
					if !ok {
						step.Log().Debug("cart.add on unknown card", slog.Int64("messageId", int64(e.MessageID)))
						return
					}
					addr := ensureCart(step, deps, e.From)
					step.Actor().Send(addr, events.AddToCart{From: e.From, Product: entry.Product})
				}),
			fsm.When[Context](func(*Context, actor.Event) bool {
				_, ok := events.ParseCartAdjust(e.Command)
				return ok
			}, func(step *fsm.Step[Context], _ actor.Event) {
				adj, _ := events.ParseCartAdjust(e.Command)
				if !step.Context().cartIndex[e.From.ID] {
					return
				}
				step.Actor().Send(events.CartAddr(int64(e.From.ID)), adj)
			}),
			fsm.When[Context](func(*Context, actor.Event) bool {
				return e.Command == events.CmdSearchNext || e.Command == events.CmdSearchPrev
			}, func(step *fsm.Step[Context], _ actor.Event) {
				entry, ok := step.Context().searchIndex[e.MessageID]
				if !ok {
					return
				}
				if e.Command == events.CmdSearchNext {
					step.Actor().Send(entry.Addr, events.PageNext{})
				} else {
					step.Actor().Send(entry.Addr, events.PagePrev{})
				}
			}),
			fsm.When[Context](func(*Context, actor.Event) bool { return e.Command == events.CmdCheckoutConfirm },
				func(step *fsm.Step[Context], _ actor.Event) {
					step.Actor().Send(events.CheckoutAddr(), events.ConfirmCheckout{From: e.From})
				}),
			fsm.When[Context](func(*Context, actor.Event) bool { return e.Command == events.CmdCheckoutDeny },
				func(step *fsm.Step[Context], _ actor.Event) {
					step.Actor().Send(events.CheckoutAddr(), events.DenyCheckout{From: e.From})
				}),
			fsm.When[Context](func(*Context, actor.Event) bool {
				_, _, ok := events.ParseDelivery(e.Command)
				return ok
			}, func(step *fsm.Step[Context], _ actor.Event) {
				index, marker, _ := events.ParseDelivery(e.Command)
				step.Actor().Send(events.CheckoutAddr(), events.SelectDelivery{From: e.From, Index: index, Marker: marker})
			}),
			fsm.Otherwise[Context](func(step *fsm.Step[Context], _ actor.Event) {
				step.Log().Debug("unroutable command", slog.String("command", e.Command))
			}),
		)
		route(step, ev)
	}
}

// openCheckout freezes every member's cart and spawns the checkout
// singleton. A second /checkout while one runs, or a /checkout with no
// carts, only posts a notice.
func openCheckout(deps Deps) fsm.Action[Context] {
	return func(step *fsm.Step[Context], ev actor.Event) {
		c := step.Context()
		if c.hasCheckout {
			announce(step, deps, "A checkout is already running.")
			return
		}
		snapshots := snapshotCarts(step)
		if len(snapshots) == 0 {
			announce(step, deps, "Nothing to check out yet — start with /order.")
			return
		}
		inst := checkout.New(deps.Checkouts, c.Chat.ID, snapshots)
		if err := step.Actor().Spawn(events.CheckoutAddr(), inst); err != nil {
			step.Log().Error("checkout spawn failed", slog.Any("error", err))
			return
		}
		c.hasCheckout = true
	}
}

// snapshotCarts peeks every member's cart and copies the line items. Safe
// because the whole tree runs on one loop; the copies freeze the carts for
// the checkout while the originals stay editable.
func snapshotCarts(step *fsm.Step[Context]) []checkout.CartSnapshot {
	c := step.Context()
	out := make([]checkout.CartSnapshot, 0, len(c.Members))
	for _, member := range c.Members {
		_, sc, ok := step.Actor().Peek(events.CartAddr(int64(member.ID)))
		if !ok {
			continue
		}
		cc, ok := sc.(cart.Context)
		if !ok {
			continue
		}
		out = append(out, checkout.CartSnapshot{User: member, Items: cc.Items})
	}
	return out
}

// closeCheckout tears the checkout down. After a completed run all carts
// retire too; after an abort only denied members lose theirs.
func closeCheckout(completed bool) fsm.Action[Context] {
	return func(step *fsm.Step[Context], ev actor.Event) {
		c := step.Context()
		step.Actor().Kill(events.CheckoutAddr())
		c.hasCheckout = false

		if completed {
			for _, member := range c.Members {
				step.Actor().Kill(events.CartAddr(int64(member.ID)))
			}
			c.Members = nil
			c.cartIndex = map[chat.UserID]bool{}
			return
		}

		aborted, ok := ev.(events.CheckoutAborted)
		if !ok {
			return
		}
		for _, uid := range aborted.Removed {
			step.Actor().Kill(events.CartAddr(int64(uid)))
			delete(c.cartIndex, uid)
			for i, m := range c.Members {
				if m.ID == uid {
					c.Members = append(c.Members[:i], c.Members[i+1:]...)
					break
				}
			}
		}
	}
}

// resetConversation kills every child and clears all indexes.
func resetConversation(deps Deps) fsm.Action[Context] {
	return func(step *fsm.Step[Context], _ actor.Event) {
		c := step.Context()
		for _, member := range c.Members {
			step.Actor().Kill(events.CartAddr(int64(member.ID)))
		}
		for _, entry := range c.searchIndex {
			step.Actor().Kill(entry.Addr)
		}
		step.Actor().Kill(events.CheckoutAddr())
		c.Members = nil
		c.cartIndex = map[chat.UserID]bool{}
		c.searchIndex = map[chat.MessageID]events.SearchRendered{}
		c.hasCheckout = false
		announce(step, deps, "♻️ Conversation reset. Start fresh with /order.")
	}
}
