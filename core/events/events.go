package events

import (
	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/ports/catalog"
	"github.com/posixpascal/knusperity/ports/chat"
)

// Conversation-level events, produced by the update gateway and routed by the
// root actor.

// HelpRequested asks the root to print usage.
type HelpRequested struct {
	From chat.User
}

func (HelpRequested) EventType() string { return "conversation.help" }

// StartOrder opens (or re-announces) a group order in the chat.
type StartOrder struct {
	From chat.User
}

func (StartOrder) EventType() string { return "conversation.order" }

// OpenCheckout starts the checkout pipeline over the current carts.
type OpenCheckout struct {
	From chat.User
}

func (OpenCheckout) EventType() string { return "conversation.checkout" }

// ResetRequested discards all carts and any running checkout.
type ResetRequested struct {
	From chat.User
}

func (ResetRequested) EventType() string { return "conversation.reset" }

// SearchRequested carries a free-text product query.
type SearchRequested struct {
	From      chat.User
	MessageID chat.MessageID
	Query     string
}

func (SearchRequested) EventType() string { return "conversation.search" }

// LinkPasted carries product ids extracted from pasted shop URLs. A single
// message may contain many links.
type LinkPasted struct {
	From       chat.User
	MessageID  chat.MessageID
	ProductIDs []int64
}

func (LinkPasted) EventType() string { return "conversation.link" }

// CallbackPressed is an inline keyboard press; Command uses the encodings in
// commands.go and the root routes it by prefix.
type CallbackPressed struct {
	From      chat.User
	MessageID chat.MessageID
	Command   string
}

func (CallbackPressed) EventType() string { return "conversation.callback" }

// Cart events.

// AddToCart adds one unit of Product to From's cart, merging with an existing
// line when the product is already present.
type AddToCart struct {
	From    chat.User
	Product catalog.Product
}

func (AddToCart) EventType() string { return "cart.add" }

// AdjustItem changes the quantity of a cart line by Delta. A line reaching
// zero is removed.
type AdjustItem struct {
	ProductID int64
	Delta     int
}

func (AdjustItem) EventType() string { return "cart.adjust" }

// Search events.

// PageNext advances a search result to the next page.
type PageNext struct{}

func (PageNext) EventType() string { return "search.next" }

// PagePrev moves a search result back one page, never below the first.
type PagePrev struct{}

func (PagePrev) EventType() string { return "search.prev" }

// SearchRendered is sent by a search actor to its parent once a result card
// is on screen, so the root can route keyboard presses on that message.
type SearchRendered struct {
	Addr      actor.Address
	MessageID chat.MessageID
	Product   catalog.Product
}

func (SearchRendered) EventType() string { return "search.rendered" }

// Checkout events.

// ConfirmCheckout records From's approval of the checkout.
type ConfirmCheckout struct {
	From chat.User
}

func (ConfirmCheckout) EventType() string { return "checkout.confirm" }

// DenyCheckout opts From out: their cart is dropped and the checkout aborts
// so remaining participants can restart it.
type DenyCheckout struct {
	From chat.User
}

func (DenyCheckout) EventType() string { return "checkout.deny" }

// SelectDelivery picks a delivery slot during the automation pipeline.
type SelectDelivery struct {
	From   chat.User
	Index  int
	Marker string
}

func (SelectDelivery) EventType() string { return "checkout.delivery" }

// CheckoutAborted notifies the root that the checkout actor gave up. Removed
// carries users whose carts must be discarded (deny flow).
type CheckoutAborted struct {
	Removed []chat.UserID
}

func (CheckoutAborted) EventType() string { return "checkout.aborted" }

// CheckoutCompleted notifies the root that the order went through and the
// conversation state can be cleared.
type CheckoutCompleted struct{}

func (CheckoutCompleted) EventType() string { return "checkout.completed" }
