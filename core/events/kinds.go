// Package events declares the message vocabulary shared by the conversation
// actors, plus the callback command strings wired into chat keyboards.
package events

import (
	"strconv"

	"github.com/posixpascal/knusperity/core/actor"
)

// Actor kinds within a conversation tree.
const (
	KindConversation actor.Kind = "conversation"
	KindCart         actor.Kind = "cart"
	KindSearch       actor.Kind = "search"
	KindCheckout     actor.Kind = "checkout"
)

// ConversationAddr is the root actor's address; there is exactly one per tree.
func ConversationAddr() actor.Address {
	return actor.Addr(KindConversation, "root")
}

// CartAddr scopes a cart actor to its owning user.
func CartAddr(userID int64) actor.Address {
	return actor.Addr(KindCart, strconv.FormatInt(userID, 10))
}

// SearchAddr scopes a search actor to a unique per-request id.
func SearchAddr(id string) actor.Address {
	return actor.Addr(KindSearch, id)
}

// CheckoutAddr is the single checkout actor of a conversation.
func CheckoutAddr() actor.Address {
	return actor.Addr(KindCheckout, "pipeline")
}
