package actor

import "fmt"

// Kind names a family of actors sharing one state machine definition.
type Kind string

// Address identifies one actor within a tree as a (kind, scope) pair. The
// scope is an identity key owned by the kind: the user id for carts, the
// triggering message id for searches, the conversation id for the checkout
// singleton.
type Address struct {
	Kind  Kind
	Scope string
}

// Addr builds an Address from a kind and a scope key.
func Addr(kind Kind, scope string) Address {
	return Address{Kind: kind, Scope: scope}
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a.Kind == "" && a.Scope == "" }

func (a Address) String() string {
	return fmt.Sprintf("%s/%s", a.Kind, a.Scope)
}
