package checkout

import (
	"fmt"
	"strings"
)

// Flag is the resolution of one pipeline stage.
type Flag int

const (
	FlagPending Flag = iota
	FlagOK
	FlagFailed
)

// Stage flag names, in pipeline order.
const (
	FlagConnected    = "connected"
	FlagTerms        = "terms"
	FlagLoggedIn     = "loggedIn"
	FlagProducts     = "productsInCart"
	FlagAddress      = "address"
	FlagDelivery     = "delivery"
	FlagPayment      = "payment"
	FlagConfirmation = "confirmation"
	FlagOrdered      = "ordered"
)

// stageOrder fixes the render order of the status message.
var stageOrder = []string{
	FlagConnected, FlagTerms, FlagLoggedIn, FlagProducts,
	FlagAddress, FlagDelivery, FlagPayment, FlagConfirmation, FlagOrdered,
}

var stageLabels = map[string]string{
	FlagConnected:    "Connect to storefront",
	FlagTerms:        "Accept terms",
	FlagLoggedIn:     "Log in",
	FlagProducts:     "Fill shopping cart",
	FlagAddress:      "Set delivery address",
	FlagDelivery:     "Pick delivery slot",
	FlagPayment:      "Enter payment",
	FlagConfirmation: "Final confirmation",
	FlagOrdered:      "Order placed",
}

// Status tracks the boolean-or-unknown resolution of every pipeline stage.
type Status map[string]Flag

// NewStatus returns a status with every stage pending.
func NewStatus() Status {
	s := make(Status, len(stageOrder))
	for _, name := range stageOrder {
		s[name] = FlagPending
	}
	return s
}

// Set records the resolution of one stage.
func (s Status) Set(name string, f Flag) { s[name] = f }

// Get returns the resolution of one stage.
func (s Status) Get(name string) Flag { return s[name] }

// Copy returns an independent status map.
func (s Status) Copy() Status {
	out := make(Status, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Text renders the aggregate status message body.
func (s Status) Text() string {
	var b strings.Builder
	b.WriteString("🤖 *Checkout progress*\n\n")
	for _, name := range stageOrder {
		var mark string
		switch s[name] {
		case FlagOK:
			mark = "✅"
		case FlagFailed:
			mark = "❌"
		default:
			mark = "⏳"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, stageLabels[name])
	}
	return b.String()
}
