package events

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback command strings baked into inline keyboards. The root actor routes
// a pressed command to an actor kind by its prefix, so every command starts
// with the kind it belongs to.
const (
	CmdCartAdd         = "cart.add"
	CmdSearchNext      = "search.next"
	CmdSearchPrev      = "search.prev"
	CmdCheckoutConfirm = "checkout.confirm"
	CmdCheckoutDeny    = "checkout.deny"

	cartIncPrefix  = "cart.inc."
	cartDecPrefix  = "cart.dec."
	deliveryPrefix = "checkout.delivery."
)

// Command prefixes for routing.
const (
	PrefixCart     = "cart."
	PrefixSearch   = "search."
	PrefixCheckout = "checkout."
)

// CmdCartInc encodes an increment command for a cart line.
func CmdCartInc(productID int64) string {
	return cartIncPrefix + strconv.FormatInt(productID, 10)
}

// CmdCartDec encodes a decrement command for a cart line.
func CmdCartDec(productID int64) string {
	return cartDecPrefix + strconv.FormatInt(productID, 10)
}

// CmdDelivery encodes a delivery slot pick as index@marker. The marker pins
// the pick to the slot list it was rendered from.
func CmdDelivery(index int, marker string) string {
	return fmt.Sprintf("%s%d@%s", deliveryPrefix, index, marker)
}

// ParseCartAdjust decodes cart.inc.<id> / cart.dec.<id> into an AdjustItem.
func ParseCartAdjust(cmd string) (AdjustItem, bool) {
	delta := 0
	rest := ""
	if id, ok := strings.CutPrefix(cmd, cartIncPrefix); ok {
		delta, rest = 1, id
	} else if id, ok := strings.CutPrefix(cmd, cartDecPrefix); ok {
		delta, rest = -1, id
	} else {
		return AdjustItem{}, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return AdjustItem{}, false
	}
	return AdjustItem{ProductID: id, Delta: delta}, true
}

// ParseDelivery decodes checkout.delivery.<index>@<marker>.
func ParseDelivery(cmd string) (index int, marker string, ok bool) {
	rest, found := strings.CutPrefix(cmd, deliveryPrefix)
	if !found {
		return 0, "", false
	}
	idx, marker, found := strings.Cut(rest, "@")
	if !found || marker == "" {
		return 0, "", false
	}
	index, err := strconv.Atoi(idx)
	if err != nil || index < 0 {
		return 0, "", false
	}
	return index, marker, true
}
