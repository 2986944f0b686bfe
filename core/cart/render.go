package cart

import (
	"fmt"
	"strings"

	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/ports/catalog"
	"github.com/posixpascal/knusperity/ports/chat"
)

// Total sums the cart's line prices.
func Total(items []LineItem) catalog.Price {
	var total catalog.Price
	for _, item := range items {
		line := item.Product.Price.Mul(item.Quantity)
		total.Amount += line.Amount
		if total.Currency == "" {
			total.Currency = line.Currency
		}
	}
	return total
}

// RenderText builds the anchor message body for the current cart state.
func RenderText(c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛒 *Cart — %s*\n\n", displayName(c.Owner))

	if len(c.Items) == 0 {
		b.WriteString("Your cart is empty. Paste product links or search by name to add items.")
		return b.String()
	}

	for _, item := range c.Items {
		fmt.Fprintf(&b, "%d × %s (%s) — %s\n",
			item.Quantity,
			item.Product.Name,
			item.Product.TextualAmount,
			item.Product.Price.Mul(item.Quantity),
		)
	}
	fmt.Fprintf(&b, "\n*Total: %s*", Total(c.Items))

	if n := totalNutrition(c.Items); n.EnergyKCal > 0 {
		fmt.Fprintf(&b, "\n_≈ %.0f kcal · %.0f g protein · %.0f g sugar_",
			n.EnergyKCal, n.Protein, n.Sugars)
	}
	return b.String()
}

// totalNutrition estimates the cart's combined nutrition from each product's
// per-100 values scaled to its textual amount.
func totalNutrition(items []LineItem) catalog.Nutrition {
	var sum catalog.Nutrition
	for _, item := range items {
		one := item.Product.TotalNutrition()
		for q := 0; q < item.Quantity; q++ {
			sum = sum.Add(one)
		}
	}
	return sum
}

// RenderKeyboard builds one inc/dec button row per line item.
func RenderKeyboard(c Context) chat.Keyboard {
	if len(c.Items) == 0 {
		return nil
	}
	kb := make(chat.Keyboard, 0, len(c.Items))
	for _, item := range c.Items {
		name := shorten(item.Product.Name, 24)
		row := []chat.Button{
			{Text: "➖ " + name, Command: events.CmdCartDec(item.Product.ID)},
			{Text: "➕ " + name, Command: events.CmdCartInc(item.Product.ID)},
		}
		if item.Product.Link != "" {
			row = append(row, chat.Button{Text: "🔗", URL: item.Product.Link})
		}
		kb = append(kb, row)
	}
	return kb
}

func displayName(u chat.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("user %d", u.ID)
}

func shorten(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
