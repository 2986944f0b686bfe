package checkout

import (
	"context"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/cart"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/core/fsm"
	"github.com/posixpascal/knusperity/core/order"
	"github.com/posixpascal/knusperity/ports/automation"
	"github.com/posixpascal/knusperity/ports/chat"
)

// stageFunc runs one automation pipeline stage against a context snapshot.
type stageFunc func(ctx context.Context, deps Deps, snap Context) error

func runConnect(ctx context.Context, deps Deps, _ Context) error {
	return deps.Automation.Connect(ctx)
}

func runTerms(ctx context.Context, deps Deps, _ Context) error {
	return deps.Automation.AcceptTerms(ctx)
}

func runLogin(ctx context.Context, deps Deps, _ Context) error {
	return deps.Automation.Login(ctx)
}

func runPopulate(ctx context.Context, deps Deps, snap Context) error {
	return deps.Automation.PopulateCart(ctx, CombinedItems(snap.Carts))
}

func runAddress(ctx context.Context, deps Deps, _ Context) error {
	return deps.Automation.SetAddress(ctx)
}

func runPayment(ctx context.Context, deps Deps, _ Context) error {
	return deps.Automation.EnterPayment(ctx)
}

// CombinedItems flattens every member's cart into the storefront item list,
// summing quantities of products appearing in multiple carts.
func CombinedItems(carts []CartSnapshot) []automation.Item {
	var items []automation.Item
	index := map[string]int{}
	for _, cs := range carts {
		for _, line := range cs.Items {
			if i, ok := index[line.Product.Link]; ok {
				items[i].Quantity += line.Quantity
				continue
			}
			index[line.Product.Link] = len(items)
			items = append(items, automation.Item{Link: line.Product.Link, Quantity: line.Quantity})
		}
	}
	return items
}

// runStage refreshes the status message, then runs the stage call.
func runStage(deps Deps, _ string, run stageFunc) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		if !snap.StatusMsg.IsZero() {
			_ = deps.Transport.EditMessage(ctx, snap.StatusMsg, snap.Status.Text(), chat.SendOptions{Markdown: true})
		}
		if err := run(ctx, deps, snap); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// renderTally posts (or re-edits) the confirmation tally with confirm/deny
// controls and returns its reference.
func renderTally(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		text := TallyText(snap)
		kb := chat.Keyboard{{
			{Text: "✅ Confirm", Command: events.CmdCheckoutConfirm},
			{Text: "❌ Deny", Command: events.CmdCheckoutDeny},
		}}
		if snap.Tally.IsZero() {
			ref, err := deps.Transport.SendMessage(ctx, snap.ChatID, text, chat.SendOptions{Markdown: true, Keyboard: kb})
			if err != nil {
				return nil, fmt.Errorf("post checkout tally: %w", err)
			}
			return ref, nil
		}
		if err := deps.Transport.EditMessage(ctx, snap.Tally, text, chat.SendOptions{Markdown: true, Keyboard: kb}); err != nil {
			return nil, fmt.Errorf("edit checkout tally: %w", err)
		}
		return snap.Tally, nil
	}
}

// persistOrder removes the tally, writes the durable order record and posts
// the pipeline status message. Returning its ref before the first automation
// stage keeps who-buys-what safe even if automation dies immediately after.
func persistOrder(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		if !snap.Tally.IsZero() {
			_ = deps.Transport.DeleteMessage(ctx, snap.Tally)
		}

		rec := order.Record{ChatID: snap.ChatID}
		for _, cs := range snap.Carts {
			rec.Carts = append(rec.Carts, order.UserCart{
				UserID:   cs.User.ID,
				UserName: cs.User.FirstName,
				Items:    cs.Items,
			})
		}
		if err := deps.Orders.Save(ctx, rec); err != nil {
			return nil, err
		}

		ref, err := deps.Transport.SendMessage(ctx, snap.ChatID, snap.Status.Text(), chat.SendOptions{Markdown: true})
		if err != nil {
			return nil, fmt.Errorf("post checkout status: %w", err)
		}
		return ref, nil
	}
}

// optionsResult is the output of the listDeliveryOptions effect.
type optionsResult struct {
	Options    []automation.DeliveryOption
	Marker     string
	OptionsMsg chat.MessageRef
	WarningMsg chat.MessageRef
}

// listDeliveryOptions fetches the storefront's slots and posts the pick
// keyboard plus a coordination warning. The generated marker invalidates
// stale picks from an earlier list.
func listDeliveryOptions(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		opts, err := deps.Automation.ListDeliveryOptions(ctx)
		if err != nil {
			return nil, err
		}
		if len(opts) == 0 {
			return nil, fmt.Errorf("no delivery options offered")
		}

		marker := gonanoid.Must(6)
		kb := make(chat.Keyboard, 0, len(opts))
		for i, opt := range opts {
			kb = append(kb, []chat.Button{{Text: opt.Label, Command: events.CmdDelivery(i, marker)}})
		}
		optionsMsg, err := deps.Transport.SendMessage(ctx, snap.ChatID,
			"🚚 *Pick a delivery slot*", chat.SendOptions{Markdown: true, Keyboard: kb})
		if err != nil {
			return nil, fmt.Errorf("post delivery options: %w", err)
		}
		warningMsg, err := deps.Transport.SendMessage(ctx, snap.ChatID,
			"One slot counts for the whole group — coordinate before tapping.",
			chat.SendOptions{ReplyTo: optionsMsg.MessageID})
		if err != nil {
			return nil, fmt.Errorf("post delivery warning: %w", err)
		}

		return optionsResult{Options: opts, Marker: marker, OptionsMsg: optionsMsg, WarningMsg: warningMsg}, nil
	}
}

// applyDelivery applies the picked slot and removes the pick UI.
func applyDelivery(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		if snap.Delivery == nil {
			return nil, fmt.Errorf("no delivery option selected")
		}
		if err := deps.Automation.SelectDeliveryOption(ctx, *snap.Delivery); err != nil {
			return nil, err
		}
		_ = deps.Transport.DeleteMessage(ctx, snap.OptionsMsg)
		_ = deps.Transport.DeleteMessage(ctx, snap.WarningMsg)
		return nil, nil
	}
}

// finalSummary fetches the order summary and posts it. The pipeline stops
// here on purpose: submitting the real order stays a human decision.
func finalSummary(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		summary, err := deps.Automation.OrderSummary(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Transport.SendMessage(ctx, snap.ChatID, SummaryText(snap, *summary), chat.SendOptions{Markdown: true}); err != nil {
			return nil, fmt.Errorf("post order summary: %w", err)
		}
		return summary, nil
	}
}

// renderFailsafe posts the manual-order fallback: the final status plus a
// link dump covering every product in every cart. The actor halts after
// this; recovery is a human job.
func renderFailsafe(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		if !snap.StatusMsg.IsZero() {
			_ = deps.Transport.EditMessage(ctx, snap.StatusMsg, snap.Status.Text(), chat.SendOptions{Markdown: true})
		}
		_, err := deps.Transport.SendMessage(ctx, snap.ChatID, FailsafeText(snap), chat.SendOptions{Markdown: true})
		return nil, err
	}
}

// renderAborted replaces the tally with an abort notice.
func renderAborted(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		if snap.Tally.IsZero() {
			return nil, nil
		}
		err := deps.Transport.EditMessage(ctx, snap.Tally,
			"❌ Checkout aborted. Carts stay editable — start again with /checkout.",
			chat.SendOptions{})
		return nil, err
	}
}

// TallyText renders the confirmation tally body.
func TallyText(c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 *Checkout — %d/%d confirmed*\n\n", c.Confirmed.Len(), len(c.Carts))
	var total float64
	for _, cs := range c.Carts {
		mark := "⏳"
		if c.Confirmed.Contains(cs.User.ID) {
			mark = "✅"
		}
		sub := cart.Total(cs.Items)
		total += sub.Amount
		fmt.Fprintf(&b, "%s %s — %s\n", mark, memberName(cs.User), sub)
	}
	fmt.Fprintf(&b, "\n*Group total: %s*", strings.Replace(fmt.Sprintf("%.2f", total), ".", ",", 1)+" €")
	return b.String()
}

// FailsafeText renders the manual-order link dump.
func FailsafeText(c Context) string {
	var b strings.Builder
	b.WriteString("⚠️ *Automated checkout failed.*")
	if c.LastErr != "" {
		fmt.Fprintf(&b, "\n`%s`", c.LastErr)
	}
	b.WriteString("\n\nOrder manually:\n")
	for _, cs := range c.Carts {
		fmt.Fprintf(&b, "\n*%s*\n", memberName(cs.User))
		for _, line := range cs.Items {
			fmt.Fprintf(&b, "• %d × %s — %s\n", line.Quantity, line.Product.Name, line.Product.Link)
		}
	}
	return b.String()
}

// SummaryText renders the final order summary.
func SummaryText(c Context, s automation.Summary) string {
	var b strings.Builder
	b.WriteString("📦 *Order ready to place*\n\n")
	fmt.Fprintf(&b, "Address: %s\nContact: %s\nPayment: %s\n", s.Address, s.Contact, s.Payment)
	if s.Packaging != "" {
		fmt.Fprintf(&b, "Packaging: %s\n", s.Packaging)
	}
	if c.Delivery != nil {
		fmt.Fprintf(&b, "Delivery: %s\n", c.Delivery.Label)
	}
	b.WriteString("\nPer member:\n")
	for _, cs := range c.Carts {
		fmt.Fprintf(&b, "• %s — %s\n", memberName(cs.User), cart.Total(cs.Items))
	}
	if s.TotalPrice != "" {
		fmt.Fprintf(&b, "\n*Storefront total: %s €*", s.TotalPrice)
	}
	b.WriteString("\n\nThe order has *not* been submitted — a human places it.")
	return b.String()
}

func memberName(u chat.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("user %d", u.ID)
}
