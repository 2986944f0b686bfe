// Package checkout implements the conversation's checkout actor: a
// confirmation quorum over the frozen cart snapshots followed by the staged
// storefront automation pipeline. At most one checkout runs per conversation.
package checkout

import (
	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/cart"
	"github.com/posixpascal/knusperity/core/ds"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/core/fsm"
	"github.com/posixpascal/knusperity/core/order"
	"github.com/posixpascal/knusperity/ports/automation"
	"github.com/posixpascal/knusperity/ports/chat"
)

// CartSnapshot is one member's cart frozen at checkout start. Later cart
// edits do not leak into a running checkout.
type CartSnapshot struct {
	User  chat.User
	Items []cart.LineItem
}

// Context is the checkout actor's state machine context.
type Context struct {
	ChatID    chat.ChatID
	Carts     []CartSnapshot
	Confirmed *ds.Set[chat.UserID]
	Removed   []chat.UserID
	Status    Status
	LastErr   string

	Options  []automation.DeliveryOption
	Marker   string
	Delivery *automation.DeliveryOption

	Tally      chat.MessageRef
	StatusMsg  chat.MessageRef
	OptionsMsg chat.MessageRef
	WarningMsg chat.MessageRef
	Summary    *automation.Summary
}

// Deps are the external services a checkout machine needs.
type Deps struct {
	Transport  chat.Transport
	Automation automation.Service
	Orders     *order.Store
}

// State names. Confirmation bounces between preparing and confirming until
// the quorum completes; the pipeline then runs one stage per state.
const (
	StatePreparing     = "preparing"
	StateConfirming    = "confirming"
	StatePersisting    = "persisting"
	StateConnect       = "connect"
	StateTerms         = "terms"
	StateLogin         = "login"
	StatePopulate      = "populate"
	StateAddress       = "address"
	StateDeliveryList  = "delivery-list"
	StateDeliveryPick  = "delivery-pick"
	StateDeliveryApply = "delivery-apply"
	StatePayment       = "payment"
	StateFinal         = "final"
	StateDone          = "done"
	StateFailed        = "failed"
	StateAborted       = "aborted"
)

// New creates a checkout actor over the given cart snapshots.
func New(def *fsm.Definition[Context], chatID chat.ChatID, carts []CartSnapshot) *fsm.Instance[Context] {
	return fsm.NewInstance(def, Context{
		ChatID:    chatID,
		Carts:     carts,
		Confirmed: ds.NewSet[chat.UserID](),
		Status:    NewStatus(),
	})
}

// Machine builds the checkout state machine definition.
func Machine(deps Deps) *fsm.Definition[Context] {
	confirmRules := []fsm.Rule[Context]{
		{
			Event:   events.ConfirmCheckout{}.EventType(),
			Guard:   completesQuorum,
			Actions: acts(addConfirmation),
			Target:  StatePersisting,
		},
		{
			Event:   events.ConfirmCheckout{}.EventType(),
			Guard:   isParticipant,
			Actions: acts(addConfirmation),
			Target:  StatePreparing,
		},
		{
			Event:   events.DenyCheckout{}.EventType(),
			Guard:   isParticipant,
			Actions: acts(dropDenier),
			Target:  StateAborted,
		},
	}

	return &fsm.Definition[Context]{
		Name:     "checkout",
		Initial:  StatePreparing,
		Snapshot: snapshot,
		States: map[string]fsm.State[Context]{
			StatePreparing: {
				Invoke: &fsm.Invoke[Context]{
					Run:     renderTally(deps),
					OnDone:  fsm.Next[Context]{Actions: acts(rememberTally), Target: StateConfirming},
					OnError: &fsm.Next[Context]{Target: StateConfirming},
				},
				// confirms racing the tally render still count
				On: confirmRules,
			},
			StateConfirming: {
				On: confirmRules,
			},
			StatePersisting: {
				Invoke: &fsm.Invoke[Context]{
					Run:     persistOrder(deps),
					OnDone:  fsm.Next[Context]{Actions: acts(rememberStatusMsg), Target: StateConnect},
					OnError: &fsm.Next[Context]{Actions: acts(rememberFailure), Target: StateFailed},
				},
			},

			StateConnect:  stage(deps, FlagConnected, StateTerms, runConnect),
			StateTerms:    stage(deps, FlagTerms, StateLogin, runTerms),
			StateLogin:    stage(deps, FlagLoggedIn, StatePopulate, runLogin),
			StatePopulate: stage(deps, FlagProducts, StateAddress, runPopulate),
			StateAddress:  stage(deps, FlagAddress, StateDeliveryList, runAddress),

			StateDeliveryList: {
				Invoke: &fsm.Invoke[Context]{
					Run:     listDeliveryOptions(deps),
					OnDone:  fsm.Next[Context]{Actions: acts(rememberOptions), Target: StateDeliveryPick},
					OnError: &fsm.Next[Context]{Actions: acts(failFlag(FlagDelivery), rememberFailure), Target: StateFailed},
				},
			},
			StateDeliveryPick: {
				On: []fsm.Rule[Context]{
					{
						Event:   events.SelectDelivery{}.EventType(),
						Guard:   validDeliveryPick,
						Actions: acts(rememberPick),
						Target:  StateDeliveryApply,
					},
				},
			},
			StateDeliveryApply: {
				Invoke: &fsm.Invoke[Context]{
					Run:     applyDelivery(deps),
					OnDone:  fsm.Next[Context]{Actions: acts(okFlag(FlagDelivery)), Target: StatePayment},
					OnError: &fsm.Next[Context]{Actions: acts(failFlag(FlagDelivery), rememberFailure), Target: StateFailed},
				},
			},

			StatePayment: stage(deps, FlagPayment, StateFinal, runPayment),

			StateFinal: {
				Invoke: &fsm.Invoke[Context]{
					Run: finalSummary(deps),
					OnDone: fsm.Next[Context]{
						Actions: acts(okFlag(FlagConfirmation), rememberSummary, notifyCompleted),
						Target:  StateDone,
					},
					OnError: &fsm.Next[Context]{Actions: acts(failFlag(FlagConfirmation), rememberFailure), Target: StateFailed},
				},
			},

			StateDone: {},
			StateFailed: {
				Invoke: &fsm.Invoke[Context]{
					Run:    renderFailsafe(deps),
					OnDone: fsm.Next[Context]{},
				},
			},
			StateAborted: {
				Entry: acts(notifyAborted),
				Invoke: &fsm.Invoke[Context]{
					Run:    renderAborted(deps),
					OnDone: fsm.Next[Context]{},
				},
			},
		},
	}
}

// stage builds one automation pipeline state: run the stage call, flip its
// status flag, advance or fail-safe.
func stage(deps Deps, flag string, next string, run stageFunc) fsm.State[Context] {
	return fsm.State[Context]{
		Invoke: &fsm.Invoke[Context]{
			Run:     runStage(deps, flag, run),
			OnDone:  fsm.Next[Context]{Actions: acts(okFlag(flag)), Target: next},
			OnError: &fsm.Next[Context]{Actions: acts(failFlag(flag), rememberFailure), Target: StateFailed},
		},
	}
}

func snapshot(c Context) Context {
	carts := make([]CartSnapshot, len(c.Carts))
	for i, cs := range c.Carts {
		carts[i] = CartSnapshot{User: cs.User, Items: append([]cart.LineItem(nil), cs.Items...)}
	}
	c.Carts = carts
	if c.Confirmed != nil {
		c.Confirmed = c.Confirmed.Copy()
	}
	c.Status = c.Status.Copy()
	c.Options = append([]automation.DeliveryOption(nil), c.Options...)
	return c
}

func acts(a ...fsm.Action[Context]) []fsm.Action[Context] { return a }

// ---- guards ----

func isParticipant(c *Context, ev actor.Event) bool {
	var from chat.User
	switch e := ev.(type) {
	case events.ConfirmCheckout:
		from = e.From
	case events.DenyCheckout:
		from = e.From
	default:
		return false
	}
	for _, cs := range c.Carts {
		if cs.User.ID == from.ID {
			return true
		}
	}
	return false
}

// completesQuorum holds when this confirmation makes the set cover every
// snapshotted cart owner.
func completesQuorum(c *Context, ev actor.Event) bool {
	e, ok := ev.(events.ConfirmCheckout)
	if !ok || !isParticipant(c, ev) {
		return false
	}
	after := c.Confirmed.Copy()
	after.Add(e.From.ID)
	return after.Len() == len(c.Carts)
}

func validDeliveryPick(c *Context, ev actor.Event) bool {
	e, ok := ev.(events.SelectDelivery)
	if !ok {
		return false
	}
	// the marker pins the pick to the option list it was rendered from
	return e.Marker == c.Marker && e.Index >= 0 && e.Index < len(c.Options)
}

// ---- actions ----

func addConfirmation(step *fsm.Step[Context], ev actor.Event) {
	if e, ok := ev.(events.ConfirmCheckout); ok {
		step.Context().Confirmed.Add(e.From.ID)
	}
}

// dropDenier removes the denying member's cart and confirmation before the
// abort propagates, so a restarted checkout excludes them.
func dropDenier(step *fsm.Step[Context], ev actor.Event) {
	e, ok := ev.(events.DenyCheckout)
	if !ok {
		return
	}
	c := step.Context()
	c.Confirmed.Remove(e.From.ID)
	c.Removed = append(c.Removed, e.From.ID)
	for i, cs := range c.Carts {
		if cs.User.ID == e.From.ID {
			c.Carts = append(c.Carts[:i], c.Carts[i+1:]...)
			break
		}
	}
}

func rememberTally(step *fsm.Step[Context], ev actor.Event) {
	if done, ok := ev.(fsm.Done); ok {
		if ref, ok := done.Output.(chat.MessageRef); ok {
			step.Context().Tally = ref
		}
	}
}

func rememberStatusMsg(step *fsm.Step[Context], ev actor.Event) {
	if done, ok := ev.(fsm.Done); ok {
		if ref, ok := done.Output.(chat.MessageRef); ok {
			step.Context().StatusMsg = ref
		}
	}
}

func rememberOptions(step *fsm.Step[Context], ev actor.Event) {
	done, ok := ev.(fsm.Done)
	if !ok {
		return
	}
	if out, ok := done.Output.(optionsResult); ok {
		c := step.Context()
		c.Options = out.Options
		c.Marker = out.Marker
		c.OptionsMsg = out.OptionsMsg
		c.WarningMsg = out.WarningMsg
	}
}

func rememberPick(step *fsm.Step[Context], ev actor.Event) {
	if e, ok := ev.(events.SelectDelivery); ok {
		opt := step.Context().Options[e.Index]
		step.Context().Delivery = &opt
	}
}

func rememberSummary(step *fsm.Step[Context], ev actor.Event) {
	if done, ok := ev.(fsm.Done); ok {
		if s, ok := done.Output.(*automation.Summary); ok {
			step.Context().Summary = s
		}
	}
}

func rememberFailure(step *fsm.Step[Context], ev actor.Event) {
	if fail, ok := ev.(fsm.Fail); ok && fail.Err != nil {
		step.Context().LastErr = fail.Err.Error()
	}
}

func okFlag(name string) fsm.Action[Context] {
	return func(step *fsm.Step[Context], _ actor.Event) {
		step.Context().Status.Set(name, FlagOK)
	}
}

func failFlag(name string) fsm.Action[Context] {
	return func(step *fsm.Step[Context], _ actor.Event) {
		step.Context().Status.Set(name, FlagFailed)
	}
}

func notifyAborted(step *fsm.Step[Context], _ actor.Event) {
	step.Actor().SendParent(events.CheckoutAborted{
		Removed: append([]chat.UserID(nil), step.Context().Removed...),
	})
}

func notifyCompleted(step *fsm.Step[Context], _ actor.Event) {
	step.Actor().SendParent(events.CheckoutCompleted{})
}
