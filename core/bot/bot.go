// Package bot is the composition root: it owns the conversation registry,
// builds the machine definitions once, and turns inbound transport updates
// into events for the right conversation tree.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/cart"
	"github.com/posixpascal/knusperity/core/checkout"
	"github.com/posixpascal/knusperity/core/convo"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/core/fsm"
	"github.com/posixpascal/knusperity/core/order"
	"github.com/posixpascal/knusperity/core/search"
	"github.com/posixpascal/knusperity/internal/links"
	"github.com/posixpascal/knusperity/ports/automation"
	"github.com/posixpascal/knusperity/ports/catalog"
	"github.com/posixpascal/knusperity/ports/chat"
)

// Options configures a Bot. Transport, Catalog, Automation and Orders are
// required; the rest defaults.
type Options struct {
	Transport  chat.Transport
	Catalog    catalog.Service
	Automation automation.Service
	Orders     *order.Store

	// Hosts are the storefront hostnames recognized in pasted links.
	Hosts []string

	Context              context.Context
	Logger               *slog.Logger
	Metrics              actor.TreeMetrics
	MaxConcurrentEffects int
}

// Bot routes inbound chat updates into per-conversation actor trees.
type Bot struct {
	opt      Options
	log      *slog.Logger
	registry *actor.Registry
	convoDef *fsm.Definition[convo.Context]
}

// New validates the options and builds the shared machine definitions.
func New(opt Options) (*Bot, error) {
	switch {
	case opt.Transport == nil:
		return nil, errors.New("bot: transport is required")
	case opt.Catalog == nil:
		return nil, errors.New("bot: catalog is required")
	case opt.Automation == nil:
		return nil, errors.New("bot: automation is required")
	case opt.Orders == nil:
		return nil, errors.New("bot: order store is required")
	}
	if opt.Context == nil {
		opt.Context = context.Background()
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}

	convoDef := convo.Machine(convo.Deps{
		Transport: opt.Transport,
		Carts:     cart.Machine(cart.Deps{Transport: opt.Transport, Catalog: opt.Catalog}),
		Searches:  search.Machine(search.Deps{Transport: opt.Transport, Catalog: opt.Catalog}),
		Checkouts: checkout.Machine(checkout.Deps{
			Transport:  opt.Transport,
			Automation: opt.Automation,
			Orders:     opt.Orders,
		}),
	})

	return &Bot{
		opt:      opt,
		log:      opt.Logger.With(slog.String("component", "bot")),
		registry: actor.NewRegistry(),
		convoDef: convoDef,
	}, nil
}

// HandleMessage dispatches one free-text message.
func (b *Bot) HandleMessage(ctx context.Context, msg chat.InboundMessage) error {
	ev := b.parseMessage(msg)
	if ev == nil {
		return nil
	}
	tree, err := b.tree(msg.Chat)
	if err != nil {
		return err
	}
	return tree.Send(ctx, events.ConversationAddr(), ev)
}

// HandleCallback dispatches one keyboard press.
func (b *Bot) HandleCallback(ctx context.Context, cb chat.InboundCallback) error {
	tree, err := b.tree(cb.Chat)
	if err != nil {
		return err
	}
	return tree.Send(ctx, events.ConversationAddr(), events.CallbackPressed{
		From:      cb.From,
		MessageID: cb.MessageID,
		Command:   cb.Command,
	})
}

// Conversations returns the number of live conversation trees.
func (b *Bot) Conversations() int { return b.registry.Len() }

// Shutdown stops every conversation tree.
func (b *Bot) Shutdown() { b.registry.StopAll() }

// tree resolves the conversation tree for a chat, creating it on the first
// inbound event. Creation races resolve to a single winner inside the
// registry.
func (b *Bot) tree(c chat.Chat) (*actor.Tree, error) {
	key := strconv.FormatInt(int64(c.ID), 10)
	tree, created, err := b.registry.GetOrCreate(key, func() (*actor.Tree, error) {
		t := actor.NewTree(actor.TreeOptions{
			Name:                 "chat-" + key,
			Context:              b.opt.Context,
			Logger:               b.opt.Logger,
			Metrics:              b.opt.Metrics,
			MaxConcurrentEffects: b.opt.MaxConcurrentEffects,
		})
		if err := t.SpawnRoot(events.ConversationAddr(), convo.New(b.convoDef, c)); err != nil {
			t.Stop()
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		b.log.Info("conversation started",
			slog.String("chat", key),
			slog.String("title", c.Title),
			slog.Int("conversations", b.registry.Len()),
		)
	}
	return tree, nil
}

// parseMessage maps a free-text message onto a conversation event. Unknown
// slash commands are dropped.
func (b *Bot) parseMessage(msg chat.InboundMessage) actor.Event {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		// group chats suffix commands with the bot name
		cmd, _, _ = strings.Cut(cmd, "@")
		switch cmd {
		case "/help", "/start":
			return events.HelpRequested{From: msg.From}
		case "/order":
			return events.StartOrder{From: msg.From}
		case "/checkout":
			return events.OpenCheckout{From: msg.From}
		case "/reset":
			return events.ResetRequested{From: msg.From}
		default:
			b.log.Debug("unknown command", slog.String("command", cmd))
			return nil
		}
	}

	if ids := links.Extract(text, b.opt.Hosts); len(ids) > 0 {
		return events.LinkPasted{From: msg.From, MessageID: msg.MessageID, ProductIDs: ids}
	}

	return events.SearchRequested{From: msg.From, MessageID: msg.MessageID, Query: text}
}
