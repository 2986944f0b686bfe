// Package search implements the per-query search actor. Each free-text
// product query spawns one search actor that renders a single browsable
// product card and pages through results one product at a time.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/events"
	"github.com/posixpascal/knusperity/core/fsm"
	"github.com/posixpascal/knusperity/ports/catalog"
	"github.com/posixpascal/knusperity/ports/chat"
)

// Context is the search actor's state machine context.
type Context struct {
	ChatID  chat.ChatID
	From    chat.User
	ReplyTo chat.MessageID
	Query   string
	Page    int
	Card    chat.MessageRef
	Product catalog.Product
}

// Deps are the external services a search machine needs.
type Deps struct {
	Transport chat.Transport
	Catalog   catalog.Service
}

// State names.
const (
	StateSearching = "searching"
	StateIdle      = "idle"
)

// New creates a search actor for one query, starting at the first page.
func New(def *fsm.Definition[Context], chatID chat.ChatID, from chat.User, replyTo chat.MessageID, query string) *fsm.Instance[Context] {
	return fsm.NewInstance(def, Context{
		ChatID:  chatID,
		From:    from,
		ReplyTo: replyTo,
		Query:   query,
		Page:    1,
	})
}

// Machine builds the search state machine definition.
func Machine(deps Deps) *fsm.Definition[Context] {
	return &fsm.Definition[Context]{
		Name:    "search",
		Initial: StateSearching,
		States: map[string]fsm.State[Context]{
			StateSearching: {
				Invoke: &fsm.Invoke[Context]{
					Run: lookupAndRender(deps),
					OnDone: fsm.Next[Context]{
						Actions: []fsm.Action[Context]{rememberCard, notifyParent},
						Target:  StateIdle,
					},
					OnError: &fsm.Next[Context]{
						Actions: []fsm.Action[Context]{warnSearch},
						Target:  StateIdle,
					},
				},
			},
			StateIdle: {
				On: []fsm.Rule[Context]{
					{
						Event:   events.PageNext{}.EventType(),
						Actions: []fsm.Action[Context]{pageBy(1)},
						Target:  StateSearching,
					},
					{
						// the page number never drops below 1; a prev press on
						// the first page is dropped
						Event:   events.PagePrev{}.EventType(),
						Guard:   func(c *Context, _ actor.Event) bool { return c.Page > 1 },
						Actions: []fsm.Action[Context]{pageBy(-1)},
						Target:  StateSearching,
					},
				},
			},
		},
	}
}

// cardResult is the output of a successful lookupAndRender effect.
type cardResult struct {
	Ref     chat.MessageRef
	Product catalog.Product
}

func pageBy(delta int) fsm.Action[Context] {
	return func(step *fsm.Step[Context], _ actor.Event) {
		step.Context().Page += delta
	}
}

func rememberCard(step *fsm.Step[Context], ev actor.Event) {
	done, ok := ev.(fsm.Done)
	if !ok {
		return
	}
	if res, ok := done.Output.(cardResult); ok {
		step.Context().Card = res.Ref
		step.Context().Product = res.Product
	}
}

// notifyParent tells the root which message the card lives on and which
// product it currently shows, so cart.add presses on that message can be
// enriched and routed without reading this actor's state.
func notifyParent(step *fsm.Step[Context], ev actor.Event) {
	done, ok := ev.(fsm.Done)
	if !ok {
		return
	}
	res, ok := done.Output.(cardResult)
	if !ok {
		return
	}
	step.Actor().SendParent(events.SearchRendered{
		Addr:      step.Actor().Self(),
		MessageID: res.Ref.MessageID,
		Product:   res.Product,
	})
}

func warnSearch(step *fsm.Step[Context], ev actor.Event) {
	if fail, ok := ev.(fsm.Fail); ok {
		step.Log().Warn("search lookup failed",
			slog.String("query", step.Context().Query),
			slog.Int("page", step.Context().Page),
			slog.Any("error", fail.Err),
		)
	}
}

// lookupAndRender resolves (query, page) and renders the product card. The
// first render posts a placeholder reply that is then edited, so later pages
// reuse the same message.
func lookupAndRender(deps Deps) fsm.Effect[Context] {
	return func(ctx context.Context, snap Context, _ actor.Event) (any, error) {
		card := snap.Card
		if card.IsZero() {
			ref, err := deps.Transport.SendMessage(ctx, snap.ChatID, "🔎 Searching…", chat.SendOptions{
				ReplyTo: snap.ReplyTo,
			})
			if err != nil {
				return nil, fmt.Errorf("post search placeholder: %w", err)
			}
			card = ref
		}

		p, err := deps.Catalog.Search(ctx, snap.Query, snap.Page)
		if err != nil {
			_ = deps.Transport.EditMessage(ctx, card,
				fmt.Sprintf("🔎 No results for *%s* (page %d).", snap.Query, snap.Page),
				chat.SendOptions{Markdown: true, Keyboard: failureKeyboard(snap.Page)})
			return nil, fmt.Errorf("search %q page %d: %w", snap.Query, snap.Page, err)
		}

		err = deps.Transport.EditMessage(ctx, card, CardText(*p, snap.Page), chat.SendOptions{
			Markdown: true,
			Keyboard: CardKeyboard(*p),
			PhotoURL: p.ImagePath,
		})
		if err != nil {
			return nil, fmt.Errorf("render search card: %w", err)
		}
		return cardResult{Ref: card, Product: *p}, nil
	}
}

// CardText builds the product card body.
func CardText(p catalog.Product, page int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 *%s*\n%s — %s", p.Name, p.TextualAmount, p.Price)
	if n := p.TotalNutrition(); n.EnergyKCal > 0 {
		fmt.Fprintf(&b, "\n_≈ %.0f kcal per %s_", n.EnergyKCal, p.TextualAmount)
	}
	fmt.Fprintf(&b, "\n\nResult %d", page)
	return b.String()
}

// CardKeyboard builds the paging and add controls for a product card.
func CardKeyboard(p catalog.Product) chat.Keyboard {
	kb := chat.Keyboard{{
		{Text: "⬅️", Command: events.CmdSearchPrev},
		{Text: "🛒 Add", Command: events.CmdCartAdd},
		{Text: "➡️", Command: events.CmdSearchNext},
	}}
	if p.Link != "" {
		kb = append(kb, []chat.Button{{Text: "🔗 Details", URL: p.Link}})
	}
	return kb
}

func failureKeyboard(page int) chat.Keyboard {
	if page <= 1 {
		return nil
	}
	return chat.Keyboard{{{Text: "⬅️ Back", Command: events.CmdSearchPrev}}}
}
