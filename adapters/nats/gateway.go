package nats

import (
	"context"
	"errors"
	"log/slog"

	natsgo "github.com/nats-io/nats.go"

	"github.com/posixpascal/knusperity/internal/codec"
	"github.com/posixpascal/knusperity/ports/chat"
)

// Handler consumes decoded chat updates. *bot.Bot satisfies it.
type Handler interface {
	HandleMessage(ctx context.Context, msg chat.InboundMessage) error
	HandleCallback(ctx context.Context, cb chat.InboundCallback) error
}

// GatewayConfig configures the inbound chat-update gateway.
type GatewayConfig struct {
	Connect Connector
	Handler Handler

	// Subject is the update subject prefix. Messages arrive on
	// "<Subject>.message", button presses on "<Subject>.callback".
	// Defaults to "chat.updates".
	Subject string

	Logger *slog.Logger
	Codec  codec.Codec
}

// Gateway subscribes to chat-update subjects and feeds the handler.
// Updates for one chat must be published in order; NATS preserves
// per-subject ordering for a single subscriber, which is all the
// conversation trees need.
type Gateway struct {
	log   *slog.Logger
	codec codec.Codec
	subs  []*natsgo.Subscription
	close closeFunc
}

// NewGateway connects and subscribes. Close releases both.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "chat.updates"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	enc := cfg.Codec
	if enc == nil {
		enc = codec.JSON()
	}

	nc, closeCon, err := doConnect()
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		log:   log.With(slog.String("component", "gateway")),
		codec: enc,
		close: closeCon,
	}

	msgSub, err := nc.Subscribe(subject+".message", func(m *natsgo.Msg) {
		var msg chat.InboundMessage
		if err := g.codec.Unmarshal(m.Data, &msg); err != nil {
			g.log.Warn("dropping malformed message update", slog.Any("error", err))
			return
		}
		if err := cfg.Handler.HandleMessage(context.Background(), msg); err != nil {
			g.log.Error("message update failed",
				slog.Int64("chat_id", int64(msg.Chat.ID)),
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		closeCon()
		return nil, err
	}
	g.subs = append(g.subs, msgSub)

	cbSub, err := nc.Subscribe(subject+".callback", func(m *natsgo.Msg) {
		var cb chat.InboundCallback
		if err := g.codec.Unmarshal(m.Data, &cb); err != nil {
			g.log.Warn("dropping malformed callback update", slog.Any("error", err))
			return
		}
		if err := cfg.Handler.HandleCallback(context.Background(), cb); err != nil {
			g.log.Error("callback update failed",
				slog.Int64("chat_id", int64(cb.Chat.ID)),
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		_ = msgSub.Unsubscribe()
		closeCon()
		return nil, err
	}
	g.subs = append(g.subs, cbSub)

	g.log.Info("listening for chat updates", slog.String("subject", subject))
	return g, nil
}

// Close drains the subscriptions and releases the connection lease.
func (g *Gateway) Close() {
	for _, sub := range g.subs {
		_ = sub.Drain()
	}
	g.close()
}
