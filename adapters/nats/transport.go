package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/posixpascal/knusperity/internal/codec"
	"github.com/posixpascal/knusperity/ports/chat"
)

// TransportConfig configures the outbound chat transport.
type TransportConfig struct {
	Connect Connector
	Log     *slog.Logger

	// Subject is the action subject prefix, e.g. "chat.actions" ->
	// chat.actions.send / .edit / .delete. Defaults to "chat.actions".
	Subject string

	// Timeout bounds one request when the caller's context has no
	// deadline. Defaults to 10s.
	Timeout time.Duration

	Codec codec.Codec
}

// Transport implements chat.Transport over NATS request/reply. A
// platform bridge subscribed on the action subjects performs the calls
// against the real chat service and replies with the result.
type Transport struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	subject string
	timeout time.Duration
	codec   codec.Codec
}

type sendRequest struct {
	Chat chat.ChatID      `json:"chat"`
	Text string           `json:"text"`
	Opts chat.SendOptions `json:"opts"`
}

type editRequest struct {
	Ref  chat.MessageRef  `json:"ref"`
	Text string           `json:"text"`
	Opts chat.SendOptions `json:"opts"`
}

type deleteRequest struct {
	Ref chat.MessageRef `json:"ref"`
}

// actionReply is the wire reply for every action.
type actionReply struct {
	Ref chat.MessageRef `json:"ref,omitempty"`
	Err string          `json:"err,omitempty"`
}

// NewTransport connects and returns the transport.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.Subject == "" {
		cfg.Subject = "chat.actions"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	enc := cfg.Codec
	if enc == nil {
		enc = codec.JSON()
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}
	return &Transport{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("transport", "nats")),
		subject: cfg.Subject,
		timeout: cfg.Timeout,
		codec:   enc,
	}, nil
}

// Close releases the connection lease.
func (t *Transport) Close() { t.closeNc() }

func (t *Transport) request(ctx context.Context, action string, req any) (chat.MessageRef, error) {
	payload, err := t.codec.Marshal(req)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("encode %s: %w", action, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	msg, err := t.nc.RequestWithContext(ctx, t.subject+"."+action, payload)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("chat %s: %w", action, err)
	}
	var reply actionReply
	if err := t.codec.Unmarshal(msg.Data, &reply); err != nil {
		return chat.MessageRef{}, fmt.Errorf("decode %s reply: %w", action, err)
	}
	if reply.Err != "" {
		return chat.MessageRef{}, errors.New(reply.Err)
	}
	return reply.Ref, nil
}

func (t *Transport) SendMessage(ctx context.Context, chatID chat.ChatID, text string, opts chat.SendOptions) (chat.MessageRef, error) {
	return t.request(ctx, "send", sendRequest{Chat: chatID, Text: text, Opts: opts})
}

func (t *Transport) EditMessage(ctx context.Context, ref chat.MessageRef, text string, opts chat.SendOptions) error {
	_, err := t.request(ctx, "edit", editRequest{Ref: ref, Text: text, Opts: opts})
	return err
}

func (t *Transport) DeleteMessage(ctx context.Context, ref chat.MessageRef) error {
	_, err := t.request(ctx, "delete", deleteRequest{Ref: ref})
	return err
}

var _ chat.Transport = (*Transport)(nil)

// ServeActions subscribes on the action subjects and performs each
// request with impl, replying with the result. The platform bridge runs
// this against its real chat client; tests run it against a fake.
func ServeActions(nc *natsgo.Conn, subject string, impl chat.Transport, log *slog.Logger) ([]*natsgo.Subscription, error) {
	if subject == "" {
		subject = "chat.actions"
	}
	if log == nil {
		log = slog.Default()
	}
	enc := codec.JSON()

	reply := func(m *natsgo.Msg, ref chat.MessageRef, err error) {
		out := actionReply{Ref: ref}
		if err != nil {
			out.Err = err.Error()
		}
		data, _ := enc.Marshal(out)
		if err := m.Respond(data); err != nil {
			log.Error("failed to publish reply", slog.Any("error", err))
		}
	}

	var subs []*natsgo.Subscription
	subscribe := func(action string, handle func(m *natsgo.Msg)) error {
		sub, err := nc.Subscribe(subject+"."+action, handle)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if err := subscribe("send", func(m *natsgo.Msg) {
		var req sendRequest
		if err := enc.Unmarshal(m.Data, &req); err != nil {
			reply(m, chat.MessageRef{}, err)
			return
		}
		ref, err := impl.SendMessage(context.Background(), req.Chat, req.Text, req.Opts)
		reply(m, ref, err)
	}); err != nil {
		return nil, err
	}
	if err := subscribe("edit", func(m *natsgo.Msg) {
		var req editRequest
		if err := enc.Unmarshal(m.Data, &req); err != nil {
			reply(m, chat.MessageRef{}, err)
			return
		}
		reply(m, req.Ref, impl.EditMessage(context.Background(), req.Ref, req.Text, req.Opts))
	}); err != nil {
		return nil, err
	}
	if err := subscribe("delete", func(m *natsgo.Msg) {
		var req deleteRequest
		if err := enc.Unmarshal(m.Data, &req); err != nil {
			reply(m, chat.MessageRef{}, err)
			return
		}
		reply(m, req.Ref, impl.DeleteMessage(context.Background(), req.Ref))
	}); err != nil {
		return nil, err
	}
	return subs, nil
}
