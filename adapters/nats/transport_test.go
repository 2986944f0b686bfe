package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/posixpascal/knusperity/ports/chat"
)

func TestTransportRoundTrip(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))

	// fake platform bridge on the serving side
	fake := chat.NewFakeTransport()
	nc, release, err := connect()
	require.NoError(t, err)
	t.Cleanup(release)
	subs, err := ServeActions(nc, "chat.actions", fake, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	})

	tr, err := NewTransport(TransportConfig{
		Connect: connect,
		Subject: "chat.actions",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	ctx := t.Context()

	ref, err := tr.SendMessage(ctx, 100, "🛒 *Cart — Pia*", chat.SendOptions{Markdown: true})
	require.NoError(t, err)
	require.Equal(t, chat.ChatID(100), ref.ChatID)
	require.NotZero(t, ref.MessageID)

	require.NoError(t, tr.EditMessage(ctx, ref, "🛒 *Cart — Pia* (updated)", chat.SendOptions{Markdown: true}))
	require.NoError(t, tr.DeleteMessage(ctx, ref))

	msg, ok := fake.Message(ref)
	require.True(t, ok)
	require.True(t, msg.Deleted)
	require.Equal(t, 1, msg.Edits)
}

func TestTransportPropagatesErrors(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))

	fake := chat.NewFakeTransport()
	fake.SendErr = errTooManyRequests

	nc, release, err := connect()
	require.NoError(t, err)
	t.Cleanup(release)
	_, err = ServeActions(nc, "chat.actions", fake, nil)
	require.NoError(t, err)

	tr, err := NewTransport(TransportConfig{Connect: connect, Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	_, err = tr.SendMessage(t.Context(), 100, "hi", chat.SendOptions{})
	require.ErrorContains(t, err, "too many requests")
}

var errTooManyRequests = errTest("too many requests")

type errTest string

func (e errTest) Error() string { return string(e) }
