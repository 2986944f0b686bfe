// Package chat defines the boundary to the group chat transport. The core
// only ever sends, edits and deletes messages and receives parsed inbound
// updates; the wire protocol behind this interface is someone else's job.
package chat

import "context"

type (
	ChatID    int64
	UserID    int64
	MessageID int64
)

// User is the chat-level identity of a group member.
type User struct {
	ID        UserID `json:"id"`
	FirstName string `json:"firstName"`
	Username  string `json:"username,omitempty"`
}

// Chat identifies one group conversation.
type Chat struct {
	ID    ChatID `json:"id"`
	Title string `json:"title,omitempty"`
}

// MessageRef points at a message the bot has posted.
type MessageRef struct {
	ChatID    ChatID    `json:"chatId"`
	MessageID MessageID `json:"messageId"`
}

// IsZero reports whether the reference is unset.
func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

// Button is one inline keyboard button. Exactly one of Command (callback
// data) or URL should be set.
type Button struct {
	Text    string `json:"text"`
	Command string `json:"command,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Keyboard is an inline keyboard: rows of buttons.
type Keyboard [][]Button

// SendOptions tweak an outgoing message.
type SendOptions struct {
	ReplyTo   MessageID `json:"replyTo,omitempty"`
	Keyboard  Keyboard  `json:"keyboard,omitempty"`
	Markdown  bool      `json:"markdown,omitempty"`
	Protected bool      `json:"protected,omitempty"`
	// PhotoURL turns the message into a photo with the text as caption.
	PhotoURL string `json:"photoUrl,omitempty"`
}

// Transport is the outbound chat surface consumed by the actors.
type Transport interface {
	SendMessage(ctx context.Context, chat ChatID, text string, opts SendOptions) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, text string, opts SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
}

// InboundMessage is a parsed free-text message from a group member.
type InboundMessage struct {
	Chat      Chat      `json:"chat"`
	From      User      `json:"from"`
	MessageID MessageID `json:"messageId"`
	Text      string    `json:"text"`
}

// InboundCallback is a button press. Command carries the callback data
// string; MessageID is the message the button lives on.
type InboundCallback struct {
	Chat      Chat      `json:"chat"`
	From      User      `json:"from"`
	MessageID MessageID `json:"messageId"`
	Command   string    `json:"command"`
}
