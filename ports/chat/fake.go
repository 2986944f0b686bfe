package chat

import (
	"context"
	"strings"
	"sync"
)

// FakeMessage is the recorded state of one message posted through the fake.
type FakeMessage struct {
	Ref     MessageRef
	Text    string
	Opts    SendOptions
	Edits   int
	Deleted bool
}

// FakeTransport records every outbound call. Safe for concurrent use since
// invoked effects post from scheduler goroutines.
type FakeTransport struct {
	mu     sync.Mutex
	nextID MessageID
	order  []MessageRef
	msgs   map[MessageRef]*FakeMessage

	// SendErr, when set, fails every SendMessage call with this error.
	SendErr error
}

// NewFakeTransport returns an empty recording transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{msgs: make(map[MessageRef]*FakeMessage)}
}

func (f *FakeTransport) SendMessage(_ context.Context, chat ChatID, text string, opts SendOptions) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return MessageRef{}, f.SendErr
	}
	f.nextID++
	ref := MessageRef{ChatID: chat, MessageID: f.nextID}
	f.msgs[ref] = &FakeMessage{Ref: ref, Text: text, Opts: opts}
	f.order = append(f.order, ref)
	return ref, nil
}

func (f *FakeTransport) EditMessage(_ context.Context, ref MessageRef, text string, opts SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[ref]
	if !ok {
		m = &FakeMessage{Ref: ref}
		f.msgs[ref] = m
		f.order = append(f.order, ref)
	}
	m.Text = text
	m.Opts = opts
	m.Edits++
	return nil
}

func (f *FakeTransport) DeleteMessage(_ context.Context, ref MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.msgs[ref]; ok {
		m.Deleted = true
	}
	return nil
}

// Messages returns copies of all recorded messages in posting order.
func (f *FakeTransport) Messages() []FakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeMessage, 0, len(f.order))
	for _, ref := range f.order {
		out = append(out, *f.msgs[ref])
	}
	return out
}

// Message returns the recorded message for ref.
func (f *FakeTransport) Message(ref MessageRef) (FakeMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[ref]
	if !ok {
		return FakeMessage{}, false
	}
	return *m, true
}

// Contains reports whether any live message text contains substr.
func (f *FakeTransport) Contains(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if !m.Deleted && strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

// Count returns the number of messages ever posted.
func (f *FakeTransport) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

var _ Transport = (*FakeTransport)(nil)
