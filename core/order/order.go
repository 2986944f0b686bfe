// Package order persists the finalized group order. The record is written
// once per checkout, before the automation pipeline starts, so who-buys-what
// survives an automation failure.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/posixpascal/knusperity/core/cart"
	"github.com/posixpascal/knusperity/ports/chat"
	"github.com/posixpascal/knusperity/ports/kv"
)

// UserCart is one member's finalized cart.
type UserCart struct {
	UserID   chat.UserID     `json:"userId"`
	UserName string          `json:"userName"`
	Items    []cart.LineItem `json:"items"`
}

// Record is the durable order document, keyed by conversation.
type Record struct {
	ChatID   chat.ChatID `json:"chatId"`
	Carts    []UserCart  `json:"carts"`
	PlacedAt time.Time   `json:"placedAt"`
}

// Key returns the storage key for a conversation's order record.
func Key(chatID chat.ChatID) string {
	return fmt.Sprintf("orders/%d", chatID)
}

// Store reads and writes order records through a kv backend.
type Store struct {
	kv kv.Store
}

// NewStore wraps a kv backend.
func NewStore(backend kv.Store) *Store {
	return &Store{kv: backend}
}

// Save writes the record, overwriting any previous order of the conversation.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.PlacedAt.IsZero() {
		rec.PlacedAt = time.Now().UTC()
	}
	if err := kv.Put(ctx, s.kv, Key(rec.ChatID), rec); err != nil {
		return fmt.Errorf("persist order %d: %w", rec.ChatID, err)
	}
	return nil
}

// Load returns the conversation's last persisted order.
func (s *Store) Load(ctx context.Context, chatID chat.ChatID) (Record, error) {
	rec, err := kv.Get[Record](ctx, s.kv, Key(chatID))
	if err != nil {
		return Record{}, fmt.Errorf("load order %d: %w", chatID, err)
	}
	return rec, nil
}
