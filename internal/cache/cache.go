// Package cache holds recently viewed channel windows so a reopened
// channel can paint instantly while the live subscription catches up.
// Entries are advisory: the store is always the source of truth.
package cache

import (
	"context"
	"time"

	"github.com/matheus3301/wisp/internal/store"
)

// Entry is a cached channel window.
type Entry struct {
	Messages []store.Message `json:"messages"`
	SavedAt  time.Time       `json:"saved_at"`
}

// Cache stores channel windows keyed by channel key. Get returns nil
// on a miss; expired entries count as misses.
type Cache interface {
	Get(ctx context.Context, channelKey string) (*Entry, error)
	Put(ctx context.Context, channelKey string, msgs []store.Message) error
	Delete(ctx context.Context, channelKey string) error
}
