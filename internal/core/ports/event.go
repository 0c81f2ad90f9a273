package ports

import (
	"context"
)

// Notification is a local notification addressed to one user.
type Notification struct {
	UserID string `json:"user_id"`
	ID     int32  `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Notifier delivers notifications. Repeated deliveries with the same ID
// replace each other on the device instead of stacking.
type Notifier interface {
	ShowNotification(ctx context.Context, n Notification) error
}

// DedupStore remembers which notification keys were already delivered.
// MarkIfAbsent atomically marks key and reports whether it was unmarked
// before the call. Keys never expire.
type DedupStore interface {
	MarkIfAbsent(ctx context.Context, key string) (bool, error)
}
