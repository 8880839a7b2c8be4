package statuslog

import "context"

// Repository persists log entries. The table is append-only.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	// List returns the entries of an order, oldest first.
	List(ctx context.Context, orderID string) ([]Entry, error)
}
