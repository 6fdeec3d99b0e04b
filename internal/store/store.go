package store

import "context"

// Store is the local persistence boundary: workflow drafts for
// offline-capable editing plus the append-only mutation journal.
type Store interface {
	// Drafts
	SaveDraft(ctx context.Context, d *Draft) error
	GetDraft(ctx context.Context, id string) (*Draft, error)
	ListDrafts(ctx context.Context) ([]*Draft, error)
	DeleteDraft(ctx context.Context, id string) error

	// Event journal
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, draftID string, since int64) ([]*Event, error)

	Close() error
}
