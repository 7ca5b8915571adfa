// Package usage records per-response token accounting.
package usage

import (
	"context"
	"fmt"

	"github.com/convoflow/convoflow/core"
)

// Recorder persists usage records. Recording is best effort from the chat
// loop's point of view; a failing Recorder never fails a chat.
type Recorder interface {
	Record(ctx context.Context, rec *core.UsageRecord) error
}

// StoreRecorder writes usage records through a core.Store.
type StoreRecorder struct {
	store core.Store
}

// NewStoreRecorder creates a Recorder backed by the given store.
func NewStoreRecorder(store core.Store) *StoreRecorder {
	return &StoreRecorder{store: store}
}

// Record persists one record.
func (r *StoreRecorder) Record(ctx context.Context, rec *core.UsageRecord) error {
	if _, err := r.store.RecordUsage(ctx, rec); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// NopRecorder discards all records.
type NopRecorder struct{}

// Record does nothing.
func (NopRecorder) Record(context.Context, *core.UsageRecord) error { return nil }
