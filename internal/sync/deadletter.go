package sync

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kashflow-sync/internal/store"
)

// DeadLetter records queue entries the engine gives up on.
type DeadLetter struct {
	store store.Store
}

func NewDeadLetter(store store.Store) *DeadLetter {
	return &DeadLetter{
		store: store,
	}
}

func (d *DeadLetter) Record(ctx context.Context, entryType, entryID string, entry any, attempts int, cause error) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode rejected %s %s: %w", entryType, entryID, err)
	}

	rejection := &store.Rejection{
		ID:          uuid.New().String(),
		EntryType:   entryType,
		EntryID:     entryID,
		Fingerprint: calculateHash(payload),
		Payload:     json.RawMessage(payload),
		Attempts:    attempts,
		LastError:   cause.Error(),
		RejectedAt:  time.Now().UTC(),
	}
	return d.store.CreateRejection(ctx, rejection)
}

func calculateHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum)
}
