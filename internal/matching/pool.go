package matching

import (
	"context"
	"time"

	"match-call-backend/internal/models"
)

// Pool is the shared waiting pool. Implementations keep state outside the
// process so every coordinator sees the same entries.
type Pool interface {
	// Enqueue appends an entry to the tail. It does not deduplicate.
	Enqueue(ctx context.Context, entry models.WaitingEntry) error
	// Snapshot returns all entries in insertion order without removing them.
	Snapshot(ctx context.Context) ([]models.WaitingEntry, error)
	// Remove atomically deletes every entry of userID and returns how many were deleted.
	Remove(ctx context.Context, userID string) (int, error)
	// Claim deletes entry if it is still present, together with any other
	// entries of the same user. It returns false when the entry is already gone
	// or locked by another coordinator.
	Claim(ctx context.Context, entry models.WaitingEntry) (bool, error)
	Size(ctx context.Context) (int, error)
}

// RequestLocker grants a request to at most one coordinator
type RequestLocker interface {
	TryLock(ctx context.Context, requestID, owner string) (bool, error)
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int, error)
}
