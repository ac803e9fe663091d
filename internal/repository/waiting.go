package repository

import (
	"context"
	"fmt"
	"time"

	"match-call-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WaitingRepository is the Postgres-backed waiting pool. Entries are
// ordered by an insertion sequence and every mutation is a single statement
// or a short transaction, so concurrent coordinators never rebuild the pool.
type WaitingRepository struct {
	db *pgxpool.Pool
}

// NewWaitingRepository creates a new waiting pool repository
func NewWaitingRepository(db *pgxpool.Pool) *WaitingRepository {
	return &WaitingRepository{db: db}
}

// Enqueue appends an entry to the pool
func (r *WaitingRepository) Enqueue(ctx context.Context, entry models.WaitingEntry) error {
	query := `
		INSERT INTO waiting_entries (id, user_id, profile, enqueued_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, entry.ID, entry.UserID, entry.Profile, entry.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue waiting entry: %w", err)
	}
	return nil
}

// Snapshot returns every entry in insertion order
func (r *WaitingRepository) Snapshot(ctx context.Context) ([]models.WaitingEntry, error) {
	query := `
		SELECT id, user_id, profile, enqueued_at
		FROM waiting_entries
		ORDER BY seq ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read waiting pool: %w", err)
	}
	defer rows.Close()

	var entries []models.WaitingEntry
	for rows.Next() {
		var entry models.WaitingEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Profile, &entry.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan waiting entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating waiting pool: %w", err)
	}

	return entries, nil
}

// Remove deletes every entry of a user
func (r *WaitingRepository) Remove(ctx context.Context, userID string) (int, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM waiting_entries WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove waiting user: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// Claim deletes entry if it is still in the pool. The candidate is locked
// with a transaction-scoped advisory lock so two coordinators cannot both
// claim the same user; the loser gets false without waiting.
func (r *WaitingRepository) Claim(ctx context.Context, entry models.WaitingEntry) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked bool
	err = tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, "waiting:"+entry.UserID).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("failed to lock candidate: %w", err)
	}
	if !locked {
		return false, nil
	}

	result, err := tx.Exec(ctx, `DELETE FROM waiting_entries WHERE id = $1`, entry.ID)
	if err != nil {
		return false, fmt.Errorf("failed to claim waiting entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM waiting_entries WHERE user_id = $1`, entry.UserID); err != nil {
		return false, fmt.Errorf("failed to remove duplicate entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit claim: %w", err)
	}
	return true, nil
}

// Size returns the number of entries in the pool
func (r *WaitingRepository) Size(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM waiting_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count waiting pool: %w", err)
	}
	return n, nil
}

// RequestLockRepository records which coordinator owns a match request
type RequestLockRepository struct {
	db *pgxpool.Pool
}

// NewRequestLockRepository creates a new request lock repository
func NewRequestLockRepository(db *pgxpool.Pool) *RequestLockRepository {
	return &RequestLockRepository{db: db}
}

// TryLock claims requestID for owner. Only the first caller gets true.
func (r *RequestLockRepository) TryLock(ctx context.Context, requestID, owner string) (bool, error) {
	query := `
		INSERT INTO match_request_claims (request_id, owner, claimed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (request_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, requestID, owner)
	if err != nil {
		return false, fmt.Errorf("failed to lock request: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// PurgeExpired deletes claims older than olderThan
func (r *RequestLockRepository) PurgeExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.Exec(ctx, `DELETE FROM match_request_claims WHERE claimed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge request locks: %w", err)
	}
	return int(result.RowsAffected()), nil
}
