package repository

import (
	"context"
	"sync"
	"time"

	"match-call-backend/internal/models"
)

// MemoryWaitingPool is an in-process waiting pool. It is only shared by the
// coordinators of one process and is lost on restart.
type MemoryWaitingPool struct {
	mu      sync.Mutex
	entries []models.WaitingEntry
}

// NewMemoryWaitingPool creates an empty in-memory pool
func NewMemoryWaitingPool() *MemoryWaitingPool {
	return &MemoryWaitingPool{}
}

func (p *MemoryWaitingPool) Enqueue(_ context.Context, entry models.WaitingEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func (p *MemoryWaitingPool) Snapshot(_ context.Context) ([]models.WaitingEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.WaitingEntry, len(p.entries))
	copy(out, p.entries)
	return out, nil
}

func (p *MemoryWaitingPool) Remove(_ context.Context, userID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(userID), nil
}

func (p *MemoryWaitingPool) Claim(_ context.Context, entry models.WaitingEntry) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.ID == entry.ID {
			p.removeLocked(entry.UserID)
			return true, nil
		}
	}
	return false, nil
}

func (p *MemoryWaitingPool) Size(_ context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries), nil
}

func (p *MemoryWaitingPool) removeLocked(userID string) int {
	kept := p.entries[:0]
	removed := 0
	for _, e := range p.entries {
		if e.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// clear the tail so dropped entries can be collected
	for i := len(kept); i < len(p.entries); i++ {
		p.entries[i] = models.WaitingEntry{}
	}
	p.entries = kept
	return removed
}

// MemoryRequestLocker is the in-process counterpart of RequestLockRepository
type MemoryRequestLocker struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

// NewMemoryRequestLocker creates an empty locker
func NewMemoryRequestLocker() *MemoryRequestLocker {
	return &MemoryRequestLocker{
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (l *MemoryRequestLocker) TryLock(_ context.Context, requestID, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.claims[requestID]; taken {
		return false, nil
	}
	l.claims[requestID] = l.now()
	return true, nil
}

func (l *MemoryRequestLocker) PurgeExpired(_ context.Context, olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-olderThan)
	purged := 0
	for id, at := range l.claims {
		if at.Before(cutoff) {
			delete(l.claims, id)
			purged++
		}
	}
	return purged, nil
}
