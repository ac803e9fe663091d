package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"match-call-backend/internal/models"
	"match-call-backend/internal/repository"
	"match-call-backend/internal/transport"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu         sync.Mutex
	results    []models.MatchResult
	publishErr error
}

func (f *fakeTransport) SubscribeRequests(ctx context.Context) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}

func (f *fakeTransport) PublishResult(_ context.Context, res models.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.results = append(f.results, res)
	return nil
}

func (f *fakeTransport) published() []models.MatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.MatchResult(nil), f.results...)
}

// racingPool loses the first claims it sees to an imaginary other
// coordinator, which takes the entry out of the pool.
type racingPool struct {
	*repository.MemoryWaitingPool
	lose int
}

func (p *racingPool) Claim(ctx context.Context, entry models.WaitingEntry) (bool, error) {
	if p.lose > 0 {
		p.lose--
		_, _ = p.MemoryWaitingPool.Remove(ctx, entry.UserID)
		return false, nil
	}
	return p.MemoryWaitingPool.Claim(ctx, entry)
}

type brokenPool struct {
	*repository.MemoryWaitingPool
	snapshotErr error
	enqueueErr  error
}

func (p *brokenPool) Snapshot(ctx context.Context) ([]models.WaitingEntry, error) {
	if p.snapshotErr != nil {
		return nil, p.snapshotErr
	}
	return p.MemoryWaitingPool.Snapshot(ctx)
}

func (p *brokenPool) Enqueue(ctx context.Context, entry models.WaitingEntry) error {
	if p.enqueueErr != nil {
		return p.enqueueErr
	}
	return p.MemoryWaitingPool.Enqueue(ctx, entry)
}

func newTestCoordinator(pool Pool, locker RequestLocker, tr Transport) *Coordinator {
	c := NewCoordinator(pool, locker, tr, Config{NodeID: "node-test"})
	c.now = func() time.Time { return testNow }
	return c
}

func request(id string, p models.Profile) models.MatchRequest {
	return models.MatchRequest{RequestID: "req-" + id, UserID: p.UserID, Profile: p, Timestamp: testNow.UnixMilli()}
}

func u3Profile() models.Profile {
	return models.Profile{
		UserID:           "u3",
		Gender:           models.GenderMale,
		GenderPreference: models.GenderFemale,
		Birthdate:        bornYearsAgo(50),
		AgeRange:         &models.AgeRange{Min: 45, Max: 55},
		Interests:        []string{"gaming"},
		Location:         loc(hoChiMinh),
	}
}

func poolUsers(t *testing.T, pool Pool) []string {
	t.Helper()
	entries, err := pool.Snapshot(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

func TestCoordinatorScenarios(t *testing.T) {
	ctx := context.Background()
	pool := repository.NewMemoryWaitingPool()
	tr := &fakeTransport{}
	c := newTestCoordinator(pool, nil, tr)

	// empty pool: requester waits
	assert.Equal(t, OutcomeEnqueued, c.Process(ctx, request("1", u1Profile())))
	assert.Equal(t, []string{"u1"}, poolUsers(t, pool))
	assert.Empty(t, tr.published())

	// compatible requester is matched with the waiting user
	assert.Equal(t, OutcomeMatched, c.Process(ctx, request("2", u2Profile())))
	assert.Empty(t, poolUsers(t, pool))
	results := tr.published()
	require.Len(t, results, 1)
	assert.Equal(t, "u2", results[0].User1)
	assert.Equal(t, "u1", results[0].User2)
	assert.Equal(t, 88, results[0].CompatibilityScore)
	assert.Equal(t, testNow.UnixMilli(), results[0].MatchedAt)

	// incompatible requester is queued behind the untouched entry
	assert.Equal(t, OutcomeEnqueued, c.Process(ctx, request("3", u1Profile())))
	assert.Equal(t, OutcomeEnqueued, c.Process(ctx, request("4", u3Profile())))
	assert.Equal(t, []string{"u1", "u3"}, poolUsers(t, pool))
	assert.Len(t, tr.published(), 1)
}

func TestCoordinatorPicksHighestScoreEarliestOnTie(t *testing.T) {
	ctx := context.Background()
	pool := repository.NewMemoryWaitingPool()
	tr := &fakeTransport{}
	c := newTestCoordinator(pool, nil, tr)

	far := u1Profile()
	far.UserID = "far"
	far.Location = loc(danang)
	first := u1Profile()
	first.UserID = "first"
	second := u1Profile()
	second.UserID = "second"

	for _, p := range []models.Profile{far, first, second} {
		require.NoError(t, pool.Enqueue(ctx, models.WaitingEntry{ID: p.UserID, UserID: p.UserID, Profile: p}))
	}

	assert.Equal(t, OutcomeMatched, c.Process(ctx, request("x", u2Profile())))
	results := tr.published()
	require.Len(t, results, 1)
	assert.Equal(t, "first", results[0].User2)
	assert.Equal(t, []string{"far", "second"}, poolUsers(t, pool))
}

func TestCoordinatorSkipsOwnEntries(t *testing.T) {
	ctx := context.Background()
	pool := repository.NewMemoryWaitingPool()
	tr := &fakeTransport{}
	c := newTestCoordinator(pool, nil, tr)

	// a profile that would score 100 against itself
	self := u1Profile()
	self.UserID = "self"
	self.Gender = models.GenderOther
	self.GenderPreference = models.GenderOther

	assert.Equal(t, OutcomeEnqueued, c.Process(ctx, request("1", self)))
	assert.Equal(t, OutcomeEnqueued, c.Process(ctx, request("2", self)))
	assert.Equal(t, []string{"self", "self"}, poolUsers(t, pool))
	assert.Empty(t, tr.published())
}

func TestCoordinatorRemovesStaleRequesterEntries(t *testing.T) {
	ctx := context.Background()
	pool := repository.NewMemoryWaitingPool()
	tr := &fakeTransport{}
	c := newTestCoordinator(pool, nil, tr)

	require.NoError(t, pool.Enqueue(ctx, models.WaitingEntry{ID: "old", UserID: "u2", Profile: u2Profile()}))
	// u2's old entry is not compatible with u3, so u3 waits too
	assert.Equal(t, OutcomeEnqueued, c.Process(ctx, request("1", u3Profile())))

	// u1 matches u2; the stale u2 entry was the partner so both vanish
	assert.Equal(t, OutcomeMatched, c.Process(ctx, request("2", u1Profile())))
	assert.Equal(t, []string{"u3"}, poolUsers(t, pool))

	// a waiting requester that gets matched is removed as well
	require.NoError(t, pool.Enqueue(ctx, models.WaitingEntry{ID: "u1-stale", UserID: "u1", Profile: u3Profile()}))
	require.NoError(t, pool.Enqueue(ctx, models.WaitingEntry{ID: "u2-new", UserID: "u2", Profile: u2Profile()}))
	assert.Equal(t, OutcomeMatched, c.Process(ctx, request("3", u1Profile())))
	assert.Equal(t, []string{"u3"}, poolUsers(t, pool))
}

func TestCoordinatorRescansAfterLostClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("next candidate wins", func(t *testing.T) {
		pool := &racingPool{MemoryWaitingPool: repository.NewMemoryWaitingPool(), lose: 1}
		tr := &fakeTransport{}
		c := newTestCoordinator(pool, nil, tr)

		a := u1Profile()
		a.UserID = "a"
		b := u1Profile()
		b.UserID = "b"
		require.NoError(t, pool.Enqueue(ctx, models.WaitingEntry{ID: "a", UserID: "a", Profile: a}))
		require.NoError(t, pool.Enqueue(ctx, models.WaitingEntry{ID: "b", UserID: "b", Profile: b}))

		assert.Equal(t, OutcomeMatched, c.Process(ctx, request("1", u2Profile())))
		results := tr.published()
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].User2)
	})

	t.Run("attempts exhausted enqueues", func(t *testing.T) {
		pool := &racingPool{MemoryWaitingPool: repository.NewMemoryWaitingPool(), lose: 10}
		tr := &fakeTransport{}
		c := newTestCoordinator(pool, nil, tr)

		for _, id := range []string{"a", "b", "c", "d"} {
			p := u1Profile()
			p.UserID = id
			require.NoError(t, pool.Enqueue(ctx, models.WaitingEntry{ID: id, UserID: id, Profile: p}))
		}

		assert.Equal(t, OutcomeEnqueued, c.Process(ctx, request("1", u2Profile())))
		assert.Equal(t, []string{"d", "u2"}, poolUsers(t, pool))
		assert.Empty(t, tr.published())
	})
}

type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]string
	err   error
	purge int
}

func (l *fakeLocker) TryLock(_ context.Context, requestID, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held == nil {
		l.held = make(map[string]string)
	}
	if _, ok := l.held[requestID]; ok {
		return false, nil
	}
	l.held[requestID] = owner
	return true, nil
}

func (l *fakeLocker) PurgeExpired(context.Context, time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purge++
	return 0, nil
}

func TestCoordinatorDuplicateDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("without locker both coordinators enqueue", func(t *testing.T) {
		pool := repository.NewMemoryWaitingPool()
		c1 := newTestCoordinator(pool, nil, &fakeTransport{})
		c2 := newTestCoordinator(pool, nil, &fakeTransport{})

		req := request("1", u1Profile())
		assert.Equal(t, OutcomeEnqueued, c1.Process(ctx, req))
		assert.Equal(t, OutcomeEnqueued, c2.Process(ctx, req))
		assert.Equal(t, []string{"u1", "u1"}, poolUsers(t, pool))
	})

	t.Run("with locker one coordinator handles the request", func(t *testing.T) {
		pool := repository.NewMemoryWaitingPool()
		locker := &fakeLocker{}
		c1 := newTestCoordinator(pool, locker, &fakeTransport{})
		c2 := newTestCoordinator(pool, locker, &fakeTransport{})

		req := request("1", u1Profile())
		assert.Equal(t, OutcomeEnqueued, c1.Process(ctx, req))
		assert.Equal(t, OutcomeSkipped, c2.Process(ctx, req))
		assert.Equal(t, []string{"u1"}, poolUsers(t, pool))
	})

	t.Run("locker failure drops the request", func(t *testing.T) {
		pool := repository.NewMemoryWaitingPool()
		c := newTestCoordinator(pool, &fakeLocker{err: errors.New("db down")}, &fakeTransport{})

		assert.Equal(t, OutcomeDropped, c.Process(ctx, request("1", u1Profile())))
		assert.Empty(t, poolUsers(t, pool))
	})
}

func TestCoordinatorFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot error drops", func(t *testing.T) {
		pool := &brokenPool{MemoryWaitingPool: repository.NewMemoryWaitingPool(), snapshotErr: errors.New("unavailable")}
		tr := &fakeTransport{}
		c := newTestCoordinator(pool, nil, tr)

		assert.Equal(t, OutcomeDropped, c.Process(ctx, request("1", u1Profile())))
		size, err := pool.Size(ctx)
		require.NoError(t, err)
		assert.Zero(t, size)
	})

	t.Run("enqueue error drops", func(t *testing.T) {
		pool := &brokenPool{MemoryWaitingPool: repository.NewMemoryWaitingPool(), enqueueErr: errors.New("unavailable")}
		c := newTestCoordinator(pool, nil, &fakeTransport{})

		assert.Equal(t, OutcomeDropped, c.Process(ctx, request("1", u1Profile())))
	})

	t.Run("publish error drops after claim", func(t *testing.T) {
		pool := repository.NewMemoryWaitingPool()
		tr := &fakeTransport{publishErr: errors.New("nats down")}
		c := newTestCoordinator(pool, nil, tr)

		require.NoError(t, pool.Enqueue(ctx, models.WaitingEntry{ID: "1", UserID: "u1", Profile: u1Profile()}))
		assert.Equal(t, OutcomeDropped, c.Process(ctx, request("2", u2Profile())))
		assert.Empty(t, poolUsers(t, pool))
	})

	t.Run("missing user id drops", func(t *testing.T) {
		c := newTestCoordinator(repository.NewMemoryWaitingPool(), nil, &fakeTransport{})
		assert.Equal(t, OutcomeDropped, c.Process(ctx, models.MatchRequest{RequestID: "x"}))
	})
}

func TestCoordinatorHandleMessage(t *testing.T) {
	ctx := context.Background()
	pool := repository.NewMemoryWaitingPool()
	c := newTestCoordinator(pool, nil, &fakeTransport{})

	assert.Equal(t, OutcomeDropped, c.HandleMessage(ctx, []byte("{not json")))
	assert.Equal(t, OutcomeDropped, c.HandleMessage(ctx, []byte(`{"requestId":"r1"}`)))
	assert.Empty(t, poolUsers(t, pool))

	payload, err := transport.EncodeRequest(request("1", u1Profile()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnqueued, c.HandleMessage(ctx, payload))
	assert.Equal(t, []string{"u1"}, poolUsers(t, pool))
}

func TestCoordinatorRunOverLocalBroker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := transport.NewLocalBroker(nil)
	defer broker.Close()

	pool := repository.NewMemoryWaitingPool()
	c := newTestCoordinator(pool, nil, broker)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	results, err := broker.SubscribeResults(ctx)
	require.NoError(t, err)

	// requests published before the coordinator subscribes are lost, so keep
	// publishing until one lands; extra u1 entries are claimed together
	require.Eventually(t, func() bool {
		_ = broker.PublishRequest(ctx, request("1", u1Profile()))
		size, _ := pool.Size(ctx)
		return size > 0
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, broker.PublishRequest(ctx, request("2", u2Profile())))

	select {
	case msg := <-results:
		msg.Ack()
		res, err := transport.DecodeResult(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, "u2", res.User1)
		assert.Equal(t, "u1", res.User2)
		assert.Equal(t, 88, res.CompatibilityScore)
	case <-time.After(5 * time.Second):
		t.Fatal("no match result published")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestCoordinatorJanitorPurgesLocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	locker := &fakeLocker{}
	c := NewCoordinator(repository.NewMemoryWaitingPool(), locker, &fakeTransport{}, Config{JanitorInterval: 10 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		return locker.purge >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
