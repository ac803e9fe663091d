package matching

import (
	"context"
	"errors"
	"time"

	"match-call-backend/internal/metrics"
	"match-call-backend/internal/models"
	"match-call-backend/internal/transport"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultThreshold is the minimum compatibility score accepted as a match
const DefaultThreshold = 40

// Outcome is the terminal state of one processed request
type Outcome string

const (
	OutcomeMatched  Outcome = "matched"
	OutcomeEnqueued Outcome = "enqueued"
	OutcomeDropped  Outcome = "dropped"
	OutcomeSkipped  Outcome = "skipped"
)

// Transport is the part of the broker a coordinator needs
type Transport interface {
	SubscribeRequests(ctx context.Context) (<-chan *message.Message, error)
	PublishResult(ctx context.Context, res models.MatchResult) error
}

// Config tunes a coordinator
type Config struct {
	Threshold        int
	MaxClaimAttempts int
	NodeID           string
	RequestLockTTL   time.Duration
	JanitorInterval  time.Duration
}

// Coordinator turns match requests into either a match or a pool entry.
// It keeps no state between requests; the pool holds all of it.
type Coordinator struct {
	pool      Pool
	locker    RequestLocker
	transport Transport
	cfg       Config
	now       func() time.Time
}

// NewCoordinator creates a coordinator. locker may be nil, in which case
// every coordinator subscribed to the request channel processes every request.
func NewCoordinator(pool Pool, locker RequestLocker, tr Transport, cfg Config) *Coordinator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxClaimAttempts <= 0 {
		cfg.MaxClaimAttempts = 3
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.New().String()
	}
	if cfg.RequestLockTTL <= 0 {
		cfg.RequestLockTTL = 10 * time.Minute
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Minute
	}
	return &Coordinator{
		pool:      pool,
		locker:    locker,
		transport: tr,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run consumes the request channel one message at a time until ctx is done
func (c *Coordinator) Run(ctx context.Context) error {
	msgs, err := c.transport.SubscribeRequests(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("node_id", c.cfg.NodeID).
		Int("threshold", c.cfg.Threshold).
		Msg("Listening for matching requests")

	var janitor <-chan time.Time
	if c.locker != nil {
		ticker := time.NewTicker(c.cfg.JanitorInterval)
		defer ticker.Stop()
		janitor = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("request subscription closed")
			}
			c.HandleMessage(ctx, msg.Payload)
			msg.Ack()
		case <-janitor:
			c.purgeLocks(ctx)
		}
	}
}

// HandleMessage decodes a request channel payload and processes it.
// Malformed payloads are logged and dropped.
func (c *Coordinator) HandleMessage(ctx context.Context, payload []byte) Outcome {
	req, err := transport.DecodeRequest(payload)
	if err != nil {
		log.Error().Err(err).Int("size", len(payload)).Msg("Dropping malformed matching request")
		return c.finish(OutcomeDropped)
	}
	return c.Process(ctx, req)
}

// Process runs one request through scan, claim and publish. Errors drop the
// request without retrying.
func (c *Coordinator) Process(ctx context.Context, req models.MatchRequest) Outcome {
	logger := log.With().
		Str("request_id", req.RequestID).
		Str("user_id", req.UserID).
		Logger()

	if req.UserID == "" {
		logger.Error().Msg("Dropping matching request without user id")
		return c.finish(OutcomeDropped)
	}

	if c.locker != nil && req.RequestID != "" {
		acquired, err := c.locker.TryLock(ctx, req.RequestID, c.cfg.NodeID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to lock matching request")
			return c.finish(OutcomeDropped)
		}
		if !acquired {
			logger.Debug().Msg("Matching request handled by another coordinator")
			return c.finish(OutcomeSkipped)
		}
	}

	logger.Info().Msg("Processing matching request")

	for attempt := 1; attempt <= c.cfg.MaxClaimAttempts; attempt++ {
		entries, err := c.pool.Snapshot(ctx)
		if err != nil {
			metrics.PoolErrors.WithLabelValues("snapshot").Inc()
			logger.Error().Err(err).Msg("Failed to read waiting pool")
			return c.finish(OutcomeDropped)
		}
		metrics.WaitingPoolSize.Set(float64(len(entries)))

		best, score, found := c.selectBest(req, entries)
		if !found {
			logger.Info().Int("waiting", len(entries)).Msg("No compatible user waiting")
			break
		}

		claimed, err := c.pool.Claim(ctx, best)
		if err != nil {
			metrics.PoolErrors.WithLabelValues("claim").Inc()
			logger.Error().Err(err).Str("candidate_id", best.UserID).Msg("Failed to claim candidate")
			return c.finish(OutcomeDropped)
		}
		if !claimed {
			metrics.ClaimConflicts.Inc()
			logger.Warn().
				Str("candidate_id", best.UserID).
				Int("attempt", attempt).
				Msg("Candidate claimed by another coordinator, rescanning")
			continue
		}

		return c.completeMatch(ctx, req, best, score)
	}

	return c.enqueue(ctx, req)
}

// selectBest returns the earliest entry with the highest score at or above
// the threshold, skipping the requester's own entries.
func (c *Coordinator) selectBest(req models.MatchRequest, entries []models.WaitingEntry) (models.WaitingEntry, int, bool) {
	now := c.now()
	var best models.WaitingEntry
	bestScore := -1
	for _, entry := range entries {
		if entry.UserID == req.UserID {
			continue
		}
		score := ScoreAt(req, entry, now)
		log.Debug().
			Str("user_id", req.UserID).
			Str("candidate_id", entry.UserID).
			Int("score", score).
			Msg("Compatibility score")
		if score >= c.cfg.Threshold && score > bestScore {
			best = entry
			bestScore = score
		}
	}
	return best, bestScore, bestScore >= 0
}

func (c *Coordinator) completeMatch(ctx context.Context, req models.MatchRequest, candidate models.WaitingEntry, score int) Outcome {
	logger := log.With().
		Str("request_id", req.RequestID).
		Str("user_id", req.UserID).
		Str("candidate_id", candidate.UserID).
		Int("score", score).
		Logger()

	// a requester matched now must not linger from an earlier unmatched request
	if n, err := c.pool.Remove(ctx, req.UserID); err != nil {
		metrics.PoolErrors.WithLabelValues("remove").Inc()
		logger.Warn().Err(err).Msg("Failed to remove stale requester entries")
	} else if n > 0 {
		logger.Debug().Int("removed", n).Msg("Removed stale requester entries")
	}

	result := models.MatchResult{
		User1:              req.UserID,
		User2:              candidate.UserID,
		CompatibilityScore: score,
		MatchedAt:          c.now().UnixMilli(),
	}
	if err := c.transport.PublishResult(ctx, result); err != nil {
		logger.Error().Err(err).Msg("Failed to publish match result")
		return c.finish(OutcomeDropped)
	}

	metrics.MatchScores.Observe(float64(score))
	logger.Info().Msg("Match found")
	return c.finish(OutcomeMatched)
}

func (c *Coordinator) enqueue(ctx context.Context, req models.MatchRequest) Outcome {
	entry := models.WaitingEntry{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Profile:    req.Profile,
		EnqueuedAt: c.now(),
	}
	if err := c.pool.Enqueue(ctx, entry); err != nil {
		metrics.PoolErrors.WithLabelValues("enqueue").Inc()
		log.Error().Err(err).
			Str("request_id", req.RequestID).
			Str("user_id", req.UserID).
			Msg("Failed to add user to waiting pool")
		return c.finish(OutcomeDropped)
	}

	log.Info().
		Str("request_id", req.RequestID).
		Str("user_id", req.UserID).
		Msg("Added user to waiting pool")
	return c.finish(OutcomeEnqueued)
}

func (c *Coordinator) purgeLocks(ctx context.Context) {
	n, err := c.locker.PurgeExpired(ctx, c.cfg.RequestLockTTL)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to purge expired request locks")
		return
	}
	if n > 0 {
		log.Debug().Int("purged", n).Msg("Purged expired request locks")
	}
}

func (c *Coordinator) finish(o Outcome) Outcome {
	metrics.MatchRequests.WithLabelValues(string(o)).Inc()
	return o
}
