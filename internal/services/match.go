package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"match-call-backend/internal/models"
	"match-call-backend/internal/transport"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrTransportUnavailable wraps publish failures at the front door
var ErrTransportUnavailable = errors.New("match transport unavailable")

// ProfileReader is the read side of the profile store
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// RequestPublisher publishes match requests
type RequestPublisher interface {
	PublishRequest(ctx context.Context, req models.MatchRequest) error
}

// PoolSizer reports how many users are waiting
type PoolSizer interface {
	Size(ctx context.Context) (int, error)
}

// MatchService is the front door of the matching engine. It never returns a
// match; results arrive later on the result channel.
type MatchService struct {
	profiles  ProfileReader
	publisher RequestPublisher
	pool      PoolSizer
	now       func() time.Time
}

// NewMatchService creates a new match service. pool may be nil when the
// process has no access to the waiting pool.
func NewMatchService(profiles ProfileReader, publisher RequestPublisher, pool PoolSizer) *MatchService {
	return &MatchService{
		profiles:  profiles,
		publisher: publisher,
		pool:      pool,
		now:       time.Now,
	}
}

// SubmitMatchRequest snapshots the profile of userID and publishes a request
// for it. It returns the request ID once the request is on the channel.
func (s *MatchService) SubmitMatchRequest(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}

	req := models.MatchRequest{
		RequestID: uuid.New().String(),
		UserID:    userID,
		Profile:   *profile,
		Timestamp: s.now().UnixMilli(),
	}

	if err := s.publisher.PublishRequest(ctx, req); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to publish matching request")
		return "", fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	log.Info().
		Str("user_id", userID).
		Str("request_id", req.RequestID).
		Msg("Published matching request")
	return req.RequestID, nil
}

// PoolSize returns the number of waiting entries
func (s *MatchService) PoolSize(ctx context.Context) (int, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("waiting pool is not available")
	}
	return s.pool.Size(ctx)
}

// ResultSubscriber streams the result channel
type ResultSubscriber interface {
	SubscribeResults(ctx context.Context) (<-chan *message.Message, error)
}

// MatchDeliverer pushes results to local connections
type MatchDeliverer interface {
	IsOnline(userID string) bool
	DeliverMatch(res models.MatchResult, profiles map[string]*models.PublicProfile) string
}

// PublicProfileReader returns profiles fit for another user to see
type PublicProfileReader interface {
	GetPublicProfile(ctx context.Context, userID string) (*models.PublicProfile, error)
}

// ResultListener consumes the result channel and hands every result to the
// local presence table. Every process runs one.
type ResultListener struct {
	sub      ResultSubscriber
	hub      MatchDeliverer
	profiles PublicProfileReader
}

// NewResultListener creates a result listener. profiles may be nil, in which
// case notifications carry only the match itself.
func NewResultListener(sub ResultSubscriber, hub MatchDeliverer, profiles PublicProfileReader) *ResultListener {
	return &ResultListener{sub: sub, hub: hub, profiles: profiles}
}

// Run delivers results until ctx is done
func (l *ResultListener) Run(ctx context.Context) error {
	msgs, err := l.sub.SubscribeResults(ctx)
	if err != nil {
		return err
	}

	log.Info().Str("channel", transport.ResultChannel).Msg("Listening for match results")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("result subscription closed")
			}
			l.Handle(ctx, msg.Payload)
			msg.Ack()
		}
	}
}

// Handle decodes one result payload and delivers it
func (l *ResultListener) Handle(ctx context.Context, payload []byte) string {
	res, err := transport.DecodeResult(payload)
	if err != nil {
		log.Error().Err(err).Msg("Dropping malformed match result")
		return DeliveryAbsent
	}
	return l.hub.DeliverMatch(res, l.partnerProfiles(ctx, res))
}

// partnerProfiles loads the profile of every user whose partner is
// connected here
func (l *ResultListener) partnerProfiles(ctx context.Context, res models.MatchResult) map[string]*models.PublicProfile {
	if l.profiles == nil {
		return nil
	}
	out := make(map[string]*models.PublicProfile)
	for _, id := range []string{res.User1, res.User2} {
		if !l.hub.IsOnline(id) {
			continue
		}
		partner := res.PartnerOf(id)
		p, err := l.profiles.GetPublicProfile(ctx, partner)
		if err != nil {
			log.Warn().Err(err).Str("user_id", partner).Msg("Failed to load partner profile")
			continue
		}
		out[partner] = p
	}
	return out
}
