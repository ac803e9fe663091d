package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"match-call-backend/internal/matching"
	"match-call-backend/internal/models"
	"match-call-backend/internal/repository"
	"match-call-backend/internal/validation"
)

// ErrProfileNotFound is returned when a user has not created a profile yet
var ErrProfileNotFound = errors.New("profile not found")

// ProfileStore is the persistence the profile service needs
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
}

// PhotoSigner turns stored photo references into viewable URLs
type PhotoSigner interface {
	SignPhotos(ctx context.Context, refs []string) []string
}

// ProfileService owns reads and writes of user profiles. The matching engine
// only ever reads through GetProfile.
type ProfileService struct {
	repo   ProfileStore
	photos PhotoSigner
	now    func() time.Time
}

// NewProfileService creates a new profile service. photos may be nil, in
// which case photo references are returned as stored.
func NewProfileService(repo ProfileStore, photos PhotoSigner) *ProfileService {
	return &ProfileService{
		repo:   repo,
		photos: photos,
		now:    time.Now,
	}
}

// GetProfile returns the stored profile of userID
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetOwnProfile returns the full profile of userID for its owner, with
// photo URLs signed for display
func (s *ProfileService) GetOwnProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.photos != nil {
		p.Photos = s.photos.SignPhotos(ctx, p.Photos)
	}
	return p, nil
}

// GetPublicProfile returns the view of userID that a matched partner sees
func (s *ProfileService) GetPublicProfile(ctx context.Context, userID string) (*models.PublicProfile, error) {
	p, err := s.GetOwnProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	pub := &models.PublicProfile{
		UserID:         p.UserID,
		Gender:         p.Gender,
		Interests:      p.Interests,
		Photos:         p.Photos,
		LocationString: p.LocationString,
	}
	if !p.Birthdate.IsZero() {
		pub.Age = matching.AgeOn(p.Birthdate, s.now())
	}
	return pub, nil
}

// UpdateProfile validates and stores the profile of userID
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, p models.Profile) (*models.Profile, error) {
	if err := validation.Struct(&p); err != nil {
		return nil, err
	}
	if err := checkPhotoOwner(userID, p.Photos); err != nil {
		return nil, err
	}

	p.UserID = userID
	p.Interests = normalizeInterests(p.Interests)
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Upsert(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &p, nil
}

// checkPhotoOwner accepts absolute URLs and bucket keys under the
// profiles/<userID>/ prefix handed out by UploadURL
func checkPhotoOwner(userID string, photos []string) error {
	prefix := fmt.Sprintf("profiles/%s/", userID)
	var fields []validation.FieldError
	for i, ref := range photos {
		if isAbsoluteURL(ref) {
			continue
		}
		name, ok := strings.CutPrefix(ref, prefix)
		if ok && name != "" && path.Clean(ref) == ref && !strings.Contains(name, "/") {
			continue
		}
		field := fmt.Sprintf("photos[%d]", i)
		fields = append(fields, validation.FieldError{
			Field:   field,
			Tag:     "owner",
			Message: field + " must be an uploaded photo of this user or an http(s) URL",
		})
	}
	if len(fields) > 0 {
		return &validation.Error{Fields: fields}
	}
	return nil
}

// normalizeInterests drops duplicates while keeping the first spelling
func normalizeInterests(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
