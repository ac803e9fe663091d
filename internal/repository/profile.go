package repository

import (
	"context"
	"errors"
	"fmt"

	"match-call-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository handles database operations for user profiles
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID retrieves the profile of a user
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT user_id, gender, gender_preference, birthdate, age_min, age_max,
		       interests, photos, latitude, longitude, location_string, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`
	var (
		p        models.Profile
		ageMin   *int
		ageMax   *int
		lat, lng *float64
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Gender, &p.GenderPreference, &p.Birthdate, &ageMin, &ageMax,
		&p.Interests, &p.Photos, &lat, &lng, &p.LocationString, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if ageMin != nil && ageMax != nil {
		p.AgeRange = &models.AgeRange{Min: *ageMin, Max: *ageMax}
	}
	if lat != nil && lng != nil {
		p.Location = &models.Location{Latitude: *lat, Longitude: *lng}
	}
	return &p, nil
}

// Upsert creates or replaces the profile of p.UserID
func (r *ProfileRepository) Upsert(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO user_profiles (
			user_id, gender, gender_preference, birthdate, age_min, age_max,
			interests, photos, latitude, longitude, location_string, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			gender = EXCLUDED.gender,
			gender_preference = EXCLUDED.gender_preference,
			birthdate = EXCLUDED.birthdate,
			age_min = EXCLUDED.age_min,
			age_max = EXCLUDED.age_max,
			interests = EXCLUDED.interests,
			photos = EXCLUDED.photos,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			location_string = EXCLUDED.location_string,
			updated_at = EXCLUDED.updated_at
	`
	var (
		ageMin, ageMax *int
		lat, lng       *float64
	)
	if p.AgeRange != nil {
		ageMin, ageMax = &p.AgeRange.Min, &p.AgeRange.Max
	}
	if p.Location != nil {
		lat, lng = &p.Location.Latitude, &p.Location.Longitude
	}

	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}
	photos := p.Photos
	if photos == nil {
		photos = []string{}
	}

	_, err := r.db.Exec(ctx, query,
		p.UserID, p.Gender, p.GenderPreference, p.Birthdate, ageMin, ageMax,
		interests, photos, lat, lng, p.LocationString, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
