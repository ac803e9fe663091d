package seed

import (
	"context"
	"errors"
	"testing"

	"match-call-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerate(t *testing.T) {
	accounts := NewGenerator(42).Generate(50)
	require.Len(t, accounts, 50)

	usernames := make(map[string]struct{})
	for _, a := range accounts {
		u, p := a.User, a.Profile

		assert.NotEmpty(t, u.ID)
		assert.Equal(t, u.ID, p.UserID)
		assert.Regexp(t, `^[a-z0-9]+$`, u.Username)
		assert.Equal(t, u.Username+"@example.com", u.Email)
		usernames[u.Username] = struct{}{}

		assert.True(t, p.Gender.Valid())
		assert.True(t, p.GenderPreference.Valid())

		age := u.CreatedAt.Year() - p.Birthdate.Year()
		assert.GreaterOrEqual(t, age, 18)
		assert.LessOrEqual(t, age, 65)
		require.NotNil(t, p.AgeRange)
		assert.GreaterOrEqual(t, p.AgeRange.Min, 18)
		assert.LessOrEqual(t, p.AgeRange.Max, 65)
		assert.LessOrEqual(t, p.AgeRange.Min, p.AgeRange.Max)

		assert.GreaterOrEqual(t, len(p.Interests), 3)
		assert.LessOrEqual(t, len(p.Interests), 10)
		seen := make(map[string]struct{})
		for _, i := range p.Interests {
			_, dup := seen[i]
			assert.False(t, dup, "duplicate interest %s", i)
			seen[i] = struct{}{}
		}

		assert.GreaterOrEqual(t, len(p.Photos), 1)
		assert.LessOrEqual(t, len(p.Photos), 6)

		require.NotNil(t, p.Location)
		assert.InDelta(t, 0, p.Location.Latitude, 90)
		assert.InDelta(t, 0, p.Location.Longitude, 180)
		assert.NotEmpty(t, p.LocationString)
	}
	assert.Len(t, usernames, 50)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "jeanlucpicard1", sanitize("Jean-Luc Picard_1"))
	assert.Equal(t, "", sanitize("ÆØÅ!"))
}

type recordingWriter struct {
	users    []models.User
	profiles []models.Profile
	failAt   int
}

func (w *recordingWriter) Create(_ context.Context, user *models.User) error {
	if w.failAt > 0 && len(w.users)+1 == w.failAt {
		return errors.New("duplicate key")
	}
	w.users = append(w.users, *user)
	return nil
}

func (w *recordingWriter) Upsert(_ context.Context, p *models.Profile) error {
	w.profiles = append(w.profiles, *p)
	return nil
}

func TestSeederRun(t *testing.T) {
	w := &recordingWriter{}
	accounts, err := NewSeeder(w, w, NewGenerator(7)).Run(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, accounts, 5)
	assert.Len(t, w.users, 5)
	assert.Len(t, w.profiles, 5)

	for _, u := range w.users {
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(DefaultPassword)))
	}
}

func TestSeederRunStopsOnError(t *testing.T) {
	w := &recordingWriter{failAt: 3}
	_, err := NewSeeder(w, w, NewGenerator(7)).Run(context.Background(), 5)
	require.Error(t, err)
	assert.Len(t, w.users, 2)
	assert.Len(t, w.profiles, 2)
}
