package services

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"match-call-backend/internal/breaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPhotoService(t *testing.T) *PhotoService {
	t.Helper()
	svc, err := NewPhotoService(context.Background(), PhotoStorageConfig{
		Region:    "us-east-1",
		Bucket:    "photos",
		AccessKey: "AKIDTEST",
		SecretKey: "secret",
		Endpoint:  "http://localhost:9000",
	}, breaker.New("photo-test", breaker.DefaultConfig()))
	require.NoError(t, err)
	return svc
}

func TestPhotoServiceUploadURL(t *testing.T) {
	svc := newTestPhotoService(t)

	resp, err := svc.UploadURL(context.Background(), "u1", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Key, "profiles/u1/"))
	assert.True(t, strings.HasSuffix(resp.Key, ".png"))
	assert.Equal(t, 300, resp.ExpiresIn)

	u, err := url.Parse(resp.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/photos/"+resp.Key, u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
}

func TestPhotoServiceSignPhotos(t *testing.T) {
	svc := newTestPhotoService(t)

	out := svc.SignPhotos(context.Background(), []string{
		"https://picsum.photos/400/600?random=1",
		"profiles/u1/a.jpg",
	})
	require.Len(t, out, 2)
	assert.Equal(t, "https://picsum.photos/400/600?random=1", out[0])

	u, err := url.Parse(out[1])
	require.NoError(t, err)
	assert.Equal(t, "/photos/profiles/u1/a.jpg", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))

	assert.Empty(t, svc.SignPhotos(context.Background(), nil))
}

func TestPhotoExtension(t *testing.T) {
	assert.Equal(t, ".png", photoExtension("image/png"))
	assert.Equal(t, ".webp", photoExtension("image/webp"))
	assert.Equal(t, ".jpg", photoExtension("image/jpeg"))
	assert.Equal(t, ".jpg", photoExtension(""))
}
