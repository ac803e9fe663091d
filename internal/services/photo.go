package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"match-call-backend/internal/breaker"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	photoUploadTTL = 5 * time.Minute
	photoViewTTL   = 15 * time.Minute
)

// PhotoStorageConfig describes the bucket profile photos live in
type PhotoStorageConfig struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// PhotoService presigns profile photo uploads and downloads. Profiles store
// object keys; clients only ever see short-lived URLs.
type PhotoService struct {
	presign *s3.PresignClient
	bucket  string
	cb      *gobreaker.CircuitBreaker[any]
}

// NewPhotoService creates a new photo service
func NewPhotoService(ctx context.Context, cfg PhotoStorageConfig, cb *gobreaker.CircuitBreaker[any]) (*PhotoService, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &PhotoService{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		cb:      cb,
	}, nil
}

// UploadResponse represents the response with pre-signed URL
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in"`
}

// UploadURL presigns a PUT for a new photo of userID. The returned key is
// what the client stores in its profile after uploading.
func (s *PhotoService) UploadURL(ctx context.Context, userID, contentType string) (*UploadResponse, error) {
	key := fmt.Sprintf("profiles/%s/%s%s", userID, uuid.New().String(), photoExtension(contentType))

	req, err := breaker.Do(s.cb, func() (string, error) {
		r, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
		}, func(opts *s3.PresignOptions) {
			opts.Expires = photoUploadTTL
		})
		if err != nil {
			return "", err
		}
		return r.URL, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	return &UploadResponse{
		UploadURL: req,
		Key:       key,
		ExpiresIn: int(photoUploadTTL.Seconds()),
	}, nil
}

// SignPhotos maps stored photo references to viewable URLs. Absolute URLs
// pass through; keys that cannot be signed are dropped.
func (s *PhotoService) SignPhotos(ctx context.Context, refs []string) []string {
	if len(refs) == 0 {
		return refs
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if isAbsoluteURL(ref) {
			out = append(out, ref)
			continue
		}
		url, err := breaker.Do(s.cb, func() (string, error) {
			r, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(ref),
			}, func(opts *s3.PresignOptions) {
				opts.Expires = photoViewTTL
			})
			if err != nil {
				return "", err
			}
			return r.URL, nil
		})
		if err != nil {
			continue
		}
		out = append(out, url)
	}
	return out
}

func isAbsoluteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func photoExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
