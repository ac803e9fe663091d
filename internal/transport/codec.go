package transport

import (
	"errors"
	"fmt"

	"match-call-backend/internal/models"

	"github.com/goccy/go-json"
)

// ErrMalformedPayload is returned when a channel message cannot be decoded
// into a usable request or result
var ErrMalformedPayload = errors.New("malformed payload")

// EncodeRequest serializes a match request for the request channel
func EncodeRequest(req models.MatchRequest) ([]byte, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("failed to encode request: userId is required")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return data, nil
}

// DecodeRequest parses a request channel payload
func DecodeRequest(data []byte) (models.MatchRequest, error) {
	var req models.MatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return models.MatchRequest{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if req.UserID == "" {
		return models.MatchRequest{}, fmt.Errorf("%w: missing userId", ErrMalformedPayload)
	}
	return req, nil
}

// EncodeResult serializes a match result for the result channel
func EncodeResult(res models.MatchResult) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

// DecodeResult parses a result channel payload
func DecodeResult(data []byte) (models.MatchResult, error) {
	var res models.MatchResult
	if err := json.Unmarshal(data, &res); err != nil {
		return models.MatchResult{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if res.User1 == "" || res.User2 == "" {
		return models.MatchResult{}, fmt.Errorf("%w: missing user ids", ErrMalformedPayload)
	}
	return res, nil
}
