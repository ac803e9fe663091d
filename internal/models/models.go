package models

import "time"

// Gender is the self-declared gender of a user and also the value space
// of a gender preference
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid reports whether g is one of the known genders
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// User represents an account in the system
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AgeRange is the inclusive range of acceptable partner ages
type AgeRange struct {
	Min int `json:"min" validate:"gte=18,lte=120"`
	Max int `json:"max" validate:"gte=18,lte=120,gtefield=Min"`
}

// Contains reports whether age falls within the range
func (r AgeRange) Contains(age int) bool {
	return age >= r.Min && age <= r.Max
}

// Location is a point on the globe in degrees
type Location struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Profile is a snapshot of the matching-relevant part of a user's profile.
// Optional dimensions are nil or empty when the user has not filled them in.
type Profile struct {
	UserID           string    `json:"user_id,omitempty"`
	Gender           Gender    `json:"gender" validate:"required,oneof=male female other"`
	GenderPreference Gender    `json:"gender_preference" validate:"required,oneof=male female other"`
	Birthdate        time.Time `json:"birthdate" validate:"required"`
	AgeRange         *AgeRange `json:"age_range,omitempty"`
	Interests        []string  `json:"interests,omitempty" validate:"max=50,dive,min=1,max=64"`
	Photos           []string  `json:"photos,omitempty" validate:"max=10"`
	Location         *Location `json:"location,omitempty"`
	LocationString   string    `json:"location_string,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// PublicProfile is the view of a profile shown to a matched partner. It has
// no coordinates and an age instead of a birthdate.
type PublicProfile struct {
	UserID         string   `json:"user_id"`
	Gender         Gender   `json:"gender"`
	Age            int      `json:"age,omitempty"`
	Interests      []string `json:"interests,omitempty"`
	Photos         []string `json:"photos,omitempty"`
	LocationString string   `json:"location_string,omitempty"`
}

// MatchRequest is published on the request channel by the front door
type MatchRequest struct {
	RequestID string  `json:"requestId"`
	UserID    string  `json:"userId"`
	Profile   Profile `json:"userInfo"`
	Timestamp int64   `json:"timestamp"`
}

// WaitingEntry is a user sitting in the waiting pool
type WaitingEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Profile    Profile   `json:"profile"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// MatchResult is published on the result channel once per successful match
type MatchResult struct {
	User1              string `json:"user1"`
	User2              string `json:"user2"`
	CompatibilityScore int    `json:"compatibility_score"`
	MatchedAt          int64  `json:"matched_at"`
}

// Involves reports whether userID is one of the matched users
func (r MatchResult) Involves(userID string) bool {
	return r.User1 == userID || r.User2 == userID
}

// PartnerOf returns the other user of the match
func (r MatchResult) PartnerOf(userID string) string {
	if r.User1 == userID {
		return r.User2
	}
	return r.User1
}
