package matching

import (
	"math"
	"time"

	"match-call-backend/internal/models"
)

const (
	genderWeight   = 30.0
	ageWeight      = 25.0
	interestWeight = 25.0
	maxScore       = 100

	earthRadiusKm = 6371.0
)

// proximityTiers maps a distance ceiling in km to the points it awards.
// Evaluated in order, first ceiling that holds wins.
var proximityTiers = []struct {
	maxKm  float64
	points float64
}{
	{50, 20},
	{100, 15},
	{200, 10},
	{500, 5},
}

// Breakdown holds the per-dimension contributions of a compatibility score
type Breakdown struct {
	Gender    float64 `json:"gender"`
	Age       float64 `json:"age"`
	Interests float64 `json:"interests"`
	Proximity float64 `json:"proximity"`
	Total     int     `json:"total"`
}

// Score returns the compatibility of a requester with a waiting candidate
// as an integer in [0,100], evaluated at the current time.
func Score(req models.MatchRequest, cand models.WaitingEntry) int {
	return ScoreAt(req, cand, time.Now())
}

// ScoreAt is Score with an explicit clock for age computation
func ScoreAt(req models.MatchRequest, cand models.WaitingEntry, now time.Time) int {
	return Compute(req.Profile, cand.Profile, now).Total
}

// Compute scores requester profile a against candidate profile b.
// Absent optional dimensions contribute zero; it never fails.
func Compute(a, b models.Profile, now time.Time) Breakdown {
	bd := Breakdown{
		Gender:    genderScore(a, b),
		Age:       ageScore(a, b, now),
		Interests: interestScore(a.Interests, b.Interests),
		Proximity: proximityScore(a.Location, b.Location),
	}

	total := int(math.Round(bd.Gender + bd.Age + bd.Interests + bd.Proximity))
	if total > maxScore {
		total = maxScore
	}
	if total < 0 {
		total = 0
	}
	bd.Total = total
	return bd
}

func genderScore(a, b models.Profile) float64 {
	if a.Gender == "" || b.Gender == "" {
		return 0
	}
	if a.Gender == b.GenderPreference && a.GenderPreference == b.Gender {
		return genderWeight
	}
	return 0
}

func ageScore(a, b models.Profile, now time.Time) float64 {
	if a.AgeRange == nil || b.AgeRange == nil {
		return 0
	}
	if a.Birthdate.IsZero() || b.Birthdate.IsZero() {
		return 0
	}
	ageA := AgeOn(a.Birthdate, now)
	ageB := AgeOn(b.Birthdate, now)
	if a.AgeRange.Contains(ageB) && b.AgeRange.Contains(ageA) {
		return ageWeight
	}
	return 0
}

// AgeOn returns the age in whole years of someone born on birthdate, as of now
func AgeOn(birthdate, now time.Time) int {
	age := now.Year() - birthdate.Year()
	if now.Month() < birthdate.Month() ||
		(now.Month() == birthdate.Month() && now.Day() < birthdate.Day()) {
		age--
	}
	return age
}

func interestScore(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for interest := range setA {
		if _, ok := setB[interest]; ok {
			common++
		}
	}

	denom := len(setA)
	if len(setB) > denom {
		denom = len(setB)
	}
	return interestWeight * float64(common) / float64(denom)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		set[item] = struct{}{}
	}
	return set
}

func proximityScore(a, b *models.Location) float64 {
	if a == nil || b == nil {
		return 0
	}
	distance := Haversine(*a, *b)
	for _, tier := range proximityTiers {
		if distance <= tier.maxKm {
			return tier.points
		}
	}
	return 0
}

// Haversine returns the great-circle distance between two points in km
func Haversine(p, q models.Location) float64 {
	lat1 := p.Latitude * math.Pi / 180
	lat2 := q.Latitude * math.Pi / 180
	dLat := (q.Latitude - p.Latitude) * math.Pi / 180
	dLon := (q.Longitude - p.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
