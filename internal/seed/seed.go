// Package seed fills a development database with fake accounts whose
// profiles cluster around real city districts, so the matching engine finds
// plausible partners nearby.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"match-call-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jaswdr/faker"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password of every seeded account
const DefaultPassword = "password123"

type district struct {
	name     string
	lat, lng float64
}

type city struct {
	name, country string
	districts     []district
}

var cities = []city{
	{"Hanoi", "Vietnam", []district{
		{"Hoan Kiem", 21.0288, 105.8525},
		{"Ba Dinh", 21.0341, 105.8142},
		{"Cau Giay", 21.0362, 105.7906},
		{"Tay Ho", 21.0700, 105.8188},
	}},
	{"Ho Chi Minh City", "Vietnam", []district{
		{"District 1", 10.7756, 106.7019},
		{"District 3", 10.7840, 106.6844},
		{"Binh Thanh", 10.8106, 106.7091},
		{"Phu Nhuan", 10.7992, 106.6803},
	}},
	{"Da Nang", "Vietnam", []district{
		{"Hai Chau", 16.0544, 108.2022},
		{"Son Tra", 16.0860, 108.2415},
	}},
	{"Tokyo", "Japan", []district{
		{"Shibuya", 35.6618, 139.7041},
		{"Shinjuku", 35.6938, 139.7034},
		{"Minato", 35.6581, 139.7516},
	}},
	{"Berlin", "Germany", []district{
		{"Mitte", 52.5206, 13.4094},
		{"Kreuzberg", 52.4996, 13.4030},
		{"Friedrichshain", 52.5156, 13.4546},
	}},
	{"London", "UK", []district{
		{"Camden", 51.5416, -0.1432},
		{"Hackney", 51.5450, -0.0550},
		{"Westminster", 51.4975, -0.1357},
	}},
}

var interestPool = []string{
	"traveling", "photography", "cooking", "music", "movies", "reading", "fitness", "yoga",
	"hiking", "dancing", "art", "gaming", "sports", "coffee", "wine", "pets", "nature",
	"technology", "fashion", "food", "adventure", "beach", "mountains", "concerts",
	"museums", "theater", "comedy", "meditation", "languages", "learning",
}

// Account is one generated user with its profile
type Account struct {
	User    models.User
	Profile models.Profile
}

// Generator produces fake accounts
type Generator struct {
	fake faker.Faker
	now  func() time.Time
}

// NewGenerator creates a generator. A non-zero seed makes the output repeatable.
func NewGenerator(seed int64) *Generator {
	fake := faker.New()
	if seed != 0 {
		fake = faker.NewWithSeed(rand.NewSource(seed))
	}
	return &Generator{fake: fake, now: time.Now}
}

// Generate returns n accounts. Usernames carry the index so a batch never
// collides with itself.
func (g *Generator) Generate(n int) []Account {
	out := make([]Account, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.account(i))
	}
	return out
}

func (g *Generator) account(i int) Account {
	now := g.now().UTC()
	id := uuid.New().String()

	first := g.fake.Person().FirstName()
	last := g.fake.Person().LastName()
	username := sanitize(fmt.Sprintf("%s%s%d%s", first, last, i, id[:4]))

	birthdate := g.birthdate(now)
	age := now.Year() - birthdate.Year()

	loc, label := g.location()

	return Account{
		User: models.User{
			ID:        id,
			Username:  username,
			Email:     username + "@example.com",
			CreatedAt: now,
		},
		Profile: models.Profile{
			UserID:           id,
			Gender:           g.gender(),
			GenderPreference: g.gender(),
			Birthdate:        birthdate,
			AgeRange: &models.AgeRange{
				Min: max(18, age-10),
				Max: min(65, age+15),
			},
			Interests:      g.interests(),
			Photos:         g.photos(),
			Location:       &loc,
			LocationString: label,
			UpdatedAt:      now,
		},
	}
}

// gender draws 45% male, 45% female and 10% other
func (g *Generator) gender() models.Gender {
	switch r := g.fake.IntBetween(1, 100); {
	case r <= 45:
		return models.GenderMale
	case r <= 90:
		return models.GenderFemale
	default:
		return models.GenderOther
	}
}

func (g *Generator) birthdate(now time.Time) time.Time {
	age := g.fake.IntBetween(18, 65)
	month := time.Month(g.fake.IntBetween(1, 12))
	day := g.fake.IntBetween(1, 28)
	return time.Date(now.Year()-age, month, day, 0, 0, 0, 0, time.UTC)
}

func (g *Generator) interests() []string {
	pool := append([]string(nil), interestPool...)
	n := g.fake.IntBetween(3, 10)
	for i := 0; i < n; i++ {
		j := g.fake.IntBetween(i, len(pool)-1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

func (g *Generator) photos() []string {
	n := g.fake.IntBetween(1, 6)
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://picsum.photos/400/600?random=%d", g.fake.IntBetween(1, 10000))
	}
	return out
}

// location places the user on a street a few hundred metres from a district centre
func (g *Generator) location() (models.Location, string) {
	c := cities[g.fake.IntBetween(0, len(cities)-1)]
	d := c.districts[g.fake.IntBetween(0, len(c.districts)-1)]

	angle := 2 * math.Pi * float64(g.fake.IntBetween(0, 359)) / 360
	radius := 0.001 + float64(g.fake.IntBetween(0, 1000))/1e6
	lat := d.lat + math.Cos(angle)*radius
	lng := d.lng + math.Sin(angle)*radius

	street := g.fake.Address().StreetName()
	label := fmt.Sprintf("%d %s, %s, %s, %s", g.fake.IntBetween(1, 200), street, d.name, c.name, c.country)
	return models.Location{Latitude: round6(lat), Longitude: round6(lng)}, label
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UserWriter stores accounts
type UserWriter interface {
	Create(ctx context.Context, user *models.User) error
}

// ProfileWriter stores profiles
type ProfileWriter interface {
	Upsert(ctx context.Context, p *models.Profile) error
}

// Seeder writes generated accounts
type Seeder struct {
	users    UserWriter
	profiles ProfileWriter
	gen      *Generator
}

// NewSeeder creates a seeder
func NewSeeder(users UserWriter, profiles ProfileWriter, gen *Generator) *Seeder {
	return &Seeder{users: users, profiles: profiles, gen: gen}
}

// Run creates n accounts, all with DefaultPassword, and returns them
func (s *Seeder) Run(ctx context.Context, n int) ([]Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	accounts := s.gen.Generate(n)
	counts := make(map[models.Gender]int)
	for i := range accounts {
		a := &accounts[i]
		a.User.PasswordHash = string(hash)
		if err := s.users.Create(ctx, &a.User); err != nil {
			return nil, fmt.Errorf("failed to seed user %s: %w", a.User.Username, err)
		}
		if err := s.profiles.Upsert(ctx, &a.Profile); err != nil {
			return nil, fmt.Errorf("failed to seed profile %s: %w", a.User.Username, err)
		}
		counts[a.Profile.Gender]++

		if (i+1)%10 == 0 {
			log.Info().Int("done", i+1).Int("total", n).Msg("Seeding users")
		}
	}

	log.Info().
		Int("users", n).
		Int("male", counts[models.GenderMale]).
		Int("female", counts[models.GenderFemale]).
		Int("other", counts[models.GenderOther]).
		Msg("Seed complete")
	return accounts, nil
}
