package seed

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/okian/refmatch/internal/domain/geo"
	"github.com/okian/refmatch/internal/domain/model"
)

// Generation ranges.
const (
	kmPerDegree        = 111.32
	minTravelKm        = 15.0
	travelRangeKm      = 45.0
	emergencyOptInRate = 0.3
	clearedRate        = 0.95
	secondCertRate     = 0.25
	minLeadHours       = 6
	leadRangeHours     = 14 * 24
	organizers         = 20
)

var (
	levels    = []model.Level{"entry", "intermediate", "advanced"}
	durations = []int{60, 90, 120}
)

// generator draws referees and games from a seeded ChaCha8 stream, so the
// same seed always yields the same plan, ids included.
type generator struct {
	src *rand.ChaCha8
	rng *rand.Rand
	cfg *Config
}

func newGenerator(cfg *Config) *generator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], cfg.Seed)
	src := rand.NewChaCha8(key)
	return &generator{src: src, rng: rand.New(src), cfg: cfg}
}

// Generate builds the plan for cfg relative to now.
func Generate(cfg *Config, now time.Time) (Plan, error) {
	if len(cfg.Sports) == 0 {
		return Plan{}, fmt.Errorf("%w: no sports", ErrInvalidConfig)
	}
	if cfg.RadiusKm <= 0 {
		return Plan{}, fmt.Errorf("%w: radius must be positive", ErrInvalidConfig)
	}
	if err := cfg.Center.Validate(); err != nil {
		return Plan{}, fmt.Errorf("%w: center: %w", ErrInvalidConfig, err)
	}

	g := newGenerator(cfg)
	plan := Plan{
		Referees: make([]model.Referee, 0, cfg.Referees),
		Games:    make([]GameRequest, 0, cfg.Games),
	}
	for i := 0; i < cfg.Referees; i++ {
		r, err := g.referee(i)
		if err != nil {
			return Plan{}, err
		}
		plan.Referees = append(plan.Referees, r)
	}
	for i := 0; i < cfg.Games; i++ {
		game, err := g.game(i, now)
		if err != nil {
			return Plan{}, err
		}
		plan.Games = append(plan.Games, game)
	}
	return plan, nil
}

func (g *generator) id() (string, error) {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

func (g *generator) referee(i int) (model.Referee, error) {
	id, err := g.id()
	if err != nil {
		return model.Referee{}, err
	}
	certs := []model.Certification{g.certification()}
	if g.rng.Float64() < secondCertRate {
		if extra := g.certification(); extra.Sport != certs[0].Sport {
			certs = append(certs, extra)
		}
	}
	return model.Referee{
		ID:                id,
		Name:              fmt.Sprintf("Referee %04d", i+1),
		Home:              g.point(),
		MaxTravelKm:       math.Round(minTravelKm + g.rng.Float64()*travelRangeKm),
		Certifications:    certs,
		EmergencyOptIn:    g.rng.Float64() < emergencyOptInRate,
		Active:            true,
		BackgroundCleared: g.rng.Float64() < clearedRate,
	}, nil
}

func (g *generator) certification() model.Certification {
	return model.Certification{
		Sport:  model.Sport(g.cfg.Sports[g.rng.IntN(len(g.cfg.Sports))]),
		Level:  levels[g.rng.IntN(len(levels))],
		Active: true,
	}
}

func (g *generator) game(i int, now time.Time) (GameRequest, error) {
	id, err := g.id()
	if err != nil {
		return GameRequest{}, err
	}
	lead := time.Duration(minLeadHours+g.rng.IntN(leadRangeHours)) * time.Hour
	return GameRequest{
		ID:              id,
		OrganizerID:     fmt.Sprintf("organizer-%02d", g.rng.IntN(organizers)+1),
		Sport:           g.cfg.Sports[g.rng.IntN(len(g.cfg.Sports))],
		Level:           string(levels[g.rng.IntN(len(levels))]),
		StartsAt:        now.Add(lead).Truncate(time.Hour).UTC(),
		DurationMinutes: durations[g.rng.IntN(len(durations))],
		Location:        g.point(),
		Venue:           fmt.Sprintf("Field %d", i+1),
	}, nil
}

// point returns a location uniformly distributed over the disc of
// cfg.RadiusKm around cfg.Center.
func (g *generator) point() geo.Point {
	dist := g.cfg.RadiusKm * math.Sqrt(g.rng.Float64())
	bearing := 2 * math.Pi * g.rng.Float64()
	lat := g.cfg.Center.Lat + dist*math.Cos(bearing)/kmPerDegree
	lon := g.cfg.Center.Lon + dist*math.Sin(bearing)/(kmPerDegree*math.Cos(lat*math.Pi/180))
	return geo.Point{Lat: clamp(lat, -90, 90), Lon: clamp(lon, -180, 180)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
