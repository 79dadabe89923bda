package generator

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"fraudsim/internal/ippool"
	"fraudsim/internal/model"
)

// IP-selection branch probabilities. A normal user mostly logs in from fresh
// unique addresses; a high-velocity user mostly reuses the flagged pool.
const (
	normalFreshIPRate    = 0.85
	velocityPoolHitRate  = 0.60
	timestampWindow      = 30 * 24 * time.Hour
	minDurationSeconds   = 30
	maxDurationSeconds   = 1800
	maxActionCount       = 50
)

// Params are the tunable knobs of a generation run.
type Params struct {
	HighVelocityUserRate float64
	MinSessionsPerUser   int
	MaxSessionsPerUser   int
}

// DefaultParams mirrors the documented simulation defaults.
func DefaultParams() Params {
	return Params{
		HighVelocityUserRate: 0.30,
		MinSessionsPerUser:   5,
		MaxSessionsPerUser:   30,
	}
}

// Generator synthesizes login sessions for one run. It is stateless apart
// from the read-only pools, so a single Generator may serve all workers as
// long as each worker supplies its own rng and faker.
type Generator struct {
	pools  *ippool.Pools
	params Params
}

func New(pools *ippool.Pools, params Params) *Generator {
	return &Generator{pools: pools, params: params}
}

// Classify decides the user's profile for this run.
func (g *Generator) Classify(rng *rand.Rand) Profile {
	return Classify(rng, g.params.HighVelocityUserRate)
}

// SessionCount draws a session count uniformly from the configured range.
func (g *Generator) SessionCount(rng *rand.Rand) int {
	span := g.params.MaxSessionsPerUser - g.params.MinSessionsPerUser + 1
	return g.params.MinSessionsPerUser + rng.Intn(span)
}

// GenerateForUser produces count sessions for userID under the given profile.
// A non-positive count yields an empty slice, not an error. The high-velocity
// flag on each session is set iff the chosen IP is a member of the
// high-velocity pool, regardless of which branch produced it.
func (g *Generator) GenerateForUser(rng *rand.Rand, faker *gofakeit.Faker, userID string, count int, profile Profile) []model.LoginSession {
	if count <= 0 {
		return []model.LoginSession{}
	}

	sessions := make([]model.LoginSession, 0, count)
	freshUsed := make(map[string]struct{})
	now := time.Now().UTC()

	for i := 0; i < count; i++ {
		ip := g.chooseIP(rng, profile, freshUsed)
		flagged := g.pools.IsHighVelocity(ip)

		sessions = append(sessions, model.LoginSession{
			SessionID: uuid.NewString(),
			UserID:    userID,
			Timestamp: now.Add(-time.Duration(rng.Int63n(int64(timestampWindow)))),
			IPAddress: ip,
			UserAgent: faker.UserAgent(),
			Geolocation: model.Geolocation{
				City:      faker.City(),
				Country:   faker.CountryAbr(),
				Latitude:  faker.Latitude(),
				Longitude: faker.Longitude(),
			},
			DeviceFingerprint: deviceFingerprint(rng, userID),
			DurationSeconds:   minDurationSeconds + rng.Intn(maxDurationSeconds-minDurationSeconds+1),
			ActionCount:       rng.Intn(maxActionCount + 1),
			HighVelocity:      flagged,
			RiskScore:         riskScore(rng, flagged),
		})
	}

	return sessions
}

func (g *Generator) chooseIP(rng *rand.Rand, profile Profile, freshUsed map[string]struct{}) string {
	if profile == ProfileHighVelocity {
		if rng.Float64() < velocityPoolHitRate {
			return g.pools.PickHighVelocity(rng)
		}
		return g.pools.PickShared(rng)
	}

	if rng.Float64() < normalFreshIPRate {
		return g.freshIP(rng, freshUsed)
	}
	return g.pools.PickShared(rng)
}

// freshIP synthesizes an address outside both pools that this user has not
// used before.
func (g *Generator) freshIP(rng *rand.Rand, used map[string]struct{}) string {
	for {
		ip := ippool.RandomIPv4(rng)
		if g.pools.Contains(ip) {
			continue
		}
		if _, dup := used[ip]; dup {
			continue
		}
		used[ip] = struct{}{}
		return ip
	}
}

// riskScore samples a score in [0,1] whose mean shifts up when the session is
// flagged high-velocity.
func riskScore(rng *rand.Rand, flagged bool) float64 {
	var score float64
	if flagged {
		score = 0.40 + 0.60*rng.Float64()
	} else {
		score = 0.70 * rng.Float64()
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// deviceFingerprint derives a fixed-length hash string from the user ID and
// a random nonce.
func deviceFingerprint(rng *rand.Rand, userID string) string {
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], rng.Uint64())

	h := murmur3.New128()
	h.Write([]byte(userID))
	h.Write(nonce[:])
	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo)
}
