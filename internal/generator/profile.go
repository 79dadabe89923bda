package generator

import "math/rand"

// Profile is a user's behavioral category for one generation run. It is
// decided exactly once per user and threaded explicitly through session
// construction, never re-rolled per session.
type Profile int

const (
	ProfileNormal Profile = iota
	ProfileHighVelocity
)

func (p Profile) String() string {
	if p == ProfileHighVelocity {
		return "high_velocity"
	}
	return "normal"
}

// Classify draws a user's profile: a uniform value below rate marks the user
// high-velocity for the remainder of the run.
func Classify(rng *rand.Rand, rate float64) Profile {
	if rng.Float64() < rate {
		return ProfileHighVelocity
	}
	return ProfileNormal
}
