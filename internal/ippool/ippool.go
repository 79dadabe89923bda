package ippool

import (
	"fmt"
	"math/rand"
)

// Pools holds the two synthetic IP pools for a generation run: the shared
// pool many users may draw from, and the smaller high-velocity pool whose
// members mark a session as suspicious. The two sets are disjoint by
// construction and immutable after New returns, so they are safe to share
// across concurrent generation workers without locking.
type Pools struct {
	shared       []string
	highVelocity []string
	sharedSet    map[string]struct{}
	velocitySet  map[string]struct{}
}

// New builds disjoint shared and high-velocity pools using rng. Sizes must be
// positive; the caller validates them via config.
func New(rng *rand.Rand, sharedSize, highVelocitySize int) *Pools {
	p := &Pools{
		shared:       make([]string, 0, sharedSize),
		highVelocity: make([]string, 0, highVelocitySize),
		sharedSet:    make(map[string]struct{}, sharedSize),
		velocitySet:  make(map[string]struct{}, highVelocitySize),
	}

	for len(p.shared) < sharedSize {
		ip := RandomIPv4(rng)
		if _, dup := p.sharedSet[ip]; dup {
			continue
		}
		p.sharedSet[ip] = struct{}{}
		p.shared = append(p.shared, ip)
	}

	for len(p.highVelocity) < highVelocitySize {
		ip := RandomIPv4(rng)
		if _, dup := p.sharedSet[ip]; dup {
			continue
		}
		if _, dup := p.velocitySet[ip]; dup {
			continue
		}
		p.velocitySet[ip] = struct{}{}
		p.highVelocity = append(p.highVelocity, ip)
	}

	return p
}

// PickShared draws uniformly from the shared pool using the caller's rng.
func (p *Pools) PickShared(rng *rand.Rand) string {
	return p.shared[rng.Intn(len(p.shared))]
}

// PickHighVelocity draws uniformly from the high-velocity pool.
func (p *Pools) PickHighVelocity(rng *rand.Rand) string {
	return p.highVelocity[rng.Intn(len(p.highVelocity))]
}

// IsHighVelocity reports whether ip belongs to the high-velocity pool.
func (p *Pools) IsHighVelocity(ip string) bool {
	_, ok := p.velocitySet[ip]
	return ok
}

// Contains reports whether ip belongs to either pool.
func (p *Pools) Contains(ip string) bool {
	if _, ok := p.sharedSet[ip]; ok {
		return true
	}
	_, ok := p.velocitySet[ip]
	return ok
}

func (p *Pools) SharedSize() int       { return len(p.shared) }
func (p *Pools) HighVelocitySize() int { return len(p.highVelocity) }

// RandomIPv4 returns a synthetic dotted-quad address. Octets stay in 1..254
// to avoid network and broadcast forms that would look wrong in reports.
func RandomIPv4(rng *rand.Rand) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		1+rng.Intn(254),
		1+rng.Intn(254),
		1+rng.Intn(254),
		1+rng.Intn(254),
	)
}
