package backend

import (
	"fmt"
	"sort"

	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

// TierOrder is the ranking policy applied across tiers. Tier order is
// policy, not hardwired law: the default prefers the device's own CPU over
// the network, and deployments that trust reachability and want cloud
// quality promote the cloud tier by configuration.
type TierOrder []domain.Tier

// DefaultTierOrder prefers native acceleration, then the universal CPU
// fallback, then cloud.
func DefaultTierOrder() TierOrder {
	return TierOrder{domain.TierNativeAccelerated, domain.TierLocalCPU, domain.TierCloud}
}

// CloudPreferredTierOrder promotes cloud above local CPU for deployments
// where the remote path is materially higher quality and the network is
// assumed reachable.
func CloudPreferredTierOrder() TierOrder {
	return TierOrder{domain.TierNativeAccelerated, domain.TierCloud, domain.TierLocalCPU}
}

// ParseTierOrder builds a TierOrder from configuration strings. Every
// recognized tier must appear exactly once.
func ParseTierOrder(names []string) (TierOrder, error) {
	if len(names) == 0 {
		return DefaultTierOrder(), nil
	}
	seen := make(map[domain.Tier]bool, len(names))
	order := make(TierOrder, 0, len(names))
	for _, name := range names {
		t := domain.Tier(name)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown tier %q in tier order", name)
		}
		if seen[t] {
			return nil, fmt.Errorf("tier %q listed twice in tier order", name)
		}
		seen[t] = true
		order = append(order, t)
	}
	if len(order) != 3 {
		return nil, fmt.Errorf("tier order must list all three tiers, got %d", len(order))
	}
	return order, nil
}

func (o TierOrder) rank(t domain.Tier) int {
	for i, tier := range o {
		if tier == t {
			return i
		}
	}
	// Unranked tiers sort last; cannot happen with a validated order.
	return len(o)
}

// Select returns the ordered candidate list for one request: registry
// entries of the requested kind whose capability requirement holds,
// ranked by tier with registration order breaking ties. Selection is pure
// and deterministic for identical inputs.
//
// Zero eligible entries is a configuration error, surfaced as
// NoEligibleBackendError rather than an empty list.
func Select(reg *Registry, kind domain.Kind, caps domain.DeviceCapabilities, order TierOrder) ([]*Descriptor, error) {
	if len(order) == 0 {
		order = DefaultTierOrder()
	}

	var candidates []*Descriptor
	for _, d := range reg.ForKind(kind) {
		if d.Eligible(caps) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil, &domain.NoEligibleBackendError{Kind: kind}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return order.rank(candidates[i].Tier) < order.rank(candidates[j].Tier)
	})
	return candidates, nil
}
