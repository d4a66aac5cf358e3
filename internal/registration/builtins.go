// Package registration wires built-in backend factories and builds the
// registry from configuration. Registration is explicit, called from
// cmd/orchestrator or the embedding host before any request is served;
// there are no init-based side effects.
package registration

import (
	"fmt"

	"github.com/storyloom/storyloom-orchestrator/internal/backend"
	"github.com/storyloom/storyloom-orchestrator/internal/backend/cloud"
	"github.com/storyloom/storyloom-orchestrator/internal/domain"
	"github.com/storyloom/storyloom-orchestrator/internal/pkg/config"
)

// RegisterBuiltins registers the built-in backend factories. Today that is
// only the cloud type; on-device engine factories come from the embedding
// application.
func RegisterBuiltins() {
	if !backend.IsRegistered(cloud.BackendType) {
		backend.RegisterFactory(cloud.Factory())
	}
}

// BuildRegistry turns the configured backend list into a registry. Order
// in configuration is preserved and breaks ties within a tier.
func BuildRegistry(cfg *config.Config) (*backend.Registry, error) {
	descs := make([]*backend.Descriptor, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		desc, err := buildDescriptor(bc)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	return backend.NewRegistry(descs...)
}

func buildDescriptor(bc config.BackendConfig) (*backend.Descriptor, error) {
	kind := domain.Kind(bc.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("backend %s: invalid kind %q", bc.ID, bc.Kind)
	}

	tier := domain.Tier(bc.Tier)
	invoke, err := backend.CreateFromFactory(bc)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", bc.ID, err)
	}

	timeout, err := bc.ParseTimeout()
	if err != nil {
		return nil, err
	}

	desc := &backend.Descriptor{
		ID:                bc.ID,
		Kind:              kind,
		Tier:              tier,
		Requires:          requirementFor(tier, kind),
		DefaultTimeout:    timeout,
		MaxInvalidRetries: bc.MaxInvalidRetries,
		Invoke:            invoke,
	}
	return desc, nil
}

// requirementFor maps a tier to its hardware gate. The accelerated tier
// needs both an accelerator and the packaged model on device; local_cpu
// and cloud run anywhere.
func requirementFor(tier domain.Tier, kind domain.Kind) backend.Requirement {
	if tier == domain.TierNativeAccelerated {
		return backend.AcceleratedWithAssets(kind)
	}
	return backend.AnyDevice
}
