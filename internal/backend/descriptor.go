// Package backend holds the registry of generation backends and the pure
// selection policy that ranks them for a given device.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

// DefaultAttemptTimeout applies when neither the descriptor nor the
// per-kind configuration sets a deadline.
const DefaultAttemptTimeout = 30 * time.Second

// InvokeFunc runs one generation call against a backend. Implementations
// must honor ctx cancellation; callers additionally guard against
// uncooperative backends by discarding late results.
type InvokeFunc func(ctx context.Context, req *domain.GenerationRequest) (*domain.Artifact, error)

// Requirement is a predicate over device capabilities. A descriptor is a
// selection candidate only when its requirement holds.
type Requirement func(caps domain.DeviceCapabilities) bool

// AnyDevice is the always-true requirement. Every kind's CPU fallback
// registers with it so the candidate list can never be empty under normal
// configuration.
func AnyDevice(domain.DeviceCapabilities) bool { return true }

// AcceleratedWithAssets requires both an on-device accelerator and the
// packaged model assets for the given kind. Assets missing on disk
// disqualify the native tier even when the accelerator is present.
func AcceleratedWithAssets(kind domain.Kind) Requirement {
	return func(caps domain.DeviceCapabilities) bool {
		return caps.HasAccelerator && caps.HasLocalModelAssets(kind)
	}
}

// Descriptor is one static registry entry for a generation backend.
type Descriptor struct {
	// ID uniquely identifies the backend within the registry.
	ID string

	// Kind is the content kind this backend produces.
	Kind domain.Kind

	// Tier is the priority class used for ranking.
	Tier domain.Tier

	// Requires gates eligibility per device. Nil means AnyDevice.
	Requires Requirement

	// DefaultTimeout is the per-attempt wall-clock deadline. Zero falls
	// back to the per-kind configured timeout, then DefaultAttemptTimeout.
	DefaultTimeout time.Duration

	// MaxInvalidRetries bounds same-backend regeneration after the
	// validator rejects an output. Zero disables retry; timeouts and hard
	// failures never retry.
	MaxInvalidRetries int

	// Invoke performs the actual generation call.
	Invoke InvokeFunc
}

func (d *Descriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("backend descriptor missing id")
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("backend %s: invalid kind %q", d.ID, d.Kind)
	}
	if !d.Tier.Valid() {
		return fmt.Errorf("backend %s: invalid tier %q", d.ID, d.Tier)
	}
	if d.Invoke == nil {
		return fmt.Errorf("backend %s: missing invoke function", d.ID)
	}
	if d.MaxInvalidRetries < 0 {
		return fmt.Errorf("backend %s: negative max invalid retries", d.ID)
	}
	return nil
}

// Eligible reports whether the descriptor's requirement holds for caps.
func (d *Descriptor) Eligible(caps domain.DeviceCapabilities) bool {
	if d.Requires == nil {
		return true
	}
	return d.Requires(caps)
}
