// Package orchestrator provides the public API for embedding the adaptive
// generation orchestrator. This is the stable API for external consumers;
// host applications register their on-device engine factories and call
// Generate per request.
package orchestrator

import (
	"github.com/storyloom/storyloom-orchestrator/internal/backend"
	"github.com/storyloom/storyloom-orchestrator/internal/capability"
	"github.com/storyloom/storyloom-orchestrator/internal/domain"
	"github.com/storyloom/storyloom-orchestrator/internal/generation"
)

// Orchestrator runs the rank, attempt, validate, fall back loop.
// See internal/generation.Orchestrator for full documentation.
type Orchestrator = generation.Orchestrator

// Option is a functional option for configuring an Orchestrator.
type Option = generation.Option

// New creates a new Orchestrator over a backend registry.
// Example:
//
//	reg, err := orchestrator.NewRegistry(descriptors...)
//	orch := orchestrator.New(reg,
//	    orchestrator.WithKindTimeout(orchestrator.KindText, 20*time.Second),
//	)
var New = generation.New

// Orchestrator options
var (
	WithTierOrder   = generation.WithTierOrder
	WithKindTimeout = generation.WithKindTimeout
	WithValidator   = generation.WithValidator
	WithLogger      = generation.WithLogger
	WithRecorder    = generation.WithRecorder
)

// Core request and result types.
type (
	Kind               = domain.Kind
	Tier               = domain.Tier
	GenerationRequest  = domain.GenerationRequest
	Artifact           = domain.Artifact
	Attempt            = domain.Attempt
	Outcome            = domain.Outcome
	Result             = domain.Result
	DeviceCapabilities = domain.DeviceCapabilities
)

const (
	KindText  = domain.KindText
	KindAudio = domain.KindAudio

	TierNativeAccelerated = domain.TierNativeAccelerated
	TierLocalCPU          = domain.TierLocalCPU
	TierCloud             = domain.TierCloud
)

// Capability probing.
type (
	Signals       = capability.Signals
	HardwareFlags = capability.HardwareFlags
)

var (
	Probe                 = capability.Probe
	NewDeviceCapabilities = domain.NewDeviceCapabilities
	IsNoEligibleBackend   = domain.IsNoEligibleBackend
	IsUnknownBackend      = domain.IsUnknownBackend
)

// Backend registry and descriptors.
type (
	Registry    = backend.Registry
	Descriptor  = backend.Descriptor
	InvokeFunc  = backend.InvokeFunc
	Requirement = backend.Requirement
	Factory     = backend.Factory
	TierOrder   = backend.TierOrder
)

var (
	NewRegistry           = backend.NewRegistry
	RegisterFactory       = backend.RegisterFactory
	AnyDevice             = backend.AnyDevice
	AcceleratedWithAssets = backend.AcceleratedWithAssets
	DefaultTierOrder      = backend.DefaultTierOrder
	CloudPreferredOrder   = backend.CloudPreferredTierOrder
	ParseTierOrder        = backend.ParseTierOrder
)
