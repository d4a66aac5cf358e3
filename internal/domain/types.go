// Package domain defines the canonical types shared by the generation
// orchestrator: content kinds, backend tiers, device capabilities, and the
// request/attempt/result records that flow through a single orchestration.
package domain

import "time"

// Kind identifies the type of content a backend produces.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

// Valid reports whether k is a recognized content kind.
func (k Kind) Valid() bool {
	return k == KindText || k == KindAudio
}

// Kinds lists all recognized content kinds.
func Kinds() []Kind {
	return []Kind{KindText, KindAudio}
}

// Tier is the priority class of a generation backend.
type Tier string

const (
	// TierNativeAccelerated runs on device hardware acceleration (Tensor,
	// Neural Engine, NPU) with locally packaged model assets.
	TierNativeAccelerated Tier = "native_accelerated"

	// TierLocalCPU is the universal plain-CPU fallback.
	TierLocalCPU Tier = "local_cpu"

	// TierCloud is a remote generation service.
	TierCloud Tier = "cloud"
)

// Valid reports whether t is a recognized tier.
func (t Tier) Valid() bool {
	return t == TierNativeAccelerated || t == TierLocalCPU || t == TierCloud
}

// Platform is the client operating system family.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformUnknown Platform = "unknown"
)

// AcceleratorType identifies the on-device inference accelerator, if any.
type AcceleratorType string

const (
	AcceleratorTensor       AcceleratorType = "tensor"
	AcceleratorNeuralEngine AcceleratorType = "neural_engine"
	AcceleratorNPU          AcceleratorType = "npu"
	AcceleratorNone         AcceleratorType = "none"
)

// DeviceCapabilities is the immutable per-request snapshot of what the
// client hardware can run. It is derived once by the capability probe and
// passed by value through every layer; there is no ambient hardware state.
type DeviceCapabilities struct {
	Platform        Platform        `json:"platform"`
	HasAccelerator  bool            `json:"has_accelerator"`
	AcceleratorType AcceleratorType `json:"accelerator_type"`

	// localAssets records, per content kind, whether the matching packaged
	// model is present on disk. Unexported so the snapshot stays immutable
	// after construction.
	localAssets map[Kind]bool
}

// NewDeviceCapabilities builds a capability snapshot. The assets map is
// copied so later mutation by the caller cannot leak in.
func NewDeviceCapabilities(platform Platform, accel AcceleratorType, localAssets map[Kind]bool) DeviceCapabilities {
	caps := DeviceCapabilities{
		Platform:        platform,
		HasAccelerator:  accel != "" && accel != AcceleratorNone,
		AcceleratorType: accel,
	}
	if caps.AcceleratorType == "" {
		caps.AcceleratorType = AcceleratorNone
	}
	if len(localAssets) > 0 {
		caps.localAssets = make(map[Kind]bool, len(localAssets))
		for k, v := range localAssets {
			caps.localAssets[k] = v
		}
	}
	return caps
}

// HasLocalModelAssets reports whether the packaged model for the given
// content kind is present on the device.
func (c DeviceCapabilities) HasLocalModelAssets(kind Kind) bool {
	return c.localAssets[kind]
}

// GenerationRequest is one inbound generation call. Params are opaque to
// the orchestrator and passed through verbatim to the chosen backend.
type GenerationRequest struct {
	// RequestID is assigned by the orchestrator when empty.
	RequestID string `json:"request_id"`

	Kind   Kind           `json:"kind"`
	Prompt string         `json:"prompt"`
	Params map[string]any `json:"params,omitempty"`

	// ForcedBackendID bypasses selection for diagnostics and ops. The
	// forced backend still runs under its deadline, validation, and retry
	// budget.
	ForcedBackendID string `json:"forced_backend_id,omitempty"`
}

// Artifact is a produced piece of content. Exactly one of Text or Audio is
// populated, matching Kind.
type Artifact struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	Audio    []byte `json:"audio,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Empty reports whether the artifact carries no content at all.
func (a *Artifact) Empty() bool {
	if a == nil {
		return true
	}
	return a.Text == "" && len(a.Audio) == 0
}

// Outcome is the terminal state of a single backend attempt.
type Outcome string

const (
	OutcomePending         Outcome = "pending"
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeTimedOut        Outcome = "timed_out"
	OutcomeFailed          Outcome = "failed"
	OutcomeRejectedInvalid Outcome = "rejected_invalid_output"
)

// Attempt is the record of one backend try. Attempts are appended to the
// result log in execution order and never discarded, even on success: the
// log is part of the caller contract so upstream telemetry can see which
// fallbacks fired.
type Attempt struct {
	BackendID   string    `json:"backend_id"`
	Tier        Tier      `json:"tier"`
	Retry       int       `json:"retry"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Outcome     Outcome   `json:"outcome"`

	// ErrorDetail preserves the backend error verbatim on failure.
	ErrorDetail string `json:"error_detail,omitempty"`

	// RejectReason is set when the validator refused the output.
	RejectReason string `json:"reject_reason,omitempty"`

	// TextTokens is an approximate token count of a validated text
	// artifact, recorded for observability only.
	TextTokens int `json:"text_tokens,omitempty"`
}

// Result is the terminal outcome of one orchestration. It is immutable
// once returned.
type Result struct {
	RequestID string `json:"request_id"`
	Kind      Kind   `json:"kind"`

	// Artifact and BackendID are set only when the orchestration
	// succeeded.
	Artifact  *Artifact `json:"artifact,omitempty"`
	BackendID string    `json:"backend_id,omitempty"`

	// Exhausted is true when every eligible candidate (including retries)
	// failed or was rejected.
	Exhausted bool `json:"exhausted"`

	Attempts []Attempt `json:"attempts"`
}

// Succeeded reports whether the orchestration produced a validated
// artifact.
func (r *Result) Succeeded() bool {
	return r != nil && !r.Exhausted && r.Artifact != nil
}
