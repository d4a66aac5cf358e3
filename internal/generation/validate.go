package generation

import (
	"strings"
	"unicode/utf8"

	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

// Reject reasons reported in the attempts log.
const (
	ReasonEmptyArtifact = "empty_artifact"
	ReasonTextTooShort  = "text_too_short"
	ReasonDebugSentinel = "debug_sentinel"
	ReasonAudioTooSmall = "audio_too_small"
	ReasonKindMismatch  = "kind_mismatch"
)

// Validator defaults, used when configuration leaves a threshold unset.
const (
	DefaultMinTextChars  = 40
	DefaultMinAudioBytes = 1024
)

// defaultTextSentinels are opening markers a model emits when it leaks
// control tokens or internal debug output instead of story text. Matching
// any of them is a machine-detectable failure, never shipped to a user.
var defaultTextSentinels = []string{
	"<|",
	"<s>",
	"[INST]",
	"[DEBUG",
	"DEBUG:",
	"ERROR:",
}

// Verdict is the validator's ruling on one artifact.
type Verdict struct {
	OK     bool
	Reason string
}

func ok() Verdict { return Verdict{OK: true} }

func rejected(reason string) Verdict { return Verdict{Reason: reason} }

// ValidatorConfig carries the integrity thresholds. Zero values select
// the defaults above.
type ValidatorConfig struct {
	MinTextChars  int
	TextSentinels []string
	MinAudioBytes int
}

// Validator inspects produced artifacts for integrity. A rejected
// artifact is treated exactly like a backend failure for fallback
// purposes.
type Validator struct {
	minTextChars  int
	textSentinels []string
	minAudioBytes int
}

// NewValidator builds a validator from config, filling unset thresholds
// with defaults.
func NewValidator(cfg ValidatorConfig) *Validator {
	v := &Validator{
		minTextChars:  cfg.MinTextChars,
		textSentinels: cfg.TextSentinels,
		minAudioBytes: cfg.MinAudioBytes,
	}
	if v.minTextChars <= 0 {
		v.minTextChars = DefaultMinTextChars
	}
	if v.minAudioBytes <= 0 {
		v.minAudioBytes = DefaultMinAudioBytes
	}
	if len(v.textSentinels) == 0 {
		v.textSentinels = defaultTextSentinels
	}
	return v
}

// Validate applies the per-kind integrity rules to an artifact.
func (v *Validator) Validate(kind domain.Kind, artifact *domain.Artifact) Verdict {
	if artifact.Empty() {
		return rejected(ReasonEmptyArtifact)
	}
	if artifact.Kind != "" && artifact.Kind != kind {
		return rejected(ReasonKindMismatch)
	}

	switch kind {
	case domain.KindText:
		return v.validateText(artifact.Text)
	case domain.KindAudio:
		return v.validateAudio(artifact.Audio)
	}
	return rejected(ReasonKindMismatch)
}

func (v *Validator) validateText(text string) Verdict {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return rejected(ReasonEmptyArtifact)
	}

	// A sentinel opening means the model emitted debug markers instead of
	// real content, regardless of how long the output is.
	for _, sentinel := range v.textSentinels {
		if strings.HasPrefix(trimmed, sentinel) {
			return rejected(ReasonDebugSentinel)
		}
	}

	if utf8.RuneCountInString(trimmed) < v.minTextChars {
		return rejected(ReasonTextTooShort)
	}
	return ok()
}

func (v *Validator) validateAudio(audio []byte) Verdict {
	if len(audio) == 0 {
		return rejected(ReasonEmptyArtifact)
	}
	// A tiny payload signals a silently-failed synthesis that still
	// returned a handle.
	if len(audio) < v.minAudioBytes {
		return rejected(ReasonAudioTooSmall)
	}
	return ok()
}
