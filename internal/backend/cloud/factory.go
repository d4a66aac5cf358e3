package cloud

import (
	"fmt"
	"net/http"

	"github.com/storyloom/storyloom-orchestrator/internal/backend"
	"github.com/storyloom/storyloom-orchestrator/internal/domain"
	"github.com/storyloom/storyloom-orchestrator/internal/pkg/config"
	"github.com/storyloom/storyloom-orchestrator/internal/pkg/safehttp"
)

// BackendType is the backend type identifier used in configuration.
const BackendType = "cloud"

// Factory returns the registration entry for the cloud backend type.
// Registered by internal/registration, not from init().
func Factory() backend.Factory {
	return backend.Factory{
		Type:           BackendType,
		Description:    "Hosted generation service over HTTPS",
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	}
}

// CreateFromConfig creates a cloud invoke function from configuration.
// Outbound requests go through the SSRF-safe transport.
func CreateFromConfig(cfg config.BackendConfig) (backend.InvokeFunc, error) {
	client := NewClient(cfg.BaseURL, cfg.APIKey,
		WithHTTPClient(&http.Client{Transport: safehttp.SafeTransport}))

	switch domain.Kind(cfg.Kind) {
	case domain.KindText:
		return client.GenerateText, nil
	case domain.KindAudio:
		return client.GenerateAudio, nil
	default:
		return nil, fmt.Errorf("cloud backend %s: unsupported kind %q", cfg.ID, cfg.Kind)
	}
}

// ValidateConfig validates the cloud backend configuration.
func ValidateConfig(cfg config.BackendConfig) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("cloud backend %s: base_url is required", cfg.ID)
	}
	return nil
}
