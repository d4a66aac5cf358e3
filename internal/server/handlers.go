package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/storyloom/storyloom-orchestrator/internal/backend"
	"github.com/storyloom/storyloom-orchestrator/internal/capability"
	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

// Generator runs the fallback chain for one request. Satisfied by
// generation.Orchestrator; narrowed to an interface so handler tests can
// substitute a stub.
type Generator interface {
	Generate(ctx context.Context, caps domain.DeviceCapabilities, req *domain.GenerationRequest) (*domain.Result, error)
}

// Handlers wires the HTTP surface to the orchestrator and registry.
type Handlers struct {
	generator Generator
	registry  *backend.Registry
	logger    *slog.Logger
}

func NewHandlers(generator Generator, registry *backend.Registry, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{generator: generator, registry: registry, logger: logger}
}

// deviceFlagsPayload mirrors capability.HardwareFlags on the wire.
type deviceFlagsPayload struct {
	Platform         string          `json:"platform"`
	HasAccelerator   bool            `json:"has_accelerator"`
	AcceleratorType  string          `json:"accelerator_type,omitempty"`
	LocalModelAssets map[string]bool `json:"local_model_assets,omitempty"`
}

type generatePayload struct {
	Kind         string              `json:"kind"`
	Prompt       string              `json:"prompt"`
	Params       map[string]any      `json:"params,omitempty"`
	BackendID    string              `json:"backend_id,omitempty"`
	Device       *deviceFlagsPayload `json:"device,omitempty"`
	ClientDevice string              `json:"client_device,omitempty"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HandleGenerate handles POST /v1/generate.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload generatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}

	kind := domain.Kind(payload.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "kind must be one of: text, audio")
		return
	}
	if payload.Prompt == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}

	caps := capability.Probe(h.signals(r, &payload))
	AddLogField(ctx, "platform", string(caps.Platform))
	AddLogField(ctx, "accelerator", string(caps.AcceleratorType))

	req := &domain.GenerationRequest{
		RequestID:       GetRequestID(r.Context()),
		Kind:            kind,
		Prompt:          payload.Prompt,
		Params:          payload.Params,
		ForcedBackendID: payload.BackendID,
	}

	res, err := h.generator.Generate(ctx, caps, req)
	if err != nil {
		AddError(ctx, err)
		switch {
		case domain.IsUnknownBackend(err):
			writeError(w, http.StatusBadRequest, "unknown_backend", err.Error())
		case domain.IsNoEligibleBackend(err):
			writeError(w, http.StatusInternalServerError, "no_eligible_backend", err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "request_cancelled", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	AddLogField(ctx, "backend_id", res.BackendID)
	AddLogField(ctx, "attempts", strconv.Itoa(len(res.Attempts)))

	status := http.StatusOK
	if res.Exhausted {
		AddLogField(ctx, "exhausted", "true")
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

// signals assembles the capability probe input: structured flags from the
// body win, then the body's client string, then the X-Device-Info header,
// then the User-Agent.
func (h *Handlers) signals(r *http.Request, payload *generatePayload) capability.Signals {
	sig := capability.Signals{ClientDevice: payload.ClientDevice}
	if sig.ClientDevice == "" {
		sig.ClientDevice = r.Header.Get("X-Device-Info")
	}
	if sig.ClientDevice == "" {
		sig.ClientDevice = r.Header.Get("User-Agent")
	}

	if payload.Device != nil {
		flags := &capability.HardwareFlags{
			Platform:        domain.Platform(payload.Device.Platform),
			HasAccelerator:  payload.Device.HasAccelerator,
			AcceleratorType: domain.AcceleratorType(payload.Device.AcceleratorType),
		}
		if len(payload.Device.LocalModelAssets) > 0 {
			flags.LocalModelAssets = make(map[domain.Kind]bool, len(payload.Device.LocalModelAssets))
			for k, v := range payload.Device.LocalModelAssets {
				flags.LocalModelAssets[domain.Kind(k)] = v
			}
		}
		sig.Flags = flags
	}

	return sig
}

type backendView struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
	Tier              string `json:"tier"`
	DefaultTimeout    string `json:"default_timeout,omitempty"`
	MaxInvalidRetries int    `json:"max_invalid_retries,omitempty"`
}

// HandleListBackends handles GET /v1/backends. It reports the registered
// descriptors, not per-device eligibility.
func (h *Handlers) HandleListBackends(w http.ResponseWriter, r *http.Request) {
	descs := h.registry.Descriptors()
	views := make([]backendView, 0, len(descs))
	for _, d := range descs {
		v := backendView{
			ID:                d.ID,
			Kind:              string(d.Kind),
			Tier:              string(d.Tier),
			MaxInvalidRetries: d.MaxInvalidRetries,
		}
		if d.DefaultTimeout > 0 {
			v.DefaultTimeout = d.DefaultTimeout.String()
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"backends": views})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Type: errType, Message: message}})
}
