package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/storyloom/storyloom-orchestrator/internal/backend"
	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

type stubGenerator struct {
	lastCaps domain.DeviceCapabilities
	lastReq  *domain.GenerationRequest
	result   *domain.Result
	err      error
}

func (s *stubGenerator) Generate(ctx context.Context, caps domain.DeviceCapabilities, req *domain.GenerationRequest) (*domain.Result, error) {
	s.lastCaps = caps
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	res.RequestID = req.RequestID
	res.Kind = req.Kind
	return &res, nil
}

func testRegistry(t *testing.T) *backend.Registry {
	t.Helper()
	reg, err := backend.NewRegistry(
		&backend.Descriptor{
			ID: "cpu-composer", Kind: domain.KindText, Tier: domain.TierLocalCPU,
			MaxInvalidRetries: 1,
			Invoke: func(ctx context.Context, req *domain.GenerationRequest) (*domain.Artifact, error) {
				return &domain.Artifact{Kind: req.Kind, Text: "unused"}, nil
			},
		},
		&backend.Descriptor{
			ID: "story-cloud", Kind: domain.KindText, Tier: domain.TierCloud,
			DefaultTimeout: 45 * time.Second,
			Invoke: func(ctx context.Context, req *domain.GenerationRequest) (*domain.Artifact, error) {
				return &domain.Artifact{Kind: req.Kind, Text: "unused"}, nil
			},
		},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func newTestServer(t *testing.T, gen Generator) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(0, logger, NewHandlers(gen, testRegistry(t), logger))
}

func successResult() *domain.Result {
	return &domain.Result{
		BackendID: "cpu-composer",
		Artifact:  &domain.Artifact{Kind: domain.KindText, Text: "a story"},
		Attempts:  []domain.Attempt{{BackendID: "cpu-composer", Outcome: domain.OutcomeSucceeded}},
	}
}

func postGenerate(t *testing.T, srv *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	return rec
}

func TestHandleGenerate_Success(t *testing.T) {
	gen := &stubGenerator{result: successResult()}
	srv := newTestServer(t, gen)

	rec := postGenerate(t, srv, `{"kind":"text","prompt":"a bedtime story"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}

	var res domain.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("response not valid JSON: %v", err)
	}
	if res.BackendID != "cpu-composer" || res.Artifact == nil {
		t.Errorf("response = %+v, missing backend or artifact", res)
	}
	if res.RequestID == "" {
		t.Error("response missing request id")
	}
	if rec.Header().Get("X-Request-ID") != res.RequestID {
		t.Error("X-Request-ID header does not match body request id")
	}
	if gen.lastReq.Prompt != "a bedtime story" {
		t.Errorf("prompt = %q, not forwarded verbatim", gen.lastReq.Prompt)
	}
}

func TestHandleGenerate_DeviceFlagsProbed(t *testing.T) {
	gen := &stubGenerator{result: successResult()}
	srv := newTestServer(t, gen)

	body := `{
		"kind": "text",
		"prompt": "a story",
		"device": {
			"platform": "android",
			"has_accelerator": true,
			"accelerator_type": "tensor",
			"local_model_assets": {"text": true}
		}
	}`
	rec := postGenerate(t, srv, body, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gen.lastCaps.Platform != domain.PlatformAndroid || gen.lastCaps.AcceleratorType != domain.AcceleratorTensor {
		t.Errorf("caps = %+v, flags not probed", gen.lastCaps)
	}
	if !gen.lastCaps.HasLocalModelAssets(domain.KindText) {
		t.Error("local asset flag not carried into capabilities")
	}
}

func TestHandleGenerate_DeviceInfoHeaderFallback(t *testing.T) {
	gen := &stubGenerator{result: successResult()}
	srv := newTestServer(t, gen)

	rec := postGenerate(t, srv, `{"kind":"text","prompt":"a story"}`, map[string]string{
		"X-Device-Info": "Pixel 9 Pro; Android 15",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gen.lastCaps.AcceleratorType != domain.AcceleratorTensor {
		t.Errorf("accelerator = %s, header heuristic not applied", gen.lastCaps.AcceleratorType)
	}
}

func TestHandleGenerate_ClientRequestIDHonored(t *testing.T) {
	gen := &stubGenerator{result: successResult()}
	srv := newTestServer(t, gen)

	rec := postGenerate(t, srv, `{"kind":"text","prompt":"a story"}`, map[string]string{
		"X-Request-ID": "client-supplied-1",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gen.lastReq.RequestID != "client-supplied-1" {
		t.Errorf("request id = %s, client value not propagated", gen.lastReq.RequestID)
	}
}

func TestHandleGenerate_Exhausted(t *testing.T) {
	gen := &stubGenerator{result: &domain.Result{
		Exhausted: true,
		Attempts: []domain.Attempt{
			{BackendID: "cpu-composer", Outcome: domain.OutcomeFailed, ErrorDetail: "engine crashed"},
			{BackendID: "story-cloud", Outcome: domain.OutcomeTimedOut},
		},
	}}
	srv := newTestServer(t, gen)

	rec := postGenerate(t, srv, `{"kind":"text","prompt":"a story"}`, nil)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var res domain.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("response not valid JSON: %v", err)
	}
	if !res.Exhausted || len(res.Attempts) != 2 {
		t.Errorf("exhausted body = %+v, attempt log not surfaced", res)
	}
}

func TestHandleGenerate_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing kind", `{"prompt":"a story"}`},
		{"bad kind", `{"kind":"video","prompt":"a story"}`},
		{"missing prompt", `{"kind":"text"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubGenerator{result: successResult()})
			rec := postGenerate(t, srv, tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"unknown backend", &domain.UnknownBackendError{ID: "nope", Kind: domain.KindText}, http.StatusBadRequest, "unknown_backend"},
		{"no eligible backend", &domain.NoEligibleBackendError{Kind: domain.KindAudio}, http.StatusInternalServerError, "no_eligible_backend"},
		{"cancelled", context.Canceled, http.StatusGatewayTimeout, "request_cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubGenerator{err: tt.err})
			rec := postGenerate(t, srv, `{"kind":"text","prompt":"a story"}`, nil)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("error body not valid JSON: %v", err)
			}
			if resp.Error.Type != tt.wantType {
				t.Errorf("error type = %s, want %s", resp.Error.Type, tt.wantType)
			}
		})
	}
}

func TestHandleListBackends(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{result: successResult()})

	req := httptest.NewRequest("GET", "/v1/backends", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Backends []backendView `json:"backends"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not valid JSON: %v", err)
	}
	if len(resp.Backends) != 2 {
		t.Fatalf("backends = %d, want 2", len(resp.Backends))
	}
	if resp.Backends[0].ID != "cpu-composer" || resp.Backends[0].Tier != "local_cpu" {
		t.Errorf("first backend = %+v, registration order lost", resp.Backends[0])
	}
	if resp.Backends[1].DefaultTimeout != "45s" {
		t.Errorf("DefaultTimeout = %s, want 45s", resp.Backends[1].DefaultTimeout)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{result: successResult()})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s, missing ok status", rec.Body.String())
	}
}
