// Package generation contains the adaptive generation core: attempt
// execution under deadline, output validation, and the cascading fallback
// orchestrator that drives a request across the ranked backend list.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/storyloom/storyloom-orchestrator/internal/backend"
	"github.com/storyloom/storyloom-orchestrator/internal/domain"
	"github.com/storyloom/storyloom-orchestrator/internal/tokens"
)

// Recorder receives terminal results for observability. Recording is
// best-effort and never fails the request.
type Recorder interface {
	Record(ctx context.Context, res *domain.Result) error
}

// Orchestrator runs the end-to-end fallback loop for one request at a
// time: select candidates, try each in order under its deadline, validate
// output, and stop at the first validated success or when the list is
// exhausted. Attempts within a request are strictly sequential; across
// requests the orchestrator is safe for concurrent use, since all mutable
// state is per-call.
type Orchestrator struct {
	registry  *backend.Registry
	executor  *Executor
	validator *Validator
	order     backend.TierOrder
	timeouts  map[domain.Kind]time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
	recorder  Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTierOrder sets the tier ranking policy.
func WithTierOrder(order backend.TierOrder) Option {
	return func(o *Orchestrator) { o.order = order }
}

// WithKindTimeout sets the default attempt deadline for a content kind,
// used when a descriptor carries no timeout of its own.
func WithKindTimeout(kind domain.Kind, timeout time.Duration) Option {
	return func(o *Orchestrator) { o.timeouts[kind] = timeout }
}

// WithValidator replaces the default validator.
func WithValidator(v *Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRecorder attaches a result recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an orchestrator over a registry.
func New(registry *backend.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		order:    backend.DefaultTierOrder(),
		timeouts: make(map[domain.Kind]time.Duration),
		logger:   slog.Default(),
		tracer:   otel.Tracer("storyloom/generation"),
	}
	o.validator = NewValidator(ValidatorConfig{})
	for _, opt := range opts {
		opt(o)
	}
	o.executor = NewExecutor(o.validator, tokens.NewCounter(), o.logger, o.tracer)
	return o
}

// Generate drives one request to a terminal result.
//
// The caller only ever sees a final Result: timeouts, backend failures,
// and invalid-output rejections are handled inside the loop. The two
// configuration errors, NoEligibleBackendError and UnknownBackendError,
// surface as errors, as does caller cancellation.
func (o *Orchestrator) Generate(ctx context.Context, caps domain.DeviceCapabilities, req *domain.GenerationRequest) (*domain.Result, error) {
	if req == nil {
		return nil, fmt.Errorf("nil generation request")
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("invalid content kind %q", req.Kind)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	ctx, span := o.tracer.Start(ctx, "generation.orchestrate", trace.WithAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("generation.kind", string(req.Kind)),
	))
	defer span.End()

	candidates, err := o.candidates(caps, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	attempts := make([]domain.Attempt, 0, len(candidates))
	for _, desc := range candidates {
		timeout := o.timeoutFor(desc)

		for retry := 0; ; retry++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			attempt, artifact := o.executor.Run(ctx, desc, req, timeout, retry)
			attempts = append(attempts, attempt)

			if attempt.Outcome == domain.OutcomeSucceeded {
				result := &domain.Result{
					RequestID: req.RequestID,
					Kind:      req.Kind,
					Artifact:  artifact,
					BackendID: desc.ID,
					Attempts:  attempts,
				}
				span.SetAttributes(attribute.String("result.backend_id", desc.ID))
				o.record(ctx, result)
				return result, nil
			}

			// Same-backend retry applies only to invalid-output
			// rejections; a timed-out or failed backend is not asked
			// again. The first rejection triggers an immediate
			// regeneration; the budget bounds how many more follow.
			if attempt.Outcome == domain.OutcomeRejectedInvalid &&
				desc.MaxInvalidRetries > 0 && retry <= desc.MaxInvalidRetries {
				continue
			}
			break
		}
	}

	result := &domain.Result{
		RequestID: req.RequestID,
		Kind:      req.Kind,
		Exhausted: true,
		Attempts:  attempts,
	}
	span.SetAttributes(attribute.Bool("result.exhausted", true))
	o.logger.Warn("all generation backends exhausted",
		slog.String("request_id", req.RequestID),
		slog.String("kind", string(req.Kind)),
		slog.Int("attempts", len(attempts)))
	o.record(ctx, result)
	return result, nil
}

// candidates resolves the ordered backend list, honoring a forced
// override.
func (o *Orchestrator) candidates(caps domain.DeviceCapabilities, req *domain.GenerationRequest) ([]*backend.Descriptor, error) {
	if req.ForcedBackendID != "" {
		desc, found := o.registry.Lookup(req.ForcedBackendID)
		if !found || desc.Kind != req.Kind {
			return nil, &domain.UnknownBackendError{ID: req.ForcedBackendID, Kind: req.Kind}
		}
		return []*backend.Descriptor{desc}, nil
	}
	return backend.Select(o.registry, req.Kind, caps, o.order)
}

func (o *Orchestrator) timeoutFor(desc *backend.Descriptor) time.Duration {
	if desc.DefaultTimeout > 0 {
		return desc.DefaultTimeout
	}
	if t := o.timeouts[desc.Kind]; t > 0 {
		return t
	}
	return backend.DefaultAttemptTimeout
}

func (o *Orchestrator) record(ctx context.Context, res *domain.Result) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, res); err != nil {
		o.logger.Error("failed to record generation result",
			slog.String("request_id", res.RequestID),
			slog.String("error", err.Error()))
	}
}
