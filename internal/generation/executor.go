package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/storyloom/storyloom-orchestrator/internal/backend"
	"github.com/storyloom/storyloom-orchestrator/internal/domain"
	"github.com/storyloom/storyloom-orchestrator/internal/tokens"
)

// Executor runs a single backend invocation under a hard wall-clock
// deadline and hands the produced artifact to the validator before the
// attempt can be marked succeeded.
type Executor struct {
	validator *Validator
	counter   *tokens.Counter
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewExecutor creates an executor.
func NewExecutor(validator *Validator, counter *tokens.Counter, logger *slog.Logger, tracer trace.Tracer) *Executor {
	return &Executor{
		validator: validator,
		counter:   counter,
		logger:    logger,
		tracer:    tracer,
	}
}

type callResult struct {
	artifact *domain.Artifact
	err      error
}

// Run executes one attempt. The returned artifact is non-nil only when the
// attempt outcome is succeeded.
//
// On deadline expiry the in-flight call's context is cancelled, not merely
// abandoned: a cooperative backend releases its resources immediately, and
// an uncooperative one has its late result discarded through the buffered
// channel so its goroutine still exits. No attempt leaks a running task
// past its own deadline into a later attempt's accounting.
func (e *Executor) Run(ctx context.Context, desc *backend.Descriptor, req *domain.GenerationRequest, timeout time.Duration, retry int) (domain.Attempt, *domain.Artifact) {
	if timeout <= 0 {
		timeout = backend.DefaultAttemptTimeout
	}

	attempt := domain.Attempt{
		BackendID: desc.ID,
		Tier:      desc.Tier,
		Retry:     retry,
		StartedAt: time.Now().UTC(),
		Outcome:   domain.OutcomePending,
	}

	ctx, span := e.tracer.Start(ctx, "generation.attempt", trace.WithAttributes(
		attribute.String("backend.id", desc.ID),
		attribute.String("backend.tier", string(desc.Tier)),
		attribute.String("generation.kind", string(req.Kind)),
		attribute.Int("attempt.retry", retry),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		artifact, err := desc.Invoke(callCtx, req)
		done <- callResult{artifact: artifact, err: err}
	}()

	select {
	case <-callCtx.Done():
		attempt.CompletedAt = time.Now().UTC()
		ctxErr := callCtx.Err()
		attempt.ErrorDetail = ctxErr.Error()
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			attempt.Outcome = domain.OutcomeTimedOut
		} else {
			// Parent cancellation, not this attempt's deadline.
			attempt.Outcome = domain.OutcomeFailed
		}
		e.logAttempt(req, attempt)
		return attempt, nil

	case res := <-done:
		attempt.CompletedAt = time.Now().UTC()

		if res.err != nil {
			attempt.Outcome = domain.OutcomeFailed
			attempt.ErrorDetail = res.err.Error()
			e.logAttempt(req, attempt)
			return attempt, nil
		}

		verdict := e.validator.Validate(req.Kind, res.artifact)
		if !verdict.OK {
			attempt.Outcome = domain.OutcomeRejectedInvalid
			attempt.RejectReason = verdict.Reason
			span.SetAttributes(attribute.String("attempt.reject_reason", verdict.Reason))
			e.logAttempt(req, attempt)
			return attempt, nil
		}

		if req.Kind == domain.KindText && e.counter != nil {
			attempt.TextTokens = e.counter.Count(res.artifact.Text)
		}
		attempt.Outcome = domain.OutcomeSucceeded
		e.logAttempt(req, attempt)
		return attempt, res.artifact
	}
}

func (e *Executor) logAttempt(req *domain.GenerationRequest, attempt domain.Attempt) {
	attrs := []any{
		slog.String("request_id", req.RequestID),
		slog.String("backend_id", attempt.BackendID),
		slog.String("tier", string(attempt.Tier)),
		slog.Int("retry", attempt.Retry),
		slog.String("outcome", string(attempt.Outcome)),
		slog.Duration("duration", attempt.CompletedAt.Sub(attempt.StartedAt)),
	}
	if attempt.ErrorDetail != "" {
		attrs = append(attrs, slog.String("error", attempt.ErrorDetail))
	}
	if attempt.RejectReason != "" {
		attrs = append(attrs, slog.String("reject_reason", attempt.RejectReason))
	}
	e.logger.Info("generation attempt finished", attrs...)
}
