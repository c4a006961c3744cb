package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/drblury/topicflow/internal/engine/envelope"
	"github.com/drblury/topicflow/internal/engine/errs"
	"github.com/drblury/topicflow/internal/engine/logging"
	"github.com/drblury/topicflow/internal/engine/schema"
	"github.com/drblury/topicflow/internal/engine/topic"
	"github.com/drblury/topicflow/internal/engine/tracecontext"
	"github.com/drblury/topicflow/internal/engine/tracing"
)

// DefaultTimeout bounds business function execution when neither the handler
// registration nor the router supplies a deadline.
const DefaultTimeout = 5 * time.Second

// MessageBinding ties a topic pattern to the schema its payload must satisfy.
type MessageBinding struct {
	Pattern     string
	Schema      schema.Schema
	Description string
}

// Input is what the business function receives: the validated payload, the
// placeholder captures from the accept pattern, and the active trace context.
type Input struct {
	Data   any
	Params map[string]string
	Trace  tracecontext.TraceContext
}

// Output is one event returned by the business function. Type and Data are
// required; the remaining fields override the engine's routing-metadata
// derivation when non-empty.
type Output struct {
	Type           string
	Data           any
	Subject        string
	Source         string
	To             string
	RedirectTo     string
	ExecutionUnits string
}

// HandlerFunc is the business function wrapped by a Handler.
type HandlerFunc func(ctx context.Context, in Input) ([]Output, error)

// HandlerRegistration declares everything a handler commits to: the one
// topic pattern it accepts, the patterns it may emit, and the business
// function. Immutable after NewHandler except for the late-bound logger and
// tracer.
type HandlerRegistration struct {
	Name        string
	Description string
	Accepts     MessageBinding
	Emits       []MessageBinding
	Handler     HandlerFunc

	// Timeout bounds business function execution. Zero means inherit the
	// router default, falling back to DefaultTimeout.
	Timeout time.Duration

	// ExecutionUnits is the fixed cost stamped on emitted envelopes unless
	// an Output overrides it. Empty means "0".
	ExecutionUnits string

	// DisableRoutingMetadata forces the "to" extension of emitted envelopes
	// to null so results never route onward automatically.
	DisableRoutingMetadata bool
}

// Handler wraps one business function with input validation, deadline
// enforcement, output validation, and envelope construction.
type Handler struct {
	reg             HandlerRegistration
	emitPatterns    []string
	fallbackTimeout time.Duration

	logger    logging.ServiceLogger
	loggerSet bool
	tracer    tracing.Tracer
	tracerSet bool
}

// HandlerOption injects optional collaborators at handler construction.
type HandlerOption func(*Handler)

// WithLogger attaches a logger to the handler, overriding any router-level
// logger.
func WithLogger(logger logging.ServiceLogger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
			h.loggerSet = true
		}
	}
}

// WithTracer attaches a tracer to the handler, overriding any router-level
// tracer.
func WithTracer(tracer tracing.Tracer) HandlerOption {
	return func(h *Handler) {
		if tracer != nil {
			h.tracer = tracer
			h.tracerSet = true
		}
	}
}

// NewHandler validates the registration and builds a Handler. Patterns with
// more than one placeholder are refused here, before any dispatch.
func NewHandler(reg HandlerRegistration, opts ...HandlerOption) (*Handler, error) {
	if reg.Handler == nil {
		return nil, errs.ErrHandlerRequired
	}
	if reg.Name == "" {
		return nil, errs.ErrHandlerNameRequired
	}
	if reg.Accepts.Pattern == "" {
		return nil, errs.ErrAcceptPatternRequired
	}
	if err := topic.Validate(reg.Accepts.Pattern); err != nil {
		return nil, fmt.Errorf("handler %q: %w", reg.Name, err)
	}
	if reg.Accepts.Schema == nil {
		return nil, fmt.Errorf("handler %q accept pattern %q: %w", reg.Name, reg.Accepts.Pattern, errs.ErrSchemaRequired)
	}

	emitPatterns := make([]string, 0, len(reg.Emits))
	for _, emit := range reg.Emits {
		if err := topic.Validate(emit.Pattern); err != nil {
			return nil, fmt.Errorf("handler %q: %w", reg.Name, err)
		}
		if emit.Schema == nil {
			return nil, fmt.Errorf("handler %q emit pattern %q: %w", reg.Name, emit.Pattern, errs.ErrSchemaRequired)
		}
		emitPatterns = append(emitPatterns, emit.Pattern)
	}

	if reg.ExecutionUnits == "" {
		reg.ExecutionUnits = "0"
	}

	h := &Handler{
		reg:          reg,
		emitPatterns: emitPatterns,
		logger:       logging.NewNopLogger(),
		tracer:       tracing.NewNopTracer(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Name returns the handler name.
func (h *Handler) Name() string { return h.reg.Name }

// Description returns the handler description.
func (h *Handler) Description() string { return h.reg.Description }

// AcceptPattern returns the one topic pattern this handler accepts.
func (h *Handler) AcceptPattern() string { return h.reg.Accepts.Pattern }

// EmitPatterns returns the declared emit patterns in registration order.
func (h *Handler) EmitPatterns() []string {
	patterns := make([]string, len(h.emitPatterns))
	copy(patterns, h.emitPatterns)
	return patterns
}

// Timeout returns the effective deadline for this handler.
func (h *Handler) Timeout() time.Duration {
	if h.reg.Timeout > 0 {
		return h.reg.Timeout
	}
	if h.fallbackTimeout > 0 {
		return h.fallbackTimeout
	}
	return DefaultTimeout
}

// outcome is the tagged result of racing the business function against its
// deadline.
type outcome struct {
	kind    outcomeKind
	outputs []Output
	err     error
	stack   string
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeHandlerError
	outcomeTimedOut
)

// Process runs the full pipeline for one envelope: shape check, topic match,
// input validation, deadline-guarded execution, output validation, and
// envelope construction. Business function failures and timeouts become
// emitted .error/.timeout envelopes; validation and response contract
// failures are returned as errors for callers that want to handle envelope
// construction failures themselves. Handle is the non-failing wrapper.
func (h *Handler) Process(ctx context.Context, env envelope.Envelope, tc tracecontext.TraceContext) ([]envelope.Envelope, error) {
	ctx, span := h.tracer.StartSpan(ctx, "handler."+h.reg.Name, map[string]any{
		"handler.name":    h.reg.Name,
		"handler.pattern": h.reg.Accepts.Pattern,
		"event.id":        env.ID,
		"event.type":      env.Type,
	}, tc)
	defer span.End()

	match, err := h.validateIncoming(env)
	if err != nil {
		span.AddEvent("validation.failed", map[string]any{"error": err.Error()})
		span.SetStatus(tracing.StatusError, err.Error())
		h.logger.Error("event rejected", err, logging.LogFields{
			"handler":  h.reg.Name,
			"event_id": env.ID,
			"topic":    env.Type,
		})
		return nil, err
	}

	in := Input{Data: env.Data, Params: match, Trace: tc}

	started := time.Now()
	out := h.execute(ctx, in)
	elapsed := time.Since(started)

	switch out.kind {
	case outcomeTimedOut:
		span.AddEvent("handler.timeout", map[string]any{"timeout_ms": h.Timeout().Milliseconds()})
		span.SetStatus(tracing.StatusError, out.err.Error())
		h.logger.Error("handler timed out", out.err, logging.LogFields{
			"handler":    h.reg.Name,
			"event_id":   env.ID,
			"timeout_ms": h.Timeout().Milliseconds(),
		})
		return []envelope.Envelope{h.timeoutEnvelope(env, tc, out.err)}, nil

	case outcomeHandlerError:
		span.SetStatus(tracing.StatusError, out.err.Error())
		h.logger.Error("handler failed", out.err, logging.LogFields{
			"handler":  h.reg.Name,
			"event_id": env.ID,
		})
		return []envelope.Envelope{h.errorEnvelope(env, tc, out.err, out.stack, elapsed)}, nil
	}

	emitted := make([]envelope.Envelope, 0, len(out.outputs))
	for _, output := range out.outputs {
		validated, err := h.validateOutput(output)
		if err != nil {
			span.AddEvent("response.invalid", map[string]any{"error": err.Error()})
			span.SetStatus(tracing.StatusError, err.Error())
			h.logger.Error("handler broke its emit contract", err, logging.LogFields{
				"handler":  h.reg.Name,
				"event_id": env.ID,
				"emitted":  output.Type,
			})
			return nil, err
		}

		built, err := h.buildEnvelope(env, tc, validated, elapsed)
		if err != nil {
			span.SetStatus(tracing.StatusError, err.Error())
			return nil, err
		}
		emitted = append(emitted, built)
	}

	span.SetStatus(tracing.StatusOK, "")
	h.logger.Debug("event processed", logging.LogFields{
		"handler":    h.reg.Name,
		"event_id":   env.ID,
		"emitted":    len(emitted),
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return emitted, nil
}

// Handle is the safe entry point: every failure category becomes an emitted
// envelope, so callers never observe an error.
func (h *Handler) Handle(ctx context.Context, env envelope.Envelope, tc tracecontext.TraceContext) []envelope.Envelope {
	emitted, err := h.Process(ctx, env, tc)
	if err != nil {
		return []envelope.Envelope{h.systemErrorEnvelope(env, tc, err)}
	}
	return emitted
}

// validateIncoming performs the envelope shape check, topic match, and input
// schema validation. The returned map holds the placeholder captures.
func (h *Handler) validateIncoming(env envelope.Envelope) (map[string]string, error) {
	var missing []string
	if env.Type == "" {
		missing = append(missing, "type")
	}
	if env.Source == "" {
		missing = append(missing, "source")
	}
	if env.Subject == "" {
		missing = append(missing, "subject")
	}
	if env.Data == nil {
		missing = append(missing, "data")
	}
	if env.DataContentType == "" {
		missing = append(missing, "datacontenttype")
	}
	if len(missing) > 0 {
		return nil, &errs.ValidationError{
			Handler: h.reg.Name,
			Topic:   env.Type,
			Reason:  (&errs.ShapeError{Missing: missing}).Error(),
		}
	}
	if env.DataContentType != envelope.DataContentTypeJSON {
		return nil, &errs.ValidationError{
			Handler: h.reg.Name,
			Topic:   env.Type,
			Reason:  fmt.Sprintf("unsupported datacontenttype %q, expected %q", env.DataContentType, envelope.DataContentTypeJSON),
		}
	}

	match := topic.Test(env.Type, h.reg.Accepts.Pattern)
	if !match.Matched {
		return nil, &errs.ValidationError{
			Handler: h.reg.Name,
			Topic:   env.Type,
			Reason:  fmt.Sprintf("topic does not match accept pattern %q", h.reg.Accepts.Pattern),
		}
	}

	result := h.reg.Accepts.Schema.Validate(env.Data)
	if !result.OK {
		return nil, &errs.ValidationError{
			Handler: h.reg.Name,
			Topic:   env.Type,
			Reason:  "payload failed input schema validation",
			Issues:  result.Issues,
		}
	}

	params := map[string]string{}
	if match.Param != "" {
		params[match.Param] = match.Value
	}
	return params, nil
}

// execute races the business function against the handler deadline. The
// loser of the race is abandoned: the goroutine's context is cancelled so
// cooperative functions can stop early, but nothing waits for it.
func (h *Handler) execute(ctx context.Context, in Input) outcome {
	timeout := h.Timeout()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{
					kind:  outcomeHandlerError,
					err:   fmt.Errorf("handler panicked: %v", r),
					stack: string(debug.Stack()),
				}
			}
		}()

		outputs, err := h.reg.Handler(execCtx, in)
		if err != nil {
			done <- outcome{kind: outcomeHandlerError, err: err}
			return
		}
		done <- outcome{kind: outcomeSuccess, outputs: outputs}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out
	case <-timer.C:
		return outcome{kind: outcomeTimedOut, err: &errs.TimeoutError{Timeout: timeout}}
	}
}

// validateOutput checks one returned event against the declared emit
// patterns and their schemas.
func (h *Handler) validateOutput(out Output) (Output, error) {
	first, ok := topic.MatchFirst(out.Type, h.emitPatterns)
	if !ok {
		return Output{}, &errs.ResponseTypeError{
			Handler: h.reg.Name,
			Emitted: out.Type,
			Known:   h.EmitPatterns(),
		}
	}

	for _, emit := range h.reg.Emits {
		if emit.Pattern != first.Pattern {
			continue
		}
		result := emit.Schema.Validate(out.Data)
		if !result.OK {
			return Output{}, &errs.ResponseShapeError{
				Handler: h.reg.Name,
				Emitted: out.Type,
				Issues:  result.Issues,
			}
		}
		break
	}
	return out, nil
}

// buildEnvelope constructs the emitted envelope for one validated output,
// applying the routing-metadata derivation rules.
func (h *Handler) buildEnvelope(in envelope.Envelope, tc tracecontext.TraceContext, out Output, elapsed time.Duration) (envelope.Envelope, error) {
	source := out.Source
	if source == "" {
		source = h.reg.Name
	}
	if source == "" {
		source = h.reg.Accepts.Pattern
	}

	subject := out.Subject
	if subject == "" {
		subject = in.Subject
	}

	var to *string
	switch {
	case h.reg.DisableRoutingMetadata:
		to = nil
	case out.To != "":
		to = envelope.StringPtr(out.To)
	case in.RedirectTo != nil:
		to = envelope.StringPtr(*in.RedirectTo)
	case in.Source != "":
		to = envelope.StringPtr(in.Source)
	}

	var redirectTo *string
	if out.RedirectTo != "" {
		redirectTo = envelope.StringPtr(out.RedirectTo)
	}

	units := out.ExecutionUnits
	if units == "" {
		units = h.reg.ExecutionUnits
	}

	traceparent, tracestate := h.tracer.Inject(tc)
	var tracestatePtr *string
	if tracestate != "" {
		tracestatePtr = envelope.StringPtr(tracestate)
	}

	return envelope.New(envelope.Fields{
		Type:            out.Type,
		Source:          source,
		Subject:         subject,
		Data:            out.Data,
		DataContentType: envelope.DataContentTypeJSON,
		To:              to,
		RedirectTo:      redirectTo,
		TraceParent:     envelope.StringPtr(traceparent),
		TraceState:      tracestatePtr,
		ElapsedTime:     strconv.FormatInt(elapsed.Milliseconds(), 10),
		ExecutionUnits:  units,
	})
}

// errorEnvelope maps a business function failure to the <topic>.error event.
func (h *Handler) errorEnvelope(in envelope.Envelope, tc tracecontext.TraceContext, cause error, stack string, elapsed time.Duration) envelope.Envelope {
	return h.failureEnvelope(in, tc, in.Type+".error", map[string]any{
		"errorName":    errs.Name(cause),
		"errorMessage": cause.Error(),
		"errorStack":   stack,
	}, elapsed)
}

// timeoutEnvelope maps a deadline overrun to the <topic>.timeout event. The
// original payload rides along for diagnostics, and elapsedtime carries the
// configured deadline rather than a wall-clock measurement.
func (h *Handler) timeoutEnvelope(in envelope.Envelope, tc tracecontext.TraceContext, cause error) envelope.Envelope {
	return h.failureEnvelope(in, tc, in.Type+".timeout", map[string]any{
		"timeout":      h.Timeout().Milliseconds(),
		"errorName":    errs.Name(cause),
		"errorMessage": cause.Error(),
		"errorStack":   "",
		"eventData":    in.Data,
	}, h.Timeout())
}

func (h *Handler) failureEnvelope(in envelope.Envelope, tc tracecontext.TraceContext, eventType string, data map[string]any, elapsed time.Duration) envelope.Envelope {
	subject := in.Subject
	if subject == "" {
		subject = h.reg.Name
	}

	var to *string
	if !h.reg.DisableRoutingMetadata {
		switch {
		case in.RedirectTo != nil:
			to = envelope.StringPtr(*in.RedirectTo)
		case in.Source != "":
			to = envelope.StringPtr(in.Source)
		}
	}

	traceparent, _ := h.tracer.Inject(tc)
	env, err := envelope.New(envelope.Fields{
		Type:            eventType,
		Source:          h.reg.Name,
		Subject:         subject,
		Data:            data,
		DataContentType: envelope.DataContentTypeJSON,
		To:              to,
		TraceParent:     envelope.StringPtr(traceparent),
		ElapsedTime:     strconv.FormatInt(elapsed.Milliseconds(), 10),
		ExecutionUnits:  h.reg.ExecutionUnits,
	})
	if err != nil {
		// All required fields are supplied above; this cannot fail.
		panic(err)
	}
	return env
}

// systemErrorEnvelope maps validation and response contract failures to the
// sys.<handlerName>.error event, routed back to the producer.
func (h *Handler) systemErrorEnvelope(in envelope.Envelope, tc tracecontext.TraceContext, cause error) envelope.Envelope {
	subject := in.Subject
	if subject == "" {
		subject = h.reg.Name
	}

	var to *string
	if in.Source != "" {
		to = envelope.StringPtr(in.Source)
	}

	var additional any
	var validationErr *errs.ValidationError
	var responseShapeErr *errs.ResponseShapeError
	switch {
	case errors.As(cause, &validationErr):
		additional = validationErr.Issues
	case errors.As(cause, &responseShapeErr):
		additional = responseShapeErr.Issues
	}

	traceparent, _ := h.tracer.Inject(tc)
	env, err := envelope.New(envelope.Fields{
		Type:            "sys." + h.reg.Name + ".error",
		Source:          h.reg.Name,
		Subject:         subject,
		Data: map[string]any{
			"errorName":    errs.Name(cause),
			"errorMessage": cause.Error(),
			"errorStack":   "",
			"additional":   additional,
			"event":        in,
		},
		DataContentType: envelope.DataContentTypeJSON,
		To:              to,
		RedirectTo:      nil,
		TraceParent:     envelope.StringPtr(traceparent),
		ElapsedTime:     "0",
		ExecutionUnits:  h.reg.ExecutionUnits,
	})
	if err != nil {
		panic(err)
	}
	return env
}
