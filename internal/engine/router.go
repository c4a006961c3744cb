package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/drblury/topicflow/internal/engine/envelope"
	"github.com/drblury/topicflow/internal/engine/errs"
	"github.com/drblury/topicflow/internal/engine/logging"
	"github.com/drblury/topicflow/internal/engine/topic"
	"github.com/drblury/topicflow/internal/engine/tracecontext"
	"github.com/drblury/topicflow/internal/engine/tracing"
)

// RouterConfig declares the handlers a router owns and its default dispatch
// policy.
type RouterConfig struct {
	Name        string
	Description string
	Handlers    []*Handler

	// ErrorOnNotFound controls whether events matching no accept pattern
	// produce a failure result (true, the default) or are silently dropped.
	// Overridable per dispatch.
	ErrorOnNotFound *bool

	// DefaultTimeout applies to handlers whose registration did not set one.
	DefaultTimeout time.Duration
}

// Router holds an ordered registry of handlers keyed by accept pattern and
// dispatches batches of inbound envelopes to them. The registry is built
// once at construction and read-only during dispatch.
type Router struct {
	name        string
	description string

	handlers  []*Handler
	patterns  []string
	byPattern map[string]*Handler

	errorOnNotFound bool

	logger logging.ServiceLogger
	tracer tracing.Tracer
	hooks  DispatchHooks
}

// RouterOption injects optional collaborators at router construction.
type RouterOption func(*Router)

// WithRouterLogger attaches a logger to the router. Handlers without their
// own logger inherit it.
func WithRouterLogger(logger logging.ServiceLogger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRouterTracer attaches a tracer to the router. Handlers without their
// own tracer inherit it.
func WithRouterTracer(tracer tracing.Tracer) RouterOption {
	return func(r *Router) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithDispatchHooks attaches lifecycle hooks, merged with any already
// configured.
func WithDispatchHooks(hooks DispatchHooks) RouterOption {
	return func(r *Router) {
		r.hooks = r.hooks.Merge(hooks)
	}
}

// NewRouter builds the pattern registry. Two handlers sharing an accept
// pattern (compared as raw strings) fail construction with
// *errs.DuplicateTopicError before any dispatch can happen.
func NewRouter(cfg RouterConfig, opts ...RouterOption) (*Router, error) {
	if cfg.Name == "" {
		return nil, errs.ErrRouterNameRequired
	}

	r := &Router{
		name:            cfg.Name,
		description:     cfg.Description,
		byPattern:       make(map[string]*Handler, len(cfg.Handlers)),
		errorOnNotFound: true,
		logger:          logging.NewNopLogger(),
		tracer:          tracing.NewNopTracer(),
	}
	if cfg.ErrorOnNotFound != nil {
		r.errorOnNotFound = *cfg.ErrorOnNotFound
	}

	for _, h := range cfg.Handlers {
		if h == nil {
			return nil, errs.ErrHandlerRequired
		}
		pattern := h.AcceptPattern()
		if _, exists := r.byPattern[pattern]; exists {
			return nil, &errs.DuplicateTopicError{Pattern: pattern}
		}
		r.byPattern[pattern] = h
		r.patterns = append(r.patterns, pattern)
		r.handlers = append(r.handlers, h)
	}

	for _, opt := range opts {
		opt(r)
	}

	// Late binding: the only post-construction mutation handlers allow, and
	// it happens before any dispatch.
	for _, h := range r.handlers {
		if h.fallbackTimeout == 0 {
			h.fallbackTimeout = cfg.DefaultTimeout
		}
		if !h.loggerSet {
			h.logger = r.logger
		}
		if !h.tracerSet {
			h.tracer = r.tracer
		}
	}

	return r, nil
}

// Name returns the router name.
func (r *Router) Name() string { return r.name }

// Description returns the router description.
func (r *Router) Description() string { return r.description }

// Patterns returns the registered accept patterns in registration order.
func (r *Router) Patterns() []string {
	patterns := make([]string, len(r.patterns))
	copy(patterns, r.patterns)
	return patterns
}

// Result is the router's verdict on one inbound event. A successful dispatch
// contributes one Result per emitted envelope; a failed one contributes a
// single Result carrying the error.
type Result struct {
	Event       envelope.Envelope
	Success     bool
	EventToEmit *envelope.Envelope
	Err         error
}

type dispatchOptions struct {
	errorOnNotFound bool
	onEventDone     func(event envelope.Envelope, results []Result)
}

// DispatchOption overrides dispatch policy for a single batch.
type DispatchOption func(*dispatchOptions)

// WithErrorOnNotFound overrides the router's not-found policy for one batch.
func WithErrorOnNotFound(errorOnNotFound bool) DispatchOption {
	return func(o *dispatchOptions) {
		o.errorOnNotFound = errorOnNotFound
	}
}

// WithEventCallback registers a callback invoked as soon as each event's
// results are known, before the whole batch settles. The callback may be
// invoked concurrently from different dispatches.
func WithEventCallback(fn func(event envelope.Envelope, results []Result)) DispatchOption {
	return func(o *dispatchOptions) {
		o.onEventDone = fn
	}
}

// Dispatch fans all events out to their handlers concurrently and joins the
// results. The result slice preserves input order regardless of completion
// order, and one event's failure never affects another's.
func (r *Router) Dispatch(ctx context.Context, events []envelope.Envelope, opts ...DispatchOption) []Result {
	options := dispatchOptions{errorOnNotFound: r.errorOnNotFound}
	for _, opt := range opts {
		opt(&options)
	}

	perEvent := make([][]Result, len(events))

	var wg sync.WaitGroup
	for i, event := range events {
		wg.Add(1)
		go func(i int, event envelope.Envelope) {
			defer wg.Done()
			results := r.dispatchOne(ctx, event, options)
			perEvent[i] = results
			if options.onEventDone != nil {
				options.onEventDone(event, results)
			}
		}(i, event)
	}
	wg.Wait()

	var results []Result
	for _, rs := range perEvent {
		results = append(results, rs...)
	}
	return results
}

func (r *Router) dispatchOne(ctx context.Context, event envelope.Envelope, options dispatchOptions) (results []Result) {
	// A handler's own panics are recovered inside its pipeline; this guards
	// the selection path so a single event can never abort the batch.
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("dispatch panicked: %v", rec)
			r.logger.Error("dispatch panicked", err, logging.LogFields{
				"router":   r.name,
				"event_id": event.ID,
				"topic":    event.Type,
			})
			results = []Result{{Event: event, Err: err}}
		}
	}()

	first, found := topic.MatchFirst(event.Type, r.patterns)
	if !found {
		if !options.errorOnNotFound {
			r.logger.Debug("dropping event with no matching handler", logging.LogFields{
				"router":   r.name,
				"event_id": event.ID,
				"topic":    event.Type,
			})
			return nil
		}

		err := &errs.NotFoundError{Topic: event.Type, Known: r.Patterns()}
		if r.hooks.OnError != nil {
			r.hooks.OnError(DispatchContext{
				Router:    r.name,
				Topic:     event.Type,
				EventID:   event.ID,
				StartedAt: time.Now(),
			}, err)
		}
		return []Result{{Event: event, Err: err}}
	}

	handler := r.byPattern[first.Pattern]
	tc := r.traceContextFor(event)

	dc := DispatchContext{
		Router:    r.name,
		Handler:   handler.Name(),
		Topic:     event.Type,
		EventID:   event.ID,
		StartedAt: time.Now(),
	}
	if r.hooks.OnStart != nil {
		r.hooks.OnStart(dc)
	}

	emitted, err := handler.Process(ctx, event, tc)
	dc.Duration = time.Since(dc.StartedAt)

	if err != nil {
		if r.hooks.OnError != nil {
			r.hooks.OnError(dc, err)
		}
		sysErr := handler.systemErrorEnvelope(event, tc, err)
		return []Result{{Event: event, Success: true, EventToEmit: &sysErr}}
	}

	if r.hooks.OnDone != nil {
		r.hooks.OnDone(dc)
	}

	results = make([]Result, 0, len(emitted))
	for i := range emitted {
		out := emitted[i]
		results = append(results, Result{Event: event, Success: true, EventToEmit: &out})
	}
	return results
}

// traceContextFor continues the trace carried on the envelope, or starts a
// new one when the envelope has none.
func (r *Router) traceContextFor(event envelope.Envelope) tracecontext.TraceContext {
	if event.TraceParent != nil {
		return r.tracer.Extract(*event.TraceParent)
	}
	return r.tracer.Extract("")
}
