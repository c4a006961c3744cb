package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/topicflow/internal/engine/logging"
)

// DispatchContext provides information about one event dispatch to hooks.
type DispatchContext struct {
	// Router is the name of the router performing the dispatch.
	Router string
	// Handler is the name of the selected handler. Empty when no handler
	// matched the event's topic.
	Handler string
	// Topic is the type of the inbound event.
	Topic string
	// EventID is the unique identifier of the inbound event.
	EventID string
	// StartedAt is when the dispatch started.
	StartedAt time.Time
	// Duration is how long the dispatch took (only set in OnDone and OnError).
	Duration time.Duration
}

// DispatchHooks defines callbacks around event dispatch.
// All hooks are optional - nil hooks are simply not called.
type DispatchHooks struct {
	// OnStart is called after a handler has been selected, before it runs.
	OnStart func(ctx DispatchContext)

	// OnDone is called when a dispatch settles through the handler pipeline,
	// including business failures and timeouts that became emitted
	// .error/.timeout events.
	OnDone func(ctx DispatchContext)

	// OnError is called when no handler matched the event or the handler
	// broke its contract (validation or response errors). For contract
	// failures the results still contain the converted sys error envelope.
	OnError func(ctx DispatchContext, err error)
}

// Merge combines two DispatchHooks, creating a new DispatchHooks that calls
// both. The hooks from 'other' are called after the hooks from 'h'.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnStart: chainHooks(h.OnStart, other.OnStart),
		OnDone:  chainHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainHooks(a, b func(DispatchContext)) func(DispatchContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DispatchContext, error)) func(DispatchContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// LoggingHooks returns pre-built hooks that log dispatch lifecycle events.
func LoggingHooks(logger logging.ServiceLogger) DispatchHooks {
	return DispatchHooks{
		OnStart: func(ctx DispatchContext) {
			logger.Debug("dispatch started", logging.LogFields{
				"router":   ctx.Router,
				"handler":  ctx.Handler,
				"topic":    ctx.Topic,
				"event_id": ctx.EventID,
			})
		},
		OnDone: func(ctx DispatchContext) {
			logger.Info("dispatch completed", logging.LogFields{
				"router":      ctx.Router,
				"handler":     ctx.Handler,
				"topic":       ctx.Topic,
				"event_id":    ctx.EventID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnError: func(ctx DispatchContext, err error) {
			logger.Error("dispatch failed", err, logging.LogFields{
				"router":      ctx.Router,
				"handler":     ctx.Handler,
				"topic":       ctx.Topic,
				"event_id":    ctx.EventID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks returns pre-built hooks that record dispatch metrics on the
// supplied Prometheus registerer: a counter per handler/topic/result and a
// duration histogram per handler.
func MetricsHooks(reg prometheus.Registerer, namespace string) DispatchHooks {
	if namespace == "" {
		namespace = "topicflow"
	}

	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_total",
		Help:      "Number of dispatched events by handler, topic, and result.",
	}, []string{"handler", "topic", "result"})

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Dispatch duration by handler.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler"})

	reg.MustRegister(dispatches, durations)

	return DispatchHooks{
		OnDone: func(ctx DispatchContext) {
			dispatches.WithLabelValues(ctx.Handler, ctx.Topic, "success").Inc()
			durations.WithLabelValues(ctx.Handler).Observe(ctx.Duration.Seconds())
		},
		OnError: func(ctx DispatchContext, err error) {
			dispatches.WithLabelValues(ctx.Handler, ctx.Topic, "error").Inc()
			durations.WithLabelValues(ctx.Handler).Observe(ctx.Duration.Seconds())
		},
	}
}
