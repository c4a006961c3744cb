// Package topicflow is a typed dispatch engine for command and event
// messages. Inbound messages travel as CloudEvents-style envelopes whose
// routing metadata (to, redirectto, traceparent, tracestate) rides alongside
// a JSON payload, and handlers declare exactly one dot-separated topic
// pattern they accept plus the set of patterns they may emit.
//
// A Handler wraps one business function with the full processing pipeline:
// envelope shape checking, topic matching with a single {{placeholder}}
// capture, input schema validation, deadline-guarded execution, output
// contract validation, and envelope construction for everything the function
// returns. Failures never escape as panics or bare errors; they become
// emitted events instead (<topic>.error for business failures, <topic>.timeout
// for deadline overruns, and sys.<handler>.error for contract violations,
// routed back to the producer).
//
// A Router owns an ordered handler registry and dispatches batches
// concurrently: each event goes to the first handler whose accept pattern
// matches its type, results come back in input order, and one event's failure
// never affects another's. Routers accept lifecycle hooks for logging,
// Prometheus metrics, or alerting around each dispatch.
//
// Tracing follows the W3C trace-context convention. Envelope traceparent
// headers are parsed into a TraceContext, continued across emitted envelopes,
// and optionally bridged to OpenTelemetry spans via NewOtelTracer.
//
// A minimal setup involves building handlers with NewHandler, grouping them
// with NewRouter, and calling Dispatch; see examples/simple for a complete
// program.
package topicflow
