/*
Package engine provides the core dispatch infrastructure for topicflow.

# Architecture Overview

The engine implements a typed command/event dispatch pipeline. Inbound
envelopes are routed by topic to exactly one handler, which validates the
payload, runs the business function under a deadline, validates everything it
returns, and constructs the outgoing envelopes.

# Package Structure

The engine is organized into the following components:

## Handler (handler.go)

Handler wraps one business function with the full processing pipeline:
  - Shape check: required envelope fields and the JSON content type
  - Topic match: the accept pattern with its {{placeholder}} capture
  - Input validation: the declared accept schema
  - Execution: the business function raced against its deadline
  - Output validation: emitted types and payloads against the emit contract
  - Envelope construction: routing metadata derivation and trace stamping

Business failures and timeouts become emitted <topic>.error and
<topic>.timeout events; contract violations become sys.<handler>.error
events routed back to the producer.

## Router (router.go)

Router holds an ordered, duplicate-free registry of handlers and dispatches
batches concurrently. Selection is first-match-wins over registration order,
results preserve input order, and each event is isolated from the rest of
its batch.

## Hooks (hooks.go)

DispatchHooks provide OnStart, OnDone, and OnError callbacks around each
dispatch, with pre-built logging and Prometheus metrics implementations.

## Leaf Packages

  - envelope: the CloudEvents-compatible wire record
  - topic: dot-segmented pattern matching with one placeholder
  - tracecontext: W3C traceparent parsing and rendering
  - tracing: the tracer capability plus the OpenTelemetry adapter
  - schema: structural payload validation
  - errs: the failure taxonomy and stable error names
  - logging: the ServiceLogger contract and slog adapter
  - jsoncodec: sonic-backed JSON encoding
  - ids: ULID generation
*/
package engine
