// Package errs defines the error taxonomy of the dispatch engine. Every
// failure category callers can observe has a distinct type so alerting can
// key off Name instead of parsing free-text messages.
package errs

import (
	sterrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/drblury/topicflow/internal/engine/schema"
)

var (
	ErrHandlerRequired       = sterrors.New("topicflow: handler function is required")
	ErrHandlerNameRequired   = sterrors.New("topicflow: handler name is required")
	ErrAcceptPatternRequired = sterrors.New("topicflow: accept pattern is required")
	ErrSchemaRequired        = sterrors.New("topicflow: schema is required")
	ErrRouterNameRequired    = sterrors.New("topicflow: router name is required")
)

// ShapeError reports an envelope that is missing required fields.
type ShapeError struct {
	Missing []string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("envelope is missing required fields: %s", strings.Join(e.Missing, ", "))
}

// ValidationError reports a malformed or unmatched inbound envelope, or an
// input payload that fails its accept schema. Non-retryable: the producer
// sent something the handler never agreed to accept.
type ValidationError struct {
	Handler string
	Topic   string
	Reason  string
	Issues  []schema.Issue
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("handler %q cannot process topic %q: %s", e.Handler, e.Topic, e.Reason)
	if len(e.Issues) > 0 {
		parts := make([]string, len(e.Issues))
		for i, issue := range e.Issues {
			parts[i] = issue.Error()
		}
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
	}
	return msg
}

// ResponseTypeError reports a handler that emitted an event whose type
// matches none of its declared emit patterns. A handler implementation bug,
// not an input problem.
type ResponseTypeError struct {
	Handler string
	Emitted string
	Known   []string
}

func (e *ResponseTypeError) Error() string {
	return fmt.Sprintf("handler %q emitted unknown event type %q, declared emit patterns: %s",
		e.Handler, e.Emitted, strings.Join(e.Known, ", "))
}

// ResponseShapeError reports a handler that emitted a payload inconsistent
// with the schema it declared for that emit pattern.
type ResponseShapeError struct {
	Handler string
	Emitted string
	Issues  []schema.Issue
}

func (e *ResponseShapeError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.Error()
	}
	return fmt.Sprintf("handler %q emitted invalid payload for %q: %s",
		e.Handler, e.Emitted, strings.Join(parts, "; "))
}

// TimeoutError reports a business function that exceeded its deadline.
// Distinct from a generic handler error so callers can alert on latency.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Promise timed out after %dms.", e.Timeout.Milliseconds())
}

// DuplicateTopicError reports two handlers registered for the same accept
// pattern. Raised at router construction, before any dispatch.
type DuplicateTopicError struct {
	Pattern string
}

func (e *DuplicateTopicError) Error() string {
	return fmt.Sprintf("duplicate accept pattern %q: each topic pattern may only be registered once", e.Pattern)
}

// NotFoundError reports an inbound topic that matches no registered accept
// pattern. Reported per event; it never aborts the batch.
type NotFoundError struct {
	Topic string
	Known []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no handler found for topic %q, registered accept patterns: %s",
		e.Topic, strings.Join(e.Known, ", "))
}

// Name returns the stable error-name string for an error. These names end up
// in emitted error envelopes as errorName/errorType.
func Name(err error) string {
	var (
		shapeErr     *ShapeError
		validErr     *ValidationError
		respTypeErr  *ResponseTypeError
		respShapeErr *ResponseShapeError
		timeoutErr   *TimeoutError
		dupErr       *DuplicateTopicError
		notFoundErr  *NotFoundError
	)
	switch {
	case sterrors.As(err, &shapeErr):
		return "ShapeError"
	case sterrors.As(err, &validErr):
		return "ValidationError"
	case sterrors.As(err, &respTypeErr):
		return "ResponseTypeError"
	case sterrors.As(err, &respShapeErr):
		return "ResponseShapeError"
	case sterrors.As(err, &timeoutErr):
		return "TimeoutError"
	case sterrors.As(err, &dupErr):
		return "DuplicateTopicError"
	case sterrors.As(err, &notFoundErr):
		return "RouterNotFoundError"
	default:
		return "Error"
	}
}
