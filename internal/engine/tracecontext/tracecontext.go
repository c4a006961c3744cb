// Package tracecontext parses and renders the W3C traceparent header carried
// on every envelope. It is deliberately independent of any tracer backend:
// the engine stamps outgoing envelopes from a TraceContext whether or not a
// tracer has been injected.
package tracecontext

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultVersion is the traceparent version minted for fresh contexts.
	DefaultVersion = "00"

	// DefaultFlags marks a freshly minted context as sampled.
	DefaultFlags = "01"
)

var traceparentRegex = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

// TraceContext is the propagated trace identifier threading one logical
// request across hops. ParentID is empty when the context was freshly minted
// rather than continued from an upstream hop.
type TraceContext struct {
	Version  string
	TraceID  string
	SpanID   string
	ParentID string
	Flags    string
}

// Parse derives a TraceContext from an incoming traceparent header. A valid
// header continues the trace: version, trace-id, and flags are kept, the
// incoming span id becomes ParentID, and a fresh SpanID is minted for this
// hop. An absent or malformed header starts a new trace.
func Parse(header string) TraceContext {
	header = strings.TrimSpace(strings.ToLower(header))
	if !Valid(header) {
		return New()
	}

	parts := strings.Split(header, "-")
	return TraceContext{
		Version:  parts[0],
		TraceID:  parts[1],
		SpanID:   NewSpanID(),
		ParentID: parts[2],
		Flags:    parts[3],
	}
}

// New mints a wholly new TraceContext with no parent.
func New() TraceContext {
	return TraceContext{
		Version: DefaultVersion,
		TraceID: NewTraceID(),
		SpanID:  NewSpanID(),
		Flags:   DefaultFlags,
	}
}

// String renders the context as a traceparent header. The rendered header
// round-trips with Parse: parsing it continues this trace with SpanID as the
// parent.
func (tc TraceContext) String() string {
	return fmt.Sprintf("%s-%s-%s-%s", tc.Version, tc.TraceID, tc.SpanID, tc.Flags)
}

// Valid is a pure format check for a traceparent header. It says nothing
// about whether the identifiers can be trusted.
func Valid(header string) bool {
	return traceparentRegex.MatchString(header)
}

// NewTraceID returns a 32-character lowercase hex trace id.
func NewTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// NewSpanID returns a 16-character lowercase hex span id.
func NewSpanID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
