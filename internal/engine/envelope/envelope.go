// Package envelope defines the immutable event record exchanged between
// producers, the router, and handlers. The wire shape is CloudEvents
// compatible: every field is always present in serialized form, with unset
// optional extensions rendered as explicit nulls.
package envelope

import (
	"strings"

	"github.com/drblury/topicflow/internal/engine/errs"
	"github.com/drblury/topicflow/internal/engine/ids"
	"github.com/drblury/topicflow/internal/engine/jsoncodec"
)

const (
	// SpecVersion is the CloudEvents specification version implemented.
	SpecVersion = "1.0"

	// DataContentTypeJSON is the content type carried by every envelope the
	// engine emits.
	DataContentTypeJSON = "application/json"
)

// Envelope represents one unit of information flowing through the system.
// Envelopes are never mutated after construction, only superseded by newly
// constructed ones.
type Envelope struct {
	ID              string  `json:"id"`
	Time            string  `json:"time"`
	Type            string  `json:"type"`
	Source          string  `json:"source"`
	DataContentType string  `json:"datacontenttype"`
	Subject         string  `json:"subject"`
	Data            any     `json:"data"`
	SpecVersion     string  `json:"specversion"`
	To              *string `json:"to"`
	RedirectTo      *string `json:"redirectto"`
	TraceParent     *string `json:"traceparent"`
	TraceState      *string `json:"tracestate"`
	ElapsedTime     string  `json:"elapsedtime"`
	ExecutionUnits  string  `json:"executionunits"`
}

// Fields holds the inputs to New. Type, Source, Subject, Data, and
// DataContentType are required; everything else is defaulted.
type Fields struct {
	ID              string
	Time            string
	Type            string
	Source          string
	DataContentType string
	Subject         string
	Data            any
	To              *string
	RedirectTo      *string
	TraceParent     *string
	TraceState      *string
	ElapsedTime     string
	ExecutionUnits  string
}

// New constructs an Envelope, generating an ID and timestamp when absent and
// percent-encoding the routing fields. Missing required fields fail with a
// *errs.ShapeError naming every absent field.
func New(f Fields) (Envelope, error) {
	var missing []string
	if f.Type == "" {
		missing = append(missing, "type")
	}
	if f.Source == "" {
		missing = append(missing, "source")
	}
	if f.Subject == "" {
		missing = append(missing, "subject")
	}
	if f.Data == nil {
		missing = append(missing, "data")
	}
	if f.DataContentType == "" {
		missing = append(missing, "datacontenttype")
	}
	if len(missing) > 0 {
		return Envelope{}, &errs.ShapeError{Missing: missing}
	}

	env := Envelope{
		ID:              f.ID,
		Time:            f.Time,
		Type:            f.Type,
		Source:          EscapeURI(f.Source),
		DataContentType: f.DataContentType,
		Subject:         f.Subject,
		Data:            f.Data,
		SpecVersion:     SpecVersion,
		To:              escapeOptionalURI(f.To),
		RedirectTo:      escapeOptionalURI(f.RedirectTo),
		TraceParent:     f.TraceParent,
		TraceState:      f.TraceState,
		ElapsedTime:     f.ElapsedTime,
		ExecutionUnits:  f.ExecutionUnits,
	}

	if env.ID == "" {
		env.ID = ids.CreateULID()
	}
	if env.Time == "" {
		env.Time = Now()
	}
	if env.ElapsedTime == "" {
		env.ElapsedTime = "0"
	}
	if env.ExecutionUnits == "" {
		env.ExecutionUnits = "0"
	}

	return env, nil
}

// ToJSON serializes the envelope to its wire shape. Unset optional fields
// are rendered as explicit nulls, never omitted.
func (e Envelope) ToJSON() ([]byte, error) {
	return jsoncodec.Marshal(e)
}

// FromJSON parses an envelope from its wire shape.
func FromJSON(data []byte) (Envelope, error) {
	var env Envelope
	if err := jsoncodec.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// StringPtr is a convenience for populating optional envelope fields.
func StringPtr(s string) *string {
	return &s
}

func escapeOptionalURI(s *string) *string {
	if s == nil {
		return nil
	}
	escaped := EscapeURI(*s)
	return &escaped
}

// EscapeURI percent-encodes a string while preserving the RFC 3986 reserved
// and unreserved characters, matching the escaping applied to source, to,
// and redirectto on construction. Already-encoded sequences are not double
// encoded because '%' is only escaped when it does not start a valid escape.
func EscapeURI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURISafe(c) {
			b.WriteByte(c)
			continue
		}
		if c == '%' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]) {
			b.WriteByte(c)
			continue
		}
		b.WriteString(percentEncode(c))
	}
	return b.String()
}

func isURISafe(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case ';', ',', '/', '?', ':', '@', '&', '=', '+', '$',
		'-', '_', '.', '!', '~', '*', '\'', '(', ')', '#':
		return true
	}
	return false
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

const upperhex = "0123456789ABCDEF"

func percentEncode(c byte) string {
	return string([]byte{'%', upperhex[c>>4], upperhex[c&0x0f]})
}
