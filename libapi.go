package topicflow

import (
	"github.com/drblury/topicflow/internal/engine"
	envelopepkg "github.com/drblury/topicflow/internal/engine/envelope"
	errspkg "github.com/drblury/topicflow/internal/engine/errs"
	idspkg "github.com/drblury/topicflow/internal/engine/ids"
	jsoncodec "github.com/drblury/topicflow/internal/engine/jsoncodec"
	loggingpkg "github.com/drblury/topicflow/internal/engine/logging"
	schemapkg "github.com/drblury/topicflow/internal/engine/schema"
	topicpkg "github.com/drblury/topicflow/internal/engine/topic"
	tracecontextpkg "github.com/drblury/topicflow/internal/engine/tracecontext"
	tracingpkg "github.com/drblury/topicflow/internal/engine/tracing"
)

type (
	// Envelope model
	Envelope       = envelopepkg.Envelope
	EnvelopeFields = envelopepkg.Fields

	// Handler engine
	Handler             = engine.Handler
	HandlerFunc         = engine.HandlerFunc
	HandlerOption       = engine.HandlerOption
	HandlerRegistration = engine.HandlerRegistration
	MessageBinding      = engine.MessageBinding
	Input               = engine.Input
	Output              = engine.Output

	// Router
	Router         = engine.Router
	RouterConfig   = engine.RouterConfig
	RouterOption   = engine.RouterOption
	Result         = engine.Result
	DispatchOption = engine.DispatchOption

	// Dispatch lifecycle hooks
	DispatchContext = engine.DispatchContext
	DispatchHooks   = engine.DispatchHooks

	// Topic matching
	TopicMatch = topicpkg.Match
	TopicFirst = topicpkg.First

	// Trace context bridge
	TraceContext = tracecontextpkg.TraceContext

	// Tracing capability
	Tracer     = tracingpkg.Tracer
	Span       = tracingpkg.Span
	StatusCode = tracingpkg.StatusCode

	// Schema validation
	Schema       = schemapkg.Schema
	SchemaFunc   = schemapkg.Func
	SchemaResult = schemapkg.Result
	SchemaIssue  = schemapkg.Issue
	Property     = schemapkg.Property
	ObjectSchema = schemapkg.ObjectSchema

	// Logging
	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Error types
	ShapeError          = errspkg.ShapeError
	ValidationError     = errspkg.ValidationError
	ResponseTypeError   = errspkg.ResponseTypeError
	ResponseShapeError  = errspkg.ResponseShapeError
	TimeoutError        = errspkg.TimeoutError
	DuplicateTopicError = errspkg.DuplicateTopicError
	NotFoundError       = errspkg.NotFoundError
)

var (
	NewHandler = engine.NewHandler
	NewRouter  = engine.NewRouter

	// Handler and router options
	WithLogger        = engine.WithLogger
	WithTracer        = engine.WithTracer
	WithRouterLogger  = engine.WithRouterLogger
	WithRouterTracer  = engine.WithRouterTracer
	WithDispatchHooks = engine.WithDispatchHooks

	// Dispatch options
	WithErrorOnNotFound = engine.WithErrorOnNotFound
	WithEventCallback   = engine.WithEventCallback

	// Pre-built dispatch hooks
	LoggingHooks = engine.LoggingHooks
	MetricsHooks = engine.MetricsHooks

	// Envelope constructors and helpers
	NewEnvelope = envelopepkg.New
	EscapeURI   = envelopepkg.EscapeURI
	StringPtr   = envelopepkg.StringPtr

	// Topic matching
	MatchTopic      = topicpkg.Test
	MatchFirstTopic = topicpkg.MatchFirst
	ValidatePattern = topicpkg.Validate
	PatternParam    = topicpkg.ParamName

	// Trace context bridge
	ParseTraceContext = tracecontextpkg.Parse
	NewTraceContext   = tracecontextpkg.New

	// Tracing adapters
	NewOtelTracer = tracingpkg.NewOtelTracer
	NewNopTracer  = tracingpkg.NewNopTracer

	// Schema constructors
	SchemaObject = schemapkg.Object
	SchemaAny    = schemapkg.Any

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrHandlerRequired       = errspkg.ErrHandlerRequired
	ErrHandlerNameRequired   = errspkg.ErrHandlerNameRequired
	ErrAcceptPatternRequired = errspkg.ErrAcceptPatternRequired
	ErrSchemaRequired        = errspkg.ErrSchemaRequired
	ErrRouterNameRequired    = errspkg.ErrRouterNameRequired
	ErrorName                = errspkg.Name

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopLogger         = loggingpkg.NewNopLogger

	CreateULID = idspkg.CreateULID
)

// Envelope wire constants.
const (
	SpecVersion         = envelopepkg.SpecVersion
	DataContentTypeJSON = envelopepkg.DataContentTypeJSON
)

// DefaultTimeout bounds business function execution when neither the handler
// registration nor the router config sets a deadline.
const DefaultTimeout = engine.DefaultTimeout

// Span status codes for the tracing capability.
const (
	StatusUnset = tracingpkg.StatusUnset
	StatusOK    = tracingpkg.StatusOK
	StatusError = tracingpkg.StatusError
)
