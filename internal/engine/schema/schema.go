// Package schema defines the structural validation capability consumed by the
// dispatch engine. Handlers declare a Schema for the payload they accept and
// for every payload they may emit; the engine only ever calls Validate and
// inspects the returned issues, so any validation library can be adapted by
// implementing the Schema interface.
package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/drblury/topicflow/internal/engine/jsoncodec"
)

// Issue represents a single validation failure.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (i Issue) Error() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Result is the outcome of validating a value against a Schema.
type Result struct {
	OK     bool
	Value  any
	Issues []Issue
}

// Schema validates an arbitrary structured value.
type Schema interface {
	Validate(value any) Result
}

// Func adapts a plain function to the Schema interface.
type Func func(value any) Result

func (f Func) Validate(value any) Result { return f(value) }

// Any returns a schema that accepts every value, including nil.
func Any() Schema {
	return Func(func(value any) Result {
		return Result{OK: true, Value: value}
	})
}

// Property defines the validation rules for one field of an object schema.
type Property struct {
	Type       string
	Format     string
	Pattern    string
	MinLength  *int
	MaxLength  *int
	Minimum    *float64
	Maximum    *float64
	Enum       []any
	Items      *Property
	Properties map[string]*Property
	Required   []string
}

// ObjectSchema validates a JSON-like object against a set of property
// definitions. Values are normalised through the JSON codec first so typed
// structs and map payloads validate identically.
type ObjectSchema struct {
	Properties map[string]*Property
	Required   []string
}

// Object builds an ObjectSchema from property definitions and a list of
// required field names.
func Object(properties map[string]*Property, required ...string) *ObjectSchema {
	return &ObjectSchema{Properties: properties, Required: required}
}

// Validate implements the Schema interface.
func (s *ObjectSchema) Validate(value any) Result {
	data, err := toMap(value)
	if err != nil {
		return Result{Issues: []Issue{{
			Path:    "",
			Code:    "CONVERSION_ERROR",
			Message: fmt.Sprintf("failed to convert value to object: %v", err),
		}}}
	}

	var issues []Issue
	issues = validateObject("", data, s.Properties, s.Required, issues)
	if len(issues) > 0 {
		return Result{Issues: issues}
	}
	return Result{OK: true, Value: data}
}

func validateObject(fieldPath string, data map[string]any, properties map[string]*Property, required []string, issues []Issue) []Issue {
	for _, name := range required {
		if _, exists := data[name]; !exists {
			issues = append(issues, Issue{
				Path:    buildFieldPath(fieldPath, name),
				Code:    "REQUIRED_FIELD_MISSING",
				Message: "required field is missing",
			})
		}
	}

	for name, value := range data {
		if prop, exists := properties[name]; exists {
			issues = validateProperty(buildFieldPath(fieldPath, name), value, prop, issues)
		}
	}

	return issues
}

func validateProperty(fieldPath string, value any, prop *Property, issues []Issue) []Issue {
	if value == nil {
		return issues
	}

	if prop.Type != "" && !matchesType(value, prop.Type) {
		return append(issues, Issue{
			Path:    fieldPath,
			Code:    "TYPE_MISMATCH",
			Message: fmt.Sprintf("expected type %s, got %T", prop.Type, value),
			Value:   value,
		})
	}

	if str, ok := value.(string); ok {
		issues = validateString(fieldPath, str, prop, issues)
	}

	if num, ok := toFloat(value); ok {
		issues = validateNumber(fieldPath, num, prop, issues)
	}

	if arr, ok := value.([]any); ok && prop.Items != nil {
		for i, item := range arr {
			issues = validateProperty(fmt.Sprintf("%s[%d]", fieldPath, i), item, prop.Items, issues)
		}
	}

	if obj, ok := value.(map[string]any); ok && prop.Properties != nil {
		issues = validateObject(fieldPath, obj, prop.Properties, prop.Required, issues)
	}

	if len(prop.Enum) > 0 {
		issues = validateEnum(fieldPath, value, prop.Enum, issues)
	}

	if prop.Format != "" {
		issues = validateFormat(fieldPath, value, prop.Format, issues)
	}

	if prop.Pattern != "" {
		issues = validatePattern(fieldPath, value, prop.Pattern, issues)
	}

	return issues
}

func matchesType(value any, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := toFloat(value)
		return ok
	case "integer":
		if f, ok := toFloat(value); ok {
			return f == float64(int64(f))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		// Unknown types pass validation.
		return true
	}
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func validateString(fieldPath, value string, prop *Property, issues []Issue) []Issue {
	if prop.MinLength != nil && len(value) < *prop.MinLength {
		issues = append(issues, Issue{
			Path:    fieldPath,
			Code:    "MIN_LENGTH_VIOLATION",
			Message: fmt.Sprintf("string length %d is less than minimum %d", len(value), *prop.MinLength),
			Value:   value,
		})
	}
	if prop.MaxLength != nil && len(value) > *prop.MaxLength {
		issues = append(issues, Issue{
			Path:    fieldPath,
			Code:    "MAX_LENGTH_VIOLATION",
			Message: fmt.Sprintf("string length %d exceeds maximum %d", len(value), *prop.MaxLength),
			Value:   value,
		})
	}
	return issues
}

func validateNumber(fieldPath string, value float64, prop *Property, issues []Issue) []Issue {
	if prop.Minimum != nil && value < *prop.Minimum {
		issues = append(issues, Issue{
			Path:    fieldPath,
			Code:    "MINIMUM_VIOLATION",
			Message: fmt.Sprintf("value %v is less than minimum %v", value, *prop.Minimum),
			Value:   value,
		})
	}
	if prop.Maximum != nil && value > *prop.Maximum {
		issues = append(issues, Issue{
			Path:    fieldPath,
			Code:    "MAXIMUM_VIOLATION",
			Message: fmt.Sprintf("value %v exceeds maximum %v", value, *prop.Maximum),
			Value:   value,
		})
	}
	return issues
}

func validateEnum(fieldPath string, value any, enum []any, issues []Issue) []Issue {
	for _, allowed := range enum {
		if reflect.DeepEqual(value, allowed) {
			return issues
		}
	}
	return append(issues, Issue{
		Path:    fieldPath,
		Code:    "ENUM_VIOLATION",
		Message: fmt.Sprintf("value is not in allowed enum values: %v", enum),
		Value:   value,
	})
}

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	uuidRegex     = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	dateRegex     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimeRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
)

func validateFormat(fieldPath string, value any, format string, issues []Issue) []Issue {
	str, ok := value.(string)
	if !ok {
		return issues
	}

	var valid bool
	var msg string
	switch format {
	case "email":
		valid, msg = emailRegex.MatchString(str), "invalid email format"
	case "uri":
		valid, msg = strings.Contains(str, "://"), "invalid URI format"
	case "uuid":
		valid, msg = uuidRegex.MatchString(strings.ToLower(str)), "invalid UUID format"
	case "date":
		valid, msg = dateRegex.MatchString(str), "invalid date format (expected YYYY-MM-DD)"
	case "date-time":
		valid, msg = dateTimeRegex.MatchString(str), "invalid date-time format (expected ISO 8601)"
	default:
		// Unknown format, skip validation.
		return issues
	}

	if !valid {
		issues = append(issues, Issue{
			Path:    fieldPath,
			Code:    "FORMAT_VIOLATION",
			Message: msg,
			Value:   value,
		})
	}
	return issues
}

func validatePattern(fieldPath string, value any, pattern string, issues []Issue) []Issue {
	str, ok := value.(string)
	if !ok {
		return issues
	}

	regex, err := regexp.Compile(pattern)
	if err != nil {
		return append(issues, Issue{
			Path:    fieldPath,
			Code:    "INVALID_PATTERN",
			Message: fmt.Sprintf("invalid regex pattern: %s", pattern),
			Value:   value,
		})
	}

	if !regex.MatchString(str) {
		issues = append(issues, Issue{
			Path:    fieldPath,
			Code:    "PATTERN_VIOLATION",
			Message: fmt.Sprintf("value does not match pattern: %s", pattern),
			Value:   value,
		})
	}
	return issues
}

func buildFieldPath(parent, field string) string {
	if parent == "" {
		return field
	}
	return fmt.Sprintf("%s.%s", parent, field)
}

// toMap normalises a value to map[string]any through the JSON codec.
func toMap(value any) (map[string]any, error) {
	if m, ok := value.(map[string]any); ok {
		return m, nil
	}

	data, err := jsoncodec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	var result map[string]any
	if err := jsoncodec.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return result, nil
}
