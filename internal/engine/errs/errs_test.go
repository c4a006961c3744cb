package errs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/topicflow/internal/engine/schema"
)

func TestName(t *testing.T) {
	cases := []struct {
		err  error
		name string
	}{
		{&ShapeError{Missing: []string{"type"}}, "ShapeError"},
		{&ValidationError{Handler: "h"}, "ValidationError"},
		{&ResponseTypeError{Handler: "h"}, "ResponseTypeError"},
		{&ResponseShapeError{Handler: "h"}, "ResponseShapeError"},
		{&TimeoutError{Timeout: time.Second}, "TimeoutError"},
		{&DuplicateTopicError{Pattern: "a.b"}, "DuplicateTopicError"},
		{&NotFoundError{Topic: "a.b"}, "RouterNotFoundError"},
		{errors.New("anything else"), "Error"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.name, Name(tc.err))
	}
}

func TestName_UnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("while dispatching: %w", &TimeoutError{Timeout: time.Second})
	assert.Equal(t, "TimeoutError", Name(wrapped))
}

func TestTimeoutError_Message(t *testing.T) {
	err := &TimeoutError{Timeout: 100 * time.Millisecond}
	assert.Equal(t, "Promise timed out after 100ms.", err.Error())

	err = &TimeoutError{Timeout: 5 * time.Second}
	assert.Equal(t, "Promise timed out after 5000ms.", err.Error())
}

func TestShapeError_ListsMissingFields(t *testing.T) {
	err := &ShapeError{Missing: []string{"type", "source"}}
	assert.Equal(t, "envelope is missing required fields: type, source", err.Error())
}

func TestValidationError_IncludesIssues(t *testing.T) {
	err := &ValidationError{
		Handler: "fetch",
		Topic:   "cmd.fetch",
		Reason:  "payload failed input schema validation",
		Issues: []schema.Issue{
			{Path: "id", Code: "REQUIRED_FIELD_MISSING", Message: "required field is missing"},
		},
	}
	assert.Contains(t, err.Error(), `handler "fetch"`)
	assert.Contains(t, err.Error(), "id: required field is missing")
}

func TestNotFoundError_ListsKnownPatterns(t *testing.T) {
	err := &NotFoundError{Topic: "evt.x", Known: []string{"cmd.a", "cmd.b.{{x}}"}}
	assert.Contains(t, err.Error(), `"evt.x"`)
	assert.Contains(t, err.Error(), "cmd.a, cmd.b.{{x}}")
}
