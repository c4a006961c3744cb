package envelope

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/topicflow/internal/engine/errs"
)

func validFields() Fields {
	return Fields{
		Type:            "cmd.store.fetch.document",
		Source:          "client",
		Subject:         "doc-1",
		Data:            map[string]any{"id": "doc-1"},
		DataContentType: DataContentTypeJSON,
	}
}

func TestNew_DefaultsGeneratedFields(t *testing.T) {
	env, err := New(validFields())
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.NotEmpty(t, env.Time)
	assert.Equal(t, SpecVersion, env.SpecVersion)
	assert.Equal(t, "0", env.ElapsedTime)
	assert.Equal(t, "0", env.ExecutionUnits)
	assert.Nil(t, env.To)
	assert.Nil(t, env.RedirectTo)
	assert.Nil(t, env.TraceParent)
	assert.Nil(t, env.TraceState)

	_, err = ParseTime(env.Time)
	assert.NoError(t, err)
}

func TestNew_KeepsSuppliedIDAndTime(t *testing.T) {
	f := validFields()
	f.ID = "fixed-id"
	f.Time = "2024-01-02T03:04:05Z"

	env, err := New(f)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", env.ID)
	assert.Equal(t, "2024-01-02T03:04:05Z", env.Time)
}

func TestNew_MissingFieldsReportedTogether(t *testing.T) {
	_, err := New(Fields{})
	require.Error(t, err)

	var shapeErr *errs.ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.ElementsMatch(t, []string{"type", "source", "subject", "data", "datacontenttype"}, shapeErr.Missing)
}

func TestNew_EscapesRoutingFields(t *testing.T) {
	f := validFields()
	f.Source = "svc with space"
	f.To = StringPtr("queue/päth")
	f.RedirectTo = StringPtr("already%20encoded")

	env, err := New(f)
	require.NoError(t, err)
	assert.Equal(t, "svc%20with%20space", env.Source)
	require.NotNil(t, env.To)
	assert.Equal(t, "queue/p%C3%A4th", *env.To)
	require.NotNil(t, env.RedirectTo)
	assert.Equal(t, "already%20encoded", *env.RedirectTo)
}

func TestEscapeURI(t *testing.T) {
	// Reserved and unreserved characters pass through untouched.
	safe := "abc019;,/?:@&=+$-_.!~*'()#"
	assert.Equal(t, safe, EscapeURI(safe))

	assert.Equal(t, "a%20b", EscapeURI("a b"))
	assert.Equal(t, "%22quoted%22", EscapeURI(`"quoted"`))
	assert.Equal(t, "%C3%A4", EscapeURI("ä"))

	// A bare percent that does not start a valid escape is encoded.
	assert.Equal(t, "100%25", EscapeURI("100%"))
	assert.Equal(t, "%20", EscapeURI("%20"))
}

func TestToJSON_RendersExplicitNulls(t *testing.T) {
	env, err := New(validFields())
	require.NoError(t, err)

	data, err := env.ToJSON()
	require.NoError(t, err)

	wire := string(data)
	for _, field := range []string{`"to":null`, `"redirectto":null`, `"traceparent":null`, `"tracestate":null`} {
		assert.True(t, strings.Contains(wire, field), "expected %s in %s", field, wire)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	f := validFields()
	f.To = StringPtr("somewhere")
	f.TraceParent = StringPtr("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")

	env, err := New(f)
	require.NoError(t, err)

	data, err := env.ToJSON()
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, parsed.ID)
	assert.Equal(t, env.Type, parsed.Type)
	require.NotNil(t, parsed.To)
	assert.Equal(t, "somewhere", *parsed.To)
	assert.Nil(t, parsed.RedirectTo)
	require.NotNil(t, parsed.TraceParent)
	assert.Equal(t, *env.TraceParent, *parsed.TraceParent)
}

func TestParseTime(t *testing.T) {
	_, err := ParseTime("2024-01-02T03:04:05Z")
	assert.NoError(t, err)
	_, err = ParseTime("2024-01-02T03:04:05.123456789Z")
	assert.NoError(t, err)
	_, err = ParseTime("not a time")
	assert.Error(t, err)
}
