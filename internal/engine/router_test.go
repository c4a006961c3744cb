package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/topicflow/internal/engine/envelope"
	"github.com/drblury/topicflow/internal/engine/errs"
	"github.com/drblury/topicflow/internal/engine/schema"
)

func mustHandler(t *testing.T, reg HandlerRegistration, opts ...HandlerOption) *Handler {
	t.Helper()
	h, err := NewHandler(reg, opts...)
	require.NoError(t, err)
	return h
}

func echoHandler(t *testing.T, name, accepts, emits string) *Handler {
	t.Helper()
	return mustHandler(t, HandlerRegistration{
		Name:    name,
		Accepts: MessageBinding{Pattern: accepts, Schema: schema.Any()},
		Emits:   []MessageBinding{{Pattern: emits, Schema: schema.Any()}},
		Handler: func(ctx context.Context, in Input) ([]Output, error) {
			return []Output{{Type: emits, Data: in.Data}}, nil
		},
	})
}

func TestNewRouter_Validation(t *testing.T) {
	_, err := NewRouter(RouterConfig{})
	assert.ErrorIs(t, err, errs.ErrRouterNameRequired)

	_, err = NewRouter(RouterConfig{Name: "r", Handlers: []*Handler{nil}})
	assert.ErrorIs(t, err, errs.ErrHandlerRequired)
}

func TestNewRouter_RejectsDuplicatePatterns(t *testing.T) {
	a := echoHandler(t, "a", "cmd.x", "evt.x")
	b := echoHandler(t, "b", "cmd.x", "evt.y")

	_, err := NewRouter(RouterConfig{Name: "r", Handlers: []*Handler{a, b}})
	var dupErr *errs.DuplicateTopicError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "cmd.x", dupErr.Pattern)
}

func TestNewRouter_EquivalentButDistinctPatternsAllowed(t *testing.T) {
	// Patterns are compared as raw strings, so differently named placeholders
	// register side by side even though they match the same topics.
	a := echoHandler(t, "a", "cmd.{{x}}", "evt.x")
	b := echoHandler(t, "b", "cmd.{{y}}", "evt.y")

	router, err := NewRouter(RouterConfig{Name: "r", Handlers: []*Handler{a, b}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd.{{x}}", "cmd.{{y}}"}, router.Patterns())
}

func TestNewRouter_AppliesDefaultTimeout(t *testing.T) {
	a := echoHandler(t, "a", "cmd.a", "evt.a")

	reg := HandlerRegistration{
		Name:    "b",
		Accepts: MessageBinding{Pattern: "cmd.b", Schema: schema.Any()},
		Timeout: 250 * time.Millisecond,
		Handler: func(ctx context.Context, in Input) ([]Output, error) { return nil, nil },
	}
	b := mustHandler(t, reg)

	_, err := NewRouter(RouterConfig{
		Name:           "r",
		Handlers:       []*Handler{a, b},
		DefaultTimeout: time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, time.Second, a.Timeout())
	assert.Equal(t, 250*time.Millisecond, b.Timeout())
}

func TestDispatch_PreservesInputOrder(t *testing.T) {
	slow := mustHandler(t, HandlerRegistration{
		Name:    "slow",
		Accepts: MessageBinding{Pattern: "cmd.slow", Schema: schema.Any()},
		Emits:   []MessageBinding{{Pattern: "evt.slow", Schema: schema.Any()}},
		Handler: func(ctx context.Context, in Input) ([]Output, error) {
			time.Sleep(50 * time.Millisecond)
			return []Output{{Type: "evt.slow", Data: in.Data}}, nil
		},
	})
	fast := echoHandler(t, "fast", "cmd.fast", "evt.fast")

	router, err := NewRouter(RouterConfig{Name: "r", Handlers: []*Handler{slow, fast}})
	require.NoError(t, err)

	events := []envelope.Envelope{
		testEnvelope(t, "cmd.slow"),
		testEnvelope(t, "cmd.fast"),
		testEnvelope(t, "cmd.slow"),
	}

	results := router.Dispatch(context.Background(), events)
	require.Len(t, results, 3)
	assert.Equal(t, "evt.slow", results[0].EventToEmit.Type)
	assert.Equal(t, "evt.fast", results[1].EventToEmit.Type)
	assert.Equal(t, "evt.slow", results[2].EventToEmit.Type)
	for i, result := range results {
		assert.True(t, result.Success)
		assert.Equal(t, events[i].ID, result.Event.ID)
	}
}

func TestDispatch_FirstMatchWins(t *testing.T) {
	specific := echoHandler(t, "specific", "cmd.store.fetch.{{resource}}", "evt.specific")
	broad := echoHandler(t, "broad", "cmd.{{rest}}", "evt.broad")

	router, err := NewRouter(RouterConfig{Name: "r", Handlers: []*Handler{specific, broad}})
	require.NoError(t, err)

	results := router.Dispatch(context.Background(), []envelope.Envelope{
		testEnvelope(t, "cmd.store.fetch.document"),
		testEnvelope(t, "cmd.other"),
	})
	require.Len(t, results, 2)
	assert.Equal(t, "evt.specific", results[0].EventToEmit.Type)
	assert.Equal(t, "evt.broad", results[1].EventToEmit.Type)
}

func TestDispatch_NotFound(t *testing.T) {
	router, err := NewRouter(RouterConfig{
		Name:     "r",
		Handlers: []*Handler{echoHandler(t, "a", "cmd.known", "evt.known")},
	})
	require.NoError(t, err)

	results := router.Dispatch(context.Background(), []envelope.Envelope{
		testEnvelope(t, "cmd.unknown"),
	})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Nil(t, results[0].EventToEmit)

	var notFound *errs.NotFoundError
	require.ErrorAs(t, results[0].Err, &notFound)
	assert.Equal(t, "cmd.unknown", notFound.Topic)
	assert.Equal(t, []string{"cmd.known"}, notFound.Known)
}

func TestDispatch_SilentDrop(t *testing.T) {
	silent := false
	router, err := NewRouter(RouterConfig{
		Name:            "r",
		Handlers:        []*Handler{echoHandler(t, "a", "cmd.known", "evt.known")},
		ErrorOnNotFound: &silent,
	})
	require.NoError(t, err)

	results := router.Dispatch(context.Background(), []envelope.Envelope{
		testEnvelope(t, "cmd.unknown"),
		testEnvelope(t, "cmd.known"),
	})
	require.Len(t, results, 1)
	assert.Equal(t, "evt.known", results[0].EventToEmit.Type)
}

func TestDispatch_NotFoundOverridePerBatch(t *testing.T) {
	router, err := NewRouter(RouterConfig{
		Name:     "r",
		Handlers: []*Handler{echoHandler(t, "a", "cmd.known", "evt.known")},
	})
	require.NoError(t, err)

	results := router.Dispatch(context.Background(),
		[]envelope.Envelope{testEnvelope(t, "cmd.unknown")},
		WithErrorOnNotFound(false),
	)
	assert.Empty(t, results)
}

func TestDispatch_EventIsolation(t *testing.T) {
	failing := mustHandler(t, HandlerRegistration{
		Name:    "failing",
		Accepts: MessageBinding{Pattern: "cmd.fail", Schema: schema.Any()},
		Handler: func(ctx context.Context, in Input) ([]Output, error) {
			return nil, errors.New("boom")
		},
	})
	ok := echoHandler(t, "ok", "cmd.ok", "evt.ok")

	router, err := NewRouter(RouterConfig{Name: "r", Handlers: []*Handler{failing, ok}})
	require.NoError(t, err)

	results := router.Dispatch(context.Background(), []envelope.Envelope{
		testEnvelope(t, "cmd.fail"),
		testEnvelope(t, "cmd.ok"),
	})
	require.Len(t, results, 2)

	// The failing event settles as its .error event, not a batch failure.
	assert.True(t, results[0].Success)
	assert.Equal(t, "cmd.fail.error", results[0].EventToEmit.Type)
	assert.True(t, results[1].Success)
	assert.Equal(t, "evt.ok", results[1].EventToEmit.Type)
}

func TestDispatch_ContractFailureBecomesSystemErrorResult(t *testing.T) {
	h := echoHandler(t, "strict", "cmd.strict.{{r}}", "evt.strict")

	router, err := NewRouter(RouterConfig{Name: "r", Handlers: []*Handler{h}})
	require.NoError(t, err)

	in := testEnvelope(t, "cmd.strict.x")
	in.DataContentType = "text/plain"

	results := router.Dispatch(context.Background(), []envelope.Envelope{in})
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	require.NotNil(t, results[0].EventToEmit)
	assert.Equal(t, "sys.strict.error", results[0].EventToEmit.Type)
}

func TestDispatch_MultipleOutputsFlattened(t *testing.T) {
	multi := mustHandler(t, HandlerRegistration{
		Name:    "multi",
		Accepts: MessageBinding{Pattern: "cmd.multi", Schema: schema.Any()},
		Emits:   []MessageBinding{{Pattern: "evt.multi.{{n}}", Schema: schema.Any()}},
		Handler: func(ctx context.Context, in Input) ([]Output, error) {
			return []Output{
				{Type: "evt.multi.one", Data: map[string]any{}},
				{Type: "evt.multi.two", Data: map[string]any{}},
			}, nil
		},
	})

	router, err := NewRouter(RouterConfig{Name: "r", Handlers: []*Handler{multi}})
	require.NoError(t, err)

	results := router.Dispatch(context.Background(), []envelope.Envelope{testEnvelope(t, "cmd.multi")})
	require.Len(t, results, 2)
	assert.Equal(t, "evt.multi.one", results[0].EventToEmit.Type)
	assert.Equal(t, "evt.multi.two", results[1].EventToEmit.Type)
}

func TestDispatch_ContinuesIncomingTrace(t *testing.T) {
	h := echoHandler(t, "traced", "cmd.traced", "evt.traced")
	router, err := NewRouter(RouterConfig{Name: "r", Handlers: []*Handler{h}})
	require.NoError(t, err)

	in := testEnvelope(t, "cmd.traced")
	in.TraceParent = envelope.StringPtr("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")

	results := router.Dispatch(context.Background(), []envelope.Envelope{in})
	require.Len(t, results, 1)

	out := results[0].EventToEmit
	require.NotNil(t, out.TraceParent)
	assert.Contains(t, *out.TraceParent, "0af7651916cd43dd8448eb211c80319c")
	assert.NotEqual(t, *in.TraceParent, *out.TraceParent)
}

func TestDispatch_EventCallback(t *testing.T) {
	router, err := NewRouter(RouterConfig{
		Name:     "r",
		Handlers: []*Handler{echoHandler(t, "a", "cmd.a", "evt.a")},
	})
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[string]int{}

	events := []envelope.Envelope{
		testEnvelope(t, "cmd.a"),
		testEnvelope(t, "cmd.a"),
	}

	router.Dispatch(context.Background(), events, WithEventCallback(func(event envelope.Envelope, results []Result) {
		mu.Lock()
		defer mu.Unlock()
		seen[event.ID] = len(results)
	}))

	assert.Equal(t, map[string]int{events[0].ID: 1, events[1].ID: 1}, seen)
}

func TestDispatch_HookLifecycle(t *testing.T) {
	var mu sync.Mutex
	var started, done []string
	var failed []error

	hooks := DispatchHooks{
		OnStart: func(ctx DispatchContext) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, ctx.Handler)
		},
		OnDone: func(ctx DispatchContext) {
			mu.Lock()
			defer mu.Unlock()
			done = append(done, ctx.Handler)
		},
		OnError: func(ctx DispatchContext, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, err)
		},
	}

	router, err := NewRouter(RouterConfig{
		Name:     "r",
		Handlers: []*Handler{echoHandler(t, "a", "cmd.a", "evt.a")},
	}, WithDispatchHooks(hooks))
	require.NoError(t, err)

	router.Dispatch(context.Background(), []envelope.Envelope{
		testEnvelope(t, "cmd.a"),
		testEnvelope(t, "cmd.missing"),
	})

	assert.Equal(t, []string{"a"}, started)
	assert.Equal(t, []string{"a"}, done)
	require.Len(t, failed, 1)
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, failed[0], &notFound)
}

func TestDispatch_EmptyBatch(t *testing.T) {
	router, err := NewRouter(RouterConfig{
		Name:     "r",
		Handlers: []*Handler{echoHandler(t, "a", "cmd.a", "evt.a")},
	})
	require.NoError(t, err)

	assert.Empty(t, router.Dispatch(context.Background(), nil))
}
