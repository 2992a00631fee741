package tool

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/store"
	"engram/internal/types"
)

type fakeTool struct {
	name    string
	execute func(ctx context.Context, env *Envelope) (map[string]any, error)
}

func (f *fakeTool) Name() string    { return f.name }
func (f *fakeTool) Version() string { return "1.0.0" }
func (f *fakeTool) Execute(ctx context.Context, env *Envelope) (map[string]any, error) {
	return f.execute(ctx, env)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewDispatcher(NewRegistry(), st), st
}

func register(t *testing.T, d *Dispatcher, name string, fn func(ctx context.Context, env *Envelope) (map[string]any, error)) {
	t.Helper()
	require.NoError(t, d.Registry().Register(&Registration{
		Name:    name,
		Version: "1.0.0",
		Factory: func() Tool { return &fakeTool{name: name, execute: fn} },
	}))
}

func TestDispatchSuccessPersistsCallAndNode(t *testing.T) {
	d, st := newTestDispatcher(t)
	register(t, d, "echo", func(ctx context.Context, env *Envelope) (map[string]any, error) {
		return map[string]any{"echo": env.Inputs["text"]}, nil
	})

	env := NewEnvelope("test", "echo", map[string]any{"text": "hello"})
	res := d.Dispatch(context.Background(), env)

	require.Equal(t, types.StatusOK, res.Status)
	assert.Equal(t, "hello", res.Outputs["echo"])
	require.NotEmpty(t, res.CallID)
	require.NotEmpty(t, res.ExecNodeID)

	call, err := st.GetToolCall(res.CallID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, call.Status)
	assert.Equal(t, "hello", call.Outputs["echo"])

	nodes, err := st.TraceNodes(env.TraceID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, types.StatusOK, nodes[0].State)
	assert.Equal(t, env.Constraints.TimeoutMS, nodes[0].TimeoutMS)
}

func TestDispatchTimeout(t *testing.T) {
	d, st := newTestDispatcher(t)
	register(t, d, "slow", func(ctx context.Context, env *Envelope) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{}, nil
		}
	})

	env := NewEnvelope("test", "slow", nil)
	env.Constraints.TimeoutMS = 100
	res := d.Dispatch(context.Background(), env)

	assert.Equal(t, types.StatusTimeout, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrTypeTimeout, res.Error.Type)

	call, err := st.GetToolCall(res.CallID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTimeout, call.Status)
}

func TestDispatchPanicBecomesError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	register(t, d, "boom", func(ctx context.Context, env *Envelope) (map[string]any, error) {
		panic("unexpected state")
	})

	res := d.Dispatch(context.Background(), NewEnvelope("test", "boom", nil))
	assert.Equal(t, types.StatusError, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrTypePanic, res.Error.Type)
	assert.Contains(t, res.Error.Message, "unexpected state")
}

func TestDispatchOutputCap(t *testing.T) {
	d, st := newTestDispatcher(t)
	register(t, d, "big", func(ctx context.Context, env *Envelope) (map[string]any, error) {
		return map[string]any{"blob": strings.Repeat("x", 10000)}, nil
	})

	env := NewEnvelope("test", "big", nil)
	env.Constraints.MaxOutputBytes = 2048
	res := d.Dispatch(context.Background(), env)

	assert.Equal(t, types.StatusError, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrTypeOutputCap, res.Error.Type)
	assert.Equal(t, true, res.Outputs["truncated"])
	preview := res.Outputs["preview"].(string)
	assert.LessOrEqual(t, len(preview), 500)

	call, err := st.GetToolCall(res.CallID)
	require.NoError(t, err)
	assert.Equal(t, true, call.Outputs["truncated"])
}

func TestDispatchUnknownTool(t *testing.T) {
	d, _ := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), NewEnvelope("test", "missing", nil))
	assert.Equal(t, types.StatusError, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrTypeUnknownTool, res.Error.Type)
	assert.Empty(t, res.CallID)
}

func TestDispatchSchemaValidation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.NoError(t, d.Registry().Register(&Registration{
		Name:    "typed",
		Version: "1.0.0",
		InputSchema: ObjectSchema([]string{"text"}, map[string]any{
			"text": map[string]any{"type": "string"},
		}),
		Factory: func() Tool {
			return &fakeTool{name: "typed", execute: func(ctx context.Context, env *Envelope) (map[string]any, error) {
				return map[string]any{}, nil
			}}
		},
	}))

	res := d.Dispatch(context.Background(), NewEnvelope("test", "typed", map[string]any{"wrong": 1}))
	assert.Equal(t, types.StatusError, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrTypeInputValidation, res.Error.Type)

	ok := d.Dispatch(context.Background(), NewEnvelope("test", "typed", map[string]any{"text": "fine"}))
	assert.Equal(t, types.StatusOK, ok.Status)
}

func TestDispatchTypedToolError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	register(t, d, "fails", func(ctx context.Context, env *Envelope) (map[string]any, error) {
		return nil, &Error{Type: "ocr_failed", Message: "no text regions"}
	})

	res := d.Dispatch(context.Background(), NewEnvelope("test", "fails", nil))
	assert.Equal(t, types.StatusError, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, "ocr_failed", res.Error.Type)
}

func TestEnvelopeConstraintValidation(t *testing.T) {
	env := NewEnvelope("test", "echo", nil)
	env.Constraints.TimeoutMS = 10 // below the floor
	assert.Error(t, env.Validate())

	env.Constraints = DefaultConstraints()
	assert.NoError(t, env.Validate())
}

func TestRegistryDuplicateAndNames(t *testing.T) {
	r := NewRegistry()
	reg := &Registration{Name: "a", Version: "1", Factory: func() Tool { return &fakeTool{} }}
	require.NoError(t, r.Register(reg))
	assert.Error(t, r.Register(&Registration{Name: "a", Version: "2", Factory: reg.Factory}))

	require.NoError(t, r.Register(&Registration{Name: "b", Version: "1", Factory: reg.Factory}))
	assert.Equal(t, []string{"a", "b"}, r.Names())
}
