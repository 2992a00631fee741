package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"engram/internal/logging"
	"engram/internal/store"
	"engram/internal/types"
)

// previewBytes is how much of an oversized output survives truncation.
const previewBytes = 500

// Observer receives per-dispatch outcomes, for metrics.
type Observer interface {
	ObserveToolCall(toolName, status string, elapsed time.Duration)
}

// Dispatcher is the single wrapper every tool invocation flows
// through. It owns timeout enforcement, output-size enforcement, panic
// containment, and trace persistence; tool implementations carry none
// of those concerns.
type Dispatcher struct {
	registry *Registry
	store    *store.Store
	observer Observer
}

// NewDispatcher wires the registry and the persistence layer.
func NewDispatcher(registry *Registry, st *store.Store) *Dispatcher {
	return &Dispatcher{registry: registry, store: st}
}

// SetObserver attaches a metrics observer.
func (d *Dispatcher) SetObserver(obs Observer) {
	d.observer = obs
}

// Registry exposes the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs one tool call under the envelope's constraints. Every
// outcome, including failures, yields a Result; the error path is in
// the result, not a Go error.
func (d *Dispatcher) Dispatch(ctx context.Context, env *Envelope) *Result {
	started := time.Now()
	res := &Result{
		TraceID:   env.TraceID,
		SpanID:    env.SpanID,
		ToolName:  env.Callee,
		StartedAt: started,
	}

	// Input validation fails locally, before anything is persisted.
	if err := env.Validate(); err != nil {
		return d.failLocal(res, ErrTypeInputValidation, err.Error(), started)
	}
	reg, ok := d.registry.Get(env.Callee)
	if !ok {
		return d.failLocal(res, ErrTypeUnknownTool, fmt.Sprintf("no tool registered as %q", env.Callee), started)
	}
	if err := reg.ValidateInputs(env.Inputs); err != nil {
		return d.failLocal(res, ErrTypeInputValidation, err.Error(), started)
	}

	call := &types.ToolCall{
		CallID:    types.NewID(),
		ToolName:  env.Callee,
		Timestamp: started,
		Inputs:    env.Inputs,
	}
	node := &types.ExecNode{
		ExecNodeID: types.NewID(),
		CallID:     call.CallID,
		TraceID:    env.TraceID,
		ToolName:   env.Callee,
		Attempt:    1,
		TimeoutMS:  env.Constraints.TimeoutMS,
		StartedAt:  started,
	}
	if err := d.store.BeginDispatch(call, node); err != nil {
		logging.ToolsError("Failed to persist dispatch of %s: %v", env.Callee, err)
		return d.failLocal(res, ErrTypeToolError, err.Error(), started)
	}
	res.CallID = call.CallID
	res.ExecNodeID = node.ExecNodeID

	outputs, terr := d.execute(ctx, reg, env)

	var persisted map[string]any
	switch {
	case terr != nil:
		res.Status = types.StatusError
		if terr.Type == ErrTypeTimeout {
			res.Status = types.StatusTimeout
		}
		res.Error = terr
		persisted = map[string]any{"error": map[string]any{"type": terr.Type, "message": terr.Message}}
		logging.ToolsError("Tool %s failed (%s): %s", env.Callee, terr.Type, terr.Message)
	default:
		res.Status = types.StatusOK
		res.Outputs = outputs
		persisted = outputs

		// Output-size enforcement happens here, in the one place all
		// tools share.
		if raw, err := json.Marshal(outputs); err == nil && len(raw) > env.Constraints.MaxOutputBytes {
			preview := raw
			if len(preview) > previewBytes {
				preview = preview[:previewBytes]
			}
			res.Status = types.StatusError
			res.Error = &ToolError{
				Type:    ErrTypeOutputCap,
				Message: fmt.Sprintf("outputs of %d bytes exceed cap of %d", len(raw), env.Constraints.MaxOutputBytes),
			}
			res.Outputs = map[string]any{"truncated": true, "preview": string(preview)}
			persisted = res.Outputs
			logging.ToolsError("Tool %s output capped: %d bytes", env.Callee, len(raw))
		}
	}

	res.FinishedAt = time.Now()
	res.ElapsedMS = res.FinishedAt.Sub(started).Milliseconds()
	if err := d.store.FinishDispatch(call.CallID, node.ExecNodeID, persisted, res.Status, res.FinishedAt); err != nil {
		logging.ToolsError("Failed to finalize dispatch of %s: %v", env.Callee, err)
	}
	if d.observer != nil {
		d.observer.ObserveToolCall(env.Callee, res.Status, res.FinishedAt.Sub(started))
	}
	logging.ToolsDebug("Dispatched %s: %s in %dms", env.Callee, res.Status, res.ElapsedMS)
	return res
}

type execResult struct {
	outputs map[string]any
	err     error
}

// execute runs the tool with a wall-clock cancellation. The tool runs
// in its own goroutine with a buffered channel so a tool that ignores
// cancellation cannot block the wrapper.
func (d *Dispatcher) execute(ctx context.Context, reg *Registration, env *Envelope) (map[string]any, *ToolError) {
	ctx, cancel := context.WithTimeout(ctx, env.Timeout())
	defer cancel()

	ch := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- execResult{err: &Error{Type: ErrTypePanic, Message: fmt.Sprintf("%v", r)}}
			}
		}()
		outputs, err := reg.Factory().Execute(ctx, env)
		ch <- execResult{outputs: outputs, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ToolError{Type: ErrTypeTimeout, Message: fmt.Sprintf("exceeded %dms budget", env.Constraints.TimeoutMS)}
		}
		return nil, &ToolError{Type: ErrTypeTimeout, Message: "dispatch canceled"}
	case out := <-ch:
		if out.err != nil {
			var typed *Error
			if errors.As(out.err, &typed) {
				return nil, &ToolError{Type: typed.Type, Message: typed.Message}
			}
			if errors.Is(out.err, context.DeadlineExceeded) {
				return nil, &ToolError{Type: ErrTypeTimeout, Message: out.err.Error()}
			}
			return nil, &ToolError{Type: ErrTypeToolError, Message: out.err.Error()}
		}
		if out.outputs == nil {
			out.outputs = map[string]any{}
		}
		return out.outputs, nil
	}
}

func (d *Dispatcher) failLocal(res *Result, errType, msg string, started time.Time) *Result {
	res.Status = types.StatusError
	res.Error = &ToolError{Type: errType, Message: msg}
	res.FinishedAt = time.Now()
	res.ElapsedMS = res.FinishedAt.Sub(started).Milliseconds()
	logging.ToolsError("Dispatch of %s rejected (%s): %s", res.ToolName, errType, msg)
	if d.observer != nil {
		d.observer.ObserveToolCall(res.ToolName, res.Status, res.FinishedAt.Sub(started))
	}
	return res
}
