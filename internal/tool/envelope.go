// Package tool defines the uniform tool contract: the request envelope,
// the result, the registry of named tool factories, and the dispatch
// wrapper that enforces timeouts, output caps, and trace persistence
// for every tool in the system.
package tool

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"engram/internal/types"
)

// Default dispatch constraints.
const (
	DefaultTimeoutMS      = 8000
	DefaultMaxOutputBytes = 200000
	DefaultPrivacyMode    = "local_only"
)

var validate = validator.New()

// Constraints bound one dispatch.
type Constraints struct {
	TimeoutMS      int    `json:"timeout_ms" validate:"gte=100,lte=300000"`
	MaxOutputBytes int    `json:"max_output_bytes" validate:"gte=1024"`
	PrivacyMode    string `json:"privacy_mode" validate:"oneof=local_only cloud_ok"`
}

// DefaultConstraints returns the default dispatch constraints.
func DefaultConstraints() Constraints {
	return Constraints{
		TimeoutMS:      DefaultTimeoutMS,
		MaxOutputBytes: DefaultMaxOutputBytes,
		PrivacyMode:    DefaultPrivacyMode,
	}
}

// Envelope is the uniform tool request.
type Envelope struct {
	TraceID        string         `json:"trace_id"`
	SpanID         string         `json:"span_id"`
	Caller         string         `json:"caller"`
	Callee         string         `json:"callee"`
	Intent         string         `json:"intent,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Constraints    Constraints    `json:"constraints"`
	Inputs         map[string]any `json:"inputs"`
}

// NewEnvelope builds an envelope with fresh span id and default
// constraints. The trace id may be overwritten by the caller.
func NewEnvelope(caller, callee string, inputs map[string]any) *Envelope {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &Envelope{
		TraceID:     types.NewID(),
		SpanID:      types.NewID(),
		Caller:      caller,
		Callee:      callee,
		Constraints: DefaultConstraints(),
		Inputs:      inputs,
	}
}

// Validate checks the envelope shape and constraint ranges.
func (e *Envelope) Validate() error {
	if e.Callee == "" {
		return fmt.Errorf("envelope callee must not be empty")
	}
	if err := validate.Struct(e.Constraints); err != nil {
		return fmt.Errorf("invalid constraints: %w", err)
	}
	return nil
}

// Timeout returns the declared timeout as a duration.
func (e *Envelope) Timeout() time.Duration {
	return time.Duration(e.Constraints.TimeoutMS) * time.Millisecond
}

// ToolError is the structured error carried in a result.
type ToolError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error types produced by the wrapper itself.
const (
	ErrTypeInputValidation = "input_validation"
	ErrTypeUnknownTool     = "unknown_tool"
	ErrTypeTimeout         = "timeout"
	ErrTypePanic           = "panic"
	ErrTypeOutputCap       = "max_output_bytes_exceeded"
	ErrTypeToolError       = "tool_error"
)

// Error is a typed failure a tool implementation can return so the
// wrapper records a concrete error kind.
type Error struct {
	Type    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Result is the uniform tool response.
type Result struct {
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	ToolName   string         `json:"tool_name"`
	Status     string         `json:"status"` // ok, error, timeout
	Outputs    map[string]any `json:"outputs"`
	Error      *ToolError     `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	ElapsedMS  int64          `json:"elapsed_ms"`

	// Persistence handles for the orchestrator's trace wiring.
	CallID     string `json:"call_id,omitempty"`
	ExecNodeID string `json:"exec_node_id,omitempty"`
}

// OK reports whether the dispatch succeeded.
func (r *Result) OK() bool {
	return r.Status == types.StatusOK
}
