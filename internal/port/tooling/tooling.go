// Package tooling defines the tool execution port: the handler
// contract every action tool implements and the registry that maps
// tool names onto handlers.
package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
)

// ErrUnknownTool is returned when a plan names a tool nothing registered.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError marks tool params that failed decoding or checks.
// It is terminal: retrying the same params cannot succeed.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid params for tool %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Result is the outcome of one tool execution. Units optionally
// reports the actual billable quantity when it differs from the
// estimate; zero means bill the estimate.
type Result struct {
	Data  any   `json:"data"`
	Units int64 `json:"units,omitempty"`
}

// Handler executes one tool call with raw JSON params.
type Handler interface {
	Execute(ctx context.Context, params map[string]json.RawMessage) (*Result, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, params map[string]json.RawMessage) (*Result, error)

func (f HandlerFunc) Execute(ctx context.Context, params map[string]json.RawMessage) (*Result, error) {
	return f(ctx, params)
}

// Definition describes one registered tool.
type Definition struct {
	Name        string
	Module      action.Module
	Description string
	Handler     Handler
}

// NewTool builds a Definition whose handler decodes the raw params
// into T before calling fn. Decode failures surface as ValidationError.
func NewTool[T any](name string, module action.Module, description string, fn func(ctx context.Context, args T) (*Result, error)) Definition {
	return Definition{
		Name:        name,
		Module:      module,
		Description: description,
		Handler: HandlerFunc(func(ctx context.Context, params map[string]json.RawMessage) (*Result, error) {
			var args T
			raw, err := json.Marshal(params)
			if err != nil {
				return nil, &ValidationError{Tool: name, Err: err}
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, &ValidationError{Tool: name, Err: err}
			}
			return fn(ctx, args)
		}),
	}
}
