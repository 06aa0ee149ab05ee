package tool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/internal/util"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FunctionTool is a generic adapter that exposes a plain Go function as an action.
//
// Responsibilities:
//   - Holds a JSON Schema parameter specification compiled on first use
//   - Validates caller supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch (wraps core.ErrInvalidArgument)
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after the schema is compiled and is safe
// for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *Context, args map[string]any) (any, error)

	once      sync.Once
	schema    *jsonschema.Schema
	schemaErr error
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema for the supported tags).
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// NewTypedTool derives the schema from T and binds validated arguments into a
// T before calling fn.
func NewTypedTool[T any](name, description string, fn func(toolCtx *Context, in T) (any, error)) *FunctionTool {
	var zero T
	return NewFunctionToolFromStruct(name, description, zero, func(tc *Context, args map[string]any) (any, error) {
		var in T
		if err := util.Bind(args, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidArgument, err)
		}
		return fn(tc, in)
	})
}

// Name returns the unique action name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

func (t *FunctionTool) compiled() (*jsonschema.Schema, error) {
	t.once.Do(func() {
		t.schema, t.schemaErr = util.CompileSchema(t.name, t.parameters)
	})
	return t.schema, t.schemaErr
}

// Call validates the provided args against the declared schema then invokes the
// underlying function.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	validation failure              -> *ToolError{Code: "VALIDATION_ERROR"}
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}, cause preserved
func (t *FunctionTool) Call(toolCtx *Context, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "call_id", toolCtx.CallID())

	schema, err := t.compiled()
	if err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution, Err: err}
	}

	if err := util.ValidateParameters(args, schema); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Err:     fmt.Errorf("%w: %w", core.ErrInvalidArgument, err),
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Debug("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Debug("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Err:     err,
		}
	}

	logger.Debug("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
