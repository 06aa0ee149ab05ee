// Package tool implements the action subsystem: named operations agents invoke
// with schema validated arguments, consistent error categories and metadata
// for discovery through tools/list.
package tool

import (
	"fmt"

	"github.com/hupe1980/grantmesh/internal/util"
)

// Tool is a dispatchable action.
//
// Tool implementations should:
//   - Provide clear, descriptive snake_case names
//   - Define a JSON schema for parameters
//   - Return errors wrapping a core sentinel so they categorize on the wire
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this action.
	Name() string

	// Description returns a human-readable description of what the action does.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the action with already decoded arguments.
	Call(toolCtx *Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes attached to ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during action execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the action that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`                 // Underlying cause
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the cause so errors.Is matches core sentinels.
func (e *ToolError) Unwrap() error { return e.Err }

// ErrorDetails returns the structured details sent with a wire error.
func (e *ToolError) ErrorDetails() any { return e.Details }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
