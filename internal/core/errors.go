package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation    ErrorCategory = "validation"    // Invalid input
	ErrCatExecution     ErrorCategory = "execution"     // Runtime failure
	ErrCatTimeout       ErrorCategory = "timeout"       // Operation timed out
	ErrCatConfiguration ErrorCategory = "configuration" // Graph or settings misconfigured
	ErrCatBuild         ErrorCategory = "build"         // Project build failed
	ErrCatState         ErrorCategory = "state"         // Invalid state transition
	ErrCatNotFound      ErrorCategory = "not_found"     // Resource not found
	ErrCatInternal      ErrorCategory = "internal"      // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches on category and code so sentinel values work with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{Category: ErrCatValidation, Code: code, Message: message}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{Category: ErrCatExecution, Code: code, Message: message, Retryable: true}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{Category: ErrCatTimeout, Code: "TIMEOUT", Message: message, Retryable: true}
}

// ErrGenerationTimeout reports a model stream that did not finish within its bound.
func ErrGenerationTimeout(message string) *DomainError {
	return &DomainError{Category: ErrCatTimeout, Code: CodeGenerationTimeout, Message: message, Retryable: true}
}

// ErrConfiguration creates a configuration error. These surface at graph
// compile time and are never retryable.
func ErrConfiguration(code, message string) *DomainError {
	return &DomainError{Category: ErrCatConfiguration, Code: code, Message: message}
}

// ErrBuild creates a build failure.
func ErrBuild(message string) *DomainError {
	return &DomainError{Category: ErrCatBuild, Code: CodeBuildFailed, Message: message}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{Category: ErrCatState, Code: code, Message: message}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NodeError reports a failure inside a named workflow stage.
type NodeError struct {
	Stage string
	Cause error
}

// NewNodeError wraps cause with the stage it happened in.
func NewNodeError(stage string, cause error) *NodeError {
	return &NodeError{Stage: stage, Cause: cause}
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}

// StageOf returns the stage recorded on the first NodeError in err's chain.
func StageOf(err error) string {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Stage
	}
	return ""
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	// Validation error codes
	CodeEmptyPrompt           = "EMPTY_PROMPT"
	CodePromptTooLong         = "PROMPT_TOO_LONG"
	CodeInvalidConfig         = "INVALID_CONFIG"
	CodeInvalidGenerationType = "INVALID_GENERATION_TYPE"
	CodeGenerationTypeLocked  = "GENERATION_TYPE_LOCKED"
	CodeInvalidSessionKey     = "INVALID_SESSION_KEY"

	// Graph configuration codes
	CodeReservedNode     = "RESERVED_NODE"
	CodeDuplicateNode    = "DUPLICATE_NODE"
	CodeUnknownNode      = "UNKNOWN_NODE"
	CodeUnmappedLabel    = "UNMAPPED_LABEL"
	CodeMissingEdge      = "MISSING_EDGE"
	CodeAmbiguousEdge    = "AMBIGUOUS_EDGE"
	CodeUnreachableNode  = "UNREACHABLE_NODE"
	CodeNoPathToEnd      = "NO_PATH_TO_END"
	CodeMissingGenerator = "MISSING_GENERATOR"

	// Execution error codes
	CodeGenerationTimeout = "GENERATION_TIMEOUT"
	CodeGenerationFailed  = "GENERATION_FAILED"
	CodeMaxStepsExceeded  = "MAX_STEPS_EXCEEDED"
	CodeNodePanic         = "NODE_PANIC"
	CodePoolSaturated     = "POOL_SATURATED"
	CodeParseFailed       = "PARSE_FAILED"
	CodeAgentFailed       = "AGENT_FAILED"
	CodeBuildFailed       = "BUILD_FAILED"
	CodeCancelled         = "CANCELLED"
)

// MaxPromptLength is the maximum allowed prompt length.
const MaxPromptLength = 100000

// MaxSessionKeyLength bounds session keys, which end up in directory names.
const MaxSessionKeyLength = 128
