// Package conclaveerr implements the error taxonomy from spec.md §7: a
// single abstract error type carrying a machine-readable code, an
// HTTP-like class, and a context bag, with constructors per code family.
package conclaveerr

import (
	"errors"
	"fmt"
	"strings"
)

// Class is the HTTP-like severity class of an Error.
type Class int

const (
	ClassValidation Class = 400
	ClassNotFound   Class = 404
	ClassServer     Class = 500
)

// Error codes, grouped by the §7 code-prefix families.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFoundWorkflow    = "NOT_FOUND_WORKFLOW"
	CodeNotFoundAgent       = "NOT_FOUND_AGENT"
	CodeNotFoundRun         = "NOT_FOUND_RUN"
	CodeTokenBudgetExceeded = "TOKEN_BUDGET_EXCEEDED"
	CodeAgentNotFound       = "AGENT_EXECUTION_NOT_FOUND"
	CodeAgentInvokeFailed   = "AGENT_EXECUTION_FAILED"
	CodeAgentTimeout        = "AGENT_EXECUTION_TIMEOUT"
	CodeWorkflowIllegal     = "WORKFLOW_ILLEGAL_TRANSITION"
	CodeWorkflowMissing     = "WORKFLOW_MISSING_ARTIFACT"
	CodeStorage             = "STORAGE_ERROR"
	CodeRateLimit           = "AGENT_EXECUTION_RATE_LIMIT"
)

// Error is the single abstract error type used throughout the core.
type Error struct {
	Code    string
	Class   Class
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	var parts []string
	for k, v := range e.Context {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

func newErr(code string, class Class, msg string, ctx map[string]any) *Error {
	return &Error{Code: code, Class: class, Message: msg, Context: ctx}
}

// Validation builds a VALIDATION_* error.
func Validation(msg string, ctx map[string]any) *Error {
	return newErr(CodeValidation, ClassValidation, msg, ctx)
}

// NotFound builds a NOT_FOUND_* error for the given resource kind
// (workflow, agent, run).
func NotFound(kind, msg string, ctx map[string]any) *Error {
	code := CodeNotFoundWorkflow
	switch kind {
	case "agent":
		code = CodeNotFoundAgent
	case "run":
		code = CodeNotFoundRun
	}
	return newErr(code, ClassNotFound, msg, ctx)
}

// TokenBudgetExceeded builds a TOKEN_BUDGET_EXCEEDED error carrying the
// estimated tokens, limit, and model, plus a fixed recommendation.
func TokenBudgetExceeded(estimated, limit int, model string) *Error {
	return newErr(CodeTokenBudgetExceeded, ClassValidation,
		"prompt exceeds the token budget for this model",
		map[string]any{
			"estimated_tokens": estimated,
			"limit":            limit,
			"model":            model,
			"recommendation":   "reduce context, summarize prior output, switch model, or split the task",
		})
}

// AgentExecution builds an AGENT_EXECUTION_* error. kind is one of
// "not_found", "failed", "timeout".
func AgentExecution(kind, agent string, elapsedMS int64, cause error) *Error {
	code := CodeAgentInvokeFailed
	switch kind {
	case "not_found":
		code = CodeAgentNotFound
	case "timeout":
		code = CodeAgentTimeout
	}
	ctx := map[string]any{"agent": agent, "elapsed_ms": elapsedMS}
	msg := fmt.Sprintf("agent %q execution failed", agent)
	if cause != nil {
		ctx["cause"] = cause.Error()
	}
	return newErr(code, ClassServer, msg, ctx)
}

// Workflow builds a WORKFLOW_* error for illegal transitions or missing
// required artifacts/feedback.
func Workflow(kind, msg string, ctx map[string]any) *Error {
	code := CodeWorkflowIllegal
	if kind == "missing" {
		code = CodeWorkflowMissing
	}
	return newErr(code, ClassValidation, msg, ctx)
}

// Storage builds a STORAGE_* error for unexpected disk failures.
func Storage(msg string, cause error) *Error {
	ctx := map[string]any{}
	if cause != nil {
		ctx["cause"] = cause.Error()
	}
	return newErr(CodeStorage, ClassServer, msg, ctx)
}

// As reports whether err is (or wraps) an *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// IsRetryable flags *TIMEOUT*, *RATE_LIMIT*, and class>=500 errors as
// retryable. The core itself never retries (spec.md §7); this is purely
// advisory for callers.
func IsRetryable(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	if strings.Contains(e.Code, "TIMEOUT") || strings.Contains(e.Code, "RATE_LIMIT") {
		return true
	}
	return e.Class >= ClassServer
}
