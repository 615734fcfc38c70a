// Package swarmerrors defines the closed error taxonomy shared by the
// provider adapter, chat engine, and scheduler. Every operational error that
// needs to cross a retry or recovery boundary is one of the concrete types
// below rather than an opaque error value, mirroring the per-package
// <Name>Error convention used throughout this codebase.
package swarmerrors

import (
	"fmt"
	"time"
)

// ConfigError reports a build-time validation failure: negative timeouts,
// reserved agent names, delegation cycles, missing required fields.
type ConfigError struct {
	Component string
	Field     string
	Message   string
	Err       error
	Timestamp time.Time
}

func NewConfigError(component, field, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Field: field, Message: message, Err: err, Timestamp: time.Now()}
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] config error on %q: %s", e.Component, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] config error: %s", e.Component, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ProviderErrorKind classifies a provider-adapter failure into the closed
// taxonomy the chat engine's retry loop switches on.
type ProviderErrorKind string

const (
	KindUnauthorized   ProviderErrorKind = "unauthorized"
	KindForbidden      ProviderErrorKind = "forbidden"
	KindInvalidRequest ProviderErrorKind = "invalid_request"
	KindToolHistory     ProviderErrorKind = "tool_history"
	KindRateLimited    ProviderErrorKind = "rate_limited"
	KindServerError    ProviderErrorKind = "server_error"
	KindTransport      ProviderErrorKind = "transport"
	KindProgramming    ProviderErrorKind = "programming"
)

// ProviderError is the normalized shape of every error a ProviderAdapter can
// return. Retryable classifies whether the chat engine's retry loop should
// attempt the request again.
type ProviderError struct {
	StatusCode int
	Retryable  bool
	Kind       ProviderErrorKind
	Message    string
	Err        error
	Timestamp  time.Time
}

func NewProviderError(statusCode int, kind ProviderErrorKind, retryable bool, message string, err error) *ProviderError {
	return &ProviderError{
		StatusCode: statusCode,
		Retryable:  retryable,
		Kind:       kind,
		Message:    message,
		Err:        err,
		Timestamp:  time.Now(),
	}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status=%d kind=%s retryable=%t): %s", e.StatusCode, e.Kind, e.Retryable, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsToolHistory reports whether this error should trigger orphan tool-call
// pruning rather than a normal retry.
func (e *ProviderError) IsToolHistory() bool { return e.Kind == KindToolHistory }

// PermissionDeniedError is surfaced as a tool result, never raised out of the
// chat loop: a denied tool call is an observation, not a crash.
type PermissionDeniedError struct {
	ToolName  string
	Reason    string
	Timestamp time.Time
}

func NewPermissionDeniedError(toolName, reason string) *PermissionDeniedError {
	return &PermissionDeniedError{ToolName: toolName, Reason: reason, Timestamp: time.Now()}
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for tool %q: %s", e.ToolName, e.Reason)
}

// TimeoutScope distinguishes which wall-clock timer fired.
type TimeoutScope string

const (
	ScopeExecution TimeoutScope = "execution"
	ScopeTurn      TimeoutScope = "turn"
	ScopeMCP       TimeoutScope = "mcp_request"
)

// TimeoutError carries enough context for callers to tell an execution
// timeout (terminal, Result.error) from a turn timeout (non-terminal,
// surfaced as an assistant message) apart.
type TimeoutError struct {
	Scope     TimeoutScope
	Metadata  map[string]any
	Timestamp time.Time
}

func NewTimeoutError(scope TimeoutScope, metadata map[string]any) *TimeoutError {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["timeout"] = true
	return &TimeoutError{Scope: scope, Metadata: metadata, Timestamp: time.Now()}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout exceeded", e.Scope)
}

// HookHaltError is raised when a hook handler returns a halt action; it is
// treated as a user-surface error carrying the hook's own message.
type HookHaltError struct {
	HookEvent string
	Message   string
	Timestamp time.Time
}

func NewHookHaltError(hookEvent, message string) *HookHaltError {
	return &HookHaltError{HookEvent: hookEvent, Message: message, Timestamp: time.Now()}
}

func (e *HookHaltError) Error() string {
	return fmt.Sprintf("halted by %s hook: %s", e.HookEvent, e.Message)
}

// Cancellation is intentionally not an error type: §7g specifies that
// cancellation surfaces as a nil, nil return from the external Wait()
// handle, not as a value satisfying the error interface.
