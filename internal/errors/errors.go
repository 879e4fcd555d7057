// Package errors defines stable error codes for all depmig failure modes.
package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// OracleUnavailable indicates the type oracle process is not running or reachable
	OracleUnavailable ErrorCode = "ORACLE_UNAVAILABLE"
	// OracleTimeout indicates a type oracle query timed out
	OracleTimeout ErrorCode = "ORACLE_TIMEOUT"
	// SnippetParseFailed indicates a small argument/template snippet failed to parse
	SnippetParseFailed ErrorCode = "SNIPPET_PARSE_FAILED"
	// UnresolvableCall indicates a call site could not be matched to any rule
	UnresolvableCall ErrorCode = "UNRESOLVABLE_CALL"
	// UnreplaceableDeclaration indicates a deprecated symbol does not fit the template shape
	UnreplaceableDeclaration ErrorCode = "UNREPLACEABLE_DECLARATION"
	// RegeneratedSourceInvalid indicates migrated output failed to re-parse
	RegeneratedSourceInvalid ErrorCode = "REGENERATED_SOURCE_INVALID"
	// EditOverlap indicates two pending edits cover overlapping byte ranges
	EditOverlap ErrorCode = "EDIT_OVERLAP"
	// ModuleNotFound indicates an imported module could not be located on disk
	ModuleNotFound ErrorCode = "MODULE_NOT_FOUND"
	// ConfigInvalid indicates the configuration failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// CacheCorrupt indicates the catalog cache returned undecodable data
	CacheCorrupt ErrorCode = "CACHE_CORRUPT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// InstallTool suggests installing a tool
	InstallTool FixActionType = "install-tool"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	Tool        string        `json:"tool,omitempty"`
}

// MigError represents a depmig error with code, message, and suggestions
type MigError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new MigError
func New(code ErrorCode, message string, cause error) *MigError {
	return &MigError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: suggestedFixes(code),
	}
}

// Error implements the error interface
func (e *MigError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *MigError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *MigError) WithDetails(details interface{}) *MigError {
	e.Details = details
	return e
}

// suggestedFixes maps error codes to suggested fix actions
func suggestedFixes(code ErrorCode) []FixAction {
	switch code {
	case OracleUnavailable:
		return []FixAction{
			{
				Type:        RunCommand,
				Command:     "depmig doctor",
				Safe:        true,
				Description: "Check oracle server configuration and availability",
			},
			{
				Type:        InstallTool,
				Tool:        "pyright-langserver",
				Description: "Install a Python language server for type queries",
			},
		}
	case CacheCorrupt:
		return []FixAction{
			{
				Type:        RunCommand,
				Command:     "depmig doctor --reset-cache",
				Safe:        true,
				Description: "Drop and rebuild the catalog cache",
			},
		}
	case ConfigInvalid:
		return []FixAction{
			{
				Type:        RunCommand,
				Command:     "depmig init --force",
				Safe:        false,
				Description: "Rewrite .depmig/config.json with defaults",
			},
		}
	default:
		return nil
	}
}

// CodeOf extracts the ErrorCode from an error, or InternalError if it has none.
func CodeOf(err error) ErrorCode {
	if me, ok := err.(*MigError); ok {
		return me.Code
	}
	return InternalError
}
