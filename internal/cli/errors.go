// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/hypve-tui/internal/backend"
	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/export"
	"github.com/jeranaias/hypve-tui/internal/history"
	"github.com/jeranaias/hypve-tui/internal/kv"
	"github.com/jeranaias/hypve-tui/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitNetworkError = 5
	ExitNotFound     = 7
	ExitLocked       = 9
)

// ErrUsage marks a malformed command line.
var ErrUsage = errors.New("usage")

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a failed command with what it was doing.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ValidationError is bad user input.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrUsage }

// NewCommandError wraps err with the command and action.
func NewCommandError(command, action string, err error) error {
	return &CommandError{Command: command, Action: action, Err: err}
}

// NewValidationError reports an invalid value.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// usageError reports a missing or malformed argument with the usage line.
func usageError(usage string) error {
	return fmt.Errorf("%w: %s", ErrUsage, usage)
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to the process exit status.
func GetExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrUsage), errors.Is(err, session.ErrInvalidEmail),
		errors.Is(err, backend.ErrEmptyPrompt), errors.Is(err, backend.ErrUnknownProvider),
		errors.Is(err, export.ErrUnknownFormat):
		return ExitUsageError
	case errors.Is(err, config.ErrUnknownKey), errors.Is(err, kv.ErrUnknownBackend):
		return ExitConfigError
	case errors.As(err, new(config.ValidateErrors)):
		return ExitConfigError
	case errors.Is(err, history.ErrChatNotFound):
		return ExitNotFound
	case errors.Is(err, kv.ErrLocked):
		return ExitLocked
	case errors.Is(err, backend.ErrServerBusy), errors.Is(err, context.DeadlineExceeded):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}

// DisplayError prints err to w, as a JSON envelope in json mode.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if jsonMode {
		NewJSONErrorResponse(command, err).Fprint(w)
		return
	}
	fmt.Fprintf(w, "%s %v\n", errorColor.Sprint("Error:"), err)
	if errors.Is(err, kv.ErrLocked) {
		fmt.Fprintln(w, dimColor.Sprint("Another hypve process holds the chat store. Close it or use --ephemeral."))
	}
}
