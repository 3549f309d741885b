package cli

import (
	"errors"
	"fmt"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/dispatch"
)

// Exit codes returned by ExitCode.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitRateLimited = 3
	ExitExhausted   = 4
	ExitInterrupted = 130
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	var cfgErr *ConfigError
	var validation config.ValidationError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &cfgErr), errors.As(err, &validation):
		return ExitConfig
	case errors.Is(err, dispatch.ErrRateLimited):
		return ExitRateLimited
	case errors.Is(err, dispatch.ErrAllProvidersExhausted):
		return ExitExhausted
	case dispatch.Classify(err) == dispatch.CategoryCanceled:
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
