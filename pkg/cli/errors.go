package cli

import "fmt"

// Exit codes returned by the holds command.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitConfig    = 2
	ExitJobFailed = 3
)

// ConfigError reports an unusable configuration.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error in %s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// CommandError reports a failed command.
type CommandError struct {
	Command string
	Err     error
	Code    int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string, cause error) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// NewCommandError creates a new CommandError with ExitError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
		Code:    ExitError,
	}
}

// ExitCode maps an error returned by a command onto a process exit code.
func ExitCode(err error) int {
	switch e := err.(type) {
	case nil:
		return ExitOK
	case *ConfigError:
		return ExitConfig
	case *CommandError:
		if e.Code != 0 {
			return e.Code
		}
	}
	return ExitError
}
