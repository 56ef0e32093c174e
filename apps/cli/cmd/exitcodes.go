package cmd

import (
	"errors"
	"fmt"

	rwhttp "github.com/restwire/restwire/packages/http"
	"github.com/restwire/restwire/packages/reqfile"
)

// Exit codes for the restwire CLI
const (
	// ExitSuccess indicates the command completed
	ExitSuccess = 0

	// ExitFailure indicates a generic failure
	ExitFailure = 1

	// ExitParseError indicates a request file parsing error
	ExitParseError = 2

	// ExitConfigError indicates a settings or request construction error
	ExitConfigError = 3

	// ExitNetworkError indicates a transport-level failure
	ExitNetworkError = 4

	// ExitAuthError indicates credential resolution failed before send
	ExitAuthError = 5

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// usageError marks a CLI invocation mistake, as opposed to a pipeline
// failure.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exitCode maps an error to its exit code by unwrapping to the pipeline's
// error taxonomy. A response with a non-2xx status is not an error and
// never reaches here.
func exitCode(err error) int {
	var parseErr *reqfile.ParseError
	var authErr *rwhttp.AuthError
	var cfgErr *rwhttp.ConfigError
	var netErr *rwhttp.NetError
	var useErr *usageError

	switch {
	case errors.As(err, &useErr):
		return ExitUsageError
	case errors.As(err, &parseErr):
		return ExitParseError
	case errors.As(err, &authErr):
		return ExitAuthError
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &netErr):
		return ExitNetworkError
	}
	return ExitFailure
}
