// Package apperrors defines the failure kinds that cross the pipeline boundary.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrUnsupportedPlatform is returned for platforms without an actor or adapter.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ErrRefreshInProgress is returned when a trend refresh is started while
// another one is still running.
var ErrRefreshInProgress = errors.New("trend refresh already in progress")

// ConfigurationError reports a required credential or setting that is absent.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Setting)
}

// ExternalServiceError reports a job source failure: HTTP errors, a
// non-success terminal job status, or an unreadable dataset.
type ExternalServiceError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	msg := e.Op
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s: %d %s", msg, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ProtocolError reports a generation backend response that broke the JSON
// contract after the bounded repair attempt.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsExternalService reports whether err carries an ExternalServiceError.
func IsExternalService(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

// IsProtocol reports whether err carries a ProtocolError.
func IsProtocol(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}
