package builder

import "errors"

// ErrFinalized is returned when a builder is used after Finalize.
var ErrFinalized = errors.New("builder: already finalized")

// ConfigurationError reports an embedded configuration that is malformed
// or inconsistent with the registered capabilities.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration: " + e.Reason
	}
	return "configuration: " + e.Reason + ": " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// LoopStartError reports that the run loop could not acquire what it needs
// to start, such as a display connection.
type LoopStartError struct {
	Err error
}

func (e *LoopStartError) Error() string {
	return "start run loop: " + e.Err.Error()
}

func (e *LoopStartError) Unwrap() error { return e.Err }
