// reporter.go
//
// Error reporting hook for the downstream workers. A Reporter receives
// failures that should page or alert a human; the default implementation
// writes structured log records.

package downstream

import (
	"github.com/rs/zerolog"
)

// Reporter records a downstream failure together with its job parameters.
type Reporter interface {
	Report(err error, params map[string]interface{})
}

// LogReporter reports through a zerolog logger.
type LogReporter struct {
	Logger zerolog.Logger
}

func (r LogReporter) Report(err error, params map[string]interface{}) {
	event := r.Logger.Error().Err(err)
	for key, value := range params {
		event = event.Interface(key, value)
	}
	event.Msg("downstream error reported")
}

// MemoryReporter records reported errors for assertions.
type MemoryReporter struct {
	Reports []ReportedError
}

type ReportedError struct {
	Err    error
	Params map[string]interface{}
}

func (r *MemoryReporter) Report(err error, params map[string]interface{}) {
	r.Reports = append(r.Reports, ReportedError{Err: err, Params: params})
}
