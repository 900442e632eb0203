package model

import (
	"fmt"
	"sync"
	"sync/atomic"

	"energy-dispatch/internal/logging"

	"go.uber.org/zap"
)

// ConfigurationError reports invalid or inconsistent parameters on a flow,
// storage or option.
type ConfigurationError struct {
	Label string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error on %s: %v", e.Label, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TopologyError reports a graph that references nodes or buses the energy
// system does not hold, or misses a required adjacent entity.
type TopologyError struct {
	Label string
	Err   error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("topology error on %s: %v", e.Label, e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }

func configErr(label string, format string, args ...any) error {
	return &ConfigurationError{Label: label, Err: fmt.Errorf(format, args...)}
}

func topologyErr(label string, format string, args ...any) error {
	return &TopologyError{Label: label, Err: fmt.Errorf(format, args...)}
}

// UsageWarning flags a suspicious but legal combination of parameters.
type UsageWarning struct {
	Label   string
	Message string
}

func (w UsageWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Label, w.Message)
}

var (
	warningsMuted atomic.Bool
	handlerMu     sync.RWMutex
	handler       = logWarning
)

func logWarning(w UsageWarning) {
	logging.L().Warn("suspicious usage", zap.String("label", w.Label), zap.String("message", w.Message))
}

// MuteWarnings silences every UsageWarning process-wide.
func MuteWarnings(mute bool) { warningsMuted.Store(mute) }

// SetWarningHandler replaces the warning sink and returns the previous one.
// Passing nil restores logging.
func SetWarningHandler(h func(UsageWarning)) func(UsageWarning) {
	handlerMu.Lock()
	defer handlerMu.Unlock()
	prev := handler
	if h == nil {
		h = logWarning
	}
	handler = h
	return prev
}

// Warn emits a UsageWarning unless warnings are muted.
func Warn(label, format string, args ...any) {
	if warningsMuted.Load() {
		return
	}
	handlerMu.RLock()
	h := handler
	handlerMu.RUnlock()
	h(UsageWarning{Label: label, Message: fmt.Sprintf(format, args...)})
}
