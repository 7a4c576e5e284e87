package csi

import (
	"errors"
	"fmt"
)

// ErrMalformedInput is returned when a raw record fails schema validation: a missing
// timestamp or amplitude, an empty amplitude vector, or amplitude/phase length mismatch.
var ErrMalformedInput = errors.New("malformed CSI record")

// ConfigError is returned for invalid call-time configuration, such as a non-positive
// subcarrier count or window size.
type ConfigError struct {
	msg string
}

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
