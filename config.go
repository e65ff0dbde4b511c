// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import (
	"net"
	"os"
	"time"
)

// Config holds common configuration for wayout operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*ConnectFunc] to reach the compositor socket.
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// LookupEnv reads environment variables (configurable for testing).
	//
	// Used by [*ConnectFunc] to resolve WAYLAND_DISPLAY and
	// XDG_RUNTIME_DIR. Set by [NewConfig] to [os.LookupEnv].
	LookupEnv func(key string) (string, bool)

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:        &net.Dialer{},
		ErrClassifier: DefaultErrClassifier,
		LookupEnv:     os.LookupEnv,
		TimeNow:       time.Now,
	}
}
