// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import (
	"context"
	"net"
	"time"
)

// NewEnumerateFunc returns a new [*EnumerateFunc].
//
// The cfg argument contains the common configuration for wayout operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewEnumerateFunc(cfg *Config, logger SLogger) *EnumerateFunc {
	return &EnumerateFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// EnumerateFunc discovers every output over an established compositor
// connection: it wraps the connection into a [Session], subscribes to
// the registry, and drains the event queue.
//
// On success it returns a ready session whose accessors expose the
// accumulated records; ownership of the session (and with it the
// connection) transfers to the caller, who must call [Session.Close]
// once done. On failure the connection is closed, partial data is
// discarded, and only the error is returned.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type EnumerateFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewEnumerateFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewEnumerateFunc] to the user-provided logger.
	Logger SLogger

	// MaxOutputs bounds the session's output accumulator; zero means
	// unbounded. See [Session.MaxOutputs].
	MaxOutputs int

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewEnumerateFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[net.Conn, *Session] = &EnumerateFunc{}

// Call runs the enumeration over conn: subscribe, then drain with two
// round trips.
//
// Two round trips are required, not one: the first typically only
// flushes the wl_output announcements, and the geometry/mode events of
// outputs bound during that first drain are not guaranteed delivered
// until a second synchronization barrier. A single round trip would
// intermittently yield records with zeroed width, height, and refresh.
func (op *EnumerateFunc) Call(ctx context.Context, conn net.Conn) (*Session, error) {
	sess := newSession(conn, op.ErrClassifier, op.Logger, op.TimeNow)
	sess.MaxOutputs = op.MaxOutputs

	if err := sess.Subscribe(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	if err := sess.RoundTrip(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	if err := sess.RoundTrip(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	sess.setReady()
	return sess, nil
}

// Enumerate connects to the local compositor and discovers every output.
//
// This is the pipeline
//
//	Compose4(ConnectFunc, ObserveConnFunc, CancelWatchFunc, EnumerateFunc)
//
// applied to [Unit]: connect to the well-known socket, observe wire I/O
// for debug logging, bind the connection lifetime to ctx, subscribe, and
// drain with two round trips.
//
// On success the caller owns the returned session and must call
// [Session.Close] after reading the results; on failure everything is
// torn down before returning. Check [Session.MemoryError] before
// trusting the record set.
func Enumerate(ctx context.Context, cfg *Config, logger SLogger) (*Session, error) {
	pipeline := Compose4(
		NewConnectFunc(cfg, logger),
		NewObserveConnFunc(cfg, logger),
		NewCancelWatchFunc(),
		NewEnumerateFunc(cfg, logger),
	)
	return pipeline.Call(ctx, Unit{})
}
