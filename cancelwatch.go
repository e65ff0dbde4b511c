// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import (
	"context"
	"net"
)

// NewCancelWatchFunc returns a new [*CancelWatchFunc].
func NewCancelWatchFunc() *CancelWatchFunc {
	return &CancelWatchFunc{}
}

// CancelWatchFunc arranges for the compositor connection to be closed
// when the context is done (cancelled or deadline exceeded).
//
// The Wayland round trip has no protocol-level timeout: a compositor
// that stops dispatching leaves [Session.RoundTrip] blocked in a read
// forever. Watching the context is an enhancement over that behavior:
// when the context is done the connection closes and the blocked read
// fails immediately, so the caller regains control.
//
// The returned connection wraps the input connection. Closing the
// returned connection unregisters the context watcher and closes the
// underlying connection. This ensures no goroutine leaks even if the
// context is never cancelled.
//
// The watcher is safe to use with any [net.Conn] implementation because
// Go's standard library uses the [net.ErrClosed] pattern: closing an
// already-closed connection returns [net.ErrClosed], and I/O operations
// on a closed connection fail gracefully.
//
// If the context ends after enumeration succeeded, the session loses
// its socket early but the accumulated records remain readable; only
// [Session.Close] still needs to be called.
type CancelWatchFunc struct{}

var _ Func[net.Conn, net.Conn] = &CancelWatchFunc{}

// Call registers a context watcher using [context.AfterFunc] that closes
// the connection when the context is done. The returned [net.Conn] wraps
// the input: closing it unregisters the watcher and closes the underlying
// connection.
func (op *CancelWatchFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return &cancelWatchedConn{Conn: conn, stop: stop}, nil
}

// cancelWatchedConn wraps a [net.Conn] with a context cancellation watcher.
type cancelWatchedConn struct {
	net.Conn
	stop func() bool
}

// Close unregisters the context watcher and closes the underlying connection.
func (c *cancelWatchedConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
