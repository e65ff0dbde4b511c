// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"time"

	"github.com/bassosimone/safeconn"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making [*ConnectFunc] depend on an abstract implementation we
// allow for unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ErrNoCompositor indicates that no Wayland compositor is reachable:
// the environment does not locate a display socket, or nothing is
// listening at the resolved endpoint, or permission was denied.
var ErrNoCompositor = errors.New("no wayland compositor reachable")

// defaultDisplayName is the socket name used when WAYLAND_DISPLAY is unset.
const defaultDisplayName = "wayland-0"

// CompositorSocketPath resolves the compositor endpoint following the
// same rules as libwayland's wl_display_connect with a NULL name: an
// absolute WAYLAND_DISPLAY is used verbatim, otherwise the display name
// (default "wayland-0") is joined to XDG_RUNTIME_DIR.
//
// The lookupEnv argument abstracts [os.LookupEnv] for testing; see
// [Config.LookupEnv].
func CompositorSocketPath(lookupEnv func(key string) (string, bool)) (string, error) {
	name, ok := lookupEnv("WAYLAND_DISPLAY")
	if !ok || name == "" {
		name = defaultDisplayName
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	runtimeDir, ok := lookupEnv("XDG_RUNTIME_DIR")
	if !ok || runtimeDir == "" {
		return "", fmt.Errorf("%w: XDG_RUNTIME_DIR is not set", ErrNoCompositor)
	}
	return filepath.Join(runtimeDir, name), nil
}

// NewConnectFunc returns a new [*ConnectFunc].
//
// The cfg argument contains the common configuration for wayout operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewConnectFunc(cfg *Config, logger SLogger) *ConnectFunc {
	return &ConnectFunc{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		LookupEnv:     cfg.LookupEnv,
		TimeNow:       cfg.TimeNow,
	}
}

// ConnectFunc dials the local compositor's well-known unix socket.
//
// Returns either a valid [net.Conn] or an error, never both. Failures
// (no display server running, endpoint missing, permission denied) wrap
// [ErrNoCompositor].
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ConnectFunc struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by [NewConnectFunc] from [Config.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConnectFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewConnectFunc] to the user-provided logger.
	Logger SLogger

	// LookupEnv reads environment variables for socket path resolution.
	//
	// Set by [NewConnectFunc] from [Config.LookupEnv].
	LookupEnv func(key string) (string, bool)

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewConnectFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Unit, net.Conn] = &ConnectFunc{}

// Call resolves the compositor socket path and dials it.
func (op *ConnectFunc) Call(ctx context.Context, _ Unit) (net.Conn, error) {
	path, err := CompositorSocketPath(op.LookupEnv)
	if err != nil {
		return nil, err
	}
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logConnectStart(path, t0, deadline)
	conn, err := op.Dialer.DialContext(ctx, "unix", path)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrNoCompositor, err)
	}
	op.logConnectDone(path, t0, deadline, conn, err)
	return conn, err
}

func (op *ConnectFunc) logConnectStart(path string, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", "unix"),
		slog.String("remoteAddr", path),
		slog.Time("t", t0),
	)
}

func (op *ConnectFunc) logConnectDone(
	path string, t0 time.Time, deadline time.Time, conn net.Conn, err error) {
	op.Logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", "unix"),
		slog.String("remoteAddr", path),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
