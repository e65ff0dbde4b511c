// SPDX-License-Identifier: GPL-3.0-or-later

// Package wayout enumerates the outputs of a local Wayland compositor.
//
// # Overview
//
// The package connects to the compositor's well-known unix socket, asks
// the registry for every advertised wl_output global, and drains the
// resulting geometry and mode events into a sequence of [Output] records
// reporting each display's resolution, refresh rate, and physical size.
//
// The typical entry point is [Enumerate]:
//
//	sess, err := wayout.Enumerate(ctx, wayout.NewConfig(), logger)
//	if err != nil {
//		// no compositor, or the protocol session failed
//	}
//	defer sess.Close()
//	for _, out := range sess.Outputs() {
//		// out.Width, out.Height, out.Refresh, out.PhysicalWidthMM, ...
//	}
//
// # Core Abstraction
//
// Lower-level building blocks follow a single interface:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Each Func represents an atomic operation with exactly one success mode
// and one failure mode. This enables type-safe composition via [Compose2],
// [Compose3], and [Compose4], where the compiler verifies that outputs
// match inputs across pipeline stages. [Enumerate] itself is the pipeline
//
//	Compose4(ConnectFunc, ObserveConnFunc, CancelWatchFunc, EnumerateFunc)
//
// and callers needing custom wiring can assemble their own.
//
// # Available Primitives
//
// Connection establishment:
//   - [ConnectFunc]: dials the compositor socket resolved from
//     WAYLAND_DISPLAY and XDG_RUNTIME_DIR
//   - [ObserveConnFunc]: observes connections for logging I/O operations
//   - [CancelWatchFunc]: closes the connection on context cancellation
//     (for responsive ^C handling and bounded round trips)
//
// Enumeration:
//   - [Session]: owns the connection, the protocol object table, and the
//     accumulated [Output] records (created via [NewSession])
//   - [EnumerateFunc]: subscribes to the registry and drains the event
//     queue over an established connection
//
// # Connection Lifecycle
//
// [ConnectFunc] creates the connection and transfers ownership to the
// next stage on success. [Session] OWNS its connection: the caller must
// call [Session.Close] when done reading the results, which closes the
// connection and resets the session. Close is idempotent.
//
// On any failure during enumeration the session is torn down immediately
// and partial data is discarded; only a fully drained session is returned
// to the caller.
//
// # Partial Failure
//
// A session whose output accumulator could not grow continues enumerating
// the remaining outputs and records a sticky memory error instead of
// failing. Callers must consult [Session.MemoryError] before trusting the
// record set. See [Session.MaxOutputs].
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible
// with [log/slog]). By default, logging is disabled. Set a custom
// [*slog.Logger] to enable it.
//
// Primitives emit two kinds of structured log events:
//
//   - Span events (*Start/*Done pairs): record operation lifecycle
//     including timing and success/failure (connect, subscribe, round trip).
//
//   - Wire observations (registryGlobal, outputGeometry, outputMode):
//     capture protocol-level events for debugging and analysis.
//
// I/O-level events (read, write, deadline changes) are emitted at
// [slog.LevelDebug]; all other events use [slog.LevelInfo]. Error
// classification is configurable via [ErrClassifier]; the default
// classifier maps errors to errno-style labels.
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7)
// for each enumeration, then attach it with [*slog.Logger.With] so all
// entries from that session share the same spanID.
//
// # Timeout and Context Philosophy
//
// This package is context-transparent: operations never modify the
// context they receive. The caller controls timeouts externally via
// [context.WithTimeout] or [signal.NotifyContext].
//
// The Wayland round trip is a blocking read loop with no protocol-level
// timeout: a hung compositor blocks indefinitely. [CancelWatchFunc]
// (included in the [Enumerate] pipeline) is an enhancement over that
// behavior: it closes the connection when the context is done, causing
// the blocked read to fail immediately.
//
// # Concurrency
//
// A [Session] is single-threaded by design: event handlers run
// synchronously inside [Session.RoundTrip] on the calling goroutine, so
// no locking guards the accumulator. A session must not be driven from
// two goroutines concurrently.
//
// # Design Boundaries
//
// This package only discovers output hardware facts. Serializing them
// into metrics payloads, consent handling, report compilation, and
// uploading are owned by the surrounding collector and are out of scope.
package wayout
