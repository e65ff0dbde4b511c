// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// ErrProtocol indicates that the compositor reported a fatal protocol
// error or sent a message we could not decode. Enumeration cannot
// continue after this; partial data is discarded on teardown.
var ErrProtocol = errors.New("wayland protocol error")

// sessionState tracks the externally observable lifecycle of a [Session].
type sessionState int

const (
	// stateIdle: connected (or reset), nothing subscribed yet.
	stateIdle sessionState = iota

	// stateSubscribing: the registry listener is installed.
	stateSubscribing

	// stateDraining: at least one round trip has run.
	stateDraining

	// stateReady: enumeration finished, records available.
	stateReady

	// stateFailed: a round trip or write failed; only Close is valid.
	stateFailed
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSubscribing:
		return "subscribing"
	case stateDraining:
		return "draining"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("sessionState(%d)", int(s))
	}
}

// eventHandler decodes and applies the events of one bound protocol object.
type eventHandler func(opcode uint16, payload []byte) error

// Session owns one enumeration session against the compositor: the
// connection, the protocol object table, and the accumulated [Output]
// records.
//
// Construct via [NewSession] over an established connection, or let
// [Enumerate] drive the whole lifecycle. The session owns the
// connection; call [Session.Close] when done with the results.
//
// A session is single-goroutine: event handlers run synchronously inside
// [Session.RoundTrip] and nothing is safe for concurrent use.
//
// All exported fields are safe to modify after construction but before
// the first call to [Session.Subscribe].
type Session struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewSession] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewSession] to the user-provided logger.
	Logger SLogger

	// MaxOutputs bounds the output accumulator. Zero means unbounded.
	//
	// When the bound is hit, further outputs are skipped and the sticky
	// memory error is recorded while enumeration of the already-bound
	// outputs continues. This models the allocation-failure behavior a
	// caller must handle via [Session.MemoryError].
	MaxOutputs int

	// TimeNow is the function to get the current time.
	//
	// Set by [NewSession] from [Config.TimeNow].
	TimeNow func() time.Time

	// conn is the owned compositor connection; nil once closed.
	conn net.Conn

	// state is the current lifecycle state.
	state sessionState

	// nextID is the last allocated client object id.
	nextID uint32

	// handlers routes incoming events by object id.
	handlers map[uint32]eventHandler

	// registryID is the id of the bound wl_registry.
	registryID uint32

	// outputs is the record accumulator.
	outputs *outputList

	// protoErr is set when the compositor reports a fatal error event.
	protoErr error
}

// NewSession wraps an established compositor connection into a [Session].
//
// The cfg argument contains the common configuration for wayout operations.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// The session takes ownership of conn.
func NewSession(cfg *Config, conn net.Conn, logger SLogger) *Session {
	return newSession(conn, cfg.ErrClassifier, logger, cfg.TimeNow)
}

func newSession(conn net.Conn, ec ErrClassifier, logger SLogger, timeNow func() time.Time) *Session {
	s := &Session{
		ErrClassifier: ec,
		Logger:        logger,
		TimeNow:       timeNow,
		conn:          conn,
		state:         stateIdle,
		nextID:        displayObjectID,
		outputs:       newOutputList(),
	}
	s.handlers = map[uint32]eventHandler{displayObjectID: s.handleDisplayEvent}
	return s
}

// newID allocates the next client-side object id. The compositor's id 1
// belongs to wl_display, so allocation starts at 2.
func (s *Session) newID() uint32 {
	s.nextID++
	return s.nextID
}

// Subscribe requests the compositor's global registry and installs a
// listener that binds every advertised wl_output global. The actual
// binding happens while draining: call [Session.RoundTrip] afterwards
// to deliver the registry announcements.
func (s *Session) Subscribe(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("subscribe: session is closed")
	}
	if s.state != stateIdle {
		return fmt.Errorf("subscribe: invalid session state %v", s.state)
	}
	t0 := s.TimeNow()
	deadline, _ := ctx.Deadline()
	s.logEvent("subscribeStart",
		slog.Time("deadline", deadline),
		slog.Time("t", t0),
	)
	registryID := s.newID()
	req := marshalRequest(displayObjectID, opDisplayGetRegistry, appendUint32(nil, registryID))
	_, err := s.conn.Write(req)
	s.logEvent("subscribeDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)
	if err != nil {
		s.state = stateFailed
		return err
	}
	s.registryID = registryID
	s.handlers[registryID] = s.handleRegistryEvent
	s.state = stateSubscribing
	return nil
}

// RoundTrip blocks until all requests sent so far have been processed by
// the compositor and all resulting events have been delivered and
// dispatched. It sends wl_display.sync and drains incoming events until
// the corresponding wl_callback fires.
//
// Event handlers (registry announcements, output geometry and mode
// events) run synchronously on the calling goroutine during the drain.
//
// A hung compositor blocks this call indefinitely unless the connection
// is under a [CancelWatchFunc] watcher.
func (s *Session) RoundTrip(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("round trip: session is closed")
	}
	if s.state != stateSubscribing && s.state != stateDraining {
		return fmt.Errorf("round trip: invalid session state %v", s.state)
	}
	s.state = stateDraining

	t0 := s.TimeNow()
	deadline, _ := ctx.Deadline()
	s.logEvent("roundTripStart",
		slog.Time("deadline", deadline),
		slog.Time("t", t0),
	)
	err := s.roundTrip()
	s.logEvent("roundTripDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)
	if err != nil {
		s.state = stateFailed
		return err
	}
	return nil
}

func (s *Session) roundTrip() error {
	callbackID := s.newID()
	done := false
	s.handlers[callbackID] = func(opcode uint16, payload []byte) error {
		if opcode == evtCallbackDone {
			done = true
		}
		return nil
	}

	req := marshalRequest(displayObjectID, opDisplaySync, appendUint32(nil, callbackID))
	if _, err := s.conn.Write(req); err != nil {
		return err
	}

	for !done {
		msg, err := readMessage(s.conn)
		if err != nil {
			return err
		}
		if err := s.dispatch(msg); err != nil {
			return fmt.Errorf("%w: %s", ErrProtocol, err)
		}
		if s.protoErr != nil {
			return s.protoErr
		}
	}

	// The compositor destroys the callback after firing it; drop the id
	// without waiting for the delete_id acknowledgment.
	delete(s.handlers, callbackID)
	return nil
}

// dispatch routes one incoming message to the handler of its target
// object. Events for objects we never bound (for example, globals other
// than wl_output that some other party interacted with) are ignored.
func (s *Session) dispatch(msg *message) error {
	handler, ok := s.handlers[msg.object]
	if !ok {
		s.Logger.Debug("unknownObject",
			slog.Uint64("object", uint64(msg.object)),
			slog.Uint64("opcode", uint64(msg.opcode)),
			slog.Time("t", s.TimeNow()),
		)
		return nil
	}
	return handler(msg.opcode, msg.payload)
}

// handleDisplayEvent handles wl_display events: fatal protocol errors
// and object id reclamation.
func (s *Session) handleDisplayEvent(opcode uint16, payload []byte) error {
	switch opcode {
	case evtDisplayError:
		r := argReader{buf: payload}
		objectID := r.readUint32()
		code := r.readUint32()
		text := r.readString()
		if r.err != nil {
			return r.err
		}
		s.logEvent("displayError",
			slog.Uint64("object", uint64(objectID)),
			slog.Uint64("code", uint64(code)),
			slog.String("message", text),
			slog.Time("t", s.TimeNow()),
		)
		s.protoErr = fmt.Errorf("%w: object %d: code %d: %s", ErrProtocol, objectID, code, text)
	case evtDisplayDeleteID:
		r := argReader{buf: payload}
		id := r.readUint32()
		if r.err != nil {
			return r.err
		}
		s.Logger.Debug("deleteID",
			slog.Uint64("object", uint64(id)),
			slog.Time("t", s.TimeNow()),
		)
		delete(s.handlers, id)
	}
	return nil
}

// handleRegistryEvent handles wl_registry events: global announcements
// and removals.
func (s *Session) handleRegistryEvent(opcode uint16, payload []byte) error {
	switch opcode {
	case evtRegistryGlobal:
		r := argReader{buf: payload}
		name := r.readUint32()
		iface := r.readString()
		version := r.readUint32()
		if r.err != nil {
			return r.err
		}
		s.logEvent("registryGlobal",
			slog.Uint64("name", uint64(name)),
			slog.String("interface", iface),
			slog.Uint64("version", uint64(version)),
			slog.Time("t", s.TimeNow()),
		)
		if iface != outputInterfaceName {
			return nil
		}
		return s.bindOutput(name)
	case evtRegistryGlobalRemove:
		r := argReader{buf: payload}
		name := r.readUint32()
		if r.err != nil {
			return r.err
		}
		// Enumeration is a one-shot snapshot: the removal is observed
		// but the record and its index identity are kept.
		s.logEvent("registryGlobalRemove",
			slog.Uint64("name", uint64(name)),
			slog.Time("t", s.TimeNow()),
		)
	}
	return nil
}

// bindOutput binds the announced wl_output global at protocol version 1,
// appends a zero-initialized record to the accumulator, and installs the
// geometry/mode handler for the bound object.
//
// When the accumulator cannot grow, the output is skipped and the sticky
// memory error recorded; the remaining globals keep being processed, so
// one failed output does not abort enumeration of the rest.
func (s *Session) bindOutput(name uint32) error {
	rec := &Output{}
	if !s.outputs.append(rec, s.MaxOutputs) {
		s.logEvent("outputSkipped",
			slog.Uint64("name", uint64(name)),
			slog.Int("maxOutputs", s.MaxOutputs),
			slog.Time("t", s.TimeNow()),
		)
		return nil
	}
	id := s.newID()
	rec.objectID = id

	args := appendUint32(nil, name)
	args = appendString(args, outputInterfaceName)
	args = appendUint32(args, outputBindVersion)
	args = appendUint32(args, id)
	if _, err := s.conn.Write(marshalRequest(s.registryID, opRegistryBind, args)); err != nil {
		return err
	}
	s.handlers[id] = s.outputHandler(rec)
	return nil
}

// outputHandler returns the event handler for one bound wl_output. The
// closure captures the record it populates, so geometry and mode events
// can never target the wrong index.
func (s *Session) outputHandler(rec *Output) eventHandler {
	return func(opcode uint16, payload []byte) error {
		switch opcode {
		case evtOutputGeometry:
			r := argReader{buf: payload}
			r.readInt32() // x
			r.readInt32() // y
			physWidth := r.readInt32()
			physHeight := r.readInt32()
			r.readInt32()  // subpixel
			r.readString() // make
			r.readString() // model
			r.readInt32()  // transform
			if r.err != nil {
				return r.err
			}
			rec.PhysicalWidthMM = physWidth
			rec.PhysicalHeightMM = physHeight
			s.logEvent("outputGeometry",
				slog.Uint64("object", uint64(rec.objectID)),
				slog.Int("physicalWidthMM", int(physWidth)),
				slog.Int("physicalHeightMM", int(physHeight)),
				slog.Time("t", s.TimeNow()),
			)
		case evtOutputMode:
			r := argReader{buf: payload}
			flags := r.readUint32()
			width := r.readInt32()
			height := r.readInt32()
			refresh := r.readInt32()
			if r.err != nil {
				return r.err
			}
			current := flags&modeFlagCurrent != 0
			if current {
				rec.Width = width
				rec.Height = height
				rec.Refresh = refresh
			}
			s.logEvent("outputMode",
				slog.Uint64("object", uint64(rec.objectID)),
				slog.Bool("current", current),
				slog.Int("width", int(width)),
				slog.Int("height", int(height)),
				slog.Int("refresh", int(refresh)),
				slog.Time("t", s.TimeNow()),
			)
		case evtOutputDone, evtOutputScale:
			// Version 1 consumers only need geometry and mode.
		}
		return nil
	}
}

// Count returns the number of accumulated output records.
func (s *Session) Count() int {
	return len(s.outputs.records)
}

// Outputs returns the accumulated records in discovery order.
//
// The slice is not a copy: it stays valid only for the lifetime of the
// session, and the caller must not retain it past [Session.Close].
func (s *Session) Outputs() []*Output {
	return s.outputs.records
}

// MemoryError reports whether the output accumulator failed to grow at
// any point during the session. The flag is sticky until [Session.Close].
// When true, the accumulated records are incomplete and the caller must
// treat the record set as unreliable even though individual records may
// be well formed.
func (s *Session) MemoryError() bool {
	return s.outputs.memErr
}

// setReady marks the session terminal-successful. Called by the
// enumeration driver once the drain is complete.
func (s *Session) setReady() {
	s.state = stateReady
}

// Close releases the connection and every bound object, and resets the
// session to its initial empty state, clearing the accumulated records,
// the sticky memory error, and the id counters.
//
// Close is idempotent: calling it on an already-closed session is a
// no-op that leaves the state unchanged.
func (s *Session) Close() error {
	var err error
	if s.conn != nil {
		// Outputs are bound at version 1, which has no release request:
		// dropping the connection releases every bound object.
		laddr := safeconn.LocalAddr(s.conn)
		raddr := safeconn.RemoteAddr(s.conn)
		err = s.conn.Close()
		s.conn = nil
		s.logEvent("sessionClose",
			slog.Any("err", err),
			slog.String("errClass", s.ErrClassifier.Classify(err)),
			slog.String("localAddr", laddr),
			slog.String("remoteAddr", raddr),
			slog.Time("t", s.TimeNow()),
		)
	}
	s.outputs.reset()
	s.handlers = map[uint32]eventHandler{displayObjectID: s.handleDisplayEvent}
	s.nextID = displayObjectID
	s.registryID = 0
	s.protoErr = nil
	s.state = stateIdle
	return err
}

// logEvent emits an Info-level protocol event.
func (s *Session) logEvent(msg string, args ...any) {
	s.Logger.Info(msg, args...)
}
