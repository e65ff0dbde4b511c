// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"github.com/stretchr/testify/require"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// newMinimalConn returns a [netstub.FuncConn] with address functions set,
// which is the minimum the connection wrappers need to construct.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.UnixAddr{Name: "", Net: "unix"} },
		RemoteAddrFunc: func() net.Addr { return &net.UnixAddr{Name: "/run/user/1000/wayland-0", Net: "unix"} },
	}
}

// fakeOutput describes one display the fake compositor advertises.
type fakeOutput struct {
	width, height, refresh int32
	physWidth, physHeight  int32
}

// fakeCompositor speaks the server side of the wire protocol over a
// [netstub.FuncConn]. Requests written by the client are handled
// synchronously and the resulting events are appended to a queue the
// client reads back.
//
// The queue reproduces the ordering of a real compositor: the callback
// done for a sync is queued the moment the sync request arrives, so
// events produced by binds performed while draining that same round
// trip land after the done and only surface in the next round trip.
type fakeCompositor struct {
	t *testing.T

	// outputs are announced as wl_output globals with name = index+1.
	outputs []fakeOutput

	// extraGlobals are additional interfaces announced alongside the
	// outputs, to exercise interface filtering.
	extraGlobals []string

	// eventsOnBind overrides the default geometry + current-mode pair
	// queued when the client binds an output.
	eventsOnBind func(fc *fakeCompositor, id uint32, out fakeOutput)

	// errorOnSync responds to the next sync with a fatal display error
	// instead of a callback done.
	errorOnSync bool

	// removeOnSubscribe announces a global_remove for the first output
	// right after the globals.
	removeOnSubscribe bool

	queue      bytes.Buffer
	registryID uint32
	closed     bool
}

func newFakeCompositor(t *testing.T, outputs ...fakeOutput) *fakeCompositor {
	return &fakeCompositor{t: t, outputs: outputs}
}

// conn returns the client side of the fake session.
func (fc *fakeCompositor) conn() *netstub.FuncConn {
	return &netstub.FuncConn{
		ReadFunc:  fc.read,
		WriteFunc: fc.write,
		CloseFunc: func() error {
			fc.closed = true
			return nil
		},
		LocalAddrFunc: func() net.Addr {
			return &net.UnixAddr{Name: "", Net: "unix"}
		},
		RemoteAddrFunc: func() net.Addr {
			return &net.UnixAddr{Name: "/run/user/1000/wayland-0", Net: "unix"}
		},
	}
}

func (fc *fakeCompositor) read(b []byte) (int, error) {
	// An empty queue means the client awaits an event we never queued;
	// fail fast instead of deadlocking the test.
	if fc.queue.Len() == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return fc.queue.Read(b)
}

func (fc *fakeCompositor) write(b []byte) (int, error) {
	reader := bytes.NewReader(b)
	for reader.Len() > 0 {
		msg, err := readMessage(reader)
		require.NoError(fc.t, err)
		fc.handle(msg)
	}
	return len(b), nil
}

func (fc *fakeCompositor) queueEvent(object uint32, opcode uint16, args []byte) {
	fc.queue.Write(marshalRequest(object, opcode, args))
}

func (fc *fakeCompositor) handle(msg *message) {
	r := argReader{buf: msg.payload}
	switch {
	case msg.object == displayObjectID && msg.opcode == opDisplayGetRegistry:
		fc.registryID = r.readUint32()
		require.NoError(fc.t, r.err)
		for i := range fc.outputs {
			args := appendUint32(nil, uint32(i+1))
			args = appendString(args, outputInterfaceName)
			// Announce a higher version; the client still binds at 1.
			args = appendUint32(args, 4)
			fc.queueEvent(fc.registryID, evtRegistryGlobal, args)
		}
		for j, iface := range fc.extraGlobals {
			args := appendUint32(nil, uint32(1000+j))
			args = appendString(args, iface)
			args = appendUint32(args, 1)
			fc.queueEvent(fc.registryID, evtRegistryGlobal, args)
		}
		if fc.removeOnSubscribe {
			fc.queueEvent(fc.registryID, evtRegistryGlobalRemove, appendUint32(nil, 1))
		}

	case msg.object == displayObjectID && msg.opcode == opDisplaySync:
		callback := r.readUint32()
		require.NoError(fc.t, r.err)
		if fc.errorOnSync {
			args := appendUint32(nil, displayObjectID)
			args = appendUint32(args, 1) // invalid_method
			args = appendString(args, "synthetic failure")
			fc.queueEvent(displayObjectID, evtDisplayError, args)
			return
		}
		fc.queueEvent(callback, evtCallbackDone, appendUint32(nil, 0))
		fc.queueEvent(displayObjectID, evtDisplayDeleteID, appendUint32(nil, callback))

	case msg.object == fc.registryID && msg.opcode == opRegistryBind:
		name := r.readUint32()
		iface := r.readString()
		version := r.readUint32()
		id := r.readUint32()
		require.NoError(fc.t, r.err)
		require.Equal(fc.t, outputInterfaceName, iface)
		require.Equal(fc.t, uint32(outputBindVersion), version)
		out := fc.outputs[name-1]
		if fc.eventsOnBind != nil {
			fc.eventsOnBind(fc, id, out)
			return
		}
		fc.queueGeometry(id, out.physWidth, out.physHeight)
		fc.queueMode(id, modeFlagCurrent, out.width, out.height, out.refresh)

	default:
		fc.t.Fatalf("fake compositor: unexpected request: object %d opcode %d", msg.object, msg.opcode)
	}
}

func (fc *fakeCompositor) queueGeometry(id uint32, physWidth, physHeight int32) {
	args := appendUint32(nil, 0) // x
	args = appendUint32(args, 0) // y
	args = appendUint32(args, uint32(physWidth))
	args = appendUint32(args, uint32(physHeight))
	args = appendUint32(args, 0) // subpixel
	args = appendString(args, "ACME")
	args = appendString(args, "Display-1")
	args = appendUint32(args, 0) // transform
	fc.queueEvent(id, evtOutputGeometry, args)
}

func (fc *fakeCompositor) queueMode(id uint32, flags uint32, width, height, refresh int32) {
	args := appendUint32(nil, flags)
	args = appendUint32(args, uint32(width))
	args = appendUint32(args, uint32(height))
	args = appendUint32(args, uint32(refresh))
	fc.queueEvent(id, evtOutputMode, args)
}

// drainSession subscribes and performs the standard two round trips.
func drainSession(t *testing.T, sess *Session) {
	ctx := context.Background()
	require.NoError(t, sess.Subscribe(ctx))
	require.NoError(t, sess.RoundTrip(ctx))
	require.NoError(t, sess.RoundTrip(ctx))
}
