// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// The Wayland wire format transmits integers in the host byte order of
// the machine the compositor runs on. Clients and compositor share the
// machine, and every platform this package supports is little-endian.
var byteOrder = binary.LittleEndian

// headerSize is the fixed size of a message header: the sender's object
// id followed by a word holding the total message size in the upper 16
// bits and the request/event opcode in the lower 16 bits.
const headerSize = 8

// wl_display is a special singleton with the well-known object id 1.
const displayObjectID = 1

// wl_display requests.
const (
	opDisplaySync        = 0
	opDisplayGetRegistry = 1
)

// wl_display events.
const (
	evtDisplayError    = 0
	evtDisplayDeleteID = 1
)

// wl_registry requests.
const opRegistryBind = 0

// wl_registry events.
const (
	evtRegistryGlobal       = 0
	evtRegistryGlobalRemove = 1
)

// wl_callback events.
const evtCallbackDone = 0

// wl_output events.
const (
	evtOutputGeometry = 0
	evtOutputMode     = 1
	evtOutputDone     = 2
	evtOutputScale    = 3
)

// outputInterfaceName is the registry interface name of output globals.
const outputInterfaceName = "wl_output"

// outputBindVersion is the protocol version we bind outputs at. Version 1
// carries everything we consume (geometry and mode events); no version
// negotiation is attempted.
const outputBindVersion = 1

// modeFlagCurrent marks the mode event describing the currently active
// mode among the potentially several modes an output advertises.
const modeFlagCurrent = 0x1

// Wire decoding errors.
var (
	errInvalidHeader    = errors.New("wayland wire: message size below header size")
	errTruncatedMessage = errors.New("wayland wire: truncated message payload")
)

// message is a single event received from the compositor, still in wire
// form: the caller routes it by object id and decodes the payload with
// an [argReader] according to the opcode.
type message struct {
	object  uint32
	opcode  uint16
	payload []byte
}

// readMessage reads exactly one message from r, blocking until the full
// header and payload have arrived.
func readMessage(r io.Reader) (*message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	object := byteOrder.Uint32(hdr[0:4])
	sizeAndOpcode := byteOrder.Uint32(hdr[4:8])
	size := int(sizeAndOpcode >> 16)
	opcode := uint16(sizeAndOpcode & 0xffff)
	if size < headerSize {
		return nil, fmt.Errorf("%w: %d", errInvalidHeader, size)
	}
	payload := make([]byte, size-headerSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &message{object: object, opcode: opcode, payload: payload}, nil
}

// marshalRequest frames a request: the 8-byte header followed by the
// already-encoded argument block.
func marshalRequest(object uint32, opcode uint16, args []byte) []byte {
	size := headerSize + len(args)
	out := make([]byte, headerSize, size)
	byteOrder.PutUint32(out[0:4], object)
	byteOrder.PutUint32(out[4:8], uint32(size)<<16|uint32(opcode))
	return append(out, args...)
}

// appendUint32 appends a 32-bit argument to an argument block.
func appendUint32(args []byte, v uint32) []byte {
	return byteOrder.AppendUint32(args, v)
}

// appendString appends a string argument: a 32-bit length including the
// NUL terminator, the bytes, the NUL, and padding to a 32-bit boundary.
func appendString(args []byte, s string) []byte {
	n := len(s) + 1
	args = byteOrder.AppendUint32(args, uint32(n))
	args = append(args, s...)
	args = append(args, 0)
	for n%4 != 0 {
		args = append(args, 0)
		n++
	}
	return args
}

// argReader decodes the argument block of an event payload. The error is
// sticky: after the first decoding failure all reads return zero values
// and err reports the failure.
type argReader struct {
	buf []byte
	err error
}

func (r *argReader) readUint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 4 {
		r.err = errTruncatedMessage
		return 0
	}
	v := byteOrder.Uint32(r.buf[:4])
	r.buf = r.buf[4:]
	return v
}

func (r *argReader) readInt32() int32 {
	return int32(r.readUint32())
}

func (r *argReader) readString() string {
	n := int(r.readUint32())
	if r.err != nil {
		return ""
	}
	if n == 0 {
		// null string argument
		return ""
	}
	padded := (n + 3) &^ 3
	if len(r.buf) < padded {
		r.err = errTruncatedMessage
		return ""
	}
	s := string(r.buf[:n-1])
	r.buf = r.buf[padded:]
	return s
}
