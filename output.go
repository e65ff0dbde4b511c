// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

// Output is one display discovered during enumeration.
//
// Records are created the instant the registry announces a wl_output
// global and mutated in place as geometry and mode events arrive; a
// field keeps its zero value until the corresponding event has been
// observed. Physical dimensions may legitimately stay zero for virtual
// or unknown outputs.
//
// The identity of an output is its position in [Session.Outputs] at
// discovery time; the compositor determines discovery order and does
// not guarantee it to be stable across runs.
type Output struct {
	// Width is the width in pixels of the current mode.
	Width int32

	// Height is the height in pixels of the current mode.
	Height int32

	// Refresh is the refresh rate of the current mode in the unit the
	// compositor reports (mHz on every known compositor).
	Refresh int32

	// PhysicalWidthMM is the physical width in millimeters.
	PhysicalWidthMM int32

	// PhysicalHeightMM is the physical height in millimeters.
	PhysicalHeightMM int32

	// objectID is the protocol id of the bound wl_output, zero for
	// records injected through the test seam.
	objectID uint32
}

// initialOutputCapacity is the accumulator capacity before any growth.
const initialOutputCapacity = 4

// outputList accumulates [Output] records during the subscribe/drain
// phase. It is append-only while draining and addressed by index; the
// caller sees it read-only through the [Session] accessors.
type outputList struct {
	// records is the accumulated sequence in discovery order.
	records []*Output

	// memErr is the sticky memory error flag: once growth fails it
	// stays set until the list is reset.
	memErr bool
}

func newOutputList() *outputList {
	return &outputList{records: make([]*Output, 0, initialOutputCapacity)}
}

// append adds rec to the list, doubling the capacity on overflow so
// reallocation cost stays amortized when the final output count is
// unknown up front. The limit argument bounds the total capacity
// (zero means unbounded); when growing would exceed it, append records
// the sticky memory error and reports false, and the caller skips that
// output while continuing with the rest.
func (l *outputList) append(rec *Output, limit int) bool {
	if limit > 0 && len(l.records) >= limit {
		l.memErr = true
		return false
	}
	if len(l.records) == cap(l.records) {
		grown := make([]*Output, len(l.records), max(2*cap(l.records), initialOutputCapacity))
		copy(grown, l.records)
		l.records = grown
	}
	l.records = append(l.records, rec)
	return true
}

// reset restores the list to its initial state: no records, initial
// capacity, memory error cleared.
func (l *outputList) reset() {
	l.records = make([]*Output, 0, initialOutputCapacity)
	l.memErr = false
}
