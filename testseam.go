// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import (
	"slices"
	"time"
)

// This file is the diagnostic seam for consumers' test suites: it lets a
// downstream collector exercise its handling of enumeration results
// without a live compositor. Nothing in this package's production call
// paths reaches these entry points.

// NewInjectedSession returns a session with no compositor connection,
// pre-loaded with the given records.
//
// Intended for test harnesses of downstream consumers. The session's
// accessors behave as after a successful enumeration; [Session.Close]
// resets it as usual.
func NewInjectedSession(records []*Output) *Session {
	s := newSession(nil, DefaultErrClassifier, DefaultSLogger(), time.Now)
	s.InjectOutputs(records)
	return s
}

// InjectOutputs replaces the accumulator contents wholesale, first
// tearing down any live session. The records are stored in the given
// order; [Session.Count] reports their number.
//
// Intended for test harnesses; see [NewInjectedSession].
func (s *Session) InjectOutputs(records []*Output) {
	s.Close()
	s.outputs.records = slices.Clone(records)
	s.state = stateReady
}

// InjectMemoryError sets or clears the sticky memory error flag
// directly, without touching the accumulated records.
//
// Intended for test harnesses; [Session.Close] resets the flag.
func (s *Session) InjectMemoryError(flag bool) {
	s.outputs.memErr = flag
}
