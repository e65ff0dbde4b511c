// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import "github.com/bassosimone/errclass"

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g., "ETIMEDOUT",
// "ECONNREFUSED") that facilitate systematic analysis of enumeration failures,
// such as distinguishing a missing compositor from a protocol breakdown.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	op.ErrClassifier = ErrClassifierFunc(func(error) string { return "" })
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier maps errors to errno-style labels using
// [errclass.New]. Nil errors classify to the empty string.
var DefaultErrClassifier = ErrClassifierFunc(errclass.New)
