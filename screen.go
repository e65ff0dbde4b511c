// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import "fmt"

// Screen is a formatted summary of one output, in the shape hardware
// collectors report screens: resolution as "WIDTHxHEIGHT", refresh rate
// in Hz with two decimals, physical size as "Wmm x Hmm".
//
// Fields the compositor never reported stay empty rather than reading
// "0x0": virtual outputs legitimately lack a physical size.
type Screen struct {
	// PhysicalResolution is the active mode, e.g. "1920x1080".
	PhysicalResolution string

	// RefreshRate is the active refresh rate in Hz, e.g. "59.94".
	RefreshRate string

	// Size is the physical size, e.g. "344mm x 194mm".
	Size string
}

// Screens converts the accumulated records into [Screen] summaries,
// assuming the compositor reported refresh rates in millihertz.
//
// The summaries are plain values and remain valid after [Session.Close].
func (s *Session) Screens() []Screen {
	screens := make([]Screen, 0, s.Count())
	for _, rec := range s.Outputs() {
		var scr Screen
		if rec.Width != 0 && rec.Height != 0 {
			scr.PhysicalResolution = fmt.Sprintf("%dx%d", rec.Width, rec.Height)
		}
		if rec.Refresh != 0 {
			scr.RefreshRate = fmt.Sprintf("%.2f", float64(rec.Refresh)/1000)
		}
		if rec.PhysicalWidthMM != 0 && rec.PhysicalHeightMM != 0 {
			scr.Size = fmt.Sprintf("%dmm x %dmm", rec.PhysicalWidthMM, rec.PhysicalHeightMM)
		}
		screens = append(screens, scr)
	}
	return screens
}
