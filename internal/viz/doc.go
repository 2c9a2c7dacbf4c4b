// Package viz is the terminal dashboard for a closed-loop session, built on
// Bubble Tea.
//
// The left panel draws the plant on a braille [Canvas]. The right panel
// shows the RTI controller: iteration, phase, KKT value, QP status and the
// preparation/feedback split, with asciigraph charts of their history.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	N     - Single cycle while paused
//	R     - Restart from a fresh source
//	T     - Cycle color themes
//	?     - Show help overlay
package viz
