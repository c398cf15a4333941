// Package viz provides the terminal view of a running particle simulation.
//
// The view is a Bubble Tea program:
//
//   - [Model]: steps a [sim.Runner] once per frame and draws it
//   - [Canvas]: Braille-based pixel canvas, one particle per sub-pixel
//   - Three colour themes for the stats panel
//
// # Key Bindings
//
//	Space - Pause/Resume simulation
//	N     - Single step while paused
//	E     - Toggle the emitter
//	T     - Cycle color themes
//	Q     - Quit
package viz
