// Package terminal renders trials on a tcell screen and turns key events into held directions.
//
// Coordinates are normalized: x and y span [-1, 1] with y pointing up.
// Terminals report presses and repeats but not releases, so a direction counts as held
// for a short window after its last key event.
package terminal
