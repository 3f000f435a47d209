// Package timectl decouples logical time from frame time per update group.
//
// Each Group owns a Channel holding a pause flag, a time scale and the
// deltas computed for the current tick. The Registry feeds every channel
// once per driver tick; paused channels report zero deltas.
package timectl
