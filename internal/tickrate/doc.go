// Package tickrate maps a tick rate group to the interval a member waits
// between callbacks.
//
// The interval is derived from an adaptive frame time: a blend of the
// nominal frame time (from the target frame rate) and the measured one,
// weighted 0.2 toward the measurement. A group multiplies that value,
// except EverySecond which is always one second.
package tickrate
