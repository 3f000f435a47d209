package tickrate

import (
	"fmt"
	"strings"
)

// Rate selects how often a member's callback fires relative to the adaptive
// base interval. The set is closed.
type Rate uint8

const (
	EveryFrame Rate = iota
	HalfTarget
	QuarterTarget
	EightTarget
	SixteenthTarget
	ThirtySecondTarget
	SixtyFourthTarget
	EverySecond
)

// AdaptiveWeight is the lerp weight toward the measured frame time.
const AdaptiveWeight = 0.2

var rateNames = [...]string{
	EveryFrame:         "every_frame",
	HalfTarget:         "half_target",
	QuarterTarget:      "quarter_target",
	EightTarget:        "eight_target",
	SixteenthTarget:    "sixteenth_target",
	ThirtySecondTarget: "thirty_second_target",
	SixtyFourthTarget:  "sixty_fourth_target",
	EverySecond:        "every_second",
}

func (r Rate) String() string {
	if int(r) < len(rateNames) {
		return rateNames[r]
	}
	return fmt.Sprintf("rate(%d)", uint8(r))
}

// Valid reports whether r is one of the declared groups.
func (r Rate) Valid() bool { return r <= EverySecond }

// ParseRate accepts the snake_case names from String, case-insensitively.
// "" parses as EveryFrame.
func ParseRate(s string) (Rate, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return EveryFrame, nil
	}
	for i, n := range rateNames {
		if n == s {
			return Rate(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tick rate %q", s)
}

// UnknownRateError is the panic value of Interval for an undeclared Rate.
type UnknownRateError struct {
	Rate Rate
}

func (e *UnknownRateError) Error() string {
	return fmt.Sprintf("tickrate: unknown rate %d", uint8(e.Rate))
}

// Interval returns the tick threshold in seconds for r.
//
// targetFrameRate <= 0 derives the nominal rate from frameTime. frameTime must
// be > 0; Interval does not validate it. An undeclared Rate is a programming
// error and panics with *UnknownRateError.
func Interval(r Rate, frameTime float64, targetFrameRate int) float64 {
	targetFPS := 1 / frameTime
	if targetFrameRate > 0 {
		targetFPS = float64(targetFrameRate)
	}
	base := 1 / targetFPS
	adaptive := Lerp(base, frameTime, AdaptiveWeight)

	switch r {
	case EveryFrame:
		return adaptive
	case HalfTarget:
		return adaptive * 2
	case QuarterTarget:
		return adaptive * 4
	case EightTarget:
		return adaptive * 8
	case SixteenthTarget:
		return adaptive * 16
	case ThirtySecondTarget:
		return adaptive * 32
	case SixtyFourthTarget:
		return adaptive * 64
	case EverySecond:
		return 1
	default:
		panic(&UnknownRateError{Rate: r})
	}
}

// Lerp interpolates linearly from a to b; t is not clamped.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
