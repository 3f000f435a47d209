package timectl

import (
	"fmt"
	"strings"
)

// Group partitions members into independently pausable, scalable timelines.
//
// Always is the zero value and is protected: it can never be paused or
// rescaled.
type Group uint8

const (
	Always Group = iota
	Gameplay
	UI
	Inputs
	Camera
)

var groupNames = [...]string{
	Always:   "always",
	Gameplay: "gameplay",
	UI:       "ui",
	Inputs:   "inputs",
	Camera:   "camera",
}

func (g Group) String() string {
	if int(g) < len(groupNames) {
		return groupNames[g]
	}
	return fmt.Sprintf("group(%d)", uint8(g))
}

// Groups returns every declared group in declaration order.
func Groups() []Group {
	out := make([]Group, len(groupNames))
	for i := range groupNames {
		out[i] = Group(i)
	}
	return out
}

// ParseGroup accepts the names from String, case-insensitively. "" parses as Always.
func ParseGroup(s string) (Group, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Always, nil
	}
	for i, n := range groupNames {
		if n == s {
			return Group(i), nil
		}
	}
	return 0, fmt.Errorf("unknown update group %q", s)
}
