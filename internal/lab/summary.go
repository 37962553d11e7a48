package lab

import (
	"fmt"
	"strings"
)

// Summary renders a one-line human-readable description of the lab's
// current parameter ranges and notebook selection — supplemented from
// original_source/epyc/lab.py's __str__ (spec EXP-3).
func (l *Lab) Summary() string {
	var ranges strings.Builder

	for i, r := range l.ranges {
		if i > 0 {
			ranges.WriteString(", ")
		}

		fmt.Fprintf(&ranges, "%s=%d", r.Name, len(r.Values))
	}

	if ranges.Len() == 0 {
		ranges.WriteString("none")
	}

	return fmt.Sprintf("lab[tag=%s, points=%d, parameters={%s}]",
		l.notebook.CurrentTag(), l.Len(), ranges.String())
}
