// Package enum maps small integer option types to and from their names.
package enum

import (
	"fmt"
	"strings"
)

// String renders v by its position in names.
func String[T ~uint8](names []string, v T) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%T(%d)", v, v)
}

// Parse stores in dst the index of the name matching s, ignoring case and
// surrounding space.
func Parse[T ~uint8](names []string, what, s string, dst *T) error {
	for i, n := range names {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			*dst = T(i)
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q (want one of %s)", what, s, strings.Join(names, ", "))
}
