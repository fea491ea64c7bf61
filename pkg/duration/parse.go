// Package duration provides duration parsing for configuration values.
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse parses a configuration duration value. A bare number is a count of
// seconds, matching how grace periods are commonly written; anything else
// must be a valid Go duration string such as "1m30s".
//
// Examples:
//
//	Parse("10")     // 10 seconds
//	Parse("1m30s")  // 90 seconds
//	Parse("500ms")  // half a second
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: expected seconds or a value like \"1m30s\"", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
