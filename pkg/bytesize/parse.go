// Package bytesize provides human-friendly byte size parsing.
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// unitMultipliers maps unit suffixes to their byte values. Single-letter
// and two-letter spellings are both accepted; all are 1024-based.
var unitMultipliers = map[string]int64{
	"b": 1,
	"k": 1 << 10,
	"m": 1 << 20,
	"g": 1 << 30,
	"t": 1 << 40,
}

// Parse parses a byte size as written in configuration files: a bare number
// is bytes, otherwise a number with a unit suffix (b, k/kb, m/mb, g/gb,
// t/tb, case-insensitive).
//
// Examples:
//
//	Parse("1024")   // 1024 bytes
//	Parse("512m")   // 536870912 bytes
//	Parse("1.5GB")  // 1610612736 bytes
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	valueStr := strings.TrimSuffix(s, "b")
	multiplier := int64(1)
	if len(valueStr) > 0 {
		if m, ok := unitMultipliers[valueStr[len(valueStr)-1:]]; ok && valueStr[len(valueStr)-1] != 'b' {
			multiplier = m
			valueStr = valueStr[:len(valueStr)-1]
		}
	}

	valueStr = strings.TrimSpace(valueStr)
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid size %q: negative value not allowed", s)
	}

	result := value * float64(multiplier)
	if result > math.MaxInt64 {
		return 0, fmt.Errorf("size %q exceeds the maximum representable value", s)
	}
	return int64(result), nil
}
