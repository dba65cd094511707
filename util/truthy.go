package util

import (
	"strconv"
	"strings"
)

// Truthy reports whether s enables a boolean setting, e.g. "true",
// "1", "yes" or "on". Anything unrecognised is false.
func Truthy(s string) bool {
	normalized := strings.ToLower(strings.TrimSpace(s))

	switch normalized {
	case "yes", "y", "on":
		return true
	}

	v, err := strconv.ParseBool(normalized)

	return err == nil && v
}
