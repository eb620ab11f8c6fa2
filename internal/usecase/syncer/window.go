package syncer

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseWindow parses a delta-window value like "7d", "1d" or "30" into a
// number of whole days. An empty string means a full sync (0). Anything
// else is a configuration error.
func ParseWindow(raw string) (int, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return 0, nil
	}

	digits := strings.TrimSuffix(trimmed, "d")
	days, err := strconv.Atoi(digits)
	if err != nil || days <= 0 {
		return 0, fmt.Errorf("invalid sync window %q: use a value like \"7d\" or \"30d\"", raw)
	}
	return days, nil
}
