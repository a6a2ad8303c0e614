package bench

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDuration parses a benchmark duration string: "300s", "5m", or a
// bare number of seconds. Mirrors the original suite's string-suffix
// convention rather than accepting Go's full time.ParseDuration syntax.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "s"):
		secs, err := strconv.ParseUint(strings.TrimSpace(strings.TrimSuffix(s, "s")), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid seconds: %w", err)
		}
		return time.Duration(secs) * time.Second, nil
	case strings.HasSuffix(s, "m"):
		mins, err := strconv.ParseUint(strings.TrimSpace(strings.TrimSuffix(s, "m")), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid minutes: %w", err)
		}
		return time.Duration(mins) * time.Minute, nil
	default:
		secs, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return time.Duration(secs) * time.Second, nil
	}
}

// unmarshalFlexibleDuration decodes either a JSON string ("300s") or a
// bare JSON number (seconds) into a time.Duration.
func unmarshalFlexibleDuration(data []byte) (time.Duration, error) {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		return parseDuration(asString)
	}
	var asNumber float64
	if err := json.Unmarshal(data, &asNumber); err == nil {
		return time.Duration(asNumber) * time.Second, nil
	}
	return 0, fmt.Errorf("duration: expected string or number, got %s", data)
}
