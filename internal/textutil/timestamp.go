package textutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTimestamp is returned for strings that are not HH:MM:SS[,mmm].
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// ToMillis converts clock components to milliseconds.
func ToMillis(hours, minutes, seconds, millis int) int64 {
	return int64(hours)*3_600_000 + int64(minutes)*60_000 + int64(seconds)*1_000 + int64(millis)
}

// ParseTimestamp parses "HH:MM:SS,mmm" (SRT display form). A '.' separator
// and a missing fractional part are accepted. Fractions shorter than three
// digits are right-padded, longer ones truncated.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)

	clock, frac := s, ""
	if i := strings.IndexAny(s, ",."); i >= 0 {
		clock, frac = s[:i], s[i+1:]
	}

	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}

	var hms [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || p == "" {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		hms[i] = n
	}
	if hms[1] > 59 || hms[2] > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}

	ms := 0
	if frac != "" {
		if len(frac) > 3 {
			frac = frac[:3]
		}
		frac += strings.Repeat("0", 3-len(frac))
		n, err := strconv.Atoi(frac)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		ms = n
	}

	return ToMillis(hms[0], hms[1], hms[2], ms), nil
}

// FormatTimestamp renders milliseconds in SRT display form "HH:MM:SS,mmm".
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	sec := (ms / 1_000) % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms%1_000)
}
