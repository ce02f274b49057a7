package units

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a flexible duration string. Accepted formats:
//   - hh:mm:ss (e.g. "01:30:00")
//   - Go-style duration (e.g. "1h30m", "5m", "30s")
//   - Plain number as seconds (e.g. "10", "0.5")
//
// Negative values are rejected.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if strings.Count(s, ":") == 2 {
		parts := strings.SplitN(s, ":", 3)
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		sec, err3 := strconv.Atoi(parts[2])
		if err1 == nil && err2 == nil && err3 == nil {
			d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
			if d < 0 {
				return 0, fmt.Errorf("negative duration: %s", s)
			}
			return d, nil
		}
	}

	if d, err := time.ParseDuration(strings.ToLower(s)); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration: %s", s)
		}
		return d, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: must be hh:mm:ss, Go duration (1h30m), or seconds", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// FormatDuration formats a duration as hh:mm:ss, truncated to seconds.
func FormatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Seconds renders d as a whole number of seconds, rounding up so that a
// sub-second value never becomes 0. Used for ffmpeg options that take
// integral seconds.
func Seconds(d time.Duration) string {
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return strconv.FormatInt(s, 10)
}

const (
	kilobyte = 1024
	megabyte = 1024 * kilobyte
	gigabyte = 1024 * megabyte
)

// FormatSize formats bytes into a human-readable string.
func FormatSize(b int64) string {
	switch {
	case b >= gigabyte:
		return fmt.Sprintf("%.1fGB", float64(b)/gigabyte)
	case b >= megabyte:
		return fmt.Sprintf("%.1fMB", float64(b)/megabyte)
	case b >= kilobyte:
		return fmt.Sprintf("%.1fKB", float64(b)/kilobyte)
	default:
		return fmt.Sprintf("%dB", b)
	}
}
