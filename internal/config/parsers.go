package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidCPULimit    = errors.New("invalid cpu limit")
	ErrInvalidMemoryLimit = errors.New("invalid memory limit")
)

// minServerMemory is the smallest --memory docker accepts for a container.
const minServerMemory = 6 << 20

var memoryUnits = []struct {
	suffix string
	shift  uint
}{
	{"g", 30},
	{"m", 20},
	{"k", 10},
	{"b", 0},
}

// cpuLimit parses the --cpus value handed to the database container: a
// fractional number of cores, at least 0.01 and no more than this host has.
func cpuLimit(limit string, available int) (string, error) {
	cores, err := strconv.ParseFloat(strings.TrimSpace(limit), 64)
	if err != nil || math.IsNaN(cores) {
		return "", fmt.Errorf("%w: %q is not a number of cores", ErrInvalidCPULimit, limit)
	}
	if cores < 0.01 || cores > float64(available) {
		return "", fmt.Errorf("%w: %s outside 0.01..%d", ErrInvalidCPULimit, limit, available)
	}
	return strconv.FormatFloat(cores, 'f', -1, 64), nil
}

// memoryLimit parses a byte size such as "512M", "1.5gb" or "268435456" and
// returns it in the largest docker unit that represents it exactly.
func memoryLimit(limit string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(limit))
	value = strings.TrimSuffix(value, "b")
	var shift uint
	if n := len(value); n > 0 {
		for _, u := range memoryUnits[:3] {
			if value[n-1] == u.suffix[0] {
				value, shift = value[:n-1], u.shift
				break
			}
		}
	}

	size, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(size) || math.IsInf(size, 0) {
		return "", fmt.Errorf("%w: %q is not a size in b, k, m or g", ErrInvalidMemoryLimit, limit)
	}
	bytes := int64(math.Round(size * float64(int64(1)<<shift)))
	if bytes < minServerMemory {
		return "", fmt.Errorf("%w: %s is below the 6m docker minimum", ErrInvalidMemoryLimit, limit)
	}

	for _, u := range memoryUnits {
		if bytes%(int64(1)<<u.shift) == 0 {
			return strconv.FormatInt(bytes>>u.shift, 10) + u.suffix, nil
		}
	}
	return strconv.FormatInt(bytes, 10) + "b", nil
}

// parseDuration accepts a Go duration ("1m30s") or a bare number of seconds
// ("30", "0.5").
func parseDuration(value, defaultValue string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = defaultValue
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}
