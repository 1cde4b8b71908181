package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrUnknownName = errors.New("unknown name")

// Resolve picks the requested names out of available, keeping the order of
// available. An empty request selects everything.
func Resolve(kind string, requested, available []string) ([]string, error) {
	if len(requested) == 0 {
		return slices.Clone(available), nil
	}

	wanted := make(map[string]bool, len(requested))
	var unknown []string
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if !slices.Contains(available, name) {
			unknown = append(unknown, name)
			continue
		}
		wanted[name] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s %s (available: %s)", ErrUnknownName, kind,
			strings.Join(unknown, ", "), strings.Join(available, ", "))
	}

	resolved := make([]string, 0, len(wanted))
	for _, name := range available {
		if wanted[name] {
			resolved = append(resolved, name)
		}
	}
	return resolved, nil
}
