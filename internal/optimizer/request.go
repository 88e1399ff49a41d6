package optimizer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseSelection splits a comma-separated list of formula ids. Blank items
// are dropped and an empty input selects nothing.
func ParseSelection(value string) []string {
	var ids []string
	for _, item := range strings.Split(value, ",") {
		if id := strings.TrimSpace(item); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ParseFixed reads "id=qty" pairs separated by commas. A bare id means one bag.
func ParseFixed(value string) (map[string]int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	fixed := make(map[string]int)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, qty, found := strings.Cut(item, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid fixed formula %q: missing id", item)
		}
		n := 1
		if found {
			parsed, err := strconv.Atoi(strings.TrimSpace(qty))
			if err != nil {
				return nil, fmt.Errorf("invalid fixed quantity for %s: %w", id, err)
			}
			n = parsed
		}
		if _, dup := fixed[id]; dup {
			return nil, fmt.Errorf("fixed formula %s given more than once", id)
		}
		fixed[id] = n
	}
	return fixed, nil
}

// FormatFixed renders fixed quantities in the form accepted by ParseFixed,
// ordered by id.
func FormatFixed(fixed map[string]int) string {
	ids := make([]string, 0, len(fixed))
	for id := range fixed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s=%d", id, fixed[id]))
	}
	return strings.Join(parts, ",")
}
