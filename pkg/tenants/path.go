package tenants

import (
	"fmt"
	"strconv"
	"strings"
)

// pathSeparator terminates every segment, including the last, so that a
// prefix LIKE on "1/4/" can never match "1/42/".
const pathSeparator = "/"

// FormatPath renders an ancestor chain as its stored text form, e.g.
// [1 4 9] -> "1/4/9/".
func FormatPath(path []int64) string {
	if len(path) == 0 {
		return ""
	}
	var b strings.Builder
	for _, id := range path {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteString(pathSeparator)
	}
	return b.String()
}

// ParsePath parses the stored text form back into an ordered id chain.
func ParsePath(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(strings.TrimSuffix(s, pathSeparator), pathSeparator)
	path := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q: %w", part, err)
		}
		path = append(path, id)
	}
	return path, nil
}

// IsAncestorOf reports whether ancestor's path is a strict prefix of
// descendant's path. A tenant is not its own ancestor.
func IsAncestorOf(ancestor, descendant []int64) bool {
	if len(ancestor) >= len(descendant) {
		return false
	}
	for i, id := range ancestor {
		if descendant[i] != id {
			return false
		}
	}
	return true
}

// DistanceBetween returns the number of edges between a tenant and one of
// its ancestors or descendants, or -1 when neither contains the other.
func DistanceBetween(a, b []int64) int {
	switch {
	case IsAncestorOf(a, b):
		return len(b) - len(a)
	case IsAncestorOf(b, a):
		return len(a) - len(b)
	case samePath(a, b):
		return 0
	default:
		return -1
	}
}

func samePath(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
