// Package util contains small helpers shared by the driver packages.
package util

// Prefixed returns a copy of items with prefix prepended to each item.
func Prefixed(prefix string, items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = prefix + item
	}

	return out
}

// Dedup returns items without repeated elements.  The first occurrence of each
// element is kept in place.
func Dedup[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))

	var out []T
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}

		seen[item] = struct{}{}
		out = append(out, item)
	}

	return out
}
