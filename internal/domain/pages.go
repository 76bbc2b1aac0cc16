package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SortedPages returns the page numbers of a page-indexed map in ascending order.
func SortedPages[V any](m map[int]V) []int {
	pages := make([]int, 0, len(m))
	for p := range m {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// ParsePageList parses a comma-separated list of zero-based page numbers.
// Ranges such as "3-7" are inclusive. An empty string means all pages and
// yields nil.
func ParsePageList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var pages []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || first < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPages, part)
		}
		last := first
		if isRange {
			last, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || last < first {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPages, part)
			}
		}
		for p := first; p <= last; p++ {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

// FormatPageList is the inverse of ParsePageList for explicit lists.
func FormatPageList(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
