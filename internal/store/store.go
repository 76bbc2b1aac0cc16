package store

import (
	"sort"

	"folio/internal/domain"
)

// Store is the canonical, full-document store.
type Store struct {
	fields      map[Field]PageMap
	metadata    Metadata
	performance domain.Performance
}

// New creates an empty store with the given metadata.
func New(metadata Metadata) *Store {
	if metadata == nil {
		metadata = Metadata{}
	}
	return &Store{
		fields:      map[Field]PageMap{},
		metadata:    metadata.Clone(),
		performance: domain.Performance{},
	}
}

// Has reports whether the field exists, even if it holds no pages.
func (s *Store) Has(f Field) bool {
	_, ok := s.fields[f]
	return ok
}

// Pages returns the page numbers stored for a field, ascending.
func (s *Store) Pages(f Field) []int {
	return domain.SortedPages(s.fields[f])
}

// Metadata returns a copy of the metadata record.
func (s *Store) Metadata() Metadata { return s.metadata.Clone() }

// Performance returns a copy of the performance record.
func (s *Store) Performance() domain.Performance { return clonePerformance(s.performance) }

// RecordPerformance stores elapsed seconds for a stage phase, replacing any
// earlier value.
func (s *Store) RecordPerformance(stage, phase string, secs float64) {
	record(s.performance, stage, phase, secs)
}

// Seed writes a value straight into the canonical store.
func Seed[T any](s *Store, k Key[T], page int, val T) {
	m, ok := s.fields[k.field]
	if !ok {
		m = PageMap{}
		s.fields[k.field] = m
	}
	m[page] = val
}

// Lookup reads a value from the canonical store.
func Lookup[T any](s *Store, k Key[T], page int) (T, bool) {
	var zero T
	v, ok := s.fields[k.field][page]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Slice builds the reduced store for one page slice. It carries the full
// metadata and, for every readable field present in s, only the entries of
// the slice's pages. Writable fields are the ones the stage may produce.
func (s *Store) Slice(pages []int, readable, writable []Field) *View {
	v := &View{
		pages:       append([]int(nil), pages...),
		own:         make(map[int]bool, len(pages)),
		fields:      map[Field]PageMap{},
		writable:    map[Field]bool{},
		metadata:    s.metadata.Clone(),
		performance: domain.Performance{},
	}
	for _, p := range pages {
		v.own[p] = true
	}
	for _, f := range readable {
		src, ok := s.fields[f]
		if !ok {
			continue
		}
		m := make(PageMap, len(pages))
		for _, p := range pages {
			if val, ok := src[p]; ok {
				m[p] = val
			}
		}
		v.fields[f] = m
	}
	for _, f := range writable {
		v.writable[f] = true
	}
	return v
}

// Snapshot returns a read-only view over every page and field, for
// consumers that run after the pipeline such as overlay rendering.
func (s *Store) Snapshot() *View {
	pages := map[int]bool{}
	v := &View{
		own:         pages,
		fields:      make(map[Field]PageMap, len(s.fields)),
		writable:    map[Field]bool{},
		metadata:    s.metadata.Clone(),
		performance: clonePerformance(s.performance),
	}
	for f, m := range s.fields {
		v.fields[f] = m.clone()
		for p := range m {
			pages[p] = true
		}
	}
	v.pages = domain.SortedPages(pages)
	return v
}

// Merge folds slice results into the canonical store. Every produced field
// is created if absent and receives the union of the slices' page entries;
// slices cover disjoint pages so no entry is lost. The canonical metadata is
// then overlaid with the metadata of results[0] only. Each stage phase
// reported by the slices overwrites the canonical timing with the largest
// value among the slices.
func Merge(s *Store, results []SliceResult, produced []Field) {
	for _, f := range produced {
		if _, ok := s.fields[f]; !ok {
			s.fields[f] = PageMap{}
		}
	}
	slowest := domain.Performance{}
	for _, r := range results {
		for _, f := range produced {
			for p, val := range r.Fields[f] {
				s.fields[f][p] = val
			}
		}
		for stage, phases := range r.Performance {
			for phase, secs := range phases {
				if cur, ok := slowest[stage][phase]; !ok || secs > cur {
					record(slowest, stage, phase, secs)
				}
			}
		}
	}
	for stage, phases := range slowest {
		for phase, secs := range phases {
			record(s.performance, stage, phase, secs)
		}
	}
	if len(results) > 0 {
		for k, val := range results[0].Metadata {
			s.metadata[k] = val
		}
	}
}

// SortResults orders slice results by slice index.
func SortResults(results []SliceResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
}
