package pipeline

// Slicing defaults.
const (
	DefaultMinSliceSize = 100
	DefaultMaxSlices    = 12
)

// SliceConfig controls how a page range is split for parallel stages.
type SliceConfig struct {
	MinSliceSize int
	MaxSlices    int
	// MaxThreads caps the worker pool. 0 leaves the engine default; 1 forces
	// single-slice execution for every stage.
	MaxThreads int
}

// DefaultSliceConfig returns the default slicing settings.
func DefaultSliceConfig() SliceConfig {
	return SliceConfig{MinSliceSize: DefaultMinSliceSize, MaxSlices: DefaultMaxSlices}
}

// Partition splits pages into contiguous slices. A stage is sliced only when
// it is parallel-eligible, there is more than one page and the worker cap is
// unset or above one. Slices hold max(MinSliceSize, len(pages)/MaxSlices)
// pages; any remainder forms one final, shorter slice.
func Partition(pages []int, parallel bool, cfg SliceConfig) [][]int {
	n := len(pages)
	if n <= 1 || !parallel || cfg.MaxThreads == 1 {
		return [][]int{pages}
	}
	maxSlices := cfg.MaxSlices
	if maxSlices < 1 {
		maxSlices = 1
	}
	size := max(cfg.MinSliceSize, n/maxSlices, 1)

	slices := make([][]int, 0, n/size+1)
	i := 0
	for ; i+size <= n; i += size {
		slices = append(slices, pages[i:i+size:i+size])
	}
	if i < n {
		slices = append(slices, pages[i:n:n])
	}
	return slices
}
