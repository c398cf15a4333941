package solver

const (
	// minSliceWidth keeps two slices of the same phase at least one whole
	// column apart. A slice reaches one column into each neighbour, so with
	// width 1 slices k and k+2 would both touch column k+1.
	minSliceWidth = 2

	minWorldSize = 2 * minSliceWidth
)

// columnLayout splits the grid columns into slices swept in two phases:
// even slices first, then odd slices.
type columnLayout struct {
	columns    int
	sliceWidth int
	slices     int
}

func newColumnLayout(columns, workers int) columnLayout {
	if workers < 1 {
		workers = 1
	}
	w := columns / (2 * workers)
	if w < minSliceWidth {
		w = minSliceWidth
	}
	return columnLayout{
		columns:    columns,
		sliceWidth: w,
		slices:     columns / w,
	}
}

// phaseSlices returns how many slices belong to phase 0 (even) or 1 (odd).
func (l columnLayout) phaseSlices(phase int) int {
	return (l.slices + 1 - phase) / 2
}

// span returns the half-open column range of slice k. The last slice
// absorbs the columns left over by the integer division.
func (l columnLayout) span(k int) (first, last int) {
	first = k * l.sliceWidth
	last = first + l.sliceWidth
	if k == l.slices-1 {
		last = l.columns
	}
	return first, last
}
