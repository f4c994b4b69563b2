package plan

// fakeSheet is a CellReader backed by a sparse cell map for planning
// tests.
type fakeSheet struct {
	cells  map[[2]int]string
	maxRow int
	maxCol int
}

func newFakeSheet() *fakeSheet {
	return &fakeSheet{cells: map[[2]int]string{}}
}

func (f *fakeSheet) set(row, col int, value string) *fakeSheet {
	f.cells[[2]int{row, col}] = value
	if row > f.maxRow {
		f.maxRow = row
	}
	if col > f.maxCol {
		f.maxCol = col
	}
	return f
}

func (f *fakeSheet) MaxRow() int { return f.maxRow }
func (f *fakeSheet) MaxCol() int { return f.maxCol }

func (f *fakeSheet) Value(row, col int) string {
	return f.cells[[2]int{row, col}]
}
