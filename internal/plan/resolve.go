package plan

import (
	"go.uber.org/zap"

	"github.com/reelsight/metrics-cli/internal/model"
)

type coord struct{ row, col int }

// Resolve assigns a metric target cell to every link, working over the
// full set at once so no two links ever claim the same cell. Every
// link's preferred cell is reserved in a first pass, so a link whose
// preferred cell is blocked falls through to a later candidate instead
// of stealing a neighbor's slot. Links with no safe candidate are
// marked Skipped and excluded from fetching and writing.
func Resolve(doc CellReader, links []*model.LinkRecord, layout model.LayoutFormat) {
	linkCells := make(map[coord]bool, len(links))
	for _, l := range links {
		linkCells[coord{l.Row, l.Col}] = true
	}

	reserved := make(map[coord]*model.LinkRecord, len(links))
	for _, l := range links {
		p := candidatesFor(l, layout)[0]
		if linkCells[p] || MatchesLink(cleanCellText(doc.Value(p.row, p.col))) {
			continue
		}
		reserved[p] = l
	}

	claimed := make(map[coord]bool, len(links))

	for _, l := range links {
		target, ok := firstSafe(doc, l, candidatesFor(l, layout), linkCells, claimed, reserved)
		if !ok {
			l.Resolution = model.ResolutionSkipped
			zap.L().Warn("resolve: no safe target cell, skipping link",
				zap.Int("row", l.Row),
				zap.Int("col", l.Col),
				zap.String("id", l.CanonicalID),
			)
			continue
		}

		claimed[target] = true
		l.ViewsRow = target.row
		l.ViewsCol = target.col
		l.Resolution = model.ResolutionPlaced
	}
}

func candidatesFor(l *model.LinkRecord, layout model.LayoutFormat) []coord {
	if layout == model.LayoutHorizontalBelow {
		return []coord{
			{l.Row + 1, l.Col},
			{l.Row + 2, l.Col},
		}
	}
	// Vertical and alternating share the column-adjacent rule.
	return []coord{
		{l.Row, l.Col + 1},
		{l.Row, l.Col + 2},
		{l.Row + 1, l.Col},
	}
}

// firstSafe returns the first candidate that would not destroy a link
// cell, is not reserved for a different link, and has not already been
// claimed.
func firstSafe(doc CellReader, owner *model.LinkRecord, candidates []coord, linkCells, claimed map[coord]bool, reserved map[coord]*model.LinkRecord) (coord, bool) {
	for _, c := range candidates {
		if linkCells[c] || claimed[c] {
			continue
		}
		if r, ok := reserved[c]; ok && r != owner {
			continue
		}
		if MatchesLink(cleanCellText(doc.Value(c.row, c.col))) {
			continue
		}
		return c, true
	}
	return coord{}, false
}
