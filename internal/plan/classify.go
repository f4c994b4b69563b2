package plan

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/reelsight/metrics-cli/internal/model"
)

// Classify infers the whole-document layout from link geometry, falling
// back to local cell content only when geometry is ambiguous. Headers
// are optional and localized in real-world documents, so they are never
// consulted.
func Classify(doc CellReader, links []*model.LinkRecord) model.LayoutFormat {
	if len(links) < 2 {
		return model.LayoutVertical
	}

	// Columns spaced exactly two apart leave a metric column between
	// each pair of link columns. This check wins over everything else,
	// including links sharing rows.
	if hasAlternatingColumns(links) {
		return model.LayoutAlternating
	}

	if hasSharedRows(links) {
		return voteRowLayout(doc, links)
	}

	return model.LayoutVertical
}

func hasAlternatingColumns(links []*model.LinkRecord) bool {
	seen := map[int]bool{}
	for _, l := range links {
		seen[l.Col] = true
	}
	if len(seen) < 2 {
		return false
	}

	cols := make([]int, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Ints(cols)

	for i := 1; i < len(cols); i++ {
		if cols[i]-cols[i-1] != 2 {
			return false
		}
	}
	return true
}

func hasSharedRows(links []*model.LinkRecord) bool {
	perRow := map[int]int{}
	for _, l := range links {
		perRow[l.Row]++
		if perRow[l.Row] > 1 {
			return true
		}
	}
	return false
}

// voteRowLayout runs a majority vote over all links: each link inspects
// the cell to its right and the cell below and scores which side looks
// like a metric slot. A link URL in either direction forces the opposite
// preference; ties default to "right".
func voteRowLayout(doc CellReader, links []*model.LinkRecord) model.LayoutFormat {
	rightVotes, belowVotes := 0, 0

	for _, l := range links {
		right := cleanCellText(doc.Value(l.Row, l.Col+1))
		below := cleanCellText(doc.Value(l.Row+1, l.Col))

		switch {
		case MatchesLink(right):
			belowVotes++
		case MatchesLink(below):
			rightVotes++
		case metricSlot(right) && !metricSlot(below) && below != "":
			rightVotes++
		case metricSlot(below) && !metricSlot(right) && right != "":
			belowVotes++
		default:
			rightVotes++
		}
	}

	zap.L().Debug("classify: row layout vote",
		zap.Int("right", rightVotes),
		zap.Int("below", belowVotes),
	)

	if belowVotes > rightVotes {
		return model.LayoutHorizontalBelow
	}
	return model.LayoutVertical
}

// metricSlot reports whether a cell could hold a metric: empty or
// numeric-looking.
func metricSlot(text string) bool {
	return text == "" || looksNumeric(text)
}

// looksNumeric accepts integers with common thousands separators.
func looksNumeric(text string) bool {
	cleaned := strings.NewReplacer(",", "", ".", "", " ", "").Replace(text)
	if cleaned == "" {
		return false
	}
	_, err := strconv.ParseInt(cleaned, 10, 64)
	return err == nil
}
