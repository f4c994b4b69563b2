// Package plan implements the pure planning phase: link discovery,
// layout classification, and metric cell placement. It performs no I/O;
// cell content arrives through the CellReader interface.
package plan

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reelsight/metrics-cli/internal/model"
)

// CellReader provides read access to a single-sheet spreadsheet. Value
// must return the hyperlink target when the cell carries one, the
// concatenated run text for rich-text cells, and the plain string
// otherwise. Positions are 1-indexed; out-of-range reads return "".
type CellReader interface {
	MaxRow() int
	MaxCol() int
	Value(row, col int) string
}

var (
	// linkPattern recognizes a post URL carrying an extractable id:
	// the platform domain, one of the known path segments, and the id.
	linkPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?instagram\.com/(?:reel|reels|p|tv)/([A-Za-z0-9_-]+)`)

	// domainPattern is the looser domain-only match. It identifies a
	// link cell but yields no canonical id.
	domainPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?instagram\.com(?:/|\s|$)`)
)

// ErrNoLinksFound is returned when the document contains no usable link.
var ErrNoLinksFound = eris.New("plan: no links found in document")

// MatchesLink reports whether the text contains a link with an
// extractable id. Shared by the scanner, the placement safety predicate,
// and the writer's final guard.
func MatchesLink(text string) bool {
	return linkPattern.MatchString(text)
}

// MatchesDomain reports whether the text mentions the platform domain at
// all, with or without an extractable id.
func MatchesDomain(text string) bool {
	return domainPattern.MatchString(text)
}

// CanonicalID extracts the path identifier from a recognized link.
func CanonicalID(text string) (string, bool) {
	m := linkPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Scan walks every cell and returns the ordered usable link set.
// Domain-only matches without an extractable id cannot be joined to any
// provider result and are dropped here rather than failing downstream.
func Scan(doc CellReader) ([]*model.LinkRecord, error) {
	var links []*model.LinkRecord

	for row := 1; row <= doc.MaxRow(); row++ {
		for col := 1; col <= doc.MaxCol(); col++ {
			raw := cleanCellText(doc.Value(row, col))
			if raw == "" {
				continue
			}

			id, ok := CanonicalID(raw)
			if !ok {
				if MatchesDomain(raw) {
					zap.L().Debug("scan: dropping domain-only match",
						zap.Int("row", row),
						zap.Int("col", col),
					)
				}
				continue
			}

			links = append(links, &model.LinkRecord{
				Row:         row,
				Col:         col,
				RawText:     raw,
				CanonicalID: id,
				Resolution:  model.ResolutionUnresolved,
			})
		}
	}

	if len(links) == 0 {
		return nil, ErrNoLinksFound
	}
	return links, nil
}

// cleanCellText trims whitespace and strips one layer of surrounding
// quote characters, which survive copy-paste from other tools.
func cleanCellText(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}
