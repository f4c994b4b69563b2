package plan

import (
	"go.uber.org/zap"

	"github.com/reelsight/metrics-cli/internal/model"
)

// Result is the fully-resolved placement plan for one document.
type Result struct {
	Links  []*model.LinkRecord
	Layout model.LayoutFormat
}

// Placed returns the links that resolved to a target cell, in discovery
// order. These are the units of work for the fetch phase.
func (r *Result) Placed() []*model.LinkRecord {
	placed := make([]*model.LinkRecord, 0, len(r.Links))
	for _, l := range r.Links {
		if l.Resolution == model.ResolutionPlaced {
			placed = append(placed, l)
		}
	}
	return placed
}

// Build runs the full planning phase: scan, classify, resolve. It is
// deterministic for a given document, which lets a resumed job rebuild
// the identical plan and continue by index.
func Build(doc CellReader) (*Result, error) {
	links, err := Scan(doc)
	if err != nil {
		return nil, err
	}

	layout := Classify(doc, links)
	Resolve(doc, links, layout)

	skipped := 0
	for _, l := range links {
		if l.Resolution == model.ResolutionSkipped {
			skipped++
		}
	}
	zap.L().Info("plan: built placement plan",
		zap.Int("links", len(links)),
		zap.Int("skipped", skipped),
		zap.String("layout", string(layout)),
	)

	return &Result{Links: links, Layout: layout}, nil
}
