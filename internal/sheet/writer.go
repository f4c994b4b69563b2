package sheet

import (
	"go.uber.org/zap"

	"github.com/reelsight/metrics-cli/internal/model"
	"github.com/reelsight/metrics-cli/internal/plan"
)

// Sentinel text written for non-numeric outcomes. The tagged outcome
// variant is converted to display text only here.
const (
	notAvailableText = "N/A"
	errorText        = "ERROR"
)

// WriteOutcomes materializes fetched outcomes into their resolved target
// cells. Skipped links and links without an outcome yet (a paused or
// failed job) are left untouched, so a partial document reflects exactly
// the work done so far. Writing identical outcomes twice is idempotent.
func WriteOutcomes(doc *Document, links []*model.LinkRecord) error {
	for _, l := range links {
		if l.Resolution != model.ResolutionPlaced || l.Outcome == nil {
			continue
		}

		// Final guard, independent of the planning phase: never
		// overwrite a cell that now holds a link.
		if plan.MatchesLink(doc.Value(l.ViewsRow, l.ViewsCol)) {
			zap.L().Warn("write: target cell holds a link, refusing to overwrite",
				zap.Int("row", l.ViewsRow),
				zap.Int("col", l.ViewsCol),
				zap.String("id", l.CanonicalID),
			)
			continue
		}

		var value any
		switch l.Outcome.Kind {
		case model.OutcomeSuccess:
			value = l.Outcome.Views
		case model.OutcomeNotAvailable:
			value = notAvailableText
		default:
			value = errorText
		}

		if err := doc.SetValue(l.ViewsRow, l.ViewsCol, value); err != nil {
			return err
		}
	}
	return nil
}
