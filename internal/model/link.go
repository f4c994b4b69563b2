package model

// LayoutFormat classifies where metric cells sit relative to link cells.
// One value applies to the whole document.
type LayoutFormat string

const (
	// LayoutVertical places the metric in the column to the right of
	// each link.
	LayoutVertical LayoutFormat = "vertical"
	// LayoutHorizontalBelow places the metric in the row below each link.
	LayoutHorizontalBelow LayoutFormat = "horizontal_below"
	// LayoutAlternating is a vertical layout where link columns are
	// spaced exactly two apart, leaving a metric column between each pair.
	LayoutAlternating LayoutFormat = "alternating"
)

// Resolution is the placement state of a discovered link.
type Resolution string

const (
	ResolutionUnresolved Resolution = "unresolved"
	ResolutionPlaced     Resolution = "placed"
	// ResolutionSkipped means no safe target cell exists; the link is
	// excluded from fetching and writing.
	ResolutionSkipped Resolution = "skipped"
)

// LinkRecord is one discovered link cell plus its resolved metric target.
// Positions are 1-indexed. Records are owned by a single job's planning
// phase and, except for Outcome, immutable once fetching begins.
type LinkRecord struct {
	Row         int
	Col         int
	RawText     string
	CanonicalID string
	ViewsRow    int
	ViewsCol    int
	Resolution  Resolution
	Outcome     *MetricOutcome
}

// OutcomeKind discriminates the three possible fetch results.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeNotAvailable
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotAvailable:
		return "not_available"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// MetricOutcome is the tagged fetch result for one link. Views is only
// meaningful when Kind is OutcomeSuccess. The variant is carried through
// the whole pipeline and converted to display text at the writer boundary.
type MetricOutcome struct {
	Kind  OutcomeKind
	Views int64
}

// SuccessOutcome builds a successful outcome carrying a view count.
func SuccessOutcome(views int64) *MetricOutcome {
	return &MetricOutcome{Kind: OutcomeSuccess, Views: views}
}

// NotAvailableOutcome marks a link whose metric the provider could not find.
func NotAvailableOutcome() *MetricOutcome {
	return &MetricOutcome{Kind: OutcomeNotAvailable}
}

// ErrorOutcome marks a link whose fetch failed.
func ErrorOutcome() *MetricOutcome {
	return &MetricOutcome{Kind: OutcomeError}
}
