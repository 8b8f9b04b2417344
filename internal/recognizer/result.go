package recognizer

import (
	"image"

	"github.com/amirhossein5/facecheck/internal/models"
)

type Outcome int

const (
	// OutcomeUnknown: the label or identifier did not map to an enrolled subject.
	OutcomeUnknown Outcome = iota
	// OutcomeRejected: distance at or above the threshold.
	OutcomeRejected
	// OutcomeDebounced: same subject as the last accepted one, inside the window.
	OutcomeDebounced
	// OutcomeSeen: already handled earlier in this run.
	OutcomeSeen
	OutcomeAlreadyMarked
	OutcomeCommitted
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDebounced:
		return "debounced"
	case OutcomeSeen:
		return "seen"
	case OutcomeAlreadyMarked:
		return "already-marked"
	case OutcomeCommitted:
		return "committed"
	case OutcomeError:
		return "error"
	default:
		return "invalid"
	}
}

// RegionResult is what happened to one located face.
type RegionResult struct {
	Region      image.Rectangle
	Outcome     Outcome
	Subject     string
	DisplayName string
	Distance    float64
	Err         error
}

// FrameSummary collects the region results of one frame. Err is set when the
// locator failed and no region was processed.
type FrameSummary struct {
	Index   int
	Frame   image.Image
	Results []RegionResult
	Err     error
}

// Committed reports whether any region in the frame produced a new record.
func (s FrameSummary) Committed() bool {
	return s.has(OutcomeCommitted)
}

// AlreadyMarked reports whether any region matched a subject already present
// today.
func (s FrameSummary) AlreadyMarked() bool {
	return s.has(OutcomeAlreadyMarked)
}

func (s FrameSummary) has(o Outcome) bool {
	for _, r := range s.Results {
		if r.Outcome == o {
			return true
		}
	}
	return false
}

// Regions returns the located face rectangles, in result order.
func (s FrameSummary) Regions() []image.Rectangle {
	regions := make([]image.Rectangle, len(s.Results))
	for i, r := range s.Results {
		regions[i] = r.Region
	}
	return regions
}

// Report is the outcome of one recognition run.
type Report struct {
	RunID string
	// AlreadyMarked holds the display names, sorted, of subjects recognized
	// this run whose attendance for today already existed.
	AlreadyMarked []string
	Committed     []models.AttendanceRecord
	Frames        int
	Regions       int
}
