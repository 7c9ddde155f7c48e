// Package coverage merges recorded chainage spans per activity and finds overlaps and gaps
// against them. Everything here is pure; callers fetch history and decide what to persist.
package coverage

import (
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/inspection_backend/chainage"
	"github.com/mmdatafocus/inspection_backend/models"
)

// DefaultToleranceMetres treats near-contiguous spans as continuous.
const DefaultToleranceMetres = 10

// Range is a span of covered chainage and where it came from.
type Range struct {
	Start      int       `json:"start_metres"`
	End        int       `json:"end_metres"`
	SourceDate time.Time `json:"source_date"`
	StartLabel string    `json:"source_start_label"`
	EndLabel   string    `json:"source_end_label"`
	ReportId   int       `json:"report_id,omitempty"`
}

func (r Range) Length() int { return r.End - r.Start }

// FromSegment builds a Range from a persisted segment, filling missing labels.
func FromSegment(s models.Segment) Range {
	s.Normalize()
	r := Range{
		Start:      s.StartMetres,
		End:        s.EndMetres,
		SourceDate: s.ReportDate,
		StartLabel: s.StartLabel,
		EndLabel:   s.EndLabel,
		ReportId:   s.ReportId,
	}
	if r.StartLabel == "" {
		r.StartLabel = chainage.FormatKP(r.Start)
	}
	if r.EndLabel == "" {
		r.EndLabel = chainage.FormatKP(r.End)
	}
	return r
}

// Overlap is a historical range intersecting the candidate, with the intersection span.
type Overlap struct {
	With  Range `json:"with"`
	Start int   `json:"start_metres"`
	End   int   `json:"end_metres"`
}

func (o Overlap) Length() int { return o.End - o.Start }

func (o Overlap) Message() string {
	return fmt.Sprintf("overlaps with report from %s: %s-%s",
		models.DateKey(o.With.SourceDate), o.With.StartLabel, o.With.EndLabel)
}

// Gap is uncovered chainage in [Start, End).
type Gap struct {
	Start int `json:"start_metres"`
	End   int `json:"end_metres"`
}

func (g Gap) Length() int { return g.End - g.Start }

// MergeRanges sorts by start and folds spans whose start is within tolerance of the
// running end. The result is sorted, non-overlapping, and stable under a second merge.
func MergeRanges(ranges []Range, tolerance int) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []Range{sorted[0]}
	for _, next := range sorted[1:] {
		cur := &merged[len(merged)-1]
		if next.Start <= cur.End+tolerance {
			if next.End > cur.End {
				cur.End = next.End
				cur.EndLabel = next.EndLabel
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// Overlaps reports whether a and b share interior chainage. Touching endpoints do not overlap.
func Overlaps(a, b Range) bool {
	return a.Start < b.End && b.Start < a.End
}

// DetectOverlaps returns every historical range overlapping the candidate.
func DetectOverlaps(candidate Range, history []Range) []Overlap {
	var out []Overlap
	for _, r := range history {
		if !Overlaps(candidate, r) {
			continue
		}
		out = append(out, Overlap{
			With:  r,
			Start: max(candidate.Start, r.Start),
			End:   min(candidate.End, r.End),
		})
	}
	return out
}

// lastCoveredEnd is the furthest end among merged ranges starting before pos, or 0.
func lastCoveredEnd(merged []Range, pos int) int {
	end := 0
	for _, r := range merged {
		if r.Start < pos && r.End > end {
			end = r.End
		}
	}
	return end
}

// DetectGap finds uncovered chainage between existing coverage and the candidate start.
// No gap is reported while nothing has been recorded yet.
func DetectGap(candidate Range, merged []Range, tolerance int) *Gap {
	if len(merged) == 0 {
		return nil
	}
	last := lastCoveredEnd(merged, candidate.Start)
	if candidate.Start > last+tolerance {
		return &Gap{Start: last, End: candidate.Start}
	}
	return nil
}

// SuggestNextStart is where the next segment would continue existing coverage.
func SuggestNextStart(merged []Range) int {
	end := 0
	for _, r := range merged {
		if r.End > end {
			end = r.End
		}
	}
	return end
}

// Status is the coverage picture for one candidate segment.
type Status struct {
	ActivityType   string    `json:"activity_type"`
	Candidate      Range     `json:"candidate"`
	Merged         []Range   `json:"merged"`
	Overlaps       []Overlap `json:"overlaps"`
	Gap            *Gap      `json:"gap"`
	SuggestedStart int       `json:"suggested_start_metres"`
}

func (s Status) HasFindings() bool {
	return len(s.Overlaps) > 0 || s.Gap != nil
}

// Analyze checks a candidate against the history of its activity type.
// history must already exclude the candidate's own submission date.
func Analyze(activityType string, candidate Range, history []Range, tolerance int) Status {
	merged := MergeRanges(history, tolerance)
	return Status{
		ActivityType:   activityType,
		Candidate:      candidate,
		Merged:         merged,
		Overlaps:       DetectOverlaps(candidate, history),
		Gap:            DetectGap(candidate, merged, tolerance),
		SuggestedStart: SuggestNextStart(merged),
	}
}

// AnalyzeSubmission is Analyze for a candidate that follows earlier drafts of the same
// activity in one submission. The drafts count as coverage for the gap check only; a gap
// can shrink or close but never appears where history alone shows none.
func AnalyzeSubmission(activityType string, candidate Range, history, earlier []Range, tolerance int) Status {
	s := Analyze(activityType, candidate, history, tolerance)
	if s.Gap == nil || len(earlier) == 0 {
		return s
	}
	covered := make([]Range, 0, len(history)+len(earlier))
	covered = append(covered, history...)
	covered = append(covered, earlier...)
	s.Gap = DetectGap(candidate, MergeRanges(covered, tolerance), tolerance)
	return s
}

// Draft is a segment entered in the current submission.
type Draft struct {
	ActivityType string
	Range        Range
}

// IntraOverlap is two drafts of the same activity in one submission overlapping each other.
type IntraOverlap struct {
	ActivityType string `json:"activity_type"`
	First        int    `json:"first_index"`
	Second       int    `json:"second_index"`
	Start        int    `json:"start_metres"`
	End          int    `json:"end_metres"`
}

// IntraSubmissionOverlaps compares every pair of drafts sharing an activity type.
func IntraSubmissionOverlaps(drafts []Draft) []IntraOverlap {
	var out []IntraOverlap
	for i := 0; i < len(drafts); i++ {
		for j := i + 1; j < len(drafts); j++ {
			a, b := drafts[i], drafts[j]
			if a.ActivityType != b.ActivityType || !Overlaps(a.Range, b.Range) {
				continue
			}
			out = append(out, IntraOverlap{
				ActivityType: a.ActivityType,
				First:        i,
				Second:       j,
				Start:        max(a.Range.Start, b.Range.Start),
				End:          min(a.Range.End, b.Range.End),
			})
		}
	}
	return out
}
