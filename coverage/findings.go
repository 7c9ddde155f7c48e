package coverage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmdatafocus/inspection_backend/chainage"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
)

// Finding is a non-fatal integrity warning that needs a justification before the
// containing report can be saved.
type Finding struct {
	Key          string             `json:"key"`
	Kind         models.FindingKind `json:"kind"`
	ActivityType string             `json:"activity_type"`
	Start        int                `json:"start_metres"`
	End          int                `json:"end_metres"`
	Message      string             `json:"message"`
}

func FindingKey(kind models.FindingKind, activityType string, start, end int) string {
	return fmt.Sprintf("%s:%s:%d-%d", kind, activityType, start, end)
}

func newFinding(kind models.FindingKind, activityType string, start, end int, message string) Finding {
	return Finding{
		Key:          FindingKey(kind, activityType, start, end),
		Kind:         kind,
		ActivityType: activityType,
		Start:        start,
		End:          end,
		Message:      message,
	}
}

// StatusFindings lists the overlaps and gap of one analysis as findings.
func StatusFindings(s Status) []Finding {
	var out []Finding
	for _, o := range s.Overlaps {
		out = append(out, newFinding(models.FindingKindOverlap, s.ActivityType, o.Start, o.End,
			fmt.Sprintf("%s overlap of %d m (%s-%s) %s", s.ActivityType, o.Length(),
				chainage.FormatKP(o.Start), chainage.FormatKP(o.End), o.Message())))
	}
	if s.Gap != nil {
		out = append(out, newFinding(models.FindingKindGap, s.ActivityType, s.Gap.Start, s.Gap.End,
			fmt.Sprintf("%s gap of %d m between %s and %s", s.ActivityType, s.Gap.Length(),
				chainage.FormatKP(s.Gap.Start), chainage.FormatKP(s.Gap.End))))
	}
	return out
}

// IntraFindings lists overlaps between drafts of one submission as findings.
func IntraFindings(overlaps []IntraOverlap) []Finding {
	out := make([]Finding, 0, len(overlaps))
	for _, o := range overlaps {
		out = append(out, newFinding(models.FindingKindOverlap, o.ActivityType, o.Start, o.End,
			fmt.Sprintf("%s entries %d and %d overlap between %s and %s", o.ActivityType, o.First+1, o.Second+1,
				chainage.FormatKP(o.Start), chainage.FormatKP(o.End))))
	}
	return out
}

// DedupeFindings keeps the first finding per key, ordered by key.
func DedupeFindings(findings []Finding) []Finding {
	seen := map[string]bool{}
	var out []Finding
	for _, f := range findings {
		if seen[f.Key] {
			continue
		}
		seen[f.Key] = true
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RequireJustifications fails with a ValidationError naming every finding that has no
// non-empty justification.
func RequireJustifications(findings []Finding, justifications map[string]string) error {
	missing := map[string]string{}
	for _, f := range findings {
		if strings.TrimSpace(justifications[f.Key]) == "" {
			missing[f.Key] = "justification required: " + f.Message
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &utils.ValidationError{
		Message: fmt.Sprintf("%d coverage finding(s) need a justification", len(missing)),
		Fields:  missing,
	}
}
