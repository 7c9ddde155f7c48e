package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/inspection_backend/chainage"
	"github.com/mmdatafocus/inspection_backend/coverage"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
)

type SegmentInput struct {
	ActivityType string `json:"activity_type" binding:"required"`
	StartKP      string `json:"start_kp" binding:"required"`
	EndKP        string `json:"end_kp" binding:"required"`
}

type ReportInput struct {
	ReportDate        string                     `json:"report_date" binding:"required"`
	InspectorName     string                     `json:"inspector_name" binding:"required"`
	Contractor        string                     `json:"contractor"`
	Foreman           string                     `json:"foreman"`
	Notes             string                     `json:"notes"`
	Segments          []SegmentInput             `json:"segments" binding:"dive"`
	ObservedLabour    []models.ObservedLabour    `json:"observed_labour"`
	ObservedEquipment []models.ObservedEquipment `json:"observed_equipment"`
	// Justifications maps a finding key to the operator's reason.
	Justifications map[string]string `json:"justifications"`
}

// CoverageResult is the coverage picture of a submission. Findings need justifications
// before the report can be saved.
type CoverageResult struct {
	Statuses      []coverage.Status       `json:"statuses"`
	IntraOverlaps []coverage.IntraOverlap `json:"intra_overlaps"`
	Findings      []coverage.Finding      `json:"findings"`
}

type ReportService struct {
	base
	settings *SettingsCache
}

type preparedReport struct {
	date     time.Time
	segments []models.Segment
}

func (s *ReportService) prepare(in ReportInput) (*preparedReport, error) {
	fields := map[string]string{}
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(in.ReportDate))
	if err != nil {
		fields["report_date"] = "expected YYYY-MM-DD"
	}
	if strings.TrimSpace(in.InspectorName) == "" {
		fields["inspector_name"] = "required"
	}

	segments := make([]models.Segment, 0, len(in.Segments))
	for i, seg := range in.Segments {
		activity := strings.TrimSpace(seg.ActivityType)
		if activity == "" {
			fields[fmt.Sprintf("segments[%d].activity_type", i)] = "required"
		}
		start, okStart := chainage.ParseKP(seg.StartKP)
		if !okStart {
			fields[fmt.Sprintf("segments[%d].start_kp", i)] = fmt.Sprintf("cannot parse %q", seg.StartKP)
		}
		end, okEnd := chainage.ParseKP(seg.EndKP)
		if !okEnd {
			fields[fmt.Sprintf("segments[%d].end_kp", i)] = fmt.Sprintf("cannot parse %q", seg.EndKP)
		}
		sg := models.Segment{
			ActivityType: activity,
			StartMetres:  start,
			EndMetres:    end,
			StartLabel:   chainage.FormatKP(start),
			EndLabel:     chainage.FormatKP(end),
			ReportDate:   date,
			Contractor:   in.Contractor,
			Foreman:      in.Foreman,
		}
		sg.Normalize()
		segments = append(segments, sg)
	}
	if len(fields) > 0 {
		return nil, &utils.ValidationError{Message: "invalid report", Fields: fields}
	}
	return &preparedReport{date: date, segments: segments}, nil
}

func (s *ReportService) analyze(ctx context.Context, p *preparedReport) (*CoverageResult, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	tol := settings.ToleranceMetres

	history := map[string][]coverage.Range{}
	earlier := map[string][]coverage.Range{}
	result := &CoverageResult{}
	var findings []coverage.Finding
	drafts := make([]coverage.Draft, 0, len(p.segments))

	for _, seg := range p.segments {
		hist, ok := history[seg.ActivityType]
		if !ok {
			date := p.date
			persisted, err := s.store.ListSegments(ctx, models.SegmentFilter{ActivityType: seg.ActivityType, ExcludeDate: &date})
			if err != nil {
				return nil, persistErr("list segments", err, nil, nil)
			}
			for _, ps := range persisted {
				hist = append(hist, coverage.FromSegment(ps))
			}
			history[seg.ActivityType] = hist
		}
		candidate := coverage.FromSegment(seg)
		status := coverage.AnalyzeSubmission(seg.ActivityType, candidate, hist, earlier[seg.ActivityType], tol)
		result.Statuses = append(result.Statuses, status)
		findings = append(findings, coverage.StatusFindings(status)...)
		drafts = append(drafts, coverage.Draft{ActivityType: seg.ActivityType, Range: candidate})
		earlier[seg.ActivityType] = append(earlier[seg.ActivityType], candidate)
	}

	result.IntraOverlaps = coverage.IntraSubmissionOverlaps(drafts)
	findings = append(findings, coverage.IntraFindings(result.IntraOverlaps)...)
	result.Findings = coverage.DedupeFindings(findings)
	return result, nil
}

// PreviewCoverage reports overlaps and gaps without saving anything.
func (s *ReportService) PreviewCoverage(ctx context.Context, in ReportInput) (*CoverageResult, error) {
	p, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	return s.analyze(ctx, p)
}

// SubmitReport saves a report once every coverage finding carries a justification.
func (s *ReportService) SubmitReport(ctx context.Context, in ReportInput) (*models.DailyReport, *CoverageResult, error) {
	p, err := s.prepare(in)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.analyze(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if err := coverage.RequireJustifications(result.Findings, in.Justifications); err != nil {
		return nil, result, err
	}

	for i := range in.ObservedLabour {
		in.ObservedLabour[i].ID, in.ObservedLabour[i].ReportId = 0, 0
	}
	for i := range in.ObservedEquipment {
		in.ObservedEquipment[i].ID, in.ObservedEquipment[i].ReportId = 0, 0
	}
	report := &models.DailyReport{
		ReportDate:        p.date,
		InspectorName:     strings.TrimSpace(in.InspectorName),
		Contractor:        strings.TrimSpace(in.Contractor),
		Foreman:           strings.TrimSpace(in.Foreman),
		Notes:             in.Notes,
		Segments:          p.segments,
		ObservedLabour:    in.ObservedLabour,
		ObservedEquipment: in.ObservedEquipment,
		CreatedBy:         utils.ActorFromContext(ctx),
	}
	for _, f := range result.Findings {
		report.Justifications = append(report.Justifications, models.CoverageJustification{
			FindingKey:    f.Key,
			Kind:          f.Kind,
			ActivityType:  f.ActivityType,
			StartMetres:   f.Start,
			EndMetres:     f.End,
			Justification: strings.TrimSpace(in.Justifications[f.Key]),
		})
	}

	var inserted bool
	err = s.inTx(ctx, func(st store.Store) error {
		if err := st.InsertReport(ctx, report); err != nil {
			return err
		}
		inserted = true
		audits := []*models.AuditRecord{
			newAudit(ctx, models.AuditEntityReport, report.ID, "status", "", "submitted",
				fmt.Sprintf("report for %s with %d segment(s)", models.DateKey(p.date), len(p.segments))),
		}
		for _, j := range report.Justifications {
			audits = append(audits, newAudit(ctx, models.AuditEntityReport, report.ID, "coverage_justification", "", j.FindingKey, j.Justification))
		}
		return st.InsertAudit(ctx, audits...)
	})
	if err != nil {
		var applied []int
		if inserted && !s.transactional() {
			applied = []int{report.ID}
		}
		return nil, result, persistErr("submit report", err, applied, nil)
	}

	if len(result.Findings) > 0 {
		keys := make([]string, 0, len(result.Findings))
		for _, f := range result.Findings {
			keys = append(keys, f.Key)
		}
		sort.Strings(keys)
		s.logger.WithFields(s.fields(ctx)).WithField("report_id", report.ID).WithField("findings", keys).
			Warn("report saved with justified coverage findings")
	}
	return report, result, nil
}

// GetReport loads a report with its segments, observations and justifications.
func (s *ReportService) GetReport(ctx context.Context, id int) (*models.DailyReport, error) {
	return s.store.GetReport(ctx, id)
}
