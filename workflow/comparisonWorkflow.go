package workflow

import (
	"context"

	"github.com/mmdatafocus/inspection_backend/matching"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/variance"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Comparison is one run of claimed against observed for a field log. It is never stored.
type Comparison struct {
	FieldLog  *models.FieldLogEntry `json:"field_log"`
	ReportIds []int                 `json:"report_ids"`
	Rows      []variance.Row        `json:"rows"`
	Summary   variance.Summary      `json:"summary"`
}

// Row finds a row by item type and key.
func (c *Comparison) Row(itemType models.DisputeType, key string) (variance.Row, bool) {
	for _, r := range c.Rows {
		if r.ItemType == itemType && r.Key == key {
			return r, true
		}
	}
	return variance.Row{}, false
}

type ComparisonService struct {
	base
	settings *SettingsCache
}

// CompareFieldLog matches a field log's claims against the inspector observations of the
// same day and contractor (and foreman when set), most severe variance first.
func (s *ComparisonService) CompareFieldLog(ctx context.Context, fieldLogId int) (*Comparison, error) {
	ctx, span := tracer.Start(ctx, "CompareFieldLog")
	defer span.End()
	span.SetAttributes(attribute.Int("field_log_id", fieldLogId))

	entry, err := s.store.GetFieldLog(ctx, fieldLogId)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	reports, err := s.store.ListObservations(ctx, models.ObservationFilter{
		Date:       entry.LogDate,
		Contractor: entry.Contractor,
		Foreman:    entry.Foreman,
	})
	if err != nil {
		span.RecordError(err)
		return nil, persistErr("list observations", err, nil, nil)
	}

	var observedLabour []models.ObservedLabour
	var observedEquipment []models.ObservedEquipment
	reportIds := make([]int, 0, len(reports))
	for _, r := range reports {
		reportIds = append(reportIds, r.ID)
		observedLabour = append(observedLabour, r.ObservedLabour...)
		observedEquipment = append(observedEquipment, r.ObservedEquipment...)
	}

	opts := variance.Options{Tolerance: decimal.NewNullDecimal(settings.HourTolerance), Rates: settings.Rates()}
	labour := variance.Compute(models.DisputeTypeLabour,
		matching.Match(matching.FromLabourEntries(entry.LabourEntries), matching.FromObservedLabour(observedLabour)), opts)
	equipment := variance.Compute(models.DisputeTypeEquipment,
		matching.Match(matching.FromEquipmentEntries(entry.EquipmentEntries), matching.FromObservedEquipment(observedEquipment)), opts)

	rows := append(labour, equipment...)
	variance.SortBySeverity(rows)

	return &Comparison{
		FieldLog:  entry,
		ReportIds: reportIds,
		Rows:      rows,
		Summary:   variance.Summarize(rows),
	}, nil
}
