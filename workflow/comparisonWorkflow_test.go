package workflow

import (
	"testing"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/mmdatafocus/inspection_backend/variance"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedComparison stores one inspector report and one field log for 2024-06-01.
func seedComparison(t *testing.T, env *testEnv) *models.FieldLogEntry {
	t.Helper()
	_, _, err := env.engine.Reports.SubmitReport(env.ctx, ReportInput{
		ReportDate:    "2024-06-01",
		InspectorName: "Dana Inspector",
		Contractor:    "Acme Pipeline",
		Foreman:       "Lee",
		ObservedLabour: []models.ObservedLabour{
			{Name: "SMITH, JOHN", Classification: "Operator", TotalHours: decimal.NewNullDecimal(dec("8"))},
		},
		ObservedEquipment: []models.ObservedEquipment{
			{TypeOrId: "EXCAVATOR", RegularHours: dec("6"), OvertimeHours: dec("2")},
			{TypeOrId: "DOZER D6", TotalHours: decimal.NewNullDecimal(dec("4"))},
		},
	})
	require.NoError(t, err)

	e, err := env.engine.Billing.RecordFieldLog(env.ctx, &models.FieldLogEntry{
		LogDate:    day("2024-06-01"),
		Contractor: "Acme Pipeline",
		Foreman:    "Lee",
		LabourEntries: []models.LabourEntry{
			{Name: "J. Smith", Classification: "Operator", RegularHours: dec("8"), OvertimeHours: dec("2"), Rate: dec("85")},
			{Name: "Mike Jones", Classification: "Labourer", RegularHours: dec("5"), Rate: dec("70")},
		},
		EquipmentEntries: []models.EquipmentEntry{
			{TypeOrId: "Excavator 320", Hours: dec("8"), Rate: dec("150")},
		},
	})
	require.NoError(t, err)
	return e
}

func TestCompareFieldLog(t *testing.T) {
	env := newTestEnv(t)
	entry := seedComparison(t, env)
	assert.True(t, entry.TotalLabourCost.Equal(dec("1200")), entry.TotalLabourCost.String())
	assert.True(t, entry.TotalEquipmentCost.Equal(dec("1200")), entry.TotalEquipmentCost.String())

	cmp, err := env.engine.Compare.CompareFieldLog(env.ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, cmp.Rows, 4)
	assert.Len(t, cmp.ReportIds, 1)

	// most severe first
	assert.Equal(t, "Mike Jones", cmp.Rows[0].Key)
	assert.Equal(t, variance.StatusNotFound, cmp.Rows[0].Status)
	assert.True(t, cmp.Rows[0].VarianceCost.Equal(dec("350")))

	assert.Equal(t, "DOZER D6", cmp.Rows[1].Key)
	assert.Equal(t, variance.StatusNotBilled, cmp.Rows[1].Status)
	assert.True(t, cmp.Rows[1].VarianceCost.IsZero())

	smith, ok := cmp.Row(models.DisputeTypeLabour, "J. Smith")
	require.True(t, ok)
	assert.Equal(t, "SMITH, JOHN", smith.ObservedKey)
	assert.Equal(t, variance.StatusOver, smith.Status)
	assert.True(t, smith.Variance.Equal(dec("2")))
	assert.True(t, smith.VarianceCost.Equal(dec("170")))

	excavator, ok := cmp.Row(models.DisputeTypeEquipment, "Excavator 320")
	require.True(t, ok)
	assert.Equal(t, variance.StatusMatch, excavator.Status)

	assert.True(t, cmp.Summary.VarianceCost.Equal(dec("520")))
}

func TestCompareFieldLog_RateFallsBackToProjectTable(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.engine.Settings.Save(env.ctx, &models.ProjectSettings{
		LabourRates: []models.RateEntry{{Key: "operator", Rate: dec("90")}},
	}))
	_, _, err := env.engine.Reports.SubmitReport(env.ctx, ReportInput{
		ReportDate:     "2024-06-01",
		InspectorName:  "Dana Inspector",
		Contractor:     "Acme Pipeline",
		ObservedLabour: []models.ObservedLabour{{Name: "SMITH, JOHN", RegularHours: dec("8")}},
	})
	require.NoError(t, err)
	e, err := env.engine.Billing.RecordFieldLog(env.ctx, &models.FieldLogEntry{
		LogDate:       day("2024-06-01"),
		Contractor:    "Acme Pipeline",
		LabourEntries: []models.LabourEntry{{Name: "J. SMITH", Classification: "Operator", RegularHours: dec("10")}},
	})
	require.NoError(t, err)

	cmp, err := env.engine.Compare.CompareFieldLog(env.ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, cmp.Rows, 1)
	assert.True(t, cmp.Rows[0].Rate.Equal(dec("90")))
	assert.True(t, cmp.Rows[0].VarianceCost.Equal(dec("180")))
}

func TestCompareFieldLog_ZeroHourToleranceOverride(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.engine.Settings.Save(env.ctx, &models.ProjectSettings{
		HourTolerance: decimal.NewNullDecimal(decimal.Zero),
	}))
	_, _, err := env.engine.Reports.SubmitReport(env.ctx, ReportInput{
		ReportDate:     "2024-06-01",
		InspectorName:  "Dana Inspector",
		Contractor:     "Acme Pipeline",
		ObservedLabour: []models.ObservedLabour{{Name: "SMITH, JOHN", RegularHours: dec("8")}},
	})
	require.NoError(t, err)
	e, err := env.engine.Billing.RecordFieldLog(env.ctx, &models.FieldLogEntry{
		LogDate:       day("2024-06-01"),
		Contractor:    "Acme Pipeline",
		LabourEntries: []models.LabourEntry{{Name: "J. SMITH", Classification: "Operator", RegularHours: dec("8.04"), Rate: dec("50")}},
	})
	require.NoError(t, err)

	cmp, err := env.engine.Compare.CompareFieldLog(env.ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, cmp.Rows, 1)
	assert.Equal(t, variance.StatusOver, cmp.Rows[0].Status)
	assert.True(t, cmp.Rows[0].VarianceCost.Equal(dec("2")), cmp.Rows[0].VarianceCost.String())
}

func TestCompareFieldLog_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Compare.CompareFieldLog(env.ctx, 404)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}
