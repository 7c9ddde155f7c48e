package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegritySweep_CleanInvoice(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)
	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-1", ConfirmedTotal: confirmed("2550.50")})
	require.NoError(t, err)

	reports, err := env.engine.Integrity.RunProject(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestIntegritySweep_DetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)
	res, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-1", ConfirmedTotal: confirmed("2550.50")})
	require.NoError(t, err)

	cost := dec("0")
	require.NoError(t, env.store.UpdateFieldLog(env.ctx, ids[0], models.FieldLogPatch{TotalEquipmentCost: &cost}))

	reports, err := env.engine.Integrity.RunProject(env.ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, models.IntegrityCheckInvoiceTotal, reports[0].CheckType)
	assert.Equal(t, res.Invoice.ID, reports[0].EntityId)
	assert.Equal(t, "corr-1", reports[0].CorrelationId)

	stored, err := env.store.ListIntegrityReports(env.ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestIntegritySweep_StaleBatch(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)
	env.store.FailOn("BatchUpdateFieldLogs", 1, assert.AnError)
	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-9", ConfirmedTotal: confirmed("2550.50")})
	require.True(t, utils.IsPartial(err))
	env.store.ClearFaults()

	// not stale yet
	reports, err := env.engine.Integrity.RunProject(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)

	env.clock.Advance(time.Hour)
	reports, err = env.engine.Integrity.RunProject(env.ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, models.IntegrityCheckStaleBatch, reports[0].CheckType)
	assert.Equal(t, models.AuditEntityBillingBatch, reports[0].EntityType)
}

func TestIntegritySweep_StaleBatchReportedOnceUntilResolved(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)
	env.store.FailOn("BatchUpdateFieldLogs", 1, assert.AnError)
	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-9", ConfirmedTotal: confirmed("2550.50")})
	require.True(t, utils.IsPartial(err))
	env.store.ClearFaults()

	env.clock.Advance(time.Hour)
	reports, err := env.engine.Integrity.RunProject(env.ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	env.clock.Advance(time.Hour)
	reports, err = env.engine.Integrity.RunProject(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)

	stored, err := env.store.ListIntegrityReports(env.ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Open())

	batches, err := env.store.ListBillingBatches(env.ctx, models.BillingBatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	_, err = env.engine.Billing.ResumeBatch(env.ctx, batches[0].ID)
	require.NoError(t, err)

	reports, err = env.engine.Integrity.RunProject(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)
	stored, err = env.store.ListIntegrityReports(env.ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Open())
}

func TestIntegritySweep_RunAll(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)
	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-1", ConfirmedTotal: confirmed("2550.50")})
	require.NoError(t, err)
	cost := dec("1")
	require.NoError(t, env.store.UpdateFieldLog(env.ctx, ids[1], models.FieldLogPatch{TotalLabourCost: &cost}))

	found, err := env.engine.Integrity.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, found)
}
