package workflow

import (
	"testing"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (env *testEnv) billableEntries(t *testing.T) []int {
	t.Helper()
	a := env.recordFieldLog(t, "850.25", "1200.10", models.BillingStatusMatched)
	b := env.recordFieldLog(t, "400.00", "0.15", models.BillingStatusReadyForBilling)
	c := env.recordFieldLog(t, "99.99", "0.01", models.BillingStatusMatched)
	return []int{a.ID, b.ID, c.ID}
}

func confirmed(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func TestFinalizeBatch(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.engine.Settings.Save(env.ctx, &models.ProjectSettings{VendorName: "Acme Pipeline Ltd"}))
	ids := env.billableEntries(t)

	preview, err := env.engine.Billing.PreviewBatch(env.ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, "2550.50", preview.GrandTotal.StringFixed(2))

	res, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{
		EntryIds:       ids,
		InvoiceNumber:  " INV-1001 ",
		Notes:          "June week 1",
		ConfirmedTotal: &preview.GrandTotal,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, "INV-1001", res.Invoice.InvoiceNumber)
	assert.Equal(t, "Acme Pipeline Ltd", res.Invoice.VendorName)
	assert.True(t, res.Invoice.TotalAmount.Equal(preview.GrandTotal))
	assert.Equal(t, models.BillingBatchStatusSucceeded, res.Batch.Status)
	assert.Nil(t, res.Batch.LastError)

	for _, e := range res.Entries {
		assert.Equal(t, models.BillingStatusInvoiced, e.BillingStatus)
		require.NotNil(t, e.InvoiceId)
		assert.Equal(t, res.Invoice.ID, *e.InvoiceId)
		assert.Equal(t, "INV-1001", e.InvoiceNumber)
		assert.NotNil(t, e.InvoicedAt)
	}

	active, err := env.engine.Billing.ListActive(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	closed := env.audits(t, models.AuditFilter{EntityType: models.AuditEntityFieldLog, FieldName: "billing_status"})
	var assigned int
	for _, a := range closed {
		if a.NewValue == string(models.BillingStatusInvoiced) {
			assigned++
			assert.Equal(t, "entry closed; assigned to Invoice #INV-1001", a.Reason)
		}
	}
	assert.Equal(t, 3, assigned)
	assert.Len(t, env.audits(t, models.AuditFilter{EntityType: models.AuditEntityInvoice}), 1)
}

func TestFinalizeBatch_Validation(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)

	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, ConfirmedTotal: confirmed("2550.50")})
	var ve *utils.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "invoice_number")

	_, err = env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-1"})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "confirmed_total")

	// a total off by one cent is rejected
	_, err = env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-1", ConfirmedTotal: confirmed("2550.49")})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "confirmed_total")

	open := env.recordFieldLog(t, "10", "0", models.BillingStatusOpen)
	_, err = env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: []int{open.ID}, InvoiceNumber: "INV-1", ConfirmedTotal: confirmed("10")})
	assert.True(t, utils.IsValidation(err))

	invoices, err := env.store.ListInvoices(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, invoices)
	batches, err := env.store.ListBillingBatches(env.ctx, models.BillingBatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestFinalizeBatch_DuplicateInvoiceNumber(t *testing.T) {
	env := newTestEnv(t)
	first := env.recordFieldLog(t, "10", "0", models.BillingStatusMatched)
	second := env.recordFieldLog(t, "20", "0", models.BillingStatusMatched)

	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: []int{first.ID}, InvoiceNumber: "INV-7", ConfirmedTotal: confirmed("10")})
	require.NoError(t, err)
	_, err = env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: []int{second.ID}, InvoiceNumber: "inv-7", ConfirmedTotal: confirmed("20")})
	assert.True(t, utils.IsValidation(err))
	assert.Equal(t, models.BillingStatusMatched, env.fieldLog(t, second.ID).BillingStatus)
}

func TestFinalizeBatch_PartialThenResume(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)
	env.store.FailOn("BatchUpdateFieldLogs", 1, assert.AnError)

	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-2001", ConfirmedTotal: confirmed("2550.50")})
	var pe *utils.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Partial)
	assert.Equal(t, []int{ids[0]}, pe.Applied)
	assert.Equal(t, ids[1:], pe.Pending)

	batches, err := env.store.ListBillingBatches(env.ctx, models.BillingBatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	batch := batches[0]
	assert.Equal(t, models.BillingBatchStatusPartial, batch.Status)
	require.NotNil(t, batch.InvoiceId)
	require.NotNil(t, batch.LastError)
	assert.Equal(t, []int{ids[0]}, batch.AppliedIds)
	assert.Equal(t, models.BillingStatusInvoiced, env.fieldLog(t, ids[0]).BillingStatus)
	assert.Equal(t, models.BillingStatusReadyForBilling, env.fieldLog(t, ids[1]).BillingStatus)

	env.store.ClearFaults()
	res, err := env.engine.Billing.ResumeBatch(env.ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillingBatchStatusSucceeded, res.Batch.Status)
	for _, e := range res.Entries {
		assert.Equal(t, models.BillingStatusInvoiced, e.BillingStatus)
		assert.Equal(t, *batch.InvoiceId, *e.InvoiceId)
	}

	invoices, err := env.store.ListInvoices(env.ctx)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)

	// resuming a finished batch changes nothing
	again, err := env.engine.Billing.ResumeBatch(env.ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Invoice.ID, again.Invoice.ID)
	assert.Len(t, env.audits(t, models.AuditFilter{EntityType: models.AuditEntityInvoice}), 1)
}

func TestFinalizeBatch_AuditFailureResumes(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)
	env.store.FailOn("InsertAudit", 0, assert.AnError)

	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-3001", ConfirmedTotal: confirmed("2550.50")})
	require.Error(t, err)
	assert.True(t, utils.IsPartial(err))

	batches, err := env.store.ListBillingBatches(env.ctx, models.BillingBatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, models.BillingBatchStatusPartial, batches[0].Status)
	assert.ElementsMatch(t, ids, batches[0].AppliedIds)

	env.store.ClearFaults()
	res, err := env.engine.Billing.ResumeBatch(env.ctx, batches[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillingBatchStatusSucceeded, res.Batch.Status)
	assert.Len(t, env.audits(t, models.AuditFilter{EntityType: models.AuditEntityInvoice}), 1)
}

func TestFinalizeBatch_NothingAppliedFails(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)
	env.store.FailOn("InsertInvoice", 0, assert.AnError)

	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-4001", ConfirmedTotal: confirmed("2550.50")})
	var pe *utils.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Partial)

	batches, err := env.store.ListBillingBatches(env.ctx, models.BillingBatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, models.BillingBatchStatusFailed, batches[0].Status)

	env.store.ClearFaults()
	_, err = env.engine.Billing.ResumeBatch(env.ctx, batches[0].ID)
	assert.True(t, utils.IsValidation(err))
	for _, id := range ids {
		assert.NotEqual(t, models.BillingStatusInvoiced, env.fieldLog(t, id).BillingStatus)
	}
}

func TestResumeBatch_RejectsChangedCosts(t *testing.T) {
	env := newTestEnv(t)
	ids := env.billableEntries(t)
	env.store.FailOn("BatchUpdateFieldLogs", 1, assert.AnError)
	_, err := env.engine.Billing.FinalizeBatch(env.ctx, FinalizeRequest{EntryIds: ids, InvoiceNumber: "INV-5001", ConfirmedTotal: confirmed("2550.50")})
	require.Error(t, err)
	env.store.ClearFaults()

	cost := dec("1.00")
	require.NoError(t, env.store.UpdateFieldLog(env.ctx, ids[2], models.FieldLogPatch{TotalLabourCost: &cost}))

	batches, err := env.store.ListBillingBatches(env.ctx, models.BillingBatchFilter{})
	require.NoError(t, err)
	_, err = env.engine.Billing.ResumeBatch(env.ctx, batches[0].ID)
	assert.True(t, utils.IsValidation(err))
}
