package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const finalizeLockTTL = 30 * time.Second

type FinalizeRequest struct {
	EntryIds      []int
	InvoiceNumber string
	Notes         string
	// ConfirmedTotal is the grand total the operator saw and accepted.
	ConfirmedTotal *decimal.Decimal
	// VendorName overrides the project's vendor name on the invoice.
	VendorName string
}

type FinalizeResult struct {
	Batch   *models.BillingBatch    `json:"batch"`
	Invoice *models.Invoice         `json:"invoice"`
	Entries []*models.FieldLogEntry `json:"entries"`
}

// lock takes the per-project finalize lock when Redis is configured. A lock held by
// someone else rejects the call; an unreachable Redis only logs a warning.
func (b *BillingManager) lock(ctx context.Context) (release func(), err error) {
	locker := b.locker
	if locker == nil {
		locker = config.GetRedisLock()
	}
	if locker == nil {
		return func() {}, nil
	}
	projectId, _ := utils.GetProjectIdFromContext(ctx)
	key := "lock:finalize:" + projectId
	l, err := locker.Obtain(ctx, key, finalizeLockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, utils.NewValidationError("another invoice finalize is in progress for this project; try again shortly")
	}
	if err != nil {
		config.LogError(b.logger, "workflow", "FinalizeBatch", "obtain finalize lock, continuing without it", key, err)
		return func() {}, nil
	}
	return func() { _ = l.Release(context.WithoutCancel(ctx)) }, nil
}

// FinalizeBatch closes the selected field logs into one invoice. The stored total must equal
// the confirmed total to the cent. Every step is recorded on a BillingBatch, so a failure
// part way is reported as partial and can be completed with ResumeBatch.
func (b *BillingManager) FinalizeBatch(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	ctx, span := tracer.Start(ctx, "FinalizeBatch")
	defer span.End()

	number := strings.TrimSpace(req.InvoiceNumber)
	fields := map[string]string{}
	if number == "" {
		fields["invoice_number"] = "is required"
	}
	if req.ConfirmedTotal == nil {
		fields["confirmed_total"] = "is required"
	}
	if len(uniqueIds(req.EntryIds)) == 0 {
		fields["entry_ids"] = "is required"
	}
	if len(fields) > 0 {
		return nil, &utils.ValidationError{Message: "invalid finalize request", Fields: fields}
	}
	span.SetAttributes(attribute.String("invoice_number", number), attribute.Int("entries", len(req.EntryIds)))

	release, err := b.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	preview, err := b.PreviewBatch(ctx, req.EntryIds)
	if err != nil {
		return nil, err
	}
	if !preview.GrandTotal.Round(2).Equal(req.ConfirmedTotal.Round(2)) {
		return nil, &utils.ValidationError{
			Message: "the stored total changed since it was confirmed",
			Fields: map[string]string{
				"confirmed_total": fmt.Sprintf("confirmed %s, stored %s", utils.FormatMoney(*req.ConfirmedTotal), utils.FormatMoney(preview.GrandTotal)),
			},
		}
	}
	if err := b.checkInvoiceNumber(ctx, number); err != nil {
		return nil, err
	}

	vendor := strings.TrimSpace(req.VendorName)
	if vendor == "" {
		settings, err := b.settings.Get(ctx)
		if err != nil {
			return nil, err
		}
		vendor = settings.Project.VendorName
	}

	ids := make([]int, 0, len(preview.Entries))
	for _, e := range preview.Entries {
		ids = append(ids, e.ID)
	}
	batch := &models.BillingBatch{
		BatchKey:      uuid.NewString(),
		InvoiceNumber: number,
		VendorName:    vendor,
		Notes:         req.Notes,
		EntryIds:      ids,
		GrandTotal:    preview.GrandTotal,
		Status:        models.BillingBatchStatusStarted,
		Actor:         utils.ActorFromContext(ctx),
	}
	if err := b.store.InsertBillingBatch(ctx, batch); err != nil {
		return nil, persistErr("start billing batch", err, nil, nil)
	}
	span.SetAttributes(attribute.Int("batch_id", batch.ID))

	return b.run(ctx, batch, preview.Entries)
}

func (b *BillingManager) checkInvoiceNumber(ctx context.Context, number string) error {
	invoices, err := b.store.ListInvoices(ctx)
	if err != nil {
		return persistErr("list invoices", err, nil, nil)
	}
	for _, inv := range invoices {
		if strings.EqualFold(inv.InvoiceNumber, number) {
			return &utils.ValidationError{
				Message: "invoice number already used",
				Fields:  map[string]string{"invoice_number": number},
			}
		}
	}
	return nil
}

// ResumeBatch completes a PARTIAL or interrupted batch. A SUCCEEDED batch is returned as is.
func (b *BillingManager) ResumeBatch(ctx context.Context, batchId int) (*FinalizeResult, error) {
	ctx, span := tracer.Start(ctx, "ResumeBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch_id", batchId))

	batch, err := b.store.GetBillingBatch(ctx, batchId)
	if err != nil {
		return nil, err
	}
	switch batch.Status {
	case models.BillingBatchStatusSucceeded:
		return b.result(ctx, batch)
	case models.BillingBatchStatusFailed:
		return nil, utils.NewValidationError(fmt.Sprintf("billing batch %d failed with nothing applied; finalize the entries again", batchId))
	}

	release, err := b.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	entries, err := b.loadEntries(ctx, b.store, batch.EntryIds)
	if err != nil {
		return nil, err
	}
	applied := make(map[int]bool, len(batch.AppliedIds))
	for _, id := range batch.AppliedIds {
		applied[id] = true
	}
	fields := map[string]string{}
	for _, e := range entries {
		if applied[e.ID] || e.BillingStatus == models.BillingStatusInvoiced {
			if e.InvoiceId == nil || batch.InvoiceId == nil || *e.InvoiceId != *batch.InvoiceId {
				fields[fmt.Sprintf("%d", e.ID)] = "is invoiced on a different invoice"
			}
			continue
		}
		if !billable(e.BillingStatus) {
			fields[fmt.Sprintf("%d", e.ID)] = fmt.Sprintf("is %s; only matched or ready field logs can be invoiced", e.BillingStatus)
		}
	}
	if len(fields) > 0 {
		return nil, &utils.ValidationError{Message: "billing batch cannot be resumed", Fields: fields}
	}
	if total := summarizeBatch(entries).GrandTotal; !total.Round(2).Equal(batch.GrandTotal.Round(2)) {
		return nil, utils.NewValidationError(fmt.Sprintf("stored costs changed since batch %d started: %s now, %s confirmed",
			batchId, utils.FormatMoney(total), utils.FormatMoney(batch.GrandTotal)))
	}

	b.logger.WithFields(b.fields(ctx)).WithFields(logrus.Fields{
		"batch_id": batchId,
		"status":   batch.Status,
		"applied":  batch.AppliedIds,
	}).Info("resuming billing batch")
	return b.run(ctx, batch, entries)
}

// run applies the batch and settles its status. With a transactional store every step
// commits together; otherwise each step is recorded as it lands.
func (b *BillingManager) run(ctx context.Context, batch *models.BillingBatch, entries []*models.FieldLogEntry) (*FinalizeResult, error) {
	working := *batch
	var invoice *models.Invoice
	err := b.inTx(ctx, func(st store.Store) error {
		if b.transactional() {
			working = *batch
		}
		var err error
		invoice, err = b.applyBatch(ctx, st, &working, entries)
		return err
	})
	if err == nil {
		*batch = working
		b.logger.WithFields(b.fields(ctx)).WithFields(logrus.Fields{
			"batch_id":       batch.ID,
			"invoice_id":     invoice.ID,
			"invoice_number": invoice.InvoiceNumber,
			"grand_total":    utils.FormatMoney(batch.GrandTotal),
		}).Info("invoice finalized")
		return b.result(ctx, batch)
	}
	if utils.IsValidation(err) {
		b.settle(ctx, batch, models.BillingBatchStatusFailed, err)
		return nil, err
	}

	if b.transactional() {
		working = *batch
	}
	partial := working.InvoiceId != nil || len(working.AppliedIds) > 0
	status := models.BillingBatchStatusFailed
	if partial {
		status = models.BillingBatchStatusPartial
	}
	working.AppliedIds = append([]int(nil), working.AppliedIds...)
	*batch = working
	b.settle(ctx, batch, status, err)

	b.logger.WithFields(b.fields(ctx)).WithFields(logrus.Fields{
		"batch_id":   batch.ID,
		"status":     status,
		"invoice_id": batch.InvoiceId,
		"applied":    batch.AppliedIds,
	}).Warn("invoice finalize did not complete: " + err.Error())
	return nil, &utils.PersistenceError{
		Op:      fmt.Sprintf("finalize billing batch %d", batch.ID),
		Partial: partial,
		Applied: batch.AppliedIds,
		Pending: pendingIds(batch.EntryIds, batch.AppliedIds),
		Err:     err,
	}
}

// settle records the final status of a failed run outside any transaction.
func (b *BillingManager) settle(ctx context.Context, batch *models.BillingBatch, status models.BillingBatchStatus, cause error) {
	msg := cause.Error()
	patch := models.BillingBatchPatch{Status: &status, LastError: &msg, AppliedIds: batch.AppliedIds, InvoiceId: batch.InvoiceId}
	if err := b.store.UpdateBillingBatch(ctx, batch.ID, patch); err != nil {
		config.LogError(b.logger, "workflow", "FinalizeBatch", "record billing batch status", batch.ID, err)
		return
	}
	patch.Apply(batch)
}

// applyBatch runs the finalize steps that are still outstanding on batch:
// create the invoice, invoice the pending entries, write the audits.
func (b *BillingManager) applyBatch(ctx context.Context, st store.Store, batch *models.BillingBatch, entries []*models.FieldLogEntry) (*models.Invoice, error) {
	invoice, err := b.ensureInvoice(ctx, st, batch)
	if err != nil {
		return nil, err
	}

	pending := pendingIds(batch.EntryIds, batch.AppliedIds)
	if len(pending) > 0 {
		now := b.now()
		invoiced := models.BillingStatusInvoiced
		invoiceId := invoice.ID
		number := invoice.InvoiceNumber
		applied, err := st.BatchUpdateFieldLogs(ctx, pending, models.FieldLogPatch{
			BillingStatus: &invoiced,
			InvoiceId:     &invoiceId,
			InvoiceNumber: &number,
			InvoicedAt:    &now,
		})
		batch.AppliedIds = append(batch.AppliedIds, applied...)
		if err == nil && len(applied) < len(pending) {
			err = fmt.Errorf("field logs %v were not updated", pendingIds(pending, applied))
		}
		if err != nil {
			return nil, err
		}
	}
	updated := models.BillingBatchStatusEntriesUpdated
	if err := st.UpdateBillingBatch(ctx, batch.ID, models.BillingBatchPatch{Status: &updated, AppliedIds: batch.AppliedIds}); err != nil {
		return nil, err
	}
	batch.Status = updated

	audits, err := b.finalizeAudits(ctx, st, batch, invoice, entries)
	if err != nil {
		return nil, err
	}
	if len(audits) > 0 {
		if err := st.InsertAudit(ctx, audits...); err != nil {
			return nil, err
		}
	}

	succeeded := models.BillingBatchStatusSucceeded
	if err := st.UpdateBillingBatch(ctx, batch.ID, models.BillingBatchPatch{Status: &succeeded}); err != nil {
		return nil, err
	}
	batch.Status = succeeded
	return invoice, nil
}

// ensureInvoice creates the batch's invoice once. An invoice already holding the
// number is adopted only when it belongs to this batch.
func (b *BillingManager) ensureInvoice(ctx context.Context, st store.Store, batch *models.BillingBatch) (*models.Invoice, error) {
	if batch.InvoiceId != nil {
		return st.GetInvoice(ctx, *batch.InvoiceId)
	}
	invoice := &models.Invoice{
		InvoiceNumber: batch.InvoiceNumber,
		VendorName:    batch.VendorName,
		TotalAmount:   batch.GrandTotal,
		Status:        models.InvoiceStatusIssued,
		Notes:         batch.Notes,
		EntryIds:      append([]int(nil), batch.EntryIds...),
		BatchId:       batch.ID,
		CreatedBy:     batch.Actor,
	}
	if err := st.InsertInvoice(ctx, invoice); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		existing, err := b.invoiceByNumber(ctx, st, batch.InvoiceNumber)
		if err != nil {
			return nil, err
		}
		if existing == nil || existing.BatchId != batch.ID {
			return nil, &utils.ValidationError{
				Message: "invoice number already used",
				Fields:  map[string]string{"invoice_number": batch.InvoiceNumber},
			}
		}
		invoice = existing
	}
	id := invoice.ID
	created := models.BillingBatchStatusInvoiceCreated
	batch.InvoiceId = &id
	if err := st.UpdateBillingBatch(ctx, batch.ID, models.BillingBatchPatch{Status: &created, InvoiceId: &id}); err != nil {
		return nil, err
	}
	batch.Status = created
	return invoice, nil
}

func (b *BillingManager) invoiceByNumber(ctx context.Context, st store.Store, number string) (*models.Invoice, error) {
	invoices, err := st.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if inv.InvoiceNumber == number {
			return inv, nil
		}
	}
	return nil, nil
}

// finalizeAudits builds one audit per entry plus the invoice summary, skipping any
// already written by an earlier attempt of the same batch.
func (b *BillingManager) finalizeAudits(ctx context.Context, st store.Store, batch *models.BillingBatch, invoice *models.Invoice, entries []*models.FieldLogEntry) ([]*models.AuditRecord, error) {
	invoiceId := invoice.ID
	done, err := st.ListAudit(ctx, models.AuditFilter{EntityType: models.AuditEntityInvoice, EntityId: &invoiceId, FieldName: "status"})
	if err != nil {
		return nil, err
	}
	if len(done) > 0 {
		return nil, nil
	}
	reason := "entry closed; assigned to Invoice #" + invoice.InvoiceNumber
	audits := make([]*models.AuditRecord, 0, len(entries)+1)
	for _, e := range entries {
		old := string(e.BillingStatus)
		if old == string(models.BillingStatusInvoiced) {
			old = ""
		}
		audits = append(audits, newAudit(ctx, models.AuditEntityFieldLog, e.ID, "billing_status",
			old, string(models.BillingStatusInvoiced), reason))
	}
	audits = append(audits, newAudit(ctx, models.AuditEntityInvoice, invoice.ID, "status", "", string(invoice.Status),
		fmt.Sprintf("finalized %d entries, total %s (batch %d)", len(batch.EntryIds), utils.FormatMoney(batch.GrandTotal), batch.ID)))
	return audits, nil
}

func (b *BillingManager) result(ctx context.Context, batch *models.BillingBatch) (*FinalizeResult, error) {
	res := &FinalizeResult{Batch: batch}
	if batch.InvoiceId != nil {
		invoice, err := b.store.GetInvoice(ctx, *batch.InvoiceId)
		if err != nil {
			return nil, err
		}
		res.Invoice = invoice
	}
	entries, err := b.loadEntries(ctx, b.store, batch.EntryIds)
	if err != nil {
		return nil, err
	}
	res.Entries = entries
	return res, nil
}
