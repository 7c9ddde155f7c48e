package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// IntegritySweep looks for drift between invoices, their field logs and the finalize log.
// It only reports; nothing is repaired.
type IntegritySweep struct {
	base
	staleAfter time.Duration
}

var openBatchStatuses = []models.BillingBatchStatus{
	models.BillingBatchStatusStarted,
	models.BillingBatchStatusInvoiceCreated,
	models.BillingBatchStatusEntriesUpdated,
	models.BillingBatchStatusPartial,
}

// reportKey identifies one problem across sweeps.
type reportKey struct {
	check  models.IntegrityCheckType
	entity models.AuditEntityType
	id     int
}

func keyOf(r *models.IntegrityReport) reportKey {
	return reportKey{check: r.CheckType, entity: r.EntityType, id: r.EntityId}
}

// RunProject checks the project in ctx and stores what it finds. A problem that is
// already reported and still open is not reported again; open reports whose problem
// is gone are marked resolved. Only new reports are returned.
func (s *IntegritySweep) RunProject(ctx context.Context) ([]*models.IntegrityReport, error) {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	var reports []*models.IntegrityReport
	add := func(check models.IntegrityCheckType, entity models.AuditEntityType, id int, details string) {
		reports = append(reports, &models.IntegrityReport{
			CheckType:     check,
			EntityType:    entity,
			EntityId:      id,
			Details:       details,
			CorrelationId: correlationId,
		})
	}

	batches, err := s.store.ListBillingBatches(ctx, models.BillingBatchFilter{})
	if err != nil {
		return nil, persistErr("list billing batches", err, nil, nil)
	}
	batchStatus := make(map[int]models.BillingBatchStatus, len(batches))
	for _, b := range batches {
		batchStatus[b.ID] = b.Status
	}

	invoices, err := s.store.ListInvoices(ctx)
	if err != nil {
		return nil, persistErr("list invoices", err, nil, nil)
	}
	for _, inv := range invoices {
		if inv.Status == models.InvoiceStatusVoid {
			continue
		}
		// unfinished batches are reported as stale instead
		if status, ok := batchStatus[inv.BatchId]; ok && status != models.BillingBatchStatusSucceeded {
			continue
		}
		invoiceId := inv.ID
		entries, err := s.store.ListFieldLogs(ctx, models.FieldLogFilter{InvoiceId: &invoiceId})
		if err != nil {
			return nil, persistErr("list invoice field logs", err, nil, nil)
		}
		total := decimal.Zero
		linked := make([]int, 0, len(entries))
		for _, e := range entries {
			total = total.Add(e.TotalCost())
			linked = append(linked, e.ID)
		}
		if !total.Round(2).Equal(inv.TotalAmount.Round(2)) {
			add(models.IntegrityCheckInvoiceTotal, models.AuditEntityInvoice, inv.ID,
				fmt.Sprintf("invoice #%s total %s, linked field logs sum to %s", inv.InvoiceNumber, utils.FormatMoney(inv.TotalAmount), utils.FormatMoney(total)))
		}
		expected := uniqueIds(inv.EntryIds)
		if !slices.Equal(uniqueIds(linked), expected) {
			add(models.IntegrityCheckInvoiceLinks, models.AuditEntityInvoice, inv.ID,
				fmt.Sprintf("invoice #%s lists field logs %v, linked field logs are %v", inv.InvoiceNumber, expected, uniqueIds(linked)))
		}
	}

	if s.staleAfter > 0 {
		before := s.now().Add(-s.staleAfter)
		stale, err := s.store.ListBillingBatches(ctx, models.BillingBatchFilter{Statuses: openBatchStatuses, CreatedBefore: &before})
		if err != nil {
			return nil, persistErr("list stale billing batches", err, nil, nil)
		}
		for _, b := range stale {
			add(models.IntegrityCheckStaleBatch, models.AuditEntityBillingBatch, b.ID,
				fmt.Sprintf("batch for invoice #%s is %s since %s (applied %v of %v)",
					b.InvoiceNumber, b.Status, b.UpdatedAt.UTC().Format(time.RFC3339), b.AppliedIds, b.EntryIds))
		}
	}

	existing, err := s.store.ListIntegrityReports(ctx)
	if err != nil {
		return nil, persistErr("list integrity reports", err, nil, nil)
	}
	open := map[reportKey]bool{}
	var resolved []int
	found := map[reportKey]bool{}
	for _, r := range reports {
		found[keyOf(r)] = true
	}
	for _, r := range existing {
		if !r.Open() {
			continue
		}
		open[keyOf(r)] = true
		if !found[keyOf(r)] {
			resolved = append(resolved, r.ID)
		}
	}
	fresh := reports[:0]
	for _, r := range reports {
		if !open[keyOf(r)] {
			fresh = append(fresh, r)
		}
	}
	reports = fresh

	if len(reports) == 0 && len(resolved) == 0 {
		return nil, nil
	}
	err = s.inTx(ctx, func(st store.Store) error {
		if err := st.InsertIntegrityReports(ctx, reports...); err != nil {
			return err
		}
		return st.ResolveIntegrityReports(ctx, resolved, s.now())
	})
	if err != nil {
		return nil, persistErr("save integrity reports", err, nil, nil)
	}
	if len(resolved) > 0 {
		s.logger.WithFields(s.fields(ctx)).WithField("report_ids", resolved).Info("integrity findings resolved")
	}
	if len(reports) == 0 {
		return nil, nil
	}
	for _, r := range reports {
		s.logger.WithFields(s.fields(ctx)).WithFields(logrus.Fields{
			"check":     r.CheckType,
			"entity":    r.EntityType,
			"entity_id": r.EntityId,
		}).Warn(r.Details)
	}
	return reports, nil
}

// RunAll sweeps every project with invoices or billing batches. A failing project does
// not stop the others.
func (s *IntegritySweep) RunAll(ctx context.Context) (int, error) {
	projects, err := s.store.ListProjectIds(utils.SetSkipProjectScopeInContext(ctx, true))
	if err != nil {
		return 0, persistErr("list projects", err, nil, nil)
	}
	found := 0
	var errs []error
	for _, projectId := range projects {
		pctx := utils.SetProjectIdInContext(ctx, projectId)
		pctx = utils.SetCorrelationIdInContext(pctx, uuid.NewString())
		reports, err := s.RunProject(pctx)
		if err != nil {
			config.LogError(s.logger, "workflow", "IntegritySweep", "sweep project", projectId, err)
			errs = append(errs, fmt.Errorf("project %s: %w", projectId, err))
			continue
		}
		found += len(reports)
	}
	return found, errors.Join(errs...)
}

// ListReports returns the project's recorded drift findings.
func (s *IntegritySweep) ListReports(ctx context.Context) ([]*models.IntegrityReport, error) {
	return s.store.ListIntegrityReports(ctx)
}
