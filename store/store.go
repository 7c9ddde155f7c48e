// Package store is the record-store collaborator: get, insert, update and batch-update
// per collection, scoped to the project in the request context.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
)

// ErrDuplicate is returned when an insert collides with a unique key.
var ErrDuplicate = errors.New("duplicate record")

var errProjectRequired = errors.New("project id is required")

type ReportStore interface {
	InsertReport(ctx context.Context, r *models.DailyReport) error
	GetReport(ctx context.Context, id int) (*models.DailyReport, error)
	ListSegments(ctx context.Context, f models.SegmentFilter) ([]models.Segment, error)
	ListObservations(ctx context.Context, f models.ObservationFilter) ([]*models.DailyReport, error)
}

type FieldLogStore interface {
	InsertFieldLog(ctx context.Context, e *models.FieldLogEntry) error
	GetFieldLog(ctx context.Context, id int) (*models.FieldLogEntry, error)
	ListFieldLogs(ctx context.Context, f models.FieldLogFilter) ([]*models.FieldLogEntry, error)
	UpdateFieldLog(ctx context.Context, id int, p models.FieldLogPatch) error
	// BatchUpdateFieldLogs returns the ids it updated. On error the returned ids
	// are the ones applied before the failure.
	BatchUpdateFieldLogs(ctx context.Context, ids []int, p models.FieldLogPatch) ([]int, error)
}

type DisputeStore interface {
	InsertDispute(ctx context.Context, d *models.Dispute) error
	GetDispute(ctx context.Context, id int) (*models.Dispute, error)
	ListDisputes(ctx context.Context, f models.DisputeFilter) ([]*models.Dispute, error)
	UpdateDispute(ctx context.Context, id int, p models.DisputePatch) error
	InsertCorrection(ctx context.Context, c *models.Correction) error
	ListCorrections(ctx context.Context, f models.CorrectionFilter) ([]*models.Correction, error)
}

type InvoiceStore interface {
	InsertInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoice(ctx context.Context, id int) (*models.Invoice, error)
	ListInvoices(ctx context.Context) ([]*models.Invoice, error)
	InsertBillingBatch(ctx context.Context, b *models.BillingBatch) error
	GetBillingBatch(ctx context.Context, id int) (*models.BillingBatch, error)
	UpdateBillingBatch(ctx context.Context, id int, p models.BillingBatchPatch) error
	ListBillingBatches(ctx context.Context, f models.BillingBatchFilter) ([]*models.BillingBatch, error)
}

type AuditStore interface {
	InsertAudit(ctx context.Context, records ...*models.AuditRecord) error
	ListAudit(ctx context.Context, f models.AuditFilter) ([]*models.AuditRecord, error)
	InsertIntegrityReports(ctx context.Context, reports ...*models.IntegrityReport) error
	ListIntegrityReports(ctx context.Context) ([]*models.IntegrityReport, error)
	ResolveIntegrityReports(ctx context.Context, ids []int, at time.Time) error
}

type SettingsStore interface {
	// GetProjectSettings returns a NotFoundError when the project has no overrides.
	GetProjectSettings(ctx context.Context) (*models.ProjectSettings, error)
	SaveProjectSettings(ctx context.Context, s *models.ProjectSettings) error
	// ListProjectIds lists every project with invoices or billing batches, across tenants.
	ListProjectIds(ctx context.Context) ([]string, error)
}

type Store interface {
	ReportStore
	FieldLogStore
	DisputeStore
	InvoiceStore
	AuditStore
	SettingsStore
}

// Transactor is implemented by stores that can run several writes atomically.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

func projectID(ctx context.Context) (string, error) {
	id, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || id == "" {
		return "", errProjectRequired
	}
	return id, nil
}
