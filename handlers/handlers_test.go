package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/middlewares"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/notify"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/mmdatafocus/inspection_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProject = "spread-7"

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

type apiEnv struct {
	router   *gin.Engine
	store    *store.MemoryStore
	notifier *recordingNotifier
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	n := &recordingNotifier{}
	engine := workflow.NewEngine(workflow.Options{
		Store:    st,
		Logger:   logger,
		Settings: config.DefaultEngineSettings(),
		Notifier: n,
	})
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware(), middlewares.SessionMiddleware())
	New(engine, logger).Register(r)
	return &apiEnv{router: r, store: st, notifier: n}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middlewares.HeaderProjectId, testProject)
	req.Header.Set(middlewares.HeaderUserName, "Dana Inspector")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// recordFieldLog posts one claim for 2024-06-01 with a labour and an equipment line.
func (e *apiEnv) recordFieldLog(t *testing.T) models.FieldLogEntry {
	t.Helper()
	w := e.do(t, http.MethodPost, "/field-logs", gin.H{
		"log_date":   "2024-06-01",
		"contractor": "Acme Pipeline",
		"foreman":    "Lee",
		"labour_entries": []gin.H{
			{"name": "J. Smith", "classification": "Operator", "regular_hours": "8", "overtime_hours": "2", "rate": "85"},
			{"name": "Mike Jones", "classification": "Labourer", "regular_hours": "5", "rate": "70"},
		},
		"equipment_entries": []gin.H{
			{"type_or_id": "Excavator 320", "hours": "8", "rate": "150"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.FieldLogEntry](t, w)
}

func (e *apiEnv) submitReport(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/reports", gin.H{
		"report_date":    "2024-06-01",
		"inspector_name": "Dana Inspector",
		"contractor":     "Acme Pipeline",
		"foreman":        "Lee",
		"segments": []gin.H{
			{"activity_type": "Grading", "start_kp": "5+000", "end_kp": "5+250"},
		},
		"observed_labour": []gin.H{
			{"name": "SMITH, JOHN", "classification": "Operator", "total_hours": "8"},
		},
		"observed_equipment": []gin.H{
			{"type_or_id": "EXCAVATOR", "regular_hours": "6", "overtime_hours": "2"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestChainageRoutes(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/chainage/parse?text=5%2B250", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 5250, body["metres"])
	assert.Equal(t, "5+250", body["label"])

	w = env.do(t, http.MethodGet, "/chainage/parse?text=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/chainage/format?metres=12045", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12+045", decode[map[string]any](t, w)["label"])
}

func TestProjectHeaderRequired(t *testing.T) {
	env := newAPIEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/field-logs", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportPreviewAndGet(t *testing.T) {
	env := newAPIEnv(t)
	env.submitReport(t)

	// same activity a day later starting past the end leaves a gap
	w := env.do(t, http.MethodPost, "/reports/preview", gin.H{
		"report_date":    "2024-06-02",
		"inspector_name": "Dana Inspector",
		"segments": []gin.H{
			{"activity_type": "Grading", "start_kp": "5+400", "end_kp": "5+600"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[workflow.CoverageResult](t, w)
	assert.NotEmpty(t, preview.Findings)

	w = env.do(t, http.MethodPost, "/reports", gin.H{
		"report_date":    "2024-06-02",
		"inspector_name": "Dana Inspector",
		"segments": []gin.H{
			{"activity_type": "Grading", "start_kp": "5+400", "end_kp": "5+600"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]any](t, w), "fields")

	w = env.do(t, http.MethodGet, "/reports/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/reports", gin.H{"report_date": "2024-06-03"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestComparisonAndFlag(t *testing.T) {
	env := newAPIEnv(t)
	env.submitReport(t)
	entry := env.recordFieldLog(t)

	w := env.do(t, http.MethodGet, "/field-logs/"+itoa(entry.ID)+"/comparison", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cmp := decode[workflow.Comparison](t, w)
	require.NotEmpty(t, cmp.Rows)
	assert.Equal(t, "Mike Jones", cmp.Rows[0].Key)

	flag := gin.H{"lem_id": entry.ID, "item_type": "labour", "item_name": "Mike Jones", "notes": "not on site"}
	w = env.do(t, http.MethodPost, "/disputes/flag", flag)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/disputes/flag", flag)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["created"])

	w = env.do(t, http.MethodPost, "/disputes/flag", gin.H{"lem_id": entry.ID, "item_type": "labour", "item_name": "Nobody"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/disputes/flag-all", gin.H{"lem_id": entry.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/disputes?lem_id="+itoa(entry.ID)+"&status=open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[struct {
		Disputes []models.Dispute `json:"disputes"`
	}](t, w)
	// Mike Jones not found and J. Smith over
	assert.Len(t, listed.Disputes, 2)

	w = env.do(t, http.MethodGet, "/field-logs/999/comparison", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendAndStatus(t *testing.T) {
	env := newAPIEnv(t)
	env.submitReport(t)
	entry := env.recordFieldLog(t)
	w := env.do(t, http.MethodPost, "/disputes/flag", gin.H{"lem_id": entry.ID, "item_type": "labour", "item_name": "Mike Jones"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dispute := decode[struct {
		Dispute models.Dispute `json:"dispute"`
	}](t, w).Dispute

	// no contact in settings and no override
	w = env.do(t, http.MethodPost, "/disputes/send", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.notifier.notices)

	w = env.do(t, http.MethodPost, "/disputes/"+itoa(dispute.ID)+"/send", gin.H{
		"recipient": gin.H{"name": "Acme Office", "email": "office@acme.example"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, env.notifier.notices, 1)

	w = env.do(t, http.MethodPatch, "/disputes/"+itoa(dispute.ID)+"/status", gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/disputes/"+itoa(dispute.ID)+"/status", gin.H{"status": "resolved", "notes": "hours removed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.Dispute](t, w)
	assert.Equal(t, models.DisputeStatusResolved, updated.Status)
	assert.NotNil(t, updated.ResolvedAt)

	w = env.do(t, http.MethodPatch, "/disputes/abc/status", gin.H{"status": "resolved"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCorrection(t *testing.T) {
	env := newAPIEnv(t)
	env.submitReport(t)
	entry := env.recordFieldLog(t)

	w := env.do(t, http.MethodPost, "/corrections", gin.H{"lem_id": entry.ID, "item_type": "labour", "item_name": "Mike Jones", "notes": "typo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/corrections", gin.H{
		"lem_id": entry.ID, "item_type": "labour", "item_name": "Mike Jones", "corrected_value": "0", "notes": "not on site",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	correction := decode[models.Correction](t, w)
	assert.Equal(t, "5", correction.OriginalValue)

	// a correction blocks a later dispute on the same item
	w = env.do(t, http.MethodPost, "/disputes/flag", gin.H{"lem_id": entry.ID, "item_type": "labour", "item_name": "Mike Jones"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode[map[string]any](t, w)["created"])
}

// billable records two field logs, verifies them and marks them ready.
func (e *apiEnv) billable(t *testing.T) []int {
	t.Helper()
	var ids []int
	for _, costs := range [][2]string{{"1000.25", "500"}, {"800", "250.25"}} {
		entry := e.recordFieldLog(t)
		w := e.do(t, http.MethodPost, "/field-logs/"+itoa(entry.ID)+"/verify", gin.H{"labour_cost": costs[0], "equipment_cost": costs[1]})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, models.BillingStatusMatched, decode[models.FieldLogEntry](t, w).BillingStatus)
		ids = append(ids, entry.ID)
	}
	w := e.do(t, http.MethodPost, "/field-logs/ready", gin.H{"ids": ids})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return ids
}

func TestBillingFlow(t *testing.T) {
	env := newAPIEnv(t)
	ids := env.billable(t)

	w := env.do(t, http.MethodPost, "/invoices/preview", gin.H{"ids": ids})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[workflow.BatchPreview](t, w)
	assert.Equal(t, "2550.50", preview.GrandTotal.StringFixed(2))

	w = env.do(t, http.MethodPost, "/invoices/finalize", gin.H{"entry_ids": ids, "invoice_number": "INV-1", "confirmed_total": "2550.49"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/invoices/finalize", gin.H{"entry_ids": ids, "invoice_number": "INV-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/invoices/finalize", gin.H{"entry_ids": ids, "invoice_number": "INV-1", "confirmed_total": "2550.50"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[workflow.FinalizeResult](t, w)
	assert.Equal(t, models.BillingBatchStatusSucceeded, res.Batch.Status)
	assert.Equal(t, "INV-1", res.Invoice.InvoiceNumber)

	w = env.do(t, http.MethodGet, "/field-logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct {
		FieldLogs []models.FieldLogEntry `json:"field_logs"`
	}](t, w).FieldLogs)

	w = env.do(t, http.MethodGet, "/field-logs?view=archived&invoice=inv&third_party=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		FieldLogs []models.FieldLogEntry `json:"field_logs"`
	}](t, w).FieldLogs, 2)

	w = env.do(t, http.MethodGet, "/field-logs?view=everything", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// invoiced entries need a correction instead
	w = env.do(t, http.MethodPost, "/field-logs/"+itoa(ids[0])+"/keep-open", gin.H{"labour_cost": "1", "equipment_cost": "1", "discrepancy_note": "late change"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/integrity/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(t, http.MethodGet, "/integrity-reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct {
		Reports []models.IntegrityReport `json:"reports"`
	}](t, w).Reports)
}

func TestFinalizePartialIsConflictThenResume(t *testing.T) {
	env := newAPIEnv(t)
	ids := env.billable(t)
	env.store.FailOn("BatchUpdateFieldLogs", 1, assert.AnError)

	w := env.do(t, http.MethodPost, "/invoices/finalize", gin.H{"entry_ids": ids, "invoice_number": "INV-9", "confirmed_total": "2550.50"})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["partial"])
	assert.Len(t, body["applied"], 1)
	assert.Len(t, body["pending"], 1)

	batches, err := env.store.ListBillingBatches(storeCtx(), models.BillingBatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 1)

	env.store.ClearFaults()
	w = env.do(t, http.MethodPost, "/billing-batches/"+itoa(batches[0].ID)+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.BillingBatchStatusSucceeded, decode[workflow.FinalizeResult](t, w).Batch.Status)
}

func TestKeepOpenNeedsNote(t *testing.T) {
	env := newAPIEnv(t)
	entry := env.recordFieldLog(t)

	w := env.do(t, http.MethodPost, "/field-logs/"+itoa(entry.ID)+"/keep-open", gin.H{"labour_cost": "10", "equipment_cost": "0"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["fields"], "discrepancy_note")

	w = env.do(t, http.MethodPost, "/field-logs/"+itoa(entry.ID)+"/keep-open", gin.H{"labour_cost": "10", "equipment_cost": "0", "discrepancy_note": "timesheet missing"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	kept := decode[models.FieldLogEntry](t, w)
	assert.Equal(t, models.BillingStatusOpen, kept.BillingStatus)
	assert.Equal(t, "timesheet missing", kept.DiscrepancyNote)
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 10, decode[map[string]any](t, w)["tolerance_metres"])

	w = env.do(t, http.MethodPut, "/settings", gin.H{
		"vendor_name":      "Acme Pipeline Ltd",
		"tolerance_metres": 25,
		"labour_rates":     []gin.H{{"key": "Operator", "rate": "90"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resolved := decode[workflow.ResolvedSettings](t, w)
	assert.Equal(t, 25, resolved.ToleranceMetres)
	assert.Equal(t, "Acme Pipeline Ltd", resolved.Project.VendorName)
	assert.Equal(t, testProject, resolved.Project.ProjectId)
}

func itoa(id int) string {
	return strconv.Itoa(id)
}

func storeCtx() context.Context {
	return utils.SetProjectIdInContext(context.Background(), testProject)
}

func pushBody(t *testing.T, payload any) gin.H {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return gin.H{"message": gin.H{"data": data, "id": "msg-1"}, "subscription": "projects/p/subscriptions/field-logs"}
}

func TestFieldLogPush(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/pubsub/field-logs", pushBody(t, gin.H{
		"project_id": testProject,
		"field_log": gin.H{
			"log_date":       "2024-06-01",
			"contractor":     "Acme Pipeline",
			"labour_entries": []gin.H{{"name": "J. Smith", "regular_hours": "8", "rate": "85"}},
		},
	}))
	require.Equal(t, http.StatusNoContent, w.Code)

	entries, err := env.store.ListFieldLogs(storeCtx(), models.FieldLogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].TotalLabourCost.Equal(decimalOf(t, "680")))

	// invalid payloads are acked and dropped
	w = env.do(t, http.MethodPost, "/pubsub/field-logs", pushBody(t, gin.H{"project_id": testProject, "field_log": gin.H{"log_date": "June 1"}}))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodPost, "/pubsub/field-logs", gin.H{"message": "nope"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// store failures ask for redelivery
	env.store.FailOn("InsertFieldLog", 0, assert.AnError)
	w = env.do(t, http.MethodPost, "/pubsub/field-logs", pushBody(t, gin.H{
		"project_id": testProject,
		"field_log":  gin.H{"log_date": "2024-06-02", "contractor": "Acme Pipeline"},
	}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func decimalOf(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}
