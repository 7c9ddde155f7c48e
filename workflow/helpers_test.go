package workflow

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/notify"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, notice)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine   *Engine
	store    *store.MemoryStore
	notifier *recordingNotifier
	clock    *testClock
	ctx      context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	clock := &testClock{now: time.Now()}
	n := &recordingNotifier{}
	engine := NewEngine(Options{
		Store:    st,
		Logger:   logger,
		Settings: config.DefaultEngineSettings(),
		Notifier: n,
		Now:      clock.Now,
	})
	ctx := utils.SetProjectIdInContext(context.Background(), "spread-7")
	ctx = utils.SetUserNameInContext(ctx, "Dana Inspector")
	ctx = utils.SetCorrelationIdInContext(ctx, "corr-1")
	return &testEnv{engine: engine, store: st, notifier: n, clock: clock, ctx: ctx}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// recordFieldLog stores a field log with the given costs and moves it to status.
func (env *testEnv) recordFieldLog(t *testing.T, labour, equipment string, status models.BillingStatus) *models.FieldLogEntry {
	t.Helper()
	e, err := env.engine.Billing.RecordFieldLog(env.ctx, &models.FieldLogEntry{
		LogDate:            day("2024-06-01"),
		Contractor:         "Acme Pipeline",
		Foreman:            "Lee",
		TotalLabourCost:    dec(labour),
		TotalEquipmentCost: dec(equipment),
	})
	require.NoError(t, err)
	if status != models.BillingStatusOpen {
		require.NoError(t, env.store.UpdateFieldLog(env.ctx, e.ID, models.FieldLogPatch{BillingStatus: &status}))
		e.BillingStatus = status
	}
	return e
}

func (env *testEnv) fieldLog(t *testing.T, id int) *models.FieldLogEntry {
	t.Helper()
	e, err := env.store.GetFieldLog(env.ctx, id)
	require.NoError(t, err)
	return e
}

func (env *testEnv) audits(t *testing.T, f models.AuditFilter) []*models.AuditRecord {
	t.Helper()
	records, err := env.store.ListAudit(env.ctx, f)
	require.NoError(t, err)
	return records
}
