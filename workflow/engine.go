package workflow

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/notify"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/mmdatafocus/inspection_backend/workflow")

type Options struct {
	Store    store.Store
	Logger   *logrus.Logger
	Settings config.EngineSettings
	Notifier notify.Notifier
	// Locker defaults to the shared Redis lock client once Redis is connected.
	Locker       *redislock.Client
	SignEvidence notify.EvidenceSigner
	Now          func() time.Time
}

// Engine groups the reconciliation services over one store.
type Engine struct {
	Reports   *ReportService
	Compare   *ComparisonService
	Disputes  *DisputeManager
	Billing   *BillingManager
	Integrity *IntegritySweep
	Settings  *SettingsCache
}

func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = config.GetLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = &notify.LogNotifier{Logger: opts.Logger}
	}
	b := base{store: opts.Store, logger: opts.Logger, now: opts.Now}
	settings := NewSettingsCache(opts.Store, opts.Settings)
	settings.now = opts.Now
	compare := &ComparisonService{base: b, settings: settings}

	return &Engine{
		Reports:  &ReportService{base: b, settings: settings},
		Compare:  compare,
		Disputes: &DisputeManager{base: b, settings: settings, notifier: opts.Notifier, sign: opts.SignEvidence},
		Billing:  &BillingManager{base: b, settings: settings, locker: opts.Locker},
		Integrity: &IntegritySweep{
			base:       b,
			staleAfter: opts.Settings.StaleBatchAfter,
		},
		Settings: settings,
	}
}

type base struct {
	store  store.Store
	logger *logrus.Logger
	now    func() time.Time
}

// inTx runs fn atomically when the store supports transactions, otherwise directly.
func (b base) inTx(ctx context.Context, fn func(st store.Store) error) error {
	if tr, ok := b.store.(store.Transactor); ok {
		return tr.Transaction(ctx, fn)
	}
	return fn(b.store)
}

func (b base) transactional() bool {
	_, ok := b.store.(store.Transactor)
	return ok
}

func (b base) fields(ctx context.Context) logrus.Fields {
	projectId, _ := utils.GetProjectIdFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	return logrus.Fields{
		"project_id":     projectId,
		"correlation_id": correlationId,
	}
}
