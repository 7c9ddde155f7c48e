package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/mmdatafocus/inspection_backend/variance"
	"github.com/shopspring/decimal"
)

// ResolvedSettings are the engine defaults with the project's overrides applied.
type ResolvedSettings struct {
	ToleranceMetres int                    `json:"tolerance_metres"`
	HourTolerance   decimal.Decimal        `json:"hour_tolerance"`
	Project         models.ProjectSettings `json:"project"`
}

func (r ResolvedSettings) Rates() variance.RateLookup {
	project := r.Project
	return func(itemType models.DisputeType, classification string) (decimal.Decimal, bool) {
		if itemType == models.DisputeTypeEquipment {
			return project.EquipmentRate(classification)
		}
		return project.LabourRate(classification)
	}
}

type settingsEntry struct {
	value   ResolvedSettings
	expires time.Time
}

// SettingsCache holds per-project settings in memory for a fixed TTL, backed by Redis
// when it is connected. Invalidation is explicit or by expiry.
type SettingsCache struct {
	store    store.SettingsStore
	defaults config.EngineSettings
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]settingsEntry
}

func NewSettingsCache(st store.SettingsStore, defaults config.EngineSettings) *SettingsCache {
	return &SettingsCache{
		store:    st,
		defaults: defaults,
		ttl:      defaults.SettingsCacheTTL,
		now:      time.Now,
		entries:  make(map[string]settingsEntry),
	}
}

func settingsRedisKey(projectId string) string {
	return "inspection:settings:" + projectId
}

func (c *SettingsCache) Get(ctx context.Context) (ResolvedSettings, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return ResolvedSettings{}, errors.New("project id is required")
	}

	c.mu.Lock()
	if e, ok := c.entries[projectId]; ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	var project models.ProjectSettings
	found, err := config.GetRedisObject(settingsRedisKey(projectId), &project)
	if err != nil {
		config.LogError(config.GetLogger(), "settings.go", "SettingsCache.Get", "redis get", projectId, err)
		found = false
	}
	if !found {
		p, err := c.store.GetProjectSettings(ctx)
		switch {
		case err == nil:
			project = *p
		case errors.Is(err, utils.ErrorRecordNotFound):
			project = models.ProjectSettings{ProjectId: projectId}
		default:
			return ResolvedSettings{}, err
		}
		if err := config.SetRedisObject(settingsRedisKey(projectId), project, c.ttl); err != nil {
			config.LogError(config.GetLogger(), "settings.go", "SettingsCache.Get", "redis set", projectId, err)
		}
	}

	value := c.resolve(project)
	c.mu.Lock()
	c.entries[projectId] = settingsEntry{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return value, nil
}

func (c *SettingsCache) resolve(project models.ProjectSettings) ResolvedSettings {
	r := ResolvedSettings{
		ToleranceMetres: c.defaults.ToleranceMetres,
		HourTolerance:   c.defaults.HourTolerance,
		Project:         project,
	}
	if project.ToleranceMetres != nil && *project.ToleranceMetres >= 0 {
		r.ToleranceMetres = *project.ToleranceMetres
	}
	if project.HourTolerance.Valid {
		r.HourTolerance = project.HourTolerance.Decimal
	}
	return r
}

// Invalidate drops the cached settings of the context's project.
func (c *SettingsCache) Invalidate(ctx context.Context) {
	projectId, _ := utils.GetProjectIdFromContext(ctx)
	c.mu.Lock()
	delete(c.entries, projectId)
	c.mu.Unlock()
	if err := config.RemoveRedisKey(settingsRedisKey(projectId)); err != nil {
		config.LogError(config.GetLogger(), "settings.go", "SettingsCache.Invalidate", "redis del", projectId, err)
	}
}

// Save stores the project's settings and invalidates the cache.
func (c *SettingsCache) Save(ctx context.Context, s *models.ProjectSettings) error {
	if err := c.store.SaveProjectSettings(ctx, s); err != nil {
		return persistErr("save project settings", err, nil, nil)
	}
	c.Invalidate(ctx)
	return nil
}
