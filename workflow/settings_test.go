package workflow

import (
	"testing"
	"time"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsCache_DefaultsAndOverrides(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.engine.Settings.Get(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, s.ToleranceMetres)
	assert.True(t, s.HourTolerance.Equal(dec("0.05")))

	tolerance := 25
	require.NoError(t, env.engine.Settings.Save(env.ctx, &models.ProjectSettings{
		ToleranceMetres: &tolerance,
		HourTolerance:   decimal.NewNullDecimal(dec("0.25")),
	}))
	s, err = env.engine.Settings.Get(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, s.ToleranceMetres)
	assert.True(t, s.HourTolerance.Equal(dec("0.25")))
}

func TestSettingsCache_ExpiresAfterTTL(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Settings.Get(env.ctx)
	require.NoError(t, err)

	// written behind the cache's back
	tolerance := 40
	require.NoError(t, env.store.SaveProjectSettings(env.ctx, &models.ProjectSettings{ToleranceMetres: &tolerance}))

	s, err := env.engine.Settings.Get(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, s.ToleranceMetres)

	env.clock.Advance(5*time.Minute + time.Second)
	s, err = env.engine.Settings.Get(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, s.ToleranceMetres)
}

func TestSettingsCache_PerProject(t *testing.T) {
	env := newTestEnv(t)
	tolerance := 5
	require.NoError(t, env.engine.Settings.Save(env.ctx, &models.ProjectSettings{ToleranceMetres: &tolerance}))

	other := utils.SetProjectIdInContext(env.ctx, "spread-8")
	s, err := env.engine.Settings.Get(other)
	require.NoError(t, err)
	assert.Equal(t, 10, s.ToleranceMetres)
}
