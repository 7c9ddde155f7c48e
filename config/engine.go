package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EngineSettings are the process-wide defaults of the reconciliation engine.
// Per-project overrides live in models.ProjectSettings.
type EngineSettings struct {
	// Near-contiguous chainage within this many metres counts as continuous coverage.
	ToleranceMetres int `yaml:"tolerance_metres"`
	// Claimed and observed hours within this tolerance are a match.
	HourTolerance decimal.Decimal `yaml:"hour_tolerance"`
	// TTL of cached per-project settings and rate tables.
	SettingsCacheTTL time.Duration `yaml:"settings_cache_ttl"`
	// Finalize batches still open after this long are reported by the integrity sweep.
	StaleBatchAfter time.Duration `yaml:"stale_batch_after"`
}

func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		ToleranceMetres:  10,
		HourTolerance:    decimal.NewFromFloat(0.05),
		SettingsCacheTTL: 5 * time.Minute,
		StaleBatchAfter:  15 * time.Minute,
	}
}

// LoadEngineSettings layers defaults, the optional ENGINE_SETTINGS_FILE (YAML) and env overrides:
// - COVERAGE_TOLERANCE_METRES
// - HOUR_TOLERANCE
// - SETTINGS_CACHE_TTL_SECONDS
// - STALE_BATCH_AFTER_SECONDS
func LoadEngineSettings() (EngineSettings, error) {
	s := DefaultEngineSettings()

	if path := strings.TrimSpace(os.Getenv("ENGINE_SETTINGS_FILE")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read engine settings %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return s, fmt.Errorf("parse engine settings %s: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("COVERAGE_TOLERANCE_METRES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return s, fmt.Errorf("invalid COVERAGE_TOLERANCE_METRES %q", v)
		}
		s.ToleranceMetres = n
	}
	if v := strings.TrimSpace(os.Getenv("HOUR_TOLERANCE")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return s, fmt.Errorf("invalid HOUR_TOLERANCE %q", v)
		}
		s.HourTolerance = d
	}
	if v := strings.TrimSpace(os.Getenv("SETTINGS_CACHE_TTL_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return s, fmt.Errorf("invalid SETTINGS_CACHE_TTL_SECONDS %q", v)
		}
		s.SettingsCacheTTL = time.Duration(n) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("STALE_BATCH_AFTER_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return s, fmt.Errorf("invalid STALE_BATCH_AFTER_SECONDS %q", v)
		}
		s.StaleBatchAfter = time.Duration(n) * time.Second
	}
	return s, nil
}

func EnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
