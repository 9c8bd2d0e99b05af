package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"putscreener/internal/models"
	"putscreener/internal/repository"
	"putscreener/internal/screener"
)

const (
	FeatureCronPipeline = "feature.cron_pipeline"
	FeatureCronCleanup  = "feature.cron_cleanup"

	// ScreeningPrefix namespaces threshold overrides: "screening.PE_RATIO_MAX".
	ScreeningPrefix = "screening."
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureCronPipeline: true,
		FeatureCronCleanup:  true,
	}
}

type SystemSettingsService struct {
	Repo repository.SettingsRepository
	// Defaults are the file/env thresholds overrides apply on top of.
	Defaults screener.Config
}

func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// ScreeningOverrides returns the stored threshold overrides keyed by
// override name. Rows that do not hold a number are ignored.
func (s *SystemSettingsService) ScreeningOverrides(ctx context.Context) (map[string]float64, error) {
	out := map[string]float64{}
	if s == nil || s.Repo == nil {
		return out, nil
	}
	items, err := s.Repo.ListSystemSettings(ctx, ScreeningPrefix)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		name := strings.ToUpper(strings.TrimPrefix(item.Key, ScreeningPrefix))
		if !screener.IsOverrideKey(name) {
			continue
		}
		var v float64
		if err := json.Unmarshal(item.Value, &v); err != nil {
			continue
		}
		out[name] = v
	}
	return out, nil
}

// ScreeningConfig is the effective threshold set: defaults plus overrides.
func (s *SystemSettingsService) ScreeningConfig(ctx context.Context) (screener.Config, error) {
	overrides, err := s.ScreeningOverrides(ctx)
	if err != nil {
		return screener.Config{}, err
	}
	return s.Defaults.WithOverrides(overrides)
}

// SetScreeningOverrides stores new overrides after checking that the
// resulting config is valid. Nothing is written when validation fails.
func (s *SystemSettingsService) SetScreeningOverrides(ctx context.Context, values map[string]float64) (screener.Config, error) {
	current, err := s.ScreeningConfig(ctx)
	if err != nil {
		return screener.Config{}, err
	}
	next, err := current.WithOverrides(values)
	if err != nil {
		return screener.Config{}, err
	}
	if err := next.Validate(); err != nil {
		return screener.Config{}, err
	}
	now := time.Now().UTC()
	for key, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return screener.Config{}, err
		}
		name := strings.ToUpper(strings.TrimSpace(key))
		item := &models.SystemSetting{
			Key:         ScreeningPrefix + name,
			Value:       datatypes.JSON(raw),
			Description: fmt.Sprintf("screening threshold %s", name),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return screener.Config{}, err
		}
	}
	return next, nil
}

var _ screener.ConfigSource = (*SystemSettingsService)(nil)
