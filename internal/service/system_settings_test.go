package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gorm.io/datatypes"

	"putscreener/internal/models"
	"putscreener/internal/screener"
	"putscreener/internal/testutil"
)

func TestScreeningConfig_AppliesOverrides(t *testing.T) {
	store := testutil.SetupStore(t)
	svc := &SystemSettingsService{Repo: store, Defaults: screener.DefaultConfig()}
	ctx := context.Background()

	if _, err := svc.SetScreeningOverrides(ctx, map[string]float64{"PE_RATIO_MAX": 25, "target_dte": 45}); err != nil {
		t.Fatalf("set: %v", err)
	}
	// A stray row under the prefix must not break loading.
	raw, _ := json.Marshal("abc")
	if err := store.UpsertSystemSetting(ctx, &models.SystemSetting{Key: "screening.NOTES", Value: datatypes.JSON(raw)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cfg, err := svc.ScreeningConfig(ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.PERatioMax != 25 || cfg.TargetDTE != 45 || cfg.PERatioMin != 5 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestSetScreeningOverrides_RejectsInvalid(t *testing.T) {
	store := testutil.SetupStore(t)
	svc := &SystemSettingsService{Repo: store, Defaults: screener.DefaultConfig()}
	ctx := context.Background()

	_, err := svc.SetScreeningOverrides(ctx, map[string]float64{"PE_RATIO_MIN": 50})
	if !errors.Is(err, screener.ErrInvalidConfig) {
		t.Fatalf("err=%v want ErrInvalidConfig", err)
	}
	items, err := store.ListSystemSettings(ctx, ScreeningPrefix)
	if err != nil || len(items) != 0 {
		t.Fatalf("items=%d err=%v want nothing stored", len(items), err)
	}
}

func TestFeatureSwitches(t *testing.T) {
	store := testutil.SetupStore(t)
	svc := &SystemSettingsService{Repo: store}
	ctx := context.Background()

	if err := svc.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !svc.IsEnabled(ctx, FeatureCronPipeline, false) {
		t.Fatalf("pipeline switch should default on")
	}
	if err := svc.SetEnabled(ctx, FeatureCronPipeline, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := svc.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if svc.IsEnabled(ctx, FeatureCronPipeline, true) {
		t.Fatalf("an operator's off switch must survive EnsureDefaultSwitches")
	}
	if !svc.IsEnabled(ctx, "feature.unknown", true) {
		t.Fatalf("unknown key should return fallback")
	}
}
