package repository

import (
	"testing"
	"time"

	"duckmail-archive/internal/archive/domain"
)

func TestGetSchedulerSettingsSeedsDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingsRepository(db)

	settings, err := repo.GetSchedulerSettings()
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	defaults := domain.DefaultSchedulerSettings()
	if settings.Enabled != defaults.Enabled ||
		settings.IntervalMinutes != defaults.IntervalMinutes ||
		settings.MaxQueue != defaults.MaxQueue ||
		settings.ProcessLimit != defaults.ProcessLimit {
		t.Fatalf("expected defaults, got %+v", settings)
	}

	var count int64
	if err := db.Model(&domain.ArchiveSetting{}).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected seeded singleton row, got %d", count)
	}

	// A second read must not insert a second row.
	if _, err := repo.GetSchedulerSettings(); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if err := db.Model(&domain.ArchiveSetting{}).Count(&count).Error; err != nil {
		t.Fatalf("recount rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single row after re-read, got %d", count)
	}
}

func TestUpdateSchedulerSettingsPartial(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingsRepository(db)

	enabled := false
	interval := 60
	updated, err := repo.UpdateSchedulerSettings(UpdateSchedulerSettingsInput{
		Enabled:         &enabled,
		IntervalMinutes: &interval,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Enabled {
		t.Fatalf("expected disabled scheduler")
	}
	if updated.IntervalMinutes != 60 {
		t.Fatalf("expected interval 60, got %d", updated.IntervalMinutes)
	}
	// Untouched fields keep their stored values.
	if updated.MaxQueue != 30 || updated.ProcessLimit != 20 {
		t.Fatalf("untouched knobs changed: %+v", updated)
	}

	reread, err := repo.GetSchedulerSettings()
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if reread.Enabled || reread.IntervalMinutes != 60 {
		t.Fatalf("update not persisted: %+v", reread)
	}
}

func TestUpdateSchedulerSettingsNormalizes(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingsRepository(db)

	interval := 45
	maxQueue := 5000
	processLimit := -3
	updated, err := repo.UpdateSchedulerSettings(UpdateSchedulerSettingsInput{
		IntervalMinutes: &interval,
		MaxQueue:        &maxQueue,
		ProcessLimit:    &processLimit,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IntervalMinutes != 30 {
		t.Fatalf("expected interval coerced to 30, got %d", updated.IntervalMinutes)
	}
	if updated.MaxQueue != 200 {
		t.Fatalf("expected max queue clamped to 200, got %d", updated.MaxQueue)
	}
	if updated.ProcessLimit != 1 {
		t.Fatalf("expected process limit clamped to 1, got %d", updated.ProcessLimit)
	}
}

func TestUpdateSchedulerSettingsStampsLastTriggered(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingsRepository(db)

	stamp := time.Now().Add(-2 * time.Minute).UTC().Truncate(time.Second)
	updated, err := repo.UpdateSchedulerSettings(UpdateSchedulerSettingsInput{LastTriggeredAt: &stamp})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.LastTriggeredAt == nil || !updated.LastTriggeredAt.Equal(stamp) {
		t.Fatalf("expected last triggered stamp, got %v", updated.LastTriggeredAt)
	}

	reread, err := repo.GetSchedulerSettings()
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if reread.LastTriggeredAt == nil || !reread.LastTriggeredAt.Equal(stamp) {
		t.Fatalf("stamp not persisted: %v", reread.LastTriggeredAt)
	}
}
