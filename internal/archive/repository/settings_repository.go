package repository

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"duckmail-archive/internal/archive/domain"
)

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetSchedulerSettings() (domain.SchedulerSettings, error) {
	defaults := domain.DefaultSchedulerSettings()
	encoded, err := json.Marshal(defaults)
	if err != nil {
		return defaults, err
	}

	// Insert-if-missing, then read back. DoNothing keeps an existing row.
	seed := domain.ArchiveSetting{
		Key:       domain.SchedulerSettingsKey,
		Value:     encoded,
		UpdatedAt: time.Now(),
	}
	err = r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return defaults, err
	}

	var row domain.ArchiveSetting
	if err := r.db.Where("key = ?", domain.SchedulerSettingsKey).First(&row).Error; err != nil {
		return defaults, err
	}

	var settings domain.SchedulerSettings
	if err := json.Unmarshal(row.Value, &settings); err != nil {
		return defaults, err
	}
	return settings.Normalize(), nil
}

func (r *settingsRepository) UpdateSchedulerSettings(input UpdateSchedulerSettingsInput) (domain.SchedulerSettings, error) {
	settings, err := r.GetSchedulerSettings()
	if err != nil {
		return settings, err
	}

	if input.Enabled != nil {
		settings.Enabled = *input.Enabled
	}
	if input.IntervalMinutes != nil {
		settings.IntervalMinutes = *input.IntervalMinutes
	}
	if input.MaxQueue != nil {
		settings.MaxQueue = *input.MaxQueue
	}
	if input.ProcessLimit != nil {
		settings.ProcessLimit = *input.ProcessLimit
	}
	if input.LastTriggeredAt != nil {
		settings.LastTriggeredAt = input.LastTriggeredAt
	}
	settings = settings.Normalize()

	encoded, err := json.Marshal(settings)
	if err != nil {
		return settings, err
	}
	err = r.db.Model(&domain.ArchiveSetting{}).
		Where("key = ?", domain.SchedulerSettingsKey).
		Updates(map[string]interface{}{
			"value":      encoded,
			"updated_at": time.Now(),
		}).Error
	return settings, err
}
