package repository

import (
	"time"

	"duckmail-archive/internal/archive/domain"
)

// UpdateSchedulerSettingsInput carries a partial update; nil fields keep the
// stored value.
type UpdateSchedulerSettingsInput struct {
	Enabled         *bool
	IntervalMinutes *int
	MaxQueue        *int
	ProcessLimit    *int
	LastTriggeredAt *time.Time
}

type SettingsRepository interface {
	// GetSchedulerSettings returns the scheduler settings row, creating it
	// with defaults when missing.
	GetSchedulerSettings() (domain.SchedulerSettings, error)
	UpdateSchedulerSettings(input UpdateSchedulerSettingsInput) (domain.SchedulerSettings, error)
}
