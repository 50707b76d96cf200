package domain

import (
	"time"

	"gorm.io/datatypes"
)

// SchedulerSettingsKey is the singleton key for the sync scheduler row in
// archive_settings.
const SchedulerSettingsKey = "sync_scheduler"

// ArchiveSetting is a keyed JSON settings record.
type ArchiveSetting struct {
	Key       string         `json:"key" gorm:"primaryKey"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"index:archive_settings_updated_at_idx"`
}

func (ArchiveSetting) TableName() string {
	return "archive_settings"
}

// SchedulerSettings is the payload stored under SchedulerSettingsKey.
type SchedulerSettings struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"intervalMinutes"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt"`
	MaxQueue        int        `json:"maxQueue"`
	ProcessLimit    int        `json:"processLimit"`
}

// DefaultSchedulerSettings returns the settings written on first access.
func DefaultSchedulerSettings() SchedulerSettings {
	return SchedulerSettings{
		Enabled:         true,
		IntervalMinutes: 30,
		MaxQueue:        30,
		ProcessLimit:    20,
	}
}

// ClampInt bounds value to [min, max].
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// NormalizeIntervalMinutes coerces the interval to one of the two supported
// choices. Anything that is not 60 becomes 30.
func NormalizeIntervalMinutes(value int) int {
	if value == 60 {
		return 60
	}
	return 30
}

// Normalize repairs a settings payload read from storage: the interval is
// coerced to 30/60 and the queue knobs are clamped to [1,200].
func (s SchedulerSettings) Normalize() SchedulerSettings {
	s.IntervalMinutes = NormalizeIntervalMinutes(s.IntervalMinutes)
	if s.MaxQueue == 0 {
		s.MaxQueue = 30
	}
	if s.ProcessLimit == 0 {
		s.ProcessLimit = 20
	}
	s.MaxQueue = ClampInt(s.MaxQueue, 1, 200)
	s.ProcessLimit = ClampInt(s.ProcessLimit, 1, 200)
	return s
}
