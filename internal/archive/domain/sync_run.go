package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Run statuses. Queue-slot runs move queued -> dispatching -> completed/failed;
// sync-attempt runs move running -> success/failed. Terminal states never
// regress.
const (
	RunStatusQueued      = "queued"
	RunStatusDispatching = "dispatching"
	RunStatusRunning     = "running"
	RunStatusSuccess     = "success"
	RunStatusFailed      = "failed"
	RunStatusCompleted   = "completed"
)

// Trigger types recorded on sync runs.
const (
	TriggerManual     = "manual"
	TriggerSchedule   = "schedule"
	TriggerBackground = "background"
	TriggerManualFull = "manual_full"
	TriggerAPIDelete  = "api-delete"
	TriggerTTL        = "ttl-maintenance"
)

// Event severity levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// SyncRun records one synchronization attempt (or queue slot) for a mailbox.
type SyncRun struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	MailboxID    string         `json:"mailbox_id" gorm:"index:sync_runs_mailbox_id_created_at_idx;not null"`
	TriggerType  string         `json:"trigger_type" gorm:"not null"`
	Status       string         `json:"status" gorm:"index:sync_runs_status_idx;not null;default:pending"`
	StartedAt    *time.Time     `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at"`
	ErrorMessage *string        `json:"error_message"`
	Stats        datatypes.JSON `json:"stats"`
	CreatedAt    time.Time      `json:"created_at" gorm:"index:sync_runs_mailbox_id_created_at_idx"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

// SyncEvent is an append-only audit entry attached to a run.
type SyncEvent struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	RunID     string         `json:"run_id" gorm:"index:sync_events_run_id_created_at_idx;not null"`
	MailboxID string         `json:"mailbox_id" gorm:"index:sync_events_mailbox_id_created_at_idx;not null"`
	Level     string         `json:"level" gorm:"not null;default:info"`
	Code      *string        `json:"code"`
	Message   string         `json:"message" gorm:"not null"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:sync_events_run_id_created_at_idx;index:sync_events_mailbox_id_created_at_idx"`
}

func (SyncEvent) TableName() string {
	return "sync_events"
}
