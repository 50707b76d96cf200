package repository

import (
	"time"

	"gorm.io/datatypes"

	"duckmail-archive/internal/archive/domain"
)

// AppendEventInput describes one audit event. Level defaults to info.
type AppendEventInput struct {
	RunID     string
	MailboxID string
	Level     string
	Code      string
	Message   string
	Payload   map[string]interface{}
}

// RunListItem is a run joined with its mailbox email for operator listings.
type RunListItem struct {
	ID           string         `json:"id"`
	MailboxID    string         `json:"mailbox_id"`
	MailboxEmail string         `json:"mailbox_email"`
	TriggerType  string         `json:"trigger_type"`
	Status       string         `json:"status"`
	ErrorMessage *string        `json:"error_message"`
	StartedAt    *time.Time     `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at"`
	CreatedAt    time.Time      `json:"created_at"`
	Stats        datatypes.JSON `json:"stats"`
}

// ErrorEventItem is an error-level event joined with its mailbox email.
type ErrorEventItem struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	MailboxID    string         `json:"mailbox_id"`
	MailboxEmail string         `json:"mailbox_email"`
	Code         *string        `json:"code"`
	Message      string         `json:"message"`
	Payload      datatypes.JSON `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SyncRepository is the run ledger plus the queue primitives built on it.
type SyncRepository interface {
	// CreateRun opens one run row. Status defaults to running and startedAt
	// to now when zero values are passed.
	CreateRun(mailboxID, triggerType, status string, startedAt *time.Time) (*domain.SyncRun, error)
	// FinishRun applies the single terminal update of a run. Runs already in
	// a terminal state are left untouched.
	FinishRun(runID, status, errorMessage string, stats map[string]interface{}) error
	AppendEvent(input AppendEventInput) error
	ListEventsForRun(runID string) ([]domain.SyncEvent, error)

	// ListDueMailboxIDs returns active mailboxes never synced or synced more
	// than dueMinutes ago, oldest first (never-synced before everything),
	// ties by id, capped at limit.
	ListDueMailboxIDs(dueMinutes, limit int) ([]string, error)
	EnqueueRuns(mailboxIDs []string, triggerType string) ([]*domain.SyncRun, error)
	// ClaimQueuedRuns transitions up to limit queued runs to dispatching.
	// The status predicate makes the claim exclusive under concurrency.
	ClaimQueuedRuns(limit int) ([]*domain.SyncRun, error)
	CompleteQueuedRun(runID, status, errorMessage string, stats map[string]interface{}) error
	// FilterRunnableMailboxIDs drops mailboxes that already have a run in
	// queued, dispatching, or running status.
	FilterRunnableMailboxIDs(mailboxIDs []string) ([]string, error)

	ListRecentRuns(limit int) ([]RunListItem, error)
	ListRecentErrors(limit int) ([]ErrorEventItem, error)
	ListRunsSince(since time.Time) ([]domain.SyncRun, error)
}
