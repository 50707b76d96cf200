package usecase

import (
	"context"
	"time"

	"duckmail-archive/internal/archive/domain"
	"duckmail-archive/internal/archive/repository"
)

// SyncConfig carries the engine knobs resolved at startup.
type SyncConfig struct {
	// QPS is the aggregate provider request rate shared by all workers.
	QPS int
	// Concurrency is the number of mailboxes synced in parallel per batch.
	Concurrency int
	// MaxPages caps the page scan per mailbox.
	MaxPages int
}

// CredentialDecrypter recovers a mailbox password from its stored form.
// Plaintext lives only in memory for the duration of one sync.
type CredentialDecrypter interface {
	Decrypt(payload string) (string, error)
}

// ProviderFactory resolves the mail provider adapter for a mailbox's
// provider label.
type ProviderFactory func(provider string) domain.MailProvider

// MailboxSyncResult is the outcome of one mailbox sync attempt.
type MailboxSyncResult struct {
	MailboxID    string `json:"mailbox_id"`
	RunID        string `json:"run_id"`
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Fetched      int    `json:"fetched"`
	Upserted     int    `json:"upserted"`
	ScannedPages int    `json:"scanned_pages"`
}

// DispatchResult reports one dispatcher pass.
type DispatchResult struct {
	DueMailboxCount int      `json:"due_mailbox_count"`
	QueuedCount     int      `json:"queued_count"`
	SkippedInFlight int      `json:"skipped_in_flight"`
	QueuedRunIDs    []string `json:"queued_run_ids"`
}

// ProcessResult reports one worker pass over the queue.
type ProcessResult struct {
	ClaimedCount   int                 `json:"claimed_count"`
	CompletedCount int                 `json:"completed_count"`
	FailedCount    int                 `json:"failed_count"`
	Results        []MailboxSyncResult `json:"results"`
}

// ScheduledCycleOptions tunes one scheduler cycle. Force bypasses the
// enabled and interval gates; nil knobs fall back to the stored settings.
type ScheduledCycleOptions struct {
	Force        bool
	DueMinutes   *int
	MaxQueue     *int
	ProcessLimit *int
}

// ScheduledCycleResult reports one scheduler cycle.
type ScheduledCycleResult struct {
	Skipped    bool           `json:"skipped"`
	SkipReason string         `json:"skip_reason,omitempty"`
	Dispatch   DispatchResult `json:"dispatch"`
	Process    ProcessResult  `json:"process"`
}

// QueueAllResult reports a run-all request.
type QueueAllResult struct {
	RequestedMailboxCount int      `json:"requested_mailbox_count"`
	QueuedCount           int      `json:"queued_count"`
	SkippedInFlight       int      `json:"skipped_in_flight"`
	QueuedRunIDs          []string `json:"queued_run_ids"`
}

// SyncMetrics aggregates run outcomes over a trailing window.
type SyncMetrics struct {
	WindowHours  int      `json:"window_hours"`
	TotalRuns    int      `json:"total_runs"`
	FailedRuns   int      `json:"failed_runs"`
	FailureRate  float64  `json:"failure_rate"`
	AvgLatencyMs float64  `json:"avg_latency_ms"`
	P95LatencyMs float64  `json:"p95_latency_ms"`
	Alerts       []string `json:"alerts"`
}

// SyncUsecase is the mailbox synchronization engine: direct syncs, the queue
// dispatcher/worker pair, the scheduled cycle, and run reporting.
type SyncUsecase interface {
	RunMailboxSync(ctx context.Context, mailboxIDs []string, triggerType string) ([]MailboxSyncResult, error)
	DispatchDueRuns(ctx context.Context, maxQueue, dueMinutes int) (DispatchResult, error)
	ProcessQueuedRuns(ctx context.Context, limit int) (ProcessResult, error)
	RunScheduledCycle(ctx context.Context, opts ScheduledCycleOptions) (ScheduledCycleResult, error)
	QueueAllMailboxes(ctx context.Context, mailboxIDs []string) (QueueAllResult, error)

	ListRecentRuns(limit int) ([]repository.RunListItem, error)
	ListRecentErrors(limit int) ([]repository.ErrorEventItem, error)
	ListRunEvents(runID string) ([]domain.SyncEvent, error)
	Metrics(windowHours int) (SyncMetrics, error)

	GetSchedulerSettings() (domain.SchedulerSettings, error)
	UpdateSchedulerSettings(input repository.UpdateSchedulerSettingsInput) (domain.SchedulerSettings, error)
}

// MailboxView is the redacted listing shape returned to clients; the stored
// credential never leaves the server.
type MailboxView struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Provider        string     `json:"provider"`
	IsActive        bool       `json:"is_active"`
	PasswordPreview string     `json:"password_preview"`
	LastSyncAt      *time.Time `json:"last_sync_at"`
	MessageCount    int64      `json:"message_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TestLoginResult reports a credential probe against the provider.
type TestLoginResult struct {
	OK        bool   `json:"ok"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type MailboxUsecase interface {
	Upsert(email, password, provider string) (*MailboxView, error)
	List() ([]MailboxView, error)
	Get(id string) (*MailboxView, error)
	SetActive(id string, isActive bool) (*MailboxView, error)
	Delete(id string) (bool, error)
	TestLogin(ctx context.Context, id string) (TestLoginResult, error)
}

// DeleteMessageResult reports a message deletion across the requested scopes.
type DeleteMessageResult struct {
	Mode         string `json:"mode"`
	LocalDeleted bool   `json:"local_deleted"`
	RemoteStatus string `json:"remote_status,omitempty"`
	RunID        string `json:"run_id"`
}

type MessageUsecase interface {
	Search(params repository.SearchMessagesParams) ([]repository.MessageListItem, int64, error)
	GetDetail(id string) (*repository.MessageDetailItem, error)
	Delete(ctx context.Context, id, mode string) (*DeleteMessageResult, error)
}

// TTLMailboxReport is the per-mailbox outcome of a retention pass.
type TTLMailboxReport struct {
	MailboxID    string `json:"mailbox_id"`
	RunID        string `json:"run_id"`
	ExpiredCount int64  `json:"expired_count"`
	DeletedCount int64  `json:"deleted_count"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TTLResult reports one retention maintenance pass.
type TTLResult struct {
	RetentionDays int                `json:"retention_days"`
	DryRun        bool               `json:"dry_run"`
	Mailboxes     []TTLMailboxReport `json:"mailboxes"`
	TotalDeleted  int64              `json:"total_deleted"`
}

type MaintenanceUsecase interface {
	RunTTL(ctx context.Context, retentionDays int, dryRun bool) (TTLResult, error)
}
