package dto

// UpsertMailboxRequest registers or rotates a mailbox.
type UpsertMailboxRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Provider string `json:"provider"`
}

// SetActiveRequest toggles a mailbox's participation in syncing.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// RunSyncRequest triggers a direct sync of selected mailboxes; empty means
// every active mailbox.
type RunSyncRequest struct {
	MailboxIDs []string `json:"mailbox_ids"`
}

// DispatchRequest overrides the dispatcher defaults for one pass.
type DispatchRequest struct {
	MaxQueue   int `json:"max_queue"`
	DueMinutes int `json:"due_minutes"`
}

// ProcessRequest overrides the worker claim limit for one pass.
type ProcessRequest struct {
	Limit int `json:"limit"`
}

// ScheduledCycleRequest triggers a scheduler tick. Force bypasses the
// enabled and interval gates; the nullable knobs override stored settings
// for this cycle only.
type ScheduledCycleRequest struct {
	Force        bool `json:"force"`
	DueMinutes   *int `json:"dueMinutes"`
	MaxQueue     *int `json:"maxQueue"`
	ProcessLimit *int `json:"processLimit"`
}

// UpdateSchedulerSettingsRequest is a partial scheduler settings update.
type UpdateSchedulerSettingsRequest struct {
	Enabled         *bool `json:"enabled"`
	IntervalMinutes *int  `json:"intervalMinutes"`
	MaxQueue        *int  `json:"maxQueue"`
	ProcessLimit    *int  `json:"processLimit"`
}

// DeleteMessageRequest selects the deletion scope.
type DeleteMessageRequest struct {
	Mode string `json:"mode"`
}

// TTLRequest runs a retention pass.
type TTLRequest struct {
	RetentionDays int  `json:"retention_days"`
	DryRun        bool `json:"dry_run"`
}
