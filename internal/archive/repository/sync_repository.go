package repository

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"duckmail-archive/internal/archive/domain"
)

// inFlightStatuses block a mailbox from being re-queued while a previous run
// is still working its way through the queue.
var inFlightStatuses = []string{
	domain.RunStatusQueued,
	domain.RunStatusDispatching,
	domain.RunStatusRunning,
}

var terminalStatuses = []string{
	domain.RunStatusSuccess,
	domain.RunStatusFailed,
	domain.RunStatusCompleted,
}

// syncRepository implements SyncRepository on GORM
type syncRepository struct {
	db *gorm.DB
}

func NewSyncRepository(db *gorm.DB) SyncRepository {
	return &syncRepository{db: db}
}

func (r *syncRepository) CreateRun(mailboxID, triggerType, status string, startedAt *time.Time) (*domain.SyncRun, error) {
	if status == "" {
		status = domain.RunStatusRunning
	}
	if startedAt == nil && status == domain.RunStatusRunning {
		now := time.Now()
		startedAt = &now
	}

	run := domain.SyncRun{
		ID:          uuid.New().String(),
		MailboxID:   mailboxID,
		TriggerType: triggerType,
		Status:      status,
		StartedAt:   startedAt,
		CreatedAt:   time.Now(),
	}
	if err := r.db.Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *syncRepository) FinishRun(runID, status, errorMessage string, stats map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":      status,
		"finished_at": time.Now(),
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}
	if stats != nil {
		encoded, err := marshalJSON(stats)
		if err != nil {
			return err
		}
		updates["stats"] = encoded
	}

	return r.db.Model(&domain.SyncRun{}).
		Where("id = ? AND status NOT IN ?", runID, terminalStatuses).
		Updates(updates).Error
}

func (r *syncRepository) AppendEvent(input AppendEventInput) error {
	level := input.Level
	if level == "" {
		level = domain.LevelInfo
	}
	event := domain.SyncEvent{
		ID:        uuid.New().String(),
		RunID:     input.RunID,
		MailboxID: input.MailboxID,
		Level:     level,
		Message:   input.Message,
		CreatedAt: time.Now(),
	}
	if input.Code != "" {
		code := input.Code
		event.Code = &code
	}
	if input.Payload != nil {
		encoded, err := marshalJSON(input.Payload)
		if err != nil {
			return err
		}
		event.Payload = encoded
	}
	return r.db.Create(&event).Error
}

func (r *syncRepository) ListEventsForRun(runID string) ([]domain.SyncEvent, error) {
	var events []domain.SyncEvent
	err := r.db.Where("run_id = ?", runID).Order("created_at ASC, id ASC").Find(&events).Error
	return events, err
}

func (r *syncRepository) ListDueMailboxIDs(dueMinutes, limit int) ([]string, error) {
	type dueRow struct {
		ID         string
		LastSyncAt *time.Time
	}

	var rows []dueRow
	err := r.db.Model(&domain.Mailbox{}).
		Select("id, last_sync_at").
		Where("is_active = ?", true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	dueBefore := time.Now().Add(-time.Duration(dueMinutes) * time.Minute)
	due := rows[:0]
	for _, row := range rows {
		if row.LastSyncAt == nil || row.LastSyncAt.Before(dueBefore) {
			due = append(due, row)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		a, b := due[i], due[j]
		aTs, bTs := int64(0), int64(0)
		if a.LastSyncAt != nil {
			aTs = a.LastSyncAt.UnixMilli()
		}
		if b.LastSyncAt != nil {
			bTs = b.LastSyncAt.UnixMilli()
		}
		if aTs != bTs {
			return aTs < bTs
		}
		return a.ID < b.ID
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, len(due))
	for i, row := range due {
		ids[i] = row.ID
	}
	return ids, nil
}

func (r *syncRepository) EnqueueRuns(mailboxIDs []string, triggerType string) ([]*domain.SyncRun, error) {
	queued := make([]*domain.SyncRun, 0, len(mailboxIDs))
	for _, mailboxID := range mailboxIDs {
		run := domain.SyncRun{
			ID:          uuid.New().String(),
			MailboxID:   mailboxID,
			TriggerType: triggerType,
			Status:      domain.RunStatusQueued,
			CreatedAt:   time.Now(),
		}
		if err := r.db.Create(&run).Error; err != nil {
			return queued, err
		}
		queued = append(queued, &run)
	}
	return queued, nil
}

func (r *syncRepository) ClaimQueuedRuns(limit int) ([]*domain.SyncRun, error) {
	var candidates []domain.SyncRun
	err := r.db.Where("status = ?", domain.RunStatusQueued).
		Order("created_at DESC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]*domain.SyncRun, 0, len(candidates))
	for i := range candidates {
		run := candidates[i]
		now := time.Now()
		result := r.db.Model(&domain.SyncRun{}).
			Where("id = ? AND status = ?", run.ID, domain.RunStatusQueued).
			Updates(map[string]interface{}{
				"status":     domain.RunStatusDispatching,
				"started_at": now,
			})
		if result.Error != nil {
			return claimed, result.Error
		}
		if result.RowsAffected == 0 {
			// Another worker won this row.
			continue
		}
		run.Status = domain.RunStatusDispatching
		run.StartedAt = &now
		claimed = append(claimed, &run)
	}
	return claimed, nil
}

func (r *syncRepository) CompleteQueuedRun(runID, status, errorMessage string, stats map[string]interface{}) error {
	return r.FinishRun(runID, status, errorMessage, stats)
}

func (r *syncRepository) FilterRunnableMailboxIDs(mailboxIDs []string) ([]string, error) {
	if len(mailboxIDs) == 0 {
		return nil, nil
	}

	var blocked []string
	err := r.db.Model(&domain.SyncRun{}).
		Distinct("mailbox_id").
		Where("mailbox_id IN ? AND status IN ?", mailboxIDs, inFlightStatuses).
		Pluck("mailbox_id", &blocked).Error
	if err != nil {
		return nil, err
	}

	blockedSet := make(map[string]struct{}, len(blocked))
	for _, id := range blocked {
		blockedSet[id] = struct{}{}
	}

	runnable := make([]string, 0, len(mailboxIDs))
	for _, id := range mailboxIDs {
		if _, ok := blockedSet[id]; !ok {
			runnable = append(runnable, id)
		}
	}
	return runnable, nil
}

func (r *syncRepository) ListRecentRuns(limit int) ([]RunListItem, error) {
	limit = clampListLimit(limit)
	var items []RunListItem
	err := r.db.Model(&domain.SyncRun{}).
		Joins("JOIN mailboxes ON mailboxes.id = sync_runs.mailbox_id").
		Select("sync_runs.id, sync_runs.mailbox_id, mailboxes.email AS mailbox_email, sync_runs.trigger_type, sync_runs.status, sync_runs.error_message, sync_runs.started_at, sync_runs.finished_at, sync_runs.created_at, sync_runs.stats").
		Order("sync_runs.created_at DESC").
		Limit(limit).
		Scan(&items).Error
	return items, err
}

func (r *syncRepository) ListRecentErrors(limit int) ([]ErrorEventItem, error) {
	limit = clampListLimit(limit)
	var items []ErrorEventItem
	err := r.db.Model(&domain.SyncEvent{}).
		Joins("JOIN mailboxes ON mailboxes.id = sync_events.mailbox_id").
		Select("sync_events.id, sync_events.run_id, sync_events.mailbox_id, mailboxes.email AS mailbox_email, sync_events.code, sync_events.message, sync_events.payload, sync_events.created_at").
		Where("sync_events.level = ?", domain.LevelError).
		Order("sync_events.created_at DESC").
		Limit(limit).
		Scan(&items).Error
	return items, err
}

func (r *syncRepository) ListRunsSince(since time.Time) ([]domain.SyncRun, error) {
	var runs []domain.SyncRun
	err := r.db.Where("created_at >= ?", since).Find(&runs).Error
	return runs, err
}

func clampListLimit(limit int) int {
	if limit < 1 {
		return 20
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func marshalJSON(value map[string]interface{}) (datatypes.JSON, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}
