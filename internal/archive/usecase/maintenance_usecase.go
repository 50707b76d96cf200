package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"duckmail-archive/internal/archive/domain"
	"duckmail-archive/internal/archive/repository"
)

const (
	CodeTTLDelete = "TTL_DELETE"
	CodeTTLDryRun = "TTL_DRY_RUN"
	CodeTTLFailed = "TTL_FAILED"

	defaultRetentionDays     = 7
	maxRetentionDays         = 3650
	ttlDeleteLimitPerMailbox = 20000
)

type maintenanceUsecase struct {
	mailboxRepo repository.MailboxRepository
	messageRepo repository.MessageRepository
	syncRepo    repository.SyncRepository
}

func NewMaintenanceUsecase(
	mailboxRepo repository.MailboxRepository,
	messageRepo repository.MessageRepository,
	syncRepo repository.SyncRepository,
) MaintenanceUsecase {
	return &maintenanceUsecase{
		mailboxRepo: mailboxRepo,
		messageRepo: messageRepo,
		syncRepo:    syncRepo,
	}
}

// RunTTL purges messages older than the retention window, one audited run per
// mailbox. Dry runs only count what would go.
func (u *maintenanceUsecase) RunTTL(ctx context.Context, retentionDays int, dryRun bool) (TTLResult, error) {
	if retentionDays < 1 {
		retentionDays = defaultRetentionDays
	}
	retentionDays = domain.ClampInt(retentionDays, 1, maxRetentionDays)
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := TTLResult{RetentionDays: retentionDays, DryRun: dryRun}
	mailboxes, err := u.mailboxRepo.List()
	if err != nil {
		return result, err
	}

	for i := range mailboxes {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		report := u.runMailboxTTL(&mailboxes[i], cutoff, retentionDays, dryRun)
		result.Mailboxes = append(result.Mailboxes, report)
		result.TotalDeleted += report.DeletedCount
	}
	log.Printf("[TTL] Retention pass done: %d mailboxes, %d messages removed (dryRun=%v)", len(mailboxes), result.TotalDeleted, dryRun)
	return result, nil
}

func (u *maintenanceUsecase) runMailboxTTL(mailbox *domain.Mailbox, cutoff time.Time, retentionDays int, dryRun bool) TTLMailboxReport {
	report := TTLMailboxReport{MailboxID: mailbox.ID}

	expired, err := u.messageRepo.CountExpired(mailbox.ID, cutoff)
	if err != nil {
		report.ErrorMessage = err.Error()
		return report
	}
	report.ExpiredCount = expired
	if expired == 0 {
		return report
	}

	run, err := u.syncRepo.CreateRun(mailbox.ID, domain.TriggerTTL, domain.RunStatusRunning, nil)
	if err != nil {
		report.ErrorMessage = err.Error()
		return report
	}
	report.RunID = run.ID

	stats := map[string]interface{}{
		"retentionDays": retentionDays,
		"expired":       expired,
		"dryRun":        dryRun,
	}

	if dryRun {
		u.appendEvent(run.ID, mailbox.ID, domain.LevelInfo, CodeTTLDryRun,
			fmt.Sprintf("%d messages older than %d days would be removed", expired, retentionDays), stats)
		u.finishRun(run.ID, domain.RunStatusSuccess, "", stats)
		return report
	}

	deleted, err := u.messageRepo.DeleteExpired(mailbox.ID, cutoff, ttlDeleteLimitPerMailbox)
	if err != nil {
		report.ErrorMessage = err.Error()
		u.appendEvent(run.ID, mailbox.ID, domain.LevelError, CodeTTLFailed,
			fmt.Sprintf("Retention delete failed: %s", err), stats)
		u.finishRun(run.ID, domain.RunStatusFailed, err.Error(), stats)
		return report
	}
	report.DeletedCount = deleted
	stats["deleted"] = deleted

	u.appendEvent(run.ID, mailbox.ID, domain.LevelInfo, CodeTTLDelete,
		fmt.Sprintf("Removed %d messages older than %d days", deleted, retentionDays), stats)
	u.finishRun(run.ID, domain.RunStatusSuccess, "", stats)
	return report
}

func (u *maintenanceUsecase) finishRun(runID, status, errorMessage string, stats map[string]interface{}) {
	if err := u.syncRepo.FinishRun(runID, status, errorMessage, stats); err != nil {
		log.Printf("[TTL] Failed to close run %s: %v", runID, err)
	}
}

func (u *maintenanceUsecase) appendEvent(runID, mailboxID, level, code, message string, payload map[string]interface{}) {
	err := u.syncRepo.AppendEvent(repository.AppendEventInput{
		RunID:     runID,
		MailboxID: mailboxID,
		Level:     level,
		Code:      code,
		Message:   message,
		Payload:   payload,
	})
	if err != nil {
		log.Printf("[TTL] Failed to append event for run %s: %v", runID, err)
	}
}
