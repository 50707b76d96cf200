package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"duckmail-archive/internal/archive/domain"
	"duckmail-archive/internal/archive/repository"
	"duckmail-archive/pkg/config"
	"duckmail-archive/pkg/ratelimit"
	"duckmail-archive/pkg/retry"
)

// Audit codes recorded on sync events.
const (
	CodeSyncOK             = "SYNC_OK"
	CodeSyncFailed         = "SYNC_FAILED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeUpstreamError      = "UPSTREAM_ERROR"
	CodePageGuardLimit     = "PAGE_GUARD_LIMIT"
	CodeTokenRetry         = "TOKEN_RETRY"
	CodeListRetry          = "LIST_RETRY"
	CodeDetailRetry        = "DETAIL_RETRY"
)

type syncUsecase struct {
	mailboxRepo  repository.MailboxRepository
	messageRepo  repository.MessageRepository
	syncRepo     repository.SyncRepository
	settingsRepo repository.SettingsRepository
	decrypter    CredentialDecrypter
	providerFor  ProviderFactory
	gate         *ratelimit.Gate
	cfg          SyncConfig

	// Overridable in tests to keep backoff waits and long page scans out
	// of the test clock.
	retryAttempts int
	retryBase     time.Duration
	hardMaxPages  int
}

func NewSyncUsecase(
	mailboxRepo repository.MailboxRepository,
	messageRepo repository.MessageRepository,
	syncRepo repository.SyncRepository,
	settingsRepo repository.SettingsRepository,
	decrypter CredentialDecrypter,
	providerFor ProviderFactory,
	cfg SyncConfig,
) SyncUsecase {
	if cfg.QPS < 1 {
		cfg.QPS = 6
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 3
	}
	if cfg.MaxPages < 1 || cfg.MaxPages > config.HardMaxSyncPages {
		cfg.MaxPages = config.HardMaxSyncPages
	}
	return &syncUsecase{
		mailboxRepo:   mailboxRepo,
		messageRepo:   messageRepo,
		syncRepo:      syncRepo,
		settingsRepo:  settingsRepo,
		decrypter:     decrypter,
		providerFor:   providerFor,
		gate:          ratelimit.NewGate(cfg.QPS),
		cfg:           cfg,
		retryAttempts: 3,
		retryBase:     500 * time.Millisecond,
		hardMaxPages:  config.HardMaxSyncPages,
	}
}

// RunMailboxSync syncs the given mailboxes (all active ones when ids is
// empty) with a bounded worker pool over a shared mailbox cursor. All workers
// pace their provider calls through the same rate gate.
func (u *syncUsecase) RunMailboxSync(ctx context.Context, mailboxIDs []string, triggerType string) ([]MailboxSyncResult, error) {
	mailboxes, err := u.mailboxRepo.ListActive(mailboxIDs)
	if err != nil {
		return nil, err
	}
	if len(mailboxes) == 0 {
		return []MailboxSyncResult{}, nil
	}
	if triggerType == "" {
		triggerType = domain.TriggerManual
	}

	workers := u.cfg.Concurrency
	if workers > len(mailboxes) {
		workers = len(mailboxes)
	}
	log.Printf("[SyncEngine] Starting sync of %d mailboxes with %d workers (trigger=%s)", len(mailboxes), workers, triggerType)

	results := make([]MailboxSyncResult, len(mailboxes))
	var cursor int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				idx := cursor
				cursor++
				mu.Unlock()
				if idx >= len(mailboxes) {
					return
				}
				results[idx] = u.syncSingleMailbox(ctx, &mailboxes[idx], triggerType)
			}
		}()
	}
	wg.Wait()
	return results, nil
}

// syncSingleMailbox runs the full page scan for one mailbox and records the
// outcome in the run ledger. Errors other than ledger failures are captured
// in the result rather than propagated.
func (u *syncUsecase) syncSingleMailbox(ctx context.Context, mailbox *domain.Mailbox, triggerType string) MailboxSyncResult {
	result := MailboxSyncResult{MailboxID: mailbox.ID, Status: domain.RunStatusFailed}

	run, err := u.syncRepo.CreateRun(mailbox.ID, triggerType, domain.RunStatusRunning, nil)
	if err != nil {
		log.Printf("[SyncEngine] Failed to open run for mailbox %s: %v", mailbox.Email, err)
		result.ErrorCode = CodeSyncFailed
		result.ErrorMessage = err.Error()
		return result
	}
	result.RunID = run.ID

	u.appendEvent(run.ID, mailbox.ID, domain.LevelInfo, "", fmt.Sprintf("Sync started for %s", mailbox.Email), nil)

	fetched, upserted, scannedPages, err := u.scanMailbox(ctx, run, mailbox)
	result.Fetched = fetched
	result.Upserted = upserted
	result.ScannedPages = scannedPages
	stats := map[string]interface{}{
		"fetched":      fetched,
		"upserted":     upserted,
		"scannedPages": scannedPages,
	}

	if err != nil {
		code := classifyErrorCode(err)
		result.ErrorCode = code
		result.ErrorMessage = err.Error()
		if ferr := u.syncRepo.FinishRun(run.ID, domain.RunStatusFailed, err.Error(), stats); ferr != nil {
			log.Printf("[SyncEngine] Failed to close run %s: %v", run.ID, ferr)
		}
		u.appendEvent(run.ID, mailbox.ID, domain.LevelError, code, err.Error(), stats)
		log.Printf("[SyncEngine] Sync failed for %s: %s (%s)", mailbox.Email, err, code)
		return result
	}

	if ferr := u.syncRepo.FinishRun(run.ID, domain.RunStatusSuccess, "", stats); ferr != nil {
		log.Printf("[SyncEngine] Failed to close run %s: %v", run.ID, ferr)
	}
	u.appendEvent(run.ID, mailbox.ID, domain.LevelInfo, CodeSyncOK,
		fmt.Sprintf("Synced %d messages over %d pages", upserted, scannedPages), stats)
	if serr := u.mailboxRepo.UpdateLastSyncAt(mailbox.ID, time.Now()); serr != nil {
		log.Printf("[SyncEngine] Failed to stamp last_sync_at for %s: %v", mailbox.Email, serr)
	}
	result.Status = domain.RunStatusSuccess
	log.Printf("[SyncEngine] Sync completed for %s: fetched=%d upserted=%d pages=%d", mailbox.Email, fetched, upserted, scannedPages)
	return result
}

// scanMailbox walks the provider's message pages newest-first, upserting every
// message. A detail fetch that is still failing after its retries fails the
// whole run.
func (u *syncUsecase) scanMailbox(ctx context.Context, run *domain.SyncRun, mailbox *domain.Mailbox) (fetched, upserted, scannedPages int, err error) {
	password, err := u.decrypter.Decrypt(mailbox.PasswordEnc)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("decrypt credentials: %w", err)
	}

	provider := u.providerFor(mailbox.Provider)
	token, err := retry.Do(ctx, func() (string, error) {
		if gerr := u.gate.Acquire(ctx); gerr != nil {
			return "", gerr
		}
		return provider.CreateSession(ctx, mailbox.Email, password)
	}, retry.Options{
		Attempts:  u.retryAttempts,
		BaseDelay: u.retryBase,
		OnRetry: func(attempt int, rerr error) {
			u.appendEvent(run.ID, mailbox.ID, domain.LevelWarn, CodeTokenRetry,
				fmt.Sprintf("Token request failed (attempt %d): %s", attempt, rerr),
				map[string]interface{}{"attempt": attempt})
		},
	})
	if err != nil {
		return 0, 0, 0, err
	}
	if closer, ok := provider.(domain.SessionCloser); ok {
		defer closer.CloseSession(token)
	}

	maxPages := u.cfg.MaxPages
	if maxPages > u.hardMaxPages {
		maxPages = u.hardMaxPages
	}
	for page := 1; page <= maxPages; page++ {
		pageNum := page
		messagePage, lerr := retry.Do(ctx, func() (domain.MessagePage, error) {
			if gerr := u.gate.Acquire(ctx); gerr != nil {
				return domain.MessagePage{}, gerr
			}
			return provider.ListMessages(ctx, token, pageNum)
		}, retry.Options{
			Attempts:  u.retryAttempts,
			BaseDelay: u.retryBase,
			OnRetry: func(attempt int, rerr error) {
				u.appendEvent(run.ID, mailbox.ID, domain.LevelWarn, CodeListRetry,
					fmt.Sprintf("Page %d list failed (attempt %d): %s", pageNum, attempt, rerr),
					map[string]interface{}{"page": pageNum, "attempt": attempt})
			},
		})
		if lerr != nil {
			return fetched, upserted, scannedPages, lerr
		}
		scannedPages++
		if len(messagePage.Items) == 0 {
			break
		}

		for _, summary := range messagePage.Items {
			remoteID := summary.RemoteID
			detail, derr := retry.Do(ctx, func() (domain.MessageDetail, error) {
				if gerr := u.gate.Acquire(ctx); gerr != nil {
					return domain.MessageDetail{}, gerr
				}
				return provider.GetMessageDetail(ctx, token, remoteID)
			}, retry.Options{
				Attempts:  u.retryAttempts,
				BaseDelay: u.retryBase,
				OnRetry: func(attempt int, rerr error) {
					u.appendEvent(run.ID, mailbox.ID, domain.LevelWarn, CodeDetailRetry,
						fmt.Sprintf("Detail fetch failed for %s (attempt %d): %s", remoteID, attempt, rerr),
						map[string]interface{}{"remoteId": remoteID, "attempt": attempt})
				},
			})
			if derr != nil {
				return fetched, upserted, scannedPages, derr
			}
			fetched++

			uerr := u.messageRepo.Upsert(mailbox.ID, repository.UpsertMessageInput{
				RemoteID:    detail.RemoteID,
				Subject:     strOrNil(detail.Subject),
				FromAddress: strOrNil(detail.FromAddress),
				ToAddresses: detail.ToAddresses,
				ReceivedAt:  detail.ReceivedAt,
				Snippet:     strOrNil(detail.Snippet),
				BodyText:    strOrNil(detail.BodyText),
				BodyHTML:    strOrNil(detail.BodyHTML),
			})
			if uerr != nil {
				return fetched, upserted, scannedPages, fmt.Errorf("upsert message %s: %w", detail.RemoteID, uerr)
			}
			upserted++
		}

		if !messagePage.HasNext {
			break
		}
		if page == maxPages {
			// A deliberate small cap stops quietly; only hitting the
			// hard ceiling with messages remaining is worth a warning.
			if maxPages >= u.hardMaxPages {
				u.appendEvent(run.ID, mailbox.ID, domain.LevelWarn, CodePageGuardLimit,
					fmt.Sprintf("Stopped at hard page guard (%d pages); more messages remain", maxPages),
					map[string]interface{}{"maxPages": maxPages})
			}
			break
		}
	}
	return fetched, upserted, scannedPages, nil
}

// DispatchDueRuns queues due mailboxes up to maxQueue. Mailboxes with a run
// already in flight are skipped so the queue never holds duplicates.
func (u *syncUsecase) DispatchDueRuns(ctx context.Context, maxQueue, dueMinutes int) (DispatchResult, error) {
	if maxQueue < 1 {
		maxQueue = 30
	}
	maxQueue = domain.ClampInt(maxQueue, 1, 200)
	if dueMinutes < 1 {
		dueMinutes = 10
	}

	var result DispatchResult
	dueIDs, err := u.syncRepo.ListDueMailboxIDs(dueMinutes, maxQueue)
	if err != nil {
		return result, err
	}
	result.DueMailboxCount = len(dueIDs)
	if len(dueIDs) == 0 {
		return result, nil
	}

	runnable, err := u.syncRepo.FilterRunnableMailboxIDs(dueIDs)
	if err != nil {
		return result, err
	}
	result.SkippedInFlight = len(dueIDs) - len(runnable)
	if len(runnable) == 0 {
		return result, nil
	}

	queued, err := u.syncRepo.EnqueueRuns(runnable, domain.TriggerSchedule)
	if err != nil {
		return result, err
	}
	result.QueuedCount = len(queued)
	result.QueuedRunIDs = make([]string, len(queued))
	for i, run := range queued {
		result.QueuedRunIDs[i] = run.ID
	}
	log.Printf("[Dispatcher] Queued %d of %d due mailboxes (%d in flight)", result.QueuedCount, result.DueMailboxCount, result.SkippedInFlight)
	return result, nil
}

// ProcessQueuedRuns claims up to limit queued runs and syncs each claimed
// mailbox. The queue slot is closed as completed or failed with a pointer to
// the worker's own sync run.
func (u *syncUsecase) ProcessQueuedRuns(ctx context.Context, limit int) (ProcessResult, error) {
	if limit < 1 {
		limit = 20
	}
	limit = domain.ClampInt(limit, 1, 200)

	var result ProcessResult
	claimed, err := u.syncRepo.ClaimQueuedRuns(limit)
	if err != nil {
		return result, err
	}
	result.ClaimedCount = len(claimed)
	if len(claimed) == 0 {
		return result, nil
	}
	log.Printf("[QueueWorker] Claimed %d queued runs", len(claimed))

	for _, queuedRun := range claimed {
		syncResults, rerr := u.RunMailboxSync(ctx, []string{queuedRun.MailboxID}, domain.TriggerBackground)
		if rerr != nil || len(syncResults) == 0 {
			message := "mailbox not active"
			if rerr != nil {
				message = rerr.Error()
			}
			result.FailedCount++
			if cerr := u.syncRepo.CompleteQueuedRun(queuedRun.ID, domain.RunStatusFailed, message, map[string]interface{}{
				"errorCode": CodeSyncFailed,
			}); cerr != nil {
				log.Printf("[QueueWorker] Failed to close queue slot %s: %v", queuedRun.ID, cerr)
			}
			continue
		}

		syncResult := syncResults[0]
		result.Results = append(result.Results, syncResult)
		if syncResult.Status == domain.RunStatusSuccess {
			result.CompletedCount++
			if cerr := u.syncRepo.CompleteQueuedRun(queuedRun.ID, domain.RunStatusCompleted, "", map[string]interface{}{
				"workerRunId": syncResult.RunID,
				"fetched":     syncResult.Fetched,
				"upserted":    syncResult.Upserted,
			}); cerr != nil {
				log.Printf("[QueueWorker] Failed to close queue slot %s: %v", queuedRun.ID, cerr)
			}
		} else {
			result.FailedCount++
			if cerr := u.syncRepo.CompleteQueuedRun(queuedRun.ID, domain.RunStatusFailed, syncResult.ErrorMessage, map[string]interface{}{
				"workerRunId": syncResult.RunID,
				"errorCode":   syncResult.ErrorCode,
			}); cerr != nil {
				log.Printf("[QueueWorker] Failed to close queue slot %s: %v", queuedRun.ID, cerr)
			}
		}
	}
	return result, nil
}

// RunScheduledCycle performs one scheduler tick: dispatch due mailboxes,
// then drain a worker pass. A disabled scheduler or an interval that has
// not elapsed skips the whole cycle unless forced, leaving the queue alone.
func (u *syncUsecase) RunScheduledCycle(ctx context.Context, opts ScheduledCycleOptions) (ScheduledCycleResult, error) {
	var result ScheduledCycleResult
	settings, err := u.settingsRepo.GetSchedulerSettings()
	if err != nil {
		return result, err
	}

	if !settings.Enabled && !opts.Force {
		result.Skipped = true
		result.SkipReason = "disabled"
		return result, nil
	}
	if !opts.Force && settings.LastTriggeredAt != nil {
		elapsed := time.Since(*settings.LastTriggeredAt)
		if elapsed < time.Duration(settings.IntervalMinutes)*time.Minute {
			result.Skipped = true
			result.SkipReason = "interval-not-elapsed"
			return result, nil
		}
	}

	now := time.Now()
	if _, uerr := u.settingsRepo.UpdateSchedulerSettings(repository.UpdateSchedulerSettingsInput{
		LastTriggeredAt: &now,
	}); uerr != nil {
		return result, uerr
	}

	dueMinutes := settings.IntervalMinutes
	if opts.DueMinutes != nil {
		dueMinutes = *opts.DueMinutes
	}
	maxQueue := settings.MaxQueue
	if opts.MaxQueue != nil {
		maxQueue = *opts.MaxQueue
	}
	processLimit := settings.ProcessLimit
	if opts.ProcessLimit != nil {
		processLimit = *opts.ProcessLimit
	}

	result.Dispatch, err = u.DispatchDueRuns(ctx, maxQueue, dueMinutes)
	if err != nil {
		return result, err
	}
	result.Process, err = u.ProcessQueuedRuns(ctx, processLimit)
	return result, err
}

// QueueAllMailboxes queues a full sync for every requested active mailbox
// (all active ones when ids is empty) and kicks an async worker pass.
func (u *syncUsecase) QueueAllMailboxes(ctx context.Context, mailboxIDs []string) (QueueAllResult, error) {
	var result QueueAllResult
	mailboxes, err := u.mailboxRepo.ListActive(mailboxIDs)
	if err != nil {
		return result, err
	}
	result.RequestedMailboxCount = len(mailboxes)
	if len(mailboxes) == 0 {
		return result, nil
	}

	ids := make([]string, len(mailboxes))
	for i, mailbox := range mailboxes {
		ids[i] = mailbox.ID
	}
	runnable, err := u.syncRepo.FilterRunnableMailboxIDs(ids)
	if err != nil {
		return result, err
	}
	result.SkippedInFlight = len(ids) - len(runnable)
	if len(runnable) == 0 {
		return result, nil
	}

	queued, err := u.syncRepo.EnqueueRuns(runnable, domain.TriggerManualFull)
	if err != nil {
		return result, err
	}
	result.QueuedCount = len(queued)
	result.QueuedRunIDs = make([]string, len(queued))
	for i, run := range queued {
		result.QueuedRunIDs[i] = run.ID
	}

	go func() {
		if _, perr := u.ProcessQueuedRuns(context.Background(), len(queued)); perr != nil {
			log.Printf("[SyncEngine] Background processing after run-all failed: %v", perr)
		}
	}()
	return result, nil
}

func (u *syncUsecase) ListRecentRuns(limit int) ([]repository.RunListItem, error) {
	return u.syncRepo.ListRecentRuns(limit)
}

func (u *syncUsecase) ListRecentErrors(limit int) ([]repository.ErrorEventItem, error) {
	return u.syncRepo.ListRecentErrors(limit)
}

func (u *syncUsecase) ListRunEvents(runID string) ([]domain.SyncEvent, error) {
	return u.syncRepo.ListEventsForRun(runID)
}

func (u *syncUsecase) GetSchedulerSettings() (domain.SchedulerSettings, error) {
	return u.settingsRepo.GetSchedulerSettings()
}

func (u *syncUsecase) UpdateSchedulerSettings(input repository.UpdateSchedulerSettingsInput) (domain.SchedulerSettings, error) {
	return u.settingsRepo.UpdateSchedulerSettings(input)
}

func (u *syncUsecase) appendEvent(runID, mailboxID, level, code, message string, payload map[string]interface{}) {
	err := u.syncRepo.AppendEvent(repository.AppendEventInput{
		RunID:     runID,
		MailboxID: mailboxID,
		Level:     level,
		Code:      code,
		Message:   message,
		Payload:   payload,
	})
	if err != nil {
		log.Printf("[SyncEngine] Failed to append event for run %s: %v", runID, err)
	}
}

// classifyErrorCode maps a sync failure onto its audit code.
func classifyErrorCode(err error) string {
	status := domain.ProviderStatus(err)
	switch {
	case status == 401 || status == 403:
		return CodeInvalidCredentials
	case domain.IsProviderTimeout(err):
		return CodeUpstreamTimeout
	default:
		var pe *domain.ProviderError
		if errors.As(err, &pe) {
			return CodeUpstreamError
		}
		return CodeSyncFailed
	}
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
