package repository

import (
	"sync"
	"testing"
	"time"

	"duckmail-archive/internal/archive/domain"
)

func TestCreateAndFinishRun(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncRepository(db)
	mailbox := seedMailbox(t, db, "run@duck.test")

	run, err := repo.CreateRun(mailbox.ID, domain.TriggerManual, "", nil)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.Status != domain.RunStatusRunning {
		t.Fatalf("expected default status running, got %s", run.Status)
	}
	if run.StartedAt == nil {
		t.Fatalf("expected started_at to be set")
	}

	err = repo.FinishRun(run.ID, domain.RunStatusSuccess, "", map[string]interface{}{"fetched": 12})
	if err != nil {
		t.Fatalf("finish run: %v", err)
	}

	var stored domain.SyncRun
	if err := db.First(&stored, "id = ?", run.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if stored.Status != domain.RunStatusSuccess {
		t.Fatalf("expected success, got %s", stored.Status)
	}
	if stored.FinishedAt == nil {
		t.Fatalf("expected finished_at to be set")
	}
	if len(stored.Stats) == 0 {
		t.Fatalf("expected stats payload")
	}
}

func TestFinishRunIsTerminalOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncRepository(db)
	mailbox := seedMailbox(t, db, "terminal@duck.test")

	run, err := repo.CreateRun(mailbox.ID, domain.TriggerManual, "", nil)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := repo.FinishRun(run.ID, domain.RunStatusFailed, "boom", nil); err != nil {
		t.Fatalf("first finish: %v", err)
	}
	// A later finish must not flip a terminal run.
	if err := repo.FinishRun(run.ID, domain.RunStatusSuccess, "", nil); err != nil {
		t.Fatalf("second finish: %v", err)
	}

	var stored domain.SyncRun
	if err := db.First(&stored, "id = ?", run.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if stored.Status != domain.RunStatusFailed {
		t.Fatalf("terminal status regressed to %s", stored.Status)
	}
	if stored.ErrorMessage == nil || *stored.ErrorMessage != "boom" {
		t.Fatalf("expected error message to survive")
	}
}

func TestAppendAndListEvents(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncRepository(db)
	mailbox := seedMailbox(t, db, "events@duck.test")
	run, err := repo.CreateRun(mailbox.ID, domain.TriggerManual, "", nil)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	err = repo.AppendEvent(AppendEventInput{
		RunID:     run.ID,
		MailboxID: mailbox.ID,
		Message:   "sync started",
	})
	if err != nil {
		t.Fatalf("append info event: %v", err)
	}
	err = repo.AppendEvent(AppendEventInput{
		RunID:     run.ID,
		MailboxID: mailbox.ID,
		Level:     domain.LevelWarn,
		Code:      "TOKEN_RETRY",
		Message:   "token retry",
		Payload:   map[string]interface{}{"attempt": 1},
	})
	if err != nil {
		t.Fatalf("append warn event: %v", err)
	}

	events, err := repo.ListEventsForRun(run.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Level != domain.LevelInfo {
		t.Fatalf("expected default level info, got %s", events[0].Level)
	}
	if events[1].Code == nil || *events[1].Code != "TOKEN_RETRY" {
		t.Fatalf("expected TOKEN_RETRY code on second event")
	}
}

func TestListDueMailboxIDsOrdering(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncRepository(db)

	never := seedMailbox(t, db, "never@duck.test")
	stale := seedMailbox(t, db, "stale@duck.test")
	fresh := seedMailbox(t, db, "fresh@duck.test")
	inactive := seedMailbox(t, db, "inactive@duck.test")

	staleAt := time.Now().Add(-11 * time.Minute)
	freshAt := time.Now().Add(-5 * time.Minute)
	if err := db.Model(&domain.Mailbox{}).Where("id = ?", stale.ID).Update("last_sync_at", staleAt).Error; err != nil {
		t.Fatalf("set stale: %v", err)
	}
	if err := db.Model(&domain.Mailbox{}).Where("id = ?", fresh.ID).Update("last_sync_at", freshAt).Error; err != nil {
		t.Fatalf("set fresh: %v", err)
	}
	if err := db.Model(&domain.Mailbox{}).Where("id = ?", inactive.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	ids, err := repo.ListDueMailboxIDs(10, 30)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 due mailboxes, got %d (%v)", len(ids), ids)
	}
	// Never-synced comes first, then oldest last_sync_at.
	if ids[0] != never.ID || ids[1] != stale.ID {
		t.Fatalf("unexpected due order: %v", ids)
	}

	limited, err := repo.ListDueMailboxIDs(10, 1)
	if err != nil {
		t.Fatalf("list due limited: %v", err)
	}
	if len(limited) != 1 || limited[0] != never.ID {
		t.Fatalf("expected limit to keep the never-synced mailbox, got %v", limited)
	}
}

func TestEnqueueAndClaimQueuedRuns(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncRepository(db)
	a := seedMailbox(t, db, "queue-a@duck.test")
	b := seedMailbox(t, db, "queue-b@duck.test")

	queued, err := repo.EnqueueRuns([]string{a.ID, b.ID}, domain.TriggerSchedule)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("expected 2 queued runs, got %d", len(queued))
	}
	for _, run := range queued {
		if run.Status != domain.RunStatusQueued {
			t.Fatalf("expected queued status, got %s", run.Status)
		}
		if run.StartedAt != nil {
			t.Fatalf("queued run must not carry started_at")
		}
	}

	claimed, err := repo.ClaimQueuedRuns(10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed runs, got %d", len(claimed))
	}
	for _, run := range claimed {
		if run.Status != domain.RunStatusDispatching {
			t.Fatalf("expected dispatching, got %s", run.Status)
		}
		if run.StartedAt == nil {
			t.Fatalf("claimed run must carry started_at")
		}
	}

	again, err := repo.ClaimQueuedRuns(10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no runs on second claim, got %d", len(again))
	}
}

func TestClaimQueuedRunsIsExclusive(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncRepository(db)
	mailbox := seedMailbox(t, db, "race@duck.test")

	ids := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		ids = append(ids, mailbox.ID)
	}
	if _, err := repo.EnqueueRuns(ids, domain.TriggerSchedule); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.ClaimQueuedRuns(8)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			mu.Lock()
			for _, run := range claimed {
				seen[run.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 8 {
		t.Fatalf("expected all 8 runs claimed across workers, got %d", len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("run %s claimed %d times", id, count)
		}
	}
}

func TestFilterRunnableMailboxIDs(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncRepository(db)
	busy := seedMailbox(t, db, "busy@duck.test")
	idle := seedMailbox(t, db, "idle@duck.test")
	done := seedMailbox(t, db, "done@duck.test")

	if _, err := repo.EnqueueRuns([]string{busy.ID}, domain.TriggerSchedule); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	finished, err := repo.CreateRun(done.ID, domain.TriggerManual, "", nil)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := repo.FinishRun(finished.ID, domain.RunStatusSuccess, "", nil); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runnable, err := repo.FilterRunnableMailboxIDs([]string{busy.ID, idle.ID, done.ID})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(runnable) != 2 {
		t.Fatalf("expected 2 runnable mailboxes, got %v", runnable)
	}
	for _, id := range runnable {
		if id == busy.ID {
			t.Fatalf("mailbox with queued run must be excluded")
		}
	}
}

func TestListRecentRunsAndErrors(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncRepository(db)
	mailbox := seedMailbox(t, db, "recent@duck.test")

	run, err := repo.CreateRun(mailbox.ID, domain.TriggerManual, "", nil)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := repo.FinishRun(run.ID, domain.RunStatusFailed, "upstream down", nil); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	err = repo.AppendEvent(AppendEventInput{
		RunID:     run.ID,
		MailboxID: mailbox.ID,
		Level:     domain.LevelError,
		Code:      "UPSTREAM_ERROR",
		Message:   "upstream down",
	})
	if err != nil {
		t.Fatalf("append error event: %v", err)
	}

	runs, err := repo.ListRecentRuns(0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].MailboxEmail != "recent@duck.test" {
		t.Fatalf("expected mailbox email join, got %q", runs[0].MailboxEmail)
	}

	errs, err := repo.ListRecentErrors(0)
	if err != nil {
		t.Fatalf("list errors: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(errs))
	}
	if errs[0].Code == nil || *errs[0].Code != "UPSTREAM_ERROR" {
		t.Fatalf("unexpected error code: %v", errs[0].Code)
	}
}
