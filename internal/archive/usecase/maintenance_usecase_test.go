package usecase

import (
	"context"
	"testing"
	"time"

	"duckmail-archive/internal/archive/domain"
	"duckmail-archive/internal/archive/repository"
)

func seedAgedMessages(t *testing.T, f *fixture, mailboxID string) {
	t.Helper()
	old := time.Now().AddDate(0, 0, -30)
	recent := time.Now().Add(-time.Hour)
	for _, row := range []struct {
		remoteID   string
		receivedAt *time.Time
	}{
		{"old-1", &old},
		{"old-2", &old},
		{"recent-1", &recent},
	} {
		err := f.messageRepo.Upsert(mailboxID, repository.UpsertMessageInput{
			RemoteID:   row.remoteID,
			ReceivedAt: row.receivedAt,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", row.remoteID, err)
		}
	}
}

func TestRunTTLDeletesExpired(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, SyncConfig{})
	mailbox := f.seedMailbox(t, "ttl@duck.test")
	seedAgedMessages(t, f, mailbox.ID)
	uc := NewMaintenanceUsecase(f.mailboxRepo, f.messageRepo, f.syncRepo)

	result, err := uc.RunTTL(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("run ttl: %v", err)
	}
	if result.TotalDeleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", result.TotalDeleted)
	}
	if len(result.Mailboxes) != 1 {
		t.Fatalf("expected 1 mailbox report, got %d", len(result.Mailboxes))
	}
	report := result.Mailboxes[0]
	if report.ExpiredCount != 2 || report.DeletedCount != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	run := f.loadRun(t, report.RunID)
	if run.TriggerType != domain.TriggerTTL || run.Status != domain.RunStatusSuccess {
		t.Fatalf("unexpected audit run: %+v", run)
	}

	remaining, err := f.messageRepo.CountByMailbox(mailbox.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected the recent message kept, got %d", remaining)
	}
}

func TestRunTTLDryRun(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, SyncConfig{})
	mailbox := f.seedMailbox(t, "dryrun@duck.test")
	seedAgedMessages(t, f, mailbox.ID)
	uc := NewMaintenanceUsecase(f.mailboxRepo, f.messageRepo, f.syncRepo)

	result, err := uc.RunTTL(context.Background(), 7, true)
	if err != nil {
		t.Fatalf("run ttl: %v", err)
	}
	if result.TotalDeleted != 0 {
		t.Fatalf("dry run must not delete, got %d", result.TotalDeleted)
	}
	if result.Mailboxes[0].ExpiredCount != 2 {
		t.Fatalf("expected 2 would-be deletions, got %d", result.Mailboxes[0].ExpiredCount)
	}

	count, err := f.messageRepo.CountByMailbox(mailbox.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("dry run removed messages: %d left", count)
	}

	codes := f.eventCodes(t, result.Mailboxes[0].RunID)
	if len(codes) != 1 || codes[0] != CodeTTLDryRun {
		t.Fatalf("expected TTL_DRY_RUN audit, got %v", codes)
	}
}

func TestRunTTLSkipsCleanMailboxes(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, SyncConfig{})
	mailbox := f.seedMailbox(t, "clean@duck.test")
	recent := time.Now().Add(-time.Hour)
	err := f.messageRepo.Upsert(mailbox.ID, repository.UpsertMessageInput{
		RemoteID:   "fresh",
		ReceivedAt: &recent,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	uc := NewMaintenanceUsecase(f.mailboxRepo, f.messageRepo, f.syncRepo)

	result, err := uc.RunTTL(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("run ttl: %v", err)
	}
	if result.Mailboxes[0].RunID != "" {
		t.Fatalf("clean mailbox must not get an audit run")
	}

	var runCount int64
	if err := f.db.Model(&domain.SyncRun{}).Count(&runCount).Error; err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if runCount != 0 {
		t.Fatalf("expected no runs, got %d", runCount)
	}
}
