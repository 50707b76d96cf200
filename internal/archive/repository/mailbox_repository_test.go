package repository

import (
	"testing"
	"time"

	"duckmail-archive/internal/archive/domain"
)

func TestMailboxUpsertUpdatesOnEmailConflict(t *testing.T) {
	db := newTestDB(t)
	repo := NewMailboxRepository(db)

	first, err := repo.Upsert(UpsertMailboxInput{
		Email:       "same@duck.test",
		PasswordEnc: "v1.enc.old",
		Provider:    "mail.tm",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := repo.Upsert(UpsertMailboxInput{
		Email:       "same@duck.test",
		PasswordEnc: "v1.enc.new",
		Provider:    "mail.tm",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row on email conflict, got new id")
	}
	if second.PasswordEnc != "v1.enc.new" {
		t.Fatalf("expected credential rotation, got %q", second.PasswordEnc)
	}

	all, err := repo.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 mailbox, got %d", len(all))
	}
}

func TestMailboxSetActiveAndListActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewMailboxRepository(db)
	on := seedMailbox(t, db, "on@duck.test")
	off := seedMailbox(t, db, "off@duck.test")

	if _, err := repo.SetActive(off.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}

	active, err := repo.ListActive(nil)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != on.ID {
		t.Fatalf("expected only the active mailbox, got %d rows", len(active))
	}

	filtered, err := repo.ListActive([]string{off.ID})
	if err != nil {
		t.Fatalf("list active filtered: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("inactive mailbox must not pass the id filter")
	}
}

func TestMailboxDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	mailboxes := NewMailboxRepository(db)
	messages := NewMessageRepository(db)
	syncs := NewSyncRepository(db)

	mailbox := seedMailbox(t, db, "cascade@duck.test")
	if err := messages.Upsert(mailbox.ID, UpsertMessageInput{RemoteID: "r1"}); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	run, err := syncs.CreateRun(mailbox.ID, domain.TriggerManual, "", nil)
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}
	err = syncs.AppendEvent(AppendEventInput{RunID: run.ID, MailboxID: mailbox.ID, Message: "started"})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}

	ok, err := mailboxes.Delete(mailbox.ID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}

	for name, model := range map[string]interface{}{
		"messages": &domain.Message{},
		"runs":     &domain.SyncRun{},
		"events":   &domain.SyncEvent{},
	} {
		var count int64
		if err := db.Model(model).Where("mailbox_id = ?", mailbox.ID).Count(&count).Error; err != nil {
			t.Fatalf("count %s: %v", name, err)
		}
		if count != 0 {
			t.Fatalf("expected %s cascade-deleted, found %d", name, count)
		}
	}

	if loaded, err := mailboxes.GetByID(mailbox.ID); err != nil {
		t.Fatalf("get by id: %v", err)
	} else if loaded != nil {
		t.Fatalf("mailbox still present after delete")
	}

	again, err := mailboxes.Delete(mailbox.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if again {
		t.Fatalf("expected second delete to report not found")
	}
}

func TestMailboxUpdateLastSyncAt(t *testing.T) {
	db := newTestDB(t)
	repo := NewMailboxRepository(db)
	mailbox := seedMailbox(t, db, "stamp@duck.test")

	at := time.Now().Add(-time.Minute)
	if err := repo.UpdateLastSyncAt(mailbox.ID, at); err != nil {
		t.Fatalf("update last sync: %v", err)
	}
	loaded, err := repo.GetByID(mailbox.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if loaded.LastSyncAt == nil {
		t.Fatalf("expected last_sync_at to be set")
	}
}
