package repository

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"duckmail-archive/internal/archive/domain"
)

var testDBCounter atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared&_busy_timeout=5000", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&domain.Mailbox{},
		&domain.Message{},
		&domain.SyncRun{},
		&domain.SyncEvent{},
		&domain.ArchiveSetting{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedMailbox(t *testing.T, db *gorm.DB, email string) *domain.Mailbox {
	t.Helper()
	repo := NewMailboxRepository(db)
	mailbox, err := repo.Upsert(UpsertMailboxInput{
		Email:       email,
		PasswordEnc: "v1.enc." + email,
		Provider:    "mail.tm",
	})
	if err != nil {
		t.Fatalf("seed mailbox %s: %v", email, err)
	}
	return mailbox
}
