package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"duckmail-archive/internal/archive/domain"
	"duckmail-archive/internal/archive/repository"
)

var testDBCounter atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:usecase_test_%d?mode=memory&cache=shared&_busy_timeout=5000", testDBCounter.Add(1))
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

// plainCipher stores credentials as-is; the sync path only needs Decrypt to
// invert Encrypt.
type plainCipher struct{}

func (plainCipher) Encrypt(plainText string) (string, error) { return plainText, nil }
func (plainCipher) Decrypt(payload string) (string, error)   { return payload, nil }

// fakeProvider serves a fixed set of pages and counts calls. Safe for
// concurrent workers.
type fakeProvider struct {
	mu              sync.Mutex
	pages           []domain.MessagePage
	endlessPages    bool
	sessionErr      error
	sessionFailures int // fail this many CreateSession calls, then succeed; 0 means always
	detailErrFor    map[string]error
	deleteErrFor    map[string]error

	sessionCalls int
	listCalls    int
	detailCalls  int
	deleteCalls  int
	closedTokens []string
}

func (f *fakeProvider) CreateSession(ctx context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls++
	if f.sessionErr != nil && (f.sessionFailures == 0 || f.sessionCalls <= f.sessionFailures) {
		return "", f.sessionErr
	}
	return "token-" + email, nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, token string, page int) (domain.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.endlessPages {
		return domain.MessagePage{
			Items:   []domain.MessageSummary{{RemoteID: fmt.Sprintf("endless-%d", page)}},
			HasNext: true,
		}, nil
	}
	if page < 1 || page > len(f.pages) {
		return domain.MessagePage{}, nil
	}
	return f.pages[page-1], nil
}

func (f *fakeProvider) GetMessageDetail(ctx context.Context, token, remoteID string) (domain.MessageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	if err, ok := f.detailErrFor[remoteID]; ok {
		return domain.MessageDetail{}, err
	}
	subject := "subject " + remoteID
	body := "body " + remoteID
	now := time.Now()
	return domain.MessageDetail{
		RemoteID:    remoteID,
		Subject:     subject,
		FromAddress: "sender@example.com",
		ToAddresses: []string{"someone@duck.test"},
		Snippet:     body,
		BodyText:    body,
		ReceivedAt:  &now,
	}, nil
}

func (f *fakeProvider) DeleteMessage(ctx context.Context, token, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if err, ok := f.deleteErrFor[remoteID]; ok {
		return err
	}
	return nil
}

func (f *fakeProvider) CloseSession(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedTokens = append(f.closedTokens, token)
}

func intPtr(v int) *int {
	return &v
}

func pagesOf(counts ...int) []domain.MessagePage {
	pages := make([]domain.MessagePage, len(counts))
	serial := 0
	for i, count := range counts {
		items := make([]domain.MessageSummary, count)
		for j := range items {
			serial++
			items[j] = domain.MessageSummary{RemoteID: fmt.Sprintf("remote-%d", serial)}
		}
		pages[i] = domain.MessagePage{Items: items, HasNext: i < len(counts)-1}
	}
	return pages
}

type fixture struct {
	db           *gorm.DB
	mailboxRepo  repository.MailboxRepository
	messageRepo  repository.MessageRepository
	syncRepo     repository.SyncRepository
	settingsRepo repository.SettingsRepository
	provider     *fakeProvider
	sync         *syncUsecase
}

func newFixture(t *testing.T, provider *fakeProvider, cfg SyncConfig) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:           db,
		mailboxRepo:  repository.NewMailboxRepository(db),
		messageRepo:  repository.NewMessageRepository(db),
		syncRepo:     repository.NewSyncRepository(db),
		settingsRepo: repository.NewSettingsRepository(db),
		provider:     provider,
	}
	if cfg.QPS == 0 {
		cfg.QPS = 1000
	}
	uc := NewSyncUsecase(
		f.mailboxRepo, f.messageRepo, f.syncRepo, f.settingsRepo,
		plainCipher{},
		func(string) domain.MailProvider { return provider },
		cfg,
	)
	f.sync = uc.(*syncUsecase)
	f.sync.retryBase = time.Millisecond
	return f
}

func (f *fixture) seedMailbox(t *testing.T, email string) *domain.Mailbox {
	t.Helper()
	mailbox, err := f.mailboxRepo.Upsert(repository.UpsertMailboxInput{
		Email:       email,
		PasswordEnc: "secret-" + email,
		Provider:    "mail.tm",
	})
	if err != nil {
		t.Fatalf("seed mailbox %s: %v", email, err)
	}
	return mailbox
}

func (f *fixture) loadRun(t *testing.T, runID string) *domain.SyncRun {
	t.Helper()
	var run domain.SyncRun
	if err := f.db.First(&run, "id = ?", runID).Error; err != nil {
		t.Fatalf("load run %s: %v", runID, err)
	}
	return &run
}

func (f *fixture) eventCodes(t *testing.T, runID string) []string {
	t.Helper()
	events, err := f.syncRepo.ListEventsForRun(runID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	codes := make([]string, 0, len(events))
	for _, event := range events {
		if event.Code != nil {
			codes = append(codes, *event.Code)
		}
	}
	return codes
}
