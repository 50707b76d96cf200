package main

import (
	"log"
	"strings"
	"time"

	api "duckmail-archive/cmd/api"
	"duckmail-archive/internal/archive/domain"
	"duckmail-archive/internal/archive/repository"
	"duckmail-archive/internal/archive/scheduler"
	"duckmail-archive/internal/archive/usecase"
	"duckmail-archive/pkg/config"
	"duckmail-archive/pkg/crypto"
	"duckmail-archive/pkg/database"
	"duckmail-archive/pkg/imapmail"
	"duckmail-archive/pkg/mailtm"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if cfg.MasterKey == "" {
		log.Fatal("ARCHIVE_MASTER_KEY is required")
	}

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(&domain.Mailbox{}, &domain.Message{}, &domain.SyncRun{}, &domain.SyncEvent{}, &domain.ArchiveSetting{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Credential encryption
	cipher, err := crypto.NewService(cfg.MasterKey)
	if err != nil {
		log.Fatal("Failed to initialize credential encryption:", err)
	}

	// Provider adapters. mail.tm mailboxes share one HTTP client; IMAP
	// mailboxes carry their server address in the provider label
	// ("imap:mail.example.org:993").
	mailtmClient := mailtm.NewClient(cfg.ProviderBaseURL)
	providerFor := func(provider string) domain.MailProvider {
		if addr, ok := strings.CutPrefix(provider, "imap:"); ok {
			return imapmail.NewClient(addr)
		}
		return mailtmClient
	}

	// Repositories (dependency injection)
	mailboxRepo := repository.NewMailboxRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	syncRepo := repository.NewSyncRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// Use cases
	syncUsecase := usecase.NewSyncUsecase(mailboxRepo, messageRepo, syncRepo, settingsRepo, cipher, providerFor, usecase.SyncConfig{
		QPS:         cfg.SyncQPS,
		Concurrency: cfg.SyncConcurrency,
		MaxPages:    cfg.SyncMaxPages,
	})
	mailboxUsecase := usecase.NewMailboxUsecase(mailboxRepo, messageRepo, cipher, providerFor)
	messageUsecase := usecase.NewMessageUsecase(mailboxRepo, messageRepo, syncRepo, cipher, providerFor)
	maintenanceUsecase := usecase.NewMaintenanceUsecase(mailboxRepo, messageRepo, syncRepo)

	// Internal poller
	if cfg.PollerEnabled {
		poller := scheduler.NewPoller(syncUsecase, time.Duration(cfg.PollSeconds)*time.Second)
		poller.Start()
		defer poller.Stop()
	} else {
		log.Println("[Poller] Internal poller disabled by configuration")
	}

	// HTTP handler
	handler := api.NewHandler(cfg, syncUsecase, mailboxUsecase, messageUsecase, maintenanceUsecase)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
