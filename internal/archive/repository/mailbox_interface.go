package repository

import (
	"time"

	"duckmail-archive/internal/archive/domain"
)

// UpsertMailboxInput carries an already-encrypted credential; encryption is
// the usecase's job.
type UpsertMailboxInput struct {
	Email       string
	PasswordEnc string
	Provider    string
}

// MailboxRepository defines mailbox persistence operations
type MailboxRepository interface {
	// Upsert inserts a mailbox or, on email conflict, refreshes its
	// credential and provider and reactivates it.
	Upsert(input UpsertMailboxInput) (*domain.Mailbox, error)
	List() ([]domain.Mailbox, error)
	GetByID(id string) (*domain.Mailbox, error)
	GetByEmail(email string) (*domain.Mailbox, error)
	SetActive(id string, isActive bool) (*domain.Mailbox, error)
	// Delete removes the mailbox and everything hanging off it (messages,
	// runs, events).
	Delete(id string) (bool, error)
	// ListActive returns active mailboxes, optionally restricted to ids.
	ListActive(ids []string) ([]domain.Mailbox, error)
	UpdateLastSyncAt(id string, at time.Time) error
}
