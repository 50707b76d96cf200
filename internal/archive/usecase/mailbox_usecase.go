package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"duckmail-archive/internal/archive/domain"
	"duckmail-archive/internal/archive/repository"
	"duckmail-archive/pkg/crypto"
)

// CredentialCipher encrypts credentials for storage and recovers them for
// provider logins.
type CredentialCipher interface {
	Encrypt(plainText string) (string, error)
	Decrypt(payload string) (string, error)
}

var ErrMailboxNotFound = errors.New("mailbox not found")

type mailboxUsecase struct {
	mailboxRepo repository.MailboxRepository
	messageRepo repository.MessageRepository
	cipher      CredentialCipher
	providerFor ProviderFactory
}

func NewMailboxUsecase(
	mailboxRepo repository.MailboxRepository,
	messageRepo repository.MessageRepository,
	cipher CredentialCipher,
	providerFor ProviderFactory,
) MailboxUsecase {
	return &mailboxUsecase{
		mailboxRepo: mailboxRepo,
		messageRepo: messageRepo,
		cipher:      cipher,
		providerFor: providerFor,
	}
}

func (u *mailboxUsecase) Upsert(email, password, provider string) (*MailboxView, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}
	if provider == "" {
		provider = "mail.tm"
	}

	encrypted, err := u.cipher.Encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("encrypt credentials: %w", err)
	}
	mailbox, err := u.mailboxRepo.Upsert(repository.UpsertMailboxInput{
		Email:       email,
		PasswordEnc: encrypted,
		Provider:    provider,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Mailbox] Upserted mailbox %s (provider=%s)", email, provider)
	return u.toView(mailbox), nil
}

func (u *mailboxUsecase) List() ([]MailboxView, error) {
	mailboxes, err := u.mailboxRepo.List()
	if err != nil {
		return nil, err
	}
	views := make([]MailboxView, len(mailboxes))
	for i := range mailboxes {
		views[i] = *u.toView(&mailboxes[i])
	}
	return views, nil
}

func (u *mailboxUsecase) Get(id string) (*MailboxView, error) {
	mailbox, err := u.mailboxRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if mailbox == nil {
		return nil, ErrMailboxNotFound
	}
	return u.toView(mailbox), nil
}

func (u *mailboxUsecase) SetActive(id string, isActive bool) (*MailboxView, error) {
	mailbox, err := u.mailboxRepo.SetActive(id, isActive)
	if err != nil {
		return nil, err
	}
	if mailbox == nil {
		return nil, ErrMailboxNotFound
	}
	return u.toView(mailbox), nil
}

func (u *mailboxUsecase) Delete(id string) (bool, error) {
	deleted, err := u.mailboxRepo.Delete(id)
	if err != nil {
		return false, err
	}
	if deleted {
		log.Printf("[Mailbox] Deleted mailbox %s and its archive", id)
	}
	return deleted, nil
}

// TestLogin probes the provider with the stored credentials without touching
// the archive.
func (u *mailboxUsecase) TestLogin(ctx context.Context, id string) (TestLoginResult, error) {
	mailbox, err := u.mailboxRepo.GetByID(id)
	if err != nil {
		return TestLoginResult{}, err
	}
	if mailbox == nil {
		return TestLoginResult{}, ErrMailboxNotFound
	}

	password, err := u.cipher.Decrypt(mailbox.PasswordEnc)
	if err != nil {
		return TestLoginResult{}, fmt.Errorf("decrypt credentials: %w", err)
	}

	provider := u.providerFor(mailbox.Provider)
	token, err := provider.CreateSession(ctx, mailbox.Email, password)
	if err != nil {
		status := domain.ProviderStatus(err)
		switch {
		case status == 401 || status == 403 || status == 422:
			return TestLoginResult{ErrorCode: CodeInvalidCredentials, Message: "provider rejected the credentials"}, nil
		case domain.IsProviderTimeout(err):
			return TestLoginResult{ErrorCode: CodeUpstreamTimeout, Message: "provider did not answer in time"}, nil
		default:
			return TestLoginResult{ErrorCode: CodeUpstreamError, Message: err.Error()}, nil
		}
	}
	if closer, ok := provider.(domain.SessionCloser); ok {
		closer.CloseSession(token)
	}
	return TestLoginResult{OK: true}, nil
}

func (u *mailboxUsecase) toView(mailbox *domain.Mailbox) *MailboxView {
	count, err := u.messageRepo.CountByMailbox(mailbox.ID)
	if err != nil {
		log.Printf("[Mailbox] Failed to count messages for %s: %v", mailbox.Email, err)
	}
	return &MailboxView{
		ID:              mailbox.ID,
		Email:           mailbox.Email,
		Provider:        mailbox.Provider,
		IsActive:        mailbox.IsActive,
		PasswordPreview: crypto.Redact(mailbox.PasswordEnc),
		LastSyncAt:      mailbox.LastSyncAt,
		MessageCount:    count,
		CreatedAt:       mailbox.CreatedAt,
		UpdatedAt:       mailbox.UpdatedAt,
	}
}
