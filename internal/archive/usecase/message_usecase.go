package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"duckmail-archive/internal/archive/domain"
	"duckmail-archive/internal/archive/repository"
)

// Deletion modes and their audit codes.
const (
	DeleteModeLocal  = "local"
	DeleteModeRemote = "remote"
	DeleteModeBoth   = "both"

	CodeDeleteBegin        = "DELETE_BEGIN"
	CodeDeleteOK           = "DELETE_OK"
	CodeDeletePartial      = "DELETE_PARTIAL"
	CodeRemoteNotFound     = "REMOTE_NOT_FOUND"
	CodeRemoteDeleteFailed = "REMOTE_DELETE_FAILED"
)

// Remote deletion outcomes reported to the caller.
const (
	RemoteStatusDeleted  = "deleted"
	RemoteStatusNotFound = "not_found"
	RemoteStatusFailed   = "failed"
	RemoteStatusSkipped  = "skipped"
)

var ErrMessageNotFound = errors.New("message not found")

type messageUsecase struct {
	mailboxRepo repository.MailboxRepository
	messageRepo repository.MessageRepository
	syncRepo    repository.SyncRepository
	cipher      CredentialCipher
	providerFor ProviderFactory
}

func NewMessageUsecase(
	mailboxRepo repository.MailboxRepository,
	messageRepo repository.MessageRepository,
	syncRepo repository.SyncRepository,
	cipher CredentialCipher,
	providerFor ProviderFactory,
) MessageUsecase {
	return &messageUsecase{
		mailboxRepo: mailboxRepo,
		messageRepo: messageRepo,
		syncRepo:    syncRepo,
		cipher:      cipher,
		providerFor: providerFor,
	}
}

func (u *messageUsecase) Search(params repository.SearchMessagesParams) ([]repository.MessageListItem, int64, error) {
	return u.messageRepo.Search(params)
}

func (u *messageUsecase) GetDetail(id string) (*repository.MessageDetailItem, error) {
	item, err := u.messageRepo.GetDetail(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrMessageNotFound
	}
	return item, nil
}

// Delete removes a message in the requested scope. The local archive copy is
// soft-deleted; the provider copy is deleted through the mailbox's stored
// credentials. Every deletion is audited as its own run.
func (u *messageUsecase) Delete(ctx context.Context, id, mode string) (*DeleteMessageResult, error) {
	if mode == "" {
		mode = DeleteModeLocal
	}
	if mode != DeleteModeLocal && mode != DeleteModeRemote && mode != DeleteModeBoth {
		return nil, fmt.Errorf("unknown delete mode %q", mode)
	}

	message, err := u.messageRepo.GetDetail(id)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, ErrMessageNotFound
	}

	run, err := u.syncRepo.CreateRun(message.MailboxID, domain.TriggerAPIDelete, domain.RunStatusRunning, nil)
	if err != nil {
		return nil, err
	}
	result := &DeleteMessageResult{Mode: mode, RunID: run.ID, RemoteStatus: RemoteStatusSkipped}
	u.appendEvent(run.ID, message.MailboxID, domain.LevelInfo, CodeDeleteBegin,
		fmt.Sprintf("Delete requested for message %s (mode=%s)", message.RemoteID, mode),
		map[string]interface{}{"messageId": id, "mode": mode})

	if mode == DeleteModeRemote || mode == DeleteModeBoth {
		result.RemoteStatus = u.deleteRemote(ctx, run.ID, message)
	}

	if mode == DeleteModeLocal || mode == DeleteModeBoth {
		deleted, derr := u.messageRepo.MarkDeleted(id, time.Now())
		if derr != nil {
			u.finishDelete(run.ID, message.MailboxID, result, derr.Error())
			return result, derr
		}
		result.LocalDeleted = deleted
	}

	u.finishDelete(run.ID, message.MailboxID, result, "")
	return result, nil
}

func (u *messageUsecase) deleteRemote(ctx context.Context, runID string, message *repository.MessageDetailItem) string {
	mailbox, err := u.mailboxRepo.GetByID(message.MailboxID)
	if err != nil || mailbox == nil {
		u.appendEvent(runID, message.MailboxID, domain.LevelError, CodeRemoteDeleteFailed,
			"Mailbox lookup failed for remote delete", nil)
		return RemoteStatusFailed
	}

	password, err := u.cipher.Decrypt(mailbox.PasswordEnc)
	if err != nil {
		u.appendEvent(runID, mailbox.ID, domain.LevelError, CodeRemoteDeleteFailed,
			fmt.Sprintf("Credential decrypt failed: %s", err), nil)
		return RemoteStatusFailed
	}

	provider := u.providerFor(mailbox.Provider)
	token, err := provider.CreateSession(ctx, mailbox.Email, password)
	if err != nil {
		u.appendEvent(runID, mailbox.ID, domain.LevelError, CodeRemoteDeleteFailed,
			fmt.Sprintf("Provider login failed: %s", err), nil)
		return RemoteStatusFailed
	}
	if closer, ok := provider.(domain.SessionCloser); ok {
		defer closer.CloseSession(token)
	}

	err = provider.DeleteMessage(ctx, token, message.RemoteID)
	if err != nil {
		if domain.ProviderStatus(err) == 404 {
			// Already gone upstream: a fine outcome for a delete.
			u.appendEvent(runID, mailbox.ID, domain.LevelWarn, CodeRemoteNotFound,
				fmt.Sprintf("Message %s no longer exists upstream", message.RemoteID), nil)
			return RemoteStatusNotFound
		}
		u.appendEvent(runID, mailbox.ID, domain.LevelError, CodeRemoteDeleteFailed,
			fmt.Sprintf("Remote delete failed: %s", err), nil)
		return RemoteStatusFailed
	}
	return RemoteStatusDeleted
}

func (u *messageUsecase) finishDelete(runID, mailboxID string, result *DeleteMessageResult, errorMessage string) {
	partial := errorMessage != "" || result.RemoteStatus == RemoteStatusFailed
	stats := map[string]interface{}{
		"mode":         result.Mode,
		"localDeleted": result.LocalDeleted,
		"remoteStatus": result.RemoteStatus,
	}

	status := domain.RunStatusSuccess
	code := CodeDeleteOK
	level := domain.LevelInfo
	message := "Delete completed"
	if partial {
		status = domain.RunStatusFailed
		code = CodeDeletePartial
		level = domain.LevelWarn
		message = "Delete completed partially"
	}

	if err := u.syncRepo.FinishRun(runID, status, errorMessage, stats); err != nil {
		log.Printf("[MessageDelete] Failed to close run %s: %v", runID, err)
	}
	u.appendEvent(runID, mailboxID, level, code, message, stats)
}

func (u *messageUsecase) appendEvent(runID, mailboxID, level, code, message string, payload map[string]interface{}) {
	err := u.syncRepo.AppendEvent(repository.AppendEventInput{
		RunID:     runID,
		MailboxID: mailboxID,
		Level:     level,
		Code:      code,
		Message:   message,
		Payload:   payload,
	})
	if err != nil {
		log.Printf("[MessageDelete] Failed to append event for run %s: %v", runID, err)
	}
}
