package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MessageSummary is one entry of a provider message list page.
type MessageSummary struct {
	RemoteID    string
	Subject     string
	FromAddress string
	Snippet     string
}

// MessagePage is one page of the provider message list.
type MessagePage struct {
	Items   []MessageSummary
	HasNext bool
}

// MessageDetail is the full provider view of a single message.
type MessageDetail struct {
	RemoteID    string
	Subject     string
	FromAddress string
	ToAddresses []string
	Snippet     string
	BodyText    string
	BodyHTML    string
	ReceivedAt  *time.Time
}

// MailProvider is the upstream adapter contract consumed by the sync engine.
// ListMessages pages start at 1 and must be traversed in order; HasNext=false
// or an empty page terminates pagination.
type MailProvider interface {
	CreateSession(ctx context.Context, email, password string) (string, error)
	ListMessages(ctx context.Context, token string, page int) (MessagePage, error)
	GetMessageDetail(ctx context.Context, token, remoteID string) (MessageDetail, error)
	DeleteMessage(ctx context.Context, token, remoteID string) error
}

// SessionCloser is implemented by providers holding per-session resources
// (e.g. IMAP connections). Callers release sessions when a sync finishes.
type SessionCloser interface {
	CloseSession(token string)
}

// ProviderError is the typed failure returned by provider adapters instead of
// shapeless errors. Status carries the upstream HTTP status (or its closest
// equivalent) when one exists; Timeout marks deadline failures.
type ProviderError struct {
	Op      string
	Status  int
	Timeout bool
	Err     error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("provider %s timed out", e.Op)
	case e.Status > 0:
		return fmt.Sprintf("provider %s failed with status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("provider %s failed", e.Op)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ProviderStatus extracts the upstream status from err, or 0.
func ProviderStatus(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}

// IsProviderTimeout reports whether err is a provider timeout.
func IsProviderTimeout(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Timeout
}
