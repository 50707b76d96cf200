package repository

import (
	"time"
)

// UpsertMessageInput is the provider detail projected onto message columns.
type UpsertMessageInput struct {
	RemoteID    string
	Subject     *string
	FromAddress *string
	ToAddresses []string
	ReceivedAt  *time.Time
	Snippet     *string
	BodyText    *string
	BodyHTML    *string
}

// SearchMessagesParams filters the archive search. Zero values mean "no
// filter"; PageSize is clamped to [1,100].
type SearchMessagesParams struct {
	Mailbox        string
	Domain         string
	From           string
	Subject        string
	Q              string
	Start          *time.Time
	End            *time.Time
	IncludeDeleted bool
	Page           int
	PageSize       int
}

// MessageListItem is one search hit joined with its mailbox email.
type MessageListItem struct {
	ID           string     `json:"id"`
	MailboxID    string     `json:"mailbox_id"`
	MailboxEmail string     `json:"mailbox_email"`
	RemoteID     string     `json:"remote_id"`
	Subject      *string    `json:"subject"`
	FromAddress  *string    `json:"from_address"`
	Snippet      *string    `json:"snippet"`
	BodyText     *string    `json:"body_text"`
	ReceivedAt   *time.Time `json:"received_at"`
}

// MessageDetailItem is the full archived message view.
type MessageDetailItem struct {
	MessageListItem
	Provider  string     `json:"provider"`
	BodyHTML  *string    `json:"body_html"`
	DeletedAt *time.Time `json:"deleted_at"`
}

// MessageRepository defines archived message persistence operations
type MessageRepository interface {
	// Upsert inserts or, on (mailbox_id, remote_id) conflict, overwrites the
	// content columns. The soft-delete marker is never written.
	Upsert(mailboxID string, input UpsertMessageInput) error
	Search(params SearchMessagesParams) ([]MessageListItem, int64, error)
	GetDetail(id string) (*MessageDetailItem, error)
	// MarkDeleted stamps the soft-delete marker; returns false when the
	// message does not exist.
	MarkDeleted(id string, at time.Time) (bool, error)
	CountByMailbox(mailboxID string) (int64, error)
	CountExpired(mailboxID string, cutoff time.Time) (int64, error)
	// DeleteExpired hard-deletes up to limit messages received at or before
	// cutoff and returns how many went away.
	DeleteExpired(mailboxID string, cutoff time.Time, limit int) (int64, error)
}
