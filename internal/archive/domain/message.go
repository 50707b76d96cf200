package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Message is one archived provider message. (MailboxID, RemoteID) is unique:
// re-syncing an already archived message updates its content in place.
// DeletedAt is a soft-delete marker owned by the deletion workflow; the sync
// upsert never touches it.
type Message struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	MailboxID   string         `json:"mailbox_id" gorm:"uniqueIndex:messages_mailbox_id_remote_id_unique;index:messages_mailbox_received_at_idx;not null"`
	RemoteID    string         `json:"remote_id" gorm:"uniqueIndex:messages_mailbox_id_remote_id_unique;not null"`
	Subject     *string        `json:"subject" gorm:"index:messages_subject_idx"`
	FromAddress *string        `json:"from_address" gorm:"index:messages_from_address_idx"`
	ToAddresses datatypes.JSON `json:"to_addresses"`
	ReceivedAt  *time.Time     `json:"received_at" gorm:"index:messages_mailbox_received_at_idx"`
	Snippet     *string        `json:"snippet"`
	BodyText    *string        `json:"body_text"`
	BodyHTML    *string        `json:"body_html" gorm:"column:body_html"`
	DeletedAt   *time.Time     `json:"deleted_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}
