package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Mailbox is an archived disposable mailbox. The credential is stored
// encrypted; only the sync core decrypts it, in memory, for the duration of
// one sync.
type Mailbox struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	Email       string         `json:"email" gorm:"uniqueIndex:mailboxes_email_unique;not null"`
	PasswordEnc string         `json:"-" gorm:"not null"`
	Provider    string         `json:"provider" gorm:"not null;default:mail.tm"`
	IsActive    bool           `json:"is_active" gorm:"index:mailboxes_is_active_idx;not null;default:true"`
	LastSyncAt  *time.Time     `json:"last_sync_at"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Mailbox) TableName() string {
	return "mailboxes"
}
