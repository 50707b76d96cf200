package repository

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"duckmail-archive/internal/archive/domain"
)

// mailboxRepository implements MailboxRepository on GORM
type mailboxRepository struct {
	db *gorm.DB
}

func NewMailboxRepository(db *gorm.DB) MailboxRepository {
	return &mailboxRepository{db: db}
}

func (r *mailboxRepository) Upsert(input UpsertMailboxInput) (*domain.Mailbox, error) {
	now := time.Now()
	mailbox := domain.Mailbox{
		ID:          uuid.New().String(),
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordEnc: input.PasswordEnc,
		Provider:    input.Provider,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"password_enc", "provider", "is_active", "updated_at",
		}),
	}).Create(&mailbox).Error
	if err != nil {
		return nil, err
	}

	// The conflict path keeps the existing row id; re-read to return it.
	return r.GetByEmail(mailbox.Email)
}

func (r *mailboxRepository) List() ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := r.db.Order("updated_at DESC").Find(&mailboxes).Error
	return mailboxes, err
}

func (r *mailboxRepository) GetByID(id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := r.db.Where("id = ?", id).First(&mailbox).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &mailbox, nil
}

func (r *mailboxRepository) GetByEmail(email string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&mailbox).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &mailbox, nil
}

func (r *mailboxRepository) SetActive(id string, isActive bool) (*domain.Mailbox, error) {
	result := r.db.Model(&domain.Mailbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  isActive,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetByID(id)
}

func (r *mailboxRepository) Delete(id string) (bool, error) {
	deleted := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("mailbox_id = ?", id).Delete(&domain.SyncEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("mailbox_id = ?", id).Delete(&domain.SyncRun{}).Error; err != nil {
			return err
		}
		if err := tx.Where("mailbox_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Mailbox{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	return deleted, err
}

func (r *mailboxRepository) ListActive(ids []string) ([]domain.Mailbox, error) {
	query := r.db.Where("is_active = ?", true)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	var mailboxes []domain.Mailbox
	err := query.Order("updated_at DESC").Find(&mailboxes).Error
	return mailboxes, err
}

func (r *mailboxRepository) UpdateLastSyncAt(id string, at time.Time) error {
	return r.db.Model(&domain.Mailbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_sync_at": at,
			"updated_at":   at,
		}).Error
}
