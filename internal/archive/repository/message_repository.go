package repository

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"duckmail-archive/internal/archive/domain"
)

// messageRepository implements MessageRepository on GORM
type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Upsert(mailboxID string, input UpsertMessageInput) error {
	now := time.Now()
	message := domain.Message{
		ID:          uuid.New().String(),
		MailboxID:   mailboxID,
		RemoteID:    input.RemoteID,
		Subject:     input.Subject,
		FromAddress: input.FromAddress,
		ReceivedAt:  input.ReceivedAt,
		Snippet:     input.Snippet,
		BodyText:    input.BodyText,
		BodyHTML:    input.BodyHTML,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(input.ToAddresses) > 0 {
		encoded, err := json.Marshal(input.ToAddresses)
		if err != nil {
			return err
		}
		message.ToAddresses = datatypes.JSON(encoded)
	}

	// deleted_at is deliberately absent from the conflict assignments: a
	// re-synced message must not lose its soft-delete marker.
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "mailbox_id"}, {Name: "remote_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subject", "from_address", "to_addresses", "received_at",
			"snippet", "body_text", "body_html", "updated_at",
		}),
	}).Create(&message).Error
}

func (r *messageRepository) searchQuery(params SearchMessagesParams) *gorm.DB {
	query := r.db.Model(&domain.Message{}).
		Joins("JOIN mailboxes ON mailboxes.id = messages.mailbox_id")

	if !params.IncludeDeleted {
		query = query.Where("messages.deleted_at IS NULL")
	}
	if like := normalizeLike(params.Mailbox); like != "" {
		query = query.Where("LOWER(mailboxes.email) LIKE ?", like)
	}
	if domainFilter := strings.ToLower(strings.TrimSpace(params.Domain)); domainFilter != "" {
		query = query.Where("LOWER(mailboxes.email) LIKE ?", "%@"+domainFilter)
	}
	if like := normalizeLike(params.From); like != "" {
		query = query.Where("LOWER(messages.from_address) LIKE ?", like)
	}
	if like := normalizeLike(params.Subject); like != "" {
		query = query.Where("LOWER(messages.subject) LIKE ?", like)
	}
	if like := normalizeLike(params.Q); like != "" {
		query = query.Where(
			"LOWER(messages.subject) LIKE ? OR LOWER(messages.snippet) LIKE ? OR LOWER(messages.body_text) LIKE ?",
			like, like, like,
		)
	}
	if params.Start != nil {
		query = query.Where("messages.received_at >= ?", *params.Start)
	}
	if params.End != nil {
		query = query.Where("messages.received_at <= ?", *params.End)
	}
	return query
}

func (r *messageRepository) Search(params SearchMessagesParams) ([]MessageListItem, int64, error) {
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := params.Page
	if page < 1 {
		page = 1
	}

	var total int64
	if err := r.searchQuery(params).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []MessageListItem
	err := r.searchQuery(params).
		Select("messages.id, messages.mailbox_id, mailboxes.email AS mailbox_email, messages.remote_id, messages.subject, messages.from_address, messages.snippet, messages.body_text, messages.received_at").
		Order("messages.received_at DESC, messages.id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Scan(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *messageRepository) GetDetail(id string) (*MessageDetailItem, error) {
	var item MessageDetailItem
	err := r.db.Model(&domain.Message{}).
		Joins("JOIN mailboxes ON mailboxes.id = messages.mailbox_id").
		Select("messages.id, messages.mailbox_id, mailboxes.email AS mailbox_email, mailboxes.provider, messages.remote_id, messages.subject, messages.from_address, messages.snippet, messages.body_text, messages.body_html, messages.received_at, messages.deleted_at").
		Where("messages.id = ?", id).
		Limit(1).
		Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *messageRepository) MarkDeleted(id string, at time.Time) (bool, error) {
	result := r.db.Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deleted_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *messageRepository) CountByMailbox(mailboxID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Message{}).Where("mailbox_id = ?", mailboxID).Count(&count).Error
	return count, err
}

func (r *messageRepository) CountExpired(mailboxID string, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Message{}).
		Where("mailbox_id = ? AND received_at <= ?", mailboxID, cutoff).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) DeleteExpired(mailboxID string, cutoff time.Time, limit int) (int64, error) {
	subQuery := r.db.Model(&domain.Message{}).
		Select("id").
		Where("mailbox_id = ? AND received_at <= ?", mailboxID, cutoff).
		Order("received_at ASC").
		Limit(limit)

	result := r.db.Where("id IN (?)", subQuery).Delete(&domain.Message{})
	return result.RowsAffected, result.Error
}

func normalizeLike(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return ""
	}
	return "%" + trimmed + "%"
}
