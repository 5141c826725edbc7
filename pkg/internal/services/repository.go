package services

import (
	"context"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the persistence the upload pipeline depends on. Lookups of
// missing rows return gorm.ErrRecordNotFound.
type Repository interface {
	FindTicket(ctx context.Context, id uint) (models.Ticket, error)

	CreateAttachment(ctx context.Context, attachment *models.Attachment) error
	// CreateQuarantinedAttachment stores the attachment and its quarantine
	// record together or not at all.
	CreateQuarantinedAttachment(ctx context.Context, attachment *models.Attachment, record *models.QuarantineRecord) error
	FindAttachment(ctx context.Context, id uint) (models.Attachment, error)
	ListAttachments(ctx context.Context, ticketID uint, take, offset int) ([]models.Attachment, int64, error)
	DeleteAttachment(ctx context.Context, id uint) error

	ListQuarantine(ctx context.Context, take, offset int) ([]models.QuarantineRecord, int64, error)

	AppendUploadLog(ctx context.Context, entry *models.UploadLogEntry) error
}

type ReplicaRepository interface {
	CreateReplica(ctx context.Context, replica *models.AttachmentReplica) error
	UpdateReplica(ctx context.Context, replica *models.AttachmentReplica) error
	ListReplicas(ctx context.Context, attachmentID uint) ([]models.AttachmentReplica, error)
	ListReplicasByStatus(ctx context.Context, status string, limit int) ([]models.AttachmentReplica, error)
	DeleteReplicas(ctx context.Context, attachmentID uint) error
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (v *GormRepository) FindTicket(ctx context.Context, id uint) (models.Ticket, error) {
	var ticket models.Ticket
	err := v.db.WithContext(ctx).Where("id = ?", id).First(&ticket).Error
	return ticket, err
}

func (v *GormRepository) CreateAttachment(ctx context.Context, attachment *models.Attachment) error {
	return v.db.WithContext(ctx).Create(attachment).Error
}

func (v *GormRepository) CreateQuarantinedAttachment(ctx context.Context, attachment *models.Attachment, record *models.QuarantineRecord) error {
	return v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attachment).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
}

func (v *GormRepository) FindAttachment(ctx context.Context, id uint) (models.Attachment, error) {
	var attachment models.Attachment
	err := v.db.WithContext(ctx).Where("id = ?", id).First(&attachment).Error
	return attachment, err
}

func (v *GormRepository) ListAttachments(ctx context.Context, ticketID uint, take, offset int) ([]models.Attachment, int64, error) {
	var count int64
	if err := v.db.WithContext(ctx).
		Model(&models.Attachment{}).
		Where("ticket_id = ?", ticketID).
		Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var attachments []models.Attachment
	if err := v.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at DESC").
		Limit(take).Offset(offset).
		Find(&attachments).Error; err != nil {
		return nil, 0, err
	}
	return attachments, count, nil
}

func (v *GormRepository) DeleteAttachment(ctx context.Context, id uint) error {
	tx := v.db.WithContext(ctx).Delete(&models.Attachment{}, "id = ?", id)
	if tx.Error != nil {
		return tx.Error
	} else if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (v *GormRepository) ListQuarantine(ctx context.Context, take, offset int) ([]models.QuarantineRecord, int64, error) {
	var count int64
	if err := v.db.WithContext(ctx).Model(&models.QuarantineRecord{}).Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var records []models.QuarantineRecord
	if err := v.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(take).Offset(offset).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, count, nil
}

func (v *GormRepository) AppendUploadLog(ctx context.Context, entry *models.UploadLogEntry) error {
	return v.db.WithContext(ctx).Create(entry).Error
}

func (v *GormRepository) CreateReplica(ctx context.Context, replica *models.AttachmentReplica) error {
	return v.db.WithContext(ctx).Omit(clause.Associations).Create(replica).Error
}

func (v *GormRepository) UpdateReplica(ctx context.Context, replica *models.AttachmentReplica) error {
	return v.db.WithContext(ctx).Omit(clause.Associations).Save(replica).Error
}

func (v *GormRepository) ListReplicas(ctx context.Context, attachmentID uint) ([]models.AttachmentReplica, error) {
	var replicas []models.AttachmentReplica
	err := v.db.WithContext(ctx).Where("attachment_id = ?", attachmentID).Find(&replicas).Error
	return replicas, err
}

func (v *GormRepository) ListReplicasByStatus(ctx context.Context, status string, limit int) ([]models.AttachmentReplica, error) {
	var replicas []models.AttachmentReplica
	err := v.db.WithContext(ctx).
		Where("status = ?", status).
		Preload("Attachment").
		Limit(limit).
		Find(&replicas).Error
	return replicas, err
}

func (v *GormRepository) DeleteReplicas(ctx context.Context, attachmentID uint) error {
	return v.db.WithContext(ctx).Delete(&models.AttachmentReplica{}, "attachment_id = ?", attachmentID).Error
}
