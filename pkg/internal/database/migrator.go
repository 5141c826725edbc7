package database

import (
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"gorm.io/gorm"
)

var AutoMaintainRange = []any{
	&models.Ticket{},
	&models.Attachment{},
	&models.QuarantineRecord{},
	&models.UploadLogEntry{},
	&models.Setting{},
	&models.TicketActivity{},
	&models.AttachmentReplica{},
}

func RunMigration(source *gorm.DB) error {
	if err := source.AutoMigrate(
		AutoMaintainRange...,
	); err != nil {
		return err
	}

	return nil
}
