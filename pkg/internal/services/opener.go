package services

import (
	"context"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
)

// OpenAttachment resolves the local file behind an attachment for serving.
// Quarantined attachments yield ErrQuarantined no matter where their bytes
// live.
func OpenAttachment(ctx context.Context, repo Repository, storage *LocalStorage, id uint) (models.Attachment, string, error) {
	attachment, err := repo.FindAttachment(ctx, id)
	if err != nil {
		return attachment, "", err
	}
	if attachment.IsQuarantined() {
		return attachment, "", ErrQuarantined
	}

	fp, err := storage.ServePath(attachment.FilePath)
	if err != nil {
		return attachment, "", err
	}
	return attachment, fp, nil
}
