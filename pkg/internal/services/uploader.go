package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Caller identifies who triggered an upload or deletion. The permission check
// already happened by the time a Caller reaches the pipeline.
type Caller struct {
	UserID    uint
	IP        string
	UserAgent string
}

type UploadRequest struct {
	Caller

	TicketID         uint
	OriginalName     string
	DeclaredMimeType string
	SizeBytes        int64
	Body             io.Reader
}

// ReplicaQueue receives clean attachments for off-site copies.
type ReplicaQueue interface {
	Enqueue(ctx context.Context, attachment models.Attachment)
	RemoveAll(ctx context.Context, attachmentID uint) error
}

type Uploader struct {
	Repository  Repository
	Storage     *LocalStorage
	Scanner     Scanner
	Activity    ActivityRecorder
	Replicas    ReplicaQueue
	Metadata    *MetadataCache
	ScanTimeout time.Duration

	now func() time.Time
}

func NewUploader(repo Repository, storage *LocalStorage) *Uploader {
	return &Uploader{
		Repository:  repo,
		Storage:     storage,
		Scanner:     NoopScanner{},
		ScanTimeout: DefaultScanTimeout,
		now:         time.Now,
	}
}

func (v *Uploader) clock() time.Time {
	if v.now == nil {
		return time.Now()
	}
	return v.now()
}

func (v *Uploader) scanner() Scanner {
	if v.Scanner == nil {
		return NoopScanner{}
	}
	return v.Scanner
}

// Upload runs one file through the security pipeline and returns the
// attachment it created. A quarantined file still yields an attachment.
// Expected refusals are returned as *UploadRejection; every attempt appends
// exactly one terminal upload log entry.
func (v *Uploader) Upload(ctx context.Context, policy UploadPolicy, req UploadRequest) (models.Attachment, error) {
	incoming := IncomingFile{
		OriginalName:     req.OriginalName,
		DeclaredMimeType: NormalizeMimeType(req.DeclaredMimeType),
		SizeBytes:        req.SizeBytes,
	}

	if err := CheckIncoming(policy, incoming); err != nil {
		v.appendFailure(ctx, req, incoming, err.Error())
		return models.Attachment{}, err
	}

	storedName := NewStoredName(req.OriginalName, policy.SanitizeFileNames, v.clock())
	written, err := v.Storage.Save(req.Body, storedName, policy.MaxFileSizeBytes)
	if err != nil {
		if errors.Is(err, ErrStreamTooLarge) {
			rejection := FileTooLarge(policy.MaxFileSizeMB())
			v.appendFailure(ctx, req, incoming, rejection.Message)
			return models.Attachment{}, rejection
		}
		log.Error().Err(err).Uint("ticket", req.TicketID).Msg("An error occurred when storing uploaded file...")
		v.appendFailure(ctx, req, incoming, "unable to store file")
		return models.Attachment{}, fmt.Errorf("unable to store file: %w", err)
	}
	incoming.SizeBytes = written
	incoming.StoredPath = storedName
	uploadBytesTotal.Add(float64(written))

	if _, err := v.Repository.FindTicket(ctx, req.TicketID); err != nil {
		v.discard(storedName)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rejection := TicketNotFound()
			v.appendFailure(ctx, req, incoming, rejection.Message)
			return models.Attachment{}, rejection
		}
		log.Error().Err(err).Uint("ticket", req.TicketID).Msg("An error occurred when looking up ticket...")
		v.appendFailure(ctx, req, incoming, "unable to look up ticket")
		return models.Attachment{}, fmt.Errorf("unable to look up ticket: %w", err)
	}

	sniff, scan, disposition := v.inspect(ctx, policy, incoming)
	scannedAt := v.clock()

	attachment := models.Attachment{
		TicketID:          req.TicketID,
		FileName:          req.OriginalName,
		SanitizedFileName: lo.Ternary(policy.SanitizeFileNames, SanitizeFileName(req.OriginalName), req.OriginalName),
		FileSize:          written,
		MimeType:          incoming.DeclaredMimeType,
		FilePath:          storedName,
		UploadedByID:      req.UserID,
		ScanStatus:        disposition.Status,
		ScanResult:        lo.ToPtr(disposition.Detail),
		ScannedAt:         &scannedAt,
	}
	if sniff != nil {
		attachment.DetectedMimeType = sniff.DetectedMimeType
	}

	if disposition.Blocking {
		if !policy.QuarantineEnabled {
			v.discard(storedName)
			rejection := FileRejected(disposition.Detail)
			v.appendFailure(ctx, req, incoming, rejection.Message)
			return models.Attachment{}, rejection
		}
		if err := v.quarantine(ctx, &attachment, disposition); err != nil {
			v.appendFailure(ctx, req, incoming, "unable to quarantine file")
			return models.Attachment{}, err
		}
	} else if err := v.Repository.CreateAttachment(ctx, &attachment); err != nil {
		v.discard(storedName)
		log.Error().Err(err).Uint("ticket", req.TicketID).Msg("An error occurred when saving attachment record...")
		v.appendFailure(ctx, req, incoming, "unable to save attachment")
		return models.Attachment{}, fmt.Errorf("unable to save attachment: %w", err)
	}

	v.appendLog(ctx, models.UploadLogEntry{
		FileName:     req.OriginalName,
		FileSize:     written,
		MimeType:     incoming.DeclaredMimeType,
		Status:       models.UploadLogSuccess,
		TicketID:     req.TicketID,
		AttachmentID: &attachment.ID,
		UserID:       req.UserID,
		IP:           req.IP,
		UserAgent:    req.UserAgent,
	})

	dispositionsTotal.WithLabelValues(string(disposition.Status), string(disposition.Reason)).Inc()
	log.Info().
		Uint("attachment", attachment.ID).
		Uint("ticket", req.TicketID).
		Str("status", string(disposition.Status)).
		Str("reason", string(disposition.Reason)).
		Bool("scanned", scan != nil).
		Msg("A file was uploaded.")

	v.recordActivity(ctx, attachment)

	if v.Metadata != nil {
		v.Metadata.Set(ctx, attachment)
	}
	if v.Replicas != nil && attachment.ScanStatus == models.ScanStatusClean {
		v.Replicas.Enqueue(ctx, attachment)
	}

	return attachment, nil
}

// inspect runs the content sniffer and, unless the sniffer already blocks,
// the threat scanner.
func (v *Uploader) inspect(ctx context.Context, policy UploadPolicy, file IncomingFile) (*ContentValidationResult, *ScanResult, Disposition) {
	if !policy.ScanEnabled {
		return nil, nil, ResolveDisposition(policy, nil, nil, nil)
	}

	path, err := v.Storage.Path(file.StoredPath)
	if err != nil {
		return nil, nil, ResolveDisposition(policy, nil, err, nil)
	}

	var sniff *ContentValidationResult
	var sniffErr error
	if policy.ScanMagicBytes {
		if result, err := SniffFile(path, file.DeclaredMimeType); err != nil {
			log.Warn().Err(err).Str("file", file.StoredPath).Msg("Unable to sniff uploaded file content...")
			sniffErr = err
		} else {
			sniff = &result
		}
	}

	disposition := ResolveDisposition(policy, sniff, sniffErr, nil)
	if disposition.Blocking || !policy.ScanVirus {
		return sniff, nil, disposition
	}

	start := time.Now()
	scan := ScanWithTimeout(ctx, v.scanner(), path, v.ScanTimeout)
	scanDuration.Observe(time.Since(start).Seconds())
	if scan.Error != nil {
		log.Warn().Str("file", file.StoredPath).Str("error", *scan.Error).Msg("Threat scan did not complete...")
	}

	return sniff, &scan, ResolveDisposition(policy, sniff, sniffErr, &scan)
}

// quarantine moves the stored file out of the uploads root and then saves
// the attachment together with its quarantine record.
func (v *Uploader) quarantine(ctx context.Context, attachment *models.Attachment, disposition Disposition) error {
	originalPath := attachment.FilePath
	quarantinePath, err := v.Storage.MoveToQuarantine(originalPath)
	if err != nil {
		v.discard(originalPath)
		log.Error().Err(err).Uint("ticket", attachment.TicketID).Msg("An error occurred when moving file into quarantine...")
		return fmt.Errorf("unable to quarantine file: %w", err)
	}

	record := models.QuarantineRecord{
		ID:                uuid.NewString(),
		FileName:          attachment.FileName,
		SanitizedFileName: attachment.SanitizedFileName,
		OriginalPath:      originalPath,
		QuarantinePath:    quarantinePath,
		FileSize:          attachment.FileSize,
		MimeType:          attachment.MimeType,
		DetectedMimeType:  attachment.DetectedMimeType,
		ScanResult:        attachment.ScanResult,
		Reason:            disposition.Reason,
		TicketID:          attachment.TicketID,
		UploadedByID:      attachment.UploadedByID,
	}
	attachment.FilePath = quarantinePath
	attachment.QuarantineID = &record.ID

	if err := v.Repository.CreateQuarantinedAttachment(ctx, attachment, &record); err != nil {
		// The file stays in quarantine without a matching record.
		log.Error().
			Err(err).
			Str("quarantine", record.ID).
			Uint("ticket", attachment.TicketID).
			Msg("An error occurred when saving quarantined attachment, file is left in quarantine...")
		return fmt.Errorf("unable to save quarantined attachment: %w", err)
	}
	return nil
}

// Delete removes an attachment together with its bytes and replicas. The
// file and replica removal are best-effort.
func (v *Uploader) Delete(ctx context.Context, attachment models.Attachment, caller Caller) error {
	if err := v.Storage.Remove(attachment.FilePath); err != nil {
		log.Warn().Err(err).Uint("attachment", attachment.ID).Msg("Unable to remove attachment file, skipped...")
	}
	if v.Replicas != nil {
		if err := v.Replicas.RemoveAll(ctx, attachment.ID); err != nil {
			log.Warn().Err(err).Uint("attachment", attachment.ID).Msg("Unable to remove attachment replicas, skipped...")
		}
	}

	if err := v.Repository.DeleteAttachment(ctx, attachment.ID); err != nil {
		return err
	}
	if v.Metadata != nil {
		v.Metadata.Delete(ctx, attachment.ID)
	}

	v.appendLog(ctx, models.UploadLogEntry{
		FileName:     attachment.FileName,
		FileSize:     attachment.FileSize,
		MimeType:     attachment.MimeType,
		Status:       models.UploadLogDeleted,
		TicketID:     attachment.TicketID,
		AttachmentID: lo.ToPtr(attachment.ID),
		UserID:       caller.UserID,
		IP:           caller.IP,
		UserAgent:    caller.UserAgent,
	})

	log.Info().Uint("attachment", attachment.ID).Uint("user", caller.UserID).Msg("An attachment was deleted.")
	return nil
}

// RecordFailure logs an attempt that failed before its body reached Upload.
func (v *Uploader) RecordFailure(ctx context.Context, req UploadRequest, message string) {
	v.appendFailure(ctx, req, IncomingFile{
		OriginalName:     req.OriginalName,
		DeclaredMimeType: NormalizeMimeType(req.DeclaredMimeType),
		SizeBytes:        req.SizeBytes,
	}, message)
}

func (v *Uploader) appendFailure(ctx context.Context, req UploadRequest, file IncomingFile, message string) {
	v.appendLog(ctx, models.UploadLogEntry{
		FileName:     req.OriginalName,
		FileSize:     file.SizeBytes,
		MimeType:     file.DeclaredMimeType,
		Status:       models.UploadLogFailed,
		ErrorMessage: &message,
		TicketID:     req.TicketID,
		UserID:       req.UserID,
		IP:           req.IP,
		UserAgent:    req.UserAgent,
	})
}

func (v *Uploader) appendLog(ctx context.Context, entry models.UploadLogEntry) {
	uploadsTotal.WithLabelValues(string(entry.Status)).Inc()
	if err := v.Repository.AppendUploadLog(ctx, &entry); err != nil {
		log.Error().
			Err(err).
			Uint("ticket", entry.TicketID).
			Str("status", string(entry.Status)).
			Msg("An error occurred when appending upload log...")
	}
}

func (v *Uploader) recordActivity(ctx context.Context, attachment models.Attachment) {
	if v.Activity == nil {
		return
	}
	activity := models.TicketActivity{
		TicketID:  attachment.TicketID,
		Type:      models.ActivityFileUploaded,
		UserID:    attachment.UploadedByID,
		RelatedID: lo.ToPtr(attachment.ID),
		Metadata: map[string]any{
			"file_name":   attachment.FileName,
			"file_size":   attachment.FileSize,
			"mime_type":   attachment.MimeType,
			"scan_status": string(attachment.ScanStatus),
		},
	}
	if err := v.Activity.RecordActivity(ctx, activity); err != nil {
		log.Warn().Err(err).Uint("attachment", attachment.ID).Msg("Unable to record ticket activity, skipped...")
	}
}

func (v *Uploader) discard(rel string) {
	if err := v.Storage.Remove(rel); err != nil {
		log.Warn().Err(err).Str("file", rel).Msg("Unable to remove discarded upload file...")
	}
}
