package models

import "time"

type QuarantineReason string

const (
	QuarantineReasonMimeMismatch QuarantineReason = "MIME_TYPE_MISMATCH"
	QuarantineReasonVirus        QuarantineReason = "VIRUS"
	QuarantineReasonScanFailed   QuarantineReason = "SCAN_FAILED"
	// QuarantineReasonSuspicious is reserved for manual administrative quarantine.
	QuarantineReasonSuspicious QuarantineReason = "SUSPICIOUS"
)

// QuarantineRecord is created once when a file is moved into quarantine and
// is never changed afterwards.
type QuarantineRecord struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	FileName          string           `json:"file_name"`
	SanitizedFileName string           `json:"sanitized_file_name"`
	OriginalPath      string           `json:"-"`
	QuarantinePath    string           `json:"-"`
	FileSize          int64            `json:"file_size"`
	MimeType          string           `json:"mime_type"`
	DetectedMimeType  *string          `json:"detected_mime_type"`
	ScanResult        *string          `json:"scan_result"`
	Reason            QuarantineReason `json:"reason"`
	TicketID          uint             `json:"ticket_id" gorm:"index"`
	UploadedByID      uint             `json:"uploaded_by_id"`
}
