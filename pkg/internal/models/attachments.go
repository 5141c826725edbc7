package models

import "time"

type ScanStatus string

const (
	ScanStatusPending     ScanStatus = "PENDING"
	ScanStatusClean       ScanStatus = "CLEAN"
	ScanStatusQuarantined ScanStatus = "QUARANTINED"
	ScanStatusScanFailed  ScanStatus = "SCAN_FAILED"
)

// QuarantinePathPrefix marks an Attachment.FilePath that lives under the
// quarantine root instead of the uploads root.
const QuarantinePathPrefix = "quarantine/"

type Attachment struct {
	BaseModel

	TicketID          uint    `json:"ticket_id" gorm:"index"`
	FileName          string  `json:"file_name"`
	SanitizedFileName string  `json:"sanitized_file_name"`
	FileSize          int64   `json:"file_size"`
	MimeType          string  `json:"mime_type"`
	DetectedMimeType  *string `json:"detected_mime_type"`
	FilePath          string  `json:"-"`
	UploadedByID      uint    `json:"uploaded_by_id"`

	ScanStatus   ScanStatus `json:"scan_status" gorm:"index"`
	ScanResult   *string    `json:"scan_result"`
	ScannedAt    *time.Time `json:"scanned_at"`
	QuarantineID *string    `json:"quarantine_id"`

	Ticket *Ticket `json:"-"`
}

func (v Attachment) IsQuarantined() bool {
	return v.ScanStatus == ScanStatusQuarantined
}
