package models

import "time"

type UploadLogStatus string

const (
	UploadLogSuccess UploadLogStatus = "SUCCESS"
	UploadLogFailed  UploadLogStatus = "FAILED"
	UploadLogDeleted UploadLogStatus = "DELETED"
)

// UploadLogEntry is append-only.
type UploadLogEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	FileName     string          `json:"file_name"`
	FileSize     int64           `json:"file_size"`
	MimeType     string          `json:"mime_type"`
	Status       UploadLogStatus `json:"status" gorm:"index"`
	ErrorMessage *string         `json:"error_message"`
	TicketID     uint            `json:"ticket_id" gorm:"index"`
	AttachmentID *uint           `json:"attachment_id"`
	UserID       uint            `json:"user_id"`
	IP           string          `json:"ip"`
	UserAgent    string          `json:"user_agent"`
}
