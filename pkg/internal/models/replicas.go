package models

const (
	ReplicaStatusPending = "pending"
	ReplicaStatusActive  = "active"
	ReplicaStatusError   = "error"
)

// AttachmentReplica is an off-site copy of a clean attachment, kept apart
// from the attachment row so the attachment itself stays immutable.
type AttachmentReplica struct {
	BaseModel

	Status      string `json:"status"`
	Destination string `json:"destination"`
	ObjectKey   string `json:"-"`

	AttachmentID uint       `json:"attachment_id" gorm:"index"`
	Attachment   Attachment `json:"-"`
}
