package models

// Ticket is the minimal view of a helpdesk ticket this service needs.
// The ticket lifecycle itself is owned elsewhere.
type Ticket struct {
	BaseModel

	Subject string `json:"subject"`

	Attachments []Attachment `json:"attachments,omitempty"`
}
