package models

import "gorm.io/datatypes"

const ActivityFileUploaded = "file_uploaded"

type TicketActivity struct {
	BaseModel

	TicketID  uint              `json:"ticket_id" gorm:"index"`
	Type      string            `json:"type"`
	UserID    uint              `json:"user_id"`
	RelatedID *uint             `json:"related_id"`
	Metadata  datatypes.JSONMap `json:"metadata"`
}
