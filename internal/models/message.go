package models

import "time"

// SenderType classifies who authored a ticket message.
type SenderType string

const (
	SenderAgent SenderType = "agent"
	SenderUser  SenderType = "user"
)

// Message is a single entry in a ticket's conversation thread.
type Message struct {
	ID            int64      `json:"id" db:"id"`
	TicketID      int64      `json:"ticket_id" db:"ticket_id"`
	SenderType    SenderType `json:"sender_type" db:"sender_type"`
	SenderName    string     `json:"sender_name" db:"sender_name"`
	Body          string     `json:"message" db:"message"`
	AttachmentURL *string    `json:"attachment_url,omitempty" db:"attachment_url"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}
