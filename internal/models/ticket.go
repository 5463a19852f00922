package models

import (
	"strings"
	"time"
)

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusSolved TicketStatus = "solved"
	TicketStatusClosed TicketStatus = "closed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusSolved, TicketStatusClosed:
		return true
	default:
		return false
	}
}

// Ticket represents a support request owned by the ticket store.
type Ticket struct {
	ID          int64        `json:"id" db:"id"`
	UserID      int64        `json:"user_id" db:"user_id"`
	UserEmail   string       `json:"user_email" db:"user_email"`
	UserName    string       `json:"user_name" db:"user_name"`
	ThemeName   string       `json:"theme_name" db:"theme_name"`
	LicenseCode string       `json:"license_code" db:"license_code"`
	Category    string       `json:"category" db:"category"`
	Title       string       `json:"title" db:"title"`
	Description string       `json:"description" db:"description"`
	Priority    string       `json:"priority" db:"priority"`
	Status      TicketStatus `json:"status" db:"status"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// RequesterMatches reports whether addr is the requester's address, ignoring case.
func (t *Ticket) RequesterMatches(addr string) bool {
	if t == nil {
		return false
	}
	want := strings.TrimSpace(t.UserEmail)
	got := strings.TrimSpace(addr)
	if want == "" || got == "" {
		return false
	}
	return strings.EqualFold(want, got)
}
