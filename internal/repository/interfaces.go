package repository

import (
	"context"
	"errors"

	"github.com/gotrs-io/gotrs-mailpipe/internal/models"
)

var (
	// ErrInvalidMessage is returned when a message is missing its ticket, sender or body.
	ErrInvalidMessage = errors.New("invalid ticket message")
	// ErrInvalidTicket is returned when a ticket is missing its requester or title.
	ErrInvalidTicket = errors.New("invalid ticket")
)

// TicketStore defines the ticket and message operations backed by a store.
type TicketStore interface {
	// GetTicket returns nil without error when the ticket does not exist.
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	AppendMessage(ctx context.Context, msg *models.Message) (int64, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) (int64, error)
	// ListMessages returns messages oldest first, only those with an id
	// greater than sinceID when sinceID is positive.
	ListMessages(ctx context.Context, ticketID, sinceID int64) ([]*models.Message, error)
	LastMessageID(ctx context.Context, ticketID int64) (int64, error)
}

// ValidateMessage checks the fields every stored message needs.
func ValidateMessage(msg *models.Message) error {
	if msg == nil || msg.TicketID <= 0 || msg.Body == "" {
		return ErrInvalidMessage
	}
	switch msg.SenderType {
	case models.SenderAgent, models.SenderUser:
		return nil
	default:
		return ErrInvalidMessage
	}
}

// ValidateTicket checks the fields every stored ticket needs.
func ValidateTicket(ticket *models.Ticket) error {
	if ticket == nil || ticket.UserEmail == "" || ticket.Title == "" {
		return ErrInvalidTicket
	}
	return nil
}
