package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketHelpers(t *testing.T) {
	t.Run("RequesterMatches ignores case and padding", func(t *testing.T) {
		ticket := &Ticket{UserEmail: "alice@example.com"}
		assert.True(t, ticket.RequesterMatches("ALICE@EXAMPLE.COM"))
		assert.True(t, ticket.RequesterMatches(" alice@example.com "))
		assert.False(t, ticket.RequesterMatches("bob@example.com"))
	})

	t.Run("RequesterMatches rejects empty values", func(t *testing.T) {
		assert.False(t, (&Ticket{}).RequesterMatches(""))
		assert.False(t, (&Ticket{}).RequesterMatches("alice@example.com"))
		var nilTicket *Ticket
		assert.False(t, nilTicket.RequesterMatches("alice@example.com"))
	})

	t.Run("Status validity", func(t *testing.T) {
		assert.True(t, TicketStatusOpen.Valid())
		assert.True(t, TicketStatusSolved.Valid())
		assert.True(t, TicketStatusClosed.Valid())
		assert.False(t, TicketStatus("pending").Valid())
	})
}
