package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gotrs-io/gotrs-mailpipe/internal/models"
	"github.com/gotrs-io/gotrs-mailpipe/internal/repository"
)

// TicketRepository provides an in-memory implementation of repository.TicketStore
type TicketRepository struct {
	tickets       map[int64]*models.Ticket
	messages      map[int64][]*models.Message
	nextTicketID  int64
	nextMessageID int64
	appendErr     error
	now           func() time.Time
	mu            sync.RWMutex
}

// NewTicketRepository creates a new in-memory ticket repository
func NewTicketRepository() *TicketRepository {
	return &TicketRepository{
		tickets:       make(map[int64]*models.Ticket),
		messages:      make(map[int64][]*models.Message),
		nextTicketID:  1,
		nextMessageID: 1,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// FailAppends makes every AppendMessage call return err until cleared with nil.
func (r *TicketRepository) FailAppends(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendErr = err
}

// Seed stores ticket under its own id, replacing any existing ticket.
func (r *TicketRepository) Seed(ticket models.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.Status == "" {
		ticket.Status = models.TicketStatusOpen
	}
	r.tickets[ticket.ID] = &ticket
	if ticket.ID >= r.nextTicketID {
		r.nextTicketID = ticket.ID + 1
	}
}

// GetTicket returns a copy of the ticket, or nil when it does not exist.
func (r *TicketRepository) GetTicket(_ context.Context, id int64) (*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, nil
	}
	cp := *ticket
	return &cp, nil
}

// AppendMessage adds msg to the ticket thread.
func (r *TicketRepository) AppendMessage(_ context.Context, msg *models.Message) (int64, error) {
	if err := repository.ValidateMessage(msg); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return 0, r.appendErr
	}

	msg.ID = r.nextMessageID
	r.nextMessageID++
	msg.CreatedAt = r.now()
	cp := *msg
	r.messages[msg.TicketID] = append(r.messages[msg.TicketID], &cp)
	return msg.ID, nil
}

// CreateTicket stores an open ticket and assigns its id.
func (r *TicketRepository) CreateTicket(_ context.Context, ticket *models.Ticket) (int64, error) {
	if err := repository.ValidateTicket(ticket); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket.ID = r.nextTicketID
	r.nextTicketID++
	ticket.UserEmail = strings.TrimSpace(ticket.UserEmail)
	ticket.Status = models.TicketStatusOpen
	if ticket.Priority == "" {
		ticket.Priority = "medium"
	}
	ticket.CreatedAt = r.now()
	ticket.UpdatedAt = ticket.CreatedAt
	cp := *ticket
	r.tickets[ticket.ID] = &cp
	return ticket.ID, nil
}

// ListMessages returns copies of the thread, oldest first.
func (r *TicketRepository) ListMessages(_ context.Context, ticketID, sinceID int64) ([]*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Message, 0, len(r.messages[ticketID]))
	for _, msg := range r.messages[ticketID] {
		if sinceID > 0 && msg.ID <= sinceID {
			continue
		}
		cp := *msg
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LastMessageID returns the highest message id on the ticket, or 0.
func (r *TicketRepository) LastMessageID(_ context.Context, ticketID int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last int64
	for _, msg := range r.messages[ticketID] {
		if msg.ID > last {
			last = msg.ID
		}
	}
	return last, nil
}

var _ repository.TicketStore = (*TicketRepository)(nil)
