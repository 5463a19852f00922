package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gotrs-io/gotrs-mailpipe/internal/database"
	"github.com/gotrs-io/gotrs-mailpipe/internal/models"
	"github.com/gotrs-io/gotrs-mailpipe/internal/utils"
)

// Stored sender_type values. Agents are persisted as "admin".
const (
	storedSenderAdmin = "admin"
	storedSenderUser  = "user"
)

// DefaultTablePrefix matches a stock WordPress install.
const DefaultTablePrefix = "wp_"

const ticketColumns = "id, user_id, user_email, user_name, theme_name, license_code, category, title, description, priority, status, created_at, updated_at"

// TicketRepository stores tickets and their message threads in the
// grt_tickets and grt_ticket_messages tables.
type TicketRepository struct {
	qb         *database.QueryBuilder
	driver     string
	prefix     string
	sanitizer  *utils.HTMLSanitizer
	legacyUTF8 bool
	now        func() time.Time
}

// TicketRepositoryOption customizes the SQL ticket store.
type TicketRepositoryOption func(*TicketRepository)

// WithTablePrefix overrides the table prefix (default "wp_").
func WithTablePrefix(prefix string) TicketRepositoryOption {
	return func(r *TicketRepository) {
		r.prefix = prefix
	}
}

// WithLegacyUTF8 strips characters that 3-byte utf8 MySQL columns reject.
func WithLegacyUTF8(enabled bool) TicketRepositoryOption {
	return func(r *TicketRepository) {
		r.legacyUTF8 = enabled
	}
}

// WithClock overrides the wall clock used for created_at.
func WithClock(now func() time.Time) TicketRepositoryOption {
	return func(r *TicketRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewTicketRepository creates a ticket store on an open connection.
func NewTicketRepository(db *sqlx.DB, opts ...TicketRepositoryOption) *TicketRepository {
	r := &TicketRepository{
		qb:        database.NewQueryBuilder(db),
		driver:    database.NormalizeDriver(db.DriverName()),
		prefix:    DefaultTablePrefix,
		sanitizer: utils.NewHTMLSanitizer(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *TicketRepository) ticketsTable() string  { return r.prefix + "grt_tickets" }
func (r *TicketRepository) messagesTable() string { return r.prefix + "grt_ticket_messages" }

type messageRow struct {
	ID            int64          `db:"id"`
	TicketID      int64          `db:"ticket_id"`
	SenderType    string         `db:"sender_type"`
	SenderName    string         `db:"sender_name"`
	Message       string         `db:"message"`
	AttachmentURL sql.NullString `db:"attachment_url"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (row messageRow) toModel() *models.Message {
	msg := &models.Message{
		ID:         row.ID,
		TicketID:   row.TicketID,
		SenderType: senderFromStored(row.SenderType),
		SenderName: row.SenderName,
		Body:       row.Message,
		CreatedAt:  row.CreatedAt,
	}
	if row.AttachmentURL.Valid && row.AttachmentURL.String != "" {
		url := row.AttachmentURL.String
		msg.AttachmentURL = &url
	}
	return msg
}

func senderToStored(st models.SenderType) string {
	if st == models.SenderAgent {
		return storedSenderAdmin
	}
	return storedSenderUser
}

func senderFromStored(v string) models.SenderType {
	if strings.EqualFold(v, storedSenderAdmin) {
		return models.SenderAgent
	}
	return models.SenderUser
}

// GetTicket returns the ticket with id, or nil when it does not exist.
func (r *TicketRepository) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	if id <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", ticketColumns, r.ticketsTable())
	var ticket models.Ticket
	if err := r.qb.GetContext(ctx, &ticket, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket %d: %w", id, err)
	}
	return &ticket, nil
}

// AppendMessage inserts msg into the ticket thread and returns its id. The
// body is sanitized before it is written.
func (r *TicketRepository) AppendMessage(ctx context.Context, msg *models.Message) (int64, error) {
	if err := ValidateMessage(msg); err != nil {
		return 0, err
	}
	body := r.sanitizer.Sanitize(msg.Body)
	name := strings.TrimSpace(utils.HTMLToText(msg.SenderName))
	if r.legacyUTF8 {
		body = utils.FilterUnicode(body)
		name = utils.FilterUnicode(name)
	}
	if strings.TrimSpace(body) == "" {
		return 0, ErrInvalidMessage
	}
	createdAt := r.now()

	var attachment interface{}
	if msg.AttachmentURL != nil && *msg.AttachmentURL != "" {
		attachment = *msg.AttachmentURL
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (ticket_id, sender_type, sender_name, message, attachment_url, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		r.messagesTable())
	id, err := r.insert(ctx, query, msg.TicketID, senderToStored(msg.SenderType), name, body, attachment, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to append message to ticket %d: %w", msg.TicketID, err)
	}

	msg.ID = id
	msg.Body = body
	msg.SenderName = name
	msg.CreatedAt = createdAt
	return id, nil
}

// CreateTicket inserts an open ticket and returns its id.
func (r *TicketRepository) CreateTicket(ctx context.Context, ticket *models.Ticket) (int64, error) {
	if err := ValidateTicket(ticket); err != nil {
		return 0, err
	}
	priority := ticket.Priority
	if priority == "" {
		priority = "medium"
	}
	now := r.now()
	query := fmt.Sprintf(
		"INSERT INTO %s (user_id, user_email, user_name, theme_name, license_code, category, title, description, priority, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ticketsTable())
	id, err := r.insert(ctx, query,
		ticket.UserID,
		strings.TrimSpace(ticket.UserEmail),
		ticket.UserName,
		ticket.ThemeName,
		ticket.LicenseCode,
		ticket.Category,
		ticket.Title,
		r.sanitizer.Sanitize(ticket.Description),
		priority,
		string(models.TicketStatusOpen),
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create ticket: %w", err)
	}
	ticket.ID = id
	ticket.Priority = priority
	ticket.Status = models.TicketStatusOpen
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	return id, nil
}

// ListMessages returns the ticket thread oldest first.
func (r *TicketRepository) ListMessages(ctx context.Context, ticketID, sinceID int64) ([]*models.Message, error) {
	sb := r.qb.NewSelect("id", "ticket_id", "sender_type", "sender_name", "message", "attachment_url", "created_at").
		From(r.messagesTable()).
		Where("ticket_id = ?", ticketID)
	if sinceID > 0 {
		sb = sb.Where("id > ?", sinceID)
	}
	var rows []messageRow
	if err := sb.OrderBy("created_at ASC", "id ASC").SelectContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list messages for ticket %d: %w", ticketID, err)
	}
	out := make([]*models.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// LastMessageID returns the highest message id on the ticket, or 0.
func (r *TicketRepository) LastMessageID(ctx context.Context, ticketID int64) (int64, error) {
	query := fmt.Sprintf("SELECT MAX(id) FROM %s WHERE ticket_id = ?", r.messagesTable())
	var id sql.NullInt64
	if err := r.qb.QueryRowContext(ctx, query, ticketID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get last message id for ticket %d: %w", ticketID, err)
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

func (r *TicketRepository) insert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if database.IsPostgreSQL(r.driver) {
		var id int64
		if err := r.qb.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := r.qb.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
