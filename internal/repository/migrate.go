package repository

import (
	"context"
	"fmt"

	"github.com/gotrs-io/gotrs-mailpipe/internal/database"
)

// Migrate creates the ticket and message tables when they do not exist.
// Existing tables are left untouched.
func (r *TicketRepository) Migrate(ctx context.Context) error {
	for _, stmt := range r.schema() {
		if _, err := r.qb.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (r *TicketRepository) schema() []string {
	tickets, messages := r.ticketsTable(), r.messagesTable()
	switch {
	case database.IsMySQL(r.driver):
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id bigint(20) NOT NULL AUTO_INCREMENT,
	user_id bigint(20) NOT NULL DEFAULT 0,
	user_email varchar(100) NOT NULL,
	user_name varchar(100) NOT NULL,
	theme_name varchar(200) NOT NULL DEFAULT '',
	license_code varchar(100) NOT NULL DEFAULT '',
	category varchar(100) NOT NULL DEFAULT '',
	title varchar(255) NOT NULL,
	description text NOT NULL,
	priority varchar(20) NOT NULL DEFAULT 'medium',
	status enum('open','solved','closed') DEFAULT 'open',
	created_at datetime DEFAULT CURRENT_TIMESTAMP,
	updated_at datetime DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	PRIMARY KEY (id),
	KEY user_id (user_id),
	KEY user_email (user_email),
	KEY status (status),
	KEY created_at (created_at)
) DEFAULT CHARSET=utf8mb4`, tickets),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id bigint(20) NOT NULL AUTO_INCREMENT,
	ticket_id bigint(20) NOT NULL,
	sender_type enum('admin','user') NOT NULL,
	sender_name varchar(100) NOT NULL,
	message text NOT NULL,
	attachment_url varchar(255) DEFAULT NULL,
	created_at datetime DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (id),
	KEY ticket_id (ticket_id),
	KEY created_at (created_at)
) DEFAULT CHARSET=utf8mb4`, messages),
		}
	case database.IsPostgreSQL(r.driver):
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL DEFAULT 0,
	user_email VARCHAR(100) NOT NULL,
	user_name VARCHAR(100) NOT NULL,
	theme_name VARCHAR(200) NOT NULL DEFAULT '',
	license_code VARCHAR(100) NOT NULL DEFAULT '',
	category VARCHAR(100) NOT NULL DEFAULT '',
	title VARCHAR(255) NOT NULL,
	description TEXT NOT NULL,
	priority VARCHAR(20) NOT NULL DEFAULT 'medium',
	status VARCHAR(10) NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'solved', 'closed')),
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, tickets),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_user_email_idx ON %s (user_email)`, tickets, tickets),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_status_idx ON %s (status)`, tickets, tickets),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	ticket_id BIGINT NOT NULL,
	sender_type VARCHAR(5) NOT NULL CHECK (sender_type IN ('admin', 'user')),
	sender_name VARCHAR(100) NOT NULL,
	message TEXT NOT NULL,
	attachment_url VARCHAR(255),
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, messages),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ticket_id_idx ON %s (ticket_id)`, messages, messages),
		}
	default:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL DEFAULT 0,
	user_email TEXT NOT NULL,
	user_name TEXT NOT NULL,
	theme_name TEXT NOT NULL DEFAULT '',
	license_code TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT 'medium',
	status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'solved', 'closed')),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, tickets),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_user_email_idx ON %s (user_email)`, tickets, tickets),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket_id INTEGER NOT NULL,
	sender_type TEXT NOT NULL CHECK (sender_type IN ('admin', 'user')),
	sender_name TEXT NOT NULL,
	message TEXT NOT NULL,
	attachment_url TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, messages),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ticket_id_idx ON %s (ticket_id)`, messages, messages),
		}
	}
}
