package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/mimepart"
)

// DefaultFolder is opened when an account does not name a mailbox folder.
const DefaultFolder = "INBOX"

// Account carries the minimal set of fields a connector needs to open a mailbox.
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool // implicit TLS, usually port 993
	StartTLS bool // upgrade a plain connection, usually port 143
	Folder   string
}

// Mailbox returns the folder to select, defaulting to INBOX.
func (a Account) Mailbox() string {
	if f := strings.TrimSpace(a.Folder); f != "" {
		return f
	}
	return DefaultFolder
}

// Address returns host:port, filling in the conventional IMAP port.
func (a Account) Address() string {
	port := a.Port
	if port == 0 {
		if a.TLS {
			port = 993
		} else {
			port = 143
		}
	}
	return fmt.Sprintf("%s:%d", strings.TrimSpace(a.Host), port)
}

// Identity names the mailbox as user@host:port/folder, lower-cased. Two
// accounts with the same identity drain the same unseen set.
func (a Account) Identity() string {
	return strings.ToLower(fmt.Sprintf("%s@%s/%s", strings.TrimSpace(a.Username), a.Address(), a.Mailbox()))
}

// Validate reports missing connection details.
func (a Account) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(a.Username) == "" {
		missing = append(missing, "username")
	}
	if a.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("mail account missing %s", strings.Join(missing, ", "))
	}
	if a.Port < 0 || a.Port > 65535 {
		return fmt.Errorf("mail account port %d out of range", a.Port)
	}
	if a.TLS && a.StartTLS {
		return errors.New("mail account cannot use both tls and starttls")
	}
	return nil
}

// Overview holds the header fields needed to route a message.
type Overview struct {
	Subject string
	From    string
}

// Session is an authenticated mailbox connection with its folder selected.
type Session interface {
	// SearchUnseen lists the UIDs of messages without the \Seen flag.
	SearchUnseen(ctx context.Context) ([]uint32, error)
	FetchOverview(ctx context.Context, uid uint32) (Overview, error)
	FetchStructure(ctx context.Context, uid uint32) (*mimepart.Node, error)
	// FetchBodyPart returns the raw bytes of the part at path ("1", "1.2").
	// Servers mark the message \Seen as a side effect.
	FetchBodyPart(ctx context.Context, uid uint32, path string) ([]byte, error)
	Close() error
}

// Dialer opens mailbox sessions.
type Dialer interface {
	Dial(ctx context.Context, account Account) (Session, error)
}
