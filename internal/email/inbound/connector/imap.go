package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/mimepart"
)

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// IMAPDialer opens IMAP/IMAPS sessions for the ingester.
type IMAPDialer struct {
	dialTimeout time.Duration
	logger      *log.Logger
	newClient   func(Account) (imapClient, error)
}

// IMAPDialerOption customizes dialer behavior.
type IMAPDialerOption func(*IMAPDialer)

// NewIMAPDialer returns a dialer using a 10 second connect timeout.
func NewIMAPDialer(opts ...IMAPDialerOption) *IMAPDialer {
	d := &IMAPDialer{
		dialTimeout: 10 * time.Second,
		logger:      log.Default(),
	}
	d.newClient = d.defaultClientFactory
	for _, opt := range opts {
		opt(d)
	}
	if d.newClient == nil {
		d.newClient = d.defaultClientFactory
	}
	return d
}

// WithIMAPLogger overrides the logger used for connector diagnostics.
func WithIMAPLogger(logger *log.Logger) IMAPDialerOption {
	return func(d *IMAPDialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPDialerOption {
	return func(d *IMAPDialer) {
		if timeout > 0 {
			d.dialTimeout = timeout
		}
	}
}

func withIMAPClientFactory(factory func(Account) (imapClient, error)) IMAPDialerOption {
	return func(d *IMAPDialer) {
		d.newClient = factory
	}
}

// Dial connects, authenticates and selects the account's folder read-write so
// that fetching a body sets \Seen. Cancelling ctx while Dial or any session
// call is in flight closes the connection.
func (d *IMAPDialer) Dial(ctx context.Context, account Account) (Session, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := d.newClient(account)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	stop := closeOnCancel(ctx, client)
	defer stop()

	if err := client.Login(account.Username, account.Password).Wait(); err != nil {
		d.safeClose(client)
		return nil, fmt.Errorf("imap auth: %w", ctxErr(ctx, err))
	}
	mailbox := account.Mailbox()
	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		d.safeClose(client)
		return nil, fmt.Errorf("imap select %s: %w", mailbox, ctxErr(ctx, err))
	}
	return &imapSession{client: client, mailbox: mailbox, logger: d.logger}, nil
}

func (d *IMAPDialer) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && d.logger != nil {
		d.logger.Printf("imap close error: %v", err)
	}
}

func (d *IMAPDialer) defaultClientFactory(account Account) (imapClient, error) {
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: d.dialTimeout}}
	addr := account.Address()
	var client *imapclient.Client
	var err error
	switch {
	case account.TLS:
		client, err = imapclient.DialTLS(addr, opts)
	case account.StartTLS:
		client, err = imapclient.DialStartTLS(addr, opts)
	default:
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}

type imapSession struct {
	client  imapClient
	mailbox string
	logger  *log.Logger
	closed  bool
}

func (s *imapSession) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer closeOnCancel(ctx, s.client)()
	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", ctxErr(ctx, err))
	}
	if data == nil {
		return nil, nil
	}
	uids := data.AllUIDs()
	out := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		out = append(out, uint32(uid))
	}
	return out, nil
}

func (s *imapSession) FetchOverview(ctx context.Context, uid uint32) (Overview, error) {
	buf, err := s.fetchOne(ctx, uid, &imap.FetchOptions{UID: true, Envelope: true})
	if err != nil {
		return Overview{}, err
	}
	if buf.Envelope == nil {
		return Overview{}, fmt.Errorf("imap fetch %d: no envelope", uid)
	}
	return Overview{Subject: buf.Envelope.Subject, From: formatFrom(buf.Envelope.From)}, nil
}

func (s *imapSession) FetchStructure(ctx context.Context, uid uint32) (*mimepart.Node, error) {
	opts := &imap.FetchOptions{UID: true, BodyStructure: &imap.FetchItemBodyStructure{}}
	buf, err := s.fetchOne(ctx, uid, opts)
	if err != nil {
		return nil, err
	}
	node := nodeFromBodyStructure(buf.BodyStructure)
	if node == nil {
		return nil, fmt.Errorf("imap fetch %d: no body structure", uid)
	}
	return node, nil
}

func (s *imapSession) FetchBodyPart(ctx context.Context, uid uint32, path string) ([]byte, error) {
	part, err := parsePartPath(path)
	if err != nil {
		return nil, err
	}
	section := &imap.FetchItemBodySection{Part: part}
	opts := &imap.FetchOptions{UID: true, BodySection: []*imap.FetchItemBodySection{section}}
	buf, err := s.fetchOne(ctx, uid, opts)
	if err != nil {
		return nil, err
	}
	for _, body := range buf.BodySection {
		if body.Bytes != nil {
			return append([]byte(nil), body.Bytes...), nil
		}
	}
	return nil, nil
}

func (s *imapSession) fetchOne(ctx context.Context, uid uint32, opts *imap.FetchOptions) (*imapclient.FetchMessageBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer closeOnCancel(ctx, s.client)()
	bufs, err := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %d: %w", uid, ctxErr(ctx, err))
	}
	for _, buf := range bufs {
		if buf != nil && uint32(buf.UID) == uid {
			return buf, nil
		}
	}
	return nil, fmt.Errorf("imap fetch %d: message not found in %s", uid, s.mailbox)
}

// Close logs out and releases the connection. It is safe to call twice.
func (s *imapSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	logoutErr := s.client.Logout().Wait()
	if err := s.client.Close(); err != nil && s.logger != nil {
		s.logger.Printf("imap close error: %v", err)
	}
	if logoutErr != nil {
		return fmt.Errorf("imap logout: %w", logoutErr)
	}
	return nil
}

func parsePartPath(path string) ([]int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("imap part path is empty")
	}
	fields := strings.Split(path, ".")
	part := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("imap part path %q is invalid", path)
		}
		part = append(part, n)
	}
	return part, nil
}

func formatFrom(addrs []imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	a := addrs[0]
	addr := a.Addr()
	if a.Name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", a.Name, addr)
}

func closeOnCancel(ctx context.Context, client imapClient) func() bool {
	return context.AfterFunc(ctx, func() { _ = client.Close() })
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Join(ctx.Err(), err)
	}
	return err
}
