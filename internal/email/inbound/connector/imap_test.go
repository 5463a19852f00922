package connector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/mimepart"
)

func testAccount() Account {
	return Account{Host: "mail.example", Port: 993, Username: "support", Password: "secret", TLS: true}
}

func TestIMAPDialerSelectsFolderAndSearchesUnseen(t *testing.T) {
	client := &fakeIMAPClient{uids: []imap.UID{3, 4, 9}}
	d := NewIMAPDialer(withIMAPClientFactory(func(Account) (imapClient, error) { return client, nil }))

	acc := testAccount()
	acc.Folder = "Support"
	session, err := d.Dial(context.Background(), acc)
	require.NoError(t, err)
	require.Equal(t, "Support", client.selected)
	require.Equal(t, "support", client.loginUser)

	uids, err := session.SearchUnseen(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint32{3, 4, 9}, uids)
	require.NotNil(t, client.lastCriteria)
	require.Equal(t, []imap.Flag{imap.FlagSeen}, client.lastCriteria.NotFlag)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	require.Equal(t, 1, client.logoutCalls)
	require.True(t, client.closed)
}

func TestIMAPSessionFetchOverview(t *testing.T) {
	client := &fakeIMAPClient{envelopes: map[imap.UID]*imap.Envelope{
		7: {Subject: "Re: [Ticket #7] update", From: []imap.Address{{Name: "Alice", Mailbox: "alice", Host: "example.com"}}},
		8: {Subject: "no name", From: []imap.Address{{Mailbox: "bob", Host: "external.com"}}},
	}}
	session := dialFake(t, client)

	ov, err := session.FetchOverview(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, Overview{Subject: "Re: [Ticket #7] update", From: "Alice <alice@example.com>"}, ov)

	ov, err = session.FetchOverview(context.Background(), 8)
	require.NoError(t, err)
	require.Equal(t, "bob@external.com", ov.From)

	_, err = session.FetchOverview(context.Background(), 99)
	require.ErrorContains(t, err, "message not found")
}

func TestIMAPSessionFetchStructure(t *testing.T) {
	client := &fakeIMAPClient{structures: map[imap.UID]imap.BodyStructure{
		5: &imap.BodyStructureMultiPart{
			Subtype: "alternative",
			Children: []imap.BodyStructure{
				&imap.BodyStructureSinglePart{Type: "text", Subtype: "plain", Encoding: "quoted-printable", Params: map[string]string{"charset": "utf-8"}},
				&imap.BodyStructureSinglePart{Type: "text", Subtype: "html", Encoding: "base64"},
			},
		},
	}}
	session := dialFake(t, client)

	node, err := session.FetchStructure(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, node.IsMultipart())
	require.Len(t, node.Children, 2)
	require.Equal(t, &mimepart.Node{Type: "TEXT", Subtype: "PLAIN", Encoding: "QUOTED-PRINTABLE", Charset: "utf-8"}, node.Children[0])
	require.Equal(t, mimepart.ContentTypeHTML, node.Children[1].ContentType())
}

func TestNodeFromBodyStructureKeepsPartNumbers(t *testing.T) {
	bs := &imap.BodyStructureMultiPart{
		Subtype: "mixed",
		Children: []imap.BodyStructure{
			nil,
			&imap.BodyStructureSinglePart{Type: "text", Subtype: "plain", Encoding: "7bit"},
		},
	}

	node := nodeFromBodyStructure(bs)
	require.Len(t, node.Children, 2)
	require.Equal(t, "APPLICATION/OCTET-STREAM", node.Children[0].ContentType())

	var fetched []string
	data, err := mimepart.Find(context.Background(), node, mimepart.ContentTypePlain, func(_ context.Context, path string) ([]byte, error) {
		fetched = append(fetched, path)
		return []byte("reply"), nil
	})
	require.NoError(t, err)
	require.Equal(t, "reply", string(data))
	require.Equal(t, []string{"2"}, fetched)
}

func TestIMAPSessionFetchBodyPartDoesNotPeek(t *testing.T) {
	client := &fakeIMAPClient{parts: map[string][]byte{"5:1.2": []byte("<p>hi</p>")}}
	session := dialFake(t, client)

	data, err := session.FetchBodyPart(context.Background(), 5, "1.2")
	require.NoError(t, err)
	require.Equal(t, "<p>hi</p>", string(data))
	require.NotNil(t, client.lastSection)
	require.Equal(t, []int{1, 2}, client.lastSection.Part)
	require.False(t, client.lastSection.Peek)

	_, err = session.FetchBodyPart(context.Background(), 5, "1.x")
	require.ErrorContains(t, err, "invalid")
}

func TestIMAPDialerErrors(t *testing.T) {
	d := NewIMAPDialer(withIMAPClientFactory(func(Account) (imapClient, error) {
		return nil, errors.New("dial failed")
	}))
	_, err := d.Dial(context.Background(), testAccount())
	require.ErrorContains(t, err, "imap connect")

	client := &fakeIMAPClient{loginErr: errors.New("bad creds")}
	d = NewIMAPDialer(withIMAPClientFactory(func(Account) (imapClient, error) { return client, nil }))
	_, err = d.Dial(context.Background(), testAccount())
	require.ErrorContains(t, err, "imap auth")
	require.True(t, client.closed)

	client = &fakeIMAPClient{selectErr: errors.New("no inbox")}
	d = NewIMAPDialer(withIMAPClientFactory(func(Account) (imapClient, error) { return client, nil }))
	_, err = d.Dial(context.Background(), testAccount())
	require.ErrorContains(t, err, "imap select INBOX")
}

func TestIMAPDialerValidation(t *testing.T) {
	calls := 0
	d := NewIMAPDialer(withIMAPClientFactory(func(Account) (imapClient, error) {
		calls++
		return &fakeIMAPClient{}, nil
	}))
	cases := []Account{
		{Username: "u", Password: "p"},
		{Host: "h", Password: "p"},
		{Host: "h", Username: "u"},
		{Host: "h", Username: "u", Password: "p", TLS: true, StartTLS: true},
		{Host: "h", Username: "u", Password: "p", Port: 70000},
	}
	for _, acc := range cases {
		_, err := d.Dial(context.Background(), acc)
		require.Error(t, err, "account %+v", acc)
	}
	require.Zero(t, calls)
}

func TestIMAPDialerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewIMAPDialer(withIMAPClientFactory(func(Account) (imapClient, error) { return &fakeIMAPClient{}, nil }))
	_, err := d.Dial(ctx, testAccount())
	require.ErrorIs(t, err, context.Canceled)
}

func TestAccountIdentity(t *testing.T) {
	acc := Account{Host: "Mail.Example", Username: "Support", Password: "x", TLS: true}
	require.Equal(t, "support@mail.example:993/inbox", acc.Identity())
	acc.TLS = false
	acc.Folder = "Replies"
	require.Equal(t, "support@mail.example:143/replies", acc.Identity())
}

func dialFake(t *testing.T, client *fakeIMAPClient) Session {
	t.Helper()
	d := NewIMAPDialer(withIMAPClientFactory(func(Account) (imapClient, error) { return client, nil }))
	session, err := d.Dial(context.Background(), testAccount())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

type fakeIMAPClient struct {
	uids       []imap.UID
	envelopes  map[imap.UID]*imap.Envelope
	structures map[imap.UID]imap.BodyStructure
	parts      map[string][]byte

	loginErr  error
	selectErr error
	searchErr error
	fetchErr  error

	loginUser    string
	selected     string
	lastCriteria *imap.SearchCriteria
	lastSection  *imap.FetchItemBodySection
	logoutCalls  int
	closed       bool
}

func (c *fakeIMAPClient) Login(user, _ string) commandWaiter {
	c.loginUser = user
	return &fakeCommand{err: c.loginErr}
}
func (c *fakeIMAPClient) Logout() commandWaiter {
	c.logoutCalls++
	return &fakeCommand{}
}
func (c *fakeIMAPClient) Close() error { c.closed = true; return nil }
func (c *fakeIMAPClient) Select(mailbox string, _ *imap.SelectOptions) selectWaiter {
	c.selected = mailbox
	return &fakeSelect{err: c.selectErr}
}
func (c *fakeIMAPClient) UIDSearch(criteria *imap.SearchCriteria, _ *imap.SearchOptions) searchWaiter {
	c.lastCriteria = criteria
	return &fakeSearch{err: c.searchErr, data: &imap.SearchData{All: imap.UIDSetNum(c.uids...)}}
}
func (c *fakeIMAPClient) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	if c.fetchErr != nil {
		return &fakeFetch{err: c.fetchErr}
	}
	set, _ := numSet.(imap.UIDSet)
	uids, _ := set.Nums()
	var bufs []*imapclient.FetchMessageBuffer
	for _, uid := range uids {
		buf := &imapclient.FetchMessageBuffer{UID: uid}
		found := false
		if options.Envelope {
			if env, ok := c.envelopes[uid]; ok {
				buf.Envelope = env
				found = true
			}
		}
		if options.BodyStructure != nil {
			if bs, ok := c.structures[uid]; ok {
				buf.BodyStructure = bs
				found = true
			}
		}
		for _, section := range options.BodySection {
			c.lastSection = section
			key := partKey(uid, section.Part)
			if data, ok := c.parts[key]; ok {
				buf.BodySection = append(buf.BodySection, imapclient.FetchBodySectionBuffer{Section: section, Bytes: data})
				found = true
			}
		}
		if found {
			bufs = append(bufs, buf)
		}
	}
	return &fakeFetch{bufs: bufs}
}

func partKey(uid imap.UID, part []int) string {
	fields := make([]string, len(part))
	for i, p := range part {
		fields[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("%d:%s", uid, strings.Join(fields, "."))
}

type fakeCommand struct{ err error }

func (c *fakeCommand) Wait() error { return c.err }

type fakeSelect struct{ err error }

func (s *fakeSelect) Wait() (*imap.SelectData, error) { return nil, s.err }

type fakeSearch struct {
	err  error
	data *imap.SearchData
}

func (s *fakeSearch) Wait() (*imap.SearchData, error) { return s.data, s.err }

type fakeFetch struct {
	err  error
	bufs []*imapclient.FetchMessageBuffer
}

func (f *fakeFetch) Collect() ([]*imapclient.FetchMessageBuffer, error) { return f.bufs, f.err }
func (f *fakeFetch) Close() error                                       { return f.err }
