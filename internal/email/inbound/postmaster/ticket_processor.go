package postmaster

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/connector"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/filters"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/mimepart"
	"github.com/gotrs-io/gotrs-mailpipe/internal/models"
	"github.com/gotrs-io/gotrs-mailpipe/internal/utils"
)

// ReplyProcessor turns a single mailbox message into a ticket message.
type ReplyProcessor struct {
	store      TicketStore
	classifier *filters.Classifier
	logger     *log.Logger
}

// NewReplyProcessor builds a processor writing through store.
func NewReplyProcessor(store TicketStore, classifier *filters.Classifier, logger *log.Logger) *ReplyProcessor {
	if classifier == nil {
		classifier = filters.NewClassifier("")
	}
	return &ReplyProcessor{store: store, classifier: classifier, logger: logger}
}

// Process routes the message with uid to its ticket. Failures are returned as
// a skipped Result, never as an error.
func (p *ReplyProcessor) Process(ctx context.Context, session connector.Session, uid uint32) Result {
	res := Result{UID: uid}

	overview, err := session.FetchOverview(ctx, uid)
	if err != nil {
		return p.skip(res, SkipFetchFailed, "", fmt.Errorf("fetch overview: %w", err))
	}

	res.TicketID = filters.ParseTicketID(overview.Subject)
	if res.TicketID == 0 {
		return p.skip(res, SkipUnroutableSubject, overview.From, nil)
	}

	body, err := p.readBody(ctx, session, uid)
	if err != nil {
		return p.skip(res, SkipFetchFailed, overview.From, err)
	}
	body = filters.StripQuotedReply(body)

	ticket, err := p.store.GetTicket(ctx, res.TicketID)
	if err != nil {
		return p.skip(res, SkipLookupFailed, overview.From, fmt.Errorf("get ticket: %w", err))
	}
	if ticket == nil {
		return p.skip(res, SkipTicketNotFound, overview.From, nil)
	}
	res.Routed = true

	sender := p.classifier.Classify(overview.From, ticket)
	senderType, ok := sender.SenderType()
	if !ok {
		return p.skip(res, SkipUnknownSender, overview.From, nil)
	}
	res.SenderType = senderType

	if strings.TrimSpace(body) == "" {
		return p.skip(res, SkipEmptyBody, overview.From, nil)
	}

	id, err := p.store.AppendMessage(ctx, &models.Message{
		TicketID:   ticket.ID,
		SenderType: senderType,
		SenderName: sender.Name,
		Body:       body,
	})
	if err != nil {
		return p.skip(res, SkipStoreFailed, overview.From, fmt.Errorf("append message: %w", err))
	}
	res.MessageID = id
	res.Action = ActionIngested
	p.logf("postmaster: uid %d appended as message %d on ticket %d (%s)", uid, id, ticket.ID, senderType)
	return res
}

// readBody prefers the first text/plain part and falls back to the first HTML
// part converted to text.
func (p *ReplyProcessor) readBody(ctx context.Context, session connector.Session, uid uint32) (string, error) {
	root, err := session.FetchStructure(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("fetch structure: %w", err)
	}
	fetch := func(ctx context.Context, path string) ([]byte, error) {
		return session.FetchBodyPart(ctx, uid, path)
	}

	plain, err := mimepart.Find(ctx, root, mimepart.ContentTypePlain, fetch)
	if err != nil {
		return "", err
	}
	if len(plain) > 0 {
		return string(plain), nil
	}

	html, err := mimepart.Find(ctx, root, mimepart.ContentTypeHTML, fetch)
	if err != nil {
		return "", err
	}
	return utils.HTMLToText(string(html)), nil
}

func (p *ReplyProcessor) skip(res Result, reason SkipReason, from string, err error) Result {
	res.Action = ActionSkipped
	res.Reason = reason
	res.Err = err
	if err != nil {
		p.logf("postmaster: uid %d skipped (ticket %d, from %q): %s: %v", res.UID, res.TicketID, from, reason, err)
	} else {
		p.logf("postmaster: uid %d skipped (ticket %d, from %q): %s", res.UID, res.TicketID, from, reason)
	}
	return res
}

func (p *ReplyProcessor) logf(format string, args ...any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
