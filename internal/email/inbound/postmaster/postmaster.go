// Package postmaster drains a support mailbox and appends replies to the
// tickets they reference.
package postmaster

import (
	"context"
	"strings"
	"time"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/connector"
	"github.com/gotrs-io/gotrs-mailpipe/internal/models"
)

// State is the phase a run is in, or ended in.
type State string

const (
	StateDisabled      State = "disabled"
	StateConnecting    State = "connecting"
	StateListing       State = "listing"
	StateProcessing    State = "processing"
	StateDone          State = "done"
	StateConnectFailed State = "connect_failed"
	StateBusy          State = "busy"
)

// SkipReason explains why a message was not ingested.
type SkipReason string

const (
	SkipUnroutableSubject SkipReason = "unroutable_subject"
	SkipTicketNotFound    SkipReason = "ticket_not_found"
	SkipUnknownSender     SkipReason = "unknown_sender"
	SkipEmptyBody         SkipReason = "empty_body"
	SkipStoreFailed       SkipReason = "store_failed"
	SkipFetchFailed       SkipReason = "fetch_failed"
	SkipLookupFailed      SkipReason = "lookup_failed"
)

// IsError reports whether the skip was caused by a failing collaborator rather
// than by the message itself.
func (r SkipReason) IsError() bool {
	switch r {
	case SkipStoreFailed, SkipFetchFailed, SkipLookupFailed:
		return true
	default:
		return false
	}
}

const (
	ActionIngested = "ingested"
	ActionSkipped  = "skipped"
)

// Result captures the outcome of one message.
type Result struct {
	UID        uint32            `json:"uid"`
	TicketID   int64             `json:"ticket_id,omitempty"`
	MessageID  int64             `json:"message_id,omitempty"`
	SenderType models.SenderType `json:"sender_type,omitempty"`
	Action     string            `json:"action"`
	Reason     SkipReason        `json:"reason,omitempty"`
	Routed     bool              `json:"routed"`
	Err        error             `json:"-"`
	Error      string            `json:"error,omitempty"`
}

// Ingested reports whether the message was appended to a ticket.
func (r Result) Ingested() bool {
	return r.Action == ActionIngested
}

// RunReport summarises one run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	Mailbox    string    `json:"mailbox,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Seen       int       `json:"seen"`
	Routed     int       `json:"routed"`
	Ingested   int       `json:"ingested"`
	Skipped    int       `json:"skipped"`
	Errored    int       `json:"errored"`
	Deferred   int       `json:"deferred"`
	Results    []Result  `json:"results,omitempty"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
}

// Duration is the wall time the run took.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SkipCounts groups skipped messages by reason.
func (r RunReport) SkipCounts() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for _, res := range r.Results {
		if res.Action == ActionSkipped {
			counts[res.Reason]++
		}
	}
	return counts
}

func (r *RunReport) record(res Result) {
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	r.Results = append(r.Results, res)
	if res.Routed {
		r.Routed++
	}
	if res.Ingested() {
		r.Ingested++
		return
	}
	r.Skipped++
	if res.Reason.IsError() {
		r.Errored++
	}
}

// Settings is the per-run configuration snapshot.
type Settings struct {
	Enabled        bool
	Account        connector.Account
	AgentName      string
	AgentAddresses []string
	AdminFallback  string
}

// Configured reports whether piping is switched on and the mailbox
// credentials are present.
func (s Settings) Configured() bool {
	if !s.Enabled {
		return false
	}
	a := s.Account
	return strings.TrimSpace(a.Host) != "" && strings.TrimSpace(a.Username) != "" && a.Password != ""
}

// Agents returns the agent addresses including the admin fallback.
func (s Settings) Agents() []string {
	out := make([]string, 0, len(s.AgentAddresses)+1)
	out = append(out, s.AgentAddresses...)
	if fallback := strings.TrimSpace(s.AdminFallback); fallback != "" {
		out = append(out, fallback)
	}
	return out
}

// SettingsProvider supplies settings at the start of every run so that
// configuration reloads apply on the next tick.
type SettingsProvider interface {
	Settings() Settings
}

// StaticSettings is a SettingsProvider that never changes.
type StaticSettings Settings

func (s StaticSettings) Settings() Settings { return Settings(s) }

// TicketStore is the part of the ticket store the ingester writes through.
type TicketStore interface {
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	AppendMessage(ctx context.Context, msg *models.Message) (int64, error)
}

// RunObserver is notified with every finished run report.
type RunObserver interface {
	ObserveRun(report RunReport)
}

// RunObserverFunc adapts a function to RunObserver.
type RunObserverFunc func(report RunReport)

func (f RunObserverFunc) ObserveRun(report RunReport) { f(report) }
