package filters

import (
	"regexp"
	"strings"

	"github.com/gotrs-io/gotrs-mailpipe/internal/models"
)

// DefaultAgentName is used for agent replies when no display name is configured.
const DefaultAgentName = "Support Team"

// SenderClass is the outcome of matching a sender against a ticket.
type SenderClass string

const (
	SenderClassAgent   SenderClass = "agent"
	SenderClassUser    SenderClass = "user"
	SenderClassUnknown SenderClass = "unknown"
)

// Classification describes who sent a reply and the name it is recorded under.
type Classification struct {
	Class   SenderClass
	Name    string
	Address string
}

// SenderType maps an accepted classification onto the stored message sender type.
func (c Classification) SenderType() (models.SenderType, bool) {
	switch c.Class {
	case SenderClassAgent:
		return models.SenderAgent, true
	case SenderClassUser:
		return models.SenderUser, true
	default:
		return "", false
	}
}

var angleAddressRegexp = regexp.MustCompile(`<([^>]+)>`)

// ExtractAddress returns the bare address from a From header value such as
// `"Alice" <alice@example.com>`, falling back to the trimmed raw value.
func ExtractAddress(from string) string {
	from = strings.TrimSpace(DecodeHeader(from))
	if m := angleAddressRegexp.FindStringSubmatch(from); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return from
}

// Classifier matches senders against the configured agent addresses and the
// ticket's requester.
type Classifier struct {
	agentName string
	agents    map[string]struct{}
}

// NewClassifier builds a classifier. Empty and duplicate addresses are ignored
// and comparisons are case-insensitive.
func NewClassifier(agentName string, agentAddresses ...string) *Classifier {
	agentName = strings.TrimSpace(agentName)
	if agentName == "" {
		agentName = DefaultAgentName
	}
	c := &Classifier{agentName: agentName, agents: make(map[string]struct{}, len(agentAddresses))}
	for _, addr := range agentAddresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		c.agents[addr] = struct{}{}
	}
	return c
}

// IsAgent reports whether addr belongs to a configured agent.
func (c *Classifier) IsAgent(addr string) bool {
	if c == nil {
		return false
	}
	_, ok := c.agents[strings.ToLower(strings.TrimSpace(addr))]
	return ok
}

// Classify resolves the sender of a reply to ticket. Agents are checked first,
// then the ticket requester. Anything else is unknown and must not be ingested.
func (c *Classifier) Classify(from string, ticket *models.Ticket) Classification {
	addr := ExtractAddress(from)
	if addr == "" {
		return Classification{Class: SenderClassUnknown}
	}
	if c.IsAgent(addr) {
		return Classification{Class: SenderClassAgent, Name: c.agentName, Address: addr}
	}
	if ticket.RequesterMatches(addr) {
		return Classification{Class: SenderClassUser, Name: ticket.UserName, Address: addr}
	}
	return Classification{Class: SenderClassUnknown, Address: addr}
}

// ParseAddressList splits a comma separated list of addresses, dropping blanks.
func ParseAddressList(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
