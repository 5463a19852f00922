package filters

import (
	"regexp"
	"strconv"
	"strings"
)

// Matches "#42", "Ticket #42", "[Ticket #42]" and "[#42]".
var ticketTokenRegexp = regexp.MustCompile(`(?i)(?:\[\s*)?(?:ticket\s*)?#\s*([0-9]+)`)

// ParseTicketID returns the first ticket identifier referenced in subject, or 0
// when the subject carries no token or the number does not fit an int64. A
// zero result means the mail is unrelated to any ticket and must be skipped
// by the caller.
func ParseTicketID(subject string) int64 {
	subject = strings.TrimSpace(DecodeHeader(subject))
	if subject == "" {
		return 0
	}
	matches := ticketTokenRegexp.FindStringSubmatch(subject)
	if len(matches) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
