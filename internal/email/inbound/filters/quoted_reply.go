package filters

import (
	"regexp"
	"strings"
)

// Lines that open quoted history or a signature block. Everything from the
// first match onward is discarded.
var replyBoundaries = []*regexp.Regexp{
	regexp.MustCompile(`^On\b.*wrote:$`),
	regexp.MustCompile(`^From:`),
	regexp.MustCompile(`(?i)^-+\s*Original Message\s*-+$`),
	regexp.MustCompile(`^Sent from my `),
	regexp.MustCompile(`^_{3,}`),
}

// StripQuotedReply returns the newly authored portion of a reply body. Lines
// quoted with '>' are dropped and scanning stops at the first boundary line.
// This is a heuristic: a genuine line that looks like a boundary truncates the
// reply there.
func StripQuotedReply(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(kept) == 0 || blank {
				continue
			}
			blank = true
			kept = append(kept, "")
			continue
		}
		if strings.HasPrefix(line, ">") {
			continue
		}
		if isReplyBoundary(line) {
			break
		}
		blank = false
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isReplyBoundary(line string) bool {
	for _, re := range replyBoundaries {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
