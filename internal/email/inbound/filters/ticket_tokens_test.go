package filters

import "testing"

func TestParseTicketID(t *testing.T) {
	tests := []struct {
		subject string
		want    int64
	}{
		{"Re: [Ticket #42] login broken", 42},
		{"Ticket #42", 42},
		{"ticket#42 follow up", 42},
		{"Re: #42 login issue", 42},
		{"[#9001] escalation", 9001},
		{"Ticket #7 — update", 7},
		{"Re: #12 and #13", 12},
		{"=?UTF-8?Q?Re=3A_[Ticket_#55]_caf=C3=A9?=", 55},
		{"hello there", 0},
		{"Invoice 42", 0},
		{"#0 bogus", 0},
		{"Ticket #9223372036854775807", 9223372036854775807},
		{"Ticket #9223372036854775808", 0},
		{"Re: #12345678901234567890 help", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			if got := ParseTicketID(tt.subject); got != tt.want {
				t.Fatalf("ParseTicketID(%q) = %d, want %d", tt.subject, got, tt.want)
			}
		})
	}
}
