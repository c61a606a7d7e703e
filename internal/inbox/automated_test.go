package inbox

import (
	"testing"
)

func TestDetectAutomated(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		subject string
		want    AutomatedKind
	}{
		{"out of office", "anna@acme.se", "Out of Office Re: Kvalitetsenkät", AutoReply},
		{"automatic reply", "anna@acme.se", "Automatic reply: Kvalitetsenkät 2026", AutoReply},
		{"swedish autosvar", "anna@acme.se", "Autosvar: Kvalitetsenkät", AutoReply},
		{"swedish automatiskt svar", "anna@acme.se", "Automatiskt svar: Kvalitetsenkät", AutoReply},
		{"mailer daemon", "MAILER-DAEMON@mx.acme.se", "Returned mail: see transcript", Bounce},
		{"undeliverable subject", "postmaster@acme.se", "Undeliverable: Kvalitetsenkät", Bounce},
		{"delivery failure from normal sender", "it@acme.se", "Delivery Status Notification (Failure)", Bounce},
		{"normal reply", "anna@acme.se", "Re: Kvalitetsenkät (Enkät-ID: abc-123)", NotAutomated},
		{"reply mentioning office", "anna@acme.se", "Re: Our office survey", NotAutomated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectAutomated(tt.from, tt.subject); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
