package inbox

import (
	"regexp"
	"strings"
)

// AutomatedKind identifies machine-generated mail that must not be ingested as an answer
type AutomatedKind string

const (
	NotAutomated AutomatedKind = ""
	AutoReply    AutomatedKind = "auto_reply" // out-of-office and similar
	Bounce       AutomatedKind = "bounce"     // delivery failure notice
)

var (
	// Subject-specific auto-reply patterns
	autoReplySubjectPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^automatic\s+reply`),
		regexp.MustCompile(`(?i)^auto[\s-]?reply`),
		regexp.MustCompile(`(?i)^auto[\s-]?response`),
		regexp.MustCompile(`(?i)^out\s+of\s+(the\s+)?office`),
		regexp.MustCompile(`(?i)^autosvar`),
		regexp.MustCompile(`(?i)^automatiskt\s+svar`),
		regexp.MustCompile(`(?i)^frånvaro`),
	}

	// Bounce/undeliverable indicators
	bouncePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)delivery\s+(to\s+.+\s+)?(has\s+)?failed`),
		regexp.MustCompile(`(?i)undeliverable`),
		regexp.MustCompile(`(?i)delivery\s+status\s+notification`),
		regexp.MustCompile(`(?i)returned\s+mail`),
		regexp.MustCompile(`(?i)mail\s+delivery\s+failed`),
		regexp.MustCompile(`(?i)message\s+(could\s+)?not\s+(be\s+)?delivered`),
		regexp.MustCompile(`(?i)delivery\s+failure`),
		regexp.MustCompile(`(?i)permanent\s+(failure|error)`),
		regexp.MustCompile(`(?i)(mailbox|recipient|address)\s+(does\s+not|doesn't)\s+exist`),
		regexp.MustCompile(`(?i)kunde\s+inte\s+levereras`),
	}

	// Senders that indicate a bounce email
	bounceSenders = []string{
		"mailer-daemon",
		"postmaster",
		"mail delivery system",
		"mail delivery subsystem",
		"mailerdaemon",
		"mailsystem",
	}
)

// DetectAutomated classifies a reply by sender and subject. Anything from a
// mail-system sender, or with a bounce pattern in the subject, is a bounce.
func DetectAutomated(from, subject string) AutomatedKind {
	fromLower := strings.ToLower(from)
	subject = strings.TrimSpace(subject)

	isBounceSource := false
	for _, sender := range bounceSenders {
		if strings.Contains(fromLower, sender) {
			isBounceSource = true
			break
		}
	}

	for _, pattern := range bouncePatterns {
		if pattern.MatchString(subject) {
			return Bounce
		}
	}
	if isBounceSource {
		return Bounce
	}

	for _, pattern := range autoReplySubjectPatterns {
		if pattern.MatchString(subject) {
			return AutoReply
		}
	}
	return NotAutomated
}
