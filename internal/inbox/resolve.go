package inbox

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// reply+<token>@<domain> as a whole local part anywhere in the To header
	replyAddressPattern = regexp.MustCompile(`(?i)(?:^|[\s<,;:"])reply\+([0-9a-z-]+)@`)

	// "Enkät-ID: <token>" or "Survey-ID: <token>" anywhere in the subject
	subjectIDPattern = regexp.MustCompile(`(?i)(?:enkät|survey)-id:\s*([0-9a-z-]+)`)
)

// ResolveSurveyID extracts the survey token from the reply's destination
// address, falling back to the subject. The token is returned verbatim.
func ResolveSurveyID(to, subject string) (string, bool) {
	if m := replyAddressPattern.FindStringSubmatch(to); m != nil {
		return m[1], true
	}
	if m := subjectIDPattern.FindStringSubmatch(subject); m != nil {
		return m[1], true
	}
	return "", false
}

// ReplyAddress builds the routed reply-to address for a survey
func ReplyAddress(surveyID, domain string) string {
	return fmt.Sprintf("reply+%s@%s", surveyID, strings.TrimPrefix(domain, "@"))
}

// SubjectTag is appended to invitation subjects so replies that lose the
// reply+ address can still be routed
func SubjectTag(surveyID, language string) string {
	if language == "en" {
		return "Survey-ID: " + surveyID
	}
	return "Enkät-ID: " + surveyID
}
