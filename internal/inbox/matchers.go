package inbox

import (
	"regexp"
	"strconv"
	"strings"
)

// AnswerKind says which shape of value a parsed answer carries
type AnswerKind string

const (
	AnswerRating  AnswerKind = "rating"  // Number holds 1..10
	AnswerNA      AnswerKind = "na"      // explicit not-applicable
	AnswerComment AnswerKind = "comment" // Text holds the comment
	AnswerYesNo   AnswerKind = "yesno"   // Number holds 1 (yes) or 0 (no)
)

// GeneralCommentCode is assigned to bare "Kommentar:"/"Comment:" lines
const GeneralCommentCode = "GENERAL_COMMENT"

// Answer is one structured answer recovered from a reply line
type Answer struct {
	Code   string
	Kind   AnswerKind
	Number int
	Text   string
}

func (a Answer) IsNA() bool { return a.Kind == AnswerNA }

// Match is the outcome of running a Matcher against one line
type Match int

const (
	NoMatch  Match = iota // try the next matcher
	Matched               // the line produced an answer
	Rejected              // the line was a structured answer that failed validation; drop it
)

// Matcher classifies a single trimmed line
type Matcher func(line string) (Answer, Match)

// DefaultMatchers is the ordered rule set; the first non-NoMatch result wins
var DefaultMatchers = []Matcher{
	MatchRating,
	MatchComment,
	MatchYesNo,
}

const (
	minRating = 1
	maxRating = 10
)

var (
	// Q3a: 8, q14 = 10, Q2: N/A, Q7=na, Q3: 8/10
	ratingLine = regexp.MustCompile(`(?i)^(q\d+[a-z]?)\s*[:=]\s*(\d+|n/?a)\b`)

	// Q19_comment: text, Kommentar = text, Comment: text
	commentLine = regexp.MustCompile(`(?i)^(q\d+[a-z]?_(?:comment|kommentar)|kommentar|comment)\s*[:=]\s*(.*)$`)

	// Q5_ok: ja, q6_extra = No
	yesNoLine = regexp.MustCompile(`(?i)^([a-z0-9]+_[a-z0-9_]+)\s*[:=]\s*(ja|nej|yes|no)\s*$`)
)

// MatchRating recognizes "<code><sep><1-10 | N/A>". Integers outside 1..10
// (including anything longer than two digits) are rejected.
func MatchRating(line string) (Answer, Match) {
	m := ratingLine.FindStringSubmatch(line)
	if m == nil {
		return Answer{}, NoMatch
	}

	code := strings.ToUpper(m[1])
	raw := strings.ToLower(m[2])
	if raw == "n/a" || raw == "na" {
		return Answer{Code: code, Kind: AnswerNA}, Matched
	}

	if len(raw) > 2 {
		return Answer{}, Rejected
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minRating || n > maxRating {
		return Answer{}, Rejected
	}
	return Answer{Code: code, Kind: AnswerRating, Number: n}, Matched
}

// MatchComment recognizes labeled free-text answers. A label with no text is rejected.
func MatchComment(line string) (Answer, Match) {
	m := commentLine.FindStringSubmatch(line)
	if m == nil {
		return Answer{}, NoMatch
	}

	text := strings.TrimSpace(m[2])
	if text == "" {
		return Answer{}, Rejected
	}

	code := GeneralCommentCode
	if strings.Contains(m[1], "_") {
		code = strings.ToUpper(m[1])
	}
	return Answer{Code: code, Kind: AnswerComment, Text: text}, Matched
}

// MatchYesNo recognizes "<code_with_underscore><sep><ja|nej|yes|no>"
func MatchYesNo(line string) (Answer, Match) {
	m := yesNoLine.FindStringSubmatch(line)
	if m == nil {
		return Answer{}, NoMatch
	}

	n := 0
	switch strings.ToLower(m[2]) {
	case "ja", "yes":
		n = 1
	}
	return Answer{Code: strings.ToUpper(m[1]), Kind: AnswerYesNo, Number: n}, Matched
}
