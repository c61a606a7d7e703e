package inbox

import (
	"regexp"
	"strings"
)

// ParsedReply is the structured view of one reply body
type ParsedReply struct {
	SurveyID   string
	Answers    []Answer
	FreeText   string
	RawContent string
}

// Prefixes of quoted-reply and forwarded-header lines written by mail clients
var artifactPrefixes = []string{
	">",
	"On ",
	"From:",
	"Sent:",
	"To:",
	"Från:",
	"Skickat:",
	"Till:",
}

var (
	artifactMarkers = []string{"wrote:", "skrev:"}

	// ----- or _____ separators above quoted content
	separatorLine = regexp.MustCompile(`^(?:-{3,}|_{3,})$`)
)

// IsArtifact reports whether a line is mail-client boilerplate that must
// be neither an answer nor free text
func IsArtifact(line string) bool {
	for _, p := range artifactPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	for _, m := range artifactMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return separatorLine.MatchString(line)
}

// accumulator is the fold state threaded through the lines of a body
type accumulator struct {
	answers  []Answer
	freeText []string
}

// Parser classifies reply bodies line by line with an ordered matcher list
type Parser struct {
	matchers []Matcher
}

func NewParser(matchers ...Matcher) *Parser {
	if len(matchers) == 0 {
		matchers = DefaultMatchers
	}
	return &Parser{matchers: matchers}
}

// Parse returns the answers found in body, in order, plus the unattributed text
func (p *Parser) Parse(body string) ([]Answer, string) {
	acc := accumulator{}
	for _, line := range splitLines(body) {
		acc = p.step(acc, line)
	}
	return acc.answers, strings.TrimSpace(strings.Join(acc.freeText, "\n"))
}

// ParseReply parses body and records it with its survey id
func (p *Parser) ParseReply(surveyID, body string) ParsedReply {
	answers, free := p.Parse(body)
	return ParsedReply{
		SurveyID:   surveyID,
		Answers:    answers,
		FreeText:   free,
		RawContent: body,
	}
}

func (p *Parser) step(acc accumulator, line string) accumulator {
	line = strings.TrimSpace(line)
	if line == "" {
		return acc
	}

	// Quoted and header lines never yield answers, even when they carry a label
	if IsArtifact(line) {
		return acc
	}

	for _, match := range p.matchers {
		answer, result := match(line)
		switch result {
		case Matched:
			acc.answers = append(acc.answers, answer)
			return acc
		case Rejected:
			return acc
		}
	}

	acc.freeText = append(acc.freeText, line)
	return acc
}

func splitLines(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	return strings.Split(body, "\n")
}

// Parse runs the default rule set over body
func Parse(body string) ([]Answer, string) {
	return defaultParser.Parse(body)
}

var defaultParser = NewParser()
