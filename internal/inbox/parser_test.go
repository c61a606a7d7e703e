package inbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypicalReply(t *testing.T) {
	body := strings.Join([]string{
		"Hej!",
		"",
		"Q1: 8",
		"q2a = 10",
		"Q3: N/A",
		"Q4: 0",
		"Q5_ok: ja",
		"Q19_comment: Bra samarbete i år",
		"Kommentar: Svarar gärna igen nästa år",
		"Mvh Anna",
		"",
		"On Mon, 2 Mar 2026 at 09:00, Enkät <reply+abc-123@enkat.se> wrote:",
		"> Q1: ",
		"> Q2a: ",
	}, "\r\n")

	answers, free := Parse(body)

	require.Len(t, answers, 6)
	assert.Equal(t, Answer{Code: "Q1", Kind: AnswerRating, Number: 8}, answers[0])
	assert.Equal(t, Answer{Code: "Q2A", Kind: AnswerRating, Number: 10}, answers[1])
	assert.Equal(t, Answer{Code: "Q3", Kind: AnswerNA}, answers[2])
	assert.Equal(t, Answer{Code: "Q5_OK", Kind: AnswerYesNo, Number: 1}, answers[3])
	assert.Equal(t, Answer{Code: "Q19_COMMENT", Kind: AnswerComment, Text: "Bra samarbete i år"}, answers[4])
	assert.Equal(t, Answer{Code: GeneralCommentCode, Kind: AnswerComment, Text: "Svarar gärna igen nästa år"}, answers[5])

	// Q4: 0 is dropped entirely, never free text
	assert.Equal(t, "Hej!\nMvh Anna", free)
}

func TestParseSeparatorEquivalence(t *testing.T) {
	a1, f1 := Parse("Q4a = 9")
	a2, f2 := Parse("Q4a: 9")
	assert.Equal(t, a1, a2)
	assert.Equal(t, f1, f2)
}

func TestParseCaseInsensitiveCodes(t *testing.T) {
	a1, _ := Parse("q3a: 8")
	a2, _ := Parse("Q3A: 8")
	assert.Equal(t, a1, a2)
}

func TestParseDiscardsArtifacts(t *testing.T) {
	body := strings.Join([]string{
		"> Q1: 5",
		"From: Enkät <noreply@enkat.se>",
		"Sent: den 2 mars 2026 09:00",
		"To: kontakt@acme.se",
		"Från: Enkät",
		"Skickat: måndag",
		"Till: kontakt@acme.se",
		"On Tue someone wrote:",
		"Anna Svensson skrev:",
		"Anna Svensson wrote:",
		"-----",
		"______________",
		"---Original Message---",
	}, "\n")

	answers, free := Parse(body)
	assert.Empty(t, answers)
	assert.Equal(t, "---Original Message---", free)
}

func TestParseRatingsWithTrailingPunctuation(t *testing.T) {
	answers, free := Parse("Q3: 8.\nQ5: 8, bra\nQ6: 8/10\nQ4 = n/a.")
	require.Len(t, answers, 4)
	assert.Equal(t, 8, answers[0].Number)
	assert.Equal(t, 8, answers[1].Number)
	assert.Equal(t, 8, answers[2].Number)
	assert.True(t, answers[3].IsNA())
	assert.Empty(t, free)
}

func TestParseLabeledArtifactIsNotAnAnswer(t *testing.T) {
	answers, free := Parse("Comment: Bob wrote: good\nQ19_comment: Anna skrev: bra\nKommentar: Tack")
	require.Len(t, answers, 1)
	assert.Equal(t, GeneralCommentCode, answers[0].Code)
	assert.Equal(t, "Tack", answers[0].Text)
	assert.Empty(t, free)
}

func TestParseFreeTextOnly(t *testing.T) {
	body := "Vi är mycket nöjda.\n\n  Leveranserna har fungerat bra.  \n"
	answers, free := Parse(body)
	assert.Empty(t, answers)
	assert.Equal(t, "Vi är mycket nöjda.\nLeveranserna har fungerat bra.", free)
}

func TestParseEmptyBody(t *testing.T) {
	answers, free := Parse("   \n\n")
	assert.Empty(t, answers)
	assert.Empty(t, free)
}

func TestParseKeepsOrderAndDuplicates(t *testing.T) {
	answers, _ := Parse("Q2: 3\nQ1: 4\nQ2: 7")
	require.Len(t, answers, 3)
	assert.Equal(t, "Q2", answers[0].Code)
	assert.Equal(t, "Q1", answers[1].Code)
	assert.Equal(t, 7, answers[2].Number)
}

func TestParserFirstMatchWins(t *testing.T) {
	var calls []string
	first := func(line string) (Answer, Match) {
		calls = append(calls, "first")
		return Answer{Code: "X"}, Matched
	}
	second := func(line string) (Answer, Match) {
		calls = append(calls, "second")
		return Answer{Code: "Y"}, Matched
	}

	answers, _ := NewParser(first, second).Parse("anything")
	require.Len(t, answers, 1)
	assert.Equal(t, "X", answers[0].Code)
	assert.Equal(t, []string{"first"}, calls)
}

func TestParserCustomMatcherExtendsRules(t *testing.T) {
	stars := func(line string) (Answer, Match) {
		if strings.HasPrefix(line, "*") {
			return Answer{Code: "STARS", Kind: AnswerRating, Number: len(line)}, Matched
		}
		return Answer{}, NoMatch
	}
	matchers := append([]Matcher{stars}, DefaultMatchers...)

	answers, free := NewParser(matchers...).Parse("****\nQ1: 2\nhej")
	require.Len(t, answers, 2)
	assert.Equal(t, 4, answers[0].Number)
	assert.Equal(t, "Q1", answers[1].Code)
	assert.Equal(t, "hej", free)
}

func TestParseReply(t *testing.T) {
	body := "Q1: 5\nTack!"
	reply := NewParser().ParseReply("abc-123", body)
	assert.Equal(t, "abc-123", reply.SurveyID)
	assert.Len(t, reply.Answers, 1)
	assert.Equal(t, "Tack!", reply.FreeText)
	assert.Equal(t, body, reply.RawContent)
}

func TestIsArtifact(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"> quoted", true},
		{"On Monday", true},
		{"Once upon a time", false},
		{"From: x", true},
		{"from the team", false},
		{"She wrote: hello", true},
		{"---", true},
		{"--", false},
		{"___", true},
		{"-_-", false},
		{"Bra jobbat", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := IsArtifact(tt.line); got != tt.want {
				t.Errorf("IsArtifact(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}
