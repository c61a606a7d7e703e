package ingest

import (
	"strconv"
	"strings"

	"github.com/enkat-io/enkat/internal/inbox"
	"github.com/enkat-io/enkat/internal/survey"
)

// Write is one response to persist
type Write struct {
	Question survey.Question
	Value    survey.Value
}

// Skip records an answer that could not be stored
type Skip struct {
	Code   string
	Reason string
}

// Plan is the reconciled form of a parsed reply
type Plan struct {
	Writes        []Write
	Skipped       []Skip
	FreeTextSaved bool
}

// Answered is the number of structured answers that will be written
func (p Plan) Answered() int {
	if p.FreeTextSaved {
		return len(p.Writes) - 1
	}
	return len(p.Writes)
}

// Reconcile maps parsed answers onto the survey's questions. Later answers
// to the same question replace earlier ones. When no structured answer was
// found, non-empty free text goes to the designated long-text question.
func Reconcile(questions []survey.Question, answers []inbox.Answer, freeText string) Plan {
	byCode := make(map[string]survey.Question, len(questions))
	for _, q := range questions {
		byCode[survey.NormalizeCode(q.Code)] = q
	}
	commentTarget, hasCommentTarget := designatedLongText(questions)

	var plan Plan
	index := make(map[int64]int)
	put := func(w Write) {
		if i, ok := index[w.Question.ID]; ok {
			plan.Writes[i] = w
			return
		}
		index[w.Question.ID] = len(plan.Writes)
		plan.Writes = append(plan.Writes, w)
	}

	for _, a := range answers {
		code := survey.NormalizeCode(a.Code)
		q, ok := byCode[code]
		if !ok && code == inbox.GeneralCommentCode && hasCommentTarget {
			q, ok = commentTarget, true
		}
		if !ok {
			plan.Skipped = append(plan.Skipped, Skip{Code: code, Reason: "no question with this code"})
			continue
		}

		value, reason := valueFor(q, a)
		if value == nil {
			plan.Skipped = append(plan.Skipped, Skip{Code: code, Reason: reason})
			continue
		}
		put(Write{Question: q, Value: value})
	}

	if len(answers) == 0 && freeText != "" && hasCommentTarget {
		put(Write{Question: commentTarget, Value: survey.Text(freeText)})
		plan.FreeTextSaved = true
	}
	return plan
}

// designatedLongText picks the question that receives unlabelled comments:
// the first long-text question whose code contains "19", else the first
// long-text question.
func designatedLongText(questions []survey.Question) (survey.Question, bool) {
	var first *survey.Question
	for i := range questions {
		q := &questions[i]
		if q.Type != survey.TypeLongText {
			continue
		}
		if strings.Contains(q.Code, "19") {
			return *q, true
		}
		if first == nil {
			first = q
		}
	}
	if first == nil {
		return survey.Question{}, false
	}
	return *first, true
}

// valueFor converts an answer to the value shape of its question.
// A nil value comes with the reason it was refused.
func valueFor(q survey.Question, a inbox.Answer) (survey.Value, string) {
	if a.IsNA() {
		return survey.NotApplicable{}, ""
	}

	switch q.Type {
	case survey.TypeRating:
		if a.Kind == inbox.AnswerYesNo {
			return nil, "yes/no value for a rating question"
		}
		n, ok := answerNumber(a)
		if !ok {
			return nil, "non-numeric value for a rating question"
		}
		if q.MaxValue > 0 && (n < q.MinValue || n > q.MaxValue) {
			return nil, "rating outside the question's scale"
		}
		return survey.Rating(n), ""

	case survey.TypeYesNo:
		n, ok := answerNumber(a)
		return survey.Bool(ok && n == 1), ""

	case survey.TypeText, survey.TypeLongText:
		if a.Kind == inbox.AnswerComment {
			return survey.Text(a.Text), ""
		}
		return survey.Text(strconv.Itoa(a.Number)), ""
	}
	return nil, "unknown question type " + string(q.Type)
}

func answerNumber(a inbox.Answer) (int, bool) {
	if a.Kind != inbox.AnswerComment {
		return a.Number, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(a.Text))
	return n, err == nil
}
