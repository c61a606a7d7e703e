package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enkat-io/enkat/internal/inbox"
	"github.com/enkat-io/enkat/internal/survey"
)

var testQuestions = []survey.Question{
	{ID: 1, Code: "Q1", Type: survey.TypeRating, MinValue: 1, MaxValue: 10},
	{ID: 2, Code: "Q2", Type: survey.TypeRating, MinValue: 1, MaxValue: 5},
	{ID: 3, Code: "Q5_OK", Type: survey.TypeYesNo},
	{ID: 4, Code: "Q7", Type: survey.TypeText},
	{ID: 5, Code: "Q18", Type: survey.TypeLongText},
	{ID: 6, Code: "Q19", Type: survey.TypeLongText},
	{ID: 7, Code: "Q19_COMMENT", Type: survey.TypeText},
}

func TestReconcileValueMapping(t *testing.T) {
	tests := []struct {
		name   string
		answer inbox.Answer
		wantQ  int64
		want   survey.Value
	}{
		{"rating", inbox.Answer{Code: "Q1", Kind: inbox.AnswerRating, Number: 8}, 1, survey.Rating(8)},
		{"lowercase code", inbox.Answer{Code: "q1", Kind: inbox.AnswerRating, Number: 3}, 1, survey.Rating(3)},
		{"na on rating", inbox.Answer{Code: "Q1", Kind: inbox.AnswerNA}, 1, survey.NotApplicable{}},
		{"yes", inbox.Answer{Code: "Q5_OK", Kind: inbox.AnswerYesNo, Number: 1}, 3, survey.Bool(true)},
		{"no", inbox.Answer{Code: "Q5_OK", Kind: inbox.AnswerYesNo, Number: 0}, 3, survey.Bool(false)},
		{"na on yesno", inbox.Answer{Code: "Q5_OK", Kind: inbox.AnswerNA}, 3, survey.NotApplicable{}},
		{"rating on text question", inbox.Answer{Code: "Q7", Kind: inbox.AnswerRating, Number: 4}, 4, survey.Text("4")},
		{"comment", inbox.Answer{Code: "Q19_COMMENT", Kind: inbox.AnswerComment, Text: "Bra"}, 7, survey.Text("Bra")},
		{"general comment routed", inbox.Answer{Code: inbox.GeneralCommentCode, Kind: inbox.AnswerComment, Text: "Tack"}, 6, survey.Text("Tack")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Reconcile(testQuestions, []inbox.Answer{tt.answer}, "")
			require.Len(t, plan.Writes, 1)
			assert.Empty(t, plan.Skipped)
			assert.Equal(t, tt.wantQ, plan.Writes[0].Question.ID)
			assert.Equal(t, tt.want, plan.Writes[0].Value)
		})
	}
}

func TestReconcileSkips(t *testing.T) {
	tests := []struct {
		name   string
		answer inbox.Answer
	}{
		{"unknown code", inbox.Answer{Code: "Q99", Kind: inbox.AnswerRating, Number: 5}},
		{"outside question scale", inbox.Answer{Code: "Q2", Kind: inbox.AnswerRating, Number: 8}},
		{"yes/no on rating", inbox.Answer{Code: "Q1", Kind: inbox.AnswerYesNo, Number: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Reconcile(testQuestions, []inbox.Answer{tt.answer}, "")
			assert.Empty(t, plan.Writes)
			assert.Len(t, plan.Skipped, 1)
		})
	}
}

func TestReconcileLastAnswerWins(t *testing.T) {
	answers := []inbox.Answer{
		{Code: "Q1", Kind: inbox.AnswerRating, Number: 3},
		{Code: "Q7", Kind: inbox.AnswerComment, Text: "x"},
		{Code: "Q1", Kind: inbox.AnswerRating, Number: 9},
	}
	plan := Reconcile(testQuestions, answers, "")
	require.Len(t, plan.Writes, 2)
	assert.Equal(t, survey.Rating(9), plan.Writes[0].Value)
	assert.Equal(t, 2, plan.Answered())
}

func TestReconcileFreeTextFallback(t *testing.T) {
	plan := Reconcile(testQuestions, nil, "Allt fungerade bra.\nTack!")
	require.Len(t, plan.Writes, 1)
	assert.True(t, plan.FreeTextSaved)
	assert.Equal(t, int64(6), plan.Writes[0].Question.ID)
	assert.Equal(t, survey.Text("Allt fungerade bra.\nTack!"), plan.Writes[0].Value)
	assert.Zero(t, plan.Answered())
}

func TestReconcileFreeTextIgnoredWithAnswers(t *testing.T) {
	answers := []inbox.Answer{{Code: "Q1", Kind: inbox.AnswerRating, Number: 7}}
	plan := Reconcile(testQuestions, answers, "some text")
	require.Len(t, plan.Writes, 1)
	assert.False(t, plan.FreeTextSaved)
}

func TestReconcileFreeTextWithoutLongText(t *testing.T) {
	questions := []survey.Question{{ID: 1, Code: "Q1", Type: survey.TypeRating, MinValue: 1, MaxValue: 10}}
	plan := Reconcile(questions, nil, "hello")
	assert.Empty(t, plan.Writes)
	assert.False(t, plan.FreeTextSaved)
}

func TestDesignatedLongText(t *testing.T) {
	q, ok := designatedLongText(testQuestions)
	require.True(t, ok)
	assert.Equal(t, "Q19", q.Code)

	q, ok = designatedLongText([]survey.Question{
		{Code: "Q1", Type: survey.TypeRating},
		{Code: "Q3", Type: survey.TypeLongText},
		{Code: "Q4", Type: survey.TypeLongText},
	})
	require.True(t, ok)
	assert.Equal(t, "Q3", q.Code)

	_, ok = designatedLongText([]survey.Question{{Code: "Q19", Type: survey.TypeText}})
	assert.False(t, ok)
}
