package aisvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/paper"
)

const evaluateSystemPrompt = "You are a fair and careful examiner marking a student's answer sheet. " +
	"Award partial marks where the reasoning is right. Never award more than the marks of a question. " +
	"Always reply with a single JSON object and nothing else."

var ErrUnreadableOutcome = errors.New("the AI reply is not a valid evaluation")

// Evaluator marks answer sheets with a chat completer.
type Evaluator struct {
	ai core.ChatCompleter
}

var _ evaluation.Evaluator = (*Evaluator)(nil)

func NewEvaluator(ai core.ChatCompleter) *Evaluator {
	return &Evaluator{ai: ai}
}

func (e *Evaluator) Evaluate(ctx context.Context, in evaluation.Input) (evaluation.Outcome, error) {
	req := core.ChatRequest{
		System: evaluateSystemPrompt,
		Prompt: BuildEvaluationPrompt(in),
		JSON:   true,
	}
	if in.AnswerSheetType == paper.DocImage {
		req.ImageURLs = []string{in.AnswerSheetURL}
	}

	content, err := e.ai.Complete(ctx, req)
	if err != nil {
		return evaluation.Outcome{}, err
	}
	return ParseOutcome(content, in)
}

// BuildEvaluationPrompt describes the test, its questions (or question paper) and the answer sheet.
func BuildEvaluationPrompt(in evaluation.Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Test: %s (total marks: %g).\n", in.Test.Name, in.Test.TotalMarks)
	if in.StudentName != "" {
		fmt.Fprintf(&b, "Student: %s.\n", in.StudentName)
	}
	if in.Test.Instructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", in.Test.Instructions)
	}

	if len(in.Questions) > 0 {
		b.WriteString("Questions:\n")
		for _, q := range in.Questions {
			fmt.Fprintf(&b, "%d. [%s, %g marks] %s\n", q.Number, q.Type, q.Marks, q.Text)
			if len(q.Options) > 0 {
				fmt.Fprintf(&b, "   Options: %s\n", strings.Join(q.Options, " | "))
			}
			if q.Answer != "" {
				fmt.Fprintf(&b, "   Expected answer: %s\n", q.Answer)
			}
		}
	} else if in.QuestionPaperURL != "" {
		fmt.Fprintf(&b, "The questions are in the question paper at %s\n", in.QuestionPaperURL)
	}
	if in.AnswerKeyURL != "" {
		fmt.Fprintf(&b, "The answer key is at %s\n", in.AnswerKeyURL)
	}

	if in.AnswerSheetType == paper.DocImage {
		b.WriteString("The student's answer sheet is the attached image.\n")
	} else {
		fmt.Fprintf(&b, "The student's answer sheet (%s) is at %s\n", in.AnswerSheetType, in.AnswerSheetURL)
	}

	b.WriteString(`Reply with JSON of the form {"score":0,"feedback":"...","results":[{"question_number":1,` +
		`"awarded":0,"max":1,"comment":"..."}]}. "score" is the total awarded. ` +
		`"feedback" is 2 to 3 sentences addressed to the student.`)
	return b.String()
}

// ParseOutcome decodes an AI evaluation reply. Awarded marks are kept within the marks of each
// question and a missing score is the sum of the awarded marks.
func ParseOutcome(content string, in evaluation.Input) (evaluation.Outcome, error) {
	var payload struct {
		Score    *float64            `json:"score"`
		Feedback string              `json:"feedback"`
		Results  []evaluation.Result `json:"results"`
	}
	if err := json.Unmarshal([]byte(core.ExtractJSON(content)), &payload); err != nil {
		return evaluation.Outcome{}, errors.Wrap(ErrUnreadableOutcome, err.Error())
	}
	if payload.Score == nil && len(payload.Results) == 0 {
		return evaluation.Outcome{}, ErrUnreadableOutcome
	}

	marks := make(map[int]float64, len(in.Questions))
	for _, q := range in.Questions {
		marks[q.Number] = q.Marks
	}

	var sum float64
	results := make(evaluation.Results, 0, len(payload.Results))
	for _, r := range payload.Results {
		if m, ok := marks[r.QuestionNumber]; ok {
			r.Max = m
		}
		if r.Awarded < 0 {
			r.Awarded = 0
		}
		if r.Max > 0 && r.Awarded > r.Max {
			r.Awarded = r.Max
		}
		r.Comment = strings.TrimSpace(r.Comment)
		sum += r.Awarded
		results = append(results, r)
	}

	out := evaluation.Outcome{
		Score:    sum,
		Feedback: strings.TrimSpace(payload.Feedback),
		Results:  results,
	}
	if payload.Score != nil {
		out.Score = *payload.Score
	}
	return out, nil
}
