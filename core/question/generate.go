package question

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/exam"
)

const generateSystemPrompt = "You are an experienced teacher who writes clear, unambiguous exam questions. " +
	"Always reply with a single JSON object and nothing else."

var ErrNothingGenerated = errors.New("the AI did not return any usable question")

type generated struct {
	Text       string          `json:"text"`
	Question   string          `json:"question"`
	Type       string          `json:"type"`
	Options    []string        `json:"options"`
	Answer     json.RawMessage `json:"answer"`
	Marks      float64         `json:"marks"`
	Difficulty string          `json:"difficulty"`
	Topic      string          `json:"topic"`
}

func buildGeneratePrompt(tst exam.Test, gr GenerateRequest, existing []Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d new questions for the test %q (total marks: %g).\n", gr.Count, tst.Name, tst.TotalMarks)
	if len(gr.Types) > 0 {
		fmt.Fprintf(&b, "Question types to use: %s.\n", strings.Join(gr.Types, ", "))
	} else {
		fmt.Fprintf(&b, "Mix question types among: %s.\n", strings.Join(Types, ", "))
	}
	if gr.Difficulty != "" {
		fmt.Fprintf(&b, "Difficulty: %s.\n", gr.Difficulty)
	}
	if gr.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s.\n", gr.Topic)
	}
	if tst.Instructions != "" {
		fmt.Fprintf(&b, "Test instructions: %s\n", tst.Instructions)
	}
	if gr.Instructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", gr.Instructions)
	}
	if len(existing) > 0 {
		b.WriteString("Do not repeat these existing questions:\n")
		for _, q := range existing {
			fmt.Fprintf(&b, "- %s\n", q.Text)
		}
	}
	b.WriteString(`Reply with JSON of the form {"questions":[{"text":"...","type":"mcq|short|long|true_false",` +
		`"options":["..."],"answer":"...","marks":1,"difficulty":"easy|medium|hard","topic":"..."}]}. ` +
		`"options" is only set for mcq questions and "answer" must then be one of them.`)
	return b.String()
}

// ParseGenerated decodes the questions of an AI reply. Unknown fields are ignored;
// "question" is accepted for "text" and boolean answers are converted to "true"/"false".
func ParseGenerated(content string) ([]NewQuestion, error) {
	var payload struct {
		Questions []generated `json:"questions"`
	}
	if err := json.Unmarshal([]byte(core.ExtractJSON(content)), &payload); err != nil {
		return nil, errors.Wrap(err, "decoding questions")
	}
	out := make([]NewQuestion, 0, len(payload.Questions))
	for _, g := range payload.Questions {
		text := g.Text
		if text == "" {
			text = g.Question
		}
		out = append(out, NewQuestion{
			Text:       text,
			Type:       g.Type,
			Options:    g.Options,
			Answer:     rawAnswer(g.Answer),
			Marks:      g.Marks,
			Difficulty: g.Difficulty,
			Topic:      g.Topic,
		})
	}
	return out, nil
}

func rawAnswer(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true"
		}
		return "false"
	}
	return strings.TrimSpace(string(raw))
}
