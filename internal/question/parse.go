package question

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/victornm/chatquiz/internal/domain"
)

var difficultyHints = map[domain.Difficulty]string{
	domain.DifficultyEasy:   "basic knowledge, simple concepts, commonly known facts",
	domain.DifficultyMedium: "intermediate knowledge, some analysis required, moderately challenging",
	domain.DifficultyHard:   "advanced knowledge, complex concepts, detailed understanding required",
	domain.DifficultyExpert: "expert-level knowledge, highly specialized, very challenging",
}

// Prompt renders the generation instructions for a language model.
func Prompt(req Request) string {
	hint, ok := difficultyHints[req.Difficulty]
	if !ok {
		hint = difficultyHints[domain.DifficultyMedium]
	}

	return fmt.Sprintf(`Generate %d multiple choice quiz questions about %s.

Difficulty level: %s (%s)

Requirements:
1. Each question must have exactly 4 answer options
2. Only one option is correct
3. Questions match the %s difficulty level
4. No ambiguous or trick questions
5. Incorrect options are plausible but clearly wrong
6. Questions are factual, verifiable and all different from each other

Return ONLY a JSON array with this exact structure, no other text:
[
  {
    "question_text": "Your question here?",
    "options": ["Option A", "Option B", "Option C", "Option D"],
    "correct_answer": "Option A"
  }
]

The correct_answer must exactly match one of the options.`,
		req.Count, req.Subject, req.Difficulty, hint, req.Difficulty)
}

type generated struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Parse extracts the question array from a model reply. Code fences and text around the
// array are tolerated; anything wrong inside it fails the whole batch.
func Parse(text string) ([]domain.Question, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var items []generated
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	qs := make([]domain.Question, 0, len(items))
	for i, it := range items {
		q, err := it.question()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		qs = append(qs, q)
	}

	return qs, nil
}

func (g generated) question() (domain.Question, error) {
	q := domain.Question{
		Text:          strings.TrimSpace(g.QuestionText),
		Options:       make([]string, 0, len(g.Options)),
		CorrectOption: -1,
	}

	answer := strings.TrimSpace(g.CorrectAnswer)
	for i, o := range g.Options {
		o = strings.TrimSpace(o)
		if o == answer && q.CorrectOption == -1 {
			q.CorrectOption = i
		}
		q.Options = append(q.Options, o)
	}

	if q.CorrectOption == -1 {
		return domain.Question{}, fmt.Errorf("correct answer %q not found in options", answer)
	}
	if err := domain.ValidateQuestion(q); err != nil {
		return domain.Question{}, err
	}

	return q, nil
}
