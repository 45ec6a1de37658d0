package question_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/question"
)

const twoQuestions = `[
  {"question_text": "What is 2+2?", "options": ["3", "4", "5", "6"], "correct_answer": "4"},
  {"question_text": "Capital of France?", "options": ["Paris", "Rome", "Berlin", "Madrid"], "correct_answer": "Paris"}
]`

func TestParse(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		text    string
		want    []domain.Question
		wantErr bool
	}{
		"should parse a plain JSON array": {
			text: twoQuestions,
			want: []domain.Question{
				{Text: "What is 2+2?", Options: []string{"3", "4", "5", "6"}, CorrectOption: 1},
				{Text: "Capital of France?", Options: []string{"Paris", "Rome", "Berlin", "Madrid"}, CorrectOption: 0},
			},
		},
		"should tolerate code fences and surrounding text": {
			text: "Sure! Here you go:\n```json\n" + twoQuestions + "\n```\nEnjoy.",
			want: []domain.Question{
				{Text: "What is 2+2?", Options: []string{"3", "4", "5", "6"}, CorrectOption: 1},
				{Text: "Capital of France?", Options: []string{"Paris", "Rome", "Berlin", "Madrid"}, CorrectOption: 0},
			},
		},
		"should trim whitespace around options and answer": {
			text: `[{"question_text": " Q? ", "options": [" a", "b ", "c", "d"], "correct_answer": "b"}]`,
			want: []domain.Question{
				{Text: "Q?", Options: []string{"a", "b", "c", "d"}, CorrectOption: 1},
			},
		},
		"should fail without an array": {
			text:    `{"question_text": "Q?"}`,
			wantErr: true,
		},
		"should fail on malformed JSON": {
			text:    `[{"question_text": "Q?",]`,
			wantErr: true,
		},
		"should fail the batch when one answer is not among the options": {
			text: `[
  {"question_text": "Q1?", "options": ["a", "b", "c", "d"], "correct_answer": "a"},
  {"question_text": "Q2?", "options": ["a", "b", "c", "d"], "correct_answer": "e"}
]`,
			wantErr: true,
		},
		"should fail the batch when one question has three options": {
			text:    `[{"question_text": "Q?", "options": ["a", "b", "c"], "correct_answer": "a"}]`,
			wantErr: true,
		},
		"should fail on duplicate options": {
			text:    `[{"question_text": "Q?", "options": ["a", "A", "c", "d"], "correct_answer": "c"}]`,
			wantErr: true,
		},
		"should fail on empty question text": {
			text:    `[{"question_text": "  ", "options": ["a", "b", "c", "d"], "correct_answer": "a"}]`,
			wantErr: true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := question.Parse(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	q := func(text string) domain.Question {
		return domain.Question{Text: text, Options: []string{"a", "b", "c", "d"}, CorrectOption: 2}
	}

	tests := map[string]struct {
		qs      []domain.Question
		count   int
		wantErr bool
	}{
		"should accept an exact batch":          {qs: []domain.Question{q("one"), q("two")}, count: 2},
		"should reject a short batch":           {qs: []domain.Question{q("one")}, count: 2, wantErr: true},
		"should reject a long batch":            {qs: []domain.Question{q("one"), q("two"), q("three")}, count: 2, wantErr: true},
		"should reject repeated question texts": {qs: []domain.Question{q("One  two"), q("one two")}, count: 2, wantErr: true},
		"should reject an invalid question": {
			qs:      []domain.Question{q("one"), {Text: "two", Options: []string{"a", "b", "c", "d"}, CorrectOption: 4}},
			count:   2,
			wantErr: true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := question.Validate(tt.qs, tt.count)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPrompt(t *testing.T) {
	t.Parallel()

	p := question.Prompt(question.Request{Subject: "volcanoes", Count: 7, Difficulty: domain.DifficultyHard})
	require.Contains(t, p, "Generate 7 multiple choice quiz questions about volcanoes.")
	require.Contains(t, p, "Difficulty level: hard")
}

func TestStatic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bank.json")
	require.NoError(t, os.WriteFile(path, []byte(twoQuestions), 0o600))

	s, err := question.LoadStatic(path)
	require.NoError(t, err)

	qs, err := s.Generate(context.Background(), question.Request{Subject: "x", Count: 1})
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.Equal(t, "What is 2+2?", qs[0].Text)

	_, err = s.Generate(context.Background(), question.Request{Subject: "x", Count: 3})
	require.Error(t, err, "should not serve more questions than the bank holds")

	_, err = question.LoadStatic(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestRetry(t *testing.T) {
	t.Parallel()

	policy := question.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond}
	ok := []domain.Question{{Text: "q", Options: []string{"a", "b", "c", "d"}}}

	tests := map[string]struct {
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		"should return on first success": {
			errs:      []error{nil},
			wantCalls: 1,
		},
		"should retry transient failures until success": {
			errs:      []error{question.Transient(errors.New("timeout")), question.Transient(errors.New("429")), nil},
			wantCalls: 3,
		},
		"should not retry a permanent failure": {
			errs:      []error{errors.New("bad json")},
			wantCalls: 1,
			wantErr:   true,
		},
		"should give up after the retries are used up": {
			errs: []error{
				question.Transient(errors.New("1")),
				question.Transient(errors.New("2")),
				question.Transient(errors.New("3")),
				question.Transient(errors.New("4")),
				nil,
			},
			wantCalls: 4,
			wantErr:   true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			got, err := question.Retry(context.Background(), policy, "test", func(ctx context.Context) ([]domain.Question, error) {
				err := tt.errs[calls]
				calls++
				if err != nil {
					return nil, err
				}
				return ok, nil
			})

			require.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, ok, got)
		})
	}
}

func TestRetry_StopsWhenContextIsCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := question.RetryPolicy{MaxRetries: 10, InitialInterval: time.Hour}

	calls := 0
	_, err := question.Retry(ctx, policy, "test", func(ctx context.Context) ([]domain.Question, error) {
		calls++
		cancel()
		return nil, question.Transient(errors.New("unavailable"))
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	tests := map[int]bool{
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusServiceUnavailable:  true,
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusNotFound:            false,
	}

	for status, transient := range tests {
		status, transient := status, transient
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			t.Parallel()

			err := question.StatusError("test", status, []byte("oops"))
			require.Error(t, err)
			require.Equal(t, transient, question.IsTransient(err))
		})
	}
}
