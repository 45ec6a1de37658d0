package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/question"
	"github.com/victornm/chatquiz/internal/question/openai"
)

const reply = "```json\n" + `[
  {"question_text": "Largest planet?", "options": ["Mars", "Jupiter", "Venus", "Earth"], "correct_answer": "Jupiter"}
]` + "\n```"

func TestClient_Generate(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "test-model", body.Model)
		require.Len(t, body.Messages, 2)
		require.Contains(t, body.Messages[1].Content, "about astronomy")

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	defer srv.Close()

	c := openai.New(openai.Config{
		APIKey:  "secret",
		BaseURL: srv.URL + "/v1/",
		Model:   "test-model",
		Timeout: time.Second,
		Retry:   question.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond},
	})

	qs, err := c.Generate(context.Background(), question.Request{
		Subject:    "astronomy",
		Count:      1,
		Difficulty: domain.DifficultyMedium,
	})
	require.NoError(t, err)
	require.Equal(t, []domain.Question{
		{Text: "Largest planet?", Options: []string{"Mars", "Jupiter", "Venus", "Earth"}, CorrectOption: 1},
	}, qs)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls), "should retry once after a bad gateway")
}

func TestClient_GenerateAPIError(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model not found"},
		})
	}))
	defer srv.Close()

	c := openai.New(openai.Config{
		APIKey:  "secret",
		BaseURL: srv.URL,
		Retry:   question.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond},
	})

	_, err := c.Generate(context.Background(), question.Request{Subject: "x", Count: 1})
	require.ErrorContains(t, err, "model not found")
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
