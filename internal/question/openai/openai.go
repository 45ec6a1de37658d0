// Package openai generates questions with any OpenAI-compatible chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/question"
)

const (
	provider = "openai"

	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second

	systemPrompt = "You are a quiz generator. Respond with ONLY valid JSON, no markdown, no code fences, no explanations."
)

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Retry      question.RetryPolicy
	HTTPClient *http.Client
}

type Client struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	retry   question.RetryPolicy
	http    *http.Client
}

func New(c Config) *Client {
	cl := &Client{
		apiKey:  c.APIKey,
		baseURL: strings.TrimSuffix(c.BaseURL, "/"),
		model:   c.Model,
		timeout: c.Timeout,
		retry:   c.Retry,
		http:    c.HTTPClient,
	}

	if cl.baseURL == "" {
		cl.baseURL = DefaultBaseURL
	}
	if cl.model == "" {
		cl.model = DefaultModel
	}
	if cl.timeout <= 0 {
		cl.timeout = DefaultTimeout
	}
	if cl.http == nil {
		cl.http = &http.Client{}
	}

	return cl
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) Generate(ctx context.Context, req question.Request) ([]domain.Question, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: API key is not configured", provider)
	}

	return question.Retry(ctx, c.retry, provider, func(ctx context.Context) ([]domain.Question, error) {
		return c.generate(ctx, req)
	})
}

func (c *Client) generate(ctx context.Context, req question.Request) ([]domain.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: question.Prompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", provider, err)
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", provider, err)
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, question.Transient(fmt.Errorf("%s: request failed: %w", provider, err))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, question.Transient(fmt.Errorf("%s: read response: %w", provider, err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, question.StatusError(provider, resp.StatusCode, b)
	}

	var cr chatResponse
	if err := json.Unmarshal(b, &cr); err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", provider, err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("%s: API error: %s", provider, cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty response", provider)
	}

	qs, err := question.Parse(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", provider, err)
	}
	if err := question.Validate(qs, req.Count); err != nil {
		return nil, fmt.Errorf("%s: %w", provider, err)
	}

	return qs, nil
}
