// Package gemini generates questions with the Gemini generateContent API.
package gemini

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
	provider = "gemini"

	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 60 * time.Second
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

type (
	generateRequest struct {
		Contents         []content        `json:"contents"`
		GenerationConfig generationConfig `json:"generationConfig"`
	}

	content struct {
		Parts []part `json:"parts"`
	}

	part struct {
		Text string `json:"text"`
	}

	generationConfig struct {
		ResponseMimeType string  `json:"responseMimeType"`
		Temperature      float64 `json:"temperature"`
	}

	generateResponse struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
)

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

	body, err := json.Marshal(generateRequest{
		Contents: []content{
			{Parts: []part{{Text: question.Prompt(req)}}},
		},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0.7,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", provider, err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.baseURL, c.model)
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", provider, err)
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("x-goog-api-key", c.apiKey)

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

	var gr generateResponse
	if err := json.Unmarshal(b, &gr); err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", provider, err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%s: empty response", provider)
	}

	qs, err := question.Parse(gr.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", provider, err)
	}
	if err := question.Validate(qs, req.Count); err != nil {
		return nil, fmt.Errorf("%s: %w", provider, err)
	}

	return qs, nil
}
