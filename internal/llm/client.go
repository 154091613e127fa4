package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// ErrUpstream wraps failures talking to the completion service.
var ErrUpstream = errors.New("llm upstream error")

const promptPreviewChars = 3000

// Config for the chat/completions client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float32
	MaxTotalTokens    int
	MaxOutputTokens   int
	TokenSafetyMargin int
	Timeout           time.Duration
}

// Request is one extraction call. Text is already anonymized when
// Anonymized is true; the flag is only logged.
type Request struct {
	Kind       Kind
	Text       string
	Supplier   string
	Anonymized bool
}

// Response holds the extracted records. Records is never nil.
type Response struct {
	Records      []json.RawMessage `json:"records"`
	PromptTokens int               `json:"prompt_tokens"`
	TrimmedChars int               `json:"trimmed_chars"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// Client talks to an OpenAI-compatible chat/completions endpoint.
type Client struct {
	cfg        Config
	budget     Budget
	templates  map[Kind]string
	schema     *jsonschema.Schema
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client and loads the embedded prompt templates.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTotalTokens <= 0 {
		cfg.MaxTotalTokens = 128000
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 4096
	}
	if cfg.TokenSafetyMargin < 0 {
		cfg.TokenSafetyMargin = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	templates := make(map[Kind]string, 2)
	for _, kind := range []Kind{KindDocument, KindSalesData} {
		tmpl, err := loadTemplate(kind)
		if err != nil {
			return nil, err
		}
		templates[kind] = tmpl
	}

	schema, err := compileRecordsSchema()
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg: cfg,
		budget: Budget{
			MaxTotalTokens:  cfg.MaxTotalTokens,
			MaxOutputTokens: cfg.MaxOutputTokens,
			SafetyMargin:    cfg.TokenSafetyMargin,
		},
		templates:  templates,
		schema:     schema,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Extract builds the prompt, calls the model and parses its answer.
// Transport and HTTP errors are returned wrapped in ErrUpstream; output
// that cannot be parsed into records yields an empty result and a warning.
func (c *Client) Extract(ctx context.Context, req Request) (Response, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := c.logger.With(zap.String("llm_request_id", rid), zap.String("kind", string(req.Kind)))

	tmpl, ok := c.templates[req.Kind]
	if !ok {
		return Response{}, fmt.Errorf("unknown prompt kind: %q", req.Kind)
	}

	prompt, tokens, trimmed := c.budget.Fit(tmpl, req.Text)
	resp := Response{Records: []json.RawMessage{}, PromptTokens: tokens, TrimmedChars: trimmed}
	if trimmed > 0 {
		log.Warn("Prompt exceeds token budget, document trimmed",
			zap.Int("trimmed_chars", trimmed),
			zap.Int("prompt_tokens", tokens))
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("document trimmed by %d characters to fit the token budget", trimmed))
	}

	supplier := req.Supplier
	if supplier == "" {
		supplier = "unspecified"
	}
	log.Info("Sending extraction request",
		zap.String("model", c.cfg.Model),
		zap.String("supplier", supplier),
		zap.Bool("anonymized", req.Anonymized),
		zap.Int("prompt_tokens", tokens))
	log.Debug("Prompt preview",
		zap.String("supplier", supplier),
		zap.Bool("anonymized", req.Anonymized),
		zap.String("prompt", preview(prompt, promptPreviewChars)))

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxOutputTokens,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		log.Error("Completion request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return Response{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return Response{}, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if len(cc.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices in response", ErrUpstream)
	}

	records, err := parseRecords(c.schema, cc.Choices[0].Message.Content)
	if err != nil {
		log.Warn("Model output is not a JSON array of objects, returning no records",
			zap.Error(err),
			zap.String("raw", preview(cc.Choices[0].Message.Content, 1000)))
		resp.Warnings = append(resp.Warnings, err.Error())
		return resp, nil
	}

	resp.Records = records
	log.Info("Extraction completed",
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, preview(string(data), 500))
	}
	return data, nil
}
