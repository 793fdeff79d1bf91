// Package llm implements the primary categorization backend as a single
// HTTP request/response call. The wire contract is minimal: POST
// {text, categories, context} and read back {category, confidence,
// reasoning}. Model identity, endpoint and auth token are deployment
// details carried in config, not behavior.
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

	"kharcha/internal/categorize"
)

// ErrUnavailable is returned for any transport, status or decoding failure.
// Callers treat it as terminal for the attempt; there is no retry here.
var ErrUnavailable = errors.New("classifier unavailable")

const maxResponseBytes = 1 << 20

type Client struct {
	endpoint string
	apiKey   string
	model    string
	httpc    *http.Client
}

var _ categorize.Classifier = (*Client)(nil)

func New(endpoint, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpc:    &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Model      string   `json:"model,omitempty"`
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
	Context    string   `json:"context"`
}

// Classify performs one classification round trip.
func (c *Client) Classify(ctx context.Context, text string, categories []string, tag string) (categorize.Suggestion, error) {
	if c.endpoint == "" {
		return categorize.Suggestion{}, fmt.Errorf("%w: no endpoint configured", ErrUnavailable)
	}

	body, err := json.Marshal(classifyRequest{
		Model:      c.model,
		Text:       text,
		Categories: categories,
		Context:    tag,
	})
	if err != nil {
		return categorize.Suggestion{}, fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return categorize.Suggestion{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return categorize.Suggestion{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return categorize.Suggestion{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return categorize.Suggestion{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	s, err := decodeSuggestion(raw)
	if err != nil {
		return categorize.Suggestion{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s, nil
}

// decodeSuggestion tolerates sloppy model output: a clean JSON object, an
// object embedded in surrounding prose, or a truncated object that can be
// recovered by balancing braces. Anything else is an error.
func decodeSuggestion(raw []byte) (categorize.Suggestion, error) {
	var s categorize.Suggestion
	if err := json.Unmarshal(raw, &s); err == nil && s.Category != "" {
		return s, nil
	}

	text := string(raw)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return categorize.Suggestion{}, errors.New("no JSON object in response")
	}
	candidate := text[start:]

	if err := json.Unmarshal([]byte(candidate), &s); err == nil && s.Category != "" {
		return s, nil
	}

	repaired := balanceBraces(candidate)
	if err := json.Unmarshal([]byte(repaired), &s); err != nil || s.Category == "" {
		return categorize.Suggestion{}, errors.New("unrecoverable response body")
	}
	return s, nil
}

// balanceBraces closes an unterminated string and appends the closing
// braces a truncated JSON object is missing. A trailing partial key/value
// (a dangling comma or colon) is cut before closing.
func balanceBraces(s string) string {
	depth := 0
	inString := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case !inString && r == '{':
			depth++
		case !inString && r == '}':
			depth--
		}
	}
	if inString {
		s += `"`
	}
	s = strings.TrimRight(s, " \t\n\r")
	s = strings.TrimRight(s, ",:")
	for ; depth > 0; depth-- {
		s += "}"
	}
	return s
}
