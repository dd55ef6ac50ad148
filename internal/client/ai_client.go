package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/extract"
	"github.com/mashareq-erp/be-procurement/internal/service"
)

// AIClient talks to the document-intelligence collaborator over HTTP JSON.
// Calls are single-shot — the callers degrade to placeholders or a local
// fallback on error, so there is no retry policy here. A circuit breaker
// makes a dead collaborator fail fast instead of burning the request timeout
// on every file of a batch.
type AIClient struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[json.RawMessage]
}

// NewAIClient creates an AIClient.
func NewAIClient(baseURL, model, apiKey string) *AIClient {
	breaker := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name: "ai-collaborator",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		Timeout: 30 * time.Second,
	})

	return &AIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		breaker:    breaker,
	}
}

type extractRequest struct {
	Model         string `json:"model"`
	FileName      string `json:"file_name"`
	MimeType      string `json:"mime_type"`
	ContentBase64 string `json:"content_base64"`
	DocTypeHint   string `json:"doc_type_hint,omitempty"`
	TextHint      string `json:"text_hint,omitempty"`
}

// ExtractQuotation sends one document for structured extraction. For PDFs a
// locally extracted text hint accompanies the raw bytes so the collaborator
// does not have to OCR machine-readable files.
func (c *AIClient) ExtractQuotation(ctx context.Context, file service.QuotationFile) (*service.ExtractedQuotation, error) {
	req := extractRequest{
		Model:         c.model,
		FileName:      file.FileName,
		MimeType:      file.MimeType,
		ContentBase64: base64.StdEncoding.EncodeToString(file.Content),
		DocTypeHint:   file.DocTypeHint,
	}
	if strings.Contains(file.MimeType, "pdf") {
		if text, err := extract.PDFText(file.Content); err == nil {
			req.TextHint = text
		}
	}

	raw, err := c.postJSON(ctx, "/v1/extract", req)
	if err != nil {
		return nil, err
	}

	var q service.ExtractedQuotation
	if err := json.Unmarshal([]byte(extractJSONObject(string(raw))), &q); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "failed to parse extraction response")
	}
	return &q, nil
}

type compareRequest struct {
	Model      string                       `json:"model"`
	Quotations []service.ExtractedQuotation `json:"quotations"`
}

// CompareQuotations asks the collaborator for a ranking and recommendation.
// The caller falls back to a locally computed analysis on any error.
func (c *AIClient) CompareQuotations(ctx context.Context, quotations []service.ExtractedQuotation) (*service.AIComparison, error) {
	raw, err := c.postJSON(ctx, "/v1/compare", compareRequest{Model: c.model, Quotations: quotations})
	if err != nil {
		return nil, err
	}

	var cmp service.AIComparison
	if err := json.Unmarshal([]byte(extractJSONObject(string(raw))), &cmp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "failed to parse comparison response")
	}
	return &cmp, nil
}

// postJSON performs one breaker-guarded POST and returns the raw body.
func (c *AIClient) postJSON(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	return c.breaker.Execute(func() (json.RawMessage, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "ai collaborator unreachable")
		}
		defer resp.Body.Close()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "failed to read ai response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, apperrors.Newf(apperrors.CodeUnavailable,
				"ai collaborator returned status %d: %s", resp.StatusCode, truncate(buf.String(), 200))
		}
		return json.RawMessage(buf.Bytes()), nil
	})
}

// extractJSONObject returns the first balanced top-level JSON object in text.
// Models sometimes wrap JSON in prose or code fences.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return text
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ service.AIClientInterface = (*AIClient)(nil)
