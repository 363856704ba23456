package checklist

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
)

// ErrNoAPIKey is returned by the Gemini scorer when no API key is set.
var ErrNoAPIKey = errors.New("gemini: API key is missing")

const (
	DefaultGeminiModel   = "gemini-2.0-flash"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiClient scores checklist labels with a Gemini generateContent call.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewGeminiClient creates a scorer. Empty model and baseURL use the defaults.
func NewGeminiClient(apiKey, model, baseURL string) *GeminiClient {
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	return &GeminiClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Score asks the model for a label -> probability map. Values are clamped to
// [0, 1] and labels outside labels are dropped.
func (g *GeminiClient) Score(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	if g.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: buildPrompt(text, labels)}},
	}}})
	if err != nil {
		return nil, fmt.Errorf("gemini: marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: API returned status %d", resp.StatusCode)
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("gemini: parsing response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("gemini: API error [%d] %s", apiResp.Error.Code, apiResp.Error.Status)
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("gemini: returned no candidates")
	}

	return parseDistribution(apiResp.Candidates[0].Content.Parts[0].Text, labels)
}

func buildPrompt(text string, labels []string) string {
	return "You are a multi-label classifier. Given a clinical procedure note, " +
		"return probabilities for each of these labels: " + strings.Join(labels, ", ") +
		". Only output JSON mapping label to probability (0..1) with keys exactly matching the labels." +
		"\n\n=== NOTE TEXT START ===\n" + text + "\n=== NOTE TEXT END ==="
}

// parseDistribution reads the model's JSON answer, tolerating a markdown code
// fence around it.
func parseDistribution(content string, labels []string) (map[string]float64, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	var data map[string]float64
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, fmt.Errorf("gemini: unparsable distribution: %w", err)
	}
	out := make(map[string]float64, len(labels))
	for _, l := range labels {
		v, ok := data[l]
		if !ok {
			continue
		}
		out[l] = min(max(v, 0), 1)
	}
	if len(out) == 0 {
		return nil, errors.New("gemini: distribution has no known labels")
	}
	return out, nil
}
