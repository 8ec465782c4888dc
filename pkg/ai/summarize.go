package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"meetinghub/apperr"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

const summaryPrompt = `You are an expert AI Meeting Assistant. Analyze the following transcript and provide:
1. A concise executive summary.
2. A list of key action items (if any).

Transcript:
%s

Return the response in JSON format with keys: "summary" and "action_items".`

type SummaryResult struct {
	Summary     string
	ActionItems []string
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (*SummaryResult, error)
}

// GeminiSummarizer calls the Gemini generateContent endpoint asking for
// a JSON response.
type GeminiSummarizer struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewGeminiSummarizer(apiKey string, timeout time.Duration) *GeminiSummarizer {
	return &GeminiSummarizer{
		APIKey:  apiKey,
		BaseURL: defaultGeminiURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, transcript string) (*SummaryResult, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("%w: Google API key not configured", apperr.ErrCapability)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: fmt.Sprintf(summaryPrompt, transcript)}}},
		},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling summarization API: %v", apperr.ErrCapability, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading summarization response: %v", apperr.ErrCapability, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: summarization API HTTP %d: %s", apperr.ErrCapability, resp.StatusCode, string(respBody))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: parsing summarization response: %v", apperr.ErrCapability, err)
	}

	var text string
	for _, cand := range apiResp.Candidates {
		for _, part := range cand.Content.Parts {
			text += part.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty summarization response", apperr.ErrCapability)
	}

	var payload struct {
		Summary     string          `json:"summary"`
		ActionItems json.RawMessage `json:"action_items"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: summarization returned malformed JSON: %v", apperr.ErrCapability, err)
	}

	return &SummaryResult{
		Summary:     payload.Summary,
		ActionItems: normalizeActionItems(payload.ActionItems),
	}, nil
}

// normalizeActionItems flattens the provider's loose output (a list of
// strings, a single string, or nothing) into a string slice.
func normalizeActionItems(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" || single == "None" {
			return nil
		}
		return []string{single}
	}

	return nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"response_mime_type"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}
