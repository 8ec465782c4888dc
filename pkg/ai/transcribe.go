// Package ai holds the clients for the two external capabilities the
// pipeline consumes: speech-to-text and transcript summarization.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"meetinghub/apperr"
	"meetinghub/entities"
)

const defaultTranscriptionURL = "https://api.openai.com/v1/audio/transcriptions"

type TranscriptResult struct {
	Text  string
	Words []entities.TranscriptWord
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*TranscriptResult, error)
}

// WhisperTranscriber calls the OpenAI transcription endpoint with
// word-level timestamp granularity.
type WhisperTranscriber struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewWhisperTranscriber(apiKey string, timeout time.Duration) *WhisperTranscriber {
	return &WhisperTranscriber{
		APIKey:  apiKey,
		BaseURL: defaultTranscriptionURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (*TranscriptResult, error) {
	if t.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key not configured", apperr.ErrCapability)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", "whisper-1"); err != nil {
		return nil, err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}
	if err := writer.WriteField("timestamp_granularities[]", "word"); err != nil {
		return nil, err
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling transcription API: %v", apperr.ErrCapability, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading transcription response: %v", apperr.ErrCapability, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: transcription API HTTP %d: %s", apperr.ErrCapability, resp.StatusCode, string(respBody))
	}

	var apiResp transcriptionAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: parsing transcription response: %v", apperr.ErrCapability, err)
	}

	result := &TranscriptResult{Text: apiResp.Text}

	// Word timestamps arrive either at the top level or nested inside
	// segments depending on the response shape.
	for _, w := range apiResp.Words {
		result.Words = append(result.Words, entities.TranscriptWord{Word: w.Word, Start: w.Start, End: w.End})
	}
	if len(result.Words) == 0 {
		for _, seg := range apiResp.Segments {
			for _, w := range seg.Words {
				result.Words = append(result.Words, entities.TranscriptWord{Word: w.Word, Start: w.Start, End: w.End})
			}
		}
	}

	return result, nil
}

type transcriptionAPIWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type transcriptionAPIResponse struct {
	Text     string                 `json:"text"`
	Words    []transcriptionAPIWord `json:"words"`
	Segments []struct {
		Words []transcriptionAPIWord `json:"words"`
	} `json:"segments"`
}
