package ai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meetinghub/apperr"
	"meetinghub/pkg/ai"
)

func geminiBody(payload string) string {
	inner, _ := json.Marshal(payload)
	return fmt.Sprintf(`{"candidates": [{"content": {"parts": [{"text": %s}]}}]}`, inner)
}

func newSummarizer(url string) *ai.GeminiSummarizer {
	s := ai.NewGeminiSummarizer("test-key", 5*time.Second)
	s.BaseURL = url
	return s
}

func TestSummarizeParsesListActionItems(t *testing.T) {
	// given
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Contains(t, req, "contents")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(geminiBody(`{"summary": "Weekly sync.", "action_items": ["send notes", "book room"]}`)))
	}))
	defer srv.Close()

	// when
	result, err := newSummarizer(srv.URL).Summarize(context.Background(), "the transcript")

	// then
	require.NoError(t, err)
	require.Equal(t, "Weekly sync.", result.Summary)
	require.Equal(t, []string{"send notes", "book room"}, result.ActionItems)
}

func TestSummarizeNormalizesSingleStringActionItem(t *testing.T) {
	// given: the provider returns action_items as a bare string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiBody(`{"summary": "Standup.", "action_items": "follow up with ops"}`)))
	}))
	defer srv.Close()

	// when
	result, err := newSummarizer(srv.URL).Summarize(context.Background(), "the transcript")

	// then
	require.NoError(t, err)
	require.Equal(t, []string{"follow up with ops"}, result.ActionItems)
}

func TestSummarizeDropsNoneActionItems(t *testing.T) {
	// given
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiBody(`{"summary": "Quiet meeting.", "action_items": "None"}`)))
	}))
	defer srv.Close()

	// when
	result, err := newSummarizer(srv.URL).Summarize(context.Background(), "the transcript")

	// then
	require.NoError(t, err)
	require.Empty(t, result.ActionItems)
}

func TestSummarizeMalformedJSONIsCapabilityError(t *testing.T) {
	// given: the model ignored the JSON instruction
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiBody(`Here is your summary: everyone agreed.`)))
	}))
	defer srv.Close()

	// when
	_, err := newSummarizer(srv.URL).Summarize(context.Background(), "the transcript")

	// then
	require.ErrorIs(t, err, apperr.ErrCapability)
}

func TestSummarizeHTTPErrorIsCapabilityError(t *testing.T) {
	// given
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	// when
	_, err := newSummarizer(srv.URL).Summarize(context.Background(), "the transcript")

	// then
	require.ErrorIs(t, err, apperr.ErrCapability)
	require.Contains(t, err.Error(), "403")
}

func TestSummarizeEmptyCandidates(t *testing.T) {
	// given
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	// when
	_, err := newSummarizer(srv.URL).Summarize(context.Background(), "the transcript")

	// then
	require.ErrorIs(t, err, apperr.ErrCapability)
}
