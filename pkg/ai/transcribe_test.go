package ai_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meetinghub/apperr"
	"meetinghub/pkg/ai"
)

func writeAudioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF-fake-audio"), 0o644))
	return path
}

func newTranscriber(url string) *ai.WhisperTranscriber {
	t := ai.NewWhisperTranscriber("test-key", 5*time.Second)
	t.BaseURL = url
	return t
}

func TestTranscribeParsesTopLevelWords(t *testing.T) {
	// given
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		require.Equal(t, "whisper-1", r.FormValue("model"))
		require.Equal(t, "verbose_json", r.FormValue("response_format"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "hello world",
			"words": [
				{"word": "hello", "start": 0.1, "end": 0.4},
				{"word": "world", "start": 0.5, "end": 0.9}
			]
		}`))
	}))
	defer srv.Close()

	// when
	result, err := newTranscriber(srv.URL).Transcribe(context.Background(), writeAudioFixture(t))

	// then
	require.NoError(t, err)
	require.Equal(t, "hello world", result.Text)
	require.Len(t, result.Words, 2)
	require.Equal(t, "world", result.Words[1].Word)
	require.InDelta(t, 0.5, result.Words[1].Start, 0.001)
}

func TestTranscribeFallsBackToSegmentWords(t *testing.T) {
	// given: a response carrying words only inside segments
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "hello",
			"segments": [{"words": [{"word": "hello", "start": 0.0, "end": 0.3}]}]
		}`))
	}))
	defer srv.Close()

	// when
	result, err := newTranscriber(srv.URL).Transcribe(context.Background(), writeAudioFixture(t))

	// then
	require.NoError(t, err)
	require.Len(t, result.Words, 1)
	require.Equal(t, "hello", result.Words[0].Word)
}

func TestTranscribeHTTPErrorIsCapabilityError(t *testing.T) {
	// given
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	// when
	_, err := newTranscriber(srv.URL).Transcribe(context.Background(), writeAudioFixture(t))

	// then
	require.ErrorIs(t, err, apperr.ErrCapability)
	require.Contains(t, err.Error(), "429")
}

func TestTranscribeMissingKey(t *testing.T) {
	transcriber := ai.NewWhisperTranscriber("", time.Second)

	_, err := transcriber.Transcribe(context.Background(), "irrelevant.wav")

	require.ErrorIs(t, err, apperr.ErrCapability)
}
