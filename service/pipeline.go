package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meetinghub/apperr"
	"meetinghub/config"
	"meetinghub/dto"
	"meetinghub/pkg/ai"
	"meetinghub/pkg/objectstore"
	"meetinghub/repository"
)

// Pipeline runs a finalized meeting through transcription and
// summarization. Stage failures are absorbed into the meeting record:
// a failed summary never hides a successful transcript, and a failed
// transcript never reaches the summarizer.
type Pipeline interface {
	Process(ctx context.Context, message dto.ProcessMessage) error
}

type pipeline struct {
	repo        repository.MeetingRepository
	store       objectstore.ObjectStore
	transcriber ai.Transcriber
	summarizer  ai.Summarizer
	charLimit   int

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

func NewPipeline(repo repository.MeetingRepository, store objectstore.ObjectStore, transcriber ai.Transcriber, summarizer ai.Summarizer, cfg config.AI) Pipeline {
	return &pipeline{
		repo:        repo,
		store:       store,
		transcriber: transcriber,
		summarizer:  summarizer,
		charLimit:   cfg.TranscriptCharLimit,
		inflight:    make(map[uuid.UUID]struct{}),
	}
}

func (p *pipeline) Process(ctx context.Context, message dto.ProcessMessage) error {
	id := message.MeetingID
	log := zerolog.Ctx(ctx).With().Str("meeting_id", id.String()).Logger()

	if !p.begin(id) {
		log.Info().Msg("processing already in flight, skipping")
		return nil
	}
	defer p.finish(id)

	meeting, err := p.repo.FindMeetingById(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// Deleted while the message sat in the queue.
			log.Info().Msg("meeting gone, dropping processing message")
			return nil
		}
		return err
	}

	if meeting.Status.Terminal() {
		log.Info().Str("status", string(meeting.Status)).Msg("meeting already processed")
		return nil
	}

	if meeting.FilePath == "" {
		log.Warn().Msg("meeting has no audio file")
		return p.fail(ctx, id, "processing failed: no audio was recorded for this session", true)
	}

	tempDir := filepath.Join("temp", id.String())
	defer os.RemoveAll(tempDir)
	if err := os.MkdirAll(tempDir, os.ModePerm); err != nil {
		return fmt.Errorf("%w: create temp dir: %v", apperr.ErrStorage, err)
	}

	localPath := filepath.Join(tempDir, filepath.Base(meeting.FilePath))
	log.Info().Str("object", meeting.FilePath).Msg("downloading audio")
	if err := p.store.FetchToFile(ctx, meeting.FilePath, localPath); err != nil {
		log.Error().Err(err).Msg("failed to download audio")
		return err
	}

	log.Info().Msg("transcribing")
	transcript, err := p.transcriber.Transcribe(ctx, localPath)
	if err != nil {
		log.Error().Err(err).Msg("transcription failed")
		return p.fail(ctx, id, fmt.Sprintf("processing failed: transcription: %v", err), true)
	}
	if transcript.Text == "" {
		log.Warn().Msg("transcription produced no text")
		return p.fail(ctx, id, "processing failed: transcription produced no text", true)
	}

	if err := p.repo.SetTranscript(ctx, id, transcript.Text, transcript.Words); err != nil {
		return err
	}

	log.Info().Int("transcript_chars", len(transcript.Text)).Msg("summarizing")
	summary, err := p.summarizer.Summarize(ctx, truncateRunes(transcript.Text, p.charLimit))
	if err != nil {
		// The transcript stays; only the summary stage failed.
		log.Error().Err(err).Msg("summarization failed")
		return p.fail(ctx, id, fmt.Sprintf("processing failed: summarization: %v", err), false)
	}

	if err := p.repo.CompleteMeeting(ctx, id, summary.Summary, summary.ActionItems); err != nil {
		return err
	}

	log.Info().Msg("processing complete")
	return nil
}

func (p *pipeline) begin(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[id]; ok {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *pipeline) finish(id uuid.UUID) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

func (p *pipeline) fail(ctx context.Context, id uuid.UUID, diagnostic string, intoSummary bool) error {
	if err := p.repo.FailMeeting(ctx, id, diagnostic, intoSummary); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("meeting_id", id.String()).Msg("failed to record pipeline failure")
		return err
	}
	return nil
}

// truncateRunes bounds the transcript handed to the summarizer, which
// cannot accept unbounded input. Cuts on a rune boundary.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
