package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meetinghub/apperr"
	"meetinghub/config"
	"meetinghub/constant"
	"meetinghub/dto"
	"meetinghub/entities"
	"meetinghub/pkg/objectstore"
	"meetinghub/pkg/rabbitmq"
	"meetinghub/pkg/wav"
	"meetinghub/repository"
)

// AllowedUploadTypes mirrors the audio and video MIME types the manual
// upload form accepts.
var AllowedUploadTypes = map[string]string{
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/x-m4a":     ".m4a",
	"audio/webm":      ".webm",
	"audio/mp4":       ".mp4",
	"audio/ogg":       ".ogg",
	"audio/flac":      ".flac",
	"audio/aac":       ".aac",
	"video/mp4":       ".mp4",
	"video/mpeg":      ".mpeg",
	"video/webm":      ".webm",
	"video/ogg":       ".ogv",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
}

// AudioStream is an open spool file receiving one device's live audio.
// A single connection appends in arrival order; there is no concurrent
// writer.
type AudioStream struct {
	MeetingID uuid.UUID

	file    *os.File
	path    string
	written int64
}

// Append writes the next chunk. Safe to call any number of times.
func (s *AudioStream) Append(p []byte) error {
	n, err := s.file.Write(p)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("%w: append audio chunk: %v", apperr.ErrStorage, err)
	}
	return nil
}

type Ingest interface {
	BeginAudioStream(ctx context.Context, meetingID uuid.UUID) (*AudioStream, error)
	EndAudioStream(ctx context.Context, stream *AudioStream) error
	StoreImage(ctx context.Context, mac, deviceType string, data []byte) (*entities.MeetingImage, error)
	StoreManualUpload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (*entities.Meeting, error)
}

type ingest struct {
	repo       repository.MeetingRepository
	store      objectstore.ObjectStore
	queue      rabbitmq.Publisher
	correlator *SessionCorrelator
	cfg        config.Ingest
}

func NewIngest(repo repository.MeetingRepository, store objectstore.ObjectStore, queue rabbitmq.Publisher, correlator *SessionCorrelator, cfg config.Ingest) Ingest {
	return &ingest{
		repo:       repo,
		store:      store,
		queue:      queue,
		correlator: correlator,
		cfg:        cfg,
	}
}

func (s *ingest) BeginAudioStream(ctx context.Context, meetingID uuid.UUID) (*AudioStream, error) {
	if err := os.MkdirAll(s.cfg.SpoolDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("%w: create spool dir: %v", apperr.ErrStorage, err)
	}

	path := filepath.Join(s.cfg.SpoolDir, meetingID.String()+".wav")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open spool file: %v", apperr.ErrStorage, err)
	}

	return &AudioStream{MeetingID: meetingID, file: file, path: path}, nil
}

// EndAudioStream finalizes the spool file (patching the length fields
// the device wrote optimistically), moves it to durable storage and
// tells the correlator the audio is ready. The handler calls this on
// every stream termination, normal or not.
func (s *ingest) EndAudioStream(ctx context.Context, stream *AudioStream) error {
	if err := stream.file.Close(); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("spool", stream.path).Msg("failed to close spool file")
	}
	defer os.Remove(stream.path)

	if err := wav.FinalizeHeader(stream.path); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("spool", stream.path).Msg("failed to finalize wav header")
	}

	info, err := os.Stat(stream.path)
	if err != nil {
		return fmt.Errorf("%w: stat spool file: %v", apperr.ErrStorage, err)
	}

	objectName := fmt.Sprintf("meetings/%s.wav", stream.MeetingID)
	if err := s.store.PutFile(ctx, objectName, stream.path, "audio/wav"); err != nil {
		// Without the object the pipeline has nothing to work on; record
		// the failure instead of leaving the meeting processing forever.
		if failErr := s.repo.FailMeeting(ctx, stream.MeetingID, fmt.Sprintf("audio upload failed: %v", err), true); failErr != nil {
			zerolog.Ctx(ctx).Error().Err(failErr).Str("meeting_id", stream.MeetingID.String()).Msg("failed to mark meeting failed")
		}
		return err
	}

	duration, durErr := wav.Duration(stream.path)
	if durErr != nil {
		duration = 0
	}
	var durationPtr *float64
	if duration > 0 {
		durationPtr = &duration
	}

	if err := s.repo.SetMeetingFile(ctx, stream.MeetingID, objectName, info.Size(), durationPtr); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("meeting_id", stream.MeetingID.String()).Msg("failed to record audio file on meeting")
	}

	zerolog.Ctx(ctx).Info().
		Str("meeting_id", stream.MeetingID.String()).
		Int64("bytes", info.Size()).
		Msg("audio stream finalized")

	s.correlator.AudioFinalized(ctx, stream.MeetingID)
	return nil
}

func (s *ingest) StoreImage(ctx context.Context, mac, deviceType string, data []byte) (*entities.MeetingImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image payload", apperr.ErrValidation)
	}
	if int64(len(data)) > s.cfg.MaxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", apperr.ErrValidation, s.cfg.MaxImageBytes)
	}

	now := time.Now().UTC()
	owner := s.correlator.ResolveImageOwner(now)

	image := &entities.MeetingImage{
		ID:              uuid.New(),
		MeetingID:       owner,
		Filename:        fmt.Sprintf("capture_%s_%s.jpg", deviceType, now.Format("20060102_150405")),
		UploadTimestamp: now,
		DeviceType:      deviceType,
		MACAddress:      mac,
	}
	image.FilePath = fmt.Sprintf("images/%s.jpg", image.ID)

	if err := s.store.Put(ctx, image.FilePath, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
		return nil, err
	}
	if err := s.repo.CreateImage(ctx, image); err != nil {
		if rmErr := s.store.Remove(ctx, image.FilePath); rmErr != nil {
			zerolog.Ctx(ctx).Error().Err(rmErr).Str("object", image.FilePath).Msg("failed to remove orphaned image object")
		}
		return nil, err
	}

	event := zerolog.Ctx(ctx).Info().Str("image_id", image.ID.String()).Str("device_type", deviceType)
	if owner != nil {
		event = event.Str("meeting_id", owner.String())
	} else {
		event = event.Bool("unassigned", true)
	}
	event.Msg("image stored")

	return image, nil
}

// StoreManualUpload handles a whole-file upload from the dashboard. The
// meeting skips the session lifecycle entirely and is dispatched to the
// pipeline right away.
func (s *ingest) StoreManualUpload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (*entities.Meeting, error) {
	ext, ok := AllowedUploadTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", apperr.ErrValidation, contentType)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: empty upload", apperr.ErrValidation)
	}
	if size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", apperr.ErrValidation, s.cfg.MaxUploadBytes)
	}

	now := time.Now().UTC()
	id := uuid.New()
	objectName := fmt.Sprintf("meetings/%s%s", id, ext)

	if err := s.store.Put(ctx, objectName, r, size, contentType); err != nil {
		return nil, err
	}

	meeting := &entities.Meeting{
		ID:              id,
		Filename:        filename,
		FilePath:        objectName,
		FileSize:        size,
		Status:          constant.MeetingStatusProcessing,
		UploadTimestamp: now,
		DeviceType:      "upload",
		SessionActive:   false,
		SessionStartTs:  now,
	}
	if err := s.repo.CreateMeeting(ctx, meeting); err != nil {
		if rmErr := s.store.Remove(ctx, objectName); rmErr != nil {
			zerolog.Ctx(ctx).Error().Err(rmErr).Str("object", objectName).Msg("failed to remove orphaned upload object")
		}
		return nil, err
	}

	if err := s.queue.PublishProcess(ctx, dto.ProcessMessage{MeetingID: id}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("meeting_id", id.String()).Msg("failed to publish processing message")
	}

	zerolog.Ctx(ctx).Info().Str("meeting_id", id.String()).Str("filename", filename).Msg("manual upload stored")
	return meeting, nil
}
