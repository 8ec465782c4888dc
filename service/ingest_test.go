package service_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meetinghub/apperr"
	"meetinghub/config"
	"meetinghub/constant"
	"meetinghub/service"
)

func ingestConfig(t *testing.T) config.Ingest {
	return config.Ingest{
		SpoolDir:       t.TempDir(),
		MaxImageBytes:  1024,
		MaxUploadBytes: 25 * 1024 * 1024,
	}
}

// streamedHeader is a 44-byte WAV header with zeroed length fields, the
// way a device opens a live stream.
func streamedHeader() []byte {
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], 16000)
	binary.LittleEndian.PutUint32(header[28:32], 32000)
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	return header
}

func TestAudioStreamLifecycle(t *testing.T) {
	// given
	ctx := context.Background()
	repo := newTestRepo(t)
	store := newFakeStore()
	queue := &fakePublisher{}
	correlator := service.NewSessionCorrelator(repo, queue, 5*time.Minute, nil)
	ingest := service.NewIngest(repo, store, queue, correlator, ingestConfig(t))

	meeting, err := correlator.StartSession(ctx, "AA:BB:CC:DD:EE:01", true)
	require.NoError(t, err)

	// when: the device streams header + two chunks, then the connection ends
	stream, err := ingest.BeginAudioStream(ctx, meeting.ID)
	require.NoError(t, err)
	require.NoError(t, stream.Append(streamedHeader()))
	require.NoError(t, stream.Append(make([]byte, 16000)))
	require.NoError(t, stream.Append(make([]byte, 16000)))
	require.NoError(t, ingest.EndAudioStream(ctx, stream))

	// then: the object holds a patched header and the meeting knows its file
	objectName := fmt.Sprintf("meetings/%s.wav", meeting.ID)
	data, ok := store.object(objectName)
	require.True(t, ok)
	require.Len(t, data, 44+32000)
	require.Equal(t, uint32(32000), binary.LittleEndian.Uint32(data[40:44]))

	stored, err := repo.FindMeetingById(ctx, meeting.ID)
	require.NoError(t, err)
	require.Equal(t, objectName, stored.FilePath)
	require.Equal(t, int64(44+32000), stored.FileSize)
	require.NotNil(t, stored.DurationSeconds)
	require.InDelta(t, 1.0, *stored.DurationSeconds, 0.01)

	// session still active, so no dispatch yet; the stop command completes it
	require.Empty(t, queue.published())
	correlator.EndSession(ctx, "AA:BB:CC:DD:EE:01")
	require.Len(t, queue.published(), 1)
	require.Equal(t, meeting.ID, queue.published()[0].MeetingID)
}

func TestStoreImageAttributedToActiveSession(t *testing.T) {
	// given: one active session, well within the staleness window
	ctx := context.Background()
	repo := newTestRepo(t)
	store := newFakeStore()
	queue := &fakePublisher{}
	correlator := service.NewSessionCorrelator(repo, queue, 5*time.Minute, nil)
	ingest := service.NewIngest(repo, store, queue, correlator, ingestConfig(t))
	meeting, err := correlator.StartSession(ctx, "AA:BB:CC:DD:EE:01", true)
	require.NoError(t, err)

	// when: a camera with a different MAC uploads a frame
	image, err := ingest.StoreImage(ctx, "CC:DD:EE:FF:00:11", "cam1", []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)

	// then
	require.NotNil(t, image.MeetingID)
	require.Equal(t, meeting.ID, *image.MeetingID)
	require.Equal(t, "cam1", image.DeviceType)
	_, ok := store.object(image.FilePath)
	require.True(t, ok)

	images, err := repo.ListImagesByMeeting(ctx, meeting.ID)
	require.NoError(t, err)
	require.Len(t, images, 1)
}

func TestStoreImageUnassignedWithoutSession(t *testing.T) {
	// given: no active sessions
	ctx := context.Background()
	repo := newTestRepo(t)
	correlator := service.NewSessionCorrelator(repo, &fakePublisher{}, 5*time.Minute, nil)
	ingest := service.NewIngest(repo, newFakeStore(), &fakePublisher{}, correlator, ingestConfig(t))

	// when
	image, err := ingest.StoreImage(ctx, "CC:DD:EE:FF:00:11", "cam1", []byte{0xff, 0xd8})

	// then
	require.NoError(t, err)
	require.Nil(t, image.MeetingID)
}

func TestStoreImageValidation(t *testing.T) {
	// given
	ctx := context.Background()
	repo := newTestRepo(t)
	correlator := service.NewSessionCorrelator(repo, &fakePublisher{}, 5*time.Minute, nil)
	ingest := service.NewIngest(repo, newFakeStore(), &fakePublisher{}, correlator, ingestConfig(t))

	// when / then: empty payload
	_, err := ingest.StoreImage(ctx, "CC:DD:EE:FF:00:11", "cam1", nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	// when / then: oversized payload (ceiling is 1024 in test config)
	_, err = ingest.StoreImage(ctx, "CC:DD:EE:FF:00:11", "cam1", make([]byte, 2048))
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStoreManualUpload(t *testing.T) {
	// given
	ctx := context.Background()
	repo := newTestRepo(t)
	store := newFakeStore()
	queue := &fakePublisher{}
	correlator := service.NewSessionCorrelator(repo, queue, 5*time.Minute, nil)
	ingest := service.NewIngest(repo, store, queue, correlator, ingestConfig(t))

	// when
	meeting, err := ingest.StoreManualUpload(ctx, "standup.mp3", "audio/mpeg", strings.NewReader("fake-mp3-bytes"), 14)

	// then: meeting skips the session lifecycle and processing is queued
	require.NoError(t, err)
	require.Nil(t, meeting.MACAddress)
	require.False(t, meeting.SessionActive)
	require.Equal(t, constant.MeetingStatusProcessing, meeting.Status)
	_, ok := store.object(meeting.FilePath)
	require.True(t, ok)
	require.Len(t, queue.published(), 1)
	require.Equal(t, meeting.ID, queue.published()[0].MeetingID)
}

func TestStoreManualUploadRejectsUnsupportedType(t *testing.T) {
	// given
	ctx := context.Background()
	repo := newTestRepo(t)
	correlator := service.NewSessionCorrelator(repo, &fakePublisher{}, 5*time.Minute, nil)
	ingest := service.NewIngest(repo, newFakeStore(), &fakePublisher{}, correlator, ingestConfig(t))

	// when
	_, err := ingest.StoreManualUpload(ctx, "notes.txt", "text/plain", strings.NewReader("hello"), 5)

	// then
	require.ErrorIs(t, err, apperr.ErrValidation)
}
