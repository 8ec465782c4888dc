package wav_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"meetinghub/pkg/wav"
)

// writeStreamedWAV builds a file the way a streaming device does: a
// 44-byte header with zeroed length fields, then raw PCM bytes.
func writeStreamedWAV(t *testing.T, pcm []byte, byteRate uint32) string {
	t.Helper()

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], 16000)
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")

	path := filepath.Join(t.TempDir(), "stream.wav")
	require.NoError(t, os.WriteFile(path, append(header, pcm...), 0o644))
	return path
}

func TestFinalizeHeader(t *testing.T) {
	// given
	pcm := make([]byte, 32000)
	path := writeStreamedWAV(t, pcm, 32000)

	// when
	require.NoError(t, wav.FinalizeHeader(path))

	// then
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, uint32(len(data)-8), binary.LittleEndian.Uint32(data[4:8]))
	require.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(data[40:44]))
}

func TestFinalizeHeaderSkipsNonWAV(t *testing.T) {
	// given
	path := filepath.Join(t.TempDir(), "clip.mp3")
	payload := []byte("not a riff container at all, just some bytes")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	// when
	require.NoError(t, wav.FinalizeHeader(path))

	// then
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestDuration(t *testing.T) {
	// given: one second of audio at the declared byte rate
	path := writeStreamedWAV(t, make([]byte, 32000), 32000)

	// when
	seconds, err := wav.Duration(path)

	// then
	require.NoError(t, err)
	require.InDelta(t, 1.0, seconds, 0.001)
}
