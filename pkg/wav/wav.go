// Package wav finalizes chunked WAV files whose RIFF header was written
// optimistically by the streaming device. The device cannot know the
// total length up front, so it writes placeholder sizes; FinalizeHeader
// patches them once the stream has ended.
package wav

import (
	"encoding/binary"
	"fmt"
	"os"
)

const headerSize = 44

// riffSizeOffset and dataSizeOffset are the byte positions of the two
// little-endian length fields in a canonical 44-byte PCM WAV header.
const (
	riffSizeOffset = 4
	dataSizeOffset = 40
)

// IsWAV reports whether the file starts with a RIFF/WAVE header.
func IsWAV(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 12)
	if _, err := f.ReadAt(head, 0); err != nil {
		return false, nil
	}
	return string(head[0:4]) == "RIFF" && string(head[8:12]) == "WAVE", nil
}

// FinalizeHeader rewrites the RIFF chunk size and data chunk size from
// the actual file length. Files that do not carry a RIFF/WAVE header
// are left untouched.
func FinalizeHeader(path string) error {
	ok, err := IsWAV(path)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < headerSize {
		return fmt.Errorf("wav file truncated: %d bytes", info.Size())
	}

	buf := make([]byte, 4)

	binary.LittleEndian.PutUint32(buf, uint32(info.Size()-8))
	if _, err := f.WriteAt(buf, riffSizeOffset); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(buf, uint32(info.Size()-headerSize))
	if _, err := f.WriteAt(buf, dataSizeOffset); err != nil {
		return err
	}

	return nil
}

// Duration returns the audio length in seconds computed from the
// header's byte rate, or 0 if the rate field is unusable.
func Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() < headerSize {
		return 0, nil
	}

	buf := make([]byte, 4)
	if _, err := f.ReadAt(buf, 28); err != nil {
		return 0, err
	}
	byteRate := binary.LittleEndian.Uint32(buf)
	if byteRate == 0 {
		return 0, nil
	}
	return float64(info.Size()-headerSize) / float64(byteRate), nil
}
