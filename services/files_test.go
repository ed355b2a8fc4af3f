package services

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV produces a minimal RIFF/WAVE file with the given byte rate
// and data payload size, plus a LIST chunk the probe must skip over.
func buildWAV(t *testing.T, byteRate uint32, dataSize uint32) []byte {
	t.Helper()

	var buf bytes.Buffer
	write := func(v any) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}

	buf.WriteString("RIFF")
	write(uint32(4 + 8 + 16 + 8 + 4 + 8 + dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1)) // PCM
	write(uint16(2)) // channels
	write(uint32(44100))
	write(byteRate)
	write(uint16(4))  // block align
	write(uint16(16)) // bits per sample

	buf.WriteString("LIST")
	write(uint32(4))
	buf.WriteString("INFO")

	buf.WriteString("data")
	write(dataSize)
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestIsAllowedUpload(t *testing.T) {
	files := NewFileService()

	assert.True(t, files.IsAllowedUpload("song.wav"))
	assert.True(t, files.IsAllowedUpload("SONG.WAV"))
	assert.True(t, files.IsAllowedUpload("track.flac"))
	assert.True(t, files.IsAllowedUpload("track.mp3"))
	assert.False(t, files.IsAllowedUpload("track.ogg"))
	assert.False(t, files.IsAllowedUpload("notes.txt"))
	assert.False(t, files.IsAllowedUpload("noextension"))
}

func TestGetContentType(t *testing.T) {
	files := NewFileService()

	tests := []struct {
		path     string
		expected string
	}{
		{"song.wav", "audio/wav"},
		{"song.flac", "audio/flac"},
		{"song.mp3", "audio/mpeg"},
		{"song.bin", "application/octet-stream"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, files.GetContentType(tt.path), tt.path)
	}
}

func TestValidateFilePath(t *testing.T) {
	files := NewFileService()

	assert.NoError(t, files.ValidateFilePath("stems/vocals.wav"))
	assert.Error(t, files.ValidateFilePath("../etc/passwd"))
	assert.Error(t, files.ValidateFilePath("stems/../../secret"))
	assert.Error(t, files.ValidateFilePath("/etc/passwd"))
	assert.Error(t, files.ValidateFilePath("   "))
}

func TestProbeDuration(t *testing.T) {
	files := NewFileService()

	// 88200 data bytes at 176400 bytes/s is half a second. The probe
	// measures the whole container, so the header bytes add a little
	// slack on top of the payload time.
	path := writeTempFile(t, "half.wav", buildWAV(t, 176400, 88200))
	assert.InDelta(t, 0.5, files.ProbeDuration(path), 0.01)

	path = writeTempFile(t, "two.wav", buildWAV(t, 176400, 352800))
	assert.InDelta(t, 2.0, files.ProbeDuration(path), 0.01)
}

func TestProbeDurationRejectsBadInput(t *testing.T) {
	files := NewFileService()

	assert.Zero(t, files.ProbeDuration("/no/such/file.wav"))
	assert.Zero(t, files.ProbeDuration(writeTempFile(t, "song.mp3", []byte("not a wav"))))
	assert.Zero(t, files.ProbeDuration(writeTempFile(t, "short.wav", []byte("RIFF"))))
	assert.Zero(t, files.ProbeDuration(writeTempFile(t, "wrong.wav", []byte("RIFFxxxxJUNK plus padding"))))
}

func TestExtractAudioMetadataFallsBackToFilename(t *testing.T) {
	files := NewFileService()

	// A bare WAV carries no tags, so the title comes from the filename.
	path := writeTempFile(t, "My Great Song.wav", buildWAV(t, 176400, 4))
	meta := files.ExtractAudioMetadata(path)
	require.NotNil(t, meta)
	assert.Equal(t, "My Great Song", meta.Title)

	meta = files.ExtractAudioMetadata("/no/such/file.wav")
	require.NotNil(t, meta)
	assert.Equal(t, "file", meta.Title)
}
