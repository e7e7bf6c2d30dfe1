package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

const wavHeaderSize = 44

// EncodeWAV wraps PCM16 samples in a canonical RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	var b bytes.Buffer
	b.Grow(wavHeaderSize + len(pcm))

	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(byteRate))
	binary.Write(&b, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(BytesPerSample*8))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

// WriteTempWAV writes seg to a uniquely named WAV file under dir.
// The caller removes the file once it has been consumed.
func WriteTempWAV(dir string, seg Segment, sampleRate, channels int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.Wrapf(err, apperrors.CodeIO, "create temp dir %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("audio_chunk_%s.wav", uuid.NewString()))
	if err := os.WriteFile(path, EncodeWAV(seg.Samples, sampleRate, channels), 0o600); err != nil {
		return "", apperrors.Wrapf(err, apperrors.CodeIO, "write %s", path)
	}
	return path, nil
}
