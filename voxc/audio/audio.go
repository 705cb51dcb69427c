// Package audio validates uploaded recordings and converts telephony
// encodings into something the transcription collaborator accepts.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zaf/g711"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyRecording    = errors.New("recording is empty")
)

// G.711 recordings are 8 kHz mono by definition.
const (
	telephonySampleRate = 8000
	telephonyChannels   = 1
)

// Clip is an uploaded recording.
type Clip struct {
	Filename string
	Data     []byte
}

// Ext returns the lower-cased extension including the dot.
func (c Clip) Ext() string {
	return strings.ToLower(filepath.Ext(c.Filename))
}

// Policy decides which uploads are accepted.
type Policy struct {
	allowed []string
}

// NewPolicy builds a policy from extensions such as ".wav" or "mp3".
func NewPolicy(extensions []string) *Policy {
	p := &Policy{}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !slices.Contains(p.allowed, ext) {
			p.allowed = append(p.allowed, ext)
		}
	}
	return p
}

// Allowed lists the accepted extensions.
func (p *Policy) Allowed() []string {
	return slices.Clone(p.allowed)
}

// Check rejects empty clips and extensions outside the whitelist.
func (p *Policy) Check(c Clip) error {
	ext := c.Ext()
	if !slices.Contains(p.allowed, ext) {
		return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFormat, ext, strings.Join(p.allowed, ", "))
	}
	if len(c.Data) == 0 {
		return ErrEmptyRecording
	}
	return nil
}

// Normalize decodes .ulaw and .alaw clips to 16-bit PCM WAV. Other clips
// are returned unchanged.
func Normalize(c Clip) (Clip, error) {
	var pcm []byte
	switch c.Ext() {
	case ".ulaw", ".ul", ".mulaw":
		pcm = g711.DecodeUlaw(c.Data)
	case ".alaw", ".al":
		pcm = g711.DecodeAlaw(c.Data)
	default:
		return c, nil
	}

	wav, err := PCMToWAV(pcm, telephonyChannels, telephonySampleRate)
	if err != nil {
		return Clip{}, err
	}

	base := strings.TrimSuffix(c.Filename, filepath.Ext(c.Filename))
	return Clip{Filename: base + ".wav", Data: wav}, nil
}

// PCMToWAV wraps 16-bit little endian PCM in a RIFF/WAVE header.
func PCMToWAV(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyRecording
	}
	if numChannels <= 0 || numChannels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		fmtChunkSize   = 16
		headerSize     = 44
	)

	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(headerSize-8+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}
