package entities

import (
	"errors"
	"time"
)

const bytesPerSample = 2 // 16-bit linear PCM

// AudioChunk is one inbound decoded audio buffer. Ownership transfers to
// the playback scheduler on arrival; a chunk is consumed exactly once.
type AudioChunk struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// NewAudioChunk validates a decoded PCM payload. Malformed payloads are
// rejected so the caller can drop them without disturbing playback.
func NewAudioChunk(data []byte, sampleRate, channels int) (AudioChunk, error) {
	if sampleRate <= 0 {
		return AudioChunk{}, errors.New("sample rate must be positive")
	}
	if channels <= 0 {
		return AudioChunk{}, errors.New("channel count must be positive")
	}
	if len(data) == 0 {
		return AudioChunk{}, errors.New("empty audio payload")
	}
	if len(data)%(bytesPerSample*channels) != 0 {
		return AudioChunk{}, errors.New("truncated PCM payload")
	}
	return AudioChunk{Data: data, SampleRate: sampleRate, Channels: channels}, nil
}

// Duration is the playback duration of the buffer.
func (c AudioChunk) Duration() time.Duration {
	bytesPerSecond := c.SampleRate * c.Channels * bytesPerSample
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(len(c.Data)) * time.Second / time.Duration(bytesPerSecond)
}
