package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"regexp"
	"strconv"
)

// Payload is one encoded outbound media frame ready for the realtime
// channel.
type Payload struct {
	Data     []byte
	MIMEType string
}

// Encoder converts raw captured media into the wire format: 16-bit
// little-endian mono PCM at a fixed rate for audio, JPEG stills for video.
type Encoder struct {
	sampleRate int
}

// NewEncoder creates an encoder for the given outbound audio sample rate.
func NewEncoder(sampleRate int) (*Encoder, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	return &Encoder{sampleRate: sampleRate}, nil
}

// EncodePCM converts one block of mono samples into a PCM payload.
func (e *Encoder) EncodePCM(samples []int16) Payload {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return Payload{
		Data:     data,
		MIMEType: fmt.Sprintf("audio/pcm;rate=%d", e.sampleRate),
	}
}

// PCMFromFloat32 converts normalized float samples to 16-bit PCM samples,
// clamping out-of-range values.
func PCMFromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		out[i] = int16(v * 32767.0)
	}
	return out
}

// EncodeStill compresses a raw frame into a JPEG still at the given
// compression level (0..1). The frame is encoded as captured; the remote
// service always receives the true unmirrored orientation.
func (e *Encoder) EncodeStill(frame image.Image, compression float64) (Payload, error) {
	if frame == nil {
		return Payload{}, errors.New("nil frame")
	}
	if compression <= 0 || compression > 1 {
		return Payload{}, fmt.Errorf("compression level %f out of range", compression)
	}

	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: int(compression * 100)}
	if err := jpeg.Encode(&buf, frame, opts); err != nil {
		return Payload{}, fmt.Errorf("failed to encode still frame: %w", err)
	}
	return Payload{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}

var pcmRatePattern = regexp.MustCompile(`rate=(\d+)`)

// SampleRateFromMIME extracts the sample rate from a PCM mime type such as
// "audio/pcm;rate=24000". Returns fallback when the mime carries no rate.
func SampleRateFromMIME(mimeType string, fallback int) int {
	m := pcmRatePattern.FindStringSubmatch(mimeType)
	if len(m) != 2 {
		return fallback
	}
	rate, err := strconv.Atoi(m[1])
	if err != nil || rate <= 0 {
		return fallback
	}
	return rate
}
