package repositories

import (
	"context"
	"image"
)

// AudioConfig represents the capture and recognition audio format.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// DeviceInfo describes one capture device.
type DeviceInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// MediaCapture wraps local microphone and camera sources.
type MediaCapture interface {
	AcquireMicrophone(ctx context.Context, cfg AudioConfig) (MicrophoneStream, error)
	// AcquireCamera opens the camera identified by deviceID, or the
	// default camera when deviceID is empty.
	AcquireCamera(ctx context.Context, deviceID string) (CameraStream, error)
	EnumerateCameras(ctx context.Context) ([]DeviceInfo, error)
}

// MicrophoneStream delivers fixed-size mono sample blocks. The producer
// never blocks on a slow consumer; blocks are dropped instead.
type MicrophoneStream interface {
	Blocks() <-chan []int16
	Close() error
}

// CameraStream produces raw still frames on demand. Frames carry the true
// unmirrored orientation regardless of how a local preview displays them.
type CameraStream interface {
	Still(ctx context.Context) (image.Image, error)
	DeviceID() string
	Close() error
}
