package capture

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/hanifka/lentera/domain/repositories"
	"github.com/hanifka/lentera/internal/media"
)

// MockCapture is a device-less stand-in: the microphone produces a quiet
// tone and the camera produces flat gray frames.
type MockCapture struct{}

// NewMockCapture creates a new mock capture adapter
func NewMockCapture() repositories.MediaCapture {
	return &MockCapture{}
}

// AcquireMicrophone implements repositories.MediaCapture
func (c *MockCapture) AcquireMicrophone(ctx context.Context, cfg repositories.AudioConfig) (repositories.MicrophoneStream, error) {
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	mic := &mockMicrophone{
		blocks: make(chan []int16, 16),
		stop:   make(chan struct{}),
	}
	go mic.generate(sampleRate)
	return mic, nil
}

type mockMicrophone struct {
	blocks chan []int16
	stop   chan struct{}
	once   sync.Once
}

func (m *mockMicrophone) Blocks() <-chan []int16 {
	return m.blocks
}

func (m *mockMicrophone) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *mockMicrophone) generate(sampleRate int) {
	defer close(m.blocks)

	samplesPerBlock := sampleRate * blockDuration / 1000
	ticker := time.NewTicker(blockDuration * time.Millisecond)
	defer ticker.Stop()

	phase := 0.0
	step := 2 * math.Pi * 440 / float64(sampleRate)
	samples := make([]float32, samplesPerBlock)
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			for i := range samples {
				samples[i] = float32(0.03 * math.Sin(phase))
				phase += step
			}
			select {
			case m.blocks <- media.PCMFromFloat32(samples):
			default:
			}
		}
	}
}

// AcquireCamera implements repositories.MediaCapture
func (c *MockCapture) AcquireCamera(ctx context.Context, deviceID string) (repositories.CameraStream, error) {
	if deviceID == "" {
		deviceID = "mock-camera"
	}
	return &mockCamera{deviceID: deviceID}, nil
}

type mockCamera struct {
	deviceID string
}

func (c *mockCamera) DeviceID() string { return c.deviceID }

func (c *mockCamera) Still(ctx context.Context) (image.Image, error) {
	frame := image.NewRGBA(image.Rect(0, 0, 320, 240))
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			frame.Set(x, y, gray)
		}
	}
	return frame, nil
}

func (c *mockCamera) Close() error { return nil }

// EnumerateCameras implements repositories.MediaCapture
func (c *MockCapture) EnumerateCameras(ctx context.Context) ([]repositories.DeviceInfo, error) {
	return []repositories.DeviceInfo{{ID: "mock-camera", Label: "Mock camera"}}, nil
}
