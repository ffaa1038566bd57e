package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/repositories"
)

// blockDuration is the size of one microphone sample block.
const blockDuration = 20 // milliseconds

// FFmpegCapture implements media capture on ffmpeg child processes. The
// microphone is a long-lived s16le stream on stdout; camera stills are
// one-shot single-frame grabs.
type FFmpegCapture struct {
	logger *zap.Logger
}

// NewFFmpegCapture creates a new ffmpeg-backed capture adapter
func NewFFmpegCapture(logger *zap.Logger) (*FFmpegCapture, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg is required for media capture (install ffmpeg and ensure it is in PATH)")
	}
	return &FFmpegCapture{logger: logger}, nil
}

// AcquireMicrophone implements repositories.MediaCapture
func (c *FFmpegCapture) AcquireMicrophone(ctx context.Context, cfg repositories.AudioConfig) (repositories.MicrophoneStream, error) {
	args, err := micArgs(runtime.GOOS, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg mic capture: %w", err)
	}

	mic := &microphoneStream{
		cmd:    cmd,
		stdout: stdout,
		blocks: make(chan []int16, 16),
		logger: c.logger,
	}
	go mic.readLoop(cfg.SampleRate)
	return mic, nil
}

func micArgs(goos string, sampleRate int) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

type microphoneStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	blocks chan []int16
	logger *zap.Logger

	closeOnce sync.Once
}

func (m *microphoneStream) Blocks() <-chan []int16 {
	return m.blocks
}

func (m *microphoneStream) Close() error {
	m.closeOnce.Do(func() {
		if m.cmd != nil && m.cmd.Process != nil {
			m.cmd.Process.Kill()
			m.cmd.Wait()
		}
	})
	return nil
}

func (m *microphoneStream) readLoop(sampleRate int) {
	defer close(m.blocks)

	samplesPerBlock := sampleRate * blockDuration / 1000
	raw := make([]byte, samplesPerBlock*2)
	for {
		if _, err := io.ReadFull(m.stdout, raw); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				m.logger.Warn("Microphone stream ended", zap.Error(err))
			}
			return
		}
		block := make([]int16, samplesPerBlock)
		for i := range block {
			block[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		select {
		case m.blocks <- block:
		default:
			// Consumer is behind; stale audio has no realtime value.
		}
	}
}

// AcquireCamera implements repositories.MediaCapture
func (c *FFmpegCapture) AcquireCamera(ctx context.Context, deviceID string) (repositories.CameraStream, error) {
	if deviceID == "" {
		deviceID = defaultCameraDevice(runtime.GOOS)
	}
	cam := &cameraStream{deviceID: deviceID, logger: c.logger}
	// Grab one frame to verify the device before reporting success.
	if _, err := cam.Still(ctx); err != nil {
		return nil, fmt.Errorf("failed to open camera %q: %w", deviceID, err)
	}
	return cam, nil
}

func defaultCameraDevice(goos string) string {
	if goos == "darwin" {
		return "0"
	}
	return "/dev/video0"
}

type cameraStream struct {
	deviceID string
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (c *cameraStream) DeviceID() string { return c.deviceID }

func (c *cameraStream) Still(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("camera %q is closed", c.deviceID)
	}
	c.mu.Unlock()

	args, err := stillArgs(runtime.GOOS, c.deviceID)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to grab frame from %q: %w", c.deviceID, err)
	}

	frame, err := jpeg.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode camera frame: %w", err)
	}
	return frame, nil
}

func stillArgs(goos, deviceID string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-framerate", "30", "-i", deviceID,
			"-frames:v", "1", "-f", "image2", "-c:v", "mjpeg", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "v4l2", "-i", deviceID,
			"-frames:v", "1", "-f", "image2", "-c:v", "mjpeg", "-",
		}, nil
	default:
		return nil, fmt.Errorf("camera capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

func (c *cameraStream) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// EnumerateCameras implements repositories.MediaCapture
func (c *FFmpegCapture) EnumerateCameras(ctx context.Context) ([]repositories.DeviceInfo, error) {
	if runtime.GOOS == "linux" {
		matches, err := filepath.Glob("/dev/video*")
		if err != nil {
			return nil, err
		}
		devices := make([]repositories.DeviceInfo, 0, len(matches))
		for _, path := range matches {
			devices = append(devices, repositories.DeviceInfo{
				ID:    path,
				Label: filepath.Base(path),
			})
		}
		return devices, nil
	}
	// avfoundation device indices; ffmpeg can list them but only on
	// stderr, so report the conventional default.
	return []repositories.DeviceInfo{{ID: "0", Label: "Default camera"}}, nil
}
