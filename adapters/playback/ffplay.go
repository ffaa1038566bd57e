package playback

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
)

// FFPlaySink plays inbound PCM through a long-lived ffplay process fed on
// stdin. Flush restarts the process, dropping whatever ffplay had
// buffered.
type FFPlaySink struct {
	path       string
	sampleRate int
	channels   int
	volume     int
	logger     *zap.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFPlaySink creates and starts the speaker process.
func NewFFPlaySink(sampleRate, channels int, logger *zap.Logger) (*FFPlaySink, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, fmt.Errorf("ffplay is required for playback (install ffmpeg and ensure it is in PATH)")
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}

	s := &FFPlaySink{
		path:       "ffplay",
		sampleRate: sampleRate,
		channels:   channels,
		volume:     80,
		logger:     logger,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FFPlaySink) startLocked() error {
	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}
	// ffplay does not accept ffmpeg-style `-ac` (channels); use `-ch_layout mono`.
	chLayout := "mono"
	if s.channels == 2 {
		chLayout = "stereo"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-volume", fmt.Sprintf("%d", s.volume),
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", chLayout,
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-i", "-",
	}
	cmd := exec.Command(s.path, args...)
	if runtime.GOOS == "darwin" {
		// ffplay uses SDL for audio output on macOS. Prefer CoreAudio
		// unless the user explicitly overrides it.
		if os.Getenv("SDL_AUDIODRIVER") == "" {
			cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
		}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return err
	}
	s.cmd = cmd
	s.stdin = stdin
	go func(c *exec.Cmd) {
		c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()
	}(cmd)
	return nil
}

// Play writes one chunk of PCM to the speaker.
func (s *FFPlaySink) Play(chunk entities.AudioChunk) error {
	if len(chunk.Data) == 0 {
		return nil
	}
	s.mu.Lock()
	if s.stdin == nil {
		if err := s.startLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	stdin := s.stdin
	s.mu.Unlock()

	if _, err := stdin.Write(chunk.Data); err != nil {
		return fmt.Errorf("failed to write to ffplay: %w", err)
	}
	return nil
}

// Flush drops any audio the speaker still holds by restarting it.
func (s *FFPlaySink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	if err := s.startLocked(); err != nil {
		s.logger.Error("Failed to restart ffplay after flush", zap.Error(err))
		return err
	}
	return nil
}

// Close stops the speaker process.
func (s *FFPlaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *FFPlaySink) closeLocked() {
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.stdin = nil
}
