package capture

import (
	"context"
	"testing"
	"time"

	"github.com/hanifka/lentera/domain/repositories"
)

func TestMockMicrophoneProducesQuietTone(t *testing.T) {
	cap := NewMockCapture()
	mic, err := cap.AcquireMicrophone(context.Background(), repositories.AudioConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("AcquireMicrophone: %v", err)
	}
	defer mic.Close()

	var block []int16
	select {
	case block = <-mic.Blocks():
	case <-time.After(time.Second):
		t.Fatal("no audio block within 1s")
	}

	want := 16000 * blockDuration / 1000
	if len(block) != want {
		t.Errorf("block length = %d, want %d", len(block), want)
	}
	nonZero := false
	for _, s := range block {
		if s > 1200 || s < -1200 {
			t.Fatalf("sample %d exceeds quiet tone amplitude", s)
		}
		if s != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("block is all silence, want a tone")
	}
}

func TestMockCameraStill(t *testing.T) {
	cap := NewMockCapture()
	cam, err := cap.AcquireCamera(context.Background(), "")
	if err != nil {
		t.Fatalf("AcquireCamera: %v", err)
	}
	defer cam.Close()

	if cam.DeviceID() != "mock-camera" {
		t.Errorf("device id = %q, want mock-camera", cam.DeviceID())
	}
	frame, err := cam.Still(context.Background())
	if err != nil {
		t.Fatalf("Still: %v", err)
	}
	if frame.Bounds().Dx() != 320 || frame.Bounds().Dy() != 240 {
		t.Errorf("frame bounds = %v, want 320x240", frame.Bounds())
	}
}
