package repositories

import "context"

// Transcriber is a local speech-to-text fallback used when the remote
// transcription channel for user audio is disabled.
type Transcriber interface {
	// Start opens a streaming recognition session. onResult is invoked
	// with each recognized utterance.
	Start(ctx context.Context, cfg AudioConfig, onResult func(text string)) (TranscriberStream, error)
}

// TranscriberStream accepts captured PCM and is closed when capture ends.
type TranscriberStream interface {
	Write(pcm []byte) error
	Close() error
}
