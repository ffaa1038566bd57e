package stt_test

import (
	"github.com/hanifka/lentera/adapters/stt"
	"github.com/hanifka/lentera/domain/repositories"
)

var _ repositories.Transcriber = &stt.GoogleTranscriber{}
