// Package tts turns text into an audio byte stream. The local provider talks
// to the supervised engine; remote providers cover OpenAI-compatible speech
// APIs for callers that opted out of local synthesis.
package tts

import (
	"context"
	"io"
)

// SpeakRequest describes one utterance.
type SpeakRequest struct {
	Input  string  `json:"input"`
	Voice  string  `json:"voice,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
	Format string  `json:"response_format,omitempty"`
}

// Provider synthesizes speech. Speak returns the raw audio stream; the caller
// owns the ReadCloser and the audio decoding downstream.
type Provider interface {
	Speak(ctx context.Context, req SpeakRequest) (io.ReadCloser, error)
	Voices(ctx context.Context) ([]string, error)
}
