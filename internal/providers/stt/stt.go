package stt

import "context"

// WordTiming is one recognized word with its offsets into the audio.
type WordTiming struct {
	Word    string `json:"word"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

type Result struct {
	Text        string       `json:"text"`
	Language    string       `json:"language"`
	Confidence  float64      `json:"confidence"`
	DurationMS  int64        `json:"duration_ms"`
	WordTimings []WordTiming `json:"word_timings,omitempty"`
}

type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (*Result, error)
	Close() error
}
