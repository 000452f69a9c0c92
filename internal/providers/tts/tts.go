package tts

import "context"

type Provider interface {
	Synthesize(ctx context.Context, text string) (audio []byte, err error)
	Close() error
}

type VoiceConfig struct {
	LanguageCode string  // ex: "en-US"
	VoiceName    string  // ex: "en-US-Neural2-F"
	SpeakingRate float64 // 0 means provider default
	Pitch        float64
}
