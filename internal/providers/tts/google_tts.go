package tts

import (
	"context"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

type GoogleTTS struct {
	c     *texttospeech.Client
	voice VoiceConfig
}

func NewGoogleTTS(ctx context.Context, voice VoiceConfig) (*GoogleTTS, error) {
	c, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if voice.LanguageCode == "" {
		voice.LanguageCode = "en-US"
	}
	return &GoogleTTS{c: c, voice: voice}, nil
}

func (g *GoogleTTS) Close() error { return g.c.Close() }

func (g *GoogleTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := g.c.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.voice.LanguageCode,
			Name:         g.voice.VoiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  g.voice.SpeakingRate,
			Pitch:         g.voice.Pitch,
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.AudioContent, nil
}
