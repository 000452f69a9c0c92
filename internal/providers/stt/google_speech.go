package stt

import (
	"context"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// language example: "en-US", "id-ID"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, language string) (*Result, error) {
	if language == "" {
		language = "en-US"
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   g.Encoding,
			SampleRateHertz:            g.SampleRateHz,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Result{Language: language}
	for _, r := range resp.Results {
		if r.LanguageCode != "" {
			out.Language = r.LanguageCode
		}
		for _, alt := range r.Alternatives {
			if alt.Transcript == "" || float64(alt.Confidence) < out.Confidence {
				continue
			}
			out.Text = alt.Transcript
			out.Confidence = float64(alt.Confidence)

			out.WordTimings = out.WordTimings[:0]
			for _, w := range alt.Words {
				wt := WordTiming{Word: w.Word}
				if w.StartTime != nil {
					wt.StartMS = w.StartTime.AsDuration().Milliseconds()
				}
				if w.EndTime != nil {
					wt.EndMS = w.EndTime.AsDuration().Milliseconds()
				}
				out.WordTimings = append(out.WordTimings, wt)
			}
		}
	}

	if n := len(out.WordTimings); n > 0 {
		out.DurationMS = out.WordTimings[n-1].EndMS
	} else if resp.TotalBilledTime != nil {
		out.DurationMS = resp.TotalBilledTime.AsDuration().Milliseconds()
	}

	return out, nil
}
