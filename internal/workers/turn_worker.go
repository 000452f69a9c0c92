package workers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/speaklens/speaklens/internal/services"
)

// TurnWorkerPool consumes audio submissions from a Redis stream and runs
// them through the assessment service, publishing results on the session's
// event channels. This is the asynchronous path behind the WebSocket; the
// HTTP /audio/process route calls the service directly.
type TurnWorkerPool struct {
	Redis      *redis.Client
	Service    services.AssessmentService
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *TurnWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Service == nil {
		return errors.New("TurnWorkerPool missing dependency: Redis/Service must be set")
	}
	if p.Stream == "" {
		p.Stream = "assessment:audio"
	}
	if p.Group == "" {
		p.Group = "turn-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 5
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *TurnWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func normalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "id", "id-ID":
		return "id-ID"
	case "en", "en-US":
		return "en-US"
	default:
		if v == "" {
			return "en-US"
		}
		return v
	}
}

func (p *TurnWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	sessionID := getStr("session_id")
	if sessionID == "" {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":   msg.ID,
		"session_id": sessionID,
	})

	statusCh := "assessment:" + sessionID + ":status"
	eventsCh := "assessment:" + sessionID + ":events"

	language := normalizeLanguage(getStr("language"))

	// Fetch audio
	var audioBytes []byte
	if b64 := getStr("audio_base64"); b64 != "" {
		raw := b64
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:] // strip data:...;base64,
		}
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			log.WithError(err).Warn("base64 decode failed")
			p.publishStatus(ctx, statusCh, "failed", "invalid audio_base64")
			return
		}
		audioBytes = decoded
	} else if url := getStr("audio_url"); url != "" {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.WithError(err).Warn("audio_url fetch failed")
			p.publishStatus(ctx, statusCh, "failed", "failed to fetch audio_url")
			return
		}
		defer resp.Body.Close()

		const maxBytes = 10 << 20
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
		if len(body) == 0 {
			p.publishStatus(ctx, statusCh, "failed", "empty audio")
			return
		}
		audioBytes = body
	} else {
		return
	}

	p.publishStatus(ctx, statusCh, "processing", "turn processing")

	out, err := p.Service.ProcessTurn(ctx, sessionID, audioBytes, getStr("content_type"), language)
	if err != nil {
		log.WithError(err).Error("turn processing failed")
		p.publishStatus(ctx, statusCh, "failed", "turn failed")
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"type":                 "turn_complete",
		"user_transcript":      out.UserTranscript,
		"ai_response":          out.AIResponse,
		"phase":                out.Phase,
		"phase_time_remaining": out.TimeRemainingMS,
		"should_advance":       out.Advanced,
	})
	_ = p.Redis.Publish(ctx, eventsCh, string(payload)).Err()
	p.publishStatus(ctx, statusCh, "done", "turn processed")
}

func (p *TurnWorkerPool) publishStatus(ctx context.Context, channel, status, message string) {
	payload, _ := json.Marshal(map[string]any{
		"type":    "status",
		"status":  status,
		"message": message,
	})
	_ = p.Redis.Publish(ctx, channel, string(payload)).Err()
}
