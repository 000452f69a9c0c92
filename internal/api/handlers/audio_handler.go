package handlers

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/speaklens/speaklens/internal/services"
	"github.com/speaklens/speaklens/internal/utils"
)

const maxAudioBytes = 50 << 20

type AudioHandler struct {
	svc services.AssessmentService
}

func NewAudioHandler(svc services.AssessmentService) *AudioHandler {
	return &AudioHandler{svc: svc}
}

func readAudioFile(c *gin.Context, op string) ([]byte, string, error) {
	fh, err := c.FormFile("audio")
	if err != nil {
		return nil, "", utils.E(utils.CodeInvalidArgument, op, "audio file is required", err)
	}
	if fh.Size > maxAudioBytes {
		return nil, "", utils.E(utils.CodeInvalidArgument, op, "audio file too large", nil)
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "audio/") {
		return nil, "", utils.E(utils.CodeInvalidArgument, op, "only audio files are allowed", nil)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", utils.E(utils.CodeInternal, op, "failed to open audio file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAudioBytes))
	if err != nil {
		return nil, "", utils.E(utils.CodeInternal, op, "failed to read audio file", err)
	}
	return data, contentType, nil
}

// Process is the synchronous turn submission path: multipart audio in,
// transcript plus AI prompt and audio out.
func (h *AudioHandler) Process(c *gin.Context) {
	const op = "AudioHandler.Process"

	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil))
		return
	}

	audio, contentType, err := readAudioFile(c, op)
	if err != nil {
		writeError(c, err)
		return
	}

	out, err := h.svc.ProcessTurn(c.Request.Context(), sessionID, audio, contentType, c.PostForm("language"))
	if err != nil {
		writeError(c, err)
		return
	}

	var aiAudio string
	if len(out.AIAudio) > 0 {
		aiAudio = base64.StdEncoding.EncodeToString(out.AIAudio)
	}

	c.JSON(http.StatusOK, gin.H{
		"turn_result": gin.H{
			"ai_response":          out.AIResponse,
			"ai_audio":             aiAudio,
			"phase":                out.Phase,
			"phase_time_remaining": out.TimeRemainingMS,
			"should_advance":       out.Advanced,
		},
		"user_transcript": out.UserTranscript,
		"session_status": gin.H{
			"phase":      out.Phase,
			"turn_index": out.TurnIndex,
			"status":     out.Status,
		},
	})
}

// Test is the microphone check. No real level analysis exists; a size-based
// heuristic stands in for it.
func (h *AudioHandler) Test(c *gin.Context) {
	const op = "AudioHandler.Test"

	audio, _, err := readAudioFile(c, op)
	if err != nil {
		writeError(c, err)
		return
	}

	hasAudio := len(audio) > 1000
	quality := 0.0
	if hasAudio {
		quality = 0.8
	}

	msg := "No audio detected"
	if hasAudio {
		msg = "Microphone test successful"
	}

	c.JSON(http.StatusOK, gin.H{
		"audio_quality": gin.H{
			"has_audio":         hasAudio,
			"file_size":         len(audio),
			"duration_estimate": len(audio) / 16000, // rough, assumes 16kHz mono
			"quality_score":     quality,
		},
		"message": msg,
	})
}
