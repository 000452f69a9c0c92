package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/speaklens/speaklens/internal/assessment"
	"github.com/speaklens/speaklens/internal/models"
	"github.com/speaklens/speaklens/internal/services"
	"github.com/speaklens/speaklens/internal/utils"
)

type AssessmentHandler struct {
	svc   services.AssessmentService
	table *assessment.PhaseTable
}

func NewAssessmentHandler(svc services.AssessmentService, table *assessment.PhaseTable) *AssessmentHandler {
	return &AssessmentHandler{svc: svc, table: table}
}

func (h *AssessmentHandler) Config(c *gin.Context) {
	phases := h.table.Phases()
	phaseConfig := make(map[models.Phase]gin.H, len(phases))
	for _, p := range phases {
		entry := gin.H{"duration": h.table.Duration(p).Milliseconds()}
		if next, ok := h.table.Next(p); ok {
			entry["next"] = next
		}
		phaseConfig[p] = entry
	}

	thresholds := assessment.ThresholdsFromEnv()

	c.JSON(http.StatusOK, gin.H{
		"phases":       phases,
		"phase_config": phaseConfig,
		"timeouts": gin.H{
			"session_timeout":    envOr("SESSION_TIMEOUT", "300000"),
			"max_audio_duration": envOr("MAX_AUDIO_DURATION", "60000"),
		},
		"scoring": gin.H{
			"cefr_thresholds": gin.H{
				"A2": thresholds.A2,
				"B1": thresholds.B1,
				"B2": thresholds.B2,
				"C1": thresholds.C1,
				"C2": thresholds.C2,
			},
		},
		"voice": gin.H{
			"voice_name":    os.Getenv("TTS_VOICE_NAME"),
			"language_code": envOr("TTS_LANGUAGE_CODE", "en-US"),
		},
	})
}

func (h *AssessmentHandler) PhaseInfo(c *gin.Context) {
	snap, err := h.svc.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	info := gin.H{
		"current":        snap.Phase,
		"duration":       h.table.Duration(snap.Phase).Milliseconds(),
		"time_remaining": snap.TimeRemainingMS,
		"turn_index":     snap.TurnIndex,
	}
	if next, ok := h.table.Next(snap.Phase); ok {
		info["next"] = next
	}
	c.JSON(http.StatusOK, gin.H{"phase": info})
}

type AdvanceRequest struct {
	TargetPhase string `json:"target_phase"`
}

func (h *AssessmentHandler) Advance(c *gin.Context) {
	var req AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AssessmentHandler.Advance", "invalid request body", err))
		return
	}

	snap, err := h.svc.ForceAdvance(c.Request.Context(), c.Param("session_id"), models.Phase(req.TargetPhase))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":              "Phase advanced successfully",
		"new_phase":            snap.Phase,
		"phase_time_remaining": snap.TimeRemainingMS,
	})
}

func (h *AssessmentHandler) Progress(c *gin.Context) {
	p, err := h.svc.Progress(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": p})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
