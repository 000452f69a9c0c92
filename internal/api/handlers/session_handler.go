package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/speaklens/speaklens/internal/services"
	"github.com/speaklens/speaklens/internal/utils"
)

type SessionHandler struct {
	svc services.AssessmentService
}

func NewSessionHandler(svc services.AssessmentService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Start(c *gin.Context) {
	snap, err := h.svc.Start(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":           snap.ID,
		"phase":                snap.Phase,
		"phase_time_remaining": snap.TimeRemainingMS,
		"message":              "Assessment session started successfully",
	})
}

func (h *SessionHandler) Status(c *gin.Context) {
	snap, err := h.svc.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

type UpdateMetadataRequest struct {
	Updates services.MetadataUpdate `json:"updates"`
}

func (h *SessionHandler) UpdateMetadata(c *gin.Context) {
	var req UpdateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.UpdateMetadata", "invalid request body", err))
		return
	}

	md, err := h.svc.UpdateMetadata(c.Request.Context(), c.Param("session_id"), req.Updates)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": md})
}

func (h *SessionHandler) End(c *gin.Context) {
	if err := h.svc.End(c.Request.Context(), c.Param("session_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session ended successfully"})
}

func (h *SessionHandler) Results(c *gin.Context) {
	sessionID := c.Param("session_id")
	fs, err := h.svc.Results(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":  sessionID,
		"level_cefr":  fs.LevelCEFR,
		"scores":      fs.Scores,
		"confidence":  fs.Confidence,
		"rationale":   fs.Rationale,
		"total_score": fs.TotalScore,
		"signals":     fs.Signals,
	})
}

func (h *SessionHandler) Transcript(c *gin.Context) {
	sessionID := c.Param("session_id")
	entries, err := h.svc.Transcript(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "transcript": entries})
}

func (h *SessionHandler) TurnAudio(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("turn_index"))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.TurnAudio", "invalid turn_index", err))
		return
	}

	refs, err := h.svc.TurnAudio(c.Request.Context(), c.Param("session_id"), idx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refs)
}

func (h *SessionHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
