package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/speaklens/speaklens/internal/api/handlers"
)

type Deps struct {
	Session    *handlers.SessionHandler
	Assessment *handlers.AssessmentHandler
	Audio      *handlers.AudioHandler
	WS         *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.POST("/session/start", d.Session.Start)
	r.GET("/session/:session_id/status", d.Session.Status)
	r.PATCH("/session/:session_id/metadata", d.Session.UpdateMetadata)
	r.POST("/session/:session_id/end", d.Session.End)
	r.GET("/session/:session_id/results", d.Session.Results)
	r.GET("/session/:session_id/transcript", d.Session.Transcript)
	r.GET("/session/:session_id/audio/:turn_index", d.Session.TurnAudio)
	r.GET("/session/stats/overview", d.Session.Stats)

	r.GET("/assessment/config", d.Assessment.Config)
	r.GET("/assessment/:session_id/phase", d.Assessment.PhaseInfo)
	r.POST("/assessment/:session_id/advance", d.Assessment.Advance)
	r.GET("/assessment/:session_id/progress", d.Assessment.Progress)

	r.POST("/audio/process", d.Audio.Process)
	r.POST("/audio/test", d.Audio.Test)

	// WebSocket
	r.GET("/ws/session/:session_id", d.WS.SessionWS)
}
