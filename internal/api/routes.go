package api

import (
	"github.com/gin-gonic/gin"

	"github.com/callsight/callsight/internal/logger"
	"github.com/callsight/callsight/internal/server"
	"github.com/callsight/callsight/internal/stream"
)

// RegisterRoutes mounts the v1 API on the engine. All routes sit behind
// bearer auth; an empty secret (development) leaves them open.
func RegisterRoutes(engine *gin.Engine, h *Handlers, b *stream.Broadcaster, jwtSecret string, log logger.Logger) {
	v1 := engine.Group("/api/v1")
	v1.Use(server.RequireAuth(jwtSecret, log))

	v1.POST("/calls", h.StartCall)
	v1.POST("/calls/:call_id/transcript", h.IngestTranscript)
	v1.POST("/calls/:call_id/end", h.EndCall)

	v1.GET("/jobs/:job_id", h.GetJob)
	v1.GET("/calls/:call_id/job", h.GetJobByCall)
	v1.GET("/calls/:call_id/events", stream.Handler(b, log))
}
