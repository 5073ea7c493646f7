// Package api exposes the transport over HTTP for external control
// surfaces. All handlers go through the engine facade, so the single-writer
// rule holds no matter who calls.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Maokus/MVMNT-sub000/engine"
	"github.com/Maokus/MVMNT-sub000/timing"
	"github.com/Maokus/MVMNT-sub000/transport"
)

// StartServer runs the control API on the given port, blocking.
func StartServer(m *engine.Manager, port int) error {
	return Router(m).Run(fmt.Sprintf(":%d", port))
}

// Router builds the control API routes.
func Router(m *engine.Manager) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/now", handleNow(m))
		v1.GET("/tracks", handleTracks(m))
		v1.GET("/warnings", handleWarnings(m))
		v1.POST("/play", handlePlay(m))
		v1.POST("/pause", handlePause(m))
		v1.POST("/seek", handleSeek(m))
		v1.POST("/loop", handleLoop(m))
		v1.POST("/quantize", handleQuantize(m))
		v1.POST("/rate", handleRate(m))
		v1.POST("/tempo", handleTempo(m))
	}

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func warningsJSON(warns []transport.Warning) []gin.H {
	out := make([]gin.H, 0, len(warns))
	for _, w := range warns {
		out = append(out, gin.H{"code": w.Code.String(), "message": w.Message})
	}
	return out
}

func handleNow(m *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := m.Now()
		c.JSON(http.StatusOK, gin.H{
			"tick":      now.Tick,
			"beats":     now.Beats,
			"seconds":   now.Seconds,
			"status":    now.Status.String(),
			"authority": now.Authority.String(),
			"epoch":     m.Controller().Epoch(),
		})
	}
}

func handleTracks(m *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tracks": m.Scheduler().Tracks()})
	}
}

func handleWarnings(m *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"warnings": warningsJSON(m.Warnings())})
	}
}

func handlePlay(m *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		warns := m.Play()
		c.JSON(http.StatusOK, gin.H{"ok": true, "warnings": warningsJSON(warns)})
	}
}

func handlePause(m *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.Pause()
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func handleSeek(m *engine.Manager) gin.HandlerFunc {
	type req struct {
		Tick int64 `json:"tick"`
	}
	return func(c *gin.Context) {
		var body req
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		warns := m.SeekTick(body.Tick)
		c.JSON(http.StatusOK, gin.H{"ok": true, "tick": m.Now().Tick, "warnings": warningsJSON(warns)})
	}
}

func handleLoop(m *engine.Manager) gin.HandlerFunc {
	type req struct {
		Start   int64 `json:"start"`
		End     int64 `json:"end"`
		Enabled bool  `json:"enabled"`
	}
	return func(c *gin.Context) {
		var body req
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		warns := m.SetLoop(body.Start, body.End, body.Enabled)
		c.JSON(http.StatusOK, gin.H{"ok": true, "warnings": warningsJSON(warns)})
	}
}

func handleQuantize(m *engine.Manager) gin.HandlerFunc {
	type req struct {
		Mode string `json:"mode"` // "off" or "bar"
	}
	return func(c *gin.Context) {
		var body req
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		switch body.Mode {
		case "bar":
			m.SetQuantize(transport.QuantizeBar)
		case "off":
			m.SetQuantize(transport.QuantizeOff)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be off or bar"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func handleRate(m *engine.Manager) gin.HandlerFunc {
	type req struct {
		Rate float64 `json:"rate"`
	}
	return func(c *gin.Context) {
		var body req
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := m.SetRate(body.Rate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func handleTempo(m *engine.Manager) gin.HandlerFunc {
	type req struct {
		Entries []timing.TempoEntry `json:"entries"`
	}
	return func(c *gin.Context) {
		var body req
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		warns, err := m.SetTempoMap(body.Entries)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":    err.Error(),
				"warnings": warningsJSON(warns),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "warnings": warningsJSON(warns)})
	}
}
