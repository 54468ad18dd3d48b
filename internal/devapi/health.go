package devapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status string            `json:"status"`
	Time   string            `json:"time"`
	Checks map[string]string `json:"checks"`
}

// Health pings the session store and the mail outbox. Any failure turns the
// response into a 503.
func (s *Server) Health(c *gin.Context) {
	probes := map[string]func(context.Context) error{
		"sessions": s.sessionDB.PingContext,
		"outbox":   s.queue.Ping,
	}

	resp := HealthResponse{Status: "healthy", Checks: make(map[string]string, len(probes))}
	code := http.StatusOK
	for name, ping := range probes {
		if err := ping(c.Request.Context()); err != nil {
			resp.Checks[name] = "error: " + err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	resp.Time = time.Now().Format(time.RFC3339)

	c.IndentedJSON(code, resp)
}
