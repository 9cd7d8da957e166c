package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"uptimizer/internal/auth"
)

// NewRouter builds the gin engine and registers the API routes.
func NewRouter(h *Handlers, verifier auth.Verifier) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", h.Healthz)

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/status", h.Status)
		v1.GET("/clients", h.ListClients)
		v1.GET("/clients/:client_id/status", RequireClientToken(verifier), h.ClientStatus)
		v1.POST("/clients/:client_id/token", h.IssueToken)

		v1.POST("/clients/:client_id/endpoints", h.AddEndpoint)
		v1.PUT("/clients/:client_id/endpoints/:endpoint_id", h.UpdateEndpoint)
		v1.DELETE("/clients/:client_id/endpoints/:endpoint_id", h.DeleteEndpoint)

		v1.GET("/statistics", h.Statistics)
		v1.GET("/history", h.HistoryEndpointIDs)
		v1.GET("/history/:endpoint_id", h.History)
		v1.DELETE("/history/:endpoint_id", h.PurgeHistory)

		v1.GET("/config", h.GetSettings)
		v1.PUT("/config/settings", h.UpdateSettings)
		v1.POST("/config/reload", h.ReloadConfig)
	}

	return engine
}

// RequireClientToken guards the status-export endpoint: the bearer
// token must verify and must be bound to the exact client id in the
// URL, so one client's token cannot read another's data.
func RequireClientToken(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = parts[1]
			}
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication token is missing"})
			return
		}
		clientID, err := verifier.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or unverifiable authentication token"})
			return
		}
		if clientID != c.Param("client_id") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not match the requested client"})
			return
		}
		c.Next()
	}
}
