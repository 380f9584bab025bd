package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// corsHeaders are the request headers browser clients may send.
var corsHeaders = []string{"Origin", "Content-Type", "Accept", "Cache-Control", RequestIDHeader}

// CORSConfig returns the cross-origin policy for origins. No origins, or
// "*" among them, allows every origin. Credentials are never allowed since
// the API has no sessions.
func CORSConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    corsHeaders,
		ExposeHeaders:   []string{RequestIDHeader},
		AllowWebSockets: true,
		MaxAge:          12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// CORS applies CORSConfig(origins).
func CORS(origins []string) gin.HandlerFunc {
	return cors.New(CORSConfig(origins))
}
