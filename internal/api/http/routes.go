package http

import "github.com/gin-gonic/gin"

// APIPrefix is the route group of the scraper endpoints.
const APIPrefix = "/api/v1/scraper"

// Register mounts the handlers on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)

	api := r.Group(APIPrefix)
	api.GET("/health", h.Health)
	api.POST("/dom-tree/build", h.BuildTree)
	api.POST("/scrape", h.Scrape)
	api.POST("/query", h.Query)
	api.POST("/compile", h.Compile)
	api.GET("/live", h.Live)
}
