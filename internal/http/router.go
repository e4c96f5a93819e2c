package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the local UI API. uiOrigins lists the browser origins
// allowed to call it; empty means the default dev UI origin.
func NewRouter(h *Handler, uiOrigins []string) *gin.Engine {
	r := gin.Default()

	origins := normalizeOrigins(uiOrigins)
	if len(origins) == 0 {
		origins = []string{DefaultUIOrigin}
	}

	r.Use(withRequestID(), withMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", HeaderRequestID},
		ExposeHeaders:    []string{HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           CORSMaxAge,
	}))
	r.Use(withLoopbackOnly())

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/networks", h.Networks)

		api.GET("/session", h.Session)
		api.POST("/session/connect", h.Connect)
		api.POST("/session/disconnect", h.Disconnect)
		api.POST("/session/network", h.SwitchNetwork)

		api.GET("/portfolio", h.Portfolio)
		api.POST("/portfolio/refresh", h.RefreshPortfolio)

		api.POST("/swap/quote", h.Quote)
		api.POST("/swap/execute", h.Execute)

		api.POST("/send", h.Send)

		api.GET("/status", h.Status)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
