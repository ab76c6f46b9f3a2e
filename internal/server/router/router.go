package router

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
	"github.com/mamadbah2/stockwatch/internal/server/handlers"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// New wires the Gin engine with required routes and middlewares.
func New(handler *handlers.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	r.SetHTMLTemplate(template.Must(template.New("").Funcs(template.FuncMap{
		"statuses": statusLabels,
	}).ParseFS(templateFS, "templates/*.tmpl")))

	r.GET("/", handler.Index)
	r.POST("/acknowledge", handler.AcknowledgeForm)

	api := r.Group("/api")
	{
		api.GET("/inventory", handler.ListInventory)
		api.GET("/inventory/:id", handler.GetItem)
		api.POST("/inventory/refresh", handler.Refresh)
		api.GET("/alerts/current", handler.CurrentAlert)
		api.POST("/alerts/acknowledge", handler.Acknowledge)
		api.GET("/alerts/queue", handler.QueueStatus)
		api.GET("/acknowledgments", handler.Acknowledgments)
	}

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

// WithCORS lets a browser UI served from one of origins call the API. With no
// origins h is returned unchanged.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(h)
}

func statusLabels() []string {
	return []string{
		models.StatusOutOfStock.Label(),
		models.StatusLowStock.Label(),
		models.StatusInStock.Label(),
		models.StatusUnknown.Label(),
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
