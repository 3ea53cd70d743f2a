package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jobmail/internal/model"
)

// Pinger is satisfied by *pgxpool.Pool and by a small adapter over redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ApplicationLister serves the read-only applications endpoint.
type ApplicationLister interface {
	ListByUser(ctx context.Context, userID string) ([]*model.JobApplication, error)
}

type Router struct {
	Engine *gin.Engine
	server *http.Server
}

// NewRouter exposes health, readiness, Prometheus metrics and a read-only
// view of a user's applications. deps are pinged by /readyz.
func NewRouter(logger *zap.Logger, apps ApplicationLister, deps map[string]Pinger) *Router {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, p := range deps {
			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/users/:user_id/applications", func(c *gin.Context) {
		userID := c.Param("user_id")
		list, err := apps.ListByUser(c.Request.Context(), userID)
		if err != nil {
			logger.Error("List applications failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list applications"})
			return
		}
		if list == nil {
			list = []*model.JobApplication{}
		}
		c.JSON(http.StatusOK, gin.H{"applications": list})
	})

	return &Router{Engine: r}
}

// Run serves on addr until Shutdown is called.
func (r *Router) Run(addr string) error {
	r.server = &http.Server{Addr: addr, Handler: r.Engine, ReadHeaderTimeout: 5 * time.Second}
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
