package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/auth"
	"site-timelapse/pkg/handlers"
	"site-timelapse/pkg/metrics"
)

// requestLogger writes one line per request through zerolog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		event := log.Debug()
		if status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	}
}

// SetupRouter wires every route. mediaRoot is served under /media when the
// archive lives on local disk; pass "" for object storage.
func SetupRouter(h *handlers.Handlers, mediaRoot string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), metrics.GinMiddleware())

	r.POST("/api/login", auth.LoginHandler)
	r.GET("/logout", auth.LogoutHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/share/:token", h.HandleSharedFile)

	authorized := r.Group("/")
	authorized.Use(auth.AuthMiddleware())
	{
		if mediaRoot != "" {
			authorized.Static("/media", mediaRoot)
		}

		cameras := authorized.Group("/api/cameras/:owner/:collection/:device")
		cameras.GET("/first", h.HandleFirstFrame)
		cameras.GET("/last", h.HandleLastFrame)
		cameras.GET("/frames", h.HandleFrames)
		cameras.GET("/dates", h.HandleDates)
		cameras.GET("/weekly", h.HandleWeekly)
		cameras.GET("/slideshow/:range", h.HandleSlideshow)
		cameras.GET("/compare", h.HandleCompare)
		cameras.GET("/image/:timestamp", h.HandleImage)
		cameras.GET("/thumbnail/:timestamp", h.HandleThumbnail)
		cameras.GET("/proxy/:timestamp", h.HandleProxy)

		jobs := authorized.Group("/api/jobs")
		jobs.POST("/video", h.HandleSubmitVideo)
		jobs.POST("/photo", h.HandleSubmitPhoto)
		jobs.POST("/weekly-video", h.HandleSubmitWeeklyVideo)
		jobs.GET("", h.HandleListJobs)
		jobs.DELETE("/:id", h.HandleDeleteJob)
		jobs.GET("/:id/download", h.HandleDownload)
		jobs.POST("/:id/share", h.HandleCreateShare)

		authorized.GET("/api/system-stats", h.HandleSystemStatsJSON)
		authorized.GET("/api/stats", h.HandleStats)

		admin := authorized.Group("/api/admin")
		admin.Use(auth.AdminOnlyMiddleware())
		{
			admin.POST("/index/:owner/:collection/:device", h.HandleBuildIndex)
			admin.GET("/log", h.HandleLog)
			admin.GET("/users", h.HandleListUsers)
			admin.POST("/users", h.HandleCreateUser)
			admin.DELETE("/users", h.HandleDeleteUser)
			admin.POST("/users/password", h.HandleChangePassword)
		}
	}

	return r
}

// StartServer serves r on addr until ctx is done, then shuts down gracefully.
func StartServer(ctx context.Context, addr string, r *gin.Engine) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Gin server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("Shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
