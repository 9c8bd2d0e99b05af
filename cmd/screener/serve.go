package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	cronrunner "putscreener/internal/cron"
	"putscreener/internal/handler"
	"putscreener/internal/pipeline"
	"putscreener/internal/service"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return a.serve(cmd.Context())
	},
}

func (a *app) serve(ctx context.Context) error {
	log := a.logger
	if err := a.migrate(); err != nil {
		return err
	}
	if err := a.settings.EnsureDefaultSwitches(ctx); err != nil {
		log.Warn("init default system switches failed", zap.Error(err))
	}

	if strings.EqualFold(a.cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: a.db.Gorm, Runs: a.coordinator}
	healthHandler.Register(engine)
	screenerHandler := &handler.ScreenerHandler{
		Runs:     a.coordinator,
		Results:  a.screener,
		Coverage: a.sync,
		Settings: a.settings,
		States:   a.store,
		BaseCtx:  ctx,
		Logger:   log,
	}
	screenerHandler.Register(engine)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              a.cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cronRunner := cronrunner.New(log, ctx)
	if a.cfg.Cron.Enabled {
		a.registerJobs(cronRunner)
		cronRunner.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested")
		if a.cfg.Cron.Enabled {
			cronRunner.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *app) registerJobs(r *cronrunner.Runner) {
	jobs := []cronrunner.Job{
		{
			Name: "pipeline",
			Spec: a.cfg.Cron.Pipeline,
			Enabled: func(ctx context.Context) bool {
				return a.settings.IsEnabled(ctx, service.FeatureCronPipeline, true)
			},
			Run: func(ctx context.Context) error {
				_, err := a.coordinator.RunAll(ctx, pipeline.Options{})
				if errors.Is(err, pipeline.ErrBusy) {
					a.logger.Info("cron pipeline skipped, another run is active")
					return nil
				}
				return err
			},
		},
		{
			Name: "cleanup",
			Spec: a.cfg.Cron.Cleanup,
			Enabled: func(ctx context.Context) bool {
				return a.settings.IsEnabled(ctx, service.FeatureCronCleanup, true)
			},
			Run: func(ctx context.Context) error {
				_, err := a.retention.Cleanup(ctx, a.cfg.Retention.DaysToKeep)
				return err
			},
		},
	}
	for _, job := range jobs {
		if _, err := r.Register(job); err != nil {
			a.logger.Warn("cron register failed", zap.String("job", job.Name), zap.String("spec", job.Spec), zap.Error(err))
		}
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if strings.HasPrefix(c.Request.URL.Path, "/swagger") {
			return
		}
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
