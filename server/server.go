// Package server hosts a generated IIIF package over HTTP at the paths of
// its configured base URIs, so viewers can load it straight away.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pdftomanifest/config"
	"pdftomanifest/contracts"
	"pdftomanifest/files_manager"
)

// NewRouter serves the manifest and the image tree. Level-0 clients fetch
// static files only, so every route is a GET on the filesystem.
func NewRouter(cfg config.Config, layout *files_manager.Layout, logger zerolog.Logger) (*gin.Engine, error) {
	manifestPrefix, err := routePrefix(cfg.BaseManifestURI)
	if err != nil {
		return nil, err
	}
	imagePrefix, err := routePrefix(cfg.BaseImageURI)
	if err != nil {
		return nil, err
	}
	if imagePrefix == "" {
		return nil, fmt.Errorf("base_image_uri %q needs a path to serve images under", cfg.BaseImageURI)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.StaticFile(manifestPrefix+"/"+contracts.ManifestFileName, layout.ManifestOutputPath())
	router.Static(imagePrefix, cfg.Paths.ImageDir)

	return router, nil
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, layout *files_manager.Layout, logger zerolog.Logger) error {
	router, err := NewRouter(cfg, layout, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("manifest", layout.ManifestURI()).
			Msg("serving IIIF package")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func routePrefix(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", base, err)
	}
	return strings.TrimRight(u.Path, "/"), nil
}

// cors lets viewers hosted on other origins read the package.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Accept, Content-Type, Range")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
