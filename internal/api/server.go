// Package api provides the HTTP API server (spec.md §6): gin routing,
// CORS, API-key auth, and the five dialect endpoints, wired directly
// against internal/geminiclient, internal/fallback, and the three
// internal/translator/* packages instead of the teacher's pluggable
// multi-provider client map (this proxy has exactly one upstream).
// Grounded on the teacher's internal/api/server.go for the engine
// construction, middleware chain, and AuthMiddleware shape.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/valerka1292/gemini-cli-proxy/internal/api/middleware"
	"github.com/valerka1292/gemini-cli-proxy/internal/auth"
	"github.com/valerka1292/gemini-cli-proxy/internal/config"
	"github.com/valerka1292/gemini-cli-proxy/internal/fallback"
	"github.com/valerka1292/gemini-cli-proxy/internal/geminiclient"
	"github.com/valerka1292/gemini-cli-proxy/internal/logging"
)

// Server is the main API server: a gin engine plus the shared dependencies
// every dialect handler needs.
type Server struct {
	engine *gin.Engine
	server *http.Server

	deps *handlerDeps

	cfg           *config.Config
	requestLogger *logging.FileRequestLogger
}

// handlerDeps bundles the dependencies shared by every dialect's handlers,
// the generalization of the teacher's BaseAPIHandler to a single upstream.
type handlerDeps struct {
	cfg      *config.Config
	auth     *auth.Client
	gemini   *geminiclient.Client
	fallback *fallback.Controller
}

// NewServer builds the server, its middleware chain, and its routes.
func NewServer(cfg *config.Config, authClient *auth.Client, geminiClient *geminiclient.Client, fallbackCtrl *fallback.Controller) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())

	requestLogger := logging.NewFileRequestLogger(cfg.RequestLog, "logs")
	engine.Use(middleware.RequestLoggingMiddleware(requestLogger))
	engine.Use(corsMiddleware())

	s := &Server{
		engine: engine,
		deps: &handlerDeps{
			cfg:      cfg,
			auth:     authClient,
			gemini:   geminiClient,
			fallback: fallbackCtrl,
		},
		cfg:           cfg,
		requestLogger: requestLogger,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}
	return s
}

func (s *Server) setupRoutes() {
	oai := &openAIHandler{deps: s.deps}
	anthropicH := &anthropicHandler{deps: s.deps}

	openaiGroup := s.engine.Group("/openai/v1")
	openaiGroup.Use(AuthMiddleware(s.cfg))
	{
		openaiGroup.POST("/chat/completions", oai.ChatCompletions)
		openaiGroup.POST("/responses", oai.Responses)
		openaiGroup.GET("/models", oai.Models)
	}

	anthropicGroup := s.engine.Group("/anthropic/v1")
	anthropicGroup.Use(AuthMiddleware(s.cfg))
	{
		anthropicGroup.POST("/messages", anthropicH.Messages)
		anthropicGroup.GET("/models", anthropicH.Models)
	}

	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Gemini Code Assist translation proxy",
			"endpoints": []string{
				"POST /openai/v1/chat/completions",
				"POST /openai/v1/responses",
				"GET /openai/v1/models",
				"POST /anthropic/v1/messages",
				"GET /anthropic/v1/models",
			},
		})
	})
}

// Start begins listening for and serving HTTP requests. It blocks until
// the server is stopped.
func (s *Server) Start() error {
	log.Infof("starting API server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("stopping API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// UpdateConfig applies a hot-reloaded config (internal/watcher), refreshing
// the request logger's enabled state and the debug log level.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if s.requestLogger != nil && s.cfg.RequestLog != cfg.RequestLog {
		s.requestLogger.SetEnabled(cfg.RequestLog)
		log.Debugf("request logging updated from %t to %t", s.cfg.RequestLog, cfg.RequestLog)
	}
	if s.deps.fallback != nil && s.cfg.Fallback.Enabled != cfg.Fallback.Enabled {
		s.deps.fallback.SetEnabled(cfg.Fallback.Enabled)
		log.Debugf("fallback auto-switching updated from %t to %t", s.cfg.Fallback.Enabled, cfg.Fallback.Enabled)
	}
	s.cfg = cfg
	s.deps.cfg = cfg
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Api-Key, X-Goog-Api-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AuthMiddleware authenticates requests against cfg.APIKeys. Absent any
// configured keys, every request is allowed (local, single-operator
// deployment default).
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.AllowLocalhostUnauthenticated && strings.HasPrefix(c.Request.RemoteAddr, "127.0.0.1:") {
			c.Next()
			return
		}
		if len(cfg.APIKeys) == 0 {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		googHeader := c.GetHeader("X-Goog-Api-Key")
		anthropicHeader := c.GetHeader("X-Api-Key")
		queryKey := c.Query("key")

		if authHeader == "" && googHeader == "" && anthropicHeader == "" && queryKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		apiKey := authHeader
		if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			apiKey = parts[1]
		}

		for _, key := range cfg.APIKeys {
			if key == apiKey || key == googHeader || key == anthropicHeader || key == queryKey {
				c.Set("apiKey", key)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
	}
}
