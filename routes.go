package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"news-faces/config"
	"news-faces/metrics"
	"news-faces/services"
	"news-faces/storage"
)

const (
	serviceName    = "people-in-news"
	serviceVersion = "1.0.0"
)

// app bündelt die Abhängigkeiten der HTTP-Handler.
type app struct {
	cfg         *config.Config
	db          *gorm.DB
	log         *zap.Logger
	coordinator *services.RunCoordinator
	latest      *services.LatestCards
	fanout      *services.Fanout
	queries     *services.QueryService
}

func newRouter(a *app) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(a.log))
	if mw := corsMiddleware(a.cfg); mw != nil {
		router.Use(mw)
	}
	router.GET("/metrics", metrics.Handler())

	setupMetaRoutes(router, a)
	setupIngestRoutes(router, a)
	setupStreamRoutes(router, a)
	setupPeopleRoutes(router, a)
	setupArticleRoutes(router, a)
	if a.cfg.DebugEnabled {
		setupDebugRoutes(router, a)
	}
	return router
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// requestLogger loggt jede Anfrage mit einer Request-ID über zap.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		log.Debug("HTTP request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// corsMiddleware gibt nil zurück, wenn keine Origins konfiguriert sind.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	origins := cfg.Origins()
	if len(origins) == 0 {
		return nil
	}
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-API-KEY", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cc.AllowAllOrigins = true
			cc.AllowCredentials = false
		}
	}
	if !cc.AllowAllOrigins {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

func setupMetaRoutes(router *gin.Engine, a *app) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "service": serviceName, "version": serviceVersion})
	})
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"cards_count": a.latest.Len(),
			"running":     a.coordinator.Running(),
			"subscribers": a.fanout.Len(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.GET("/api/people-news", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.latest.Snapshot())
	})
}

func setupIngestRoutes(router *gin.Engine, a *app) {
	router.POST("/api/refresh-news", apiKeyAuthMiddleware(a.cfg), func(c *gin.Context) {
		async := false
		if raw := c.Query("async"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid async parameter"})
				return
			}
			async = v
		}

		if async {
			if err := a.coordinator.TriggerAsync(c.Request.Context()); err != nil {
				writeTriggerError(c, a.log, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"message": "News refresh started"})
			return
		}

		summary, err := a.coordinator.TriggerNow(c.Request.Context())
		if err != nil {
			writeTriggerError(c, a.log, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func writeTriggerError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "busy"})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	default:
		log.Error("Manueller Lauf fehlgeschlagen", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh failed"})
	}
}

func setupStreamRoutes(router *gin.Engine, a *app) {
	router.GET("/api/events", func(c *gin.Context) {
		sub := a.fanout.Subscribe()
		defer a.fanout.Unsubscribe(sub.ID)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ctx := c.Request.Context()
		c.Stream(func(w io.Writer) bool {
			ev, ok := sub.Next(ctx, a.cfg.HeartbeatInterval)
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		})
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(a.cfg),
	}
	router.GET("/api/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			a.log.Warn("Websocket-Upgrade fehlgeschlagen", zap.Error(err))
			return
		}
		defer conn.Close()

		sub := a.fanout.Subscribe()
		defer a.fanout.Unsubscribe(sub.ID)

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// Leser: verarbeitet Close-Frames und beendet den Stream beim Trennen.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			ev, ok := sub.Next(ctx, a.cfg.HeartbeatInterval)
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	})
}

// originChecker erlaubt Anfragen ohne Origin und solche aus CORS_ORIGINS.
func originChecker(cfg *config.Config) func(r *http.Request) bool {
	allowed := map[string]bool{}
	for _, o := range cfg.Origins() {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

func setupPeopleRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/people")

	rg.GET("", func(c *gin.Context) {
		limit, err := intQuery(c, "limit", 100, 1, 500)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		people, err := a.queries.ListPeople(c.Request.Context(), limit, c.Query("q"))
		if err != nil {
			a.log.Error("Database query for people failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, people)
	})

	rg.GET("/cards", func(c *gin.Context) {
		top, err := intQuery(c, "top", 3, 1, 10)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cards, err := a.queries.PersonCards(c.Request.Context(), top)
		if err != nil {
			a.log.Error("Database query for person cards failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, cards)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		person, err := a.queries.GetPerson(c.Request.Context(), id)
		if err != nil {
			writeLookupError(c, a.log, err, "Person not found")
			return
		}
		c.JSON(http.StatusOK, person)
	})

	rg.GET("/:id/articles", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		limit, err := intQuery(c, "limit", 50, 1, 500)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		articles, err := a.queries.ArticlesForPerson(c.Request.Context(), id, limit)
		if err != nil {
			writeLookupError(c, a.log, err, "Person not found")
			return
		}
		c.JSON(http.StatusOK, articles)
	})
}

func setupArticleRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/articles")

	rg.GET("/latest", func(c *gin.Context) {
		limit, err := intQuery(c, "limit", 50, 1, 500)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		articles, err := a.queries.LatestArticles(c.Request.Context(), limit)
		if err != nil {
			a.log.Error("Database query for latest articles failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, articles)
	})

	rg.GET("/by-link", func(c *gin.Context) {
		link := c.Query("link")
		if len(link) < 5 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "link must be at least 5 characters"})
			return
		}
		article, err := a.queries.ArticleByLink(c.Request.Context(), link)
		if err != nil {
			writeLookupError(c, a.log, err, "Article not found")
			return
		}
		c.JSON(http.StatusOK, article)
	})
}

func setupDebugRoutes(router *gin.Engine, a *app) {
	router.DELETE("/debug/clear-db", apiKeyAuthMiddleware(a.cfg), func(c *gin.Context) {
		if err := storage.ClearAll(a.db.WithContext(c.Request.Context())); err != nil {
			a.log.Error("Failed to clear database", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		a.latest.Replace(nil)
		a.fanout.Publish(services.Event{Type: services.EventDataChanged})
		a.log.Warn("Datenbank geleert")
		c.JSON(http.StatusOK, gin.H{"message": "database cleared"})
	})
}

func writeLookupError(c *gin.Context, log *zap.Logger, err error, notFound string) {
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	log.Error("Database lookup failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// intQuery liest einen optionalen Integer-Parameter im Bereich [lo, hi].
func intQuery(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return v, nil
}
