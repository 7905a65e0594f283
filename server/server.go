package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"telemetry-server/cache"
	"telemetry-server/clock"
	"telemetry-server/confs"
	"telemetry-server/db"
	"telemetry-server/handlers"
	httpHandler "telemetry-server/handlers/http"
	"telemetry-server/repositories"
	"telemetry-server/services"
	"telemetry-server/usecases"
	"telemetry-server/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Server struct {
	app       *gin.Engine
	cfg       *confs.Config
	db        db.Database
	store     cache.Store
	clock     clock.Clock
	log       *slog.Logger
	telemetry *usecases.TelemetryUseCase
}

func NewServer(cfg *confs.Config, database db.Database, store cache.Store, c clock.Clock, log *slog.Logger) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		app:   gin.New(),
		cfg:   cfg,
		db:    database,
		store: store,
		clock: c,
		log:   log,
	}
	s.setup()
	return s
}

// Handler exposes the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler { return s.app }

// Ingestor is the ingestion path shared by the device transports.
func (s *Server) Ingestor() handlers.Ingester { return s.telemetry }

func (s *Server) setup() {
	s.app.Use(gin.Recovery())
	s.app.Use(httpHandler.RequestLogger(s.log))

	// Setup CORS middleware
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", "X-Request-ID"}
	config.ExposeHeaders = []string{"X-Request-ID", "Idempotent-Replayed"}
	s.app.Use(cors.New(config))

	// Initialize repositories
	userRepo := repositories.NewUserPgRepository(s.db)
	serverRepo := repositories.NewServerPgRepository(s.db)
	readingRepo := repositories.NewSensorReadingPgRepository(s.db)

	// Initialize use cases
	tokens := services.NewTokenIssuer(s.cfg.Auth.SecretKey, s.cfg.Auth.TokenTTL, s.clock)
	authUseCase := usecases.NewAuthUseCase(userRepo, services.NewBcryptHasher(0), tokens, s.cfg.Auth.MinPasswordLength)
	healthUseCase := usecases.NewHealthUseCase(serverRepo, readingRepo, s.store, s.clock,
		s.cfg.Health.OfflineThreshold, s.cfg.Health.CacheTTL, s.log)
	serverUseCase := usecases.NewServerUseCase(serverRepo, healthUseCase)
	s.telemetry = usecases.NewTelemetryUseCase(serverRepo, readingRepo, healthUseCase, s.store, s.clock,
		s.cfg.Cache.DefaultTTL, s.cfg.Query.CacheTTL, s.log)

	// Initialize handlers
	authHandler := httpHandler.NewAuthHandler(authUseCase)
	serverHandler := httpHandler.NewServerHandler(serverUseCase)
	dataHandler := httpHandler.NewSensorDataHandler(s.telemetry)
	healthHandler := httpHandler.NewHealthHandler(healthUseCase)
	cacheHandler := handlers.NewCacheHandler(s.store, s.cfg.Cache.DefaultTTL)
	wsHandler := handlers.NewWSHandler(ws.NewManager(), serverRepo, s.telemetry, s.log)

	requireAuth := httpHandler.RequireAuth(authUseCase)
	optionalAuth := httpHandler.OptionalAuth(authUseCase)

	s.app.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API is running"})
	})
	s.app.GET("/healthz", s.liveness)

	auth := s.app.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	servers := s.app.Group("/servers", requireAuth)
	{
		servers.POST("", serverHandler.CreateServer)
		servers.POST("/", serverHandler.CreateServer)
		servers.GET("", serverHandler.ListServers)
		servers.GET("/", serverHandler.ListServers)
	}

	data := s.app.Group("/data", optionalAuth)
	{
		data.POST("", dataHandler.CreateSensorData)
		data.POST("/", dataHandler.CreateSensorData)
		data.GET("", dataHandler.GetSensorData)
		data.GET("/", dataHandler.GetSensorData)
	}

	health := s.app.Group("/health", requireAuth)
	{
		health.GET("/all", healthHandler.GetAllHealth)
		health.GET("/:server_id", healthHandler.GetServerHealth)
	}

	// Cache diagnostics
	diag := s.app.Group("/cache")
	{
		diag.GET("/set", cacheHandler.SetCache)
		diag.POST("/set", cacheHandler.SetCache)
		diag.GET("/get/:key", cacheHandler.GetCache)
		diag.GET("/stats", cacheHandler.GetCacheStats)
	}

	// Device ingestion over websocket
	s.app.GET("/ws", wsHandler.HandleServerWS)
	s.app.GET("/ws/connected", wsHandler.GetConnectedServers)
}

func (s *Server) liveness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		s.log.Error("database ping failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
