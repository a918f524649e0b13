package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"project-chat/internal/assistant"
	"project-chat/internal/auth"
	"project-chat/internal/config"
	"project-chat/internal/db"
	grpchealth "project-chat/internal/grpc"
	"project-chat/internal/handlers"
	"project-chat/internal/logging"
	"project-chat/internal/middleware"
	"project-chat/internal/observability"
	"project-chat/internal/rabbitmq"
	"project-chat/internal/repositories"
	"project-chat/internal/router"
	"project-chat/internal/telemetry"
	"project-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing.Endpoint, cfg.ServiceName)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(cfg.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	mongoDB, err := db.ConnectMongo(ctx, cfg.Mongo.URL, cfg.Mongo.Database)
	if err != nil {
		logger.Fatal("failed to connect to mongo", zap.Error(err))
	}
	defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()

	var projectRepo repositories.ProjectRepository = repositories.NewProjectRepo(database)
	if cfg.Redis.Addr != "" {
		redisClient, err := db.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("project cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			projectRepo = repositories.NewCachedProjectRepo(projectRepo, redisClient, cfg.Redis.CacheTTL, logger)
		}
	}
	messageRepo := repositories.NewMessageRepo(mongoDB)

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	verifier := auth.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
	responder := assistant.NewBreakerResponder(
		assistant.NewGeminiResponder(cfg.Assistant.Model, cfg.Assistant.APIKey),
		cfg.Assistant.BreakerFailures,
		cfg.Assistant.BreakerCooldown,
		logger,
	)

	hub := ws.NewHub(logger)
	gate := ws.NewGate(projectRepo, verifier, hub, logger)
	messageRouter := router.New(hub, messageRepo, responder, audit, router.Options{
		AITimeout:       cfg.Assistant.Timeout,
		AIFailureNotice: cfg.Assistant.FailureNotice,
		StoreTimeout:    cfg.Mongo.Timeout,
	}, logger)
	projectWS := ws.NewProjectWebSocketHandler(hub, gate, messageRouter, audit, ws.SessionOptions{
		SendBuffer:      cfg.WS.SendBuffer,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		PingInterval:    cfg.WS.PingInterval,
		EventsPerSecond: cfg.WS.EventsPerSecond,
		EventBurst:      cfg.WS.EventBurst,
	}, logger)
	messageHandler := handlers.NewMessageHandler(projectRepo, messageRepo, logger)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	// middlewares
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(cfg.ServiceName))
	engine.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	engine.GET("/projects/:project_id/messages", authMiddleware, messageHandler.GetProjectMessages)

	engine.GET("/ws", projectWS.Handle)
	engine.GET("/ws/projects/:project_id", projectWS.Handle)

	engine.GET("/healthz", handlers.Healthz(hub))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(engine, audit, cfg.DebugRoutes)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: engine}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	healthServer := grpchealth.NewHealthServer(cfg.ServiceName)
	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCHealthPort)
	if err != nil {
		logger.Fatal("failed to listen for grpc health", zap.Error(err))
	}
	go func() {
		logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
		if err := healthServer.Serve(lis); err != nil {
			logger.Error("grpc health server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := messageRouter.Close(shutdownCtx); err != nil {
		logger.Warn("router shutdown", zap.Error(err))
	}
	hub.Close()
	healthServer.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
