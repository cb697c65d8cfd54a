// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"chakula-service/internal/config"
	"chakula-service/internal/db"
	auditHandler "chakula-service/internal/handlers/audit"
	authHandler "chakula-service/internal/handlers/auth"
	sessionHandler "chakula-service/internal/handlers/session"
	wsHandler "chakula-service/internal/handlers/ws"
	"chakula-service/internal/middleware"
	"chakula-service/internal/notify"
	"chakula-service/internal/pkg/hash"
	"chakula-service/internal/pkg/jwt"
	"chakula-service/internal/repository/postgres"
	"chakula-service/internal/repository/redisrepo"
	auditUsecase "chakula-service/internal/service/audit"
	authUsecase "chakula-service/internal/service/auth"
	"chakula-service/internal/service/email"
	"chakula-service/internal/service/retention"
	sessionUsecase "chakula-service/internal/service/session"
	stepupUsecase "chakula-service/internal/service/stepup"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg     config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	cancel  context.CancelFunc
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisCfg := db.RedisConfig{
		ClusterMode: false,
		Addresses:   []string{s.cfg.RedisAddr},
		Password:    s.cfg.RedisPass,
		DB:          0,
		PoolSize:    10,
	}
	redisClient, err := db.NewRedisClient(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("[REDIS] ✅ Connected successfully")

	// ----- JWT Manager & Hasher -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}
	hasher := hash.NewHasher(s.cfg.HashKey)

	// ----- Email -----
	emailSender := email.NewEmailSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
	)

	// ----- Repositories -----
	sessionRepo := postgres.NewSessionRepository(pool)
	stepupRepo := postgres.NewStepUpRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	revocationRepo := redisrepo.NewRevocationRepository(redisClient)
	rateLimiter := redisrepo.NewRateLimiter(redisClient)

	// ----- Notify Hub -----
	hub := notify.NewHub(logger)

	// ----- Services -----
	ledger := auditUsecase.NewLedger(auditRepo, logger)
	sessionStore := sessionUsecase.NewStore(
		sessionRepo,
		ledger,
		revocationRepo,
		hub,
		jwtManager,
		hasher,
		s.cfg.MaxSessions,
		logger,
	)
	stepupVerifier := stepupUsecase.NewVerifier(
		stepupRepo,
		ledger,
		emailSender,
		rateLimiter,
		hasher,
		s.cfg.StepUpCodeTTL,
		s.cfg.StepUpMaxAttempts,
		logger,
	)
	authService := authUsecase.NewService(
		userRepo,
		sessionStore,
		stepupVerifier,
		ledger,
		revocationRepo,
		rateLimiter,
		jwtManager,
		hasher,
		logger,
	)

	// ----- Retention Sweeper -----
	sweeper := retention.NewSweeper(
		sessionRepo,
		stepupRepo,
		ledger,
		time.Hour,
		time.Duration(s.cfg.AuditRetentionDays)*24*time.Hour,
		logger,
	)
	go sweeper.Run(ctx)

	// ----- Handlers -----
	authHandlerInst := authHandler.NewAuthHandler(authService, logger)
	sessionHandlerInst := sessionHandler.NewSessionHandler(sessionStore, logger)
	auditHandlerInst := auditHandler.NewAuditHandler(ledger, logger)
	wsHandlerInst := wsHandler.NewWSHandler(hub, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(authService)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		AuthHandler:    authHandlerInst,
		SessionHandler: sessionHandlerInst,
		AuditHandler:   auditHandlerInst,
		WSHandler:      wsHandlerInst,
		AuthMiddleware: authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Stop cancels background workers. The HTTP listener dies with the process.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
