package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/alillje/lillje-consulting-auth-service/api/swagger"
	"github.com/alillje/lillje-consulting-auth-service/internal/handler"
	"github.com/alillje/lillje-consulting-auth-service/internal/middleware"
	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	"github.com/alillje/lillje-consulting-auth-service/internal/repository"
	"github.com/alillje/lillje-consulting-auth-service/internal/service"
	"github.com/alillje/lillje-consulting-auth-service/pkg/cache"
	"github.com/alillje/lillje-consulting-auth-service/pkg/config"
	"github.com/alillje/lillje-consulting-auth-service/pkg/database"
	"github.com/alillje/lillje-consulting-auth-service/pkg/logger"
	corsmiddleware "github.com/alillje/lillje-consulting-auth-service/pkg/middleware/cors"
	reqidmiddleware "github.com/alillje/lillje-consulting-auth-service/pkg/middleware/requestid"
	"github.com/alillje/lillje-consulting-auth-service/pkg/token"
)

// @title Lillje Consulting Auth Service
// @version 1.0.0
// @description Credential issuance with rotating refresh tokens and reuse detection
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Store.Backend == config.StoreRedis {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close() //nolint:errcheck
	}

	signer, err := buildSigner(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build token signer", "error", err)
	}

	metrics := service.NewMetricsService()
	userRepo := repository.NewUserRepository(db)

	audit := service.NewAuditRecorder(userRepo, logr, service.AuditRecorderConfig{
		Enabled:    cfg.Audit.Enabled,
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
	})
	audit.Start(ctx)
	defer audit.Stop()
	metrics.TrackAuditDrops(audit.Dropped)

	engine := service.NewRotationEngine(newTokenStore(cfg, db, redisClient), signer, metrics, logr, service.RotationConfig{
		RecordTTL:     cfg.Token.RecordTTL,
		SweepInterval: cfg.Store.SweepInterval,
	})
	engine.StartSweep(ctx)

	hasher := service.NewBcryptHasher(0)
	directory := service.NewDirectory(userRepo, hasher, logr)

	authService := service.NewAuthService(directory, engine, audit, metrics, validator.New(), logr, service.AuthConfig{
		AccessTTL:   signer.AccessTTL(),
		Diagnostics: cfg.Env != config.EnvProduction,
	})
	userService := service.NewUserService(userRepo, hasher, audit, validator.New(), logr)

	router := buildRouter(cfg, logr, signer, metrics, audit, db, redisClient, authService, userService)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env, "store", storeBackend(cfg))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("shutdown incomplete", "error", err)
	}
}

// buildSigner loads key material from configuration. Outside production an
// absent RSA pair is generated on the fly so the service can start with an
// empty env; production refuses to run on generated keys.
func buildSigner(cfg *config.Config, logr *zap.Logger) (*token.Signer, error) {
	privateKey := cfg.Token.AccessPrivateKey
	publicKey := cfg.Token.AccessPublicKey

	if privateKey == "" || publicKey == "" {
		if cfg.Env == config.EnvProduction {
			return nil, errors.New("access token key pair is required in production")
		}
		var err error
		privateKey, publicKey, err = token.GenerateKeyPair(2048)
		if err != nil {
			return nil, fmt.Errorf("generate dev key pair: %w", err)
		}
		logr.Sugar().Warnw("generated ephemeral access-token keys; tokens will not survive restarts")
	}

	return token.NewSigner(token.Config{
		AccessPrivateKeyPEM: privateKey,
		AccessPublicKeyPEM:  publicKey,
		RefreshSecret:       cfg.Token.RefreshSecret,
		AccessTTL:           cfg.Token.AccessTTL,
		RefreshTTL:          cfg.Token.RefreshTTL,
		Issuer:              cfg.Token.Issuer,
	})
}

// newTokenStore selects the refresh-record backend.
func newTokenStore(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client) service.TokenStore {
	if cfg.Store.Backend == config.StoreRedis {
		return repository.NewRedisTokenRepository(redisClient)
	}
	return repository.NewTokenRepository(db)
}

func storeBackend(cfg *config.Config) string {
	if cfg.Store.Backend == config.StoreRedis {
		return config.StoreRedis
	}
	return config.StorePostgres
}

func buildRouter(
	cfg *config.Config,
	logr *zap.Logger,
	signer *token.Signer,
	metrics *service.MetricsService,
	audit *service.AuditRecorder,
	db *sqlx.DB,
	redisClient *redis.Client,
	authService *service.AuthService,
	userService *service.UserService,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	opsHandler := handler.NewMetricsHandler(metrics, db, redisClient)

	r.GET("/health", opsHandler.Health)
	r.GET("/ready", opsHandler.Ready)
	r.GET("/metrics", opsHandler.Prometheus)

	r.POST("/login", authHandler.Login)
	r.POST("/refresh", authHandler.Refresh)
	r.POST("/logout", authHandler.Logout)
	r.POST("/register", userHandler.Register)

	v1 := r.Group("/api/v1", middleware.JWT(signer))
	v1.GET("/me", authHandler.Me)
	v1.GET("/users", middleware.AdminOnly(), middleware.Audit(audit, models.AuditActionUserList), userHandler.List)
	v1.GET("/users/:id", middleware.AdminOrSelf(), userHandler.Get)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
