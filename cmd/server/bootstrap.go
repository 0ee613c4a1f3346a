package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/api"
	"github.com/atelierhq/atelier/internal/app"
	"github.com/atelierhq/atelier/internal/app/maintenance"
	iauth "github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/auth/mfa"
	"github.com/atelierhq/atelier/internal/cache"
	"github.com/atelierhq/atelier/internal/database"
	"github.com/atelierhq/atelier/internal/middleware"
	"github.com/atelierhq/atelier/internal/payments"
	"github.com/atelierhq/atelier/internal/realtime"
	"github.com/atelierhq/atelier/internal/services"
	"github.com/atelierhq/atelier/internal/storage"
	"github.com/atelierhq/atelier/pkg/logger"
	"github.com/atelierhq/atelier/pkg/mail"
)

// runtimeStack bundles long-lived components used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   *cache.RedisStore
	Hub     *realtime.Hub
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	var store cache.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		redisStore, redisErr := cache.NewRedisStore(cfg.Cache.RedisStoreConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(redisErr))
		} else {
			stack.Redis = redisStore
			store = redisStore
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewSessionCache(store)

	sessionSvc, err := iauth.NewSessionService(stack.DB, jwtSvc, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	mfaKey, err := app.DecodeKey(cfg.Auth.MFA.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode mfa encryption key: %w", err)
	}

	totpSvc, err := mfa.NewTOTPService(stack.DB, mfaKey, mfa.WithIssuer(cfg.Auth.MFA.Issuer))
	if err != nil {
		return nil, fmt.Errorf("initialise totp service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	stack.Hub = realtime.NewHub()

	otpSvc, err := services.NewOTPService(stack.DB, mailer,
		services.WithOTPExpiry(cfg.Auth.OTP.TTL),
		services.WithOTPDigits(cfg.Auth.OTP.Digits),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise otp service: %w", err)
	}

	userSvc, err := services.NewUserService(stack.DB, otpSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	admins, err := services.NewAdminDirectory(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise admin directory: %w", err)
	}

	notificationSvc, err := services.NewNotificationService(stack.DB, admins, stack.Hub, mailer)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	projectSvc, err := services.NewProjectService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise project service: %w", err)
	}

	var presigner *storage.Presigner
	if cfg.Storage.Enabled {
		presigner, err = storage.NewPresigner(storage.Config{
			Endpoint:      cfg.Storage.Endpoint,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			UseSSL:        cfg.Storage.UseSSL,
			PresignExpiry: cfg.Storage.PresignExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise object storage: %w", err)
		}
	}

	fileSvc, err := services.NewFileService(stack.DB, projectSvc, presigner)
	if err != nil {
		return nil, fmt.Errorf("initialise file service: %w", err)
	}

	messageSvc, err := services.NewMessageService(stack.DB, projectSvc, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise message service: %w", err)
	}

	ticketSvc, err := services.NewTicketService(stack.DB, notificationSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise ticket service: %w", err)
	}

	processor, err := payments.NewProcessor(payments.Config{
		SecretKey:     cfg.Payments.SecretKey,
		WebhookSecret: cfg.Payments.WebhookSecret,
		SuccessURL:    cfg.Payments.SuccessURL,
		CancelURL:     cfg.Payments.CancelURL,
	})
	if err != nil {
		if !errors.Is(err, payments.ErrNotConfigured) {
			return nil, fmt.Errorf("initialise payment processor: %w", err)
		}
		log.Info("payments disabled; checkout and webhook handling are inert")
	}

	invoiceSvc, err := services.NewInvoiceService(stack.DB, projectSvc, processor, notificationSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise invoice service: %w", err)
	}

	talkSvc, err := services.NewTalkService(stack.DB, admins, notificationSvc, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise talk service: %w", err)
	}

	dashboardSvc, err := services.NewDashboardService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise dashboard service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(sessionSvc, otpSvc, notificationSvc)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	rateStore := middleware.NewCacheRateStore(store)

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:            stack.DB,
		Config:        cfg,
		JWT:           jwtSvc,
		Sessions:      sessionSvc,
		TOTP:          totpSvc,
		Hub:           stack.Hub,
		RateStore:     rateStore,
		Users:         userSvc,
		Projects:      projectSvc,
		Files:         fileSvc,
		Messages:      messageSvc,
		Tickets:       ticketSvc,
		Invoices:      invoiceSvc,
		Talks:         talkSvc,
		Notifications: notificationSvc,
		Dashboard:     dashboardSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if err := s.Cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
