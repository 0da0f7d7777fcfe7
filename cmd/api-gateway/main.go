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
	"go.uber.org/zap"

	_ "github.com/noah-isme/metropolis-api/api/swagger"
	"github.com/noah-isme/metropolis-api/internal/handler"
	"github.com/noah-isme/metropolis-api/internal/middleware"
	"github.com/noah-isme/metropolis-api/internal/repository"
	"github.com/noah-isme/metropolis-api/internal/service"
	"github.com/noah-isme/metropolis-api/internal/timetable"
	"github.com/noah-isme/metropolis-api/pkg/broker"
	"github.com/noah-isme/metropolis-api/pkg/cache"
	"github.com/noah-isme/metropolis-api/pkg/config"
	"github.com/noah-isme/metropolis-api/pkg/database"
	"github.com/noah-isme/metropolis-api/pkg/logger"
	"github.com/noah-isme/metropolis-api/pkg/mail"
	corsmiddleware "github.com/noah-isme/metropolis-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/metropolis-api/pkg/middleware/requestid"
)

// @title Metropolis API
// @version 1.0.0
// @description School calendar, rotating day schedules and announcement moderation.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	formats, err := loadFormats(cfg.Timetable)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(cfg.Timetable.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timetable.Timezone, err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.MigrateUp(ctx, db.DB); err != nil {
		return err
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var (
		cacheRepo service.CacheRepository
		counter   service.CounterRepository
		checks    = map[string]handler.Pinger{"database": db}
	)
	if redisClient != nil {
		repo := repository.NewCacheRepository(redisClient, logr)
		defer repo.Close() //nolint:errcheck
		cacheRepo, counter = repo, repo
		checks["redis"] = handler.PingFunc(repo.Ping)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Schedule.CacheTTL, logr, cfg.Schedule.CacheEnabled)

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	termRepo := repository.NewTermRepository(db)
	eventRepo := repository.NewEventRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)

	publisher, err := newPublisher(cfg.Broker, logr)
	if err != nil {
		return err
	}
	defer publisher.Close() //nolint:errcheck

	notifications := service.NewNotificationService(orgRepo, userRepo, newSender(cfg, logr), publisher, metrics,
		service.NotificationOptions{
			SiteURL:     cfg.SiteURL,
			BCC:         cfg.Announcements.ApprovalBCC,
			Workers:     cfg.Notifications.Workers,
			MaxRetries:  cfg.Notifications.MaxRetries,
			RetryDelay:  cfg.Notifications.RetryDelay,
			DisableMail: !cfg.Notifications.Enabled,
		}, logr)
	notifications.Start(ctx)
	defer notifications.Stop()

	terms := service.NewTermService(termRepo, formats, validate, logr)
	schedules := service.NewScheduleService(terms, eventRepo, timetableRepo, formats, cacheSvc, metrics, service.ScheduleOptions{
		Location:       loc,
		StrictVariants: cfg.Timetable.StrictVariants,
		MaxRangeDays:   cfg.Schedule.MaxRangeDays,
	}, logr)

	announcements := service.NewAnnouncementService(announcementRepo, orgRepo, notifications, counter, metrics,
		announcementOptions(cfg.Announcements), validate, logr)

	svc := services{
		auth: service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		}),
		terms:         terms,
		schedules:     schedules,
		events:        service.NewEventService(eventRepo, terms, formats, schedules, validate, logr, loc, cfg.Events.LateStartOrganizationID),
		courses:       service.NewCourseService(courseRepo, terms, formats, validate, logr),
		timetables:    service.NewTimetableService(timetableRepo, courseRepo, terms, formats, validate, logr),
		exports:       service.NewExportService(schedules, terms, logr),
		announcements: announcements,
		metrics:       metrics,
		formats:       formats,
		audit:         auditRepo,
		checks:        checks,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	registerRoutes(r, cfg, svc, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "formats", formats.Names())
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

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadFormats(cfg config.TimetableConfig) (*timetable.Registry, error) {
	if cfg.FormatsFile != "" {
		return timetable.LoadFile(cfg.FormatsFile)
	}
	return timetable.Load(timetable.Defaults())
}

func newPublisher(cfg config.BrokerConfig, logr *zap.Logger) (broker.Publisher, error) {
	if cfg.URL == "" {
		return broker.NewNoopPublisher(logr), nil
	}
	return broker.NewRabbitMQPublisher(cfg.URL, logr)
}

func newSender(cfg *config.Config, logr *zap.Logger) mail.Sender {
	if cfg.Mail.SendGridAPIKey == "" {
		return mail.NewLogSender(logr)
	}
	return mail.NewSendGridSender(cfg.Mail.SendGridAPIKey, cfg.Mail.FromName, cfg.Mail.FromAddress, mail.BreakerConfig{
		FailureThreshold: cfg.Mail.BreakerFailures,
		MaxRequests:      cfg.Mail.BreakerHalfOpen,
		Interval:         cfg.Mail.BreakerResetSpan,
		Timeout:          cfg.Mail.BreakerTimeout,
	}, logr)
}

func announcementOptions(cfg config.AnnouncementsConfig) service.AnnouncementOptions {
	return service.AnnouncementOptions{
		AllowApprovedResubmit: cfg.AllowApprovedResubmit,
		ResendLimit:           cfg.ResendLimit,
		ResendWindow:          cfg.ResendWindow,
	}
}
