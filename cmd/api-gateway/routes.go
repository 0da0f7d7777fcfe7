package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/handler"
	"github.com/noah-isme/metropolis-api/internal/middleware"
	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/service"
	"github.com/noah-isme/metropolis-api/internal/timetable"
	"github.com/noah-isme/metropolis-api/pkg/config"
)

type services struct {
	auth          *service.AuthService
	terms         *service.TermService
	schedules     *service.ScheduleService
	events        *service.EventService
	courses       *service.CourseService
	timetables    *service.TimetableService
	exports       *service.ExportService
	announcements *service.AnnouncementService
	metrics       *service.MetricsService
	formats       *timetable.Registry
	audit         middleware.AuditRecorder
	checks        map[string]handler.Pinger
}

func registerRoutes(r *gin.Engine, cfg *config.Config, svc services, logr *zap.Logger) {
	metricsHandler := handler.NewMetricsHandler(svc.metrics, svc.checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(svc.auth)
	termHandler := handler.NewTermHandler(svc.terms, svc.schedules)
	formatHandler := handler.NewTimetableFormatHandler(svc.formats)
	scheduleHandler := handler.NewScheduleHandler(svc.schedules, svc.exports)
	courseHandler := handler.NewCourseHandler(svc.courses)
	eventHandler := handler.NewEventHandler(svc.events, svc.schedules)
	timetableHandler := handler.NewTimetableHandler(svc.timetables)
	announcementHandler := handler.NewAnnouncementHandler(svc.announcements)

	requireAuth := middleware.JWT(svc.auth)
	optionalAuth := middleware.OptionalJWT(svc.auth)
	staff := middleware.RequireStaff()
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(svc.audit, logr, action, resource)
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", requireAuth, authHandler.Me)

	api.GET("/timetable-formats", formatHandler.List)
	api.GET("/timetable-formats/:name", formatHandler.Get)

	terms := api.Group("/terms")
	terms.GET("", termHandler.List)
	terms.GET("/current", termHandler.Current)
	terms.GET("/:id", termHandler.Get)
	terms.POST("", requireAuth, staff, audit(models.AuditActionTermCreate, "term"), termHandler.Create)
	terms.PUT("/:id", requireAuth, staff, audit(models.AuditActionTermUpdate, "term"), termHandler.Update)
	terms.DELETE("/:id", requireAuth, staff, audit(models.AuditActionTermDelete, "term"), termHandler.Delete)
	terms.GET("/:id/schedule", scheduleHandler.Day)
	terms.GET("/:id/schedule/export", scheduleHandler.Export)
	terms.GET("/:id/day-number", scheduleHandler.DayNumber)
	terms.GET("/:id/courses", courseHandler.List)
	terms.POST("/:id/courses", requireAuth, audit(models.AuditActionCourseWrite, "course"), courseHandler.Create)

	api.GET("/schedule/today", scheduleHandler.Today)

	courses := api.Group("/courses", requireAuth)
	courses.PUT("/:id", audit(models.AuditActionCourseWrite, "course"), courseHandler.Update)
	courses.DELETE("/:id", audit(models.AuditActionCourseDelete, "course"), courseHandler.Delete)

	events := api.Group("/events")
	events.GET("", optionalAuth, eventHandler.List)
	events.GET("/:id", optionalAuth, eventHandler.Get)
	events.POST("", requireAuth, staff, audit(models.AuditActionEventWrite, "event"), eventHandler.Create)
	events.POST("/late-start", requireAuth, staff, audit(models.AuditActionEventWrite, "event"), eventHandler.LateStart)
	events.PUT("/:id", requireAuth, staff, audit(models.AuditActionEventWrite, "event"), eventHandler.Update)
	events.DELETE("/:id", requireAuth, staff, audit(models.AuditActionEventDelete, "event"), eventHandler.Delete)

	me := api.Group("/me", requireAuth)
	me.GET("/schedule", scheduleHandler.Mine)
	me.GET("/timetables/:termId", timetableHandler.Get)
	me.PUT("/timetables/:termId", timetableHandler.Replace)

	announcements := api.Group("/announcements")
	announcements.GET("/feed", announcementHandler.Feed)
	moderated := announcements.Group("", requireAuth)
	moderated.GET("", announcementHandler.List)
	moderated.GET("/:id", announcementHandler.Get)
	moderated.GET("/:id/fields", announcementHandler.Fields)
	moderated.POST("", audit(models.AuditActionAnnouncementWrite, "announcement"), announcementHandler.Create)
	moderated.PUT("/:id", audit(models.AuditActionAnnouncementWrite, "announcement"), announcementHandler.Update)
	moderated.DELETE("/:id", audit(models.AuditActionAnnouncementDelete, "announcement"), announcementHandler.Delete)
	moderated.POST("/:id/resend-approval", announcementHandler.ResendApproval)
}
