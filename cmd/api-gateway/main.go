package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campuskit/academics-api/api/swagger"
	"github.com/campuskit/academics-api/internal/handler"
	"github.com/campuskit/academics-api/internal/middleware"
	"github.com/campuskit/academics-api/internal/models"
	"github.com/campuskit/academics-api/internal/repository"
	"github.com/campuskit/academics-api/internal/service"
	"github.com/campuskit/academics-api/pkg/cache"
	"github.com/campuskit/academics-api/pkg/config"
	"github.com/campuskit/academics-api/pkg/database"
	"github.com/campuskit/academics-api/pkg/jobs"
	"github.com/campuskit/academics-api/pkg/logger"
	corsmiddleware "github.com/campuskit/academics-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuskit/academics-api/pkg/middleware/requestid"
)

// @title CampusKit Academics API
// @version 1.0.0
// @description Academic catalog, enrollment and bulk reconciliation service
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	cacheSvc := service.NewCacheService(nil, metricsSvc, cfg.Cache.DefaultTTL, logr, false)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.DefaultTTL, logr, true)
		}
	}

	programRepo := repository.NewProgramRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	classRepo := repository.NewClassRepository(db)
	userRepo := repository.NewUserRepository(db)

	creditSvc := service.NewCreditService(programRepo, metricsSvc, logr)
	creditQueue := jobs.NewQueue("credits", creditSvc.ProcessTask, jobs.QueueConfig{
		Workers:       cfg.Credits.Workers,
		BufferSize:    cfg.Credits.BufferSize,
		MaxRetries:    cfg.Credits.MaxRetries,
		RetryDelay:    cfg.Credits.RetryDelay,
		Logger:        logr,
		OnDepthChange: metricsSvc.SetQueueDepth,
	})
	creditSvc.Bind(creditQueue)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	creditQueue.Start(queueCtx)
	defer func() {
		stopQueue()
		creditQueue.Stop()
	}()

	audience := ""
	if len(cfg.JWT.Audience) > 0 {
		audience = cfg.JWT.Audience[0]
	}
	authSvc := service.NewAuthService(userRepo, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: audience,
	}, logr)

	programSvc := service.NewProgramService(programRepo, courseRepo, creditSvc, cacheSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, creditSvc, cacheSvc, validate, logr)
	periodSvc := service.NewPeriodService(periodRepo, cacheSvc, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, courseRepo, periodRepo, userRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, sectionRepo, userRepo, validate, logr)
	gradeSvc := service.NewGradeService(enrollmentRepo, courseRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, programRepo, validate, logr)
	importSvc := service.NewImportService(programRepo, courseRepo, periodRepo, userRepo, classRepo, service.ImportLimits{
		MaxBatchSize:   cfg.Importer.MaxBatchSize,
		MaxStudentsPer: cfg.Importer.MaxStudentsPer,
	}, metricsSvc, logr)
	exportSvc := service.NewExportService(enrollmentRepo, sectionRepo, userRepo, logr)

	programHandler := handler.NewProgramHandler(programSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	periodHandler := handler.NewPeriodHandler(periodSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	userHandler := handler.NewUserHandler(userSvc)
	importHandler := handler.NewImportHandler(importSvc, exportSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleProfessor)

	programs := api.Group("/programs")
	{
		programs.GET("", programHandler.List)
		programs.GET("/:id", programHandler.Get)
		programs.POST("", admin, programHandler.Create)
		programs.PUT("/:id", admin, programHandler.Update)
		programs.POST("/:id/deactivate", admin, programHandler.Deactivate)
		programs.POST("/:id/reactivate", admin, programHandler.Reactivate)
		programs.GET("/:id/courses", programHandler.ListCourses)
		programs.POST("/:id/courses", admin, programHandler.AttachCourse)
		programs.PUT("/:id/courses/:associationId", admin, programHandler.UpdateAssociation)
		programs.DELETE("/:id/courses/:associationId", admin, programHandler.DetachCourse)
		programs.POST("/:id/recompute-credits", admin, programHandler.RecomputeCredits)
	}

	courses := api.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", admin, courseHandler.Create)
		courses.PUT("/:id", admin, courseHandler.Update)
		courses.POST("/:id/deactivate", admin, courseHandler.Deactivate)
		courses.POST("/:id/reactivate", admin, courseHandler.Reactivate)
	}

	periods := api.Group("/periods")
	{
		periods.GET("", periodHandler.List)
		periods.GET("/current", periodHandler.GetCurrent)
		periods.GET("/:id", periodHandler.Get)
		periods.POST("", admin, periodHandler.Create)
		periods.PUT("/:id", admin, periodHandler.Update)
		periods.POST("/:id/advance", admin, periodHandler.Advance)
		periods.POST("/:id/set-current", admin, periodHandler.SetCurrent)
		periods.DELETE("/:id", admin, periodHandler.Delete)
	}

	sections := api.Group("/sections")
	{
		sections.GET("", sectionHandler.List)
		sections.GET("/:id", sectionHandler.Get)
		sections.POST("", admin, sectionHandler.Create)
		sections.PUT("/:id", admin, sectionHandler.Update)
		sections.PUT("/:id/status", admin, sectionHandler.UpdateStatus)
		sections.POST("/:id/submit-grades", staff, sectionHandler.SubmitGrades)
		sections.POST("/:id/deactivate", admin, sectionHandler.Deactivate)
		sections.POST("/:id/reactivate", admin, sectionHandler.Reactivate)
		if cfg.Export.Enabled {
			sections.GET("/:id/grade-sheet.pdf", staff, exportHandler.GradeSheet)
		}
	}

	enrollments := api.Group("/enrollments")
	{
		enrollments.GET("", staff, enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), enrollmentHandler.Enroll)
		enrollments.POST("/force", admin, enrollmentHandler.ForceEnroll)
		enrollments.PUT("/:id/status", staff, enrollmentHandler.UpdateStatus)
		enrollments.PUT("/:id/grade", staff, gradeHandler.SetGrade)
		enrollments.DELETE("/:id", admin, enrollmentHandler.Delete)
	}

	api.POST("/grades/preview", staff, gradeHandler.Preview)

	api.POST("/import/classes", admin, importHandler.Run)
	api.POST("/import/errors.csv", admin, importHandler.ExportErrors)

	users := api.Group("/users")
	{
		users.GET("/me", userHandler.Me)
		users.GET("", staff, userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleProfessor), "SELF"), userHandler.Get)
		users.POST("", admin, userHandler.Create)
		users.PUT("/:id", admin, userHandler.Update)
		users.POST("/:id/deactivate", admin, userHandler.Deactivate)
		users.POST("/:id/reactivate", admin, userHandler.Reactivate)
	}

	if cfg.Export.Enabled {
		api.GET("/students/:id/transcript.pdf", middleware.RBAC(string(models.RoleAdmin), string(models.RoleProfessor), "SELF"), exportHandler.Transcript)
	}

	api.GET("/metrics/snapshot", admin, metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
