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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/classroom-api/api/swagger"
	"github.com/noah-isme/classroom-api/internal/handler"
	internalmiddleware "github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/repository"
	"github.com/noah-isme/classroom-api/internal/service"
	"github.com/noah-isme/classroom-api/pkg/cache"
	"github.com/noah-isme/classroom-api/pkg/config"
	"github.com/noah-isme/classroom-api/pkg/database"
	"github.com/noah-isme/classroom-api/pkg/events"
	"github.com/noah-isme/classroom-api/pkg/export"
	"github.com/noah-isme/classroom-api/pkg/jobs"
	"github.com/noah-isme/classroom-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/classroom-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/classroom-api/pkg/middleware/requestid"
)

// @title Classroom API
// @version 1.0.0
// @description Quiz scheduling, result grading and class timetables for school staff.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

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
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient := connectRedis(ctx, cfg, logr)
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	metrics := service.NewMetricsService()

	var cacheClient redis.UniversalClient
	if redisClient != nil && cfg.Cache.Enabled {
		cacheClient = redisClient
	}
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(cacheClient, logr), metrics, logr, cfg.Cache)

	var eventClient *redis.Client
	if cfg.Events.Enabled {
		eventClient = redisClient
	}
	bus := events.NewBus(eventClient, cfg.Events.Channel, logr)

	quizRepo := repository.NewQuizRepository(db)
	resultRepo := repository.NewQuizResultRepository(db)
	validate := service.NewRequestValidator()

	fanout := service.NewResultFanout(quizRepo, resultRepo, repository.NewStudentRepository(db), cacheSvc, bus, metrics, logr)
	fanoutQueue := jobs.NewQueue("quiz-result-fanout", fanout.Handle, jobs.QueueConfig{
		Workers:    cfg.Quizzes.FanoutWorkers,
		MaxRetries: cfg.Quizzes.FanoutRetries,
		RetryDelay: cfg.Quizzes.FanoutRetryDelay,
		OnGiveUp: func(job jobs.Job, err error) {
			metrics.IncFanoutAbandoned()
			logr.Error("quiz result fan-out abandoned, sync the quiz results manually", zap.String("quiz_id", job.ID), zap.Error(err))
		},
		Logger: logr,
	})
	fanoutQueue.Start(ctx)
	defer fanoutQueue.Stop()

	quizSvc := service.NewQuizService(service.QuizServiceParams{
		Quizzes:       quizRepo,
		Results:       resultRepo,
		Subjects:      repository.NewSubjectRepository(db),
		Classes:       repository.NewClassRepository(db),
		ClassSubjects: repository.NewClassSubjectRepository(db),
		Enrollments:   repository.NewTeacherEnrollmentRepository(db),
		Fanout:        fanout,
		Queue:         fanoutQueue,
		Cache:         cacheSvc,
		Events:        bus,
		Exporter:      service.NewResultSheetExporter(export.NewCSVExporter(), export.NewPDFExporter()),
		Metrics:       metrics,
		Validator:     validate,
		Logger:        logr,
		Config:        service.QuizServiceConfig{CacheTTL: cfg.Cache.TTL, ExportsEnabled: cfg.Exports.Enabled},
	})
	timetableSvc := service.NewTimetableService(repository.NewTimetableRepository(db), service.NewTimetableValidator(cfg.Timetable.Days), bus, metrics, validate, logr)
	authSvc := service.NewAuthService(repository.NewUserRepository(db), validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	if cfg.Events.Enabled {
		go func() {
			if err := bus.Listen(ctx, quizSvc.HandleChange); err != nil {
				logr.Error("change listener stopped", zap.Error(err))
			}
		}()
	}

	router := newRouter(cfg, logr, routerDeps{
		auth:      handler.NewAuthHandler(authSvc),
		quizzes:   handler.NewQuizHandler(quizSvc),
		timetable: handler.NewTimetableHandler(timetableSvc),
		metrics:   handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient)),
		tokens:    authSvc,
		observer:  metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// connectRedis returns nil when neither the cache nor change events need Redis, or when Redis is
// unreachable; both features then degrade to no-ops.
func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) *redis.Client {
	if !cfg.Cache.Enabled && !cfg.Events.Enabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching and change events disabled", zap.Error(err))
		return nil
	}
	return client
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.DependencyCheck {
	checks := map[string]handler.DependencyCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

type routerDeps struct {
	auth      *handler.AuthHandler
	quizzes   *handler.QuizHandler
	timetable *handler.TimetableHandler
	metrics   *handler.MetricsHandler
	tokens    internalmiddleware.TokenValidator
	observer  *service.MetricsService
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(deps.observer))

	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.ResponseMeta())
	api.POST("/auth/login", deps.auth.Login)

	staff := api.Group("")
	staff.Use(internalmiddleware.JWT(deps.tokens), internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher))

	staff.GET("/auth/me", deps.auth.Me)

	staff.GET("/classes", deps.quizzes.ClassOptions)
	staff.GET("/classes/:id/subjects", deps.quizzes.SubjectOptions)

	staff.GET("/quizzes", deps.quizzes.List)
	staff.POST("/quizzes", deps.quizzes.Create)
	staff.PATCH("/quizzes/:id/status", deps.quizzes.UpdateStatus)
	staff.POST("/quizzes/:id/results/sync", deps.quizzes.SyncResults)

	staff.GET("/quiz-results", deps.quizzes.Results)
	staff.GET("/quiz-results/export", deps.quizzes.Export)
	staff.PATCH("/quiz-results/:id/grade", deps.quizzes.Grade)

	staff.POST("/timetable/validate", deps.timetable.Validate)
	staff.GET("/timetable/classes/:id", deps.timetable.ListByClass)
	staff.GET("/timetable/me", deps.timetable.ListMine)
	staff.POST("/timetable", deps.timetable.Create)
	staff.PUT("/timetable/:id", deps.timetable.Update)
	staff.DELETE("/timetable/:id", deps.timetable.Delete)

	return r
}
