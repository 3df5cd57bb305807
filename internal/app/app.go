package app

import (
	"context"
	"exam_hub_backend/internal/config"
	"exam_hub_backend/internal/controller"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/internal/service"
	"exam_hub_backend/pkg/database"
	"exam_hub_backend/pkg/jobs"
	"exam_hub_backend/pkg/logger"
	"exam_hub_backend/pkg/monitoring"
	"exam_hub_backend/pkg/security"
	"exam_hub_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client
	Runner *jobs.Runner
}

type repositories struct {
	user       *repository.UserRepository
	exam       *repository.ExamRepository
	assignment *repository.AssignmentRepository
	analysis   *repository.AnalysisRepository
	material   *repository.MaterialRepository
}

type services struct {
	auth           *service.AuthService
	storage        *service.StorageService
	ai             *service.AIService
	exam           *service.ExamService
	assignment     *service.AssignmentService
	analysis       *service.AnalysisService
	remediation    *service.RemediationService
	postAssessment *service.PostAssessmentService
	material       *service.MaterialService
}

type controllers struct {
	auth       *controller.AuthController
	exam       *controller.ExamController
	assignment *controller.AssignmentController
	material   *controller.MaterialController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		exam:       repository.NewExamRepository(db),
		assignment: repository.NewAssignmentRepository(db),
		analysis:   repository.NewAnalysisRepository(db),
		material:   repository.NewMaterialRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client, runner *jobs.Runner) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.ai = service.NewAIService(cfg.AI)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.exam = service.NewExamService(repos.exam, repos.assignment, repos.user)

	s.analysis = service.NewAnalysisService(repos.analysis, s.ai)
	s.remediation = service.NewRemediationService(repos.exam, repos.assignment, s.ai)
	s.postAssessment = service.NewPostAssessmentService(repos.assignment, s.analysis, s.remediation, runner, rdb)

	s.assignment = service.NewAssignmentService(repos.assignment, repos.exam, s.postAssessment)
	s.material = service.NewMaterialService(repos.material, s.storage, s.ai, runner)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		exam:       controller.NewExamController(s.exam),
		assignment: controller.NewAssignmentController(s.assignment, s.analysis),
		material:   controller.NewMaterialController(s.material),
		health:     controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 10000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// release 模式默认不自动迁移，需要 -migrate 显式开启
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
			log.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Log.Info("Database migration completed")
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	runner := jobs.NewRunner(cfg.Jobs.Workers, cfg.Jobs.QueueSize, logger.Log)

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Runner: runner,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb, runner)
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("exam-hub", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, os.ModePerm)
		}
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// 不再接收新请求之后，排干后台任务队列
	a.Runner.Stop()

	log.Println("Server exiting")
}
