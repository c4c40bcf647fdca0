package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"peoplegrid_backend/internal/config"
	"peoplegrid_backend/internal/controller"
	"peoplegrid_backend/internal/repository"
	"peoplegrid_backend/internal/service"
	"peoplegrid_backend/pkg/configwatcher"
	"peoplegrid_backend/pkg/database"
	"peoplegrid_backend/pkg/logger"
	"peoplegrid_backend/pkg/monitoring"
	"peoplegrid_backend/pkg/security"
	"peoplegrid_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services        *services
	tracer          *sdktrace.TracerProvider
	ctx             context.Context
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	friendship *repository.FriendshipRepository
	chat       *repository.ChatRepository
	post       *repository.PostRepository
	comment    *repository.CommentRepository
}

type services struct {
	directory  *service.SessionDirectory
	presence   *service.PresenceService
	relay      *service.MessageRelay
	friendship *service.FriendshipService
	feed       *service.FeedService
	user       *service.UserService
	storage    *service.StorageService
	chatHub    *service.ChatHub
}

type controllers struct {
	user       *controller.UserController
	friendship *controller.FriendshipController
	chat       *controller.ChatController
	feed       *controller.FeedController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		friendship: repository.NewFriendshipRepository(db, rdb),
		chat:       repository.NewChatRepository(db),
		post:       repository.NewPostRepository(db),
		comment:    repository.NewCommentRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.directory = service.NewSessionDirectory()
	s.user = service.NewUserService(repos.user)
	s.storage = service.NewStorageService(&cfg.Storage)
	s.friendship = service.NewFriendshipService(repos.friendship, repos.user, s.directory)
	s.feed = service.NewFeedService(repos.post, repos.comment)
	s.presence = service.NewPresenceService(s.directory, repos.friendship, repos.user, cfg.Chat.PushTimeout)
	s.relay = service.NewMessageRelay(repos.chat, s.friendship, s.directory, cfg.Chat)
	s.chatHub = service.NewChatHub(s.presence, s.relay, cfg.Chat)

	// 推送超时支持热更新
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.presence.SetPushTimeout(newCfg.Chat.PushTimeout)
		s.relay.SetPushTimeout(newCfg.Chat.PushTimeout)
	})

	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		user:       controller.NewUserController(s.user, s.storage),
		friendship: controller.NewFriendshipController(s.friendship),
		chat:       controller.NewChatController(s.relay, s.chatHub),
		feed:       controller.NewFeedController(s.feed, s.storage),
		health:     controller.NewHealthController(a.DB, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.ctx, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// NewApp 初始化所有依赖；MigrateOnly 时只完成迁移，不构建路由
func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully", zap.String("mode", cfg.Server.Mode))

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}, nil
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		ctx:    ctx,
		cancel: cancel,
	}

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			cancel()
			return nil, err
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db, rdb)
	app.services = app.initServices(repos, cfg)
	controllers := app.initControllers(app.services)

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetMode(newCfg.Server.Mode)
	})

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, app.services, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app, nil
}

// WatchConfig 在后台监听配置文件，变更后依次调用已注册的回调
func (a *App) WatchConfig(configDir string) {
	path := filepath.Join(configDir, "config.yaml")
	go func() {
		err := configwatcher.WatchConfig(a.ctx, path, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()
}

func (a *App) Run() error {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		a.shutdownBackground()
		return err
	}
	logger.Log.Info("Shutting down server...")

	// 先断开所有 websocket，好友会收到离线通知
	a.services.chatHub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)
	a.shutdownBackground()
	if err != nil {
		return err
	}

	logger.Log.Info("Server exiting")
	return nil
}

func (a *App) shutdownBackground() {
	a.cancel()
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
