// Package app assembles the control panel server: the websocket hub, the
// request router with its handlers, the job runners and the fiber app that
// exposes them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/go-playground/validator/v10"
	fws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/internal/config"
	"github.com/makeasinger/controlpanel/internal/handler"
	"github.com/makeasinger/controlpanel/internal/logger"
	"github.com/makeasinger/controlpanel/internal/middleware"
	"github.com/makeasinger/controlpanel/internal/service"
	"github.com/makeasinger/controlpanel/internal/store"
	"github.com/makeasinger/controlpanel/internal/websocket"
	"github.com/makeasinger/controlpanel/internal/worker"
	"github.com/makeasinger/controlpanel/pkg/response"
)

// Server is a fully wired control panel.
type Server struct {
	App     *fiber.App
	Hub     *websocket.Hub
	Router  *handler.Router
	Jobs    *service.JobService
	Logs    *service.LogService
	Process *service.SignalController

	cfg   *config.Config
	redis redis.UniversalClient

	local       *worker.LocalRunner
	asynqClient *asynq.Client
	asynqServer *asynq.Server

	stopHub    context.CancelFunc
	hubDone    chan struct{}
	detachLogs func()
	closeOnce  sync.Once
}

// New wires a server from cfg. redisClient may be nil when redis is disabled.
// The hub runs and the log broadcaster is attached before anything else is
// wired, so every line logged from here on is kept in the log history.
func New(ctx context.Context, cfg *config.Config, redisClient redis.UniversalClient) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		redis:   redisClient,
		Hub:     websocket.NewHub(),
		Process: service.NewSignalController(cfg.Server.ShutdownGrace),
	}
	s.Logs = service.NewLogService(s.Hub, cfg.Log.HistoryFileName)
	s.runHub()
	s.detachLogs = logger.Attach(s.Logs)

	if err := s.wire(ctx, redisClient); err != nil {
		s.detachLogs()
		s.stopHub()
		<-s.hubDone
		return nil, err
	}
	return s, nil
}

func (s *Server) runHub() {
	hubCtx, stop := context.WithCancel(context.Background())
	s.stopHub = stop
	s.hubDone = make(chan struct{})
	go func() {
		defer close(s.hubDone)
		s.Hub.Run(hubCtx)
	}()
}

func (s *Server) wire(ctx context.Context, redisClient redis.UniversalClient) error {
	cfg := s.cfg
	if redisClient != nil {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis not available", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	var (
		jobStore store.JobStore
		envStore store.EnvStore
	)
	if redisClient != nil {
		jobStore = store.NewRedisJobStore(redisClient)
		redisEnv, err := store.NewRedisEnvStore(ctx, redisClient, cfg.Env)
		if err != nil {
			return err
		}
		envStore = redisEnv
	} else {
		jobStore = store.NewMemoryJobStore()
		envStore = store.NewMemoryEnvStore(cfg.Env)
	}

	// Services
	s.Jobs = service.NewJobService(jobStore, s.Hub, service.JobConfig{
		Step:      cfg.Jobs.Step,
		Interval:  cfg.Jobs.Interval,
		Threshold: cfg.Jobs.Threshold,
	})

	switch cfg.Jobs.Backend {
	case config.JobsBackendQueue:
		if redisClient == nil {
			return fmt.Errorf("jobs.backend %q needs redis", cfg.Jobs.Backend)
		}
		s.asynqClient = asynq.NewClientFromRedisClient(redisClient)
		s.asynqServer = worker.NewServer(redisClient, cfg.Jobs.QueueConcurrency)
		s.Jobs.SetRunner(worker.NewQueueRunner(s.asynqClient, cfg.JobTimeout()))
	default:
		s.local = worker.NewLocalRunner(s.Jobs)
		s.Jobs.SetRunner(s.local)
	}

	// Handlers
	s.Router = handler.NewRouter(s.Hub, validator.New())
	handler.NewSystemHandler(s.Process).Register(s.Router)
	handler.NewLogHandler(s.Logs).Register(s.Router)
	handler.NewEnvHandler(service.NewEnvService(envStore)).Register(s.Router)
	handler.NewJobHandler(s.Jobs).Register(s.Router)
	handler.NewAccountHandler(
		service.NewAccountService(cfg.Accounts),
		service.NewSecretService(cfg.Secrets),
		service.NewDeviceService(cfg.Devices),
	).Register(s.Router)

	s.App = s.newFiberApp()
	return nil
}

func (s *Server) newFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          response.ErrorHandler,
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", s.health)

	// WebSocket routes
	rateLimiter := middleware.NewRateLimiter(s.redis)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return response.UpgradeRequired(c)
	}, rateLimiter.ConnectLimit(s.cfg.RateLimit.ConnectPerMin))

	app.Get("/ws", fws.New(func(c *fws.Conn) {
		s.Hub.Serve(c, c.IP(), s.Router.Handle)
	}))

	if dir := s.cfg.Server.StaticDir; dir != "" {
		app.Static("/", dir)
	}
	return app
}

func (s *Server) health(c *fiber.Ctx) error {
	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "up"
		if err := s.redis.Ping(c.Context()).Err(); err != nil {
			redisStatus = "down"
		}
	}
	return response.OK(c, fiber.Map{
		"status":       "ok",
		"sessions":     s.Hub.Count(),
		"jobsInFlight": s.Jobs.InFlight(),
		"redis":        redisStatus,
	})
}

// Start starts the asynq worker server when the queue backend is configured.
func (s *Server) Start() error {
	if s.asynqServer != nil {
		mux := asynq.NewServeMux()
		worker.NewProgressWorker(s.Jobs).Register(mux)
		if err := s.asynqServer.Start(mux); err != nil {
			return fmt.Errorf("failed to start job worker: %w", err)
		}
	}
	return nil
}

// Listen serves HTTP on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	logger.Info("Server starting", zap.String("addr", addr), zap.String("jobs", s.cfg.Jobs.Backend))
	return s.App.Listen(addr)
}

// Serve serves HTTP on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.App.Listener(ln)
}

// Shutdown stops accepting connections, closes every session and abandons
// job drivers that are still running.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.stopHub != nil {
			s.stopHub()
			<-s.hubDone
		}
		if err := s.App.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
		if s.local != nil {
			if err := s.local.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("jobs: %w", err))
			}
		}
		if s.asynqServer != nil {
			s.asynqServer.Shutdown()
		}
		if s.asynqClient != nil {
			if err := s.asynqClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("queue: %w", err))
			}
		}
		if s.detachLogs != nil {
			s.detachLogs()
		}
	})
	return errors.Join(errs...)
}
