// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"egaku/internal/config"
	"egaku/internal/database"
	"egaku/internal/featureflags"
	"egaku/internal/mail"
	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/moderation"
	"egaku/internal/notifications"
	"egaku/internal/repository"
	"egaku/internal/service"
	"egaku/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo repository.UserRepository
	subRepo  repository.SubmissionRepository

	store      storage.Store
	mailer     service.CodeMailer
	censor     *moderation.Client
	processor  *moderation.Processor
	dispatcher moderation.Dispatcher
	worker     *moderation.Worker
	amqpConn   *amqp.Connection

	notifier     *notifications.Notifier
	hub          *notifications.Hub
	featureFlags *featureflags.Manager

	authService       *service.AuthService
	codeService       *service.VerificationService
	userService       *service.UserService
	socialService     *service.SocialService
	feedService       *service.FeedService
	submissionService *service.SubmissionService
	commentService    *service.CommentService
	uploadService     *service.UploadService
	summaryService    *service.SummaryService
	ticketService     *service.TicketService
}

// Option overrides a dependency that NewServerWithDeps would otherwise build from config.
type Option func(*Server)

// WithStore replaces the upload store.
func WithStore(st storage.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithMailer replaces the verification code mailer.
func WithMailer(m service.CodeMailer) Option {
	return func(s *Server) { s.mailer = m }
}

// WithDispatcher replaces the moderation dispatcher.
func WithDispatcher(d moderation.Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("egaku-api"),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
	}
	for _, opt := range opts {
		opt(server)
	}

	if err := server.initInfrastructure(); err != nil {
		return nil, err
	}

	users := repository.NewUserRepository(db)
	subs := repository.NewSubmissionRepository(db)
	follows := repository.NewFollowRepository(db)
	server.userRepo = users
	server.subRepo = subs

	// A nil interface keeps moderation and summaries off until credentials are configured.
	var censor moderation.Censor
	var summarizer service.Summarizer
	if server.censor != nil {
		censor = server.censor
		summarizer = server.censor
	}

	server.processor = moderation.NewProcessor(subs, censor, server.featureFlags, server.notifier)
	if server.dispatcher == nil {
		d, err := server.newDispatcher()
		if err != nil {
			return nil, err
		}
		server.dispatcher = d
	}

	server.codeService = service.NewVerificationService(users, repository.NewVerificationRepository(db), server.mailer, cfg.CodeTTL)
	server.authService = service.NewAuthService(users, repository.NewTokenRepository(db), server.codeService, cfg.TokenTTL)
	server.userService = service.NewUserService(users, subs, follows, server.codeService, server.notifier)
	server.socialService = service.NewSocialService(users, follows, repository.NewCollectionRepository(db), subs)
	server.feedService = service.NewFeedService(repository.NewFeedRepository(db), users, server.isAdminByUserID)
	server.submissionService = service.NewSubmissionService(subs, users, follows, server.dispatcher, server.isAdminByUserID)
	server.commentService = service.NewCommentService(repository.NewCommentRepository(db), subs, users,
		server.notifier, server.featureFlags, server.isAdminByUserID)
	server.uploadService = service.NewUploadService(server.store, repository.NewFileRepository(db), cfg.UploadMaxBytes)
	server.summaryService = service.NewSummaryService(summarizer, server.featureFlags)
	server.ticketService = service.NewTicketService()

	return server, nil
}

// initInfrastructure builds the store, mailer and censor client that were not injected.
func (s *Server) initInfrastructure() error {
	cfg := s.config
	if s.store == nil {
		st, err := newStore(cfg)
		if err != nil {
			return fmt.Errorf("upload storage: %w", err)
		}
		s.store = st
	}
	if s.mailer == nil {
		m, err := mail.New(mail.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			CodeTTL:  cfg.CodeTTL,
		})
		if err != nil {
			return fmt.Errorf("mailer: %w", err)
		}
		s.mailer = m
	}
	if cfg.ModerationAPIKey != "" && cfg.ModerationSecretKey != "" {
		s.censor = moderation.NewClient(moderation.ClientConfig{
			APIKey:    cfg.ModerationAPIKey,
			SecretKey: cfg.ModerationSecretKey,
			BaseURL:   cfg.ModerationBaseURL,
		})
	}
	return nil
}

func newStore(cfg *config.Config) (storage.Store, error) {
	if cfg.StorageDriver == "s3" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	return storage.NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL)
}

// newDispatcher publishes moderation jobs to RabbitMQ when AMQP_URL is set and
// runs them in-process otherwise. With RabbitMQ the server also consumes the queue.
func (s *Server) newDispatcher() (moderation.Dispatcher, error) {
	if s.config.AMQPURL == "" {
		return moderation.NewLocalDispatcher(s.processor.Process, moderation.DefaultJobTimeout), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := moderation.DialAMQP(ctx, s.config.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("moderation queue: %w", err)
	}
	d, err := moderation.NewAMQPDispatcher(conn, s.config.ModerationQueue)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("moderation queue: %w", err)
	}
	s.amqpConn = conn
	s.worker = moderation.NewWorker(conn, s.config.ModerationQueue, s.processor.Process, moderation.DefaultJobTimeout)
	return d, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so browser clients still see CORS headers on 429s.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Token, Lang, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (300 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Locals("errorCode", models.CodeTooManyRequests)
			return c.Status(fiber.StatusTooManyRequests).JSON(envelope{
				Success: false,
				Data:    fiber.Map{"error": models.CodeTooManyRequests},
			})
		},
	}))
}

// Per-route quotas.
var (
	signupLimit   = middleware.Limit{Name: "signup", Max: 3, Window: 10 * time.Minute, Policy: middleware.FailClosed}
	loginLimit    = middleware.Limit{Name: "login", Max: 10, Window: 5 * time.Minute}
	resetLimit    = middleware.Limit{Name: "reset", Max: 5, Window: 10 * time.Minute}
	sendCodeLimit = middleware.Limit{Name: "send_code", Max: 5, Window: 10 * time.Minute, Policy: middleware.FailClosed}
	submitLimit   = middleware.Limit{Name: "submit", Max: 5, Window: time.Minute}
	summaryLimit  = middleware.Limit{Name: "summary", Max: 10, Window: time.Minute}
	searchLimit   = middleware.Limit{Name: "search", Max: 30, Window: time.Minute}
	uploadLimit   = middleware.Limit{Name: "upload", Max: 30, Window: time.Minute}
	commentLimit  = middleware.Limit{Name: "comment", Max: 10, Window: time.Minute}
)

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if local, ok := s.store.(*storage.LocalStore); ok {
		app.Static("/files", local.Dir(), fiber.Static{ByteRange: true, MaxAge: 3600})
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Egaku Backend Metrics Dashboard",
	}))

	authRequired := middleware.AuthRequired(s.authService)
	authOptional := middleware.AuthOptional(s.authService)

	user := api.Group("/user")
	user.Post("/signup", signupLimit.Handler(s.redis), s.Signup)
	user.Post("/login", loginLimit.Handler(s.redis), s.Login)
	user.Post("/logout", authRequired, s.Logout)
	user.Post("/reset", resetLimit.Handler(s.redis), s.ResetPassword)
	user.Post("/sendCode", sendCodeLimit.Handler(s.redis), s.SendCode)
	user.Post("/updateEmail", authRequired, s.UpdateEmail)
	user.Post("/getInfo", authRequired, s.GetInfo)
	user.Post("/getDetailInfo", authOptional, s.GetDetailInfo)
	user.Post("/update", authRequired, s.UpdateProfile)
	user.Post("/isAdmin", authRequired, s.IsAdmin)
	user.Post("/follow", authRequired, s.Follow)
	user.Post("/unfollow", authRequired, s.Unfollow)
	user.Post("/isFollowed", authRequired, s.IsFollowed)
	user.Post("/getFollowed", authRequired, s.GetFollowed)
	user.Post("/getFollowedSubmission", authRequired, s.GetFollowedSubmission)
	user.Post("/getCollection", authRequired, s.GetCollection)
	user.Post("/collect", authRequired, s.Collect)
	user.Post("/delCollection", authRequired, s.DelCollection)
	user.Post("/isCollected", authRequired, s.IsCollected)
	user.Post("/getReply", authRequired, s.GetReply)

	for _, kind := range []models.SubmissionKind{models.KindArticle, models.KindVideo} {
		g := api.Group("/" + kind.String())
		g.Post("/submit", authRequired, submitLimit.Handler(s.redis), s.Submit(kind))
		g.Post("/get", authOptional, s.GetSubmission(kind))
		g.Post("/getList", authOptional, s.GetSubmissionList(kind))
		g.Post("/resubmit", authRequired, s.Resubmit(kind))
		g.Post("/delete", authRequired, s.DeleteSubmission(kind))
	}
	api.Post("/article/summary", authRequired, summaryLimit.Handler(s.redis), s.Summary)

	common := api.Group("/common")
	common.Post("/getAll", s.GetAll)
	common.Post("/search", searchLimit.Handler(s.redis), s.Search)
	common.Post("/getAudit", authRequired, s.GetAudit)
	common.Post("/updateStatus", authRequired, s.UpdateStatus)
	common.Post("/moderationCallback", middleware.CallbackAuth(s.config.ModerationCallbackSecret), s.ModerationCallback)

	api.Post("/uploadFile", authRequired, uploadLimit.Handler(s.redis), s.UploadFile)

	comment := api.Group("/comment")
	comment.Post("/send", authRequired, commentLimit.Handler(s.redis), s.SendComment)
	comment.Post("/get", authOptional, s.GetComments)
	comment.Post("/delete", authRequired, s.DeleteComment)

	// WebSocket ticket issuance
	api.Post("/ws/ticket", authRequired, s.IssueWSTicket)
	api.Get("/ws", s.WebSocketTicketAuth(), s.WebsocketHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// App builds the Fiber app with middleware and routes. Repeated calls return the same app.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:   "Egaku API",
		BodyLimit: int(s.config.UploadMaxBytes) + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
				c.Locals("errorCode", models.CodeParamError)
				return c.Status(fe.Code).JSON(envelope{Success: false, Data: fiber.Map{"error": models.CodeParamError}})
			}
			return respondError(c, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// Start starts background consumers and serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if s.featureFlags.MayEnable(featureflags.RealtimeReminders) {
		go func() {
			if err := s.hub.Run(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start hub wiring",
					slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	if s.worker != nil {
		if err := s.worker.Start(s.shutdownCtx); err != nil {
			return fmt.Errorf("moderation worker: %w", err)
		}
	}

	if s.config.TokenCleanupInterval > 0 {
		go s.runCleanup(s.shutdownCtx, s.config.TokenCleanupInterval)
	}

	middleware.Logger.Info("server starting",
		slog.String("port", s.config.Port),
		slog.Any("feature_flags", s.featureFlags.Configured()),
	)
	if bad := s.featureFlags.Invalid(); len(bad) > 0 {
		middleware.Logger.Warn("ignoring malformed feature flags", slog.Any("entries", bad))
	}
	return app.Listen(":" + s.config.Port)
}

// runCleanup purges expired tokens and verification codes every interval until ctx ends.
func (s *Server) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tokens, codes, err := s.authService.CleanupExpired(ctx)
			if err != nil {
				middleware.Logger.Warn("expired credential cleanup failed", slog.String("error", err.Error()))
				continue
			}
			if tokens > 0 || codes > 0 {
				middleware.Logger.Info("expired credentials purged",
					slog.Int64("tokens", tokens), slog.Int64("codes", codes))
			}
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop all wiring goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", slog.String("error", err.Error()))
	}

	// Pending local moderation jobs finish before the DB goes away.
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(); err != nil {
			middleware.Logger.Error("error closing moderation dispatcher", slog.String("error", err.Error()))
		}
	}
	if s.worker != nil {
		s.worker.Close()
	}
	if s.amqpConn != nil {
		_ = s.amqpConn.Close()
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
