package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"example.com/pod-budget-chat/backend/internal/ai"
	"example.com/pod-budget-chat/backend/internal/auth"
	"example.com/pod-budget-chat/backend/internal/config"
	"example.com/pod-budget-chat/backend/internal/handlers"
	"example.com/pod-budget-chat/backend/internal/notifications"
	"example.com/pod-budget-chat/backend/internal/ratelimit"
	"example.com/pod-budget-chat/backend/internal/repository"
)

// New собирает HTTP-сервер Echo с роутами и зависимостями.
func New(cfg config.Config, logger *slog.Logger, db *pgxpool.Pool) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(serverRateLimiter(cfg.Server))

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	podRepo := repository.NewPodRepository(db)
	householdRepo := repository.NewHouseholdRepository(db)
	chatRepo := repository.NewChatRepository(db)
	actionRepo := repository.NewActionRepository(db)
	eventRepo := repository.NewEventRepository(db)
	aiRepo := repository.NewAIRepository(db)
	notificationHub := notifications.NewHub()
	chatLimiter := ratelimit.NewLimiter()

	aiClient := ai.NewOpenAIClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.Timeout)
	aiService := ai.NewService(aiClient)

	chatHandler := handlers.NewChatHandler(
		podRepo,
		householdRepo,
		chatRepo,
		actionRepo,
		eventRepo,
		aiRepo,
		aiService,
		notificationHub,
		chatLimiter,
		cfg.AI.Enabled,
		cfg.AI.KeyPresent(),
		cfg.AI.Model,
		cfg.Chat.MaxMessageChars,
		cfg.Chat.RateLimitWindow,
		cfg.Chat.RateLimitMax,
	)
	actionHandler := handlers.NewActionHandler(
		podRepo,
		householdRepo,
		actionRepo,
		eventRepo,
		notificationHub,
		chatLimiter,
		cfg.Chat.RateLimitWindow,
		cfg.Chat.RateLimitMax,
	)
	overviewHandler := handlers.NewOverviewHandler(podRepo, householdRepo)
	notificationHandler := handlers.NewNotificationHandler(notificationHub, householdRepo)

	registerRoutes(
		e,
		chatHandler,
		actionHandler,
		overviewHandler,
		notificationHandler,
		auth.JWTMiddleware(tokenManager),
	)

	return e
}

// NewHTTPServer создает net/http сервер с заданными таймаутами.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}

			msg := "request completed"
			if v.Status >= http.StatusInternalServerError {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, msg, attrs...)
				return nil
			}

			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, msg, attrs...)
			return nil
		},
	})
}

func serverRateLimiter(cfg config.ServerConfig) echo.MiddlewareFunc {
	limit := rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      limit,
		Burst:     cfg.RateLimitBurst,
		ExpiresIn: time.Minute,
	})

	return middleware.RateLimiter(store)
}
