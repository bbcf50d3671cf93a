package server

import (
	"github.com/labstack/echo/v4"

	"example.com/pod-budget-chat/backend/internal/handlers"
)

func registerRoutes(
	e *echo.Echo,
	chatHandler *handlers.ChatHandler,
	actionHandler *handlers.ActionHandler,
	overviewHandler *handlers.OverviewHandler,
	notificationHandler *handlers.NotificationHandler,
	authMiddleware echo.MiddlewareFunc,
) {
	e.GET("/health", handlers.Health)

	api := e.Group("/api/v1", authMiddleware)

	chatGroup := api.Group("/chat")
	chatGroup.POST("/message", chatHandler.Message)
	chatGroup.GET("/messages", chatHandler.History)

	actions := api.Group("/actions")
	actions.POST("/apply", actionHandler.Apply)

	api.GET("/overview", overviewHandler.Overview)

	notifications := api.Group("/notifications")
	notifications.GET("/stream", notificationHandler.Stream)
}
