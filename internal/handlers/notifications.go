package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/pod-budget-chat/backend/internal/auth"
	"example.com/pod-budget-chat/backend/internal/notifications"
	"example.com/pod-budget-chat/backend/internal/repository"
)

type NotificationHandler struct {
	Hub        *notifications.Hub
	Households *repository.HouseholdRepository
}

// NewNotificationHandler создает SSE-обработчик уведомлений.
func NewNotificationHandler(hub *notifications.Hub, households *repository.HouseholdRepository) *NotificationHandler {
	return &NotificationHandler{Hub: hub, Households: households}
}

// Stream открывает SSE-поток событий домохозяйства.
func (h *NotificationHandler) Stream(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	householdID, err := uuid.Parse(c.QueryParam("householdId"))
	if err != nil {
		return badRequest(c, "invalid household id")
	}

	isMember, err := h.Households.IsMember(c.Request().Context(), householdID, userID)
	if err != nil {
		return serverError(c)
	}
	if !isMember {
		return forbidden(c)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return serverError(c)
	}

	ch, unsubscribe := h.Hub.Subscribe(householdID)
	defer unsubscribe()

	_ = writeSSE(c, notifications.Event{Type: "connected", Data: map[string]string{"household_id": householdID.String()}})
	flusher.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSSE(c, event); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeSSE(c echo.Context, event notifications.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := c.Response().Write([]byte("event: " + event.Type + "\n")); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return err
	}

	return nil
}
