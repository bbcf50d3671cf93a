package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/pod-budget-chat/backend/internal/auth"
	"example.com/pod-budget-chat/backend/internal/ledger"
	"example.com/pod-budget-chat/backend/internal/models"
	"example.com/pod-budget-chat/backend/internal/notifications"
	"example.com/pod-budget-chat/backend/internal/repository"
)

type ActionHandler struct {
	Pods       *repository.PodRepository
	Households *repository.HouseholdRepository
	Actions    *repository.ActionRepository
	Events     *repository.EventRepository
	Notifier   *notifications.Hub
	Limiter    RateLimiter

	RateLimitWindow time.Duration
	RateLimitMax    int
}

// NewActionHandler создает обработчик применения предложенных действий.
func NewActionHandler(
	pods *repository.PodRepository,
	households *repository.HouseholdRepository,
	actions *repository.ActionRepository,
	events *repository.EventRepository,
	notifier *notifications.Hub,
	limiter RateLimiter,
	rateLimitWindow time.Duration,
	rateLimitMax int,
) *ActionHandler {
	return &ActionHandler{
		Pods:            pods,
		Households:      households,
		Actions:         actions,
		Events:          events,
		Notifier:        notifier,
		Limiter:         limiter,
		RateLimitWindow: rateLimitWindow,
		RateLimitMax:    rateLimitMax,
	}
}

type ApplyActionsRequest struct {
	HouseholdID string   `json:"householdId" validate:"required,uuid"`
	ActionIDs   []string `json:"actionIds" validate:"required,min=1,dive,uuid"`
}

type ApplyActionsResponse struct {
	TraceID          string          `json:"traceId"`
	Status           string          `json:"status"`
	AppliedActionIDs []uuid.UUID     `json:"appliedActionIds"`
	Changes          []ledger.Change `json:"changes"`
	Pods             []OverviewPod   `json:"pods"`
}

type applyDecision int

const (
	applyProceed applyDecision = iota
	applyAlreadyApplied
	applyConflict
)

// triageActionStatuses решает судьбу пакета по статусам: полностью
// примененный пакет идемпотентен, любой иной не-proposed статус конфликтует.
// При конфликте возвращается первое блокирующее действие.
func triageActionStatuses(actions []models.ProposedAction) (applyDecision, *models.ProposedAction) {
	allApplied := len(actions) > 0
	for i := range actions {
		if actions[i].Status != models.ActionStatusApplied {
			allApplied = false
			break
		}
	}
	if allApplied {
		return applyAlreadyApplied, nil
	}

	for i := range actions {
		if actions[i].Status != models.ActionStatusProposed {
			return applyConflict, &actions[i]
		}
	}

	return applyProceed, nil
}

// Apply применяет пакет предложенных действий к плановым суммам подов.
// Пакет применяется целиком либо не применяется вовсе.
func (h *ActionHandler) Apply(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ApplyActionsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	householdID, err := uuid.Parse(req.HouseholdID)
	if err != nil {
		return badRequest(c, "invalid household id")
	}

	actionIDs := make([]uuid.UUID, 0, len(req.ActionIDs))
	seen := make(map[uuid.UUID]struct{}, len(req.ActionIDs))
	for _, raw := range req.ActionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "invalid action id")
		}
		if _, dup := seen[id]; dup {
			return badRequest(c, "duplicate action id")
		}
		seen[id] = struct{}{}
		actionIDs = append(actionIDs, id)
	}

	ctx := c.Request().Context()

	isMember, err := h.Households.IsMember(ctx, householdID, userID)
	if err != nil {
		return serverError(c)
	}
	if !isMember {
		return forbidden(c)
	}

	limitKey := "apply:" + userID.String() + ":" + householdID.String()
	limit := h.Limiter.Check(limitKey, h.RateLimitWindow, h.RateLimitMax)
	if !limit.Allowed {
		return errorJSON(c, http.StatusTooManyRequests, ErrCodeRateLimited,
			"too many requests, slow down", map[string]any{"resetAt": limit.ResetAt.UTC()})
	}

	actions, err := h.Actions.ListByIDs(ctx, householdID, actionIDs)
	if err != nil {
		return serverError(c)
	}

	if len(actions) != len(actionIDs) {
		found := make(map[uuid.UUID]struct{}, len(actions))
		for _, action := range actions {
			found[action.ID] = struct{}{}
		}
		missing := make([]string, 0)
		for _, id := range actionIDs {
			if _, ok := found[id]; !ok {
				missing = append(missing, id.String())
			}
		}
		return notFound(c, "some actions were not found", map[string]any{"missing": missing})
	}

	// Сохраняем порядок запроса, он определяет порядок применения.
	actionsByID := make(map[uuid.UUID]models.ProposedAction, len(actions))
	for _, action := range actions {
		actionsByID[action.ID] = action
	}
	ordered := make([]models.ProposedAction, 0, len(actionIDs))
	for _, id := range actionIDs {
		ordered = append(ordered, actionsByID[id])
	}

	decision, blocking := triageActionStatuses(ordered)
	switch decision {
	case applyAlreadyApplied:
		snapshot, err := h.podSnapshot(ctx, householdID)
		if err != nil {
			return serverError(c)
		}
		return c.JSON(http.StatusOK, ApplyActionsResponse{
			TraceID:          traceID(c),
			Status:           "already_applied",
			AppliedActionIDs: actionIDs,
			Changes:          []ledger.Change{},
			Pods:             snapshot,
		})
	case applyConflict:
		return conflict(c, "action is not in proposed status", map[string]any{
			"actionId": blocking.ID.String(),
			"status":   string(blocking.Status),
		})
	}

	podIDSet := make(map[uuid.UUID]struct{})
	podIDs := make([]uuid.UUID, 0)
	payloads := make([]models.ActionPayload, 0, len(ordered))
	for _, action := range ordered {
		payloads = append(payloads, action.Payload)
		for _, podID := range action.Payload.PodIDs() {
			if _, ok := podIDSet[podID]; ok {
				continue
			}
			podIDSet[podID] = struct{}{}
			podIDs = append(podIDs, podID)
		}
	}

	pods, err := h.Pods.ListByIDs(ctx, householdID, podIDs)
	if err != nil {
		return serverError(c)
	}
	if len(pods) != len(podIDs) {
		return forbidden(c)
	}

	before := make(map[uuid.UUID]int64, len(pods))
	namesByPodID := make(map[uuid.UUID]string, len(pods))
	for _, pod := range pods {
		before[pod.Pod.ID] = pod.BudgetedAmountInCents()
		namesByPodID[pod.Pod.ID] = pod.Pod.Name
	}

	after := make(map[uuid.UUID]int64, len(before))
	for podID, amount := range before {
		after[podID] = amount
	}

	if err := ledger.ApplyPayloads(payloads, after); err != nil {
		var negativeErr *ledger.NegativeBudgetError
		if errors.As(err, &negativeErr) {
			if len(ordered) == 1 {
				h.markFailedBestEffort(c, actionIDs)
			}
			return errorJSON(c, http.StatusBadRequest, ErrCodeBadRequest,
				negativeErr.Error(), map[string]any{"podName": negativeErr.PodName})
		}
		return serverError(c)
	}

	if err := h.Pods.UpsertBudgetedAmounts(ctx, after); err != nil {
		return serverError(c)
	}

	if err := h.Actions.MarkApplied(ctx, actionIDs, userID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return conflict(c, "actions were applied concurrently", nil)
		}
		return serverError(c)
	}

	if err := h.Events.InsertAppliedActions(ctx, householdID, &userID, ordered); err != nil {
		slog.Warn("insert applied events", slog.String("trace_id", traceID(c)), slog.String("error", err.Error()))
	}

	changes := ledger.Changes(podIDs, namesByPodID, before, after)

	snapshot, err := h.podSnapshot(ctx, householdID)
	if err != nil {
		return serverError(c)
	}

	h.Notifier.Publish(householdID, notifications.Event{
		Type: notifications.EventActionsApplied,
		Data: map[string]any{"changes": changes},
	})

	return c.JSON(http.StatusOK, ApplyActionsResponse{
		TraceID:          traceID(c),
		Status:           "applied",
		AppliedActionIDs: actionIDs,
		Changes:          changes,
		Pods:             snapshot,
	})
}

func (h *ActionHandler) podSnapshot(ctx context.Context, householdID uuid.UUID) ([]OverviewPod, error) {
	pods, err := h.Pods.ListForHousehold(ctx, householdID, true)
	if err != nil {
		return nil, err
	}

	snapshot := make([]OverviewPod, 0, len(pods))
	for _, pod := range pods {
		snapshot = append(snapshot, OverviewPod{
			ID:                    pod.Pod.ID,
			Name:                  pod.Pod.Name,
			Category:              pod.Category(),
			BudgetedAmountInCents: pod.BudgetedAmountInCents(),
			BalanceAmountInCents:  pod.Pod.BalanceAmountInCents,
			BalanceError:          pod.Pod.BalanceError,
			BalanceUpdatedAt:      pod.Pod.BalanceUpdatedAt,
		})
	}

	return snapshot, nil
}

func (h *ActionHandler) markFailedBestEffort(c echo.Context, actionIDs []uuid.UUID) {
	if err := h.Actions.MarkFailed(c.Request().Context(), actionIDs); err != nil {
		slog.Warn("mark failed actions", slog.String("trace_id", traceID(c)), slog.String("error", err.Error()))
	}
}
