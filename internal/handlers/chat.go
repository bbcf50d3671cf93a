package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/pod-budget-chat/backend/internal/ai"
	"example.com/pod-budget-chat/backend/internal/auth"
	"example.com/pod-budget-chat/backend/internal/chat"
	"example.com/pod-budget-chat/backend/internal/models"
	"example.com/pod-budget-chat/backend/internal/notifications"
	"example.com/pod-budget-chat/backend/internal/ratelimit"
	"example.com/pod-budget-chat/backend/internal/repository"
)

const (
	WarnAIDisabledNoKey = "AI_DISABLED_NO_KEY"
	WarnAITimeout       = "AI_TIMEOUT"
	WarnAISchemaInvalid = "AI_SCHEMA_INVALID"
	WarnAIError         = "AI_ERROR"
	WarnAIFallback      = "AI_FALLBACK_TO_DETERMINISTIC"
)

const observedTransferDedupWindow = 10 * time.Minute

// RateLimiter ограничивает частоту запросов по произвольному ключу.
type RateLimiter interface {
	Check(key string, window time.Duration, max int) ratelimit.Result
}

type ChatHandler struct {
	Pods       *repository.PodRepository
	Households *repository.HouseholdRepository
	Chats      *repository.ChatRepository
	Actions    *repository.ActionRepository
	Events     *repository.EventRepository
	AIRepo     *repository.AIRepository
	AI         *ai.Service
	Notifier   *notifications.Hub
	Limiter    RateLimiter

	AIEnabled       bool
	AIKeyPresent    bool
	Model           string
	MaxMessageChars int
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// NewChatHandler создает обработчик сообщений чата бюджета.
func NewChatHandler(
	pods *repository.PodRepository,
	households *repository.HouseholdRepository,
	chats *repository.ChatRepository,
	actions *repository.ActionRepository,
	events *repository.EventRepository,
	aiRepo *repository.AIRepository,
	aiService *ai.Service,
	notifier *notifications.Hub,
	limiter RateLimiter,
	aiEnabled bool,
	aiKeyPresent bool,
	model string,
	maxMessageChars int,
	rateLimitWindow time.Duration,
	rateLimitMax int,
) *ChatHandler {
	return &ChatHandler{
		Pods:            pods,
		Households:      households,
		Chats:           chats,
		Actions:         actions,
		Events:          events,
		AIRepo:          aiRepo,
		AI:              aiService,
		Notifier:        notifier,
		Limiter:         limiter,
		AIEnabled:       aiEnabled,
		AIKeyPresent:    aiKeyPresent,
		Model:           model,
		MaxMessageChars: maxMessageChars,
		RateLimitWindow: rateLimitWindow,
		RateLimitMax:    rateLimitMax,
	}
}

type ChatMessageRequest struct {
	HouseholdID string `json:"householdId" validate:"required,uuid"`
	MessageText string `json:"messageText" validate:"required"`
}

type ChatDebug struct {
	AIEnabled      bool              `json:"aiEnabled"`
	AIAttempted    bool              `json:"aiAttempted"`
	AISucceeded    bool              `json:"aiSucceeded"`
	AIFailureStage string            `json:"aiFailureStage,omitempty"`
	ModeChosen     string            `json:"modeChosen"`
	IntentChosen   models.ChatIntent `json:"intentChosen"`
	AIIntent       models.ChatIntent `json:"aiIntent,omitempty"`
}

type ChatMessageResponse struct {
	TraceID         string                     `json:"traceId"`
	Intent          models.ChatIntent          `json:"intent"`
	AssistantText   string                     `json:"assistantText"`
	ProposedActions []models.ProposedAction    `json:"proposedActions"`
	Entities        models.ParsedEntitiesHints `json:"entities"`
	Warnings        []string                   `json:"warnings"`
	AIUsed          bool                       `json:"aiUsed"`
	Debug           ChatDebug                  `json:"debug"`
}

var observedIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bi\s+moved\b`),
	regexp.MustCompile(`\bi\s+transferred\b`),
	regexp.MustCompile(`\bi\s+already\s+moved\b`),
	regexp.MustCompile(`\bi\s+just\s+moved\b`),
	regexp.MustCompile(`\bi\s+sent\b`),
	regexp.MustCompile(`\bi\s+paid\b`),
	regexp.MustCompile(`\bi\s+took\s+from\b`),
}

var questionPhrases = []string{"got any ideas", "how should", "what should", "can we"}

// Пунктуация сводится к пробелам перед сопоставлением, вопросительный знак
// сохраняется для проверки суффикса.
var intentTextPattern = regexp.MustCompile(`[^a-z0-9?]+`)

// classifyIntent грубо определяет намерение сообщения до запроса к модели.
func classifyIntent(messageText string) models.ChatIntent {
	text := strings.TrimSpace(intentTextPattern.ReplaceAllString(strings.ToLower(messageText), " "))

	for _, pattern := range observedIntentPatterns {
		if pattern.MatchString(text) {
			return models.IntentObservedTransfer
		}
	}

	if strings.HasSuffix(text, "?") {
		return models.IntentQuestionAdvice
	}
	for _, phrase := range questionPhrases {
		if strings.Contains(text, phrase) {
			return models.IntentQuestionAdvice
		}
	}

	return models.IntentRequestBudgetChange
}

// Message принимает сообщение чата и возвращает черновики действий.
func (h *ChatHandler) Message(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	messageText := strings.TrimSpace(req.MessageText)
	if messageText == "" {
		return badRequest(c, "messageText is required")
	}
	if len([]rune(messageText)) > h.MaxMessageChars {
		return errorJSON(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest,
			"message is too long", map[string]any{"maxChars": h.MaxMessageChars})
	}

	householdID, err := uuid.Parse(req.HouseholdID)
	if err != nil {
		return badRequest(c, "invalid household id")
	}

	ctx := c.Request().Context()

	isMember, err := h.Households.IsMember(ctx, householdID, userID)
	if err != nil {
		return serverError(c)
	}
	if !isMember {
		return forbidden(c)
	}

	limitKey := "chat:" + userID.String() + ":" + householdID.String()
	limit := h.Limiter.Check(limitKey, h.RateLimitWindow, h.RateLimitMax)
	if !limit.Allowed {
		return errorJSON(c, http.StatusTooManyRequests, ErrCodeRateLimited,
			"too many messages, slow down", map[string]any{"resetAt": limit.ResetAt.UTC()})
	}

	pods, err := h.Pods.ListForHousehold(ctx, householdID, true)
	if err != nil {
		return serverError(c)
	}

	thread, err := h.Chats.GetOrCreateThread(ctx, householdID)
	if err != nil {
		return serverError(c)
	}

	if _, err := h.Chats.InsertMessage(ctx, thread.ID, models.SenderRoleUser, &userID, messageText); err != nil {
		return serverError(c)
	}

	intent := classifyIntent(messageText)
	deterministic := chat.Interpret(messageText, pods)
	trace := traceID(c)

	assistantText := deterministic.AssistantText
	drafts := deterministic.ProposedActionDrafts
	entities := deterministic.Entities
	warnings := make([]string, 0, 2)
	debug := ChatDebug{
		AIEnabled:    h.AIEnabled,
		ModeChosen:   "deterministic",
		IntentChosen: intent,
	}

	shouldTryAI, gateWarning := aiGate(h.AIEnabled, h.AIKeyPresent, intent)
	if gateWarning != "" {
		warnings = append(warnings, gateWarning)
	}
	if shouldTryAI {
		debug.AIAttempted = true
		result, aiErr := h.AI.Propose(ctx, ai.ProposeInput{
			MessageText: messageText,
			Pods:        pods,
			Intent:      intent,
			Baseline:    deterministic.Entities,
			TraceID:     trace,
		})
		h.logAIRequest(ctx, householdID, userID, trace, intent, messageText, aiErr)

		if aiErr == nil {
			debug.AISucceeded = true
			debug.ModeChosen = "ai"
			debug.AIIntent = result.Intent
			intent = result.Intent
			debug.IntentChosen = intent
			assistantText = result.AssistantText
			drafts = result.Drafts
			entities = result.Entities
		} else {
			stage := ai.StageAPIError
			if proposeErr, ok := aiErr.(*ai.ProposeError); ok {
				stage = proposeErr.Stage
			}
			debug.AIFailureStage = string(stage)
			warnings = append(warnings, warningForStage(stage), WarnAIFallback)

			slog.Warn("chat ai fallback",
				slog.String("trace_id", trace),
				slog.String("stage", string(stage)),
				slog.String("error", aiErr.Error()),
			)
		}
	}

	if intent == models.IntentQuestionAdvice {
		drafts = nil
	}

	if deterministic.ObservedTransfer != nil {
		h.recordObservedTransfer(ctx, householdID, userID, trace, *deterministic.ObservedTransfer)
	}

	assistantMessage, err := h.Chats.InsertMessage(ctx, thread.ID, models.SenderRoleAssistant, nil, assistantText)
	if err != nil {
		return serverError(c)
	}

	actions, err := h.Actions.InsertBatch(ctx, householdID, assistantMessage.ID, drafts)
	if err != nil {
		return serverError(c)
	}

	if len(actions) > 0 {
		actionIDs := make([]string, 0, len(actions))
		for _, action := range actions {
			actionIDs = append(actionIDs, action.ID.String())
		}
		h.Notifier.Publish(householdID, notifications.Event{
			Type: notifications.EventActionsProposed,
			Data: map[string]any{"actionIds": actionIDs},
		})
	}

	return c.JSON(http.StatusOK, ChatMessageResponse{
		TraceID:         trace,
		Intent:          intent,
		AssistantText:   assistantText,
		ProposedActions: actions,
		Entities:        entities,
		Warnings:        warnings,
		AIUsed:          debug.AISucceeded,
		Debug:           debug,
	})
}

type ChatHistoryResponse struct {
	TraceID  string               `json:"traceId"`
	Messages []models.ChatMessage `json:"messages"`
}

// History возвращает последние сообщения треда домохозяйства.
func (h *ChatHandler) History(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	householdID, err := uuid.Parse(c.QueryParam("householdId"))
	if err != nil {
		return badRequest(c, "invalid household id")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return badRequest(c, "invalid limit")
		}
	}

	ctx := c.Request().Context()

	isMember, err := h.Households.IsMember(ctx, householdID, userID)
	if err != nil {
		return serverError(c)
	}
	if !isMember {
		return forbidden(c)
	}

	thread, err := h.Chats.GetOrCreateThread(ctx, householdID)
	if err != nil {
		return serverError(c)
	}

	messages, err := h.Chats.ListRecentMessages(ctx, thread.ID, limit)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, ChatHistoryResponse{
		TraceID:  traceID(c),
		Messages: messages,
	})
}

// aiGate решает, пробовать ли модель. Флаг выключен: тихий детерминированный
// режим. Флаг включен без ключа: предупреждение. Наблюдаемые переводы никогда
// не делегируются модели, ремонт считается детерминированно.
func aiGate(aiEnabled, keyPresent bool, intent models.ChatIntent) (bool, string) {
	if !aiEnabled {
		return false, ""
	}
	if !keyPresent {
		return false, WarnAIDisabledNoKey
	}
	if intent == models.IntentObservedTransfer {
		return false, ""
	}
	return true, ""
}

func warningForStage(stage ai.FailureStage) string {
	switch stage {
	case ai.StageMissingKey:
		return WarnAIDisabledNoKey
	case ai.StageTimeout:
		return WarnAITimeout
	case ai.StageToolMissing, ai.StageToolParse, ai.StageInvalidArgs:
		return WarnAISchemaInvalid
	default:
		return WarnAIError
	}
}

// recordObservedTransfer пишет событие перевода с дедупликацией по окну.
func (h *ChatHandler) recordObservedTransfer(ctx context.Context, householdID, userID uuid.UUID, trace string, event models.ObservedTransferEvent) {
	exists, err := h.Events.HasRecentObservedTransfer(ctx, householdID, event, observedTransferDedupWindow)
	if err != nil {
		slog.Warn("observed transfer dedup check failed",
			slog.String("trace_id", trace),
			slog.String("error", err.Error()),
		)
		return
	}
	if exists {
		slog.Info("observed transfer deduplicated",
			slog.String("trace_id", trace),
			slog.String("household_id", householdID.String()),
		)
		return
	}

	if _, err := h.Events.InsertObservedTransfer(ctx, householdID, &userID, event); err != nil {
		slog.Warn("observed transfer insert failed",
			slog.String("trace_id", trace),
			slog.String("error", err.Error()),
		)
		return
	}

	h.Notifier.Publish(householdID, notifications.Event{
		Type: notifications.EventObservedTransfer,
		Data: map[string]any{
			"fromPodName":   event.FromPodName,
			"toPodName":     event.ToPodName,
			"amountInCents": event.AmountInCents,
		},
	})
}

func (h *ChatHandler) logAIRequest(ctx context.Context, householdID, userID uuid.UUID, trace string, intent models.ChatIntent, prompt string, aiErr error) {
	if h.AIRepo == nil {
		return
	}

	record := repository.AIRequestLog{
		HouseholdID: householdID,
		UserID:      userID,
		TraceID:     trace,
		Model:       h.Model,
		Intent:      string(intent),
		Prompt:      prompt,
		Success:     aiErr == nil,
	}
	if aiErr != nil {
		message := aiErr.Error()
		record.ErrorMessage = &message
		if proposeErr, ok := aiErr.(*ai.ProposeError); ok {
			stage := string(proposeErr.Stage)
			record.FailureStage = &stage
		}
	}

	if err := h.AIRepo.LogRequest(ctx, record); err != nil {
		slog.Warn("ai request log failed", slog.String("trace_id", trace), slog.String("error", err.Error()))
	}
}
