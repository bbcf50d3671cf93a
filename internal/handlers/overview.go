package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/pod-budget-chat/backend/internal/auth"
	"example.com/pod-budget-chat/backend/internal/models"
	"example.com/pod-budget-chat/backend/internal/repository"
)

const balancesStaleAfter = 15 * time.Minute

type OverviewHandler struct {
	Pods       *repository.PodRepository
	Households *repository.HouseholdRepository
}

// NewOverviewHandler создает обработчик сводки бюджета.
func NewOverviewHandler(pods *repository.PodRepository, households *repository.HouseholdRepository) *OverviewHandler {
	return &OverviewHandler{Pods: pods, Households: households}
}

type OverviewPod struct {
	ID                    uuid.UUID           `json:"id"`
	Name                  string              `json:"name"`
	Category              *models.PodCategory `json:"category"`
	BudgetedAmountInCents int64               `json:"budgetedAmountInCents"`
	BalanceAmountInCents  *int64              `json:"balanceAmountInCents"`
	BalanceError          *string             `json:"balanceError"`
	BalanceUpdatedAt      *time.Time          `json:"balanceUpdatedAt"`
}

type AttentionItem struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type OverviewResponse struct {
	TraceID              string          `json:"traceId"`
	Pods                 []OverviewPod   `json:"pods"`
	IncomeInCents        int64           `json:"incomeInCents"`
	TotalBudgetedInCents int64           `json:"totalBudgetedInCents"`
	LeftToBudgetInCents  int64           `json:"leftToBudgetInCents"`
	Attention            []AttentionItem `json:"attention"`
}

// Overview возвращает состояние бюджета и список тревог по подам.
func (h *OverviewHandler) Overview(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	householdID, err := uuid.Parse(c.QueryParam("householdId"))
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

	pods, err := h.Pods.ListForHousehold(ctx, householdID, true)
	if err != nil {
		return serverError(c)
	}

	overviewPods := make([]OverviewPod, 0, len(pods))
	var incomeInCents, totalBudgetedInCents int64
	for _, pod := range pods {
		overviewPods = append(overviewPods, OverviewPod{
			ID:                    pod.Pod.ID,
			Name:                  pod.Pod.Name,
			Category:              pod.Category(),
			BudgetedAmountInCents: pod.BudgetedAmountInCents(),
			BalanceAmountInCents:  pod.Pod.BalanceAmountInCents,
			BalanceError:          pod.Pod.BalanceError,
			BalanceUpdatedAt:      pod.Pod.BalanceUpdatedAt,
		})

		if category := pod.Category(); category != nil && *category == models.PodCategoryIncome {
			incomeInCents += pod.BudgetedAmountInCents()
		} else {
			totalBudgetedInCents += pod.BudgetedAmountInCents()
		}
	}

	return c.JSON(http.StatusOK, OverviewResponse{
		TraceID:              traceID(c),
		Pods:                 overviewPods,
		IncomeInCents:        incomeInCents,
		TotalBudgetedInCents: totalBudgetedInCents,
		LeftToBudgetInCents:  incomeInCents - totalBudgetedInCents,
		Attention:            buildAttention(pods, incomeInCents, totalBudgetedInCents, time.Now().UTC()),
	})
}

// buildAttention собирает очередь тревог для сводки.
func buildAttention(pods []models.PodWithSettings, incomeInCents, totalBudgetedInCents int64, now time.Time) []AttentionItem {
	attention := make([]AttentionItem, 0)

	if incomeInCents > 0 && totalBudgetedInCents > incomeInCents {
		attention = append(attention, AttentionItem{
			Type:     "over_budget",
			Severity: "high",
			Message: fmt.Sprintf("Budgeted $%.2f exceeds income $%.2f.",
				float64(totalBudgetedInCents)/100, float64(incomeInCents)/100),
		})
	}

	errorNames := make([]string, 0)
	unassigned := 0
	var newestUpdate *time.Time
	hasBalances := false
	for _, pod := range pods {
		if pod.Pod.BalanceError != nil && *pod.Pod.BalanceError != "" {
			errorNames = append(errorNames, pod.Pod.Name)
		}
		if pod.Category() == nil {
			unassigned++
		}
		if pod.Pod.BalanceAmountInCents != nil {
			hasBalances = true
		}
		if updated := pod.Pod.BalanceUpdatedAt; updated != nil {
			if newestUpdate == nil || updated.After(*newestUpdate) {
				newestUpdate = updated
			}
		}
	}

	if len(errorNames) > 0 {
		sample := errorNames
		suffix := ""
		if len(sample) > 3 {
			suffix = fmt.Sprintf(" +%d more", len(sample)-3)
			sample = sample[:3]
		}
		attention = append(attention, AttentionItem{
			Type:     "balance_error",
			Severity: "high",
			Message:  fmt.Sprintf("Balance errors: %s%s.", strings.Join(sample, ", "), suffix),
		})
	}

	if unassigned > 0 {
		attention = append(attention, AttentionItem{
			Type:     "unassigned",
			Severity: "medium",
			Message:  fmt.Sprintf("%d pods have no category assigned.", unassigned),
		})
	}

	if hasBalances && newestUpdate != nil && now.Sub(*newestUpdate) > balancesStaleAfter {
		attention = append(attention, AttentionItem{
			Type:     "balances_stale",
			Severity: "low",
			Message:  "Balances have not refreshed recently.",
		})
	}

	return attention
}
