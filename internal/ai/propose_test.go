package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"example.com/pod-budget-chat/backend/internal/models"
)

type stubCaller struct {
	rawArgs    json.RawMessage
	err        error
	userPrompt string
}

func (s *stubCaller) CallTool(_ context.Context, _ string, userPrompt string) (json.RawMessage, error) {
	s.userPrompt = userPrompt
	if s.err != nil {
		return nil, s.err
	}
	return s.rawArgs, nil
}

func proposePod(name string, category models.PodCategory, budgetedInCents int64) models.PodWithSettings {
	id := uuid.New()
	cat := category
	return models.PodWithSettings{
		Pod: models.Pod{ID: id, Name: name, IsActive: true},
		Settings: &models.PodSettings{
			PodID:                 id,
			Category:              &cat,
			BudgetedAmountInCents: budgetedInCents,
		},
	}
}

func proposeStage(t *testing.T, err error) FailureStage {
	t.Helper()
	var proposeErr *ProposeError
	if !errors.As(err, &proposeErr) {
		t.Fatalf("expected *ProposeError, got %v", err)
	}
	return proposeErr.Stage
}

// TestProposeNormalizesShortDrafts проверяет алиас type и дополнение имен по id.
func TestProposeNormalizesShortDrafts(t *testing.T) {
	groceries := proposePod("Groceries", models.PodCategoryNecessities, 10000)
	vacation := proposePod("Vacation", models.PodCategorySavings, 50000)
	pods := []models.PodWithSettings{groceries, vacation}

	rawArgs := []byte(fmt.Sprintf(`{
		"intent": "request_budget_change",
		"assistantText": "Move $25 from Vacation to Groceries?",
		"note_to_self": "dropped at the top level",
		"proposedActionDrafts": [
			{
				"type": "budget_transfer",
				"confidence": 0.9,
				"payload": {
					"amount_in_cents": 2500,
					"from_pod_id": %q,
					"to_pod_id": %q
				}
			}
		]
	}`, vacation.Pod.ID, groceries.Pod.ID))

	service := NewService(&stubCaller{rawArgs: rawArgs})
	result, err := service.Propose(context.Background(), ProposeInput{
		MessageText: "move $25 to groceries",
		Pods:        pods,
		Intent:      models.IntentRequestBudgetChange,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(result.Drafts))
	}
	transfer := result.Drafts[0].Payload.Transfer
	if transfer == nil {
		t.Fatal("expected transfer payload")
	}
	if transfer.FromPodName != "Vacation" || transfer.ToPodName != "Groceries" {
		t.Fatalf("expected backfilled names, got %q -> %q", transfer.FromPodName, transfer.ToPodName)
	}
	if transfer.AmountInCents != 2500 {
		t.Fatalf("expected amount 2500, got %d", transfer.AmountInCents)
	}
}

// TestProposeRejectsExtraPayloadKey проверяет строгую схему payload.
func TestProposeRejectsExtraPayloadKey(t *testing.T) {
	groceries := proposePod("Groceries", models.PodCategoryNecessities, 10000)

	rawArgs := []byte(fmt.Sprintf(`{
		"intent": "request_budget_change",
		"assistantText": "ok",
		"proposedActionDrafts": [
			{
				"type": "budget_adjust",
				"payload": {
					"kind": "budget_adjust",
					"delta_in_cents": 500,
					"pod_id": %q,
					"pod_name": "Groceries",
					"reason": "extra key"
				}
			}
		]
	}`, groceries.Pod.ID))

	service := NewService(&stubCaller{rawArgs: rawArgs})
	_, err := service.Propose(context.Background(), ProposeInput{
		MessageText: "bump groceries",
		Pods:        []models.PodWithSettings{groceries},
	})
	if proposeStage(t, err) != StageInvalidArgs {
		t.Fatalf("expected invalid_args, got %v", err)
	}
}

// TestProposeRejectsFractionalAmount проверяет запрет дробных сумм в центах.
func TestProposeRejectsFractionalAmount(t *testing.T) {
	groceries := proposePod("Groceries", models.PodCategoryNecessities, 10000)
	vacation := proposePod("Vacation", models.PodCategorySavings, 50000)

	rawArgs := []byte(fmt.Sprintf(`{
		"intent": "request_budget_change",
		"assistantText": "ok",
		"proposedActionDrafts": [
			{
				"type": "budget_transfer",
				"payload": {
					"amount_in_cents": 25.5,
					"from_pod_id": %q,
					"to_pod_id": %q
				}
			}
		]
	}`, vacation.Pod.ID, groceries.Pod.ID))

	service := NewService(&stubCaller{rawArgs: rawArgs})
	_, err := service.Propose(context.Background(), ProposeInput{
		MessageText: "move money",
		Pods:        []models.PodWithSettings{groceries, vacation},
	})
	if proposeStage(t, err) != StageInvalidArgs {
		t.Fatalf("expected invalid_args, got %v", err)
	}
}

// TestProposeRejectsBadIntentAndText проверяет обязательные intent и assistantText.
func TestProposeRejectsBadIntentAndText(t *testing.T) {
	cases := map[string]string{
		"bad intent":   `{"intent":"smalltalk","assistantText":"hi","proposedActionDrafts":[]}`,
		"empty text":   `{"intent":"question_advice","assistantText":"","proposedActionDrafts":[]}`,
		"no drafts":    `{"intent":"question_advice","assistantText":"hi"}`,
		"not a string": `{"intent":42,"assistantText":"hi","proposedActionDrafts":[]}`,
	}

	for name, rawArgs := range cases {
		service := NewService(&stubCaller{rawArgs: json.RawMessage(rawArgs)})
		_, err := service.Propose(context.Background(), ProposeInput{MessageText: "hi"})
		if proposeStage(t, err) != StageInvalidArgs {
			t.Fatalf("%s: expected invalid_args, got %v", name, err)
		}
	}
}

// TestProposeRejectsTooManyDrafts проверяет лимит в три черновика.
func TestProposeRejectsTooManyDrafts(t *testing.T) {
	groceries := proposePod("Groceries", models.PodCategoryNecessities, 10000)

	draft := fmt.Sprintf(`{
		"type": "budget_adjust",
		"payload": {"kind":"budget_adjust","delta_in_cents":100,"pod_id":%q,"pod_name":"Groceries"}
	}`, groceries.Pod.ID)
	rawArgs := []byte(fmt.Sprintf(`{
		"intent": "request_budget_change",
		"assistantText": "ok",
		"proposedActionDrafts": [%s,%s,%s,%s]
	}`, draft, draft, draft, draft))

	service := NewService(&stubCaller{rawArgs: rawArgs})
	_, err := service.Propose(context.Background(), ProposeInput{
		MessageText: "bump groceries four times",
		Pods:        []models.PodWithSettings{groceries},
	})
	if proposeStage(t, err) != StageInvalidArgs {
		t.Fatalf("expected invalid_args, got %v", err)
	}
}

// TestProposeObservedTransferForbidsTransferDrafts проверяет бизнес-правило intent.
func TestProposeObservedTransferForbidsTransferDrafts(t *testing.T) {
	groceries := proposePod("Groceries", models.PodCategoryNecessities, 10000)
	vacation := proposePod("Vacation", models.PodCategorySavings, 50000)

	rawArgs := []byte(fmt.Sprintf(`{
		"intent": "observed_transfer",
		"assistantText": "Logged it.",
		"proposedActionDrafts": [
			{
				"type": "budget_transfer",
				"payload": {
					"kind": "budget_transfer",
					"amount_in_cents": 2500,
					"from_pod_id": %q,
					"from_pod_name": "Vacation",
					"to_pod_id": %q,
					"to_pod_name": "Groceries"
				}
			}
		]
	}`, vacation.Pod.ID, groceries.Pod.ID))

	service := NewService(&stubCaller{rawArgs: rawArgs})
	_, err := service.Propose(context.Background(), ProposeInput{
		MessageText: "i moved $25 from vacation to groceries",
		Pods:        []models.PodWithSettings{groceries, vacation},
		Intent:      models.IntentObservedTransfer,
	})
	if proposeStage(t, err) != StageInvalidArgs {
		t.Fatalf("expected invalid_args, got %v", err)
	}
}

// TestProposeQuestionAdviceForbidsDrafts проверяет запрет действий для вопросов.
func TestProposeQuestionAdviceForbidsDrafts(t *testing.T) {
	groceries := proposePod("Groceries", models.PodCategoryNecessities, 10000)

	rawArgs := []byte(fmt.Sprintf(`{
		"intent": "question_advice",
		"assistantText": "Here is an idea.",
		"proposedActionDrafts": [
			{
				"type": "budget_adjust",
				"payload": {"kind":"budget_adjust","delta_in_cents":100,"pod_id":%q,"pod_name":"Groceries"}
			}
		]
	}`, groceries.Pod.ID))

	service := NewService(&stubCaller{rawArgs: rawArgs})
	_, err := service.Propose(context.Background(), ProposeInput{
		MessageText: "got any ideas?",
		Pods:        []models.PodWithSettings{groceries},
		Intent:      models.IntentQuestionAdvice,
	})
	if proposeStage(t, err) != StageInvalidArgs {
		t.Fatalf("expected invalid_args, got %v", err)
	}
}

// TestProposeRejectsUnknownPodAndSamePod проверяет повторную сверку id с подами.
func TestProposeRejectsUnknownPodAndSamePod(t *testing.T) {
	groceries := proposePod("Groceries", models.PodCategoryNecessities, 10000)

	unknown := fmt.Sprintf(`{
		"intent": "request_budget_change",
		"assistantText": "ok",
		"proposedActionDrafts": [
			{
				"type": "budget_adjust",
				"payload": {"kind":"budget_adjust","delta_in_cents":100,"pod_id":%q,"pod_name":"Ghost"}
			}
		]
	}`, uuid.New())
	samePod := fmt.Sprintf(`{
		"intent": "request_budget_change",
		"assistantText": "ok",
		"proposedActionDrafts": [
			{
				"type": "budget_transfer",
				"payload": {
					"kind": "budget_transfer",
					"amount_in_cents": 100,
					"from_pod_id": %[1]q,
					"from_pod_name": "Groceries",
					"to_pod_id": %[1]q,
					"to_pod_name": "Groceries"
				}
			}
		]
	}`, groceries.Pod.ID)

	for name, rawArgs := range map[string]string{"unknown pod": unknown, "same pod": samePod} {
		service := NewService(&stubCaller{rawArgs: json.RawMessage(rawArgs)})
		_, err := service.Propose(context.Background(), ProposeInput{
			MessageText: "do it",
			Pods:        []models.PodWithSettings{groceries},
		})
		if proposeStage(t, err) != StageInvalidArgs {
			t.Fatalf("%s: expected invalid_args, got %v", name, err)
		}
	}
}

// TestProposeToolParseStage проверяет стадию tool_parse для не-JSON аргументов.
func TestProposeToolParseStage(t *testing.T) {
	service := NewService(&stubCaller{rawArgs: json.RawMessage(`"sure, moving the money"`)})
	_, err := service.Propose(context.Background(), ProposeInput{MessageText: "hi"})
	if proposeStage(t, err) != StageToolParse {
		t.Fatalf("expected tool_parse, got %v", err)
	}
}

// TestProposePassesThroughClientStage проверяет сохранение стадии ошибки клиента.
func TestProposePassesThroughClientStage(t *testing.T) {
	service := NewService(&stubCaller{err: newProposeError(StageTimeout, "OpenAI request timed out")})
	_, err := service.Propose(context.Background(), ProposeInput{MessageText: "hi"})
	if proposeStage(t, err) != StageTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

// TestProposeMergesEntities проверяет слияние кандидатов с колпаком в восемь имен.
func TestProposeMergesEntities(t *testing.T) {
	pods := make([]models.PodWithSettings, 0, 6)
	baseline := models.ParsedEntitiesHints{ToCandidate: "Pod 2"}
	for i := 0; i < 6; i++ {
		pods = append(pods, proposePod(fmt.Sprintf("Pod %d", i), models.PodCategoryDiscretionary, 1000))
		baseline.Candidates = append(baseline.Candidates, fmt.Sprintf("Pod %d", i))
	}

	rawArgs := []byte(`{
		"intent": "question_advice",
		"assistantText": "Here are some options.",
		"proposedActionDrafts": [],
		"entities": {
			"fromCandidate": "Pod 1",
			"candidates": ["Pod 1", "Extra A", "Extra B", "Extra C"]
		}
	}`)

	service := NewService(&stubCaller{rawArgs: rawArgs})
	result, err := service.Propose(context.Background(), ProposeInput{
		MessageText: "got any ideas?",
		Pods:        pods,
		Intent:      models.IntentQuestionAdvice,
		Baseline:    baseline,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Entities.Candidates) != 8 {
		t.Fatalf("expected 8 candidates, got %d: %v", len(result.Entities.Candidates), result.Entities.Candidates)
	}
	if result.Entities.Candidates[6] != "Extra A" || result.Entities.Candidates[7] != "Extra B" {
		t.Fatalf("expected AI candidates after baseline names, got %v", result.Entities.Candidates)
	}
	if result.Entities.FromCandidate != "Pod 1" {
		t.Fatalf("expected fromCandidate, got %q", result.Entities.FromCandidate)
	}
	if result.Entities.ToCandidate != "Pod 2" {
		t.Fatalf("expected baseline toCandidate to survive, got %q", result.Entities.ToCandidate)
	}
}

// TestProposeKeepsBaselineEntitiesWhenModelOmitsThem проверяет, что без entities
// от модели детерминированные подсказки возвращаются без изменений.
func TestProposeKeepsBaselineEntitiesWhenModelOmitsThem(t *testing.T) {
	baseline := models.ParsedEntitiesHints{
		FromCandidate: "Groceries",
		ToCandidate:   "Education",
		Candidates:    []string{"Groceries", "Education"},
	}

	rawArgs := []byte(`{
		"intent": "question_advice",
		"assistantText": "Sure, I can help.",
		"proposedActionDrafts": []
	}`)

	service := NewService(&stubCaller{rawArgs: rawArgs})
	result, err := service.Propose(context.Background(), ProposeInput{
		MessageText: "can I move $20 from groceries to education?",
		Intent:      models.IntentQuestionAdvice,
		Baseline:    baseline,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Entities.FromCandidate != "Groceries" || result.Entities.ToCandidate != "Education" {
		t.Fatalf("expected baseline hints to survive, got %+v", result.Entities)
	}
	if len(result.Entities.Candidates) != 2 {
		t.Fatalf("expected baseline candidates, got %v", result.Entities.Candidates)
	}
}

// TestProposeRejectsEntitiesWithoutCandidates проверяет обязательность candidates.
func TestProposeRejectsEntitiesWithoutCandidates(t *testing.T) {
	rawArgs := []byte(`{
		"intent": "question_advice",
		"assistantText": "ok",
		"proposedActionDrafts": [],
		"entities": {"fromCandidate": "Groceries"}
	}`)

	service := NewService(&stubCaller{rawArgs: rawArgs})
	_, err := service.Propose(context.Background(), ProposeInput{MessageText: "hi"})
	if proposeStage(t, err) != StageInvalidArgs {
		t.Fatalf("expected invalid_args, got %v", err)
	}
}

// TestProposePromptIncludesPods проверяет состав пользовательского промпта.
func TestProposePromptIncludesPods(t *testing.T) {
	groceries := proposePod("Groceries", models.PodCategoryNecessities, 10000)

	caller := &stubCaller{rawArgs: json.RawMessage(`{"intent":"question_advice","assistantText":"hi","proposedActionDrafts":[]}`)}
	service := NewService(caller)
	if _, err := service.Propose(context.Background(), ProposeInput{
		MessageText: "got any ideas?",
		Pods:        []models.PodWithSettings{groceries},
		Intent:      models.IntentQuestionAdvice,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(caller.userPrompt, groceries.Pod.ID.String()) {
		t.Fatal("expected pod id in prompt")
	}
	if !strings.Contains(caller.userPrompt, `"Groceries"`) {
		t.Fatal("expected pod name in prompt")
	}
	if !strings.Contains(caller.userPrompt, "Intent hint: question_advice") {
		t.Fatal("expected intent hint in prompt")
	}
}
