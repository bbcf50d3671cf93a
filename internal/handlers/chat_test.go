package handlers

import (
	"testing"

	"example.com/pod-budget-chat/backend/internal/ai"
	"example.com/pod-budget-chat/backend/internal/models"
)

// TestClassifyIntent проверяет детерминированную классификацию сообщений.
func TestClassifyIntent(t *testing.T) {
	cases := map[string]models.ChatIntent{
		"I moved $25 from Groceries to Education":    models.IntentObservedTransfer,
		"i transferred $40 to savings":               models.IntentObservedTransfer,
		"I already moved the rent money":             models.IntentObservedTransfer,
		"I just moved $100 from Fun Money":           models.IntentObservedTransfer,
		"I sent $30 to the vacation pod":             models.IntentObservedTransfer,
		"I paid $120 from Groceries":                 models.IntentObservedTransfer,
		"I took from savings to cover gas":           models.IntentObservedTransfer,
		"I, moved $20 from Groceries to Education":   models.IntentObservedTransfer,
		"Well... I transferred $15 to Fun Money":     models.IntentObservedTransfer,
		"Got any ideas?!":                            models.IntentQuestionAdvice,
		"Got any ideas for trimming dining out":      models.IntentQuestionAdvice,
		"How should we handle the car repair":        models.IntentQuestionAdvice,
		"What should we cut this month":              models.IntentQuestionAdvice,
		"Can we afford a bigger vacation budget":     models.IntentQuestionAdvice,
		"Is the rent pod funded?":                    models.IntentQuestionAdvice,
		"Move $220 from Moving Fund to Health":       models.IntentRequestBudgetChange,
		"Groceries is short $40":                     models.IntentRequestBudgetChange,
		"Bump the dining out budget":                 models.IntentRequestBudgetChange,
	}

	for message, want := range cases {
		if got := classifyIntent(message); got != want {
			t.Fatalf("classifyIntent(%q) = %s, want %s", message, got, want)
		}
	}
}

// TestAIGate проверяет условия обращения к модели: флаг, ключ, намерение.
func TestAIGate(t *testing.T) {
	if try, warn := aiGate(false, true, models.IntentRequestBudgetChange); try || warn != "" {
		t.Fatalf("flag off: expected silent deterministic mode, got try=%v warn=%q", try, warn)
	}
	if try, warn := aiGate(false, false, models.IntentRequestBudgetChange); try || warn != "" {
		t.Fatalf("flag off without key: expected silent deterministic mode, got try=%v warn=%q", try, warn)
	}
	if try, warn := aiGate(true, false, models.IntentRequestBudgetChange); try || warn != WarnAIDisabledNoKey {
		t.Fatalf("flag on without key: expected %s warning, got try=%v warn=%q", WarnAIDisabledNoKey, try, warn)
	}
	if try, warn := aiGate(true, true, models.IntentObservedTransfer); try || warn != "" {
		t.Fatalf("observed transfer: expected deterministic mode, got try=%v warn=%q", try, warn)
	}
	if try, warn := aiGate(true, true, models.IntentRequestBudgetChange); !try || warn != "" {
		t.Fatalf("flag and key present: expected AI attempt, got try=%v warn=%q", try, warn)
	}
}

// TestWarningForStage проверяет соответствие стадий отказа кодам предупреждений.
func TestWarningForStage(t *testing.T) {
	cases := map[ai.FailureStage]string{
		ai.StageMissingKey:  WarnAIDisabledNoKey,
		ai.StageTimeout:     WarnAITimeout,
		ai.StageToolMissing: WarnAISchemaInvalid,
		ai.StageToolParse:   WarnAISchemaInvalid,
		ai.StageInvalidArgs: WarnAISchemaInvalid,
		ai.StageAPIError:    WarnAIError,
	}

	for stage, want := range cases {
		if got := warningForStage(stage); got != want {
			t.Fatalf("warningForStage(%s) = %s, want %s", stage, got, want)
		}
	}
}
