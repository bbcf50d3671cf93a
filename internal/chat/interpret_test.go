package chat

import (
	"strings"
	"testing"

	"example.com/pod-budget-chat/backend/internal/models"
)

// TestParseUSDToCents проверяет разбор долларовых сумм.
func TestParseUSDToCents(t *testing.T) {
	cases := []struct {
		raw   string
		cents int64
		ok    bool
	}{
		{"25", 2500, true},
		{"1,250.50", 125050, true},
		{"0.01", 1, true},
		{"0", 0, false},
		{"-5", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		cents, ok := ParseUSDToCents(tc.raw)
		if ok != tc.ok || cents != tc.cents {
			t.Fatalf("ParseUSDToCents(%q) = %d, %v; want %d, %v", tc.raw, cents, ok, tc.cents, tc.ok)
		}
	}
}

// TestDetectTransferIntent проверяет различение совершенного и запрошенного перевода.
func TestDetectTransferIntent(t *testing.T) {
	cases := map[string]TransferIntent{
		"I moved $25 from Groceries to Education":     TransferIntentObserved,
		"i already moved 40 from a to b":              TransferIntentObserved,
		"I transferred $10 from Gas to Fun":           TransferIntentObserved,
		"moved $80 from Groceries to Education":       TransferIntentObserved,
		"I had to transfer $15 from Wifi to Phones":   TransferIntentObserved,
		"can you move $20 from Groceries to Dining":   TransferIntentRequest,
		"I need to transfer $5 from Fun to Groceries": TransferIntentRequest,
		"groceries is short 40":                       TransferIntentUnknown,
	}

	for text, want := range cases {
		if got := DetectTransferIntent(text); got != want {
			t.Fatalf("DetectTransferIntent(%q) = %s, want %s", text, got, want)
		}
	}
}

// TestInterpretObservedTransfer проверяет черновик возмещения из Move to ___.
func TestInterpretObservedTransfer(t *testing.T) {
	groceries := testPod("Groceries", models.PodCategoryNecessities, 1000)
	education := testPod("Education", models.PodCategoryNecessities, 2000)
	moveTo := testPod(MoveToPodName, models.PodCategoryDiscretionary, 5000)
	pods := []models.PodWithSettings{groceries, education, moveTo}

	result := Interpret("I moved $25 from Groceries to Education", pods)

	if result.ObservedTransfer == nil {
		t.Fatal("expected observed transfer event")
	}
	if result.ObservedTransfer.AmountInCents != 2500 {
		t.Fatalf("expected amount 2500, got %d", result.ObservedTransfer.AmountInCents)
	}
	if result.ObservedTransfer.FromPodID != groceries.Pod.ID || result.ObservedTransfer.ToPodID != education.Pod.ID {
		t.Fatal("observed transfer references wrong pods")
	}

	if len(result.ProposedActionDrafts) != 1 {
		t.Fatalf("expected 1 repair draft, got %d", len(result.ProposedActionDrafts))
	}
	draft := result.ProposedActionDrafts[0]
	if draft.Type != models.ActionTypeBudgetRepairRestoreDonor {
		t.Fatalf("expected repair draft, got %s", draft.Type)
	}
	repair := draft.Payload.Repair
	if repair == nil {
		t.Fatal("expected repair payload")
	}
	if repair.DonorPodID != groceries.Pod.ID {
		t.Fatal("expected donor to be Groceries")
	}
	if repair.FundingPodName != MoveToPodName || repair.AmountInCents != 2500 {
		t.Fatalf("expected funding %s for 2500, got %s %d", MoveToPodName, repair.FundingPodName, repair.AmountInCents)
	}
	if result.Entities.FundingCandidate != MoveToPodName {
		t.Fatalf("expected funding candidate hint, got %q", result.Entities.FundingCandidate)
	}
}

// TestInterpretRequestedTransfer проверяет черновик прямого переноса бюджета.
func TestInterpretRequestedTransfer(t *testing.T) {
	moving := testPod("Moving Fund", models.PodCategorySavings, 100000)
	health := testPod("Health", models.PodCategoryNecessities, 3000)
	pods := []models.PodWithSettings{moving, health}

	result := Interpret("Move $220 from Moving Fund to Health", pods)

	if result.ObservedTransfer != nil {
		t.Fatal("requested transfer must not log an observed event")
	}
	if len(result.ProposedActionDrafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(result.ProposedActionDrafts))
	}
	transfer := result.ProposedActionDrafts[0].Payload.Transfer
	if transfer == nil {
		t.Fatal("expected transfer payload")
	}
	if transfer.AmountInCents != 22000 {
		t.Fatalf("expected 22000 cents, got %d", transfer.AmountInCents)
	}
	if transfer.FromPodID != moving.Pod.ID || transfer.ToPodID != health.Pod.ID {
		t.Fatal("transfer references wrong pods")
	}
}

// TestInterpretShortfall проверяет корректировку бюджета при нехватке.
func TestInterpretShortfall(t *testing.T) {
	groceries := testPod("Groceries", models.PodCategoryNecessities, 1000)
	pods := []models.PodWithSettings{groceries}

	result := Interpret("Groceries is short $40", pods)

	if len(result.ProposedActionDrafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(result.ProposedActionDrafts))
	}
	adjust := result.ProposedActionDrafts[0].Payload.Adjust
	if adjust == nil {
		t.Fatal("expected adjust payload")
	}
	if adjust.DeltaInCents != 4000 || adjust.PodID != groceries.Pod.ID {
		t.Fatalf("expected +4000 for Groceries, got %+v", adjust)
	}
}

// TestInterpretRentDueSoon проверяет уточняющий вопрос без черновиков.
func TestInterpretRentDueSoon(t *testing.T) {
	rent := testPod("Rent", models.PodCategoryNecessities, 90000)
	pods := []models.PodWithSettings{rent, testPod("Groceries", models.PodCategoryNecessities, 1000)}

	result := Interpret("rent due soon", pods)

	if len(result.ProposedActionDrafts) != 0 {
		t.Fatalf("expected no drafts, got %d", len(result.ProposedActionDrafts))
	}
	if result.Entities.ToCandidate != "rent" {
		t.Fatalf("expected rent candidate hint, got %q", result.Entities.ToCandidate)
	}
	if len(result.Entities.Candidates) == 0 || result.Entities.Candidates[0] != "Rent" {
		t.Fatalf("expected Rent ranked first, got %v", result.Entities.Candidates)
	}
}

// TestInterpretFallback проверяет подсказку для нераспознанных сообщений.
func TestInterpretFallback(t *testing.T) {
	pods := []models.PodWithSettings{testPod("Groceries", models.PodCategoryNecessities, 1000)}

	result := Interpret("hello there", pods)

	if len(result.ProposedActionDrafts) != 0 {
		t.Fatalf("expected no drafts, got %d", len(result.ProposedActionDrafts))
	}
	if !strings.Contains(result.AssistantText, "I can help with") {
		t.Fatalf("expected help text, got %q", result.AssistantText)
	}
}

// TestInterpretAmbiguousPods проверяет уточнение при неоднозначных именах.
func TestInterpretAmbiguousPods(t *testing.T) {
	pods := []models.PodWithSettings{
		testPod("Groceries", models.PodCategoryNecessities, 1000),
		testPod("Groceries Extra", models.PodCategoryDiscretionary, 500),
		testPod("Education", models.PodCategoryNecessities, 2000),
	}

	result := Interpret("moved $10 from grocer to Education", pods)

	if len(result.ProposedActionDrafts) != 0 {
		t.Fatalf("expected no drafts for ambiguous query, got %d", len(result.ProposedActionDrafts))
	}
	if result.ObservedTransfer != nil {
		t.Fatal("ambiguous query must not log an event")
	}
	if !strings.Contains(result.AssistantText, "Which pods did you mean") {
		t.Fatalf("unexpected assistant text: %q", result.AssistantText)
	}
}

// TestInterpretSamePod проверяет отказ при совпадении подов.
func TestInterpretSamePod(t *testing.T) {
	pods := []models.PodWithSettings{testPod("Groceries", models.PodCategoryNecessities, 1000)}

	result := Interpret("moved $10 from Groceries to Groceries", pods)

	if len(result.ProposedActionDrafts) != 0 || result.ObservedTransfer != nil {
		t.Fatal("expected clarification only")
	}
	if !strings.Contains(result.AssistantText, "same pod") {
		t.Fatalf("unexpected assistant text: %q", result.AssistantText)
	}
}

// TestInterpretBadAmount проверяет отказ на нулевой сумме.
func TestInterpretBadAmount(t *testing.T) {
	pods := []models.PodWithSettings{
		testPod("Groceries", models.PodCategoryNecessities, 1000),
		testPod("Education", models.PodCategoryNecessities, 2000),
	}

	result := Interpret("moved $0 from Groceries to Education", pods)

	if len(result.ProposedActionDrafts) != 0 || result.ObservedTransfer != nil {
		t.Fatal("expected no drafts for zero amount")
	}
	if !strings.Contains(result.AssistantText, "couldn’t parse the amount") {
		t.Fatalf("unexpected assistant text: %q", result.AssistantText)
	}
}

// TestInterpretObservedSplit проверяет разбиение возмещения между подами.
func TestInterpretObservedSplit(t *testing.T) {
	groceries := testPod("Groceries", models.PodCategoryNecessities, 0)
	education := testPod("Education", models.PodCategoryNecessities, 2000)
	fun := testPod("Fun Money", models.PodCategoryDiscretionary, 6000)
	dining := testPod("Dining Out", models.PodCategoryDiscretionary, 5000)
	pods := []models.PodWithSettings{groceries, education, fun, dining}

	result := Interpret("I moved $100 from Groceries to Education", pods)

	if result.ObservedTransfer == nil {
		t.Fatal("expected observed transfer event")
	}
	if len(result.ProposedActionDrafts) == 0 || len(result.ProposedActionDrafts)%2 != 0 {
		t.Fatalf("expected paired split drafts, got %d", len(result.ProposedActionDrafts))
	}

	first := result.ProposedActionDrafts[0].Payload.Repair
	second := result.ProposedActionDrafts[1].Payload.Repair
	if first == nil || second == nil {
		t.Fatal("expected repair payloads")
	}
	if first.AmountInCents+second.AmountInCents != 10000 {
		t.Fatalf("split must cover the amount, got %d + %d", first.AmountInCents, second.AmountInCents)
	}
	if first.OptionLabel != second.OptionLabel {
		t.Fatalf("paired drafts must share a label: %q vs %q", first.OptionLabel, second.OptionLabel)
	}
}
