package ledger

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"example.com/pod-budget-chat/backend/internal/models"
)

// TestApplyPayloadsRepair проверяет возмещение донора из источника.
func TestApplyPayloadsRepair(t *testing.T) {
	groceries := uuid.New()
	moveTo := uuid.New()
	budgets := map[uuid.UUID]int64{groceries: 1000, moveTo: 5000}

	payloads := []models.ActionPayload{
		models.NewRepairPayload(models.BudgetRepairPayload{
			AmountInCents:  300,
			DonorPodID:     groceries,
			DonorPodName:   "Groceries",
			FundingPodID:   moveTo,
			FundingPodName: "Move to ___",
		}),
	}

	if err := ApplyPayloads(payloads, budgets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if budgets[groceries] != 1300 {
		t.Fatalf("expected donor at 1300, got %d", budgets[groceries])
	}
	if budgets[moveTo] != 4700 {
		t.Fatalf("expected funding at 4700, got %d", budgets[moveTo])
	}
}

// TestApplyPayloadsTransferConserves проверяет сохранение суммы при переносе.
func TestApplyPayloadsTransferConserves(t *testing.T) {
	from := uuid.New()
	to := uuid.New()
	budgets := map[uuid.UUID]int64{from: 10000, to: 2000}

	payloads := []models.ActionPayload{
		models.NewTransferPayload(models.BudgetTransferPayload{
			AmountInCents: 2200,
			FromPodID:     from,
			FromPodName:   "Moving Fund",
			ToPodID:       to,
			ToPodName:     "Health",
		}),
	}

	if err := ApplyPayloads(payloads, budgets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if budgets[from] != 7800 || budgets[to] != 4200 {
		t.Fatalf("unexpected budgets: %d, %d", budgets[from], budgets[to])
	}
	if budgets[from]+budgets[to] != 12000 {
		t.Fatal("transfer must conserve the total")
	}
}

// TestApplyPayloadsAdjust проверяет корректировку с отрицательной дельтой.
func TestApplyPayloadsAdjust(t *testing.T) {
	pod := uuid.New()
	budgets := map[uuid.UUID]int64{pod: 4000}

	payloads := []models.ActionPayload{
		models.NewAdjustPayload(models.BudgetAdjustPayload{
			DeltaInCents: -1500,
			PodID:        pod,
			PodName:      "Groceries",
		}),
	}

	if err := ApplyPayloads(payloads, budgets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if budgets[pod] != 2500 {
		t.Fatalf("expected 2500, got %d", budgets[pod])
	}
}

// TestApplyPayloadsNegativeRejected проверяет запрет ухода в минус.
func TestApplyPayloadsNegativeRejected(t *testing.T) {
	from := uuid.New()
	to := uuid.New()
	budgets := map[uuid.UUID]int64{from: 100, to: 0}

	payloads := []models.ActionPayload{
		models.NewTransferPayload(models.BudgetTransferPayload{
			AmountInCents: 200,
			FromPodID:     from,
			FromPodName:   "Groceries",
			ToPodID:       to,
			ToPodName:     "Education",
		}),
	}

	err := ApplyPayloads(payloads, budgets)
	if err == nil {
		t.Fatal("expected negative budget error")
	}

	var negativeErr *NegativeBudgetError
	if !errors.As(err, &negativeErr) {
		t.Fatalf("expected NegativeBudgetError, got %T", err)
	}
	if negativeErr.PodName != "Groceries" {
		t.Fatalf("expected Groceries, got %s", negativeErr.PodName)
	}
	if budgets[from] != 100 || budgets[to] != 0 {
		t.Fatal("failed payload must not change budgets")
	}
}

// TestApplyPayloadsOrdered проверяет применение пакета строго по порядку.
func TestApplyPayloadsOrdered(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	budgets := map[uuid.UUID]int64{a: 0, b: 500}

	// Первая операция пополняет a, вторая списывает с него же.
	payloads := []models.ActionPayload{
		models.NewRepairPayload(models.BudgetRepairPayload{
			AmountInCents:  500,
			DonorPodID:     a,
			DonorPodName:   "A",
			FundingPodID:   b,
			FundingPodName: "B",
		}),
		models.NewTransferPayload(models.BudgetTransferPayload{
			AmountInCents: 200,
			FromPodID:     a,
			FromPodName:   "A",
			ToPodID:       b,
			ToPodName:     "B",
		}),
	}

	if err := ApplyPayloads(payloads, budgets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if budgets[a] != 300 || budgets[b] != 200 {
		t.Fatalf("unexpected budgets: %d, %d", budgets[a], budgets[b])
	}
}

// TestChanges проверяет отчет об изменениях с ненулевой дельтой.
func TestChanges(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()
	names := map[uuid.UUID]string{a: "A", b: "B", c: "C"}
	before := map[uuid.UUID]int64{a: 100, b: 200, c: 300}
	after := map[uuid.UUID]int64{a: 150, b: 200, c: 250}

	changes := Changes([]uuid.UUID{a, b, c}, names, before, after)

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].PodName != "A" || changes[0].DeltaInCents != 50 {
		t.Fatalf("unexpected first change: %+v", changes[0])
	}
	if changes[1].PodName != "C" || changes[1].DeltaInCents != -50 {
		t.Fatalf("unexpected second change: %+v", changes[1])
	}
}
