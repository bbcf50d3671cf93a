package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/pod-budget-chat/backend/internal/models"
)

// NegativeBudgetError сообщает, какой под ушел бы в минус.
type NegativeBudgetError struct {
	PodName string
	Next    int64
}

func (e *NegativeBudgetError) Error() string {
	return fmt.Sprintf("Budget for %s would become negative (%d cents).", e.PodName, e.Next)
}

func assertNonNegative(next int64, podName string) error {
	if next < 0 {
		return &NegativeBudgetError{PodName: podName, Next: next}
	}
	return nil
}

// ApplyPayloads применяет payload строго по порядку к карте бюджета под->центы.
// Любое нарушение неотрицательности прерывает весь пакет; карта при этом может
// быть частично изменена, поэтому вызывающий должен сохранять значения только
// после успешного возврата.
func ApplyPayloads(payloads []models.ActionPayload, budgetByPodID map[uuid.UUID]int64) error {
	for _, payload := range payloads {
		switch payload.Kind {
		case models.ActionTypeBudgetTransfer:
			p := payload.Transfer
			fromNext := budgetByPodID[p.FromPodID] - p.AmountInCents
			toNext := budgetByPodID[p.ToPodID] + p.AmountInCents
			if err := assertNonNegative(fromNext, p.FromPodName); err != nil {
				return err
			}
			budgetByPodID[p.FromPodID] = fromNext
			budgetByPodID[p.ToPodID] = toNext

		case models.ActionTypeBudgetAdjust:
			p := payload.Adjust
			next := budgetByPodID[p.PodID] + p.DeltaInCents
			if err := assertNonNegative(next, p.PodName); err != nil {
				return err
			}
			budgetByPodID[p.PodID] = next

		case models.ActionTypeBudgetRepairRestoreDonor:
			p := payload.Repair
			donorNext := budgetByPodID[p.DonorPodID] + p.AmountInCents
			fundingNext := budgetByPodID[p.FundingPodID] - p.AmountInCents
			if err := assertNonNegative(fundingNext, p.FundingPodName); err != nil {
				return err
			}
			budgetByPodID[p.DonorPodID] = donorNext
			budgetByPodID[p.FundingPodID] = fundingNext

		default:
			return fmt.Errorf("unsupported action payload kind: %s", payload.Kind)
		}
	}

	return nil
}

// Change описывает изменение бюджета одного пода после применения пакета.
type Change struct {
	PodID         uuid.UUID `json:"pod_id"`
	PodName       string    `json:"pod_name"`
	DeltaInCents  int64     `json:"delta_in_cents"`
	BeforeInCents int64     `json:"before_in_cents"`
	AfterInCents  int64     `json:"after_in_cents"`
}

// Changes строит отчет по подам с ненулевой дельтой в порядке podIDs.
func Changes(podIDs []uuid.UUID, namesByPodID map[uuid.UUID]string, before, after map[uuid.UUID]int64) []Change {
	changes := make([]Change, 0, len(podIDs))
	for _, podID := range podIDs {
		b := before[podID]
		a := after[podID]
		if a == b {
			continue
		}
		name, ok := namesByPodID[podID]
		if !ok {
			continue
		}
		changes = append(changes, Change{
			PodID:         podID,
			PodName:       name,
			DeltaInCents:  a - b,
			BeforeInCents: b,
			AfterInCents:  a,
		})
	}
	return changes
}
