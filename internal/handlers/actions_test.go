package handlers

import (
	"testing"

	"github.com/google/uuid"

	"example.com/pod-budget-chat/backend/internal/models"
)

func actionWithStatus(status models.ProposedActionStatus) models.ProposedAction {
	return models.ProposedAction{
		ID:     uuid.New(),
		Type:   models.ActionTypeBudgetAdjust,
		Status: status,
	}
}

// TestTriageActionStatusesAlreadyApplied проверяет идемпотентность полностью
// примененного пакета.
func TestTriageActionStatusesAlreadyApplied(t *testing.T) {
	actions := []models.ProposedAction{
		actionWithStatus(models.ActionStatusApplied),
		actionWithStatus(models.ActionStatusApplied),
	}

	decision, blocking := triageActionStatuses(actions)
	if decision != applyAlreadyApplied {
		t.Fatalf("expected already_applied decision, got %d", decision)
	}
	if blocking != nil {
		t.Fatalf("expected no blocking action, got %v", blocking.ID)
	}
}

// TestTriageActionStatusesMixedConflict проверяет конфликт смешанных статусов.
func TestTriageActionStatusesMixedConflict(t *testing.T) {
	applied := actionWithStatus(models.ActionStatusApplied)
	proposed := actionWithStatus(models.ActionStatusProposed)

	decision, blocking := triageActionStatuses([]models.ProposedAction{proposed, applied})
	if decision != applyConflict {
		t.Fatalf("expected conflict decision, got %d", decision)
	}
	if blocking == nil || blocking.ID != applied.ID {
		t.Fatalf("expected the applied action to block, got %v", blocking)
	}
}

// TestTriageActionStatusesFailedConflict проверяет конфликт для failed и ignored.
func TestTriageActionStatusesFailedConflict(t *testing.T) {
	for _, status := range []models.ProposedActionStatus{models.ActionStatusFailed, models.ActionStatusIgnored} {
		bad := actionWithStatus(status)
		decision, blocking := triageActionStatuses([]models.ProposedAction{
			actionWithStatus(models.ActionStatusProposed),
			bad,
		})
		if decision != applyConflict {
			t.Fatalf("status %s: expected conflict decision, got %d", status, decision)
		}
		if blocking == nil || blocking.Status != status {
			t.Fatalf("status %s: expected blocking action, got %v", status, blocking)
		}
	}
}

// TestTriageActionStatusesProceed проверяет пропуск полностью proposed пакета.
func TestTriageActionStatusesProceed(t *testing.T) {
	actions := []models.ProposedAction{
		actionWithStatus(models.ActionStatusProposed),
		actionWithStatus(models.ActionStatusProposed),
	}

	decision, blocking := triageActionStatuses(actions)
	if decision != applyProceed {
		t.Fatalf("expected proceed decision, got %d", decision)
	}
	if blocking != nil {
		t.Fatalf("expected no blocking action, got %v", blocking.ID)
	}
}
