package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PodCategory string

type ProposedActionType string

type ProposedActionStatus string

type ChatSenderRole string

type ChatIntent string

const (
	IntentObservedTransfer    ChatIntent = "observed_transfer"
	IntentQuestionAdvice      ChatIntent = "question_advice"
	IntentRequestBudgetChange ChatIntent = "request_budget_change"
)

const (
	PodCategoryIncome        PodCategory = "Income"
	PodCategorySavings       PodCategory = "Savings"
	PodCategoryKiddos        PodCategory = "Kiddos"
	PodCategoryNecessities   PodCategory = "Necessities"
	PodCategoryPressing      PodCategory = "Pressing"
	PodCategoryDiscretionary PodCategory = "Discretionary"

	ActionTypeBudgetTransfer           ProposedActionType = "budget_transfer"
	ActionTypeBudgetAdjust             ProposedActionType = "budget_adjust"
	ActionTypeBudgetRepairRestoreDonor ProposedActionType = "budget_repair_restore_donor"

	ActionStatusProposed ProposedActionStatus = "proposed"
	ActionStatusApplied  ProposedActionStatus = "applied"
	ActionStatusIgnored  ProposedActionStatus = "ignored"
	ActionStatusFailed   ProposedActionStatus = "failed"

	SenderRoleUser      ChatSenderRole = "user"
	SenderRoleAssistant ChatSenderRole = "assistant"

	EventTypeObservedTransfer = "observed_transfer"
)

type Pod struct {
	ID                   uuid.UUID  `json:"id"`
	HouseholdID          uuid.UUID  `json:"household_id"`
	Name                 string     `json:"name"`
	IsActive             bool       `json:"is_active"`
	BalanceAmountInCents *int64     `json:"balance_amount_in_cents"`
	BalanceError         *string    `json:"balance_error"`
	BalanceUpdatedAt     *time.Time `json:"balance_updated_at"`
	CreatedAt            time.Time  `json:"created_at"`
}

type PodSettings struct {
	PodID                 uuid.UUID    `json:"pod_id"`
	Category              *PodCategory `json:"category"`
	BudgetedAmountInCents int64        `json:"budgeted_amount_in_cents"`
}

type PodWithSettings struct {
	Pod      Pod
	Settings *PodSettings
}

// Category returns the pod category, nil when settings are absent.
func (p PodWithSettings) Category() *PodCategory {
	if p.Settings == nil {
		return nil
	}
	return p.Settings.Category
}

// BudgetedAmountInCents returns the planned amount, zero when settings are absent.
func (p PodWithSettings) BudgetedAmountInCents() int64 {
	if p.Settings == nil {
		return 0
	}
	return p.Settings.BudgetedAmountInCents
}

type BudgetTransferPayload struct {
	Kind          ProposedActionType `json:"kind"`
	AmountInCents int64              `json:"amount_in_cents"`
	FromPodID     uuid.UUID          `json:"from_pod_id"`
	FromPodName   string             `json:"from_pod_name"`
	ToPodID       uuid.UUID          `json:"to_pod_id"`
	ToPodName     string             `json:"to_pod_name"`
}

type BudgetAdjustPayload struct {
	Kind         ProposedActionType `json:"kind"`
	DeltaInCents int64              `json:"delta_in_cents"`
	PodID        uuid.UUID          `json:"pod_id"`
	PodName      string             `json:"pod_name"`
}

type BudgetRepairPayload struct {
	Kind           ProposedActionType `json:"kind"`
	AmountInCents  int64              `json:"amount_in_cents"`
	DonorPodID     uuid.UUID          `json:"donor_pod_id"`
	DonorPodName   string             `json:"donor_pod_name"`
	FundingPodID   uuid.UUID          `json:"funding_pod_id"`
	FundingPodName string             `json:"funding_pod_name"`
	OptionLabel    string             `json:"option_label,omitempty"`
}

// ActionPayload is the tagged union of the three action payload shapes.
// Exactly one of the pointers is set, matching Kind.
type ActionPayload struct {
	Kind     ProposedActionType
	Transfer *BudgetTransferPayload
	Adjust   *BudgetAdjustPayload
	Repair   *BudgetRepairPayload
}

// NewTransferPayload собирает payload перевода с согласованным дискриминатором.
func NewTransferPayload(p BudgetTransferPayload) ActionPayload {
	p.Kind = ActionTypeBudgetTransfer
	return ActionPayload{Kind: ActionTypeBudgetTransfer, Transfer: &p}
}

// NewAdjustPayload собирает payload корректировки бюджета.
func NewAdjustPayload(p BudgetAdjustPayload) ActionPayload {
	p.Kind = ActionTypeBudgetAdjust
	return ActionPayload{Kind: ActionTypeBudgetAdjust, Adjust: &p}
}

// NewRepairPayload собирает payload восстановления донорского пода.
func NewRepairPayload(p BudgetRepairPayload) ActionPayload {
	p.Kind = ActionTypeBudgetRepairRestoreDonor
	return ActionPayload{Kind: ActionTypeBudgetRepairRestoreDonor, Repair: &p}
}

// MarshalJSON пишет активный вариант union как плоский объект.
func (p ActionPayload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ActionTypeBudgetTransfer:
		if p.Transfer == nil {
			return nil, fmt.Errorf("payload kind %s has no transfer body", p.Kind)
		}
		return json.Marshal(p.Transfer)
	case ActionTypeBudgetAdjust:
		if p.Adjust == nil {
			return nil, fmt.Errorf("payload kind %s has no adjust body", p.Kind)
		}
		return json.Marshal(p.Adjust)
	case ActionTypeBudgetRepairRestoreDonor:
		if p.Repair == nil {
			return nil, fmt.Errorf("payload kind %s has no repair body", p.Kind)
		}
		return json.Marshal(p.Repair)
	default:
		return nil, fmt.Errorf("unsupported payload kind: %s", p.Kind)
	}
}

// UnmarshalJSON читает union по полю kind.
func (p *ActionPayload) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind ProposedActionType `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Kind {
	case ActionTypeBudgetTransfer:
		var body BudgetTransferPayload
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		*p = ActionPayload{Kind: head.Kind, Transfer: &body}
	case ActionTypeBudgetAdjust:
		var body BudgetAdjustPayload
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		*p = ActionPayload{Kind: head.Kind, Adjust: &body}
	case ActionTypeBudgetRepairRestoreDonor:
		var body BudgetRepairPayload
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		*p = ActionPayload{Kind: head.Kind, Repair: &body}
	default:
		return fmt.Errorf("unsupported payload kind: %s", head.Kind)
	}

	return nil
}

// PodIDs возвращает идентификаторы подов, затронутых payload.
func (p ActionPayload) PodIDs() []uuid.UUID {
	switch p.Kind {
	case ActionTypeBudgetTransfer:
		return []uuid.UUID{p.Transfer.FromPodID, p.Transfer.ToPodID}
	case ActionTypeBudgetAdjust:
		return []uuid.UUID{p.Adjust.PodID}
	case ActionTypeBudgetRepairRestoreDonor:
		return []uuid.UUID{p.Repair.DonorPodID, p.Repair.FundingPodID}
	default:
		return nil
	}
}

type ProposedActionDraft struct {
	Type    ProposedActionType `json:"type"`
	Payload ActionPayload      `json:"payload"`
}

type ProposedAction struct {
	ID          uuid.UUID            `json:"id"`
	HouseholdID uuid.UUID            `json:"-"`
	MessageID   uuid.UUID            `json:"-"`
	Type        ProposedActionType   `json:"type"`
	Payload     ActionPayload        `json:"payload"`
	Status      ProposedActionStatus `json:"status"`
	AppliedAt   *time.Time           `json:"applied_at,omitempty"`
	AppliedBy   *uuid.UUID           `json:"applied_by,omitempty"`
	CreatedAt   time.Time            `json:"-"`
}

type ObservedTransferEvent struct {
	AmountInCents  int64     `json:"amount_in_cents"`
	FromPodID      uuid.UUID `json:"from_pod_id"`
	FromPodName    string    `json:"from_pod_name"`
	ToPodID        uuid.UUID `json:"to_pod_id"`
	ToPodName      string    `json:"to_pod_name"`
	RawMessageText string    `json:"raw_message_text"`
}

type ParsedEntitiesHints struct {
	FromCandidate    string   `json:"fromCandidate,omitempty"`
	ToCandidate      string   `json:"toCandidate,omitempty"`
	FundingCandidate string   `json:"fundingCandidate,omitempty"`
	Candidates       []string `json:"candidates"`
}

type ChatThread struct {
	ID          uuid.UUID `json:"id"`
	HouseholdID uuid.UUID `json:"household_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type ChatMessage struct {
	ID           uuid.UUID      `json:"id"`
	ThreadID     uuid.UUID      `json:"thread_id"`
	SenderRole   ChatSenderRole `json:"sender_role"`
	SenderUserID *uuid.UUID     `json:"sender_user_id,omitempty"`
	Text         string         `json:"text"`
	CreatedAt    time.Time      `json:"created_at"`
}

type BudgetEvent struct {
	ID          uuid.UUID       `json:"id"`
	HouseholdID uuid.UUID       `json:"household_id"`
	ActorUserID *uuid.UUID      `json:"actor_user_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}
