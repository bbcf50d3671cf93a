package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"example.com/pod-budget-chat/backend/internal/models"
)

const maxEntityCandidates = 8

// ToolCaller выполняет один вызов модели с принудительным tool call.
type ToolCaller interface {
	CallTool(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error)
}

// Service валидирует и нормализует предложения модели.
type Service struct {
	client ToolCaller
}

// NewService создает сервис работы с AI-клиентом.
func NewService(client ToolCaller) *Service {
	return &Service{client: client}
}

type ProposeInput struct {
	MessageText string
	Pods        []models.PodWithSettings
	Intent      models.ChatIntent
	Baseline    models.ParsedEntitiesHints
	TraceID     string
}

type ProposeResult struct {
	Intent        models.ChatIntent
	AssistantText string
	Drafts        []models.ProposedActionDraft
	Entities      models.ParsedEntitiesHints
}

var systemPrompt = strings.Join([]string{
	"You are a budgeting assistant.",
	"Intent rules:",
	"- observed_transfer: DO NOT propose budget_transfer. Propose repair options instead.",
	"- request_budget_change: budget_transfer is allowed.",
	"- question_advice: no actions; return assistantText only.",
}, "\n")

// Propose запрашивает у модели черновики действий и строго проверяет ответ.
// Любая ошибка возвращается как *ProposeError с указанием этапа.
func (s *Service) Propose(ctx context.Context, input ProposeInput) (ProposeResult, error) {
	messageText := strings.TrimSpace(input.MessageText)
	intent := input.Intent
	if intent == "" {
		intent = models.IntentRequestBudgetChange
	}

	slog.Info("ai_propose request",
		slog.String("trace_id", input.TraceID),
		slog.Int("message_chars", len(messageText)),
		slog.Int("pod_count", len(input.Pods)),
	)

	rawArgs, err := s.client.CallTool(ctx, systemPrompt, buildPrompt(messageText, input.Pods, intent))
	if err != nil {
		var proposeErr *ProposeError
		if errors.As(err, &proposeErr) {
			return ProposeResult{}, proposeErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ProposeResult{}, newProposeError(StageTimeout, "OpenAI request timed out")
		}
		return ProposeResult{}, newProposeError(StageAPIError, err.Error())
	}

	parsedArgs, err := parseToolArgs(rawArgs)
	if err != nil {
		return ProposeResult{}, newProposeError(StageToolParse, "AI tool arguments were not JSON")
	}

	podsByID := make(map[string]models.PodWithSettings, len(input.Pods))
	for _, pod := range input.Pods {
		podsByID[pod.Pod.ID.String()] = pod
	}

	normalized := normalizeArgs(parsedArgs, podsByID)

	proposal, err := validateProposal(normalized)
	if err != nil {
		slog.Warn("ai_propose invalid_args",
			slog.String("trace_id", input.TraceID),
			slog.String("error", err.Error()),
		)
		return ProposeResult{}, newProposeError(StageInvalidArgs, err.Error())
	}

	if proposal.Intent == models.IntentObservedTransfer {
		for _, draft := range proposal.Drafts {
			if draft.Type == string(models.ActionTypeBudgetTransfer) {
				return ProposeResult{}, newProposeError(StageInvalidArgs, "observed_transfer intent cannot include budget_transfer actions")
			}
		}
	}
	if proposal.Intent == models.IntentQuestionAdvice && len(proposal.Drafts) > 0 {
		return ProposeResult{}, newProposeError(StageInvalidArgs, "question_advice intent cannot include proposed actions")
	}

	drafts, err := resolveDrafts(proposal.Drafts, podsByID)
	if err != nil {
		return ProposeResult{}, newProposeError(StageInvalidArgs, err.Error())
	}

	entities := mergeEntities(input.Baseline, proposal.Entities)

	slog.Info("ai_propose validated",
		slog.String("trace_id", input.TraceID),
		slog.String("intent", string(proposal.Intent)),
		slog.Int("draft_count", len(drafts)),
	)

	return ProposeResult{
		Intent:        proposal.Intent,
		AssistantText: proposal.AssistantText,
		Drafts:        drafts,
		Entities:      entities,
	}, nil
}

func buildPrompt(messageText string, pods []models.PodWithSettings, intent models.ChatIntent) string {
	var podLines []string
	for _, p := range pods {
		podLines = append(podLines, fmt.Sprintf(
			"- id=%s name=%s category=%s budgeted_amount_in_cents=%d balance_amount_in_cents=%s balance_updated_at=%s balance_error=%s",
			p.Pod.ID,
			jsonValue(p.Pod.Name),
			jsonValue(p.Category()),
			p.BudgetedAmountInCents(),
			jsonValue(p.Pod.BalanceAmountInCents),
			jsonValue(p.Pod.BalanceUpdatedAt),
			jsonValue(p.Pod.BalanceError),
		))
	}

	return strings.Join([]string{
		"You are an assistant that proposes budget actions.",
		"Always call the propose_budget_actions tool.",
		"Only use pod ids from the provided pod list.",
		"Each proposed action draft must include type and payload.kind.",
		"Payload.kind must match the draft type.",
		"Required payload fields:",
		"- budget_transfer: amount_in_cents, from_pod_id, from_pod_name, to_pod_id, to_pod_name",
		"- budget_adjust: delta_in_cents, pod_id, pod_name",
		"- budget_repair_restore_donor: amount_in_cents, donor_pod_id, donor_pod_name, funding_pod_id, funding_pod_name",
		"Keep proposedActionDrafts length <= 3.",
		"Do not include any keys outside the tool schema.",
		"",
		fmt.Sprintf("Intent hint: %s", intent),
		fmt.Sprintf("User message: %s", jsonValue(messageText)),
		"",
		"Pods:",
		strings.Join(podLines, "\n"),
	}, "\n")
}

func jsonValue(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(encoded)
}

// normalizeArgs подгоняет сокращенный вывод модели под схему: принимает type
// как синоним payload.kind и дополняет отсутствующие имена подов по id.
// Лишние ключи верхнего уровня и уровня черновика при этом отбрасываются,
// лишние ключи payload и entities останутся и будут отвергнуты валидацией.
func normalizeArgs(rawArgs json.RawMessage, podsByID map[string]models.PodWithSettings) map[string]any {
	var data map[string]any
	if err := json.Unmarshal(rawArgs, &data); err != nil {
		return nil
	}

	normalized := map[string]any{
		"intent":        data["intent"],
		"assistantText": data["assistantText"],
	}
	if entities, ok := data["entities"]; ok {
		normalized["entities"] = entities
	}

	rawDrafts, ok := data["proposedActionDrafts"].([]any)
	if !ok {
		if v, present := data["proposedActionDrafts"]; present {
			normalized["proposedActionDrafts"] = v
		}
		return normalized
	}

	drafts := make([]any, 0, len(rawDrafts))
	for _, rawDraft := range rawDrafts {
		draft, ok := rawDraft.(map[string]any)
		if !ok {
			drafts = append(drafts, rawDraft)
			continue
		}

		payload := map[string]any{}
		if existing, ok := draft["payload"].(map[string]any); ok {
			for k, v := range existing {
				payload[k] = v
			}
		}

		kind, _ := firstString(draft["type"], draft["kind"], payload["kind"])
		if kind != "" {
			payload["kind"] = kind
		}

		switch kind {
		case string(models.ActionTypeBudgetTransfer):
			backfillPodName(payload, "from_pod_id", "from_pod_name", podsByID)
			backfillPodName(payload, "to_pod_id", "to_pod_name", podsByID)
		case string(models.ActionTypeBudgetAdjust):
			backfillPodName(payload, "pod_id", "pod_name", podsByID)
		case string(models.ActionTypeBudgetRepairRestoreDonor):
			backfillPodName(payload, "donor_pod_id", "donor_pod_name", podsByID)
			backfillPodName(payload, "funding_pod_id", "funding_pod_name", podsByID)
		}

		drafts = append(drafts, map[string]any{
			"type":    kind,
			"payload": payload,
		})
	}
	normalized["proposedActionDrafts"] = drafts

	return normalized
}

func firstString(values ...any) (string, bool) {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func backfillPodName(payload map[string]any, idKey, nameKey string, podsByID map[string]models.PodWithSettings) {
	if _, ok := firstString(payload[nameKey]); ok {
		return
	}
	id, ok := firstString(payload[idKey])
	if !ok {
		return
	}
	if pod, found := podsByID[id]; found {
		payload[nameKey] = pod.Pod.Name
	}
}

type validatedProposal struct {
	Intent        models.ChatIntent
	AssistantText string
	Drafts        []wireDraft
	Entities      *wireEntities
}

type wireDraft struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireEntities struct {
	FromCandidate    *string  `json:"fromCandidate"`
	ToCandidate      *string  `json:"toCandidate"`
	FundingCandidate *string  `json:"fundingCandidate"`
	Candidates       []string `json:"candidates"`
}

type wireTransferPayload struct {
	Kind          string `json:"kind"`
	AmountInCents int64  `json:"amount_in_cents"`
	FromPodID     string `json:"from_pod_id"`
	FromPodName   string `json:"from_pod_name"`
	ToPodID       string `json:"to_pod_id"`
	ToPodName     string `json:"to_pod_name"`
}

type wireAdjustPayload struct {
	Kind         string `json:"kind"`
	DeltaInCents int64  `json:"delta_in_cents"`
	PodID        string `json:"pod_id"`
	PodName      string `json:"pod_name"`
}

type wireRepairPayload struct {
	Kind           string `json:"kind"`
	AmountInCents  int64  `json:"amount_in_cents"`
	DonorPodID     string `json:"donor_pod_id"`
	DonorPodName   string `json:"donor_pod_name"`
	FundingPodID   string `json:"funding_pod_id"`
	FundingPodName string `json:"funding_pod_name"`
	OptionLabel    string `json:"option_label"`
}

// validateProposal строго проверяет нормализованные аргументы по схеме ответа.
func validateProposal(normalized map[string]any) (validatedProposal, error) {
	var proposal validatedProposal
	if normalized == nil {
		return proposal, errors.New("arguments were not an object")
	}

	intent, ok := normalized["intent"].(string)
	if !ok {
		return proposal, errors.New("intent is required")
	}
	switch models.ChatIntent(intent) {
	case models.IntentObservedTransfer, models.IntentQuestionAdvice, models.IntentRequestBudgetChange:
	default:
		return proposal, fmt.Errorf("invalid intent: %s", intent)
	}
	proposal.Intent = models.ChatIntent(intent)

	assistantText, ok := normalized["assistantText"].(string)
	if !ok || assistantText == "" {
		return proposal, errors.New("assistantText is required")
	}
	proposal.AssistantText = assistantText

	rawDrafts, ok := normalized["proposedActionDrafts"]
	if !ok {
		return proposal, errors.New("proposedActionDrafts is required")
	}
	encodedDrafts, err := json.Marshal(rawDrafts)
	if err != nil {
		return proposal, err
	}
	if err := strictUnmarshal(encodedDrafts, &proposal.Drafts); err != nil {
		return proposal, fmt.Errorf("proposedActionDrafts: %w", err)
	}
	if len(proposal.Drafts) > 3 {
		return proposal, errors.New("too many proposed action drafts")
	}
	for i, draft := range proposal.Drafts {
		if err := validateDraftPayload(draft); err != nil {
			return proposal, fmt.Errorf("draft %d: %w", i, err)
		}
	}

	if rawEntities, ok := normalized["entities"]; ok && rawEntities != nil {
		encoded, err := json.Marshal(rawEntities)
		if err != nil {
			return proposal, err
		}
		var entities wireEntities
		if err := strictUnmarshal(encoded, &entities); err != nil {
			return proposal, fmt.Errorf("entities: %w", err)
		}
		if entities.Candidates == nil {
			return proposal, errors.New("entities.candidates is required")
		}
		proposal.Entities = &entities
	}

	return proposal, nil
}

func validateDraftPayload(draft wireDraft) error {
	switch draft.Type {
	case string(models.ActionTypeBudgetTransfer):
		var p wireTransferPayload
		if err := strictUnmarshal(draft.Payload, &p); err != nil {
			return err
		}
		if p.Kind != draft.Type {
			return fmt.Errorf("payload kind %q does not match type %q", p.Kind, draft.Type)
		}
		if p.AmountInCents <= 0 {
			return errors.New("amount_in_cents must be positive")
		}
		if p.FromPodID == "" || p.FromPodName == "" || p.ToPodID == "" || p.ToPodName == "" {
			return errors.New("transfer payload fields are required")
		}
	case string(models.ActionTypeBudgetAdjust):
		var p wireAdjustPayload
		if err := strictUnmarshal(draft.Payload, &p); err != nil {
			return err
		}
		if p.Kind != draft.Type {
			return fmt.Errorf("payload kind %q does not match type %q", p.Kind, draft.Type)
		}
		if p.PodID == "" || p.PodName == "" {
			return errors.New("adjust payload fields are required")
		}
	case string(models.ActionTypeBudgetRepairRestoreDonor):
		var p wireRepairPayload
		if err := strictUnmarshal(draft.Payload, &p); err != nil {
			return err
		}
		if p.Kind != draft.Type {
			return fmt.Errorf("payload kind %q does not match type %q", p.Kind, draft.Type)
		}
		if p.AmountInCents <= 0 {
			return errors.New("amount_in_cents must be positive")
		}
		if p.DonorPodID == "" || p.DonorPodName == "" || p.FundingPodID == "" || p.FundingPodName == "" {
			return errors.New("repair payload fields are required")
		}
	default:
		return fmt.Errorf("unsupported action type: %s", draft.Type)
	}
	return nil
}

func strictUnmarshal(data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

// resolveDrafts повторно сопоставляет каждый pod id со списком подов
// домохозяйства. Схема не может выразить принадлежность id списку,
// поэтому неизвестный id, нулевая сумма и совпадающие поды ловятся здесь.
func resolveDrafts(wire []wireDraft, podsByID map[string]models.PodWithSettings) ([]models.ProposedActionDraft, error) {
	drafts := make([]models.ProposedActionDraft, 0, len(wire))

	for _, d := range wire {
		switch d.Type {
		case string(models.ActionTypeBudgetTransfer):
			var p wireTransferPayload
			if err := json.Unmarshal(d.Payload, &p); err != nil {
				return nil, err
			}
			if p.FromPodID == p.ToPodID {
				return nil, errors.New("AI draft used same from/to pod")
			}
			from, fromOK := podsByID[p.FromPodID]
			to, toOK := podsByID[p.ToPodID]
			if !fromOK || !toOK {
				return nil, errors.New("AI draft referenced unknown pod id")
			}
			if p.AmountInCents <= 0 {
				return nil, errors.New("AI draft used non-positive amount")
			}
			drafts = append(drafts, models.ProposedActionDraft{
				Type: models.ActionTypeBudgetTransfer,
				Payload: models.NewTransferPayload(models.BudgetTransferPayload{
					AmountInCents: p.AmountInCents,
					FromPodID:     from.Pod.ID,
					FromPodName:   from.Pod.Name,
					ToPodID:       to.Pod.ID,
					ToPodName:     to.Pod.Name,
				}),
			})

		case string(models.ActionTypeBudgetAdjust):
			var p wireAdjustPayload
			if err := json.Unmarshal(d.Payload, &p); err != nil {
				return nil, err
			}
			pod, ok := podsByID[p.PodID]
			if !ok {
				return nil, errors.New("AI draft referenced unknown pod id")
			}
			drafts = append(drafts, models.ProposedActionDraft{
				Type: models.ActionTypeBudgetAdjust,
				Payload: models.NewAdjustPayload(models.BudgetAdjustPayload{
					DeltaInCents: p.DeltaInCents,
					PodID:        pod.Pod.ID,
					PodName:      pod.Pod.Name,
				}),
			})

		case string(models.ActionTypeBudgetRepairRestoreDonor):
			var p wireRepairPayload
			if err := json.Unmarshal(d.Payload, &p); err != nil {
				return nil, err
			}
			if p.DonorPodID == p.FundingPodID {
				return nil, errors.New("AI draft used same donor/funding pod")
			}
			donor, donorOK := podsByID[p.DonorPodID]
			funding, fundingOK := podsByID[p.FundingPodID]
			if !donorOK || !fundingOK {
				return nil, errors.New("AI draft referenced unknown pod id")
			}
			if p.AmountInCents <= 0 {
				return nil, errors.New("AI draft used non-positive amount")
			}
			drafts = append(drafts, models.ProposedActionDraft{
				Type: models.ActionTypeBudgetRepairRestoreDonor,
				Payload: models.NewRepairPayload(models.BudgetRepairPayload{
					AmountInCents:  p.AmountInCents,
					DonorPodID:     donor.Pod.ID,
					DonorPodName:   donor.Pod.Name,
					FundingPodID:   funding.Pod.ID,
					FundingPodName: funding.Pod.Name,
					OptionLabel:    p.OptionLabel,
				}),
			})

		default:
			return nil, fmt.Errorf("unsupported action type: %s", d.Type)
		}
	}

	return drafts, nil
}

// mergeEntities накладывает подсказки модели поверх детерминированной базы.
// Поле базы сохраняется, пока модель не прислала свое значение.
func mergeEntities(baseline models.ParsedEntitiesHints, entities *wireEntities) models.ParsedEntitiesHints {
	merged := models.ParsedEntitiesHints{
		FromCandidate:    baseline.FromCandidate,
		ToCandidate:      baseline.ToCandidate,
		FundingCandidate: baseline.FundingCandidate,
	}

	seen := make(map[string]struct{}, len(baseline.Candidates))
	for _, name := range baseline.Candidates {
		if len(merged.Candidates) >= maxEntityCandidates {
			break
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		merged.Candidates = append(merged.Candidates, name)
	}

	if entities == nil {
		return merged
	}

	for _, name := range entities.Candidates {
		if len(merged.Candidates) >= maxEntityCandidates {
			break
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		merged.Candidates = append(merged.Candidates, name)
	}

	if entities.FromCandidate != nil {
		merged.FromCandidate = *entities.FromCandidate
	}
	if entities.ToCandidate != nil {
		merged.ToCandidate = *entities.ToCandidate
	}
	if entities.FundingCandidate != nil {
		merged.FundingCandidate = *entities.FundingCandidate
	}
	return merged
}
