package chat

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"example.com/pod-budget-chat/backend/internal/models"
)

// TransferIntent classifies a move/transfer phrasing.
type TransferIntent string

const (
	TransferIntentObserved TransferIntent = "observed_transfer"
	TransferIntentRequest  TransferIntent = "request_transfer"
	TransferIntentUnknown  TransferIntent = "unknown"
)

// Result описывает детерминированный разбор сообщения пользователя.
type Result struct {
	AssistantText        string
	ProposedActionDrafts []models.ProposedActionDraft
	Entities             models.ParsedEntitiesHints
	ObservedTransfer     *models.ObservedTransferEvent
}

var (
	observedMovedPattern       = regexp.MustCompile(`\bi\s+(?:already\s+)?moved\b`)
	observedTransferredPattern = regexp.MustCompile(`\bi\s+transferred\b`)
	observedHadToMovePattern   = regexp.MustCompile(`\bi\s+had\s+to\s+move\b`)
	observedHadToXferPattern   = regexp.MustCompile(`\bi\s+had\s+to\s+transfer\b`)
	observedOpenerPattern      = regexp.MustCompile(`^\s*(?:moved|transferred)\b`)
	requestedPattern           = regexp.MustCompile(`\b(move|transfer)\b`)

	movePattern = regexp.MustCompile(`(?i)^\s*(?:i\s+(?:already\s+)?(?:moved|transferred)|i\s+had\s+to\s+(?:move|transfer)|i\s+need\s+to\s+(?:move|transfer)|can\s+you\s+(?:move|transfer)|(?:move|transfer|moved|transferred))\s+\$?\s*([\d,]+(?:\.\d{1,2})?)\s+from\s+(.+?)\s+to\s+(.+?)\s*$`)

	shortPattern   = regexp.MustCompile(`(?i)^\s*(.+?)\s+is\s+short\s+\$?\s*([\d,]+(?:\.\d{1,2})?)\s*$`)
	rentDuePattern = regexp.MustCompile(`(?i)\brent\s+due\s+soon\b`)
)

var optionLabels = []string{"A", "B", "C"}

const helpText = "I can help with:\n- “moved $80 from Groceries to Education”\n- “Groceries is short $40”\n- “rent due soon” (I’ll ask a quick follow-up)\n\nTry one of those formats."

// DetectTransferIntent различает уже совершенный и запрашиваемый перевод.
func DetectTransferIntent(messageText string) TransferIntent {
	text := strings.ToLower(stripOuterQuotes(messageText))

	observed := observedMovedPattern.MatchString(text) ||
		observedTransferredPattern.MatchString(text) ||
		observedHadToMovePattern.MatchString(text) ||
		observedHadToXferPattern.MatchString(text) ||
		observedOpenerPattern.MatchString(text)
	if observed {
		return TransferIntentObserved
	}

	if requestedPattern.MatchString(text) {
		return TransferIntentRequest
	}

	return TransferIntentUnknown
}

// ParseUSDToCents разбирает сумму в долларах и возвращает центы.
// Возвращает false для нечисловых, нулевых и отрицательных сумм.
func ParseUSDToCents(raw string) (int64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if cleaned == "" {
		return 0, false
	}

	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) || n <= 0 {
		return 0, false
	}

	return int64(math.Round(n * 100)), true
}

// Interpret превращает сообщение в черновики действий. Чистая функция.
// Формы сообщений проверяются по приоритету, срабатывает первая подходящая.
func Interpret(messageText string, pods []models.PodWithSettings) Result {
	messageText = strings.TrimSpace(messageText)
	stripped := stripOuterQuotes(messageText)
	podNames := make([]string, 0, len(pods))
	for _, p := range pods {
		podNames = append(podNames, p.Pod.Name)
	}
	transferIntent := DetectTransferIntent(stripped)

	// 1) moved $X from A to B
	if m := movePattern.FindStringSubmatch(stripped); m != nil {
		return interpretMove(messageText, m, pods, podNames, transferIntent)
	}

	// 2) X is short $Y
	if m := shortPattern.FindStringSubmatch(messageText); m != nil {
		return interpretShortfall(messageText, m, pods, podNames)
	}

	// 3) rent due soon: сначала уточняем, ничего не предлагаем
	if rentDuePattern.MatchString(messageText) {
		return Result{
			AssistantText: "Got it. Which pod is “rent” for you, and how much is due?",
			Entities: models.ParsedEntitiesHints{
				ToCandidate: "rent",
				Candidates:  RankCandidates("rent", podNames, defaultCandidateLimit),
			},
		}
	}

	fallbackCandidates := podNames
	if len(fallbackCandidates) > defaultCandidateLimit {
		fallbackCandidates = fallbackCandidates[:defaultCandidateLimit]
	}
	return Result{
		AssistantText: helpText,
		Entities:      models.ParsedEntitiesHints{Candidates: fallbackCandidates},
	}
}

func interpretMove(messageText string, m []string, pods []models.PodWithSettings, podNames []string, transferIntent TransferIntent) Result {
	amountRaw := m[1]
	fromRaw := strings.TrimSpace(m[2])
	toRaw := strings.TrimSpace(m[3])
	amountInCents, amountOK := ParseUSDToCents(amountRaw)

	candidates := mergeCandidates(
		RankCandidates(fromRaw, podNames, defaultCandidateLimit),
		RankCandidates(toRaw, podNames, defaultCandidateLimit),
	)

	entities := models.ParsedEntitiesHints{
		FromCandidate: fromRaw,
		ToCandidate:   toRaw,
		Candidates:    candidates,
	}

	if !amountOK {
		return Result{
			AssistantText: fmt.Sprintf("I couldn’t parse the amount in “%s”. Try something like: moved $80 from Groceries to Education.", messageText),
			Entities:      entities,
		}
	}

	from := ResolveUniquePod(fromRaw, pods)
	to := ResolveUniquePod(toRaw, pods)

	if from == nil || to == nil {
		return Result{
			AssistantText: fmt.Sprintf("Which pods did you mean? I couldn’t uniquely match “%s” and/or “%s”.", fromRaw, toRaw),
			Entities:      entities,
		}
	}

	if from.Pod.ID == to.Pod.ID {
		return Result{
			AssistantText: fmt.Sprintf("Those look like the same pod (“%s”). Which pod should receive the money?", from.Pod.Name),
			Entities:      entities,
		}
	}

	if transferIntent == TransferIntentObserved {
		return interpretObservedTransfer(messageText, amountInCents, *from, *to, pods, podNames, entities)
	}

	return Result{
		AssistantText: fmt.Sprintf("Proposed: move $%.2f of budget from %s to %s.", float64(amountInCents)/100, from.Pod.Name, to.Pod.Name),
		ProposedActionDrafts: []models.ProposedActionDraft{
			{
				Type: models.ActionTypeBudgetTransfer,
				Payload: models.NewTransferPayload(models.BudgetTransferPayload{
					AmountInCents: amountInCents,
					FromPodID:     from.Pod.ID,
					FromPodName:   from.Pod.Name,
					ToPodID:       to.Pod.ID,
					ToPodName:     to.Pod.Name,
				}),
			},
		},
		Entities: entities,
	}
}

// interpretObservedTransfer обрабатывает перевод, уже совершенный вне системы.
// Прямой budget_transfer здесь задвоил бы движение денег, поэтому вместо него
// предлагается возмещение донора из другого пода.
func interpretObservedTransfer(messageText string, amountInCents int64, from, to models.PodWithSettings, pods []models.PodWithSettings, podNames []string, entities models.ParsedEntitiesHints) Result {
	observed := &models.ObservedTransferEvent{
		AmountInCents:  amountInCents,
		FromPodID:      from.Pod.ID,
		FromPodName:    from.Pod.Name,
		ToPodID:        to.Pod.ID,
		ToPodName:      to.Pod.Name,
		RawMessageText: messageText,
	}

	options := SelectFundingOptions(pods, from.Pod.ID, amountInCents, defaultMaxFundingOptions)

	primaryFundingCandidate := MoveToPodName
	if len(options.SingleOptions) > 0 {
		primaryFundingCandidate = options.SingleOptions[0].Pod.Name
	} else if len(options.SplitOptions) > 0 {
		primaryFundingCandidate = options.SplitOptions[0].A.Pod.Name
	}

	repairEntities := models.ParsedEntitiesHints{
		FromCandidate:    entities.FromCandidate,
		ToCandidate:      entities.ToCandidate,
		FundingCandidate: primaryFundingCandidate,
		Candidates: mergeCandidates(
			entities.Candidates,
			RankCandidates(primaryFundingCandidate, podNames, defaultCandidateLimit),
		),
	}

	if len(options.SingleOptions) == 0 && len(options.SplitOptions) == 0 {
		return Result{
			AssistantText:    "Got it — logged that transfer. Which pod should I pull from to repair the budget plan?",
			Entities:         repairEntities,
			ObservedTransfer: observed,
		}
	}

	if len(options.SplitOptions) > 0 {
		var drafts []models.ProposedActionDraft
		for index, opt := range options.SplitOptions {
			label := ""
			if index < len(optionLabels) {
				label = optionLabels[index]
			}
			drafts = append(drafts,
				repairDraft(from, opt.A, opt.AAmount, label),
				repairDraft(from, opt.B, opt.BAmount, label),
			)
		}

		text := "Got it — logged that transfer. I can split the repair across a couple of funding pods."
		if len(drafts) > 2 {
			text = "Got it — logged that transfer. I can split the repair across a couple of funding pods. Here are a few options."
		}
		return Result{
			AssistantText:        text,
			ProposedActionDrafts: drafts,
			Entities:             repairEntities,
			ObservedTransfer:     observed,
		}
	}

	drafts := make([]models.ProposedActionDraft, 0, len(options.SingleOptions))
	for index, pod := range options.SingleOptions {
		label := ""
		if len(options.SingleOptions) > 1 && index < len(optionLabels) {
			label = optionLabels[index]
		}
		drafts = append(drafts, repairDraft(from, pod, amountInCents, label))
	}

	text := "Got it — logged that transfer. Here’s the cleanest way to repair your budget plan."
	if len(drafts) > 1 {
		text = "Got it — logged that transfer. Here are a few ways to repair your budget plan."
	}
	return Result{
		AssistantText:        text,
		ProposedActionDrafts: drafts,
		Entities:             repairEntities,
		ObservedTransfer:     observed,
	}
}

func interpretShortfall(messageText string, m []string, pods []models.PodWithSettings, podNames []string) Result {
	podRaw := strings.TrimSpace(m[1])
	amountRaw := m[2]
	amountInCents, amountOK := ParseUSDToCents(amountRaw)

	entities := models.ParsedEntitiesHints{
		ToCandidate: podRaw,
		Candidates:  RankCandidates(podRaw, podNames, defaultCandidateLimit),
	}

	if !amountOK {
		return Result{
			AssistantText: fmt.Sprintf("I couldn’t parse the amount in “%s”. Try something like: Groceries is short $40.", messageText),
			Entities:      entities,
		}
	}

	pod := ResolveUniquePod(podRaw, pods)
	if pod == nil {
		return Result{
			AssistantText: fmt.Sprintf("Which pod did you mean by “%s”?", podRaw),
			Entities:      entities,
		}
	}

	return Result{
		AssistantText: fmt.Sprintf("Proposed: increase %s budget by $%.2f.", pod.Pod.Name, float64(amountInCents)/100),
		ProposedActionDrafts: []models.ProposedActionDraft{
			{
				Type: models.ActionTypeBudgetAdjust,
				Payload: models.NewAdjustPayload(models.BudgetAdjustPayload{
					DeltaInCents: amountInCents,
					PodID:        pod.Pod.ID,
					PodName:      pod.Pod.Name,
				}),
			},
		},
		Entities: entities,
	}
}

func repairDraft(donor, funding models.PodWithSettings, amountInCents int64, optionLabel string) models.ProposedActionDraft {
	return models.ProposedActionDraft{
		Type: models.ActionTypeBudgetRepairRestoreDonor,
		Payload: models.NewRepairPayload(models.BudgetRepairPayload{
			AmountInCents:  amountInCents,
			DonorPodID:     donor.Pod.ID,
			DonorPodName:   donor.Pod.Name,
			FundingPodID:   funding.Pod.ID,
			FundingPodName: funding.Pod.Name,
			OptionLabel:    optionLabel,
		}),
	}
}

// mergeCandidates объединяет списки кандидатов без дублей, сохраняя порядок.
func mergeCandidates(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, list := range lists {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			merged = append(merged, name)
		}
	}
	return merged
}
