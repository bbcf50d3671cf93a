package chat

import (
	"sort"

	"github.com/google/uuid"

	"example.com/pod-budget-chat/backend/internal/models"
)

// MoveToPodName is the catch-all pod preferred as a funding source when eligible.
const MoveToPodName = "Move to ___"

const defaultMaxFundingOptions = 3

var protectedPodNames = map[string]struct{}{}

func init() {
	for _, name := range []string{
		"Rent",
		"Utilities",
		"AES Electric",
		"Citizens Gas Water",
		"Phones",
		"Wifi",
		"Sequence Billing",
	} {
		protectedPodNames[NormalizeName(name)] = struct{}{}
	}
}

// IsProtectedPodName сообщает, входит ли под в защищенный список.
func IsProtectedPodName(name string) bool {
	_, ok := protectedPodNames[NormalizeName(name)]
	return ok
}

// SplitOption предлагает покрыть сумму из двух подов.
type SplitOption struct {
	A       models.PodWithSettings
	B       models.PodWithSettings
	AAmount int64
	BAmount int64
}

// FundingOptions содержит варианты источников для восстановления донора.
type FundingOptions struct {
	SingleOptions []models.PodWithSettings
	SplitOptions  []SplitOption
}

type fundingCandidate struct {
	pod         models.PodWithSettings
	available   int64
	isProtected bool
	isMoveTo    bool
	isDonor     bool
}

func availableToReduce(pod models.PodWithSettings) int64 {
	amount := pod.BudgetedAmountInCents()
	if amount < 0 {
		return 0
	}
	return amount
}

func categoryRank(category *models.PodCategory, isDonor bool) int {
	if category == nil {
		return 5
	}
	switch *category {
	case models.PodCategorySavings:
		if isDonor {
			return 5
		}
		return 1
	case models.PodCategoryDiscretionary:
		return 2
	case models.PodCategoryPressing:
		return 3
	case models.PodCategoryNecessities:
		return 4
	default:
		return 5
	}
}

func sortFundingCandidates(candidates []fundingCandidate) []fundingCandidate {
	sorted := append([]fundingCandidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.isMoveTo != b.isMoveTo {
			return a.isMoveTo
		}
		aRank := categoryRank(a.pod.Category(), a.isDonor)
		bRank := categoryRank(b.pod.Category(), b.isDonor)
		if aRank != bRank {
			return aRank < bRank
		}
		if a.isDonor != b.isDonor {
			return b.isDonor
		}
		return a.pod.Pod.Name < b.pod.Pod.Name
	})
	return sorted
}

// SelectFundingOptions подбирает поды-источники для возмещения amountInCents
// донорскому поду. Сначала ищутся одиночные поды с полным покрытием, затем
// пары; защищенные поды используются только когда альтернатив нет.
func SelectFundingOptions(pods []models.PodWithSettings, donorPodID uuid.UUID, amountInCents int64, maxOptions int) FundingOptions {
	if maxOptions <= 0 {
		maxOptions = defaultMaxFundingOptions
	}

	base := make([]fundingCandidate, 0, len(pods))
	for _, pod := range pods {
		base = append(base, fundingCandidate{
			pod:         pod,
			available:   availableToReduce(pod),
			isProtected: IsProtectedPodName(pod.Pod.Name),
			isMoveTo:    pod.Pod.Name == MoveToPodName,
			isDonor:     pod.Pod.ID == donorPodID,
		})
	}

	fullCoverage := filterCandidates(base, func(c fundingCandidate) bool {
		return c.available >= amountInCents
	})
	fullPool := fullCoverage
	if nonProtected := filterCandidates(fullCoverage, func(c fundingCandidate) bool {
		return !c.isProtected
	}); len(nonProtected) > 0 {
		fullPool = nonProtected
	}

	rankedSingles := sortFundingCandidates(fullPool)
	if len(rankedSingles) > maxOptions {
		rankedSingles = rankedSingles[:maxOptions]
	}
	if len(rankedSingles) > 0 {
		singles := make([]models.PodWithSettings, 0, len(rankedSingles))
		for _, c := range rankedSingles {
			singles = append(singles, c.pod)
		}
		return FundingOptions{SingleOptions: singles}
	}

	splitCandidates := filterCandidates(base, func(c fundingCandidate) bool {
		return c.available > 0
	})
	splitPool := splitCandidates
	if nonProtected := filterCandidates(splitCandidates, func(c fundingCandidate) bool {
		return !c.isProtected
	}); len(nonProtected) >= 2 {
		splitPool = nonProtected
	}

	rankedSplit := sortFundingCandidates(splitPool)
	var splitOptions []SplitOption

scan:
	for i := 0; i < len(rankedSplit); i++ {
		for j := i + 1; j < len(rankedSplit); j++ {
			a, b := rankedSplit[i], rankedSplit[j]
			aAmount := a.available
			if aAmount > amountInCents {
				aAmount = amountInCents
			}
			remaining := amountInCents - aAmount
			if remaining <= 0 {
				continue
			}
			if remaining <= b.available {
				splitOptions = append(splitOptions, SplitOption{
					A:       a.pod,
					B:       b.pod,
					AAmount: aAmount,
					BAmount: remaining,
				})
			}
			if len(splitOptions) >= maxOptions {
				break scan
			}
		}
	}

	return FundingOptions{SplitOptions: splitOptions}
}

func filterCandidates(candidates []fundingCandidate, keep func(fundingCandidate) bool) []fundingCandidate {
	filtered := make([]fundingCandidate, 0, len(candidates))
	for _, c := range candidates {
		if keep(c) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
