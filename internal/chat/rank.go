package chat

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"example.com/pod-budget-chat/backend/internal/models"
)

const defaultCandidateLimit = 8

var (
	quotesPattern   = regexp.MustCompile(`['"]`)
	nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)
	outerQuoteLead  = regexp.MustCompile("^[“\"']+")
	outerQuoteTail  = regexp.MustCompile("[”\"']+$")
)

// NormalizeName приводит имя пода к каноническому виду для сравнения.
func NormalizeName(s string) string {
	lowered := strings.ToLower(s)
	lowered = quotesPattern.ReplaceAllString(lowered, "")
	lowered = nonAlnumPattern.ReplaceAllString(lowered, " ")
	return strings.TrimSpace(lowered)
}

func stripOuterQuotes(s string) string {
	trimmed := strings.TrimSpace(s)
	trimmed = outerQuoteLead.ReplaceAllString(trimmed, "")
	trimmed = outerQuoteTail.ReplaceAllString(trimmed, "")
	return strings.TrimSpace(trimmed)
}

// RankCandidates возвращает до limit имен подов, похожих на запрос.
func RankCandidates(query string, podNames []string, limit int) []string {
	if limit <= 0 {
		limit = defaultCandidateLimit
	}

	q := NormalizeName(query)
	if q == "" {
		if len(podNames) > limit {
			return append([]string(nil), podNames[:limit]...)
		}
		return append([]string(nil), podNames...)
	}

	qTokens := tokenSet(q)

	type scored struct {
		name  string
		score int
	}

	results := make([]scored, 0, len(podNames))
	for _, name := range podNames {
		n := NormalizeName(name)
		score := 0

		if n == q {
			score += 1000
		}
		if strings.HasPrefix(n, q) {
			score += 300
		}
		if strings.Contains(n, q) {
			score += 200
		}

		for token := range tokenSet(n) {
			if _, ok := qTokens[token]; ok {
				score += 50
			}
		}

		score -= int(math.Abs(float64(len(n) - len(q))))
		results = append(results, scored{name: name, score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].name < results[j].name
	})

	if len(results) > limit {
		results = results[:limit]
	}

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.name)
	}
	return names
}

func tokenSet(normalized string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, t := range strings.Fields(normalized) {
		tokens[t] = struct{}{}
	}
	return tokens
}

// ResolveUniquePod находит под с единственным совпадением по имени.
// Уровни в порядке приоритета: точное совпадение, префикс, подстрока.
// Неоднозначный запрос возвращает nil, чтобы вызывающий уточнил у пользователя.
func ResolveUniquePod(raw string, pods []models.PodWithSettings) *models.PodWithSettings {
	q := NormalizeName(raw)
	if q == "" {
		return nil
	}

	tiers := []func(normalized string) bool{
		func(n string) bool { return n == q },
		func(n string) bool { return strings.HasPrefix(n, q) },
		func(n string) bool { return strings.Contains(n, q) },
	}

	for _, match := range tiers {
		var found *models.PodWithSettings
		count := 0
		for i := range pods {
			if match(NormalizeName(pods[i].Pod.Name)) {
				found = &pods[i]
				count++
			}
		}
		if count == 1 {
			return found
		}
	}

	return nil
}
