package skills

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxContextTokens is the total skill-prompt token budget used
// when a caller does not supply one.
const DefaultMaxContextTokens = 4000

// scoredSkill pairs a skill with its prefilter score.
type scoredSkill struct {
	skill *LoadedSkill
	score int
}

// Prefilter selects candidate skills for a user message using
// deterministic scoring: no LLM is involved, and no skill content is
// placed in context during this phase. This prevents a loaded skill
// from influencing which skills get loaded next turn.
//
// Scoring: +10 per exact-word keyword match, +5 per substring keyword
// match, +3 per tag match, +20 per regex pattern match. Skills are kept
// in score-descending order, bounded by maxCandidates and by a total
// token budget computed against each skill's declared
// Activation.MaxContextTokens.
func Prefilter(message string, available []*LoadedSkill, maxCandidates int, maxContextTokens int) []*LoadedSkill {
	if message == "" || len(available) == 0 {
		return nil
	}
	messageLower := strings.ToLower(message)

	scored := make([]scoredSkill, 0, len(available))
	for _, skill := range available {
		score := scoreSkill(skill, messageLower, message)
		if score > 0 {
			scored = append(scored, scoredSkill{skill: skill, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	result := make([]*LoadedSkill, 0, maxCandidates)
	budgetRemaining := maxContextTokens
	for _, entry := range scored {
		if len(result) >= maxCandidates {
			break
		}
		cost := entry.skill.Manifest.Activation.MaxContextTokens
		if cost <= budgetRemaining {
			budgetRemaining -= cost
			result = append(result, entry.skill)
		}
	}
	return result
}

func scoreSkill(skill *LoadedSkill, messageLower, messageOriginal string) int {
	score := 0
	criteria := skill.Manifest.Activation

	for _, keyword := range criteria.Keywords {
		kwLower := strings.ToLower(keyword)
		if hasExactWord(messageLower, kwLower) {
			score += 10
		} else if strings.Contains(messageLower, kwLower) {
			score += 5
		}
	}

	allTags := append(append([]string{}, criteria.Tags...), skill.Manifest.Skill.Tags...)
	for _, tag := range allTags {
		if strings.Contains(messageLower, strings.ToLower(tag)) {
			score += 3
		}
	}

	for _, pattern := range criteria.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(messageOriginal) {
			score += 20
		}
	}

	return score
}

func hasExactWord(messageLower, word string) bool {
	for _, candidate := range strings.Fields(messageLower) {
		if strings.Trim(candidate, ".,!?;:\"'()[]{}") == word {
			return true
		}
	}
	return false
}
