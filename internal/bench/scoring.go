package bench

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// normalizeAnswer lowercases, trims, collapses internal whitespace, and
// strips trailing punctuation from s, for comparison-tolerant scoring.
func normalizeAnswer(s string) string {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	collapsed := strings.Join(strings.Fields(trimmed), " ")
	return strings.TrimRight(collapsed, ".,;!")
}

// ExactMatch scores actual as a pass only if it equals expected after
// normalization.
func ExactMatch(expected, actual string) Score {
	normExpected := normalizeAnswer(expected)
	normActual := normalizeAnswer(actual)
	if normExpected == normActual {
		return passScore()
	}
	return failScore(fmt.Sprintf("expected %q, got %q", normExpected, normActual))
}

// ContainsMatch scores actual as a pass if its normalized form contains
// the normalized expectedSubstring.
func ContainsMatch(expectedSubstring, actual string) Score {
	normExpected := normalizeAnswer(expectedSubstring)
	normActual := normalizeAnswer(actual)
	if strings.Contains(normActual, normExpected) {
		return passScore()
	}
	return failScore(fmt.Sprintf("response does not contain %q", normExpected))
}

// RegexMatch scores actual as a pass if it matches pattern. actual is
// matched as-is, not normalized, since a pattern may depend on case or
// punctuation the normalizer would destroy.
func RegexMatch(pattern, actual string) Score {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return failScore(fmt.Sprintf("invalid regex pattern: %v", err))
	}
	if re.MatchString(actual) {
		return passScore()
	}
	return failScore(fmt.Sprintf("response does not match pattern /%s/", pattern))
}

// Judge scores a submission using an LLM as grader, for the "llm"
// scorer mode. Tasks that don't need an LLM judge never need this
// dependency wired in.
type Judge interface {
	Judge(ctx context.Context, task *Task, submission *Submission) (Score, error)
}

// ScoreTask dispatches to the scorer named by task.Scorer: "exact",
// "contains", "regex", or "llm". judge may be nil unless a task
// actually uses the "llm" scorer.
func ScoreTask(ctx context.Context, task *Task, submission *Submission, judge Judge) (Score, error) {
	switch task.Scorer {
	case "", "exact":
		return ExactMatch(task.Expected, submission.Response), nil
	case "contains":
		return ContainsMatch(task.ExpectedContains, submission.Response), nil
	case "regex":
		return RegexMatch(task.ExpectedPattern, submission.Response), nil
	case "llm":
		if judge == nil {
			return Score{}, fmt.Errorf("task %s: scorer \"llm\" requires a Judge", task.ID)
		}
		return judge.Judge(ctx, task, submission)
	default:
		return Score{}, fmt.Errorf("task %s: unknown scorer %q", task.ID, task.Scorer)
	}
}
