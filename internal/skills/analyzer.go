package skills

import (
	"regexp"
	"strings"
)

// analysisPattern is one static-analysis rule: a category label and a
// compiled pattern to test prompt content against.
type analysisPattern struct {
	category string
	blocking bool
	re       *regexp.Regexp
}

// analysisPatterns are the anti-pattern rules a skill's prompt content
// is scanned against at load time. Role-override and instruction-
// override attempts block activation outright; weaker signals (looser
// credential-exfiltration phrasing) only warn, since they also occur
// in legitimate skill prompts describing how to handle secrets.
var analysisPatterns = []analysisPattern{
	{category: "role_override", blocking: true, re: regexp.MustCompile(`(?i)\byou are now\b|\bact as (?:the )?(?:system|root|admin)\b|\bnew instructions\b`)},
	{category: "instruction_override", blocking: true, re: regexp.MustCompile(`(?i)\bignore (?:all )?(?:previous|prior|above) instructions\b|\bdisregard (?:all )?(?:previous|prior) (?:instructions|rules)\b`)},
	{category: "credential_exfiltration", blocking: true, re: regexp.MustCompile(`(?i)\b(send|post|upload|exfiltrate)\b.{0,40}\b(api[_ ]?key|secret|password|token|credential)s?\b`)},
	{category: "credential_exfiltration", blocking: false, re: regexp.MustCompile(`(?i)\benvironment variable\b.{0,40}\b(key|secret|token)\b`)},
	{category: "system_prompt_probe", blocking: false, re: regexp.MustCompile(`(?i)\breveal (?:your|the) (?:system prompt|instructions)\b`)},
}

// Analyze scans prompt content for prompt-injection anti-patterns and
// returns a verdict: Block if any blocking pattern hits, Warn if only
// non-blocking patterns hit, Pass otherwise. A Block verdict must
// prevent activation; callers are responsible for enforcing that.
func Analyze(promptContent string) AnalysisResult {
	var findings []Finding
	blocked := false

	for _, p := range analysisPatterns {
		loc := p.re.FindStringIndex(promptContent)
		if loc == nil {
			continue
		}
		findings = append(findings, Finding{
			Category: p.category,
			Pattern:  p.re.String(),
			Excerpt:  excerpt(promptContent, loc[0], loc[1]),
		})
		if p.blocking {
			blocked = true
		}
	}

	verdict := VerdictPass
	switch {
	case blocked:
		verdict = VerdictBlock
	case len(findings) > 0:
		verdict = VerdictWarn
	}
	return AnalysisResult{Verdict: verdict, Findings: findings}
}

func excerpt(content string, start, end int) string {
	const pad = 20
	lo := start - pad
	if lo < 0 {
		lo = 0
	}
	hi := end + pad
	if hi > len(content) {
		hi = len(content)
	}
	return strings.TrimSpace(content[lo:hi])
}
