package workspace

import "regexp"

// PrivacyClassifier decides whether content is sensitive enough to
// redirect away from a shared layer. Grounded on
// original_source/src/workspace/privacy.rs: a compiled regex set applied
// once per classification call.
type PrivacyClassifier interface {
	IsSensitive(content string) bool
}

// defaultPatterns implements spec.md §4.3's default pattern set: SSN,
// card numbers, email, US phone, health/medical terms, and
// highly-personal markers.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                       // SSN
	regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),                     // card number
	regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), // email
	regexp.MustCompile(`\b\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`),     // US phone
	regexp.MustCompile(`(?i)\b(diagnosis|prescription|medication|therapy|doctor|anxiety|depression)\b`),
	regexp.MustCompile(`(?i)\b(password|secret|affair|pregnant|rehab|addiction)\b`),
}

// DefaultClassifier is the regex-set classifier compiled once per
// process, matching spec.md §4.3's "Default classifier".
type DefaultClassifier struct{}

// NewDefaultClassifier returns the stock pattern-based classifier.
func NewDefaultClassifier() *DefaultClassifier {
	return &DefaultClassifier{}
}

// IsSensitive reports whether content matches any default pattern.
func (DefaultClassifier) IsSensitive(content string) bool {
	for _, p := range defaultPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}
