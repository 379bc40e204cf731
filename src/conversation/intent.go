package conversation

import "regexp"

var clearPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(clear|delete|remove)\b.*\b(conversation|history|chat)\b`),
	regexp.MustCompile(`(?i)\b(conversation|history|chat)\b.*\b(clear|delete|remove)\b`),
	regexp.MustCompile(`(?i)\bforget\b.*\b(conversation|everything)\b`),
	regexp.MustCompile(`(?i)\breset\b.*\b(conversation|chat|history)\b`),
	regexp.MustCompile(`(?i)\bclear\s+all\b`),
	regexp.MustCompile(`(?i)\bstart\s+fresh\b`),
	regexp.MustCompile(`(?i)\bnew\s+conversation\b`),
}

// DetectClearIntent reports whether a message asks to wipe the history.
func DetectClearIntent(message string) bool {
	for _, p := range clearPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}
