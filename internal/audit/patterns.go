package audit

import "regexp"

// ContentRule is one suspicious-content heuristic. Rules are evaluated in
// table order; the first match wins.
type ContentRule struct {
	Name     string
	Category string
	Severity Severity
	Pattern  *regexp.Regexp
}

// contentRules is the ordered heuristic table for message screening.
// Order matters: more specific credential rules come before the generic
// number-shaped ones.
var contentRules = []ContentRule{
	{
		Name:     "credential_solicitation",
		Category: "credential or password solicitation combined with a transfer verb",
		Severity: SeverityHigh,
		Pattern: regexp.MustCompile(
			`(?i)\b(?:send|share|give|provide|confirm|verify)\b[^.!?]{0,60}\b(?:password|passcode|passwd|credentials?|pin)\b` +
				`|\b(?:password|passcode|passwd|credentials?|pin)\b[^.!?]{0,60}\b(?:send|share|give|provide|confirm|verify)\b`),
	},
	{
		Name:     "secret_key_solicitation",
		Category: "API key or secret solicitation",
		Severity: SeverityHigh,
		Pattern:  regexp.MustCompile(`(?i)\b(?:api[ _-]?key|secret[ _-]?key|access[ _-]?token|private[ _-]?key|client[ _-]?secret)\b`),
	},
	{
		Name:     "credit_card_number",
		Category: "credit-card-number-like sequence",
		Severity: SeverityHigh,
		Pattern:  regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{1,4}\b`),
	},
	{
		Name:     "ssn",
		Category: "SSN-like sequence",
		Severity: SeverityHigh,
		Pattern:  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		Name:     "shortened_url",
		Category: "suspicious shortened-domain URL",
		Severity: SeverityHigh,
		Pattern:  regexp.MustCompile(`(?i)\b(?:bit\.ly|tinyurl\.com|goo\.gl|t\.co|ow\.ly|is\.gd|buff\.ly|cutt\.ly)/\S+`),
	},
}

// matchContentRules returns the first rule matching the message, if any.
func matchContentRules(message string) (ContentRule, bool) {
	for _, r := range contentRules {
		if r.Pattern.MatchString(message) {
			return r, true
		}
	}
	return ContentRule{}, false
}
