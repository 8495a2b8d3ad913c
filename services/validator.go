package services

import "strings"

// DefaultBannedTerms sind Organisationen, Rollen und Gruppenbegriffe, die keine Person bezeichnen.
var DefaultBannedTerms = []string{
	"taliban", "isis", "al-qaeda", "hamas", "government", "cabinet",
	"army", "police", "committee", "board", "ministry", "forces",
	"spokesperson", "unidentified", "unknown",
}

// NameValidator filtert extrahierte Namen über eine Sperrliste (Teilstring, ohne Groß-/Kleinschreibung).
type NameValidator struct {
	banned []string
}

// NewNameValidator erstellt einen Validator. Ohne Begriffe gilt DefaultBannedTerms.
func NewNameValidator(terms []string) *NameValidator {
	if len(terms) == 0 {
		terms = DefaultBannedTerms
	}
	banned := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			banned = append(banned, t)
		}
	}
	return &NameValidator{banned: banned}
}

// IsValid ist false für leere Namen und für Namen, die einen gesperrten Begriff enthalten.
func (v *NameValidator) IsValid(name string) bool {
	low := strings.ToLower(strings.TrimSpace(name))
	if low == "" {
		return false
	}
	for _, bad := range v.banned {
		if strings.Contains(low, bad) {
			return false
		}
	}
	return true
}
