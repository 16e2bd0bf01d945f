package approvals

import (
	"regexp"
)

// Word boundaries are spelled out with \p{L} because \b is ASCII-only and
// would split "sì" after the "s".
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

var (
	// Looser replies ("ok", "sure") are left to the classifier.
	affirmative = regexp.MustCompile(`(?i)` + wordStart +
		`(s[iìí]|confermo|ok\s*vai|perfetto|procedi|yes|proceed|go ahead)` + wordEnd)

	negation = regexp.MustCompile(`(?i)` + wordStart +
		`(no|non|not|annulla|cancella|cancel|stop|aspetta|wait|don'?t|nope|lascia perdere)` + wordEnd)

	recordName = regexp.MustCompile(`(?i)` + wordStart +
		`(SO?\d+|S\d{5}|WH/(?:OUT|IN)/\d+)` + wordEnd)

	recordNumber = regexp.MustCompile(`(?i)` + wordStart +
		`(ordine|order|consegna|delivery|picking)\s+(?:n\.?\s*|#)?\d+` + wordEnd)
)

// HasAffirmative reports whether text contains an affirmative keyword.
func HasAffirmative(text string) bool {
	return affirmative.MatchString(text)
}

// HasNegation reports whether text contains a negation or cancel keyword.
func HasNegation(text string) bool {
	return negation.MatchString(text)
}

// ReferencesRecord reports whether text names an existing business record
// (S00042, SO12, WH/OUT/00013, "order 42"). Such messages are new requests
// about that record, not answers to the held question.
func ReferencesRecord(text string) bool {
	return recordName.MatchString(text) || recordNumber.MatchString(text)
}

// prefilter applies the keyword checks. A message naming a record is
// ruled out before any confirm or cancel decision. It returns IntentUnclear
// with decided=false when the classifier must be consulted.
func prefilter(text string) (intent Intent, decided bool) {
	if ReferencesRecord(text) {
		return IntentUnclear, true
	}
	if HasAffirmative(text) && !HasNegation(text) {
		return IntentConfirm, true
	}
	return IntentUnclear, false
}
