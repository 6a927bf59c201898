// Package decision turns free-text exam decisions ("Admis", "ÉCHEC",
// "Sessionnaire", ...) into an admitted / not-admitted verdict.
package decision

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Verdict is the class a decision text falls into.
type Verdict int

const (
	Unknown Verdict = iota
	Admitted
	Sessionnaire
	Failed
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case Sessionnaire:
		return "sessionnaire"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// IsAdmitted reports whether the verdict counts as an admission.
func (v Verdict) IsAdmitted() bool { return v == Admitted }

// Rule maps normalized decision text to a verdict when Match returns true.
type Rule struct {
	Name    string
	Match   func(normalized string) bool
	Verdict Verdict
}

// Rules is evaluated in order and the first matching rule wins. Admission is
// checked before the session and failure rules.
var Rules = []Rule{
	{Name: "admitted", Match: containsAny("admis", "reussi", "reussie", "success", "pass", "valide"), Verdict: Admitted},
	{Name: "admitted-code", Match: equalsAny("r", "a"), Verdict: Admitted},
	{Name: "sessionnaire", Match: containsAny("sessionnaire", "sessionn", "session", "rattrapage"), Verdict: Sessionnaire},
	{Name: "failed", Match: containsAny("echec", "echoue", "refuse", "elimine", "ajourne", "fail", "reject"), Verdict: Failed},
}

// Normalize lowercases, trims, strips diacritics and collapses whitespace.
func Normalize(text string) string {
	text = strings.ToLower(text)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	return strings.Join(strings.Fields(stripped), " ")
}

// Classify normalizes text and returns the verdict of the first matching rule.
func Classify(text string) Verdict {
	n := Normalize(text)
	for _, r := range Rules {
		if r.Match(n) {
			return r.Verdict
		}
	}
	return Unknown
}

// IsAdmitted is the verdict used to set the admis flag of a student.
func IsAdmitted(text string) bool {
	return Classify(text).IsAdmitted()
}

func containsAny(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

func equalsAny(values ...string) func(string) bool {
	return func(s string) bool {
		for _, v := range values {
			if s == v {
				return true
			}
		}
		return false
	}
}
