// Package classify decides which context sources a query needs.
//
// The keyword classifier is a heuristic: a query like "who is on leave in
// finance" can trip the employee keywords without being about the caller.
// It is kept behind the Classifier interface so it can be replaced.
package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type QueryType string

const (
	TypeEmployee QueryType = "employee"
	TypePolicy   QueryType = "policy"
	TypeHybrid   QueryType = "hybrid"
	// TypeGeneral means no keyword matched; policy search is the fallback.
	TypeGeneral QueryType = "general"
)

type Result struct {
	NeedsEmployeeData bool
	NeedsPolicyData   bool
	Type              QueryType

	EmployeeMatches []string
	PolicyMatches   []string
}

// EmployeeIntent reports whether the query looked employee specific, even
// if no employee id was available to act on it.
func (r Result) EmployeeIntent() bool { return len(r.EmployeeMatches) > 0 }

type Classifier interface {
	Classify(query string, hasEmployeeID bool) Result
}

type KeywordClassifier struct {
	employee []string
	policy   []string
}

func NewKeywordClassifier(employeeKeywords, policyKeywords []string) *KeywordClassifier {
	return &KeywordClassifier{
		employee: normalize(employeeKeywords),
		policy:   normalize(policyKeywords),
	}
}

func (c *KeywordClassifier) Classify(query string, hasEmployeeID bool) Result {
	text := strings.ToLower(query)

	result := Result{
		EmployeeMatches: matches(text, c.employee),
		PolicyMatches:   matches(text, c.policy),
	}
	noMatch := len(result.EmployeeMatches) == 0 && len(result.PolicyMatches) == 0

	result.NeedsEmployeeData = len(result.EmployeeMatches) > 0 && hasEmployeeID
	result.NeedsPolicyData = len(result.PolicyMatches) > 0 || noMatch

	switch {
	case noMatch:
		result.Type = TypeGeneral
	case result.NeedsEmployeeData && result.NeedsPolicyData:
		result.Type = TypeHybrid
	case result.NeedsEmployeeData:
		result.Type = TypeEmployee
	case result.NeedsPolicyData:
		result.Type = TypePolicy
	default:
		// Employee keywords without an employee id.
		result.Type = TypeEmployee
	}
	return result
}

func normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.Join(strings.Fields(strings.ToLower(keyword)), " ")
		if keyword == "" {
			continue
		}
		if _, dup := seen[keyword]; dup {
			continue
		}
		seen[keyword] = struct{}{}
		out = append(out, keyword)
	}
	return out
}

func matches(text string, keywords []string) []string {
	var found []string
	for _, keyword := range keywords {
		if containsWord(text, keyword) {
			found = append(found, keyword)
		}
	}
	return found
}

// containsWord reports whether keyword occurs in text with no letter or
// digit directly on either side.
func containsWord(text, keyword string) bool {
	for offset := 0; offset <= len(text); {
		idx := strings.Index(text[offset:], keyword)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(keyword)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

var _ Classifier = (*KeywordClassifier)(nil)
