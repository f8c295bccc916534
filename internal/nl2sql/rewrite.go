package nl2sql

import (
	"regexp"
	"time"
)

var currentDatePattern = regexp.MustCompile(`(?i)\bcurrent_date\b(\s*\(\s*\))?`)

// Pass selects which substitutions Rewrite applies.
type Pass int

const (
	// PassFull applies the date anchor and the category translation.
	PassFull Pass = iota
	// PassDateOnly applies only the date anchor.
	PassDateOnly
)

// Rewriter applies the textual substitutions every query goes through before
// execution. AsOf is the dataset's own notion of "today".
type Rewriter struct {
	AsOf       time.Time
	Vocabulary Vocabulary
}

func (r Rewriter) Rewrite(sqlText string, pass Pass) string {
	if pass == PassFull {
		sqlText = r.TranslateCategories(sqlText)
	}
	return r.ReplaceCurrentDate(sqlText)
}

// ReplaceCurrentDate swaps every CURRENT_DATE token for a DATE literal.
// A zero AsOf leaves the query untouched.
func (r Rewriter) ReplaceCurrentDate(sqlText string) string {
	if r.AsOf.IsZero() {
		return sqlText
	}
	literal := "DATE '" + r.AsOf.Format("2006-01-02") + "'"
	return currentDatePattern.ReplaceAllLiteralString(sqlText, literal)
}

// TranslateCategories replaces quoted English category literals with their
// dataset-native labels. Only whole quoted literals are touched.
func (r Rewriter) TranslateCategories(sqlText string) string {
	for _, english := range r.Vocabulary.terms() {
		pattern := regexp.MustCompile(`(?i)'` + regexp.QuoteMeta(english) + `'`)
		sqlText = pattern.ReplaceAllLiteralString(sqlText, "'"+r.Vocabulary[english]+"'")
	}
	return sqlText
}

func (r Rewriter) AsOfDate() string {
	if r.AsOf.IsZero() {
		return ""
	}
	return r.AsOf.Format("2006-01-02")
}
