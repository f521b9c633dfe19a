package namematch

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMinScore is the lowest score accepted as the same person.
const DefaultMinScore = 60

type Level string

const (
	LevelExact  Level = "exact"
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
	LevelNone   Level = "none"
)

type Result struct {
	Score int
	Level Level
	// Shared counts name tokens found in both names, allowing small typos.
	Shared   int
	required int
}

// Accept reports whether the match is strong enough to register the account.
func (r Result) Accept(minScore int) bool {
	return r.Score >= minScore && r.Shared >= r.required
}

var folder = cases.Fold()

// Normalize folds case, strips diacritics and punctuation, and sorts the name
// tokens so that word order does not affect the comparison.
func Normalize(name string) string {
	return strings.Join(tokenize(name), " ")
}

func tokenize(name string) []string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		stripped = name
	}
	stripped = folder.String(stripped)

	tokens := strings.FieldsFunc(stripped, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(tokens)
	return tokens
}

// tokenThreshold is the similarity at which two tokens count as the same word.
const tokenThreshold = 0.9

var jaroWinkler = metrics.NewJaroWinkler()

// Compare scores how likely two personal names refer to the same person. The
// score compares the whole names; acceptance also needs two tokens in common
// (one for single-word names) so that a shared surname alone never passes.
func Compare(a, b string) Result {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return Result{Score: 0, Level: LevelNone}
	}

	result := Result{
		Shared:   sharedTokens(ta, tb),
		required: min(2, len(ta), len(tb)),
	}

	na, nb := strings.Join(ta, " "), strings.Join(tb, " ")
	if na == nb {
		result.Score = 100
	} else {
		result.Score = int(math.Round(strutil.Similarity(na, nb, jaroWinkler) * 100))
	}
	result.Level = levelFor(result.Score)
	if result.Shared < result.required && result.Score >= 40 {
		result.Level = LevelLow
	}
	return result
}

// sharedTokens pairs each token of the shorter name with at most one similar
// token of the other.
func sharedTokens(a, b []string) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	used := make([]bool, len(b))
	shared := 0
	for _, ta := range a {
		for j, tb := range b {
			if used[j] || strutil.Similarity(ta, tb, jaroWinkler) < tokenThreshold {
				continue
			}
			used[j] = true
			shared++
			break
		}
	}
	return shared
}

func levelFor(score int) Level {
	switch {
	case score >= 100:
		return LevelExact
	case score >= 80:
		return LevelHigh
	case score >= 60:
		return LevelMedium
	case score >= 40:
		return LevelLow
	default:
		return LevelNone
	}
}
