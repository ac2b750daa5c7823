// Package mentions extracts $TICKER references from tweet text.
package mentions

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"fururank/src/model"
	"fururank/src/utils"
)

const cashTag = "$"

// IsCashTag reports whether a whitespace token is a $ followed only by
// letters.
func IsCashTag(word string) bool {
	rest, ok := strings.CutPrefix(word, cashTag)
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Tokens returns the upper-cased symbols of every cash tag in text, in order
// of appearance, duplicates included.
func Tokens(text string) []string {
	var out []string
	for _, word := range strings.Fields(text) {
		if IsCashTag(word) {
			out = append(out, strings.ToUpper(word[len(cashTag):]))
		}
	}
	return out
}

// Symbols returns the sorted distinct symbols cash-tagged across the tweets.
func Symbols(tweets []model.Tweet) []string {
	seen := map[string]struct{}{}
	for _, tw := range tweets {
		for _, s := range Tokens(tw.Text) {
			seen[s] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func DistinctSymbols(tweets []model.Tweet) int {
	return len(Symbols(tweets))
}

// Mentions reports whether text names symbol either as a cash tag or as a
// bare upper-cased word.
func Mentions(text, symbol string) bool {
	symbol = strings.ToUpper(symbol)
	tagged := cashTag + symbol
	for _, word := range strings.Fields(strings.ToUpper(text)) {
		if word == symbol || word == tagged {
			return true
		}
	}
	return false
}

// Timelines maps every cash-tagged symbol to the sorted distinct days on
// which it was mentioned. Once a symbol has been tagged, tweets naming it
// without the tag count too.
func Timelines(tweets []model.Tweet) map[string][]time.Time {
	out := map[string][]time.Time{}
	for _, symbol := range Symbols(tweets) {
		days := map[time.Time]struct{}{}
		for _, tw := range tweets {
			if Mentions(tw.Text, symbol) {
				days[utils.Date(tw.PostedAt)] = struct{}{}
			}
		}

		dates := make([]time.Time, 0, len(days))
		for d := range days {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		out[symbol] = dates
	}
	return out
}
