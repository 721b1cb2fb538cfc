package cluster

import (
	"path"
	"strings"
	"unicode"
)

// Humanize converts a folder name, filename stem, or shared prefix into a
// display name: separator runs (hyphen, underscore, whitespace) become single
// spaces and each token is title-cased.
//
// "solar-panel-mount" -> "Solar Panel Mount", "design1" -> "Design1".
func Humanize(s string) string {
	tokens := splitTokens(s)
	for i, tok := range tokens {
		tokens[i] = capitalize(tok)
	}
	return strings.TrimSpace(strings.Join(tokens, " "))
}

// humanizeFolder names a project after its parent folder's base name.
func humanizeFolder(folder string) string {
	base := path.Base(folder)
	if base == "." || base == "/" || base == "" {
		return "Untitled"
	}
	return Humanize(base)
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// commonTokenPrefix returns the longest shared leading token sequence of two
// delimiter-split names, joined with hyphens. Empty when the names share no
// leading token.
func commonTokenPrefix(a, b string) string {
	ta, tb := splitTokens(strings.ToLower(a)), splitTokens(strings.ToLower(b))
	n := len(ta)
	if len(tb) < n {
		n = len(tb)
	}
	var shared []string
	for i := 0; i < n; i++ {
		if ta[i] != tb[i] {
			break
		}
		shared = append(shared, ta[i])
	}
	return strings.Join(shared, "-")
}
