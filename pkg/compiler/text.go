package compiler

import (
	"regexp"
	"strings"

	"github.com/coolbeans/regparser/pkg/markers"
)

var firstSentencePattern = regexp.MustCompile(`^.*?[.!?](?:\s|$)`)

// firstSentence returns text up to and including its first sentence
// terminator, or all of text when it has none.
func firstSentence(text string) string {
	if match := firstSentencePattern.FindString(text); match != "" {
		return strings.TrimSpace(match)
	}
	return text
}

// ReplaceFirstSentence swaps the first sentence of text for replacement,
// keeping the rest.
func ReplaceFirstSentence(text, replacement string) string {
	match := firstSentencePattern.FindStringIndex(text)
	if match == nil {
		return replacement
	}
	rest := strings.TrimLeft(text[match[1]:], " ")
	if rest == "" {
		return replacement
	}
	return replacement + " " + rest
}

// replaceHeading swaps the keyterm heading of existing for the one in
// updated, keeping existing's paragraph markers and body.
func replaceHeading(existing, updated string) string {
	prefix := existing[:len(existing)-len(markers.StripParagraphMarkers(existing))]
	heading := firstSentence(strings.TrimSpace(markers.StripParagraphMarkers(updated)))
	return prefix + ReplaceFirstSentence(markers.StripParagraphMarkers(existing), heading)
}

// OverwriteMarker rewrites the leading paragraph marker of text from
// oldMarker to newMarker. Both "(a)" and interpretation "1." forms are
// recognised, with or without emphasis tags.
func OverwriteMarker(text, oldMarker, newMarker string) string {
	quoted := regexp.QuoteMeta(oldMarker)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`^(\s*\(\s*(?:<E[^>]*>)?)` + quoted + `((?:</E>)?\s*\))`),
		regexp.MustCompile(`^(\s*(?:<E[^>]*>)?)` + quoted + `((?:</E>)?\s*\.)`),
	}
	for _, pattern := range patterns {
		if pattern.MatchString(text) {
			return pattern.ReplaceAllString(text, "${1}"+strings.ReplaceAll(newMarker, "$", "$$")+"${2}")
		}
	}
	return text
}
