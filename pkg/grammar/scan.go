package grammar

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrUnsupported is returned by NewQuickSearch when no candidate-start
// pattern can be derived for a grammar: it can match the empty string, or it
// contains an element the optimiser does not understand.
var ErrUnsupported = errors.New("grammar not supported by quick search")

// Scan yields every non-overlapping match of element in text, trying each
// position in turn. It is the reference behaviour QuickSearch reproduces.
func Scan(element Element, text string) iter.Seq[*Result] {
	return func(yield func(*Result) bool) {
		cursor := 0
		for cursor <= len(text) {
			result, ok := element.Parse(text, cursor)
			if ok && result.End > cursor {
				if !yield(result) {
					return
				}
				cursor = result.End
				continue
			}
			cursor = advance(text, cursor)
		}
	}
}

func advance(text string, cursor int) int {
	if cursor >= len(text) {
		return cursor + 1
	}
	_, size := utf8.DecodeRuneInString(text[cursor:])
	return cursor + size
}

// QuickSearch scans like Scan but only attempts a full parse where a regular
// expression derived from the grammar's possible first tokens matches. The
// derived expression over-approximates the grammar, so the results are
// identical to Scan.
type QuickSearch struct {
	element Element
	initial *regexp.Regexp
}

// NewQuickSearch derives the candidate-start pattern for element.
func NewQuickSearch(element Element) (*QuickSearch, error) {
	pattern, nullable, err := startPattern(element)
	if err != nil {
		return nil, err
	}
	if nullable || pattern == "" {
		return nil, fmt.Errorf("%w: grammar can match the empty string", ErrUnsupported)
	}
	initial, compileErr := regexp.Compile(pattern)
	if compileErr != nil {
		return nil, fmt.Errorf("compiling start pattern %q: %w", pattern, compileErr)
	}
	return &QuickSearch{element: element, initial: initial}, nil
}

// MustQuickSearch is like NewQuickSearch but panics on error. It is meant
// for package-level grammar variables.
func MustQuickSearch(element Element) *QuickSearch {
	search, err := NewQuickSearch(element)
	if err != nil {
		panic(err)
	}
	return search
}

// Pattern returns the derived candidate-start expression.
func (search *QuickSearch) Pattern() string {
	return search.initial.String()
}

// Scan yields every non-overlapping match in text.
func (search *QuickSearch) Scan(text string) iter.Seq[*Result] {
	return func(yield func(*Result) bool) {
		cursor := 0
		for cursor <= len(text) {
			location := search.initial.FindStringIndex(text[cursor:])
			if location == nil {
				return
			}
			candidate := cursor + location[0]
			result, ok := search.element.Parse(text, candidate)
			if ok && result.End > candidate {
				if !yield(result) {
					return
				}
				cursor = result.End
				continue
			}
			cursor = advance(text, candidate)
		}
	}
}

// ScanAll collects Scan into a slice.
func (search *QuickSearch) ScanAll(text string) []*Result {
	var results []*Result
	for result := range search.Scan(text) {
		results = append(results, result)
	}
	return results
}

// startPattern returns a regular expression matching wherever element's
// first consumed token may begin, and whether element can match without
// consuming anything.
func startPattern(element Element) (string, bool, error) {
	switch typed := element.(type) {
	case *literal:
		quoted := regexp.QuoteMeta(typed.match)
		if typed.caseless {
			quoted = "(?i:" + quoted + ")"
		}
		return quoted, typed.match == "", nil
	case *regex:
		return "(?:" + typed.pattern + ")", typed.compiled.MatchString(""), nil
	case *word:
		return characterClass(typed.chars), false, nil
	case *marker:
		quoted := "(?i:" + regexp.QuoteMeta(typed.phrase) + ")"
		if isWordByte(typed.phrase[0]) {
			quoted = `\b` + quoted
		}
		return quoted, false, nil
	case *sequence:
		var alternatives []string
		for _, child := range typed.elements {
			pattern, nullable, err := startPattern(child)
			if err != nil {
				return "", false, err
			}
			if pattern != "" {
				alternatives = append(alternatives, pattern)
			}
			if !nullable {
				return joinAlternatives(alternatives), false, nil
			}
		}
		return joinAlternatives(alternatives), true, nil
	case *choice:
		var alternatives []string
		anyNullable := false
		for _, alternative := range typed.alternatives {
			pattern, nullable, err := startPattern(alternative)
			if err != nil {
				return "", false, err
			}
			if pattern != "" {
				alternatives = append(alternatives, pattern)
			}
			anyNullable = anyNullable || nullable
		}
		return joinAlternatives(alternatives), anyNullable, nil
	case *optional:
		pattern, _, err := startPattern(typed.element)
		return pattern, true, err
	case *repetition:
		pattern, nullable, err := startPattern(typed.element)
		return pattern, nullable || typed.minCount == 0, err
	case *suppress:
		return startPattern(typed.element)
	case *named:
		return startPattern(typed.element)
	case *adjacent:
		return startPattern(typed.element)
	case *wordStart:
		return startPattern(typed.element)
	case *hinted:
		return "(?:" + typed.hint + ")", false, nil
	case lineStart, *notFollowedBy:
		return "", true, nil
	default:
		return "", false, fmt.Errorf("%w: unrecognised element %s", ErrUnsupported, describe(element))
	}
}

func characterClass(chars string) string {
	var builder strings.Builder
	builder.WriteString("[")
	for _, char := range chars {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) {
			builder.WriteString(`\`)
		}
		builder.WriteRune(char)
	}
	builder.WriteString("]")
	return builder.String()
}

func joinAlternatives(alternatives []string) string {
	switch len(alternatives) {
	case 0:
		return ""
	case 1:
		return alternatives[0]
	default:
		return "(?:" + strings.Join(alternatives, "|") + ")"
	}
}
