// Package grammar provides a small set of composable parsing elements for
// recognising citation and paragraph-marker syntax inside regulatory prose.
//
// Elements are combined with Seq, Or, Optional and friends into a grammar.
// Every terminal skips leading whitespace before matching, so "(a) (1)" and
// "(a)(1)" parse identically. Named elements make their sub-results
// available on the enclosing Result.
//
// Grammars are immutable after construction and safe for concurrent use.
package grammar

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Element is a parsing rule. Parse attempts a match beginning at pos (after
// the element's own whitespace handling) and reports whether it succeeded.
// text is always the complete input so that elements can inspect the
// characters before pos.
type Element interface {
	Parse(text string, pos int) (*Result, bool)
}

// Result is the outcome of a successful Parse.
type Result struct {
	// Start and End delimit the consumed text. Start excludes any skipped
	// leading whitespace.
	Start int
	End   int
	// Tokens are the kept (non-suppressed) token texts in order.
	Tokens []string

	matched bool
	fields  map[string]*Result
	lists   map[string][]*Result
}

func newResult(start, end int) *Result {
	return &Result{Start: start, End: end, matched: true}
}

func emptyResult(pos int) *Result {
	return &Result{Start: pos, End: pos}
}

// Matched reports whether the result consumed input or was produced by an
// element that explicitly matched (as opposed to an absent Optional).
func (result *Result) Matched() bool {
	return result != nil && result.matched
}

// Text returns the kept tokens joined together.
func (result *Result) Text() string {
	if result == nil {
		return ""
	}
	return strings.Join(result.Tokens, "")
}

// Has reports whether a named sub-result is present.
func (result *Result) Has(name string) bool {
	if result == nil {
		return false
	}
	_, ok := result.fields[name]
	return ok
}

// Get returns the text of a named sub-result, or "".
func (result *Result) Get(name string) string {
	return result.Sub(name).Text()
}

// Sub returns the named sub-result, or nil.
func (result *Result) Sub(name string) *Result {
	if result == nil {
		return nil
	}
	return result.fields[name]
}

// All returns every sub-result collected under a list name, in match order.
func (result *Result) All(name string) []*Result {
	if result == nil {
		return nil
	}
	return result.lists[name]
}

// merge folds a child's tokens and names into result.
func (result *Result) merge(child *Result) {
	result.Tokens = append(result.Tokens, child.Tokens...)
	for name, sub := range child.fields {
		if result.fields == nil {
			result.fields = make(map[string]*Result)
		}
		result.fields[name] = sub
	}
	for name, subs := range child.lists {
		if result.lists == nil {
			result.lists = make(map[string][]*Result)
		}
		result.lists[name] = append(result.lists[name], subs...)
	}
}

// -----------------------------------------------------------------------------
// Terminals
// -----------------------------------------------------------------------------

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}

func skipWhitespace(text string, pos int) int {
	for pos < len(text) && isSpace(text[pos]) {
		pos++
	}
	return pos
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func wordBoundaryBefore(text string, pos int) bool {
	return pos == 0 || pos > len(text) || !isWordByte(text[pos-1])
}

func wordBoundaryAfter(text string, pos int) bool {
	return pos >= len(text) || !isWordByte(text[pos])
}

type literal struct {
	match    string
	caseless bool
}

// Literal matches the exact string.
func Literal(match string) Element {
	return &literal{match: match}
}

// CaselessLiteral matches the string ignoring ASCII case. The token kept is
// the canonical form given here, not the input text.
func CaselessLiteral(match string) Element {
	return &literal{match: match, caseless: true}
}

func (element *literal) Parse(text string, pos int) (*Result, bool) {
	start := skipWhitespace(text, pos)
	end := start + len(element.match)
	if end > len(text) || element.match == "" {
		return nil, false
	}
	candidate := text[start:end]
	if element.caseless {
		if !strings.EqualFold(candidate, element.match) {
			return nil, false
		}
	} else if candidate != element.match {
		return nil, false
	}
	result := newResult(start, end)
	result.Tokens = []string{element.match}
	return result, true
}

type regex struct {
	pattern  string
	compiled *regexp.Regexp
}

// Regex matches a regular expression anchored at the current position.
// Patterns should not begin with `\b`; wrap the element in WordStart instead
// so that the boundary is evaluated against the full text.
func Regex(pattern string) Element {
	return &regex{
		pattern:  pattern,
		compiled: regexp.MustCompile(`^(?:` + pattern + `)`),
	}
}

func (element *regex) Parse(text string, pos int) (*Result, bool) {
	start := skipWhitespace(text, pos)
	if start > len(text) {
		return nil, false
	}
	location := element.compiled.FindStringIndex(text[start:])
	if location == nil || location[1] == 0 {
		return nil, false
	}
	end := start + location[1]
	result := newResult(start, end)
	result.Tokens = []string{text[start:end]}
	return result, true
}

type word struct {
	chars    string
	minCount int
	maxCount int
}

// Word matches a maximal run of the given characters. The run must be at
// least minCount long; when maxCount is positive a longer run fails rather
// than being truncated.
func Word(chars string, minCount, maxCount int) Element {
	if minCount < 1 {
		minCount = 1
	}
	return &word{chars: chars, minCount: minCount, maxCount: maxCount}
}

func (element *word) Parse(text string, pos int) (*Result, bool) {
	start := skipWhitespace(text, pos)
	end := start
	for end < len(text) {
		runeValue, size := utf8.DecodeRuneInString(text[end:])
		if !strings.ContainsRune(element.chars, runeValue) {
			break
		}
		end += size
	}
	count := utf8.RuneCountInString(text[start:end])
	if count < element.minCount || (element.maxCount > 0 && count > element.maxCount) {
		return nil, false
	}
	result := newResult(start, end)
	result.Tokens = []string{text[start:end]}
	return result, true
}

type marker struct {
	phrase string
}

// Marker matches a whole word or phrase, ignoring case, and suppresses it.
// Markers introduce citations ("paragraph", "§", "comment").
func Marker(phrase string) Element {
	return &marker{phrase: phrase}
}

func (element *marker) Parse(text string, pos int) (*Result, bool) {
	start := skipWhitespace(text, pos)
	end := start + len(element.phrase)
	if end > len(text) || !strings.EqualFold(text[start:end], element.phrase) {
		return nil, false
	}
	if isWordByte(element.phrase[0]) && !wordBoundaryBefore(text, start) {
		return nil, false
	}
	if isWordByte(element.phrase[len(element.phrase)-1]) && !wordBoundaryAfter(text, end) {
		return nil, false
	}
	return newResult(start, end), true
}

type lineStart struct{}

// LineStart is a zero-width element that succeeds only when the next token
// is the first non-blank text on its line.
func LineStart() Element {
	return lineStart{}
}

func (lineStart) Parse(text string, pos int) (*Result, bool) {
	start := pos
	for start < len(text) && (text[start] == ' ' || text[start] == '\t') {
		start++
	}
	lookBack := start
	for lookBack > 0 && (text[lookBack-1] == ' ' || text[lookBack-1] == '\t') {
		lookBack--
	}
	if lookBack == 0 || text[lookBack-1] == '\n' {
		result := newResult(start, start)
		return result, true
	}
	return nil, false
}

// -----------------------------------------------------------------------------
// Combinators
// -----------------------------------------------------------------------------

type sequence struct {
	elements []Element
}

// Seq matches each element in turn.
func Seq(elements ...Element) Element {
	return &sequence{elements: elements}
}

func (element *sequence) Parse(text string, pos int) (*Result, bool) {
	result := emptyResult(pos)
	cursor := pos
	started := false
	for _, child := range element.elements {
		childResult, ok := child.Parse(text, cursor)
		if !ok {
			return nil, false
		}
		if childResult.matched && childResult.End > childResult.Start && !started {
			result.Start = childResult.Start
			started = true
		}
		result.merge(childResult)
		if childResult.End > cursor {
			cursor = childResult.End
		}
	}
	if !started {
		result.Start = skipWhitespace(text, pos)
		if result.Start > cursor {
			result.Start = cursor
		}
	}
	result.End = cursor
	result.matched = true
	return result, true
}

type choice struct {
	alternatives []Element
}

// Or returns the result of the first alternative that matches.
func Or(alternatives ...Element) Element {
	return &choice{alternatives: alternatives}
}

func (element *choice) Parse(text string, pos int) (*Result, bool) {
	for _, alternative := range element.alternatives {
		if result, ok := alternative.Parse(text, pos); ok {
			return result, true
		}
	}
	return nil, false
}

type optional struct {
	element Element
}

// Optional matches the element or nothing.
func Optional(element Element) Element {
	return &optional{element: element}
}

func (element *optional) Parse(text string, pos int) (*Result, bool) {
	if result, ok := element.element.Parse(text, pos); ok {
		return result, true
	}
	return emptyResult(pos), true
}

type repetition struct {
	element  Element
	minCount int
}

// ZeroOrMore matches the element as many times as possible.
func ZeroOrMore(element Element) Element {
	return &repetition{element: element}
}

// OneOrMore matches the element at least once.
func OneOrMore(element Element) Element {
	return &repetition{element: element, minCount: 1}
}

func (element *repetition) Parse(text string, pos int) (*Result, bool) {
	result := emptyResult(pos)
	cursor := pos
	count := 0
	for {
		childResult, ok := element.element.Parse(text, cursor)
		if !ok || childResult.End <= cursor {
			break
		}
		if count == 0 {
			result.Start = childResult.Start
		}
		result.merge(childResult)
		cursor = childResult.End
		count++
	}
	if count < element.minCount {
		return nil, false
	}
	result.End = cursor
	result.matched = count > 0
	return result, true
}

type suppress struct {
	element Element
}

// Suppress matches the element but discards its tokens. Names defined
// inside the element are discarded as well.
func Suppress(element Element) Element {
	return &suppress{element: element}
}

func (element *suppress) Parse(text string, pos int) (*Result, bool) {
	inner, ok := element.element.Parse(text, pos)
	if !ok {
		return nil, false
	}
	result := newResult(inner.Start, inner.End)
	result.matched = inner.matched
	return result, true
}

type named struct {
	name    string
	element Element
	list    bool
}

// Named stores the element's result under name on the enclosing result. The
// element's own names stay on the stored sub-result rather than leaking to
// the enclosing one. An Optional that did not match is not stored.
func Named(name string, element Element) Element {
	return &named{name: name, element: element}
}

// NamedList is like Named but appends every match to a list retrievable
// with Result.All, which is what repetitions need.
func NamedList(name string, element Element) Element {
	return &named{name: name, element: element, list: true}
}

func (element *named) Parse(text string, pos int) (*Result, bool) {
	inner, ok := element.element.Parse(text, pos)
	if !ok {
		return nil, false
	}
	result := &Result{Start: inner.Start, End: inner.End, matched: inner.matched}
	result.Tokens = append(result.Tokens, inner.Tokens...)
	if !inner.matched {
		return result, true
	}
	if element.list {
		result.lists = map[string][]*Result{element.name: {inner}}
	} else {
		result.fields = map[string]*Result{element.name: inner}
	}
	return result, true
}

type wordStart struct {
	element Element
}

// WordStart requires the element to begin at a word boundary.
func WordStart(element Element) Element {
	return &wordStart{element: element}
}

func (element *wordStart) Parse(text string, pos int) (*Result, bool) {
	start := skipWhitespace(text, pos)
	if !wordBoundaryBefore(text, start) {
		return nil, false
	}
	return element.element.Parse(text, start)
}

type adjacent struct {
	element Element
}

// Adjacent disables whitespace skipping: the element must begin exactly at
// the current position.
func Adjacent(element Element) Element {
	return &adjacent{element: element}
}

func (element *adjacent) Parse(text string, pos int) (*Result, bool) {
	if pos < len(text) && isSpace(text[pos]) {
		return nil, false
	}
	return element.element.Parse(text, pos)
}

type notFollowedBy struct {
	element Element
}

// NotFollowedBy is a zero-width negative lookahead.
func NotFollowedBy(element Element) Element {
	return &notFollowedBy{element: element}
}

func (element *notFollowedBy) Parse(text string, pos int) (*Result, bool) {
	if _, ok := element.element.Parse(text, pos); ok {
		return nil, false
	}
	return emptyResult(pos), true
}

type hinted struct {
	hint    string
	element Element
}

// Hinted attaches an explicit quick-search start pattern to an element the
// optimiser cannot analyse, such as a custom Element implementation. The
// pattern must match wherever the element can start.
func Hinted(startPattern string, element Element) Element {
	return &hinted{hint: startPattern, element: element}
}

func (element *hinted) Parse(text string, pos int) (*Result, bool) {
	return element.element.Parse(text, pos)
}

// describe renders a short description for error messages.
func describe(element Element) string {
	switch typed := element.(type) {
	case *literal:
		return fmt.Sprintf("Literal(%q)", typed.match)
	case *regex:
		return fmt.Sprintf("Regex(%q)", typed.pattern)
	case *word:
		return fmt.Sprintf("Word(%q)", typed.chars)
	case *marker:
		return fmt.Sprintf("Marker(%q)", typed.phrase)
	default:
		return fmt.Sprintf("%T", element)
	}
}
