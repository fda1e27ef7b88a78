// Package markers describes the paragraph marker alphabets used by the Code
// of Federal Regulations and the heuristics for turning a flat sequence of
// markers into a paragraph hierarchy.
//
// A CFR section nests paragraphs as (a) → (1) → (i) → (A) → (1) → (i), where
// the fifth and sixth levels are italicised in the source XML. Labels store
// the bare marker text ("a", "1", "i", "A").
package markers

import (
	"regexp"
	"strconv"
	"strings"
)

// Level identifies one of the paragraph marker alphabets.
type Level int

const (
	LevelLower Level = iota
	LevelInts
	LevelRoman
	LevelUpper
	LevelEmInts
	LevelEmRoman
)

// Stars is the pseudo-marker for "* * *" placeholders in amendment text.
const Stars = "STARS"

// MaxLevel is the number of paragraph marker alphabets (six levels of
// nesting below a section). Label sorting relies on this constant when it
// decides whether "i" is a letter or a roman numeral.
const MaxLevel = 6

var (
	// Lower holds a..z followed by aa..zz.
	Lower = letterSequence("abcdefghijklmnopqrstuvwxyz")
	// Upper holds A..Z followed by AA..ZZ.
	Upper = letterSequence("ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	// Ints holds "1".."100".
	Ints = intSequence(100)
	// Roman holds "i".."c" (1..100).
	Roman = romanSequence(100)
	// EmInts and EmRoman are the italicised fifth and sixth levels. They
	// share their alphabets with Ints and Roman once emphasis is stripped.
	EmInts  = Ints
	EmRoman = Roman

	// Levels lists the alphabets in nesting order.
	Levels = [][]string{Lower, Ints, Roman, Upper, EmInts, EmRoman}
)

var (
	leadingMarkersPattern = regexp.MustCompile(`^\s*((?:\(\s*(?:<E[^>]*>)?[a-zA-Z0-9]{1,4}(?:</E>)?\s*\)\s*)+)`)
	singleMarkerPattern   = regexp.MustCompile(`\(\s*(?:<E[^>]*>)?([a-zA-Z0-9]{1,4})(?:</E>)?\s*\)`)
	interpMarkerPattern   = regexp.MustCompile(`^\s*(?:<E[^>]*>)?([0-9]{1,3}|[ivxlc]{1,6}|[A-Z]{1,2})(?:</E>)?\s*\.`)
	romanValues           = []struct {
		value  int
		symbol string
	}{
		{100, "c"}, {90, "xc"}, {50, "l"}, {40, "xl"},
		{10, "x"}, {9, "ix"}, {5, "v"}, {4, "iv"}, {1, "i"},
	}
)

func letterSequence(alphabet string) []string {
	sequence := make([]string, 0, len(alphabet)*2)
	for _, letter := range alphabet {
		sequence = append(sequence, string(letter))
	}
	for _, letter := range alphabet {
		sequence = append(sequence, string(letter)+string(letter))
	}
	return sequence
}

func intSequence(count int) []string {
	sequence := make([]string, count)
	for i := range count {
		sequence[i] = strconv.Itoa(i + 1)
	}
	return sequence
}

func romanSequence(count int) []string {
	sequence := make([]string, count)
	for i := range count {
		sequence[i] = ToRoman(i + 1)
	}
	return sequence
}

// ToRoman renders a positive integer as a lowercase roman numeral.
func ToRoman(number int) string {
	if number <= 0 {
		return ""
	}
	var builder strings.Builder
	for _, entry := range romanValues {
		for number >= entry.value {
			builder.WriteString(entry.symbol)
			number -= entry.value
		}
	}
	return builder.String()
}

// FromRoman decodes a lowercase roman numeral. The second return value is
// false when the text is not a canonical numeral.
func FromRoman(numeral string) (int, bool) {
	if numeral == "" {
		return 0, false
	}
	total := 0
	remaining := numeral
	for _, entry := range romanValues {
		for strings.HasPrefix(remaining, entry.symbol) {
			total += entry.value
			remaining = remaining[len(entry.symbol):]
		}
	}
	if remaining != "" || ToRoman(total) != numeral {
		return 0, false
	}
	return total, true
}

// Index returns the position of marker within the level's alphabet, or -1.
func Index(level Level, marker string) int {
	if level < 0 || int(level) >= len(Levels) {
		return -1
	}
	for position, candidate := range Levels[level] {
		if candidate == marker {
			return position
		}
	}
	return -1
}

// LevelsOf returns every level whose alphabet contains the marker, in
// nesting order.
func LevelsOf(marker string) []Level {
	var found []Level
	for levelIndex := range Levels {
		if Index(Level(levelIndex), marker) >= 0 {
			found = append(found, Level(levelIndex))
		}
	}
	return found
}

// SharedLevel returns the first level containing both markers.
func SharedLevel(first, second string) (Level, bool) {
	for levelIndex := range Levels {
		level := Level(levelIndex)
		if Index(level, first) >= 0 && Index(level, second) >= 0 {
			return level, true
		}
	}
	return 0, false
}

// ParagraphMarkers returns the markers at the very start of a paragraph's
// text: "(a)(1) Text" yields ["a", "1"].
func ParagraphMarkers(text string) []string {
	leading := leadingMarkersPattern.FindStringSubmatch(text)
	if leading == nil {
		return nil
	}
	var found []string
	for _, match := range singleMarkerPattern.FindAllStringSubmatch(leading[1], -1) {
		found = append(found, match[1])
	}
	return found
}

// StripParagraphMarkers removes the leading markers counted by
// ParagraphMarkers and returns the remaining text.
func StripParagraphMarkers(text string) string {
	leading := leadingMarkersPattern.FindStringIndex(text)
	if leading == nil {
		return text
	}
	return text[leading[1]:]
}

// FirstInterpMarker returns the marker of an interpretation paragraph
// ("1. Text" yields "1"), or "" when none is present.
func FirstInterpMarker(text string) string {
	match := interpMarkerPattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1]
}

type depthEntry struct {
	level Level
	index int
}

// DeriveDepths assigns a nesting depth (0-based) to each marker in a flat
// sequence. It resolves the letter/roman ambiguity of markers such as "i"
// and "v" by preferring, in order: the first marker of the next deeper
// alphabet, a continuation of an open alphabet, and the first marker of an
// alphabet not yet open.
func DeriveDepths(sequence []string) []int {
	depths := make([]int, len(sequence))
	var stack []depthEntry

	for position, marker := range sequence {
		candidates := LevelsOf(marker)
		if len(candidates) == 0 || marker == Stars {
			depths[position] = len(stack)
			if len(stack) > 0 {
				depths[position] = len(stack) - 1
			}
			continue
		}

		depth, entry := chooseDepth(stack, marker, candidates)
		if depth < len(stack) {
			stack = stack[:depth]
		}
		stack = append(stack, entry)
		depths[position] = depth
	}
	return depths
}

func chooseDepth(stack []depthEntry, marker string, candidates []Level) (int, depthEntry) {
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		nextLevel := top.level + 1
		if Index(nextLevel, marker) == 0 && !levelOpen(stack, nextLevel) {
			return len(stack), depthEntry{level: nextLevel, index: 0}
		}
	}

	for depth := len(stack) - 1; depth >= 0; depth-- {
		open := stack[depth]
		if Index(open.level, marker) == open.index+1 {
			return depth, depthEntry{level: open.level, index: open.index + 1}
		}
	}

	for _, level := range candidates {
		if Index(level, marker) == 0 && !levelOpen(stack, level) {
			return len(stack), depthEntry{level: level, index: 0}
		}
	}

	// Out-of-sequence marker: attach to the first open level that shares
	// its alphabet, otherwise treat it as a new top-level paragraph.
	for depth, open := range stack {
		if Index(open.level, marker) >= 0 {
			return depth, depthEntry{level: open.level, index: Index(open.level, marker)}
		}
	}
	return 0, depthEntry{level: candidates[0], index: Index(candidates[0], marker)}
}

func levelOpen(stack []depthEntry, level Level) bool {
	for _, open := range stack {
		if open.level == level {
			return true
		}
	}
	return false
}
