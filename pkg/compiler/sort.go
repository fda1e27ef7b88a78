package compiler

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"unicode"

	"github.com/coolbeans/regparser/pkg/markers"
	"github.com/coolbeans/regparser/pkg/tree"
)

// LabelDepths names the label positions whose alphabetic segments are
// roman numerals rather than letters. Labels cannot tell "i" the letter
// from "i" the numeral, so sorting decides by position.
type LabelDepths struct {
	// RegtextRoman lists zero-based positions in regtext labels, counting
	// the part: [part, section, p1, p2, p3] puts p3 at 4.
	RegtextRoman []int `yaml:"regtext_roman" validate:"dive,min=0"`
	// CommentRoman lists offsets from the Interp segment of comment labels:
	// [..., Interp, 1, i] puts "i" at 2.
	CommentRoman []int `yaml:"comment_roman" validate:"dive,min=1"`
}

// DefaultLabelDepths is the six-level CFR convention: roman numerals at the
// third and sixth paragraph levels and at the second comment level.
func DefaultLabelDepths() LabelDepths {
	return LabelDepths{
		RegtextRoman: []int{2 + int(markers.LevelRoman), 2 + int(markers.LevelEmRoman)},
		CommentRoman: []int{2},
	}
}

func (depths LabelDepths) orDefault() LabelDepths {
	if depths.RegtextRoman == nil && depths.CommentRoman == nil {
		return DefaultLabelDepths()
	}
	return depths
}

// isRoman reports whether the segment at position of label is a roman
// numeral position.
func (depths LabelDepths) isRoman(label []string, position int) bool {
	interp := slices.Index(label, tree.InterpMark)
	if interp >= 0 && position > interp {
		return slices.Contains(depths.CommentRoman, position-interp)
	}
	return slices.Contains(depths.RegtextRoman, position)
}

// Sort key classes, compared first.
const (
	classInterp = iota
	classIntro
	classNumber
	classMarker
	classText
)

type keyPart struct {
	class  int
	number int
	text   string
}

// SortKey orders labels segment by segment.
type SortKey []keyPart

// Compare orders two keys.
func (key SortKey) Compare(other SortKey) int {
	for index := range min(len(key), len(other)) {
		left, right := key[index], other[index]
		if result := cmp.Or(
			cmp.Compare(left.class, right.class),
			cmp.Compare(left.number, right.number),
			cmp.Compare(left.text, right.text),
		); result != 0 {
			return result
		}
	}
	return cmp.Compare(len(key), len(other))
}

var (
	introPattern = regexp.MustCompile(`^p(\d+)$`)
	runPattern   = regexp.MustCompile(`\d+|[a-zA-Z]+|[^a-zA-Z\d]+`)
)

// MakeLabelSortable converts one label segment into key parts. Numbers
// compare numerically, letters by their position in the marker alphabet
// ("z" before "aa") and, when roman is set, roman numerals by value.
// Mixed segments such as "4a" split into runs.
func MakeLabelSortable(segment string, roman bool) SortKey {
	if segment == tree.InterpMark {
		return SortKey{{class: classInterp}}
	}
	if match := introPattern.FindStringSubmatch(segment); match != nil {
		number, _ := strconv.Atoi(match[1])
		return SortKey{{class: classIntro, number: number}}
	}

	var key SortKey
	for _, run := range runPattern.FindAllString(segment, -1) {
		key = append(key, runKey(run, roman))
	}
	return key
}

func runKey(run string, roman bool) keyPart {
	first := []rune(run)[0]
	switch {
	case unicode.IsDigit(first):
		number, err := strconv.Atoi(run)
		if err != nil {
			return keyPart{class: classText, text: run}
		}
		return keyPart{class: classNumber, number: number}
	case roman && unicode.IsLower(first):
		if value, ok := markers.FromRoman(run); ok {
			return keyPart{class: classMarker, number: value}
		}
	}
	if index := markers.Index(markers.LevelLower, run); index >= 0 {
		return keyPart{class: classMarker, number: index}
	}
	if index := markers.Index(markers.LevelUpper, run); index >= 0 {
		return keyPart{class: classMarker, number: index}
	}
	return keyPart{class: classText, text: run}
}

// LabelKey is the sort key of a whole label.
func (depths LabelDepths) LabelKey(label []string) SortKey {
	depths = depths.orDefault()
	var key SortKey
	for position, segment := range label {
		key = append(key, MakeLabelSortable(segment, depths.isRoman(label, position))...)
	}
	return key
}

// SortLabels orders label ids the way their nodes appear in a regulation.
func SortLabels(labelIDs []string, depths LabelDepths) []string {
	sorted := slices.Clone(labelIDs)
	slices.SortStableFunc(sorted, func(left, right string) int {
		return depths.LabelKey(tree.SplitLabelID(left)).Compare(depths.LabelKey(tree.SplitLabelID(right)))
	})
	return sorted
}

// rootKind ranks the children of the regulation root: subparts and empty
// parts, then appendices, then the interpretations.
func rootKind(node *tree.Node) int {
	switch {
	case node.NodeType == tree.TypeEmptyPart:
		return 0
	case node.NodeType == tree.TypeSubpart || tree.IsSubpartLabel(node.Label):
		return 1
	case node.NodeType == tree.TypeInterp || tree.IsInterpLabel(node.Label):
		return 3
	}
	return 2
}

// MakeRootSortable is the sort key of a child of the regulation root.
func MakeRootSortable(node *tree.Node, depths LabelDepths) SortKey {
	return append(SortKey{{class: classNumber, number: rootKind(node)}}, depths.LabelKey(node.Label)...)
}
