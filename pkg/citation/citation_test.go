package citation

import (
	"slices"
	"testing"
)

func span(start, end, fullStart, fullEnd int, label string) ParagraphCitation {
	return ParagraphCitation{
		Start:     start,
		End:       end,
		FullStart: fullStart,
		FullEnd:   fullEnd,
		Label:     NewLabel(Fields{"part": "1005", "section": "2", "p1": label}),
	}
}

func TestContains(t *testing.T) {
	outer := span(10, 20, 0, 30, "a")
	cases := []struct {
		name  string
		other ParagraphCitation
		want  bool
	}{
		{"inside", span(12, 14, 5, 25, "b"), true},
		{"same full span", span(12, 14, 0, 30, "b"), false},
		{"overlapping", span(25, 35, 25, 35, "b"), false},
		{"outside", span(40, 45, 40, 45, "b"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := outer.Contains(tc.other); got != tc.want {
				t.Errorf("Contains() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSelectEncompassingKeepsDistinctLabels(t *testing.T) {
	citations := []ParagraphCitation{
		span(0, 5, 0, 20, "a"),
		span(2, 4, 2, 10, "b"),
		span(30, 35, 30, 35, "c"),
		span(30, 35, 30, 35, "c"),
		span(30, 35, 30, 35, "d"),
	}

	selected := SelectEncompassing(citations)

	var labels []string
	for _, citation := range selected {
		labels = append(labels, citation.Label.Get("p1"))
	}
	if want := []string{"a", "c", "d"}; !slices.Equal(labels, want) {
		t.Errorf("SelectEncompassing() labels = %v, want %v", labels, want)
	}
}

func TestSortByStart(t *testing.T) {
	citations := []ParagraphCitation{
		span(20, 25, 20, 25, "c"),
		span(5, 9, 5, 9, "b"),
		span(5, 7, 5, 7, "a"),
		span(20, 25, 20, 25, "d"),
	}

	SortByStart(citations)

	var labels []string
	for _, citation := range citations {
		labels = append(labels, citation.Label.Get("p1"))
	}
	if want := []string{"a", "b", "c", "d"}; !slices.Equal(labels, want) {
		t.Errorf("SortByStart() order = %v, want %v", labels, want)
	}
}
