// Package citation models structured regulation labels and extracts
// citations to them from regulatory prose.
package citation

import (
	"slices"
)

// Kind classifies where a citation points.
type Kind string

const (
	// KindInternal cites a label within the same part.
	KindInternal Kind = "internal"
	// KindExternal cites another part of the same title.
	KindExternal Kind = "external"
	// KindCFR is a title-qualified citation ("12 CFR 1026.5").
	KindCFR Kind = "cfr"
)

// ParagraphCitation is one citation found in text. Start and End delimit
// the citation itself; FullStart and FullEnd include the marker words and
// conjunctions of the match it came from.
type ParagraphCitation struct {
	Start     int
	End       int
	FullStart int
	FullEnd   int
	Label     Label
	// InClause is set for citations found inside a compound citation
	// ("paragraphs (a), (b), and (c)").
	InClause bool
	Kind     Kind
}

// Contains reports whether other lies inside the citation's full span and
// the two spans differ.
func (citation ParagraphCitation) Contains(other ParagraphCitation) bool {
	inside := citation.FullStart <= other.FullStart && other.FullEnd <= citation.FullEnd
	same := citation.FullStart == other.FullStart && citation.FullEnd == other.FullEnd
	return inside && !same
}

func (citation ParagraphCitation) sameAs(other ParagraphCitation) bool {
	return citation.Start == other.Start && citation.End == other.End &&
		citation.FullStart == other.FullStart && citation.FullEnd == other.FullEnd &&
		citation.Label.Equal(other.Label)
}

// SelectEncompassing drops every citation properly contained in another
// and collapses exact duplicates. Input order is preserved.
func SelectEncompassing(citations []ParagraphCitation) []ParagraphCitation {
	var selected []ParagraphCitation
	for index, candidate := range citations {
		contained := false
		for otherIndex, other := range citations {
			if otherIndex != index && other.Contains(candidate) {
				contained = true
				break
			}
		}
		if contained {
			continue
		}
		duplicate := slices.ContainsFunc(selected, func(kept ParagraphCitation) bool {
			return kept.sameAs(candidate)
		})
		if !duplicate {
			selected = append(selected, candidate)
		}
	}
	return selected
}

// SortByStart orders citations by their core offsets.
func SortByStart(citations []ParagraphCitation) {
	slices.SortStableFunc(citations, func(a, b ParagraphCitation) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})
}
