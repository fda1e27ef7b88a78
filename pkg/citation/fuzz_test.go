package citation

import (
	"strings"
	"testing"

	"github.com/coolbeans/regparser/pkg/tree"
)

// FuzzInternalCitations tests citation extraction with arbitrary input.
// Run with: go test -fuzz=FuzzInternalCitations -fuzztime=30s ./pkg/citation/...
func FuzzInternalCitations(f *testing.F) {
	seeds := []string{
		// Paragraph references
		"paragraph (b)",
		"paragraphs (c)(3), (d)(2), (e)(1), (e)(3), and (f) of this section",
		"under paragraphs (b)(1) and (2)",
		"paragraphs (a)(2) through (a)(5)",

		// Section and part references
		"§ 1005.2(b)(1)",
		"§§ 1005.2 and 1005.3",
		"See § 1026.5(a) and paragraph (c).",
		"part 1005, subpart A",
		"appendix A to part 1005",

		// Comments
		"comment 2(a)-1",
		"comment 2(a)(1)-1.ii",

		// CFR qualified
		"as defined in 11 CFR 110.14, not 12 CFR 1026.5",
		"12 CFR part 1005",

		// Malformed patterns
		"paragraph ()",
		"paragraph (",
		"§",
		"§ .",
		"comment -1",
		"paragraphs (z) through (a)",
		"paragraphs (a)(5) through (a)(2)",
		"(a)(1)(i)(A)(1)(i)(A)(1)",

		// Unicode and whitespace
		"§ 1005.2(b)",
		"paragraph (b) (1)",
		"§ 1005.2 «definitions»",

		strings.Repeat("paragraph (a) ", 500),
	}

	for _, seed := range seeds {
		f.Add(seed)
	}

	extractor := NewExtractor()
	initial := NewLabel(Fields{"part": "1005", "section": "2"})

	f.Fuzz(func(t *testing.T, data string) {
		for _, options := range []Options{{}, {RequireMarker: true, Title: "12"}} {
			citations := extractor.InternalCitations(data, initial, options)
			for _, found := range citations {
				if found.Start < 0 || found.Start > found.End || found.End > len(data) {
					t.Fatalf("citation offsets [%d, %d) outside text of length %d", found.Start, found.End, len(data))
				}
				if found.Label.String() == "" {
					t.Error("citation has empty label")
				}
				_ = found.Label.ToList(true)
			}
		}
	})
}

// FuzzCFRCitations tests title-qualified extraction with arbitrary input.
// Run with: go test -fuzz=FuzzCFRCitations -fuzztime=30s ./pkg/citation/...
func FuzzCFRCitations(f *testing.F) {
	seeds := []string{
		"12 CFR 1026.5(b)",
		"12 CFR part 1005",
		"12 CFR 1005.2 through 1005.9",
		"12 CFR 1026.5(b)(1) and (2)",
		"CFR",
		"12 CFR",
		"12 CFR .",
		"99999999999999999999 CFR 1.1",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	extractor := NewExtractor()

	f.Fuzz(func(t *testing.T, data string) {
		for _, found := range extractor.CFRCitations(data, true) {
			if found.Start < 0 || found.Start > found.End || found.End > len(data) {
				t.Fatalf("citation offsets [%d, %d) outside text of length %d", found.Start, found.End, len(data))
			}
			if found.Kind != KindCFR {
				t.Errorf("Kind = %q, want %q", found.Kind, KindCFR)
			}
		}
	})
}

// FuzzFromSegments tests label reconstruction from arbitrary node labels.
// Run with: go test -fuzz=FuzzFromSegments -fuzztime=30s ./pkg/citation/...
func FuzzFromSegments(f *testing.F) {
	seeds := []string{
		"1005-2-a-1-i-A",
		"1005-Interp-2-a-1",
		"1005-A-1",
		"1005-Subpart-A",
		"1005-2-p1",
		"--",
		"",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, data string) {
		segments := strings.Split(data, "-")
		for _, nodeType := range []tree.NodeType{tree.TypeRegtext, tree.TypeInterp, tree.TypeAppendix} {
			label := FromSegments(segments, nodeType)
			_ = label.ToList(true)
			_ = label.String()
		}
	})
}
