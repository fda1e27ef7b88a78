package xmltree

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/coolbeans/regparser/pkg/tree"
)

const annualEdition = `<CFRGRANULE>
<FDSYS><HEADING>PART 1005—ELECTRONIC FUND TRANSFERS</HEADING><GRANULENUM>1005</GRANULENUM></FDSYS>
<PART>
<EAR>Pt. 1005</EAR>
<HD SOURCE="HED">PART 1005—ELECTRONIC FUND TRANSFERS (REGULATION E)</HD>
<SUBPART>
<HD SOURCE="HED">Subpart A—General</HD>
<SECTION>
<SECTNO>§ 1005.1</SECTNO>
<SUBJECT>Authority and purpose.</SUBJECT>
<P>(a) <E T="03">Authority</E>. The regulation is issued.</P>
<P>(b) <E T="03">Purpose.</E> This part carries out:</P>
<P>(1) First purpose;</P>
<P>(i) Detail one; and</P>
<P>(ii) Detail two.</P>
<P>(2) Second purpose.</P>
<P>(c)(1) Combined first.</P>
<P>(2) Combined second.</P>
</SECTION>
</SUBPART>
<APPENDIX>
<EAR>Pt. 1005, App. A</EAR>
<HD SOURCE="HED">Appendix A to Part 1005—Model Disclosure Clauses</HD>
<HD SOURCE="HD1">A-1—Model Clauses for Initial Disclosures</HD>
<P>(a) Consumer liability.</P>
<HD SOURCE="HD1">A-2—Model Clauses for Changes</HD>
<P>Introductory text.</P>
</APPENDIX>
<APPENDIX>
<EAR>Pt. 1005, Supp. I</EAR>
<HD SOURCE="HED">Supplement I to Part 1005—Official Interpretations</HD>
<HD SOURCE="HD1">Section 1005.1—Authority and Purpose</HD>
<HD SOURCE="HD2">1(b) Purpose.</HD>
<P>1. <E T="03">Scope.</E> Some interpretation.</P>
<P>i. Sub one.</P>
<P>ii. Sub two.</P>
<P>2. Second comment.</P>
</APPENDIX>
</PART>
</CFRGRANULE>`

func childIDs(node *tree.Node) []string {
	var ids []string
	for _, child := range node.Children {
		ids = append(ids, child.LabelID())
	}
	return ids
}

func buildAnnual(t *testing.T) *tree.Node {
	t.Helper()
	document, err := ReadDocumentString(annualEdition)
	if err != nil {
		t.Fatalf("ReadDocumentString() error = %v", err)
	}
	preprocessors, err := LookupPreprocessors(DefaultPreprocessorNames)
	if err != nil {
		t.Fatalf("LookupPreprocessors() error = %v", err)
	}
	root, err := NewBuilder(nil, preprocessors...).Build(document)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return root
}

func TestBuildRootLayout(t *testing.T) {
	root := buildAnnual(t)

	if got := root.LabelID(); got != "1005" {
		t.Errorf("root label = %q, want 1005", got)
	}
	if got := root.Title; got != "PART 1005—ELECTRONIC FUND TRANSFERS (REGULATION E)" {
		t.Errorf("root title = %q", got)
	}
	want := []string{"1005-Subpart-A", "1005-A", "1005-Interp"}
	if got := childIDs(root); !slices.Equal(got, want) {
		t.Errorf("root children = %v, want %v", got, want)
	}
	if got := root.Children[0].NodeType; got != tree.TypeSubpart {
		t.Errorf("subpart type = %q", got)
	}
	if got := root.Children[0].Title; got != "Subpart A—General" {
		t.Errorf("subpart title = %q", got)
	}
}

func TestBuildSectionParagraphs(t *testing.T) {
	root := buildAnnual(t)
	section := root.Find("1005-1")
	if section == nil {
		t.Fatal("section 1005-1 not built")
	}
	if section.Title != "§ 1005.1 Authority and purpose." {
		t.Errorf("section title = %q", section.Title)
	}

	var labels []string
	section.Walk(func(node *tree.Node) bool {
		if node != section {
			labels = append(labels, node.LabelID())
		}
		return true
	})
	want := []string{
		"1005-1-a", "1005-1-b", "1005-1-b-1", "1005-1-b-1-i", "1005-1-b-1-ii",
		"1005-1-b-2", "1005-1-c", "1005-1-c-1", "1005-1-c-2",
	}
	if !slices.Equal(labels, want) {
		t.Errorf("paragraph labels = %v, want %v", labels, want)
	}

	cases := []struct {
		label string
		text  string
	}{
		{"1005-1-a", "(a) Authority. The regulation is issued."},
		{"1005-1-b-1-ii", "(ii) Detail two."},
		{"1005-1-c", "(c)"},
		{"1005-1-c-1", "(1) Combined first."},
	}
	for _, tc := range cases {
		if got := root.Find(tc.label).Text; got != tc.text {
			t.Errorf("Find(%q).Text = %q, want %q", tc.label, got, tc.text)
		}
	}

	if got := root.Find("1005-1-a").TaggedText; got != `(a) <E T="03">Authority.</E> The regulation is issued.` {
		t.Errorf("tagged text = %q", got)
	}
}

func TestBuildAppendix(t *testing.T) {
	root := buildAnnual(t)
	appendix := root.Find("1005-A")
	if appendix == nil {
		t.Fatal("appendix not built")
	}
	if got := childIDs(appendix); !slices.Equal(got, []string{"1005-A-1", "1005-A-2"}) {
		t.Errorf("appendix children = %v", got)
	}
	if got := root.Find("1005-A-1-a"); got == nil || got.NodeType != tree.TypeAppendix {
		t.Errorf("appendix paragraph = %+v", got)
	}
	if got := root.Find("1005-A-2-p1"); got == nil || got.Text != "Introductory text." {
		t.Errorf("unmarked appendix paragraph = %+v", got)
	}
}

func TestBuildInterpretations(t *testing.T) {
	root := buildAnnual(t)
	interp := root.Find("1005-Interp")
	if interp == nil {
		t.Fatal("interpretations not built")
	}
	if got := childIDs(interp); !slices.Equal(got, []string{"1005-1-Interp"}) {
		t.Fatalf("interp children = %v", got)
	}
	paragraph := root.Find("1005-1-b-Interp")
	if paragraph == nil {
		t.Fatal("1005-1-b-Interp not built")
	}
	want := []string{"1005-1-b-Interp-1", "1005-1-b-Interp-2"}
	if got := childIDs(paragraph); !slices.Equal(got, want) {
		t.Errorf("comment children = %v, want %v", got, want)
	}
	if got := childIDs(root.Find("1005-1-b-Interp-1")); !slices.Equal(got, []string{"1005-1-b-Interp-1-i", "1005-1-b-Interp-1-ii"}) {
		t.Errorf("comment sub-paragraphs = %v", got)
	}
	for _, node := range interp.Flatten() {
		if node.NodeType != tree.TypeInterp {
			t.Errorf("%s has type %q, want interp", node.LabelID(), node.NodeType)
		}
	}
}

func TestBuildWrapsLooseSections(t *testing.T) {
	source := `<RULE><REGTEXT PART="204" TITLE="12">
<AMDPAR>2. Section 204.1 is revised to read as follows:</AMDPAR>
<SECTION><SECTNO>§ 204.1</SECTNO><SUBJECT>Authority.</SUBJECT><P>Intro text.</P><P>(a) First.</P></SECTION>
<SECTION><SECTNO>§ 204.2</SECTNO><SUBJECT>[Reserved]</SUBJECT></SECTION>
</REGTEXT></RULE>`
	document, err := ReadDocumentString(source)
	if err != nil {
		t.Fatalf("ReadDocumentString() error = %v", err)
	}
	root, err := NewBuilder(nil).Build(document)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if got := childIDs(root); !slices.Equal(got, []string{"204-Subpart"}) {
		t.Fatalf("root children = %v, want [204-Subpart]", got)
	}
	emptyPart := root.Children[0]
	if emptyPart.NodeType != tree.TypeEmptyPart {
		t.Errorf("wrapper type = %q, want emptypart", emptyPart.NodeType)
	}
	if got := childIDs(emptyPart); !slices.Equal(got, []string{"204-1", "204-2"}) {
		t.Errorf("emptypart children = %v", got)
	}
	if got := childIDs(root.Find("204-1")); !slices.Equal(got, []string{"204-1-p1", "204-1-a"}) {
		t.Errorf("section children = %v", got)
	}
	if !root.Find("204-2").IsReserved() {
		t.Error("204-2 should be reserved")
	}
}

func TestBuildNoPart(t *testing.T) {
	document, err := ReadDocumentString(`<RULE><P>No part here.</P></RULE>`)
	if err != nil {
		t.Fatalf("ReadDocumentString() error = %v", err)
	}
	if _, err := NewBuilder(nil).Build(document); !errors.Is(err, ErrNoPart) {
		t.Errorf("Build() error = %v, want ErrNoPart", err)
	}
}

func TestPartFinders(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   string
	}{
		{"regtext", `<RULE><REGTEXT PART="1026"/></RULE>`, "1026"},
		{"ear", `<CFR><PART><EAR>Pt. 1030</EAR></PART></CFR>`, "1030"},
		{"heading", `<CFR><FDSYS><HEADING>PART 226—TRUTH IN LENDING</HEADING></FDSYS></CFR>`, "226"},
		{"granule", `<CFR><FDSYS><GRANULENUM>204</GRANULENUM></FDSYS></CFR>`, "204"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			document, err := ReadDocumentString(tc.source)
			if err != nil {
				t.Fatalf("ReadDocumentString() error = %v", err)
			}
			got, err := FindPart(document, DefaultPartFinders())
			if err != nil || got != tc.want {
				t.Errorf("FindPart() = %q, %v, want %q", got, err, tc.want)
			}
		})
	}
}

func TestPreprocessors(t *testing.T) {
	cases := []struct {
		name         string
		preprocessor Preprocessor
		source       string
		check        func(t *testing.T, rendered string)
	}{
		{
			name:         "adjoining",
			preprocessor: MoveAdjoiningChars{},
			source:       `<P><E T="03">Keyterm</E>. Rest</P>`,
			check: func(t *testing.T, rendered string) {
				if !strings.Contains(rendered, `<E T="03">Keyterm.</E> Rest`) {
					t.Errorf("rendered = %q", rendered)
				}
			},
		},
		{
			name:         "parentheses",
			preprocessor: ParenthesesCleanup{},
			source:       `<P>(<E T="03">a</E>) Text</P>`,
			check: func(t *testing.T, rendered string) {
				if !strings.Contains(rendered, `<E T="03">(a)</E> Text`) {
					t.Errorf("rendered = %q", rendered)
				}
			},
		},
		{
			name:         "footnotes",
			preprocessor: Footnotes{},
			source:       `<SECTION><P>Text<SU>1</SU> more.</P><FTNT><P><SU>1</SU> The note body.</P></FTNT></SECTION>`,
			check: func(t *testing.T, rendered string) {
				if !strings.Contains(rendered, `<E T="note" NOTE="The note body.">1</E>`) {
					t.Errorf("rendered = %q", rendered)
				}
				if strings.Contains(rendered, "FTNT") {
					t.Errorf("footnote block kept: %q", rendered)
				}
			},
		},
		{
			name:         "approvals",
			preprocessor: ApprovalsFP{},
			source:       `<SECTION><FP>(Approved by the Office of Management and Budget under control number 3170-0014)</FP></SECTION>`,
			check: func(t *testing.T, rendered string) {
				if !strings.Contains(rendered, "<APPRO>") {
					t.Errorf("rendered = %q", rendered)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			document, err := ReadDocumentString(tc.source)
			if err != nil {
				t.Fatalf("ReadDocumentString() error = %v", err)
			}
			tc.preprocessor.Transform(document)
			rendered, err := document.WriteToString()
			if err != nil {
				t.Fatalf("WriteToString() error = %v", err)
			}
			tc.check(t, rendered)
		})
	}
}

func TestLookupPreprocessors(t *testing.T) {
	preprocessors, err := LookupPreprocessors([]string{"footnotes", "approvals-fp"})
	if err != nil {
		t.Fatalf("LookupPreprocessors() error = %v", err)
	}
	if got := []string{preprocessors[0].Name(), preprocessors[1].Name()}; !slices.Equal(got, []string{"footnotes", "approvals-fp"}) {
		t.Errorf("order = %v", got)
	}
	if _, err := LookupPreprocessors([]string{"split-dates"}); err == nil {
		t.Error("LookupPreprocessors() should reject unknown names")
	}
}
