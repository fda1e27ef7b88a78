package compiler

import (
	"bytes"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/coolbeans/regparser/pkg/diff"
	"github.com/coolbeans/regparser/pkg/metrics"
	"github.com/coolbeans/regparser/pkg/notice"
	"github.com/coolbeans/regparser/pkg/tree"
)

func childIDs(node *tree.Node) []string {
	return node.LabelIDs()
}

// sampleRegulation is part 1005 with one section holding (a), (b) and (c).
func sampleRegulation() *tree.Node {
	section := tree.New("", []string{"1005", "2"}, tree.TypeRegtext,
		tree.New("(a) Old heading. Alpha body.", []string{"1005", "2", "a"}, tree.TypeRegtext),
		tree.New("(b) Beta.", []string{"1005", "2", "b"}, tree.TypeRegtext,
			tree.New("(1) Beta one.", []string{"1005", "2", "b", "1"}, tree.TypeRegtext)),
		tree.New("(c) Gamma.", []string{"1005", "2", "c"}, tree.TypeRegtext),
	)
	section.Title = "§ 1005.2 Definitions."
	emptyPart := tree.New("", []string{"1005", "Subpart"}, tree.TypeEmptyPart, section)
	return tree.New("", []string{"1005"}, tree.TypeRegtext, emptyPart)
}

func bufferLogger(buffer *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buffer, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestCompileDoesNotMutatePrevious(t *testing.T) {
	previous := sampleRegulation()
	before, err := previous.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	changes := notice.Changes{}
	changes.Add("1005-2-a", notice.Change{Action: notice.ActionDelete})
	result := Compile(previous, changes, Options{})

	after, _ := previous.MarshalJSON()
	if !bytes.Equal(before, after) {
		t.Error("Compile() modified the previous tree")
	}
	if got := childIDs(result.Tree.Find("1005-2")); !slices.Equal(got, []string{"1005-2-b", "1005-2-c"}) {
		t.Errorf("children after delete = %v", got)
	}
}

func TestCompileDefersUntilDestinationFree(t *testing.T) {
	changes := notice.Changes{}
	changes.Add("1005-2-a", notice.Change{Action: notice.ActionMove, Destination: []string{"1005", "2", "b"}})
	changes.Add("1005-2-b", notice.Change{Action: notice.ActionDelete})

	result := Compile(sampleRegulation(), changes, Options{})

	if result.Forced != 0 || result.Applied != 2 {
		t.Errorf("Applied, Forced = %d, %d, want 2, 0", result.Applied, result.Forced)
	}
	if result.Passes > len(changes) {
		t.Errorf("Passes = %d, want at most %d", result.Passes, len(changes))
	}
	moved := result.Tree.Find("1005-2-b")
	if moved == nil || moved.Text != "(b) Old heading. Alpha body." {
		t.Fatalf("moved node = %+v", moved)
	}
	if result.Tree.Find("1005-2-a") != nil {
		t.Error("1005-2-a should be gone after the move")
	}
}

func TestCompileForcesConflicts(t *testing.T) {
	var buffer bytes.Buffer
	collector := metrics.New()
	changes := notice.Changes{}
	changes.Add("1005-2-a", notice.Change{Action: notice.ActionMove, Destination: []string{"1005", "2", "b"}})
	changes.Add("1005-2-b", notice.Change{Action: notice.ActionMove, Destination: []string{"1005", "2", "a"}})

	result := Compile(sampleRegulation(), changes, Options{Logger: bufferLogger(&buffer), Metrics: collector})

	if result.Passes != 1 || result.Forced != 2 {
		t.Errorf("Passes, Forced = %d, %d, want 1, 2", result.Passes, result.Forced)
	}
	if !strings.Contains(buffer.String(), "Conflicting Change") {
		t.Errorf("expected a conflict warning, log = %q", buffer.String())
	}
	if !strings.Contains(buffer.String(), "run_id="+result.RunID) {
		t.Error("log lines should carry the run id")
	}
	if got := testutil.ToFloat64(collector.ChangesForced); got != 2 {
		t.Errorf("forced changes metric = %v, want 2", got)
	}
	if result.Tree == nil || result.Tree.Find("1005-2") == nil {
		t.Fatal("Compile() should always produce a tree")
	}
}

func TestCompileForcedSwapKeepsBothNodes(t *testing.T) {
	var buffer bytes.Buffer
	changes := notice.Changes{}
	changes.Add("1005-2-a", notice.Change{Action: notice.ActionMove, Destination: []string{"1005", "2", "c"}})
	changes.Add("1005-2-c", notice.Change{Action: notice.ActionMove, Destination: []string{"1005", "2", "a"}})

	result := Compile(sampleRegulation(), changes, Options{Logger: bufferLogger(&buffer)})

	section := result.Tree.Find("1005-2")
	if got, want := childIDs(section), []string{"1005-2-a", "1005-2-b", "1005-2-c"}; !slices.Equal(got, want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
	if got := result.Tree.Find("1005-2-a").Text; got != "(a) Gamma." {
		t.Errorf("1005-2-a text = %q, want %q", got, "(a) Gamma.")
	}
	if got := result.Tree.Find("1005-2-c").Text; got != "(c) Old heading. Alpha body." {
		t.Errorf("1005-2-c text = %q, want %q", got, "(c) Old heading. Alpha body.")
	}
	if strings.Contains(buffer.String(), "displaced node dropped") {
		t.Errorf("swap should place both nodes, log = %q", buffer.String())
	}
}

func TestCompileMoveOntoAncestor(t *testing.T) {
	var buffer bytes.Buffer
	changes := notice.Changes{}
	changes.Add("1005-2-b-1", notice.Change{Action: notice.ActionMove, Destination: []string{"1005", "2", "b"}})

	result := Compile(sampleRegulation(), changes, Options{Logger: bufferLogger(&buffer)})

	section := result.Tree.Find("1005-2")
	if got, want := childIDs(section), []string{"1005-2-a", "1005-2-b", "1005-2-c"}; !slices.Equal(got, want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
	moved := result.Tree.Find("1005-2-b")
	if moved.Text != "(b) Beta one." || len(moved.Children) != 0 {
		t.Errorf("1005-2-b = %q with %d children, want %q with none", moved.Text, len(moved.Children), "(b) Beta one.")
	}
	if !strings.Contains(buffer.String(), "displaced node dropped") {
		t.Errorf("expected the overwritten node to be reported, log = %q", buffer.String())
	}
}

func TestCompileMoveBeneathItself(t *testing.T) {
	var buffer bytes.Buffer
	changes := notice.Changes{}
	changes.Add("1005-2-b", notice.Change{Action: notice.ActionMove, Destination: []string{"1005", "2", "b", "1"}})

	result := Compile(sampleRegulation(), changes, Options{Logger: bufferLogger(&buffer)})

	if got, want := childIDs(result.Tree.Find("1005-2")), []string{"1005-2-a", "1005-2-b", "1005-2-c"}; !slices.Equal(got, want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
	if got := childIDs(result.Tree.Find("1005-2-b")); !slices.Equal(got, []string{"1005-2-b-1"}) {
		t.Errorf("1005-2-b children = %v, want [1005-2-b-1]", got)
	}
	if !strings.Contains(buffer.String(), "cannot move node beneath itself") {
		t.Errorf("expected a warning, log = %q", buffer.String())
	}
}

func TestCompileReplacesChildrenAndKeeps(t *testing.T) {
	replacement := tree.New("", []string{"1005", "2"}, tree.TypeRegtext)
	replacement.Title = "§ 1005.2 Definitions, revised."
	replacement.ChildLabels = []string{"1005-2-a", "1005-2-d"}

	changes := notice.Changes{}
	changes.Add("1005-2", notice.Change{Action: notice.ActionPut, Node: replacement})
	changes.Add("1005-2-c", notice.Change{Action: notice.ActionKeep})
	changes.Add("1005-2-d", notice.Change{Action: notice.ActionPost,
		Node: tree.New("(d) Delta.", []string{"1005", "2", "d"}, tree.TypeRegtext)})

	result := Compile(sampleRegulation(), changes, Options{})

	section := result.Tree.Find("1005-2")
	if section.Title != "§ 1005.2 Definitions, revised." {
		t.Errorf("Title = %q", section.Title)
	}
	if got := childIDs(section); !slices.Equal(got, []string{"1005-2-a", "1005-2-c", "1005-2-d"}) {
		t.Errorf("children = %v, want [1005-2-a 1005-2-c 1005-2-d]", got)
	}
}

func TestCompileFieldEdits(t *testing.T) {
	changes := notice.Changes{}
	changes.Add("1005-2", notice.Change{Action: notice.ActionPut, Field: notice.FieldTitle,
		Node: &tree.Node{Title: "§ 1005.2 Terms."}})
	changes.Add("1005-2-a", notice.Change{Action: notice.ActionPut, Field: notice.FieldHeading,
		Node: &tree.Node{Text: "(a) New heading. Ignored body."}})
	changes.Add("1005-2-c", notice.Change{Action: notice.ActionPut, Field: notice.FieldText,
		Node: &tree.Node{Text: "(c) Gamma revised."}})

	result := Compile(sampleRegulation(), changes, Options{})

	cases := []struct {
		label string
		got   string
		want  string
	}{
		{"1005-2", result.Tree.Find("1005-2").Title, "§ 1005.2 Terms."},
		{"1005-2-a", result.Tree.Find("1005-2-a").Text, "(a) New heading. Alpha body."},
		{"1005-2-c", result.Tree.Find("1005-2-c").Text, "(c) Gamma revised."},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %q, want %q", tc.label, tc.got, tc.want)
		}
	}
	if got := childIDs(result.Tree.Find("1005-2-b")); !slices.Equal(got, []string{"1005-2-b-1"}) {
		t.Errorf("field edits should not touch children, got %v", got)
	}
}

func TestCompileReserveAndInsert(t *testing.T) {
	changes := notice.Changes{}
	changes.Add("1005-2-b", notice.Change{Action: notice.ActionReserve})
	changes.Add("1005-2-x", notice.Change{Action: notice.ActionInsert,
		Node: tree.New("(a-1) Between.", []string{"1005", "2", "x"}, tree.TypeRegtext)})

	result := Compile(sampleRegulation(), changes, Options{})

	reserved := result.Tree.Find("1005-2-b")
	if !reserved.IsReserved() || len(reserved.Children) != 0 {
		t.Errorf("reserved node = %+v", reserved)
	}
	want := []string{"1005-2-a", "1005-2-x", "1005-2-b", "1005-2-c"}
	if got := childIDs(result.Tree.Find("1005-2")); !slices.Equal(got, want) {
		t.Errorf("children = %v, want %v", got, want)
	}
}

func TestCompileSynthesisesMissingParents(t *testing.T) {
	var buffer bytes.Buffer
	changes := notice.Changes{}
	changes.Add("1005-9-a", notice.Change{Action: notice.ActionPost,
		Node: tree.New("(a) Orphan.", []string{"1005", "9", "a"}, tree.TypeRegtext)})

	result := Compile(sampleRegulation(), changes, Options{Logger: bufferLogger(&buffer)})

	if result.Tree.Find("1005-9-a") == nil {
		t.Fatal("orphan paragraph not added")
	}
	if parent := result.Tree.FindParent("1005-9-a"); parent.LabelID() != "1005-9" || parent.Text != "" {
		t.Errorf("placeholder parent = %+v", parent)
	}
	if !strings.Contains(buffer.String(), "level=ERROR") || !strings.Contains(buffer.String(), "synthesised placeholder") {
		t.Errorf("expected a placeholder error, log = %q", buffer.String())
	}
	if got := childIDs(result.Tree.Find("1005-Subpart")); !slices.Equal(got, []string{"1005-2", "1005-9"}) {
		t.Errorf("sections = %v", got)
	}
}

func TestCompileIgnoresOtherParts(t *testing.T) {
	changes := notice.Changes{}
	changes.Add("1026-2-a", notice.Change{Action: notice.ActionDelete})

	result := Compile(sampleRegulation(), changes, Options{})
	if result.Passes != 0 || result.Applied != 0 || result.Forced != 0 {
		t.Errorf("Compile() = %+v, want no work", result)
	}
}

const designateNotice = `<RULE>
<REGTEXT PART="204" TITLE="12">
<AMDPAR>
<EREGS_INSTRUCTIONS>
<DESIGNATE label="204-?-1" destination="204-Subpart-A"/>
<DESIGNATE label="204-?-2" destination="204-Subpart-B"/>
</EREGS_INSTRUCTIONS>
</AMDPAR>
</REGTEXT>
</RULE>`

func TestDesignateEndToEnd(t *testing.T) {
	first := tree.New("Authority text.", []string{"204", "1"}, tree.TypeRegtext)
	first.Title = "§ 204.1 Authority."
	second := tree.New("Definitions text.", []string{"204", "2"}, tree.TypeRegtext)
	second.Title = "§ 204.2 Definitions."
	previous := tree.New("", []string{"204"}, tree.TypeRegtext,
		tree.New("", []string{"204", "Subpart"}, tree.TypeEmptyPart, first, second))

	parsed, err := notice.NewParser(nil, nil).ParseReader(strings.NewReader(designateNotice))
	if err != nil {
		t.Fatalf("ParseReader() error = %v", err)
	}
	result := Compile(previous, parsed.Changes, Options{})

	if got := childIDs(result.Tree); !slices.Equal(got, []string{"204-Subpart-A", "204-Subpart-B"}) {
		t.Fatalf("root children = %v, want [204-Subpart-A 204-Subpart-B]", got)
	}
	if got := childIDs(result.Tree.Children[0]); !slices.Equal(got, []string{"204-1"}) {
		t.Errorf("subpart A children = %v", got)
	}
	if got := childIDs(result.Tree.Children[1]); !slices.Equal(got, []string{"204-2"}) {
		t.Errorf("subpart B children = %v", got)
	}

	interner := tree.NewInterner()
	records := diff.ChangesBetween(interner.Freeze(previous), interner.Freeze(result.Tree))
	for _, label := range []string{"204-Subpart-A", "204-Subpart-B"} {
		if record, ok := records[label]; !ok || record.Op != diff.OpAdded {
			t.Errorf("record for %s = %+v, want added", label, record)
		}
	}
	for _, label := range []string{"204-1", "204-2"} {
		if record, ok := records[label]; ok {
			t.Errorf("unexpected record for moved section %s: %+v", label, record)
		}
	}
}

func TestSortLabels(t *testing.T) {
	labels := []string{"1005-10", "1005-2-b-1-v", "1005-2", "1005-2-b-1-iv", "1005-2-aa", "1005-2-z", "1005-2-p1"}
	want := []string{"1005-2", "1005-2-p1", "1005-2-b-1-iv", "1005-2-b-1-v", "1005-2-z", "1005-2-aa", "1005-10"}
	if got := SortLabels(labels, LabelDepths{}); !slices.Equal(got, want) {
		t.Errorf("SortLabels() = %v, want %v", got, want)
	}
}

func TestLabelDepthsConfigurable(t *testing.T) {
	labels := []string{"1005-2-v", "1005-2-ii", "1005-2-i"}

	if got := SortLabels(labels, DefaultLabelDepths()); !slices.Equal(got, []string{"1005-2-i", "1005-2-v", "1005-2-ii"}) {
		t.Errorf("SortLabels(default) = %v", got)
	}
	romanAtTwo := LabelDepths{RegtextRoman: []int{2}}
	if got := SortLabels(labels, romanAtTwo); !slices.Equal(got, []string{"1005-2-i", "1005-2-ii", "1005-2-v"}) {
		t.Errorf("SortLabels(roman at 2) = %v", got)
	}
}

func TestMakeRootSortable(t *testing.T) {
	depths := DefaultLabelDepths()
	nodes := []*tree.Node{
		tree.New("", []string{"1005", "Interp"}, tree.TypeInterp),
		tree.New("", []string{"1005", "B"}, tree.TypeAppendix),
		tree.New("", []string{"1005", "Subpart", "B"}, tree.TypeSubpart),
		tree.New("", []string{"1005", "A"}, tree.TypeAppendix),
		tree.New("", []string{"1005", "Subpart", "A"}, tree.TypeSubpart),
	}
	slices.SortFunc(nodes, func(left, right *tree.Node) int {
		return MakeRootSortable(left, depths).Compare(MakeRootSortable(right, depths))
	})
	var got []string
	for _, node := range nodes {
		got = append(got, node.LabelID())
	}
	want := []string{"1005-Subpart-A", "1005-Subpart-B", "1005-A", "1005-B", "1005-Interp"}
	if !slices.Equal(got, want) {
		t.Errorf("root order = %v, want %v", got, want)
	}
}

func TestOverwriteMarker(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"(a) Alpha.", "(c) Alpha."},
		{`(<E T="03">a</E>) Alpha.`, `(<E T="03">c</E>) Alpha.`},
		{"a. Comment style.", "c. Comment style."},
		{"No marker (a) here.", "No marker (a) here."},
	}
	for _, tc := range cases {
		if got := OverwriteMarker(tc.text, "a", "c"); got != tc.want {
			t.Errorf("OverwriteMarker(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestReplaceFirstSentence(t *testing.T) {
	cases := []struct {
		text        string
		replacement string
		want        string
	}{
		{"Old heading. Body.", "New heading.", "New heading. Body."},
		{"Section 1005.2 applies. Rest.", "Changed.", "Changed. Rest."},
		{"Only one sentence.", "Replaced.", "Replaced."},
	}
	for _, tc := range cases {
		if got := ReplaceFirstSentence(tc.text, tc.replacement); got != tc.want {
			t.Errorf("ReplaceFirstSentence(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
