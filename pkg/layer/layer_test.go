package layer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/coolbeans/regparser/pkg/metrics"
	"github.com/coolbeans/regparser/pkg/tree"
)

func citingRegulation() *tree.Node {
	section := tree.New("", []string{"1005", "2"}, tree.TypeRegtext,
		tree.New("(a) See § 1005.2(b). Also see § 1005.9.", []string{"1005", "2", "a"}, tree.TypeRegtext),
		tree.New("(b) Beta.", []string{"1005", "2", "b"}, tree.TypeRegtext),
		tree.New("(c) See § 1005.2(b). Compare § 1005.2(b).", []string{"1005", "2", "c"}, tree.TypeRegtext),
	)
	return tree.New("", []string{"1005"}, tree.TypeRegtext,
		tree.New("", []string{"1005", "Subpart"}, tree.TypeEmptyPart, section))
}

func citedLabels(entries []CitationEntry) []string {
	var labels []string
	for _, entry := range entries {
		labels = append(labels, tree.LabelID(entry.Citation))
	}
	return labels
}

func TestInternalCitationLayer(t *testing.T) {
	var buffer bytes.Buffer
	collector := metrics.New()
	options := CitationOptions{
		Logger:  slog.New(slog.NewTextHandler(&buffer, nil)),
		Metrics: collector,
		Workers: 2,
	}

	layer, err := InternalCitationLayer(context.Background(), citingRegulation(), options)
	if err != nil {
		t.Fatalf("InternalCitationLayer() error = %v", err)
	}

	if got := citedLabels(layer["1005-2-a"]); !slices.Equal(got, []string{"1005-2-b", "1005-9"}) {
		t.Errorf("citations of 1005-2-a = %v, want [1005-2-b 1005-9]", got)
	}
	if _, ok := layer["1005-2-b"]; ok {
		t.Error("1005-2-b cites nothing and should have no entry")
	}
	repeated := layer["1005-2-c"]
	if len(repeated) != 1 || len(repeated[0].Offsets) != 2 {
		t.Errorf("citations of 1005-2-c = %+v, want one label with two offsets", repeated)
	}
	if !strings.Contains(buffer.String(), "missing citation") {
		t.Errorf("expected a missing citation warning, log = %q", buffer.String())
	}
	if got := testutil.ToFloat64(collector.CitationsMissing); got != 1 {
		t.Errorf("missing citations metric = %v, want 1", got)
	}
}

func TestInternalCitationLayerVerify(t *testing.T) {
	layer, err := InternalCitationLayer(context.Background(), citingRegulation(), CitationOptions{Verify: true})
	if err != nil {
		t.Fatalf("InternalCitationLayer() error = %v", err)
	}
	if got := citedLabels(layer["1005-2-a"]); !slices.Equal(got, []string{"1005-2-b"}) {
		t.Errorf("verified citations of 1005-2-a = %v, want [1005-2-b]", got)
	}
}

func TestInternalCitationLayerRuneOffsets(t *testing.T) {
	root := tree.New("", []string{"1005"}, tree.TypeRegtext,
		tree.New("", []string{"1005", "Subpart"}, tree.TypeEmptyPart,
			tree.New("§ 1005.2(b)", []string{"1005", "3"}, tree.TypeRegtext)))

	layer, err := InternalCitationLayer(context.Background(), root, CitationOptions{})
	if err != nil {
		t.Fatalf("InternalCitationLayer() error = %v", err)
	}
	entries := layer["1005-3"]
	if len(entries) != 1 {
		t.Fatalf("citations = %+v, want one", entries)
	}
	// "§" is two bytes but one character.
	if end := entries[0].Offsets[0][1]; end != 11 {
		t.Errorf("end offset = %d, want 11", end)
	}
}

func TestInternalCitationLayerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := InternalCitationLayer(ctx, citingRegulation(), CitationOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("InternalCitationLayer() error = %v, want context.Canceled", err)
	}
}

func TestCitationsJSON(t *testing.T) {
	layer := Citations{"1005-2-a": {{Offsets: [][2]int{{4, 15}}, Citation: []string{"1005", "2", "b"}}}}
	encoded, err := json.Marshal(layer)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{"1005-2-a":[{"offsets":[[4,15]],"citation":["1005","2","b"]}]}`
	if string(encoded) != want {
		t.Errorf("json.Marshal() = %s, want %s", encoded, want)
	}
}

func definingRegulation() *tree.Node {
	accessDevice := tree.New("(a) Access device means a card.", []string{"1005", "2", "a"}, tree.TypeRegtext)
	accessDevice.TaggedText = `(a) <E T="03">Access device</E> means a card.`
	device := tree.New("(b) Device means a thing.", []string{"1005", "2", "b"}, tree.TypeRegtext)
	device.TaggedText = `(b) <E T="03">Device</E> means a thing.`
	definitions := tree.New("", []string{"1005", "2"}, tree.TypeRegtext, accessDevice, device)
	definitions.Title = "§ 1005.2 Definitions."

	coverage := tree.New("", []string{"1005", "3"}, tree.TypeRegtext,
		tree.New(`(a) Each access device and every device is covered. The term "consumer" means a natural person.`,
			[]string{"1005", "3", "a"}, tree.TypeRegtext))
	coverage.Title = "§ 1005.3 Coverage."

	return tree.New("", []string{"1005"}, tree.TypeRegtext,
		tree.New("", []string{"1005", "Subpart"}, tree.TypeEmptyPart, definitions, coverage))
}

func TestTermsLayer(t *testing.T) {
	layer := TermsLayer(definingRegulation(), TermsOptions{})

	wantDefinitions := map[string]Definition{
		"access device:1005-2-a": {Term: "access device", Reference: "1005-2-a", Position: [2]int{4, 17}},
		"device:1005-2-b":        {Term: "device", Reference: "1005-2-b", Position: [2]int{4, 10}},
		"consumer:1005-3-a":      {Term: "consumer", Reference: "1005-3-a", Position: [2]int{62, 70}},
	}
	if len(layer.Referenced) != len(wantDefinitions) {
		t.Errorf("Referenced = %+v, want %d definitions", layer.Referenced, len(wantDefinitions))
	}
	for key, want := range wantDefinitions {
		if got := layer.Referenced[key]; got != want {
			t.Errorf("Referenced[%q] = %+v, want %+v", key, got, want)
		}
	}

	want := []TermReference{
		{Ref: "access device:1005-2-a", Offsets: [][2]int{{9, 22}}},
		{Ref: "device:1005-2-b", Offsets: [][2]int{{33, 39}}},
	}
	got := layer.Occurrences["1005-3-a"]
	if !slices.EqualFunc(got, want, referenceEqual) {
		t.Errorf("Occurrences[1005-3-a] = %+v, want %+v", got, want)
	}
	for _, label := range []string{"1005-2-a", "1005-2-b"} {
		if references, ok := layer.Occurrences[label]; ok {
			t.Errorf("definitions should not reference themselves, %s = %+v", label, references)
		}
	}
}

func TestTermsLayerIncludeExclude(t *testing.T) {
	var buffer bytes.Buffer
	layer := TermsLayer(definingRegulation(), TermsOptions{
		Logger:  slog.New(slog.NewTextHandler(&buffer, nil)),
		Include: map[string][]string{"1005": {"covered:1005-3", "malformed"}},
		Exclude: map[string][]string{"1005": {"Device"}, "1026": {"access device"}},
	})

	if _, ok := layer.Referenced["device:1005-2-b"]; ok {
		t.Error("excluded term should not be defined")
	}
	if _, ok := layer.Referenced["access device:1005-2-a"]; !ok {
		t.Error("exclusions for another part should not apply")
	}
	if got := layer.Referenced["covered:1005-3"]; got.Term != "covered" || got.Position != [2]int{} {
		t.Errorf("configured definition = %+v", got)
	}
	want := []TermReference{
		{Ref: "access device:1005-2-a", Offsets: [][2]int{{9, 22}}},
		{Ref: "covered:1005-3", Offsets: [][2]int{{43, 50}}},
	}
	if got := layer.Occurrences["1005-3-a"]; !slices.EqualFunc(got, want, referenceEqual) {
		t.Errorf("Occurrences[1005-3-a] = %+v, want %+v", got, want)
	}
	if !strings.Contains(buffer.String(), "ignoring configured definition") {
		t.Errorf("expected a warning for the malformed entry, log = %q", buffer.String())
	}
}

func referenceEqual(left, right TermReference) bool {
	return left.Ref == right.Ref && slices.Equal(left.Offsets, right.Offsets)
}
