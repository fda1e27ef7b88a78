package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/coolbeans/regparser/pkg/diff"
	"github.com/coolbeans/regparser/pkg/metrics"
	"github.com/coolbeans/regparser/pkg/notice"
	"github.com/coolbeans/regparser/pkg/tree"
)

const designateNotice = `<RULE>
<FRDOC>[FR Doc. 2024-01234 Filed 1-2-24]</FRDOC>
<REGTEXT PART="204" TITLE="12">
<AMDPAR>
<EREGS_INSTRUCTIONS>
<DESIGNATE label="204-?-1" destination="204-Subpart-A"/>
<DESIGNATE label="204-?-2" destination="204-Subpart-B"/>
</EREGS_INSTRUCTIONS>
</AMDPAR>
</REGTEXT>
</RULE>`

func baseTree() *tree.Node {
	return tree.New("", []string{"204"}, tree.TypeRegtext,
		tree.New("", []string{"204", "Subpart"}, tree.TypeEmptyPart,
			tree.New("Authority text.", []string{"204", "1"}, tree.TypeRegtext),
			tree.New("Definitions text.", []string{"204", "2"}, tree.TypeRegtext)))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func checkDesignated(t *testing.T, update Update) {
	t.Helper()
	if update.Err != nil {
		t.Fatalf("update error = %v", update.Err)
	}
	if got := update.Result.Tree.LabelIDs(); !slices.Equal(got, []string{"204-Subpart-A", "204-Subpart-B"}) {
		t.Errorf("root children = %v", got)
	}
	for _, label := range []string{"204-Subpart-A", "204-Subpart-B"} {
		if update.Changes[label].Op != diff.OpAdded {
			t.Errorf("change for %s = %+v, want added", label, update.Changes[label])
		}
	}
}

func TestProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2024-01234.xml")
	writeFile(t, path, designateNotice)
	collector := metrics.New()
	base := baseTree()

	update := New(dir, base, Options{Metrics: collector}).Process(path)

	checkDesignated(t, update)
	if update.Notice.DocumentNumber != "2024-01234" {
		t.Errorf("DocumentNumber = %q", update.Notice.DocumentNumber)
	}
	if got := base.LabelIDs(); !slices.Equal(got, []string{"204-Subpart"}) {
		t.Errorf("base tree modified: %v", got)
	}
	if testutil.ToFloat64(collector.InternedNodes) == 0 {
		t.Error("interned node gauge not set")
	}
}

func TestProcessErrors(t *testing.T) {
	dir := t.TempDir()
	withoutInstructions := filepath.Join(dir, "empty.xml")
	writeFile(t, withoutInstructions, "<RULE><REGTEXT PART=\"204\"/></RULE>")
	watcher := New(dir, baseTree(), Options{})

	if update := watcher.Process(withoutInstructions); !errors.Is(update.Err, notice.ErrNoInstructions) {
		t.Errorf("Process() error = %v, want ErrNoInstructions", update.Err)
	}
	if update := watcher.Process(filepath.Join(dir, "missing.xml")); !errors.Is(update.Err, os.ErrNotExist) {
		t.Errorf("Process() error = %v, want not exist", update.Err)
	}
}

func TestScanOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.xml"), designateNotice)
	writeFile(t, filepath.Join(dir, "a.xml"), designateNotice)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a notice")

	updates, err := New(dir, baseTree(), Options{}).ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce() error = %v", err)
	}
	var names []string
	for _, update := range updates {
		names = append(names, filepath.Base(update.Path))
		checkDesignated(t, update)
	}
	if !slices.Equal(names, []string{"a.xml", "b.xml"}) {
		t.Errorf("processed %v, want [a.xml b.xml]", names)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	watcher := New(dir, baseTree(), Options{Debounce: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan Update, 8)
	done := make(chan error, 1)
	go func() {
		done <- watcher.Run(ctx, func(update Update) { updates <- update })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "2024-01234.xml"), designateNotice)

	timeout := time.After(5 * time.Second)
	for waiting := true; waiting; {
		select {
		case update := <-updates:
			if update.Err == nil {
				checkDesignated(t, update)
				waiting = false
			}
		case <-timeout:
			t.Fatal("timed out waiting for a compiled notice")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
