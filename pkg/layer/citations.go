// Package layer computes per-node annotation layers over a regulation
// tree: internal citations and defined terms. Layers key their entries by
// node label id and report offsets as character (rune) positions in the
// node text.
package layer

import (
	"context"
	"log/slog"
	"runtime"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/coolbeans/regparser/pkg/citation"
	"github.com/coolbeans/regparser/pkg/logging"
	"github.com/coolbeans/regparser/pkg/metrics"
	"github.com/coolbeans/regparser/pkg/tree"
)

// CitationEntry is one cited label and every place a node's text cites it.
type CitationEntry struct {
	Offsets  [][2]int `json:"offsets"`
	Citation []string `json:"citation"`
}

// Citations maps node label ids to the citations in their text.
type Citations map[string][]CitationEntry

// CitationOptions configure InternalCitationLayer.
type CitationOptions struct {
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	Extractor *citation.Extractor
	// Verify drops citations whose label is not in the tree. Unverified
	// citations are always logged.
	Verify        bool
	RequireMarker bool
	Title         string
	// Workers bounds concurrent nodes; zero means GOMAXPROCS.
	Workers int
}

// InternalCitationLayer extracts the citations of every node in root.
// Nodes are scanned concurrently; the tree is only read.
func InternalCitationLayer(ctx context.Context, root *tree.Node, options CitationOptions) (Citations, error) {
	logger := logging.OrDiscard(options.Logger)
	extractor := options.Extractor
	if extractor == nil {
		extractor = citation.NewExtractor(citation.WithLogger(logger), citation.WithMetrics(options.Metrics))
	}
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	nodes := root.Flatten()
	known := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		known[node.LabelID()] = true
	}

	results := make([][]CitationEntry, len(nodes))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for index, node := range nodes {
		if node.Text == "" {
			continue
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			found := extractor.InternalCitations(node.Text, citation.FromNode(node), citation.Options{
				RequireMarker: options.RequireMarker,
				Title:         options.Title,
			})
			results[index] = entriesFor(node, found, known, options.Verify, logger, options.Metrics)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	layer := Citations{}
	for index, entries := range results {
		if len(entries) > 0 {
			layer[nodes[index].LabelID()] = entries
		}
	}
	logger.Debug("built citation layer", "nodes", len(nodes), "cited", len(layer))
	return layer, nil
}

// entriesFor groups a node's citations by cited label, in order of first
// appearance.
func entriesFor(node *tree.Node, found []citation.ParagraphCitation, known map[string]bool,
	verify bool, logger *slog.Logger, collector *metrics.Collector) []CitationEntry {
	citation.SortByStart(found)

	var entries []CitationEntry
	positions := map[string]int{}
	for _, cited := range found {
		segments := cited.Label.ToList(true)
		labelID := tree.LabelID(segments)
		if !known[labelID] {
			logger.Warn("missing citation",
				"label", node.LabelID(),
				"citation", labelID,
				"start", cited.Start,
				"end", cited.End)
			collector.RecordMissingCitation()
			if verify {
				continue
			}
		}
		offsets := [2]int{runeOffset(node.Text, cited.Start), runeOffset(node.Text, cited.End)}
		if position, ok := positions[labelID]; ok {
			entries[position].Offsets = append(entries[position].Offsets, offsets)
			continue
		}
		positions[labelID] = len(entries)
		entries = append(entries, CitationEntry{Offsets: [][2]int{offsets}, Citation: segments})
	}
	return entries
}

func runeOffset(text string, byteOffset int) int {
	return utf8.RuneCountInString(text[:byteOffset])
}
