package citation

import (
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/coolbeans/regparser/pkg/grammar"
	"github.com/coolbeans/regparser/pkg/logging"
	"github.com/coolbeans/regparser/pkg/metrics"
)

// resultFields are the grammar names copied onto labels, in schema order.
var resultFields = []string{
	"cfr_title", "part", "section", "appendix", "appendix_section",
	"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9",
	"c1", "c2", "c3", "c4",
}

// appendixParagraphFields maps the appendix paragraph names onto the
// paragraph levels of the appendix schemas.
var appendixParagraphFields = map[string]string{"a1": "p1", "a2": "p2", "a3": "p3"}

// contextRadius is how much surrounding text a warning quotes.
const contextRadius = 40

// Options tune InternalCitations.
type Options struct {
	// RequireMarker skips grammars that match bare numbers ("22(a)"), which
	// are prone to false positives in tables and dates.
	RequireMarker bool
	// Title is the CFR title being parsed. Citations qualified with this
	// title ("12 CFR 1005.2") are reported as internal or external
	// citations rather than ignored.
	Title string
}

// Extractor finds citations in regulation text. It is safe for concurrent
// use.
type Extractor struct {
	logger  *slog.Logger
	metrics *metrics.Collector
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets the logger for ambiguity warnings.
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(extractor *Extractor) {
		extractor.logger = logger
	}
}

// WithMetrics records extracted citations on collector.
func WithMetrics(collector *metrics.Collector) ExtractorOption {
	return func(extractor *Extractor) {
		extractor.metrics = collector
	}
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	extractor := &Extractor{}
	for _, opt := range opts {
		opt(extractor)
	}
	extractor.logger = logging.OrDiscard(extractor.logger)
	return extractor
}

// InternalCitations returns the citations in text, resolved relative to
// initial (the label of the node the text belongs to). Citations nested
// inside a longer match are dropped. The result is not sorted.
func (extractor *Extractor) InternalCitations(text string, initial Label, options Options) []ParagraphCitation {
	searches := grammar.Searches
	var citations []ParagraphCitation

	citations = append(citations, extractor.single(text, searches.MarkerComment, initial, true)...)
	citations = append(citations, extractor.multiple(text, searches.MultipleNonComments, initial, false, true)...)
	citations = append(citations, extractor.multiple(text, searches.MultipleAppendixSection, initial, false, true)...)
	citations = append(citations, extractor.multiple(text, searches.MultipleComments, initial, true, true)...)
	citations = append(citations, extractor.multiple(text, searches.MultipleAppendices, initial, false, false)...)
	citations = append(citations, extractor.multiple(text, searches.MultiplePeriodSections, initial, false, true)...)
	citations = append(citations, extractor.single(text, searches.MarkerAppendix, initial, false)...)
	citations = append(citations, extractor.single(text, searches.AppendixWithSection, initial, false)...)
	citations = append(citations, extractor.single(text, searches.MarkerParagraph, initial, false)...)
	citations = append(citations, extractor.single(text, searches.MPSParagraph, initial, false)...)
	citations = append(citations, extractor.single(text, searches.MSectionParagraph, initial, false)...)

	if !options.RequireMarker {
		citations = append(citations, extractor.single(text, searches.SectionParagraph, initial, false)...)
		citations = append(citations, extractor.single(text, searches.PartSectionParagraph, initial, false)...)
		citations = append(citations, extractor.multiple(text, searches.MultipleSectionParagraphs, initial, false, false)...)
	}

	if options.Title != "" {
		for _, cfrCitation := range extractor.cfrCitations(text, initial, true) {
			if cfrCitation.Label.Get("cfr_title") == options.Title {
				citations = append(citations, cfrCitation)
			}
		}
	}

	selected := SelectEncompassing(citations)
	for index := range selected {
		if selected[index].Kind == "" {
			selected[index].Kind = kindOf(selected[index].Label, initial)
		}
		extractor.metrics.RecordCitation(string(selected[index].Kind))
	}
	return selected
}

// CFRCitations returns title-qualified citations ("12 CFR 1026.5(a)",
// "12 CFR parts 1005 and 1026"). includeFill expands "through" ranges.
func (extractor *Extractor) CFRCitations(text string, includeFill bool) []ParagraphCitation {
	citations := extractor.cfrCitations(text, NewLabel(Fields{}), includeFill)
	for index := range citations {
		citations[index].Kind = KindCFR
		extractor.metrics.RecordCitation(string(KindCFR))
	}
	return citations
}

func (extractor *Extractor) cfrCitations(text string, initial Label, includeFill bool) []ParagraphCitation {
	var citations []ParagraphCitation
	citations = append(citations, extractor.multiple(text, grammar.Searches.MultipleCFRCitations, initial, false, includeFill)...)
	for match := range grammar.Searches.CFRCitation.Scan(text) {
		head := match.Sub("head")
		citations = append(citations, ParagraphCitation{
			Start:     head.Start,
			End:       head.End,
			FullStart: match.Start,
			FullEnd:   match.End,
			Label:     labelFromResult(head, initial, false),
		})
	}
	return SelectEncompassing(citations)
}

// RemoveCitationOverlaps drops citations whose core span overlaps a
// citation already kept, preferring earlier and longer citations. Layer
// output uses it so that offsets never overlap.
func RemoveCitationOverlaps(citations []ParagraphCitation) []ParagraphCitation {
	sorted := append([]ParagraphCitation(nil), citations...)
	SortByStart(sorted)

	var kept []ParagraphCitation
	for _, candidate := range sorted {
		if len(kept) > 0 {
			last := kept[len(kept)-1]
			if candidate.Start < last.End && !(candidate.Start == last.Start && candidate.End == last.End) {
				continue
			}
		}
		kept = append(kept, candidate)
	}
	return kept
}

func (extractor *Extractor) single(text string, search *grammar.QuickSearch, initial Label, comment bool) []ParagraphCitation {
	var citations []ParagraphCitation
	for match := range search.Scan(text) {
		start := match.Start
		if match.Has("marker") {
			start = skipSpaces(text, match.Sub("marker").End)
		}
		citations = append(citations, ParagraphCitation{
			Start:     start,
			End:       match.End,
			FullStart: match.Start,
			FullEnd:   match.End,
			Label:     labelFromResult(match, initial, comment),
		})
	}
	return citations
}

// multiple handles compound citations. The head resolves against initial;
// every tail item resolves against the citation before it, so "(b)(1) and
// (2)" yields (b)(2) rather than (2).
func (extractor *Extractor) multiple(text string, search *grammar.QuickSearch, initial Label, comment, includeFill bool) []ParagraphCitation {
	var citations []ParagraphCitation
	for match := range search.Scan(text) {
		head := match.Sub("head")
		previous := labelFromResult(head, initial, comment)
		citations = append(citations, ParagraphCitation{
			Start:     head.Start,
			End:       head.End,
			FullStart: match.Start,
			FullEnd:   match.End,
			Label:     previous,
			InClause:  true,
		})

		for _, item := range match.All("tail") {
			inner := item.Sub("inner")
			label := labelFromResult(inner, previous, comment)
			citation := ParagraphCitation{
				Start:     inner.Start,
				End:       inner.End,
				FullStart: match.Start,
				FullEnd:   match.End,
				Label:     label,
				InClause:  true,
			}

			if includeFill && item.Has("through") {
				between, err := previous.LabelsUntil(label)
				if err != nil {
					extractor.warnRange(text, citation, err)
				}
				for _, filled := range between {
					fillCitation := citation
					fillCitation.Label = filled
					citations = append(citations, fillCitation)
				}
			}

			citations = append(citations, citation)
			previous = label
		}
	}
	return citations
}

func (extractor *Extractor) warnRange(text string, citation ParagraphCitation, err error) {
	message := "unable to fill citation range"
	if errors.Is(err, ErrRangeLevels) {
		message = "citation range mixes marker levels"
	}
	extractor.logger.Warn(message,
		"error", err,
		"text", excerpt(text, citation.FullStart, citation.FullEnd),
		"start", citation.FullStart,
		"end", citation.FullEnd,
	)
}

func labelFromResult(result *grammar.Result, initial Label, comment bool) Label {
	fields := Fields{}
	for _, name := range resultFields {
		if result.Has(name) {
			fields[name] = result.Get(name)
		}
	}
	for name, field := range appendixParagraphFields {
		if result.Has(name) {
			fields[field] = result.Get(name)
		}
	}
	if comment {
		fields["comment"] = "true"
	}
	if len(fields) == 0 {
		return initial
	}
	return initial.Copy(fields)
}

func kindOf(label, initial Label) Kind {
	part := initial.Get("part")
	if part != "" && label.Get("part") != "" && label.Get("part") != part {
		return KindExternal
	}
	return KindInternal
}

func skipSpaces(text string, pos int) int {
	for pos < len(text) && (text[pos] == ' ' || text[pos] == '\t' || text[pos] == '\n') {
		pos++
	}
	return pos
}

func excerpt(text string, start, end int) string {
	from := max(0, start-contextRadius)
	to := min(len(text), end+contextRadius)
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return text[from:to]
}
