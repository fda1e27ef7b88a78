package layer

import (
	"cmp"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/coolbeans/regparser/pkg/logging"
	"github.com/coolbeans/regparser/pkg/markers"
	"github.com/coolbeans/regparser/pkg/tree"
)

// Definition is a defined term and where it is defined.
type Definition struct {
	Term string `json:"term"`
	// Reference is the label id of the defining node.
	Reference string `json:"reference"`
	// Position is the term's rune span in the defining node's text, or
	// [0, 0] when the definition was configured rather than found.
	Position [2]int `json:"position"`
}

// TermReference is every use of one definition within a node.
type TermReference struct {
	Ref     string   `json:"ref"`
	Offsets [][2]int `json:"offsets"`
}

// Terms is the defined-terms layer.
type Terms struct {
	// Referenced is keyed by "term:label_id".
	Referenced map[string]Definition `json:"referenced"`
	// Occurrences maps node label ids to the defined terms they use.
	Occurrences map[string][]TermReference `json:"occurrences"`
}

// TermsOptions configure TermsLayer. Include and Exclude are keyed by part.
type TermsOptions struct {
	Logger *slog.Logger
	// Include lists extra "term:label_id" definitions the text does not
	// state in a recognisable form.
	Include map[string][]string
	// Exclude lists terms that are never treated as defined.
	Exclude map[string][]string
}

var (
	quotedDefinitionPattern     = regexp.MustCompile(`["“]([^"”]{1,80})["”]\s+(?:means|shall mean|includes)\b`)
	emphasisedDefinitionPattern = regexp.MustCompile(`<E T="03">([^<]{1,80})</E>\s*(?:[.,:]\s*)?(?:means|shall mean)\b`)
	leadingKeytermPattern       = regexp.MustCompile(`^\s*<E T="03">([^<]{1,80})</E>`)
)

func normalizeTerm(term string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(term), ".,:;"))
}

func refFor(term, labelID string) string {
	return term + ":" + labelID
}

// TermsLayer finds the definitions in root and every later use of the
// defined terms. Definitions are recognised as a quoted term followed by
// "means", an emphasised term followed by "means", or the leading keyterm
// of a paragraph in a section titled as a definitions section. Definitions
// apply across the whole part.
func TermsLayer(root *tree.Node, options TermsOptions) Terms {
	logger := logging.OrDiscard(options.Logger)
	part := ""
	if len(root.Label) > 0 {
		part = root.Label[0]
	}
	excluded := map[string]bool{}
	for _, term := range options.Exclude[part] {
		excluded[normalizeTerm(term)] = true
	}

	layer := Terms{Referenced: map[string]Definition{}, Occurrences: map[string][]TermReference{}}
	define := func(definition Definition) {
		if definition.Term == "" || excluded[definition.Term] {
			return
		}
		key := refFor(definition.Term, definition.Reference)
		if _, ok := layer.Referenced[key]; !ok {
			layer.Referenced[key] = definition
		}
	}

	root.Walk(func(node *tree.Node) bool {
		if isDefinitionSection(node) {
			for _, paragraph := range node.Flatten()[1:] {
				if definition, ok := leadingKeyterm(paragraph); ok {
					define(definition)
				}
			}
		}
		for _, definition := range statedDefinitions(node) {
			define(definition)
		}
		return true
	})

	for _, entry := range options.Include[part] {
		term, labelID, ok := strings.Cut(entry, ":")
		if !ok || root.Find(labelID) == nil {
			logger.Warn("ignoring configured definition", "entry", entry, "part", part)
			continue
		}
		define(Definition{Term: normalizeTerm(term), Reference: labelID})
	}

	matchers := termMatchers(layer.Referenced)
	root.Walk(func(node *tree.Node) bool {
		if references := findReferences(node, matchers, layer.Referenced); len(references) > 0 {
			layer.Occurrences[node.LabelID()] = references
		}
		return true
	})
	logger.Debug("built terms layer", "part", part, "definitions", len(layer.Referenced))
	return layer
}

func isDefinitionSection(node *tree.Node) bool {
	return len(node.Label) == 2 && strings.Contains(strings.ToLower(node.Title), "definition")
}

func leadingKeyterm(node *tree.Node) (Definition, bool) {
	if node.TaggedText == "" {
		return Definition{}, false
	}
	match := leadingKeytermPattern.FindStringSubmatch(markers.StripParagraphMarkers(node.TaggedText))
	if match == nil {
		return Definition{}, false
	}
	return definitionIn(node, match[1]), true
}

func statedDefinitions(node *tree.Node) []Definition {
	var found []Definition
	for _, match := range quotedDefinitionPattern.FindAllStringSubmatch(node.Text, -1) {
		found = append(found, definitionIn(node, match[1]))
	}
	for _, match := range emphasisedDefinitionPattern.FindAllStringSubmatch(node.TaggedText, -1) {
		found = append(found, definitionIn(node, match[1]))
	}
	return found
}

// definitionIn locates the raw term in the node's plain text.
func definitionIn(node *tree.Node, raw string) Definition {
	raw = strings.TrimSpace(raw)
	definition := Definition{Term: normalizeTerm(raw), Reference: node.LabelID()}
	if index := strings.Index(node.Text, strings.Trim(raw, ".,:;")); index >= 0 {
		start := runeOffset(node.Text, index)
		definition.Position = [2]int{start, start + len([]rune(strings.Trim(raw, ".,:;")))}
	}
	return definition
}

type termMatcher struct {
	ref     string
	pattern *regexp.Regexp
}

// termMatchers orders the definitions longest term first so that "access
// device" wins over "device".
func termMatchers(referenced map[string]Definition) []termMatcher {
	var matchers []termMatcher
	for ref, definition := range referenced {
		matchers = append(matchers, termMatcher{
			ref:     ref,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(definition.Term) + `(?:s|es)?\b`),
		})
	}
	slices.SortFunc(matchers, func(left, right termMatcher) int {
		return cmp.Or(
			cmp.Compare(len(referenced[right.ref].Term), len(referenced[left.ref].Term)),
			cmp.Compare(left.ref, right.ref),
		)
	})
	return matchers
}

func findReferences(node *tree.Node, matchers []termMatcher, referenced map[string]Definition) []TermReference {
	if node.Text == "" {
		return nil
	}
	var taken [][2]int
	overlaps := func(span [2]int) bool {
		for _, used := range taken {
			if span[0] < used[1] && used[0] < span[1] {
				return true
			}
		}
		return false
	}

	var references []TermReference
	for _, matcher := range matchers {
		definition := referenced[matcher.ref]
		var offsets [][2]int
		for _, match := range matcher.pattern.FindAllStringIndex(node.Text, -1) {
			span := [2]int{runeOffset(node.Text, match[0]), runeOffset(node.Text, match[1])}
			// The definition itself is not a use.
			if definition.Reference == node.LabelID() && span[0] == definition.Position[0] {
				taken = append(taken, span)
				continue
			}
			if overlaps(span) {
				continue
			}
			taken = append(taken, span)
			offsets = append(offsets, span)
		}
		if len(offsets) > 0 {
			references = append(references, TermReference{Ref: matcher.ref, Offsets: offsets})
		}
	}
	slices.SortFunc(references, func(left, right TermReference) int {
		return cmp.Compare(left.Offsets[0][0], right.Offsets[0][0])
	})
	return references
}
