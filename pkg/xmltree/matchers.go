package xmltree

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/beevik/etree"

	"github.com/coolbeans/regparser/pkg/markers"
	"github.com/coolbeans/regparser/pkg/tree"
)

// Matcher builds the subtree for one kind of XML element. The Builder asks
// each matcher in order and the first one that matches builds the element.
type Matcher interface {
	Matches(element *etree.Element) bool
	Build(context *BuildContext, element *etree.Element) []*tree.Node
}

// BuildContext is handed to matchers while building one part.
type BuildContext struct {
	Part     string
	Matchers []Matcher
	Logger   *slog.Logger
}

// Dispatch builds element with the first matching matcher. Elements no
// matcher claims are descended into, so wrappers such as SUBCHAP are
// transparent.
func (context *BuildContext) Dispatch(element *etree.Element) []*tree.Node {
	for _, matcher := range context.Matchers {
		if matcher.Matches(element) {
			return matcher.Build(context, element)
		}
	}
	var nodes []*tree.Node
	for _, child := range element.ChildElements() {
		nodes = append(nodes, context.Dispatch(child)...)
	}
	return nodes
}

// DefaultMatchers returns the built-in matchers in dispatch order.
func DefaultMatchers() []Matcher {
	return []Matcher{SubpartMatcher{}, SectionMatcher{}, InterpMatcher{}, AppendixMatcher{}}
}

var (
	subpartHeaderPattern   = regexp.MustCompile(`^Subpart\s+([A-Z]+)\b`)
	sectionNumberPattern   = regexp.MustCompile(`(\d+)\.(\d+[a-z]*)`)
	appendixHeaderPattern  = regexp.MustCompile(`(?i)^Appendix\s+([A-Z]+\d*)\b`)
	appendixSectionPattern = regexp.MustCompile(`^([A-Z]+\d*)-(\d+)\b`)
	interpSectionPattern   = regexp.MustCompile(`^Section\s+(\d+)\.(\d+[a-z]*)`)
	interpParagraphPattern = regexp.MustCompile(`^(?:Paragraph\s+)?(\d+[a-z]*)((?:\([a-zA-Z0-9]+\))+)`)
	parenthesisedPattern   = regexp.MustCompile(`\(([a-zA-Z0-9]+)\)`)
	supplementPattern      = regexp.MustCompile(`(?i)^Supplement\s+I\b`)
)

// SubpartMatcher builds SUBPART elements headed "Subpart A—...".
type SubpartMatcher struct{}

// Matches implements Matcher.
func (SubpartMatcher) Matches(element *etree.Element) bool {
	return element.Tag == "SUBPART"
}

// Build implements Matcher.
func (SubpartMatcher) Build(context *BuildContext, element *etree.Element) []*tree.Node {
	title := headerText(element, "")
	match := subpartHeaderPattern.FindStringSubmatch(title)
	if match == nil {
		context.Logger.Warn("subpart without a letter", "part", context.Part, "title", title)
		return nil
	}
	subpart := tree.New("", []string{context.Part, tree.SubpartMark, match[1]}, tree.TypeSubpart)
	subpart.Title = title
	for _, child := range element.ChildElements() {
		if child.Tag == "HD" {
			continue
		}
		subpart.Children = append(subpart.Children, context.Dispatch(child)...)
	}
	return []*tree.Node{subpart}
}

// SectionMatcher builds SECTION elements.
type SectionMatcher struct{}

// Matches implements Matcher.
func (SectionMatcher) Matches(element *etree.Element) bool {
	return element.Tag == "SECTION"
}

// Build implements Matcher.
func (SectionMatcher) Build(context *BuildContext, element *etree.Element) []*tree.Node {
	sectionNumber := elementText(element, "SECTNO")
	match := sectionNumberPattern.FindStringSubmatch(sectionNumber)
	if match == nil {
		context.Logger.Warn("section without a number", "part", context.Part, "text", sectionNumber)
		return nil
	}

	section := tree.New("", []string{context.Part, match[2]}, tree.TypeRegtext)
	section.Title = cleanXMLText(sectionNumber + " " + elementText(element, "SUBJECT"))

	var body []*etree.Element
	for _, child := range element.ChildElements() {
		switch child.Tag {
		case "SECTNO", "SUBJECT":
		case "RESERVED":
			section.Text = tree.ReservedText
		default:
			body = append(body, child)
		}
	}
	if strings.Contains(section.Title, tree.ReservedText) && section.Text == "" {
		section.Text = tree.ReservedText
	}
	newParagraphBuilder(section, tree.TypeRegtext).build(body)
	return []*tree.Node{section}
}

// AppendixMatcher builds APPENDIX elements. HD1 headings of the form "A-1"
// open appendix sections; everything else nests by paragraph marker.
type AppendixMatcher struct{}

// Matches implements Matcher.
func (AppendixMatcher) Matches(element *etree.Element) bool {
	return element.Tag == "APPENDIX"
}

// Build implements Matcher.
func (AppendixMatcher) Build(context *BuildContext, element *etree.Element) []*tree.Node {
	title := headerText(element, "HED")
	if title == "" {
		title = headerText(element, "")
	}
	match := appendixHeaderPattern.FindStringSubmatch(title)
	if match == nil {
		context.Logger.Warn("appendix without a letter", "part", context.Part, "title", title)
		return nil
	}
	letter := match[1]
	appendix := tree.New("", []string{context.Part, letter}, tree.TypeAppendix)
	appendix.Title = title

	scope := appendix
	var body []*etree.Element
	flush := func() {
		newParagraphBuilder(scope, tree.TypeAppendix).build(body)
		body = nil
	}

	for _, child := range element.ChildElements() {
		text := cleanXMLText(innerText(child))
		switch {
		case child.Tag == "EAR":
		case child.Tag == "HD" && text == title:
		case child.Tag == "HD" && appendixSectionPattern.MatchString(text):
			flush()
			section := appendixSectionPattern.FindStringSubmatch(text)
			scope = tree.New("", []string{context.Part, letter, section[2]}, tree.TypeAppendix)
			scope.Title = text
			appendix.Children = append(appendix.Children, scope)
		default:
			body = append(body, child)
		}
	}
	flush()
	return []*tree.Node{appendix}
}

// InterpMatcher builds the official interpretations, either an INTERP
// element or an APPENDIX headed "Supplement I to Part ...".
type InterpMatcher struct{}

// Matches implements Matcher.
func (InterpMatcher) Matches(element *etree.Element) bool {
	if element.Tag == "INTERP" {
		return true
	}
	return element.Tag == "APPENDIX" && supplementPattern.MatchString(headerText(element, ""))
}

// Build implements Matcher.
func (InterpMatcher) Build(context *BuildContext, element *etree.Element) []*tree.Node {
	root := tree.New("", []string{context.Part, tree.InterpMark}, tree.TypeInterp)
	root.Title = headerText(element, "")
	builder := &interpBuilder{part: context.Part, root: root, scope: root, sections: map[string]*tree.Node{},
		paragraphs: map[string]*tree.Node{}}

	for _, child := range element.ChildElements() {
		text := cleanXMLText(innerText(child))
		switch child.Tag {
		case "EAR":
		case "HD":
			if text == root.Title {
				continue
			}
			builder.header(text)
		case "P", "FP":
			builder.paragraph(text, taggedText(child))
		default:
			if text != "" {
				builder.paragraph(text, taggedText(child))
			}
		}
	}
	return []*tree.Node{root}
}

// interpBuilder tracks the current interpretation scope and the comment
// paragraph stack beneath it.
type interpBuilder struct {
	part       string
	root       *tree.Node
	scope      *tree.Node
	sections   map[string]*tree.Node
	paragraphs map[string]*tree.Node
	stack      []*tree.Node
}

func (builder *interpBuilder) header(text string) {
	builder.stack = nil
	if match := interpSectionPattern.FindStringSubmatch(text); match != nil {
		builder.scope = builder.section(match[2], text)
		return
	}
	if match := appendixHeaderPattern.FindStringSubmatch(text); match != nil {
		builder.scope = builder.section(match[1], text)
		return
	}
	if match := interpParagraphPattern.FindStringSubmatch(text); match != nil {
		address := []string{builder.part, match[1]}
		for _, paragraph := range parenthesisedPattern.FindAllStringSubmatch(match[2], -1) {
			address = append(address, paragraph[1])
		}
		node := tree.New("", append(address, tree.InterpMark), tree.TypeInterp)
		node.Title = text
		parent := builder.enclosing(address)
		parent.Children = append(parent.Children, node)
		builder.paragraphs[tree.LabelID(address)] = node
		builder.scope = node
		return
	}
	builder.paragraph(text, text)
}

// enclosing finds the interpretation of the nearest cited ancestor of
// address, creating the section's interpretation when needed.
func (builder *interpBuilder) enclosing(address []string) *tree.Node {
	for length := len(address) - 1; length > 2; length-- {
		if node, ok := builder.paragraphs[tree.LabelID(address[:length])]; ok {
			return node
		}
	}
	return builder.section(address[1], "")
}

func (builder *interpBuilder) section(identifier, title string) *tree.Node {
	if existing, ok := builder.sections[identifier]; ok {
		if title != "" {
			existing.Title = title
		}
		return existing
	}
	node := tree.New("", []string{builder.part, identifier, tree.InterpMark}, tree.TypeInterp)
	node.Title = title
	builder.root.Children = append(builder.root.Children, node)
	builder.sections[identifier] = node
	return node
}

// commentDepth maps an interpretation marker to its nesting depth:
// "1." → 0, "i." → 1, "A." → 2 and an italic number beneath a capital
// letter → 3.
func (builder *interpBuilder) commentDepth(marker, tagged string) int {
	switch {
	case markers.Index(markers.LevelRoman, marker) >= 0 && len(builder.stack) >= 1:
		return 1
	case markers.Index(markers.LevelUpper, marker) >= 0:
		return 2
	case len(builder.stack) >= 3 && strings.HasPrefix(strings.TrimSpace(tagged), "<E"):
		return 3
	}
	return 0
}

func (builder *interpBuilder) paragraph(text, tagged string) {
	if text == "" {
		return
	}
	marker := markers.FirstInterpMarker(tagged)
	if marker == "" {
		target := builder.scope
		if len(builder.stack) > 0 {
			target = builder.stack[len(builder.stack)-1]
		}
		if target.Text == "" {
			target.Text, target.TaggedText = text, tagged
		} else {
			target.Text += "\n" + text
			target.TaggedText += "\n" + tagged
		}
		return
	}

	depth := min(builder.commentDepth(marker, tagged), len(builder.stack))
	builder.stack = builder.stack[:depth]
	parent := builder.scope
	if depth > 0 {
		parent = builder.stack[depth-1]
	}
	label := append(append([]string(nil), parent.Label...), marker)
	node := tree.New(text, label, tree.TypeInterp)
	node.TaggedText = tagged
	parent.Children = append(parent.Children, node)
	builder.stack = append(builder.stack, node)
}
