package xmltree

import (
	"strconv"

	"github.com/beevik/etree"

	"github.com/coolbeans/regparser/pkg/markers"
	"github.com/coolbeans/regparser/pkg/tree"
)

// paragraphEntry is one marker-introduced paragraph, after P elements
// carrying several leading markers have been split.
type paragraphEntry struct {
	marker string
	text   string
	tagged string
}

// paragraphBuilder nests a section body into paragraph nodes.
type paragraphBuilder struct {
	parent   *tree.Node
	nodeType tree.NodeType
	stack    []*tree.Node
	unmarked map[*tree.Node]int
}

func newParagraphBuilder(parent *tree.Node, nodeType tree.NodeType) *paragraphBuilder {
	return &paragraphBuilder{parent: parent, nodeType: nodeType, unmarked: map[*tree.Node]int{}}
}

// splitMarkers turns "(a)(1) Text" into entries a → "(a)" and
// 1 → "(1) Text".
func splitMarkers(text, tagged string) []paragraphEntry {
	found := markers.ParagraphMarkers(tagged)
	if len(found) == 0 {
		return nil
	}
	rest := markers.StripParagraphMarkers(text)
	taggedRest := markers.StripParagraphMarkers(tagged)

	entries := make([]paragraphEntry, len(found))
	for index, marker := range found {
		label := "(" + marker + ")"
		entries[index] = paragraphEntry{marker: marker, text: label, tagged: label}
	}
	last := &entries[len(entries)-1]
	if rest != "" {
		last.text += " " + rest
		last.tagged += " " + taggedRest
	}
	return entries
}

// nextUnmarkedLabel allocates "p1", "p2", ... beneath parent.
func (builder *paragraphBuilder) nextUnmarkedLabel(parent *tree.Node) []string {
	builder.unmarked[parent]++
	return append(append([]string(nil), parent.Label...), "p"+strconv.Itoa(builder.unmarked[parent]))
}

func (builder *paragraphBuilder) current() *tree.Node {
	if len(builder.stack) == 0 {
		return builder.parent
	}
	return builder.stack[len(builder.stack)-1]
}

// build consumes body elements in document order. Markers across the whole
// body feed a single depth derivation so that an "(i)" following "(h)"
// continues the letters while one following "(1)" opens a roman level.
func (builder *paragraphBuilder) build(elements []*etree.Element) {
	type pending struct {
		element *etree.Element
		entries []paragraphEntry
	}

	var items []pending
	var sequence []string
	for _, element := range elements {
		item := pending{element: element}
		if element.Tag == "P" || element.Tag == "FP" {
			item.entries = splitMarkers(cleanXMLText(innerText(element)), taggedText(element))
			for _, entry := range item.entries {
				sequence = append(sequence, entry.marker)
			}
		}
		items = append(items, item)
	}
	depths := markers.DeriveDepths(sequence)

	position := 0
	for _, item := range items {
		if len(item.entries) > 0 {
			for _, entry := range item.entries {
				builder.push(entry, depths[position])
				position++
			}
			continue
		}
		builder.addUnmarked(item.element)
	}
}

func (builder *paragraphBuilder) push(entry paragraphEntry, depth int) {
	if depth > len(builder.stack) {
		depth = len(builder.stack)
	}
	builder.stack = builder.stack[:depth]
	parent := builder.current()

	label := append(append([]string(nil), parent.Label...), entry.marker)
	node := tree.New(entry.text, label, builder.nodeType)
	node.TaggedText = entry.tagged
	parent.Children = append(parent.Children, node)
	builder.stack = append(builder.stack, node)
}

func (builder *paragraphBuilder) addUnmarked(element *etree.Element) {
	text := cleanXMLText(innerText(element))
	switch element.Tag {
	case "P", "FP":
		if text == "" {
			return
		}
		if len(builder.stack) > 0 {
			last := builder.current()
			last.Text += "\n" + text
			last.TaggedText += "\n" + taggedText(element)
			return
		}
		node := tree.New(text, builder.nextUnmarkedLabel(builder.parent), builder.nodeType)
		node.TaggedText = taggedText(element)
		builder.parent.Children = append(builder.parent.Children, node)
	case "HD":
		builder.stack = nil
		node := tree.New("", builder.nextUnmarkedLabel(builder.parent), builder.nodeType)
		node.Title = text
		builder.parent.Children = append(builder.parent.Children, node)
	case "EXTRACT", "GPOTABLE", "MATH":
		builder.attach(element, tree.TypeExtract)
	case "NOTE", "NOTES", "APPRO", "EDNOTE", "AUTH", "SOURCE":
		builder.attach(element, tree.TypeNote)
	}
}

func (builder *paragraphBuilder) attach(element *etree.Element, nodeType tree.NodeType) {
	parent := builder.current()
	node := tree.New(cleanXMLText(innerText(element)), builder.nextUnmarkedLabel(parent), nodeType)
	node.TaggedText = taggedText(element)
	node.Title = headerText(element, "")
	parent.Children = append(parent.Children, node)
}
