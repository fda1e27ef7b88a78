package notice

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/beevik/etree"

	"github.com/coolbeans/regparser/pkg/logging"
	"github.com/coolbeans/regparser/pkg/tree"
	"github.com/coolbeans/regparser/pkg/xmltree"
)

// ErrNoInstructions is returned for notices without EREGS_INSTRUCTIONS.
var ErrNoInstructions = errors.New("notice has no amendment instructions")

var documentNumberPattern = regexp.MustCompile(`\d{2,4}-\d+`)

// Parser derives change records from notice XML. The amended content is
// built with the same xmltree.Builder used for full regulations so that
// labels agree.
type Parser struct {
	builder *xmltree.Builder
	logger  *slog.Logger
}

// NewParser creates a Parser. A nil builder uses xmltree defaults without
// preprocessing.
func NewParser(builder *xmltree.Builder, logger *slog.Logger) *Parser {
	logger = logging.OrDiscard(logger)
	if builder == nil {
		builder = xmltree.NewBuilder(logger)
	}
	return &Parser{builder: builder, logger: logger}
}

// ParseReader reads notice XML and parses it.
func (parser *Parser) ParseReader(reader io.Reader) (*Notice, error) {
	document, err := xmltree.ReadDocument(reader)
	if err != nil {
		return nil, err
	}
	return parser.Parse(document)
}

// Parse preprocesses document (mutating it), reads every instruction and
// emits the changes for each. Instructions that cannot be understood are
// logged and skipped.
func (parser *Parser) Parse(document *etree.Document) (*Notice, error) {
	instructionBlocks := document.FindElements("//EREGS_INSTRUCTIONS")
	if len(instructionBlocks) == 0 {
		return nil, ErrNoInstructions
	}
	parser.builder.Preprocess(document)

	notice := &Notice{
		DocumentNumber: documentNumber(document),
		Parts:          []string{},
		Amendments:     []Amendment{},
		Changes:        Changes{},
	}
	contents := map[*etree.Element]map[string]*tree.Node{}

	for _, block := range instructionBlocks {
		regtext := enclosingRegtext(block)
		part := ""
		if regtext != nil {
			part = regtext.SelectAttrValue("PART", "")
			if _, ok := contents[regtext]; !ok {
				contents[regtext] = indexContent(parser.builder.BuildElements(part, regtext.ChildElements()))
			}
		}

		for _, instruction := range block.ChildElements() {
			amendment, err := parseAmendment(instruction)
			if err != nil {
				parser.logger.Warn("skipping amendment instruction", "error", err, "part", part)
				continue
			}
			if part == "" {
				part = amendment.Label[0]
			}
			if !slices.Contains(notice.Parts, part) {
				notice.Parts = append(notice.Parts, part)
			}
			notice.Amendments = append(notice.Amendments, amendment)
			parser.derive(notice.Changes, amendment, contents[regtext])
		}
	}

	parser.logger.Info("parsed notice",
		"document_number", notice.DocumentNumber,
		"amendments", len(notice.Amendments),
		"changes", notice.Changes.Count())
	return notice, nil
}

// derive emits the changes for one amendment. Added or replaced content is
// emitted node by node, parents first.
func (parser *Parser) derive(changes Changes, amendment Amendment, content map[string]*tree.Node) {
	labelID := amendment.LabelID()
	node := content[labelID]

	switch amendment.Action {
	case ActionPut, ActionPost, ActionInsert:
		if node == nil {
			parser.logger.Warn("amended content not found in notice",
				"label", labelID, "action", string(amendment.Action))
			return
		}
		flat := flattenSubtree(node)
		if amendment.Field != "" {
			changes.Add(labelID, Change{Action: amendment.Action, Node: flat[0], Field: amendment.Field})
			return
		}
		changes.Add(labelID, Change{Action: amendment.Action, Node: flat[0]})
		descendantAction := amendment.Action
		if descendantAction == ActionInsert {
			descendantAction = ActionPost
		}
		for _, descendant := range flat[1:] {
			changes.Add(descendant.LabelID(), Change{Action: descendantAction, Node: descendant})
		}

	case ActionReserve:
		var reserved *tree.Node
		if node != nil {
			reserved = flattenSubtree(node)[0]
		} else {
			reserved = tree.New(tree.ReservedText, amendment.Label, NodeTypeFor(amendment.Label))
		}
		changes.Add(labelID, Change{Action: ActionReserve, Node: reserved})

	case ActionDesignate:
		change := Change{Action: ActionDesignate, Destination: amendment.Destination}
		if subpart, ok := content[tree.LabelID(amendment.Destination)]; ok {
			change.Node = flattenSubtree(subpart)[0]
		}
		changes.Add(labelID, change)

	case ActionMove:
		changes.Add(labelID, Change{Action: ActionMove, Destination: amendment.Destination})

	default:
		changes.Add(labelID, Change{Action: amendment.Action})
	}
}

// parseAmendment reads an instruction element such as
// <PUT label="1005-2-b" field="[title]"/>.
func parseAmendment(element *etree.Element) (Amendment, error) {
	action, err := ParseAction(element.Tag)
	if err != nil {
		return Amendment{}, err
	}
	label := splitInstructionLabel(element.SelectAttrValue("label", ""))
	if len(label) == 0 {
		return Amendment{}, fmt.Errorf("%s instruction without a label", action)
	}
	amendment := Amendment{
		Action:      action,
		Label:       label,
		Destination: splitInstructionLabel(element.SelectAttrValue("destination", "")),
		Field:       strings.Trim(element.SelectAttrValue("field", ""), "[] "),
	}
	switch {
	case (action == ActionMove || action == ActionDesignate) && len(amendment.Destination) == 0:
		return Amendment{}, fmt.Errorf("%s instruction for %s without a destination", action, amendment.LabelID())
	case action == ActionDesignate && !tree.IsSubpartLabel(amendment.Destination):
		return Amendment{}, fmt.Errorf("designate destination %s is not a subpart", tree.LabelID(amendment.Destination))
	case amendment.Field != "" && !slices.Contains([]string{FieldText, FieldTitle, FieldHeading}, amendment.Field):
		return Amendment{}, fmt.Errorf("unknown field %q for %s", amendment.Field, amendment.LabelID())
	}
	return amendment, nil
}

// splitInstructionLabel splits a label id, dropping the "?" segments
// instructions use for a subpart they do not know.
func splitInstructionLabel(labelID string) []string {
	var label []string
	for _, segment := range tree.SplitLabelID(strings.TrimSpace(labelID)) {
		if segment != "?" && segment != "" {
			label = append(label, segment)
		}
	}
	return label
}

// NodeTypeFor guesses the node type of an address that has no content.
func NodeTypeFor(label []string) tree.NodeType {
	switch {
	case tree.IsInterpLabel(label):
		return tree.TypeInterp
	case len(label) == 3 && tree.IsSubpartLabel(label):
		return tree.TypeSubpart
	case len(label) == 2 && tree.IsSubpartLabel(label):
		return tree.TypeEmptyPart
	case len(label) >= 2 && !isDigits(label[1]):
		return tree.TypeAppendix
	}
	return tree.TypeRegtext
}

func isDigits(text string) bool {
	return text != "" && strings.Trim(text, "0123456789") == ""
}

func enclosingRegtext(element *etree.Element) *etree.Element {
	for parent := element.Parent(); parent != nil; parent = parent.Parent() {
		if parent.Tag == "REGTEXT" {
			return parent
		}
	}
	return nil
}

func indexContent(nodes []*tree.Node) map[string]*tree.Node {
	index := map[string]*tree.Node{}
	for _, node := range nodes {
		node.Walk(func(current *tree.Node) bool {
			index[current.LabelID()] = current
			return true
		})
	}
	return index
}

// flattenSubtree copies node and its descendants, parents first, replacing
// each node's children with their label ids.
func flattenSubtree(node *tree.Node) []*tree.Node {
	flat := &tree.Node{
		Text:       node.Text,
		Label:      append([]string(nil), node.Label...),
		Title:      node.Title,
		NodeType:   node.NodeType,
		TaggedText: node.TaggedText,
	}
	flattened := []*tree.Node{flat}
	for _, child := range node.Children {
		flat.ChildLabels = append(flat.ChildLabels, child.LabelID())
		flattened = append(flattened, flattenSubtree(child)...)
	}
	return flattened
}

func documentNumber(document *etree.Document) string {
	element := document.FindElement("//FRDOC")
	if element == nil {
		return ""
	}
	return documentNumberPattern.FindString(element.Text())
}
