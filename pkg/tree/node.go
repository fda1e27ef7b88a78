// Package tree provides the regulation document tree: a mutable Node used
// while building and compiling, and an immutable, content-addressed
// FrozenNode used for versioning and diffing.
package tree

import (
	"encoding/json"
	"strings"
	"unicode"
)

// NodeType classifies a node's role in the regulation hierarchy.
type NodeType string

const (
	// TypeRegtext is substantive regulation text: sections and paragraphs.
	TypeRegtext NodeType = "regtext"
	// TypeAppendix is an appendix or one of its paragraphs.
	TypeAppendix NodeType = "appendix"
	// TypeInterp is official interpretation (supplement I) content.
	TypeInterp NodeType = "interp"
	// TypeSubpart is a lettered subpart grouping sections.
	TypeSubpart NodeType = "subpart"
	// TypeEmptyPart groups sections of a part that has no subparts.
	TypeEmptyPart NodeType = "emptypart"
	// TypeExtract is quoted or extracted material.
	TypeExtract NodeType = "extract"
	// TypeNote is an editorial note.
	TypeNote NodeType = "note"
)

// InterpMark is the label segment separating a regulation address from the
// interpretation scope attached to it.
const InterpMark = "Interp"

// SubpartMark is the second label segment of subparts and empty parts.
const SubpartMark = "Subpart"

// ReservedText is the conventional body of a reserved node.
const ReservedText = "[Reserved]"

// Node is a mutable regulation tree node. Children are owned exclusively by
// their parent.
type Node struct {
	Text     string
	Children []*Node
	Label    []string
	Title    string
	NodeType NodeType
	// TaggedText keeps inline emphasis markup (keyterms, defined terms).
	TaggedText string
	// SourceXML is the original XML fragment, when retained.
	SourceXML string
	// ChildLabels is the intended order of children by label id. It is only
	// populated on flattened notice nodes whose children were removed.
	ChildLabels []string
}

// New creates a node with the given label and type.
func New(text string, label []string, nodeType NodeType, children ...*Node) *Node {
	return &Node{
		Text:     text,
		Label:    append([]string(nil), label...),
		NodeType: nodeType,
		Children: children,
	}
}

// LabelID joins the label segments with "-".
func (node *Node) LabelID() string {
	return LabelID(node.Label)
}

// LabelID joins label segments with "-".
func LabelID(label []string) string {
	return strings.Join(label, "-")
}

// SplitLabelID is the inverse of LabelID.
func SplitLabelID(labelID string) []string {
	if labelID == "" {
		return nil
	}
	return strings.Split(labelID, "-")
}

// Depth is the node's nominal depth in the hierarchy. Subparts sit at depth
// 2 beneath the part; regtext paragraphs count an implicit subpart level.
func (node *Node) Depth() int {
	return Depth(node.Label, node.NodeType)
}

// Depth computes the nominal depth for a label of the given type.
func Depth(label []string, nodeType NodeType) int {
	if nodeType == TypeSubpart || nodeType == TypeEmptyPart {
		return 2
	}
	if len(label) < 2 || !isDigits(label[1]) || nodeType == TypeInterp || IsInterpLabel(label) {
		return len(label)
	}
	return len(label) + 1
}

// IsInterpLabel reports whether the label sits in interpretation scope.
func IsInterpLabel(label []string) bool {
	for _, segment := range label {
		if segment == InterpMark {
			return true
		}
	}
	return false
}

// IsSubpartLabel reports whether the label addresses a subpart or empty
// part ("1005-Subpart-A", "1005-Subpart").
func IsSubpartLabel(label []string) bool {
	return len(label) >= 2 && label[1] == SubpartMark
}

// IsReserved reports whether the node is a reserved placeholder.
func (node *Node) IsReserved() bool {
	return strings.Contains(node.Text, ReservedText) || strings.Contains(node.Title, ReservedText)
}

// IsInterpPlaceholder reports whether the node is an interpretation node
// with no content of its own, created only to hold children.
func (node *Node) IsInterpPlaceholder() bool {
	return node.NodeType == TypeInterp && strings.TrimSpace(node.Text) == "" && len(node.Label) > 0 &&
		node.Label[len(node.Label)-1] == InterpMark
}

// Walk visits the node and its descendants depth first. Returning false
// from fn skips the node's children.
func (node *Node) Walk(fn func(*Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	for _, child := range node.Children {
		child.Walk(fn)
	}
}

// Find returns the first node in the subtree with the given label id.
func (node *Node) Find(labelID string) *Node {
	if node == nil {
		return nil
	}
	if node.LabelID() == labelID {
		return node
	}
	for _, child := range node.Children {
		if found := child.Find(labelID); found != nil {
			return found
		}
	}
	return nil
}

// FindParent returns the node whose children include the node with the
// given label id.
func (node *Node) FindParent(labelID string) *Node {
	if node == nil {
		return nil
	}
	for _, child := range node.Children {
		if child.LabelID() == labelID {
			return node
		}
		if found := child.FindParent(labelID); found != nil {
			return found
		}
	}
	return nil
}

// ChildIndex returns the position of the child with the given label id, or
// -1.
func (node *Node) ChildIndex(labelID string) int {
	for index, child := range node.Children {
		if child.LabelID() == labelID {
			return index
		}
	}
	return -1
}

// DeepCopy returns an independent copy of the subtree.
func (node *Node) DeepCopy() *Node {
	if node == nil {
		return nil
	}
	copied := *node
	copied.Label = append([]string(nil), node.Label...)
	copied.ChildLabels = append([]string(nil), node.ChildLabels...)
	copied.Children = make([]*Node, len(node.Children))
	for index, child := range node.Children {
		copied.Children[index] = child.DeepCopy()
	}
	return &copied
}

// Flatten returns every node in the subtree in pre-order.
func (node *Node) Flatten() []*Node {
	var flattened []*Node
	node.Walk(func(visited *Node) bool {
		flattened = append(flattened, visited)
		return true
	})
	return flattened
}

// LabelIDs returns the label ids of the node's children.
func (node *Node) LabelIDs() []string {
	ids := make([]string, len(node.Children))
	for index, child := range node.Children {
		ids[index] = child.LabelID()
	}
	return ids
}

func isDigits(text string) bool {
	if text == "" {
		return false
	}
	for _, char := range text {
		if !unicode.IsDigit(char) {
			return false
		}
	}
	return true
}

type nodeJSON struct {
	Text        string      `json:"text"`
	Children    []*nodeJSON `json:"children"`
	Label       []string    `json:"label"`
	Title       string      `json:"title,omitempty"`
	NodeType    NodeType    `json:"node_type"`
	TaggedText  string      `json:"tagged_text,omitempty"`
	ChildLabels []string    `json:"child_labels,omitempty"`
}

func toJSON(node *Node, compact bool) *nodeJSON {
	encoded := &nodeJSON{
		Text:        node.Text,
		Children:    make([]*nodeJSON, len(node.Children)),
		Label:       node.Label,
		Title:       node.Title,
		NodeType:    node.NodeType,
		ChildLabels: node.ChildLabels,
	}
	if encoded.Label == nil {
		encoded.Label = []string{}
	}
	if !compact {
		encoded.TaggedText = node.TaggedText
	}
	for index, child := range node.Children {
		encoded.Children[index] = toJSON(child, compact)
	}
	return encoded
}

func fromJSON(encoded *nodeJSON) *Node {
	node := &Node{
		Text:        encoded.Text,
		Label:       encoded.Label,
		Title:       encoded.Title,
		NodeType:    encoded.NodeType,
		TaggedText:  encoded.TaggedText,
		ChildLabels: encoded.ChildLabels,
		Children:    make([]*Node, 0, len(encoded.Children)),
	}
	for _, child := range encoded.Children {
		node.Children = append(node.Children, fromJSON(child))
	}
	return node
}

// MarshalJSON encodes the node as {text, children, label, title,
// node_type, tagged_text}. title and tagged_text are omitted when empty;
// SourceXML is never encoded.
func (node *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSON(node, false))
}

// UnmarshalJSON decodes the encoding produced by MarshalJSON.
func (node *Node) UnmarshalJSON(data []byte) error {
	var encoded nodeJSON
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	*node = *fromJSON(&encoded)
	return nil
}

// CompactJSON encodes the node without tagged text.
func CompactJSON(node *Node) ([]byte, error) {
	return json.Marshal(toJSON(node, true))
}
