// Package diff computes change records between two versions of a frozen
// regulation tree.
//
// Nodes are paired by label id. A pair with equal hashes is skipped whole,
// so unchanged subtrees cost nothing. Children present on only one side are
// set aside; before they are reported as added or deleted, every label in an
// added subtree is looked up among the removed subtrees so that reparented
// nodes (a section designated into a new subpart) are diffed against their
// old position instead of being reported twice.
package diff

import (
	"slices"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/coolbeans/regparser/pkg/tree"
)

// Op classifies a change record.
type Op string

const (
	OpAdded    Op = "added"
	OpModified Op = "modified"
	OpDeleted  Op = "deleted"
)

// NodeSummary is a node without its children, carried by added records.
type NodeSummary struct {
	Text        string        `json:"text"`
	TaggedText  string        `json:"tagged_text,omitempty"`
	Title       string        `json:"title,omitempty"`
	Label       []string      `json:"label"`
	NodeType    tree.NodeType `json:"node_type"`
	ChildLabels []string      `json:"child_labels"`
}

// Record describes what happened to one label between two versions.
type Record struct {
	Op       Op           `json:"op"`
	Node     *NodeSummary `json:"node,omitempty"`
	Text     []Opcode     `json:"text,omitempty"`
	Title    []Opcode     `json:"title,omitempty"`
	ChildOps []Opcode     `json:"child_ops,omitempty"`
}

// Changes maps label ids to their change record.
type Changes map[string]Record

// Labels returns the changed label ids in sorted order.
func (changes Changes) Labels() []string {
	labels := make([]string, 0, len(changes))
	for label := range changes {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

var spaceNormalizer = runes.If(runes.In(unicode.Zs), runes.Map(func(rune) rune { return ' ' }), nil)

// NormalizeWhitespace maps every Unicode space separator (no-break, thin,
// hair and the like) to an ASCII space.
func NormalizeWhitespace(text string) string {
	normalized, _, err := transform.String(spaceNormalizer, text)
	if err != nil {
		return text
	}
	return normalized
}

type differ struct {
	changes Changes
	removed map[string]*tree.FrozenNode
	matched map[string]bool
	added   []*tree.FrozenNode
}

// ChangesBetween returns the records turning lhs into rhs. Identical trees
// yield no records. It never fails: a label missing on one side is a
// valid outcome.
func ChangesBetween(lhs, rhs *tree.FrozenNode) Changes {
	d := &differ{
		changes: Changes{},
		removed: map[string]*tree.FrozenNode{},
		matched: map[string]bool{},
	}
	switch {
	case lhs == nil && rhs == nil:
		return d.changes
	case lhs == nil:
		d.markAdded(rhs)
		return d.changes
	case rhs == nil:
		d.markDeleted(lhs)
		return d.changes
	}

	d.compare(lhs, rhs)
	// Diffing a moved node may queue more added children.
	for index := 0; index < len(d.added); index++ {
		d.resolveAdded(d.added[index])
	}
	for _, label := range sortedKeys(d.removed) {
		if !d.matched[label] {
			d.changes[label] = Record{Op: OpDeleted}
		}
	}
	return d.changes
}

// compare diffs a pair of nodes sharing a label and recurses into the
// children both sides hold.
func (d *differ) compare(lhs, rhs *tree.FrozenNode) {
	if lhs.Equal(rhs) {
		d.claim(lhs)
		return
	}
	d.matched[lhs.LabelID()] = true

	record := Record{Op: OpModified}
	changed := false
	if NormalizeWhitespace(lhs.Text()) != NormalizeWhitespace(rhs.Text()) {
		record.Text = TextOpcodes(lhs.Text(), rhs.Text())
		changed = true
	}
	if NormalizeWhitespace(lhs.Title()) != NormalizeWhitespace(rhs.Title()) {
		record.Title = TextOpcodes(lhs.Title(), rhs.Title())
		changed = true
	}
	lhsLabels, rhsLabels := lhs.ChildLabels(), rhs.ChildLabels()
	if !slices.Equal(lhsLabels, rhsLabels) {
		record.ChildOps = ChildOpcodes(lhsLabels, rhsLabels)
		changed = true
	}
	if changed {
		d.changes[lhs.LabelID()] = record
	}

	rhsChildren := map[string]*tree.FrozenNode{}
	for _, child := range rhs.Children() {
		rhsChildren[child.LabelID()] = child
	}
	lhsChildren := map[string]bool{}
	for _, child := range lhs.Children() {
		lhsChildren[child.LabelID()] = true
		if counterpart, ok := rhsChildren[child.LabelID()]; ok {
			d.compare(child, counterpart)
			continue
		}
		d.collectRemoved(child)
	}
	for _, child := range rhs.Children() {
		if !lhsChildren[child.LabelID()] {
			d.added = append(d.added, child)
		}
	}
}

func (d *differ) collectRemoved(node *tree.FrozenNode) {
	d.removed[node.LabelID()] = node
	for _, child := range node.Children() {
		d.collectRemoved(child)
	}
}

// resolveAdded reports node as added unless a removed node carries its
// label, in which case the two are diffed as a move.
func (d *differ) resolveAdded(node *tree.FrozenNode) {
	label := node.LabelID()
	if previous, ok := d.removed[label]; ok && !d.matched[label] {
		d.compare(previous, node)
		return
	}
	d.changes[label] = Record{Op: OpAdded, Node: summarize(node)}
	for _, child := range node.Children() {
		d.resolveAdded(child)
	}
}

// claim marks an unchanged subtree as accounted for.
func (d *differ) claim(node *tree.FrozenNode) {
	d.matched[node.LabelID()] = true
	for _, child := range node.Children() {
		d.claim(child)
	}
}

func (d *differ) markAdded(node *tree.FrozenNode) {
	d.changes[node.LabelID()] = Record{Op: OpAdded, Node: summarize(node)}
	for _, child := range node.Children() {
		d.markAdded(child)
	}
}

func (d *differ) markDeleted(node *tree.FrozenNode) {
	d.changes[node.LabelID()] = Record{Op: OpDeleted}
	for _, child := range node.Children() {
		d.markDeleted(child)
	}
}

func summarize(node *tree.FrozenNode) *NodeSummary {
	return &NodeSummary{
		Text:        node.Text(),
		TaggedText:  node.TaggedText(),
		Title:       node.Title(),
		Label:       node.Label(),
		NodeType:    node.NodeType(),
		ChildLabels: node.ChildLabels(),
	}
}

func sortedKeys(nodes map[string]*tree.FrozenNode) []string {
	keys := make([]string, 0, len(nodes))
	for key := range nodes {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Opcode kinds.
const (
	KindEqual  = "equal"
	KindDelete = "delete"
	KindInsert = "insert"
)

// TextOpcodes describes how to turn lhs into rhs, with rune offsets into
// the whitespace-normalised lhs. Replacements appear as a delete followed
// by an insert at the same offset.
func TextOpcodes(lhs, rhs string) []Opcode {
	left := runeStrings(NormalizeWhitespace(lhs))
	right := runeStrings(NormalizeWhitespace(rhs))
	return opcodes(left, right, func(inserted []string) Opcode {
		return Opcode{Kind: KindInsert, Text: strings.Join(inserted, "")}
	})
}

// ChildOpcodes describes how to turn one child label sequence into another.
// Offsets index lhs; inserts carry the inserted labels.
func ChildOpcodes(lhs, rhs []string) []Opcode {
	return opcodes(lhs, rhs, func(inserted []string) Opcode {
		return Opcode{Kind: KindInsert, Labels: slices.Clone(inserted)}
	})
}

func opcodes(left, right []string, insert func([]string) Opcode) []Opcode {
	matcher := difflib.NewMatcherWithJunk(left, right, false, nil)
	var ops []Opcode
	for _, code := range matcher.GetOpCodes() {
		switch code.Tag {
		case 'e':
			ops = append(ops, Opcode{Kind: KindEqual, Start: code.I1, End: code.I2})
		case 'd':
			ops = append(ops, Opcode{Kind: KindDelete, Start: code.I1, End: code.I2})
		case 'i':
			op := insert(right[code.J1:code.J2])
			op.Start = code.I1
			ops = append(ops, op)
		case 'r':
			ops = append(ops, Opcode{Kind: KindDelete, Start: code.I1, End: code.I2})
			op := insert(right[code.J1:code.J2])
			op.Start = code.I1
			ops = append(ops, op)
		}
	}
	return ops
}

func runeStrings(text string) []string {
	split := make([]string, 0, len(text))
	for _, r := range text {
		split = append(split, string(r))
	}
	return split
}
