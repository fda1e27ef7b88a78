package tree

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
)

// FrozenNode is an immutable tree node identified by a SHA-256 hash over
// its content and, recursively, its children's hashes. FrozenNodes are only
// created through an Interner, so two structurally identical trees share
// the same *FrozenNode values.
type FrozenNode struct {
	text       string
	taggedText string
	title      string
	label      []string
	labelID    string
	nodeType   NodeType
	children   []*FrozenNode
	hash       string
}

// Text returns the node body.
func (node *FrozenNode) Text() string { return node.text }

// TaggedText returns the body with inline markup.
func (node *FrozenNode) TaggedText() string { return node.taggedText }

// Title returns the node title.
func (node *FrozenNode) Title() string { return node.title }

// NodeType returns the node type.
func (node *FrozenNode) NodeType() NodeType { return node.nodeType }

// LabelID returns the label segments joined with "-".
func (node *FrozenNode) LabelID() string { return node.labelID }

// Hash returns the hex content hash.
func (node *FrozenNode) Hash() string { return node.hash }

// Label returns a copy of the label segments.
func (node *FrozenNode) Label() []string {
	return append([]string(nil), node.label...)
}

// Children returns a copy of the child slice. The children themselves are
// shared.
func (node *FrozenNode) Children() []*FrozenNode {
	return append([]*FrozenNode(nil), node.children...)
}

// ChildLabels returns the label ids of the children in order.
func (node *FrozenNode) ChildLabels() []string {
	ids := make([]string, len(node.children))
	for index, child := range node.children {
		ids[index] = child.labelID
	}
	return ids
}

// Equal compares by content hash.
func (node *FrozenNode) Equal(other *FrozenNode) bool {
	if node == nil || other == nil {
		return node == other
	}
	return node.hash == other.hash
}

// Thaw converts the frozen subtree back into a mutable Node.
func (node *FrozenNode) Thaw() *Node {
	thawed := &Node{
		Text:       node.text,
		TaggedText: node.taggedText,
		Title:      node.title,
		Label:      node.Label(),
		NodeType:   node.nodeType,
		Children:   make([]*Node, len(node.children)),
	}
	for index, child := range node.children {
		thawed.Children[index] = child.Thaw()
	}
	return thawed
}

// Prototype describes the content of a FrozenNode to be interned.
type Prototype struct {
	Text       string
	TaggedText string
	Title      string
	Label      []string
	NodeType   NodeType
	Children   []*FrozenNode
}

// Prototype returns the node's content, ready to be modified and passed to
// Interner.Intern.
func (node *FrozenNode) Prototype() Prototype {
	return Prototype{
		Text:       node.text,
		TaggedText: node.taggedText,
		Title:      node.title,
		Label:      node.Label(),
		NodeType:   node.nodeType,
		Children:   node.Children(),
	}
}

func computeHash(prototype Prototype) string {
	hasher := sha256.New()
	writeField := func(value string) {
		hasher.Write([]byte(strconv.Itoa(len(value))))
		hasher.Write([]byte{':'})
		hasher.Write([]byte(value))
	}
	writeField(prototype.Text)
	writeField(prototype.TaggedText)
	writeField(prototype.Title)
	writeField(LabelID(prototype.Label))
	writeField(string(prototype.NodeType))
	for _, child := range prototype.Children {
		writeField(child.hash)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Interner deduplicates FrozenNodes by content hash. It is safe for
// concurrent use.
//
// The pool grows without eviction for the Interner's lifetime: every
// distinct node content ever frozen stays reachable. Long-running processes
// should scope an Interner per batch rather than keep one forever.
type Interner struct {
	mu   sync.Mutex
	pool map[string]*FrozenNode
}

// NewInterner creates an empty pool.
func NewInterner() *Interner {
	return &Interner{pool: make(map[string]*FrozenNode)}
}

// Intern returns the pooled node for the prototype's content, creating it
// on first use.
func (interner *Interner) Intern(prototype Prototype) *FrozenNode {
	hash := computeHash(prototype)

	interner.mu.Lock()
	defer interner.mu.Unlock()

	if existing, ok := interner.pool[hash]; ok {
		return existing
	}
	created := &FrozenNode{
		text:       prototype.Text,
		taggedText: prototype.TaggedText,
		title:      prototype.Title,
		label:      append([]string(nil), prototype.Label...),
		labelID:    LabelID(prototype.Label),
		nodeType:   prototype.NodeType,
		children:   append([]*FrozenNode(nil), prototype.Children...),
		hash:       hash,
	}
	interner.pool[hash] = created
	return created
}

// Freeze interns a mutable subtree bottom-up.
func (interner *Interner) Freeze(node *Node) *FrozenNode {
	children := make([]*FrozenNode, len(node.Children))
	for index, child := range node.Children {
		children[index] = interner.Freeze(child)
	}
	return interner.Intern(Prototype{
		Text:       node.Text,
		TaggedText: node.TaggedText,
		Title:      node.Title,
		Label:      node.Label,
		NodeType:   node.NodeType,
		Children:   children,
	})
}

// Clone interns a copy of node with modify applied to its content.
func (interner *Interner) Clone(node *FrozenNode, modify func(*Prototype)) *FrozenNode {
	prototype := node.Prototype()
	if modify != nil {
		modify(&prototype)
	}
	return interner.Intern(prototype)
}

// Size returns the number of pooled nodes.
func (interner *Interner) Size() int {
	interner.mu.Lock()
	defer interner.mu.Unlock()
	return len(interner.pool)
}
