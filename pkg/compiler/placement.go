package compiler

import (
	"slices"
	"strings"

	"github.com/coolbeans/regparser/pkg/notice"
	"github.com/coolbeans/regparser/pkg/tree"
)

// parentLabel is the label a node with label hangs from. Sections are
// placed by sectionParent instead, since their subpart is not part of
// their label.
func parentLabel(label []string) []string {
	if len(label) <= 1 {
		return nil
	}
	interp := slices.Index(label, tree.InterpMark)
	switch {
	case len(label) == 2 || tree.IsSubpartLabel(label) && len(label) == 3:
		return label[:1]
	case interp == len(label)-1:
		// [part, 2, a, Interp] hangs from [part, 2, Interp]; [part, 2,
		// Interp] from [part, Interp].
		base := label[:interp-1]
		return append(slices.Clone(base), tree.InterpMark)
	}
	return slices.Clone(label[:len(label)-1])
}

func isSectionLabel(label []string) bool {
	return len(label) == 2 && label[1] != "" && label[1][0] >= '0' && label[1][0] <= '9'
}

// parentFor finds the node a new node with label belongs under. Without
// force a missing parent yields nil; with force the parent is synthesised
// as an empty placeholder.
func (regulation *RegulationTree) parentFor(label []string, force bool) *tree.Node {
	if isSectionLabel(label) {
		return regulation.sectionParent(label)
	}
	wanted := parentLabel(label)
	if wanted == nil {
		return nil
	}
	if len(wanted) == 1 {
		return regulation.root
	}
	if parent := regulation.find(tree.LabelID(wanted)); parent != nil {
		return parent
	}
	if !force {
		return nil
	}

	grandparent := regulation.parentFor(wanted, true)
	if grandparent == nil {
		grandparent = regulation.root
	}
	placeholder := tree.New("", wanted, notice.NodeTypeFor(wanted))
	regulation.logger.Error("synthesised placeholder for missing parent",
		"label", tree.LabelID(wanted),
		"child", tree.LabelID(label))
	regulation.addChild(grandparent, placeholder)
	return placeholder
}

// sectionParent picks the subpart for a section: the last subpart holding
// a section that sorts before it, else the first subpart. A part with no
// subparts gets an empty part.
func (regulation *RegulationTree) sectionParent(label []string) *tree.Node {
	if existing := regulation.root.FindParent(tree.LabelID(label)); existing != nil {
		return existing
	}
	key := regulation.depths.LabelKey(label)
	var candidate *tree.Node
	for _, child := range regulation.root.Children {
		if child.NodeType != tree.TypeSubpart && child.NodeType != tree.TypeEmptyPart {
			continue
		}
		if candidate == nil {
			candidate = child
		}
		for _, section := range child.Children {
			if regulation.depths.LabelKey(section.Label).Compare(key) < 0 {
				candidate = child
				break
			}
		}
	}
	if candidate == nil {
		candidate = tree.New("", []string{regulation.part, tree.SubpartMark}, tree.TypeEmptyPart)
		regulation.addChild(regulation.root, candidate)
	}
	return candidate
}

// addChild inserts child among parent's children. Root children are
// ordered by kind; elsewhere a known intended order wins, then the label
// sort key, found by binary search over the already sorted siblings.
func (regulation *RegulationTree) addChild(parent, child *tree.Node) {
	if parent == regulation.root {
		parent.Children = append(parent.Children, child)
		slices.SortStableFunc(parent.Children, func(left, right *tree.Node) int {
			return MakeRootSortable(left, regulation.depths).Compare(MakeRootSortable(right, regulation.depths))
		})
		return
	}

	childID := child.LabelID()
	if ordering := regulation.order[parent.LabelID()]; slices.Contains(ordering, childID) {
		position := slices.Index(ordering, childID)
		index := len(parent.Children)
		for siblingIndex, sibling := range parent.Children {
			if slices.Index(ordering, sibling.LabelID()) > position {
				index = siblingIndex
				break
			}
		}
		parent.Children = slices.Insert(parent.Children, index, child)
		return
	}

	key := regulation.depths.LabelKey(child.Label)
	index, _ := slices.BinarySearchFunc(parent.Children, key, func(sibling *tree.Node, target SortKey) int {
		return regulation.depths.LabelKey(sibling.Label).Compare(target)
	})
	parent.Children = slices.Insert(parent.Children, index, child)
}

// orderChildren permutes node's children to its intended order, when one
// is known. Children missing from the order keep their relative position
// after the ordered ones.
func (regulation *RegulationTree) orderChildren(node *tree.Node) {
	ordering, ok := regulation.order[node.LabelID()]
	if !ok {
		return
	}
	rank := func(child *tree.Node) int {
		if index := slices.Index(ordering, child.LabelID()); index >= 0 {
			return index
		}
		return len(ordering)
	}
	slices.SortStableFunc(node.Children, func(left, right *tree.Node) int {
		return rank(left) - rank(right)
	})
}

// insertByText places child before the first sibling whose text sorts
// after it. Used when a notice gives no ordering information.
func insertByText(parent, child *tree.Node) {
	index, _ := slices.BinarySearchFunc(parent.Children, child.Text, func(sibling *tree.Node, text string) int {
		return strings.Compare(sibling.Text, text)
	})
	parent.Children = slices.Insert(parent.Children, index, child)
}
