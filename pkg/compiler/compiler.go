// Package compiler applies a notice's change records to the previous
// version of a regulation tree to produce the next version.
//
// Changes are applied in passes. A change whose preconditions do not hold
// yet (its parent is missing, its destination is occupied) is deferred to
// the next pass. Passes continue while the deferred set shrinks; whatever
// remains is forced through with a warning. Compilation never fails: bad
// references are logged and worked around so that a tree is always
// produced.
package compiler

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/coolbeans/regparser/pkg/logging"
	"github.com/coolbeans/regparser/pkg/metrics"
	"github.com/coolbeans/regparser/pkg/notice"
	"github.com/coolbeans/regparser/pkg/tree"
)

// Options configure one compilation.
type Options struct {
	Logger      *slog.Logger
	Metrics     *metrics.Collector
	LabelDepths LabelDepths
}

// Result is the compiled tree and a report of how it was reached.
type Result struct {
	Tree   *tree.Node
	RunID  string
	Passes int
	// Applied counts changes applied in regular passes; Forced counts
	// those pushed through after passes stopped making progress.
	Applied int
	Forced  int
}

type pendingChange struct {
	label  string
	change notice.Change
}

// Compile applies changes to a private copy of previous. Only changes
// addressed to previous's part are considered; previous is never
// modified.
func Compile(previous *tree.Node, changes notice.Changes, options Options) Result {
	runID := uuid.NewString()
	logger := logging.OrDiscard(options.Logger).With("run_id", runID)
	regulation := NewRegulationTree(previous, options.LabelDepths, logger)

	part := ""
	if len(previous.Label) > 0 {
		part = previous.Label[0]
	}
	scoped := changes.ForPart(part)
	if ignored := len(changes) - len(scoped); ignored > 0 {
		logger.Debug("ignoring changes for other parts", "part", part, "labels", ignored)
	}

	var pending []pendingChange
	for _, label := range SortLabels(scoped.Labels(), options.LabelDepths) {
		for _, change := range scoped[label] {
			pending = append(pending, pendingChange{label: label, change: change})
		}
	}
	regulation.keep(pending)

	result := Result{RunID: runID}
	for len(pending) > 0 {
		result.Passes++
		options.Metrics.RecordPass()

		var deferred []pendingChange
		blocked := map[string]bool{}
		for _, item := range pending {
			// Later changes to a label wait for its earlier deferred ones.
			if blocked[item.label] || !regulation.apply(item.label, item.change, false) {
				blocked[item.label] = true
				deferred = append(deferred, item)
				continue
			}
			result.Applied++
			options.Metrics.RecordChange(string(item.change.Action), false)
		}
		logger.Debug("compile pass finished", "pass", result.Passes, "deferred", len(deferred))

		if len(deferred) == len(pending) {
			break
		}
		pending = deferred
	}

	if len(pending) > 0 {
		// Forced changes apply in sorted label order.
		for _, item := range pending {
			logger.Warn("Conflicting Change",
				"label", item.label,
				"action", string(item.change.Action),
				"destination", tree.LabelID(item.change.Destination))
			regulation.apply(item.label, item.change, true)
			result.Forced++
			options.Metrics.RecordChange(string(item.change.Action), true)
		}
	}

	for _, labelID := range slices.Sorted(maps.Keys(regulation.displaced)) {
		logger.Warn("displaced node dropped", "label", labelID)
	}

	result.Tree = regulation.Tree()
	logger.Info("compiled regulation",
		"part", part,
		"passes", result.Passes,
		"applied", result.Applied,
		"forced", result.Forced)
	return result
}

// RegulationTree is the compiler's private, mutable copy of a regulation.
type RegulationTree struct {
	root   *tree.Node
	part   string
	depths LabelDepths
	logger *slog.Logger

	// order is the intended child order per parent, learnt from the
	// ChildLabels of changed nodes.
	order map[string][]string
	// kept marks labels protected by KEEP; stash holds kept nodes detached
	// by their parent's removal, keyed by parent label id.
	kept  map[string]bool
	stash map[string][]*tree.Node

	// displaced holds nodes pushed out of their label by a forced move,
	// keyed by that label, until a later move places them again.
	displaced map[string]*tree.Node
}

// NewRegulationTree deep-copies previous.
func NewRegulationTree(previous *tree.Node, depths LabelDepths, logger *slog.Logger) *RegulationTree {
	root := previous.DeepCopy()
	part := ""
	if len(root.Label) > 0 {
		part = root.Label[0]
	}
	return &RegulationTree{
		root:   root,
		part:   part,
		depths: depths.orDefault(),
		logger: logging.OrDiscard(logger),
		order:  map[string][]string{},
		kept:   map[string]bool{},
		stash:  map[string][]*tree.Node{},

		displaced: map[string]*tree.Node{},
	}
}

// Tree returns the current tree.
func (regulation *RegulationTree) Tree() *tree.Node {
	return regulation.root
}

func (regulation *RegulationTree) keep(pending []pendingChange) {
	for _, item := range pending {
		if item.change.Action == notice.ActionKeep {
			regulation.kept[item.label] = true
		}
	}
}

func (regulation *RegulationTree) find(labelID string) *tree.Node {
	return regulation.root.Find(labelID)
}

// apply runs one change. It returns false when the change must wait for a
// later pass; with force set it always applies something and returns true.
func (regulation *RegulationTree) apply(labelID string, change notice.Change, force bool) bool {
	switch change.Action {
	case notice.ActionKeep:
		return true
	case notice.ActionDelete:
		return regulation.delete(labelID, force)
	case notice.ActionPut:
		if change.Field != "" {
			return regulation.editField(labelID, change, force)
		}
		return regulation.put(labelID, change.Node, force)
	case notice.ActionPost:
		return regulation.post(labelID, change.Node, force)
	case notice.ActionInsert:
		return regulation.insert(labelID, change.Node, force)
	case notice.ActionReserve:
		return regulation.reserve(labelID, change.Node, force)
	case notice.ActionMove:
		return regulation.move(labelID, change.Destination, force)
	case notice.ActionDesignate:
		return regulation.designate(labelID, change, force)
	}
	regulation.logger.Warn("skipping change with unknown action", "label", labelID, "action", string(change.Action))
	return true
}

func (regulation *RegulationTree) delete(labelID string, force bool) bool {
	parent := regulation.root.FindParent(labelID)
	if parent == nil {
		if force {
			regulation.logger.Warn("nothing to delete", "label", labelID)
		}
		return force
	}
	index := parent.ChildIndex(labelID)
	regulation.detach(parent, index)
	return true
}

// detach removes the child at index, stashing kept descendants.
func (regulation *RegulationTree) detach(parent *tree.Node, index int) *tree.Node {
	child := parent.Children[index]
	parent.Children = slices.Delete(parent.Children, index, index+1)
	regulation.stashKept(child)
	return child
}

func (regulation *RegulationTree) stashKept(node *tree.Node) {
	remaining := node.Children[:0]
	for _, child := range node.Children {
		if regulation.kept[child.LabelID()] {
			regulation.stash[node.LabelID()] = append(regulation.stash[node.LabelID()], child)
			continue
		}
		remaining = append(remaining, child)
		regulation.stashKept(child)
	}
	node.Children = remaining
}

// restoreKept reattaches stashed kept children of node.
func (regulation *RegulationTree) restoreKept(node *tree.Node) {
	labelID := node.LabelID()
	for _, child := range regulation.stash[labelID] {
		if node.ChildIndex(child.LabelID()) < 0 {
			regulation.addChild(node, child)
		}
	}
	delete(regulation.stash, labelID)
}

// replaceContent overwrites node's content with replacement. Children not
// named by replacement's ChildLabels are dropped unless kept.
func (regulation *RegulationTree) replaceContent(node, replacement *tree.Node) {
	node.Text = replacement.Text
	node.TaggedText = replacement.TaggedText
	node.Title = replacement.Title
	if replacement.NodeType != "" {
		node.NodeType = replacement.NodeType
	}

	labelID := node.LabelID()
	wanted := replacement.ChildLabels
	if len(wanted) > 0 {
		regulation.order[labelID] = slices.Clone(wanted)
	}
	var children []*tree.Node
	for _, child := range node.Children {
		childID := child.LabelID()
		if slices.Contains(wanted, childID) || regulation.kept[childID] {
			children = append(children, child)
			continue
		}
		regulation.stashKept(child)
	}
	node.Children = children
	regulation.restoreKept(node)
	regulation.orderChildren(node)
}

// fresh builds a tree node for a change payload.
func fresh(labelID string, content *tree.Node) *tree.Node {
	label := tree.SplitLabelID(labelID)
	node := tree.New("", label, notice.NodeTypeFor(label))
	if content != nil {
		node.Text = content.Text
		node.TaggedText = content.TaggedText
		node.Title = content.Title
		if content.NodeType != "" {
			node.NodeType = content.NodeType
		}
	}
	return node
}

// add inserts a new node at labelID. Without force a missing parent defers
// the change; with force the parent is synthesised.
func (regulation *RegulationTree) add(labelID string, content *tree.Node, force bool, position func(parent, child *tree.Node)) bool {
	node := fresh(labelID, content)
	parent := regulation.parentFor(node.Label, force)
	if parent == nil {
		return false
	}
	if content != nil && len(content.ChildLabels) > 0 {
		regulation.order[labelID] = slices.Clone(content.ChildLabels)
	}
	position(parent, node)
	regulation.restoreKept(node)
	return true
}

func (regulation *RegulationTree) put(labelID string, content *tree.Node, force bool) bool {
	if existing := regulation.find(labelID); existing != nil {
		regulation.replaceContent(existing, content)
		return true
	}
	return regulation.add(labelID, content, force, regulation.addChild)
}

func (regulation *RegulationTree) post(labelID string, content *tree.Node, force bool) bool {
	if existing := regulation.find(labelID); existing != nil {
		if !force && !isPlaceholder(existing) {
			return false
		}
		regulation.replaceContent(existing, content)
		return true
	}
	return regulation.add(labelID, content, force, regulation.addChild)
}

func (regulation *RegulationTree) insert(labelID string, content *tree.Node, force bool) bool {
	if existing := regulation.find(labelID); existing != nil {
		if !force {
			return false
		}
		regulation.replaceContent(existing, content)
		return true
	}
	return regulation.add(labelID, content, force, insertByText)
}

func (regulation *RegulationTree) reserve(labelID string, content *tree.Node, force bool) bool {
	reserved := fresh(labelID, content)
	reserved.Text = tree.ReservedText
	reserved.TaggedText = ""
	if existing := regulation.find(labelID); existing != nil {
		regulation.replaceContent(existing, reserved)
		return true
	}
	return regulation.add(labelID, reserved, force, regulation.addChild)
}

func (regulation *RegulationTree) editField(labelID string, change notice.Change, force bool) bool {
	existing := regulation.find(labelID)
	if existing == nil || change.Node == nil {
		if force {
			regulation.logger.Warn("cannot edit field of missing node", "label", labelID, "field", change.Field)
		}
		return force
	}
	switch change.Field {
	case notice.FieldTitle:
		existing.Title = change.Node.Title
	case notice.FieldText:
		existing.Text = change.Node.Text
		existing.TaggedText = change.Node.TaggedText
	case notice.FieldHeading:
		existing.Text = replaceHeading(existing.Text, change.Node.Text)
		if existing.TaggedText != "" && change.Node.TaggedText != "" {
			existing.TaggedText = replaceHeading(existing.TaggedText, change.Node.TaggedText)
		}
	default:
		regulation.logger.Warn("skipping unknown field", "label", labelID, "field", change.Field)
	}
	return true
}

func (regulation *RegulationTree) move(labelID string, destination []string, force bool) bool {
	destinationID := tree.LabelID(destination)
	var parent *tree.Node
	node := regulation.displaced[labelID]
	if node == nil {
		parent = regulation.root.FindParent(labelID)
		if parent == nil {
			if force {
				regulation.logger.Warn("nothing to move", "label", labelID, "destination", destinationID)
			}
			return force
		}
		node = parent.Children[parent.ChildIndex(labelID)]
	}
	if destinationID == labelID {
		return true
	}
	if hasPrefix(destination, node.Label) {
		regulation.logger.Warn("cannot move node beneath itself", "label", labelID, "destination", destinationID)
		return true
	}

	holder := regulation.root.FindParent(destinationID)
	if holder != nil && !force {
		return false
	}
	newParent := regulation.parentFor(destination, force)
	if newParent == nil {
		return false
	}

	// The node leaves first: the node it displaces may be its ancestor.
	if parent != nil {
		index := parent.ChildIndex(labelID)
		parent.Children = slices.Delete(parent.Children, index, index+1)
	} else {
		delete(regulation.displaced, labelID)
	}
	if holder != nil {
		regulation.logger.Warn("move displaces existing node", "label", labelID, "destination", destinationID)
		regulation.displaced[destinationID] = regulation.detach(holder, holder.ChildIndex(destinationID))
	}

	oldMarker := node.Label[len(node.Label)-1]
	newMarker := destination[len(destination)-1]
	if oldMarker != newMarker {
		node.Text = OverwriteMarker(node.Text, oldMarker, newMarker)
		node.TaggedText = OverwriteMarker(node.TaggedText, oldMarker, newMarker)
	}
	relabel(node, node.Label, destination)
	regulation.addChild(newParent, node)
	return true
}

func hasPrefix(label, prefix []string) bool {
	return len(label) >= len(prefix) && slices.Equal(label[:len(prefix)], prefix)
}

// relabel rewrites the prefix from of every label in the subtree to to.
func relabel(node *tree.Node, from, to []string) {
	node.Walk(func(current *tree.Node) bool {
		if len(current.Label) >= len(from) && slices.Equal(current.Label[:len(from)], from) {
			current.Label = append(slices.Clone(to), current.Label[len(from):]...)
		}
		return true
	})
}

// designate moves a section into a subpart, creating the subpart when
// needed. Empty parts left without sections are removed.
func (regulation *RegulationTree) designate(labelID string, change notice.Change, force bool) bool {
	parent := regulation.root.FindParent(labelID)
	if parent == nil {
		if force {
			regulation.logger.Warn("nothing to designate", "label", labelID)
		}
		return force
	}
	destinationID := tree.LabelID(change.Destination)
	if parent.LabelID() == destinationID {
		return true
	}

	subpart := regulation.find(destinationID)
	if subpart == nil {
		subpart = fresh(destinationID, change.Node)
		subpart.NodeType = tree.TypeSubpart
		regulation.addChild(regulation.root, subpart)
	} else if change.Node != nil && subpart.Title == "" {
		subpart.Title = change.Node.Title
	}

	index := parent.ChildIndex(labelID)
	section := parent.Children[index]
	parent.Children = slices.Delete(parent.Children, index, index+1)
	regulation.addChild(subpart, section)

	if parent.NodeType == tree.TypeEmptyPart && len(parent.Children) == 0 {
		if index := regulation.root.ChildIndex(parent.LabelID()); index >= 0 {
			regulation.root.Children = slices.Delete(regulation.root.Children, index, index+1)
		}
	}
	return true
}

func isPlaceholder(node *tree.Node) bool {
	if node.IsReserved() || node.IsInterpPlaceholder() {
		return true
	}
	return node.Text == "" && node.Title == "" && len(node.Children) == 0
}
