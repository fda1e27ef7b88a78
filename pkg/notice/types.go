// Package notice reads the amendment instructions of a Federal Register
// notice and derives the per-label change records the compiler applies to
// the previous version of a regulation.
package notice

import (
	"fmt"
	"slices"
	"strings"

	"github.com/coolbeans/regparser/pkg/tree"
)

// Action is an amendment verb.
type Action string

const (
	// ActionPut replaces a node and its subtree, or one field of a node.
	ActionPut Action = "PUT"
	// ActionPost adds a new node.
	ActionPost Action = "POST"
	// ActionDelete removes a node.
	ActionDelete Action = "DELETE"
	// ActionMove relabels a node.
	ActionMove Action = "MOVE"
	// ActionReserve marks a node reserved.
	ActionReserve Action = "RESERVE"
	// ActionDesignate moves a section into a subpart.
	ActionDesignate Action = "DESIGNATE"
	// ActionInsert adds a node positioned by its text among its siblings.
	ActionInsert Action = "INSERT"
	// ActionKeep protects a node from its parent's replacement.
	ActionKeep Action = "KEEP"
)

// Actions lists every known verb.
var Actions = []Action{
	ActionPut, ActionPost, ActionDelete, ActionMove, ActionReserve,
	ActionDesignate, ActionInsert, ActionKeep,
}

// ParseAction recognises an instruction tag or change action, ignoring
// case.
func ParseAction(name string) (Action, error) {
	action := Action(strings.ToUpper(strings.TrimSpace(name)))
	if !slices.Contains(Actions, action) {
		return "", fmt.Errorf("unknown amendment action %q", name)
	}
	return action, nil
}

// Field names for partial PUT changes.
const (
	FieldText    = "text"
	FieldTitle   = "title"
	FieldHeading = "heading"
)

// Amendment is one instruction from an EREGS_INSTRUCTIONS block.
type Amendment struct {
	Action      Action   `json:"action"`
	Label       []string `json:"label"`
	Destination []string `json:"destination,omitempty"`
	Field       string   `json:"field,omitempty"`
}

// LabelID is the amended label joined with "-".
func (amendment Amendment) LabelID() string {
	return tree.LabelID(amendment.Label)
}

// Change is one operation to apply at a label. Node carries the new
// content, flattened so that its children are named in ChildLabels rather
// than nested.
type Change struct {
	Action      Action     `json:"action"`
	Node        *tree.Node `json:"node,omitempty"`
	Destination []string   `json:"destination,omitempty"`
	Field       string     `json:"field,omitempty"`
}

// Changes maps a label id to its changes in notice order.
type Changes map[string][]Change

// Add appends change under labelID.
func (changes Changes) Add(labelID string, change Change) {
	changes[labelID] = append(changes[labelID], change)
}

// Labels returns the changed label ids in sorted order.
func (changes Changes) Labels() []string {
	labels := make([]string, 0, len(changes))
	for label := range changes {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// ForPart keeps only the changes addressed to part.
func (changes Changes) ForPart(part string) Changes {
	filtered := Changes{}
	for label, list := range changes {
		if segments := tree.SplitLabelID(label); len(segments) > 0 && segments[0] == part {
			filtered[label] = list
		}
	}
	return filtered
}

// Count is the total number of changes.
func (changes Changes) Count() int {
	total := 0
	for _, list := range changes {
		total += len(list)
	}
	return total
}

// Notice is the parsed amendment content of one Federal Register document.
type Notice struct {
	DocumentNumber string      `json:"document_number,omitempty"`
	Parts          []string    `json:"cfr_parts"`
	Amendments     []Amendment `json:"amendments"`
	Changes        Changes     `json:"changes"`
}
