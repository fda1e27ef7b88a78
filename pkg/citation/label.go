package citation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/coolbeans/regparser/pkg/markers"
	"github.com/coolbeans/regparser/pkg/tree"
)

// Schema is the ordered list of field names a Label is built from.
type Schema []string

var (
	// RegtextSchema addresses regulation text.
	RegtextSchema = Schema{"cfr_title", "part", "section", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}
	// AppendixSchema addresses appendix paragraphs.
	AppendixSchema = Schema{"part", "appendix", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}
	// AppendixSectionSchema addresses paragraphs of numbered appendix sections.
	AppendixSectionSchema = Schema{"part", "appendix", "appendix_section", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}
	// CommentSchema extends any schema with interpretation levels.
	CommentSchema = Schema{"comment", "c1", "c2", "c3", "c4"}
)

// Fields maps schema field names to values. The "comment" field holds any
// non-empty value to mark interpretation scope.
type Fields map[string]string

var (
	// ErrRangeMismatch is returned by LabelsUntil when the endpoints differ in
	// schema, depth or prefix.
	ErrRangeMismatch = errors.New("range endpoints do not share a prefix")
	// ErrRangeLevels is returned by LabelsUntil when the endpoints' final
	// markers are not from a common alphabet.
	ErrRangeLevels = errors.New("range endpoints use different marker levels")
)

// Label is a structured address in the regulation hierarchy. Labels are
// values: Copy returns a new Label and never modifies the receiver.
type Label struct {
	schema        Schema
	defaultSchema bool
	settings      Fields
}

// NewLabel builds a label, inferring the schema from the populated fields.
func NewLabel(fields Fields) Label {
	schema := determineSchema(fields)
	if schema == nil {
		return newLabel(RegtextSchema, true, fields)
	}
	return newLabel(schema, false, fields)
}

// NewLabelWithSchema builds a label with an explicit schema.
func NewLabelWithSchema(schema Schema, fields Fields) Label {
	return newLabel(schema, false, fields)
}

func newLabel(schema Schema, defaultSchema bool, fields Fields) Label {
	settings := make(Fields, len(fields))
	for name, value := range fields {
		if value != "" {
			settings[name] = value
		}
	}
	return Label{schema: schema, defaultSchema: defaultSchema, settings: settings}
}

func determineSchema(fields Fields) Schema {
	switch {
	case fields["appendix_section"] != "":
		return AppendixSectionSchema
	case fields["appendix"] != "":
		return AppendixSchema
	case fields["section"] != "":
		return RegtextSchema
	default:
		return nil
	}
}

// Get returns a field value, or "".
func (label Label) Get(field string) string {
	return label.settings[field]
}

// Schema returns the label's schema.
func (label Label) Schema() Schema {
	return label.schema
}

// IsComment reports whether the label is in interpretation scope.
func (label Label) IsComment() bool {
	return label.settings["comment"] != ""
}

// Copy returns a label that keeps the receiver's fields up to the first
// field named in fields, and takes every later field from fields. A schema
// implied by fields (an appendix, say) replaces the receiver's.
func (label Label) Copy(fields Fields) Label {
	return label.copyWith(nil, fields)
}

// CopyWithSchema is Copy with an explicit schema.
func (label Label) CopyWithSchema(schema Schema, fields Fields) Label {
	return label.copyWith(schema, fields)
}

func (label Label) copyWith(schema Schema, fields Fields) Label {
	impliedSchema := determineSchema(fields)
	keepSchema := schema != nil || impliedSchema != nil || !label.defaultSchema
	if schema == nil {
		schema = impliedSchema
	}
	if schema == nil {
		schema = label.schema
	}

	settings := Fields{}
	foundStart := false
	for _, field := range slices.Concat(schema, CommentSchema) {
		if _, ok := fields[field]; ok {
			foundStart = true
		}
		value := label.settings[field]
		if foundStart {
			value = fields[field]
		}
		if value != "" {
			settings[field] = value
		}
	}

	if keepSchema {
		return newLabel(schema, false, settings)
	}
	return NewLabel(settings)
}

// ToList flattens the label into tree label segments. Values are taken in
// schema order until the first missing one. Interpretation labels continue
// with "Interp" and their comment levels. forNode omits the CFR title, as
// tree labels never carry it.
func (label Label) ToList(forNode bool) []string {
	var segments []string
	for _, field := range label.schema {
		value := label.settings[field]
		if field == "cfr_title" && (forNode || value == "") {
			continue
		}
		if value == "" {
			break
		}
		segments = append(segments, value)
	}
	if label.IsComment() {
		segments = append(segments, tree.InterpMark)
		for _, field := range CommentSchema[1:] {
			value := label.settings[field]
			if value == "" {
				break
			}
			segments = append(segments, value)
		}
	}
	return segments
}

// String renders the label id.
func (label Label) String() string {
	return tree.LabelID(label.ToList(false))
}

// Equal compares the flattened forms.
func (label Label) Equal(other Label) bool {
	return slices.Equal(label.ToList(false), other.ToList(false))
}

// Less orders labels lexicographically over their flattened forms.
func (label Label) Less(other Label) bool {
	return slices.Compare(label.ToList(false), other.ToList(false)) < 0
}

// lastField returns the name of the deepest populated field.
func (label Label) lastField() string {
	last := ""
	if label.IsComment() {
		for _, field := range CommentSchema[1:] {
			if label.settings[field] == "" {
				break
			}
			last = field
		}
		if last != "" {
			return last
		}
	}
	for _, field := range label.schema {
		if label.settings[field] == "" {
			if field == "cfr_title" {
				continue
			}
			break
		}
		last = field
	}
	return last
}

var fieldLevels = map[string]markers.Level{
	"section": markers.LevelInts,
	"p1":      markers.LevelLower,
	"p2":      markers.LevelInts,
	"p3":      markers.LevelRoman,
	"p4":      markers.LevelUpper,
	"p5":      markers.LevelEmInts,
	"p6":      markers.LevelEmRoman,
	"c1":      markers.LevelInts,
	"c2":      markers.LevelRoman,
	"c3":      markers.LevelUpper,
	"c4":      markers.LevelEmInts,
}

// LabelsUntil enumerates the labels strictly between the receiver and
// other, as in "(a)(2) through (a)(6)". Both labels must share schema,
// depth and prefix, and their final markers must come from one alphabet.
func (label Label) LabelsUntil(other Label) ([]Label, error) {
	selfList := label.ToList(true)
	otherList := other.ToList(true)
	if len(selfList) == 0 || len(selfList) != len(otherList) ||
		!slices.Equal(selfList[:len(selfList)-1], otherList[:len(otherList)-1]) ||
		!slices.Equal(label.schema, other.schema) || label.IsComment() != other.IsComment() {
		return nil, fmt.Errorf("%w: %s through %s", ErrRangeMismatch, label, other)
	}

	field := label.lastField()
	start := selfList[len(selfList)-1]
	end := otherList[len(otherList)-1]

	level, ok := fieldLevels[field]
	if !ok || markers.Index(level, start) < 0 || markers.Index(level, end) < 0 {
		level, ok = markers.SharedLevel(start, end)
		if !ok {
			return nil, fmt.Errorf("%w: %s through %s", ErrRangeLevels, label, other)
		}
	}

	startIndex := markers.Index(level, start)
	endIndex := markers.Index(level, end)
	var between []Label
	for index := startIndex + 1; index < endIndex; index++ {
		between = append(between, label.Copy(Fields{field: markers.Levels[level][index]}))
	}
	return between, nil
}

// FromNode maps a tree label back to a structured Label. Tree labels do not
// record field names, so the schema is inferred: a non-numeric second
// segment indicates an appendix, and a numeric third segment beneath it an
// appendix section.
func FromNode(node *tree.Node) Label {
	return FromSegments(node.Label, node.NodeType)
}

// FromSegments is FromNode for a bare label.
func FromSegments(segments []string, nodeType tree.NodeType) Label {
	schema := RegtextSchema[1:]
	isAppendix := nodeType == tree.TypeAppendix ||
		(nodeType == tree.TypeInterp && len(segments) > 1 && segments[1] != tree.InterpMark && !isNumeric(segments[1]))
	if isAppendix {
		schema = AppendixSchema
		if len(segments) > 2 && isNumeric(segments[2]) {
			schema = AppendixSectionSchema
		}
	}

	fields := Fields{}
	for index, segment := range segments {
		if segment == tree.InterpMark {
			fields["comment"] = "true"
			for commentIndex, commentSegment := range segments[index+1:] {
				if commentIndex+1 < len(CommentSchema) {
					fields[CommentSchema[commentIndex+1]] = commentSegment
				}
			}
			break
		}
		if index < len(schema) {
			fields[schema[index]] = segment
		}
	}

	if isAppendix {
		return NewLabelWithSchema(schema, fields)
	}
	return NewLabelWithSchema(RegtextSchema, fields)
}

func isNumeric(segment string) bool {
	return segment != "" && strings.IndexFunc(segment, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
}
