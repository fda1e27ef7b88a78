package xmltree

import (
	"fmt"
	"log/slog"

	"github.com/beevik/etree"

	"github.com/coolbeans/regparser/pkg/logging"
	"github.com/coolbeans/regparser/pkg/tree"
)

// Builder turns a regulation XML document into the initial tree. Its
// strategies are fixed when the builder is composed; nothing is looked up
// at build time.
type Builder struct {
	PartFinders   []PartFinder
	TitleFinder   TitleFinder
	Preprocessors []Preprocessor
	Matchers      []Matcher
	Logger        *slog.Logger
}

// NewBuilder returns a Builder using the default finders and matchers and
// the given preprocessors, in order.
func NewBuilder(logger *slog.Logger, preprocessors ...Preprocessor) *Builder {
	return &Builder{
		PartFinders:   DefaultPartFinders(),
		TitleFinder:   PartHeadingTitleFinder,
		Preprocessors: preprocessors,
		Matchers:      DefaultMatchers(),
		Logger:        logging.OrDiscard(logger),
	}
}

// Preprocess applies the configured preprocessors to document in place.
func (builder *Builder) Preprocess(document *etree.Document) {
	for _, preprocessor := range builder.Preprocessors {
		builder.logger().Debug("preprocessing", "preprocessor", preprocessor.Name())
		preprocessor.Transform(document)
	}
}

func (builder *Builder) logger() *slog.Logger {
	return logging.OrDiscard(builder.Logger)
}

// Build finds the part, preprocesses the document (mutating it) and builds
// the part's tree. Sections outside any subpart are wrapped in an empty
// part; root children are ordered subparts, appendices, interpretations.
func (builder *Builder) Build(document *etree.Document) (*tree.Node, error) {
	part, err := FindPart(document, builder.PartFinders)
	if err != nil {
		return nil, err
	}
	builder.Preprocess(document)

	container := document.FindElement("//PART")
	if container == nil {
		container = document.Root()
	}
	if container == nil {
		return nil, fmt.Errorf("document for part %s has no root element", part)
	}

	root := tree.New("", []string{part}, tree.TypeRegtext)
	if builder.TitleFinder != nil {
		root.Title = builder.TitleFinder.FindTitle(document)
	}
	root.Children = arrangeRoot(part, builder.BuildElements(part, container.ChildElements()))

	builder.logger().Info("built regulation tree",
		"part", part,
		"children", len(root.Children),
		"nodes", len(root.Flatten()))
	return root, nil
}

// BuildElements dispatches each element to the matchers and returns the
// built nodes unarranged. Notices use it for REGTEXT content.
func (builder *Builder) BuildElements(part string, elements []*etree.Element) []*tree.Node {
	context := &BuildContext{Part: part, Matchers: builder.Matchers, Logger: builder.logger()}
	var nodes []*tree.Node
	for _, element := range elements {
		nodes = append(nodes, context.Dispatch(element)...)
	}
	return nodes
}

// arrangeRoot groups loose sections into an empty part and orders the
// root's children by kind.
func arrangeRoot(part string, nodes []*tree.Node) []*tree.Node {
	var subparts, appendices, interps, loose []*tree.Node
	for _, node := range nodes {
		switch node.NodeType {
		case tree.TypeSubpart, tree.TypeEmptyPart:
			subparts = append(subparts, node)
		case tree.TypeAppendix:
			appendices = append(appendices, node)
		case tree.TypeInterp:
			interps = append(interps, node)
		default:
			loose = append(loose, node)
		}
	}
	if len(loose) > 0 {
		emptyPart := tree.New("", []string{part, tree.SubpartMark}, tree.TypeEmptyPart, loose...)
		subparts = append(subparts, emptyPart)
	}

	arranged := make([]*tree.Node, 0, len(nodes)+1)
	arranged = append(arranged, subparts...)
	arranged = append(arranged, appendices...)
	return append(arranged, interps...)
}
