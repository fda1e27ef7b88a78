package xmltree

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Preprocessor rewrites source XML before the tree is built. Preprocessors
// run in a fixed, configured order and only touch the document.
type Preprocessor interface {
	Name() string
	Transform(document *etree.Document)
}

// preprocessorRegistry lists the built-in preprocessors by configuration
// name.
var preprocessorRegistry = map[string]Preprocessor{
	"move-adjoining-chars": MoveAdjoiningChars{},
	"parentheses-cleanup":  ParenthesesCleanup{},
	"footnotes":            Footnotes{},
	"approvals-fp":         ApprovalsFP{},
}

// DefaultPreprocessorNames is the order used when configuration names none.
var DefaultPreprocessorNames = []string{"move-adjoining-chars", "parentheses-cleanup", "footnotes", "approvals-fp"}

// LookupPreprocessors resolves configuration names in order.
func LookupPreprocessors(names []string) ([]Preprocessor, error) {
	preprocessors := make([]Preprocessor, 0, len(names))
	for _, name := range names {
		preprocessor, ok := preprocessorRegistry[name]
		if !ok {
			return nil, fmt.Errorf("unknown preprocessor %q", name)
		}
		preprocessors = append(preprocessors, preprocessor)
	}
	return preprocessors, nil
}

// PreprocessorNames lists the registered names, for validation.
func PreprocessorNames() []string {
	names := make([]string, 0, len(preprocessorRegistry))
	for name := range preprocessorRegistry {
		names = append(names, name)
	}
	return names
}

// nextText returns the text token directly after element in its parent.
func nextText(element *etree.Element) *etree.CharData {
	parent := element.Parent()
	if parent == nil {
		return nil
	}
	index := element.Index() + 1
	if index >= len(parent.Child) {
		return nil
	}
	text, _ := parent.Child[index].(*etree.CharData)
	return text
}

// previousText returns the text token directly before element.
func previousText(element *etree.Element) *etree.CharData {
	parent := element.Parent()
	if parent == nil {
		return nil
	}
	index := element.Index() - 1
	if index < 0 {
		return nil
	}
	text, _ := parent.Child[index].(*etree.CharData)
	return text
}

func appendText(element *etree.Element, suffix string) {
	if count := len(element.Child); count > 0 {
		if last, ok := element.Child[count-1].(*etree.CharData); ok {
			last.Data += suffix
			return
		}
	}
	element.AddChild(etree.NewText(suffix))
}

func prependText(element *etree.Element, prefix string) {
	if len(element.Child) > 0 {
		if first, ok := element.Child[0].(*etree.CharData); ok {
			first.Data = prefix + first.Data
			return
		}
	}
	element.InsertChildAt(0, etree.NewText(prefix))
}

// MoveAdjoiningChars pulls punctuation that directly follows an emphasised
// keyterm into the emphasis: `<E T="03">Keyterm</E>.` becomes
// `<E T="03">Keyterm.</E>`.
type MoveAdjoiningChars struct{}

// Name implements Preprocessor.
func (MoveAdjoiningChars) Name() string { return "move-adjoining-chars" }

// Transform implements Preprocessor.
func (MoveAdjoiningChars) Transform(document *etree.Document) {
	for _, emphasis := range document.FindElements("//E") {
		following := nextText(emphasis)
		if following == nil || following.Data == "" {
			continue
		}
		for _, punctuation := range []string{".", ",", ";", ":", "—"} {
			if strings.HasPrefix(following.Data, punctuation) {
				appendText(emphasis, punctuation)
				following.Data = following.Data[len(punctuation):]
				break
			}
		}
	}
}

// ParenthesesCleanup balances parentheses around emphasised markers so that
// "(<E T="03">a</E>)" and "<E T="03">(a</E>)" both become
// `<E T="03">(a)</E>`.
type ParenthesesCleanup struct{}

// Name implements Preprocessor.
func (ParenthesesCleanup) Name() string { return "parentheses-cleanup" }

// Transform implements Preprocessor.
func (ParenthesesCleanup) Transform(document *etree.Document) {
	for _, emphasis := range document.FindElements("//E") {
		text := emphasis.Text()
		before := previousText(emphasis)
		after := nextText(emphasis)

		if !strings.HasPrefix(text, "(") && before != nil && strings.HasSuffix(before.Data, "(") &&
			after != nil && strings.HasPrefix(after.Data, ")") {
			before.Data = strings.TrimSuffix(before.Data, "(")
			prependText(emphasis, "(")
			text = "(" + text
		}
		if strings.HasPrefix(text, "(") && !strings.Contains(text, ")") && after != nil && strings.HasPrefix(after.Data, ")") {
			after.Data = strings.TrimPrefix(after.Data, ")")
			appendText(emphasis, ")")
		}
	}
}

// Footnotes replaces superscript footnote references with note emphasis
// carrying the footnote text, and drops the FTNT blocks:
// `<SU>1</SU>` becomes `<E T="note" NOTE="text">1</E>`.
type Footnotes struct{}

// Name implements Preprocessor.
func (Footnotes) Name() string { return "footnotes" }

// Transform implements Preprocessor.
func (Footnotes) Transform(document *etree.Document) {
	notes := map[string]string{}
	footnoteBlocks := document.FindElements("//FTNT")
	for _, block := range footnoteBlocks {
		for _, superscript := range block.FindElements(".//SU") {
			number := strings.TrimSpace(superscript.Text())
			parent := superscript.Parent()
			body := strings.TrimSpace(strings.TrimPrefix(cleanXMLText(innerText(parent)), number))
			notes[number] = body
		}
	}

	for _, superscript := range document.FindElements("//SU") {
		if insideFootnote(superscript) {
			continue
		}
		number := strings.TrimSpace(superscript.Text())
		body, ok := notes[number]
		if !ok {
			continue
		}
		superscript.Tag = "E"
		superscript.CreateAttr("T", "note")
		superscript.CreateAttr("NOTE", body)
	}

	for _, block := range footnoteBlocks {
		if parent := block.Parent(); parent != nil {
			parent.RemoveChild(block)
		}
	}
}

func insideFootnote(element *etree.Element) bool {
	for parent := element.Parent(); parent != nil; parent = parent.Parent() {
		if parent.Tag == "FTNT" {
			return true
		}
	}
	return false
}

// ApprovalsFP retags OMB approval notes that were published as flush
// paragraphs so that they are treated as notes rather than regulation
// text.
type ApprovalsFP struct{}

// Name implements Preprocessor.
func (ApprovalsFP) Name() string { return "approvals-fp" }

// Transform implements Preprocessor.
func (ApprovalsFP) Transform(document *etree.Document) {
	for _, paragraph := range document.FindElements("//FP") {
		text := strings.TrimSpace(innerText(paragraph))
		if strings.HasPrefix(text, "(Approved by the Office of Management and Budget") {
			paragraph.Tag = "APPRO"
		}
	}
}
