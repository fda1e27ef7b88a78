// Package xmltree builds the initial regulation tree from CFR XML, either
// the annual edition (FDSYS granules) or the REGTEXT blocks of a Federal
// Register notice.
package xmltree

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

// ReadDocument parses XML leniently: source files from GPO frequently carry
// undeclared entities and stray markup.
func ReadDocument(reader io.Reader) (*etree.Document, error) {
	document := etree.NewDocument()
	document.ReadSettings.Permissive = true
	if _, err := document.ReadFrom(reader); err != nil {
		return nil, fmt.Errorf("failed to parse regulation XML: %w", err)
	}
	return document, nil
}

// ReadDocumentString is ReadDocument for in-memory XML.
func ReadDocumentString(source string) (*etree.Document, error) {
	return ReadDocument(strings.NewReader(source))
}

var emphasisTagPattern = regexp.MustCompile(`</?E(?:\s[^>]*)?>`)

// innerText concatenates every text token beneath element.
func innerText(element *etree.Element) string {
	var builder strings.Builder
	for _, token := range element.Child {
		switch typed := token.(type) {
		case *etree.CharData:
			builder.WriteString(typed.Data)
		case *etree.Element:
			if typed.Tag == "FTREF" {
				continue
			}
			builder.WriteString(innerText(typed))
		}
	}
	return builder.String()
}

// taggedText renders element's content as XML, keeping inline markup such
// as <E T="03"> keyterms.
func taggedText(element *etree.Element) string {
	document := etree.NewDocument()
	document.SetRoot(element.Copy())
	rendered, err := document.WriteToString()
	if err != nil {
		return ""
	}
	open := strings.Index(rendered, ">")
	closing := strings.LastIndex(rendered, "</")
	if open < 0 || closing < open {
		return ""
	}
	return cleanXMLText(rendered[open+1 : closing])
}

// stripEmphasis removes <E> tags from tagged text.
func stripEmphasis(text string) string {
	return emphasisTagPattern.ReplaceAllString(text, "")
}

// cleanXMLText trims and collapses internal whitespace.
func cleanXMLText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// elementText is the cleaned text of the first child with the given tag.
func elementText(element *etree.Element, tag string) string {
	child := element.SelectElement(tag)
	if child == nil {
		return ""
	}
	return cleanXMLText(innerText(child))
}

// headerText is the cleaned text of the first HD child, optionally
// restricted to a SOURCE level.
func headerText(element *etree.Element, source string) string {
	for _, header := range element.SelectElements("HD") {
		if source == "" || header.SelectAttrValue("SOURCE", "") == source {
			return cleanXMLText(innerText(header))
		}
	}
	return ""
}
