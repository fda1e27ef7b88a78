package xmltree

import (
	"errors"
	"regexp"

	"github.com/beevik/etree"
)

// ErrNoPart is returned when no PartFinder recognises the document.
var ErrNoPart = errors.New("no CFR part found in document")

// PartFinder extracts the CFR part number from one XML shape.
type PartFinder interface {
	FindPart(document *etree.Document) (string, bool)
}

// PartFinderFunc adapts a function to PartFinder.
type PartFinderFunc func(document *etree.Document) (string, bool)

// FindPart implements PartFinder.
func (finder PartFinderFunc) FindPart(document *etree.Document) (string, bool) {
	return finder(document)
}

var (
	earPartPattern     = regexp.MustCompile(`Pt\.\s*(\d+)`)
	headingPartPattern = regexp.MustCompile(`(?i)PART\s+(\d+)`)
	digitsPattern      = regexp.MustCompile(`(\d+)`)
)

func patternFinder(path string, pattern *regexp.Regexp) PartFinder {
	return PartFinderFunc(func(document *etree.Document) (string, bool) {
		element := document.FindElement(path)
		if element == nil {
			return "", false
		}
		match := pattern.FindStringSubmatch(innerText(element))
		if match == nil {
			return "", false
		}
		return match[1], true
	})
}

// RegtextPartFinder reads the PART attribute of a notice's REGTEXT.
var RegtextPartFinder PartFinder = PartFinderFunc(func(document *etree.Document) (string, bool) {
	element := document.FindElement("//REGTEXT[@PART]")
	if element == nil {
		return "", false
	}
	part := element.SelectAttrValue("PART", "")
	return part, part != ""
})

// EARPartFinder reads the "Pt. 1005" running head of an annual edition.
var EARPartFinder = patternFinder("//PART/EAR", earPartPattern)

// FDSYSHeadingPartFinder reads "PART 1005—..." from the FDSYS metadata.
var FDSYSHeadingPartFinder = patternFinder("//FDSYS/HEADING", headingPartPattern)

// GranulePartFinder reads the FDSYS granule number.
var GranulePartFinder = patternFinder("//FDSYS/GRANULENUM", digitsPattern)

// DefaultPartFinders are tried in order; the first match wins.
func DefaultPartFinders() []PartFinder {
	return []PartFinder{RegtextPartFinder, EARPartFinder, FDSYSHeadingPartFinder, GranulePartFinder}
}

// FindPart runs finders in order.
func FindPart(document *etree.Document, finders []PartFinder) (string, error) {
	for _, finder := range finders {
		if part, ok := finder.FindPart(document); ok {
			return part, nil
		}
	}
	return "", ErrNoPart
}

// TitleFinder extracts the part's heading.
type TitleFinder interface {
	FindTitle(document *etree.Document) string
}

// TitleFinderFunc adapts a function to TitleFinder.
type TitleFinderFunc func(document *etree.Document) string

// FindTitle implements TitleFinder.
func (finder TitleFinderFunc) FindTitle(document *etree.Document) string {
	return finder(document)
}

// PartHeadingTitleFinder reads the PART's HD element.
var PartHeadingTitleFinder TitleFinder = TitleFinderFunc(func(document *etree.Document) string {
	for _, path := range []string{"//PART/HD", "//FDSYS/HEADING"} {
		if element := document.FindElement(path); element != nil {
			return cleanXMLText(innerText(element))
		}
	}
	return ""
})
