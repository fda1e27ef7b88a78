package grammar

// Paragraph depth chains. Each level optionally continues to the next.
var (
	depth6P = Or(EmRomanP, PlaintextLevel6)
	depth5P = Seq(Or(EmDigitP, PlaintextLevel5), Optional(depth6P))
	depth4P = Seq(UpperP, Optional(depth5P))
	depth3P = Seq(RomanP, Optional(depth4P))
	depth2P = Seq(DigitP, Optional(depth3P))
	depth1P = Seq(LowerP, NotFollowedBy(UpperP), Optional(depth2P))

	// AnyDepthP matches a paragraph reference starting at any level.
	AnyDepthP = Or(depth1P, depth2P, depth3P, depth4P, depth5P, depth6P)
)

// Building blocks shared by the composed grammars.
var (
	periodSection        = Seq(Suppress(Literal(".")), Adjacent(Section))
	partSection          = Seq(Part, periodSection)
	markerPartSection    = Seq(Named("marker", SectionMarker), partSection)
	sectionComment       = Seq(Section, CommentLevel1)
	sectionParagraphBody = Seq(Section, Adjacent(depth1P))
	psParagraph          = Seq(partSection, Optional(Adjacent(depth1P)))
	mpsParagraphBody     = Seq(markerPartSection, Optional(Adjacent(depth1P)))
	appendixParagraphs   = Seq(
		Adjacent(parenthesised("a1", Word(lowerChars+upperChars+digitChars, 1, 0))),
		Optional(Adjacent(parenthesised("a2", Word(lowerChars+upperChars+digitChars, 1, 0)))),
		Optional(Adjacent(parenthesised("a3", Word(lowerChars+upperChars+digitChars, 1, 0)))),
	)
	appendixWithSectionBody = Seq(
		Appendix,
		Suppress(Literal("-")),
		Adjacent(AppendixSection),
		Optional(appendixParagraphs),
	)
	commentBody = Seq(
		Or(sectionComment, sectionParagraphBody, psParagraph, mpsParagraphBody),
		Optional(CommentLevel1),
	)
	innerNonComment = Or(
		psParagraph,
		sectionParagraphBody,
		appendixWithSectionBody,
		AnyDepthP,
	)
	cfrSingle = Seq(
		CFRTitle,
		CFRMark,
		Or(
			Seq(Or(PartsMarker, PartMarker), Part),
			Seq(Optional(SectionMarker), psParagraph),
			Part,
		),
	)
)

// tail builds the repeated "conjunction + item" part of a compound
// citation. Each item lands in the "tail" list with the conjunction's
// names (notably "through") alongside an "inner" sub-result.
func tail(item Element) Element {
	return OneOrMore(NamedList("tail", Seq(ConjPhrases, Named("inner", item))))
}

// Composed citation grammars.
var (
	MarkerComment = Seq(Named("marker", CommentMarker), commentBody)

	MultipleNonComments = Seq(
		Or(ParagraphsMarker, ParagraphMarker, SectionsMarker, SectionMarker),
		Named("head", innerNonComment),
		tail(innerNonComment),
	)

	MultipleAppendixSection = Seq(
		Named("head", appendixWithSectionBody),
		tail(Or(appendixWithSectionBody, appendixParagraphs)),
	)

	MultipleComments = Seq(
		Or(CommentsMarker, CommentMarker),
		Named("head", commentBody),
		tail(commentBody),
	)

	MultipleAppendices = Seq(
		AppendicesMarker,
		Named("head", Appendix),
		tail(Appendix),
	)

	MultiplePeriodSections = Seq(
		SectionsMarker,
		Named("head", partSection),
		tail(partSection),
	)

	AppendixWithSection = appendixWithSectionBody

	MarkerAppendix = Seq(
		Named("marker", AppendixMarker),
		Or(
			appendixWithSectionBody,
			Seq(Appendix, Optional(Seq(Marker("to"), PartMarker, Part))),
		),
	)

	MarkerParagraph = Seq(Named("marker", Or(ParagraphsMarker, ParagraphMarker)), depth1P)

	MPSParagraph = mpsParagraphBody

	MSectionParagraph = Seq(Named("marker", ParagraphMarker), sectionParagraphBody)

	SectionParagraph = sectionParagraphBody

	PartSectionParagraph = Seq(partSection, Adjacent(depth1P))

	MultipleSectionParagraphs = Seq(
		Named("head", sectionParagraphBody),
		tail(sectionParagraphBody),
	)

	CFRCitation = Seq(Named("head", cfrSingle))

	MultipleCFRCitations = Seq(
		Named("head", cfrSingle),
		tail(Seq(Or(psParagraph, Part), NotFollowedBy(CFRMark))),
	)
)

// Searches pairs each composed grammar with its quick-search pre-filter.
// Building them is fatal on an unsupported composition, which surfaces at
// package initialisation.
var Searches = struct {
	MarkerComment             *QuickSearch
	MultipleNonComments       *QuickSearch
	MultipleAppendixSection   *QuickSearch
	MultipleComments          *QuickSearch
	MultipleAppendices        *QuickSearch
	MultiplePeriodSections    *QuickSearch
	MarkerAppendix            *QuickSearch
	AppendixWithSection       *QuickSearch
	MarkerParagraph           *QuickSearch
	MPSParagraph              *QuickSearch
	MSectionParagraph         *QuickSearch
	SectionParagraph          *QuickSearch
	PartSectionParagraph      *QuickSearch
	MultipleSectionParagraphs *QuickSearch
	CFRCitation               *QuickSearch
	MultipleCFRCitations      *QuickSearch
}{
	MarkerComment:             MustQuickSearch(MarkerComment),
	MultipleNonComments:       MustQuickSearch(MultipleNonComments),
	MultipleAppendixSection:   MustQuickSearch(MultipleAppendixSection),
	MultipleComments:          MustQuickSearch(MultipleComments),
	MultipleAppendices:        MustQuickSearch(MultipleAppendices),
	MultiplePeriodSections:    MustQuickSearch(MultiplePeriodSections),
	MarkerAppendix:            MustQuickSearch(MarkerAppendix),
	AppendixWithSection:       MustQuickSearch(AppendixWithSection),
	MarkerParagraph:           MustQuickSearch(MarkerParagraph),
	MPSParagraph:              MustQuickSearch(MPSParagraph),
	MSectionParagraph:         MustQuickSearch(MSectionParagraph),
	SectionParagraph:          MustQuickSearch(SectionParagraph),
	PartSectionParagraph:      MustQuickSearch(PartSectionParagraph),
	MultipleSectionParagraphs: MustQuickSearch(MultipleSectionParagraphs),
	CFRCitation:               MustQuickSearch(CFRCitation),
	MultipleCFRCitations:      MustQuickSearch(MultipleCFRCitations),
}
