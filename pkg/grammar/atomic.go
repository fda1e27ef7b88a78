package grammar

const (
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars = "0123456789"
	romanChars = "ivxlcdm"
)

func parenthesised(name string, element Element) Element {
	return Seq(Suppress(Literal("(")), Named(name, element), Suppress(Literal(")")))
}

func emphasised(name string, element Element) Element {
	return Seq(
		Suppress(Regex(`\(\s*<E[^>]*>`)),
		Named(name, element),
		Suppress(Regex(`</E>\s*\)`)),
	)
}

// Paragraph marker tokens, one per nesting level.
var (
	LowerP          = parenthesised("p1", Word(lowerChars, 1, 2))
	DigitP          = parenthesised("p2", Word(digitChars, 1, 0))
	RomanP          = parenthesised("p3", Word(romanChars, 1, 0))
	UpperP          = parenthesised("p4", Word(upperChars, 1, 2))
	EmDigitP        = emphasised("p5", Word(digitChars, 1, 0))
	EmRomanP        = emphasised("p6", Word(romanChars, 1, 0))
	PlaintextLevel5 = parenthesised("p5", Word(digitChars, 1, 0))
	PlaintextLevel6 = parenthesised("p6", Word(romanChars, 1, 0))
)

// Interpretation comment tokens: "-1", ".i", ".A", ".1".
var (
	commentLevel4 = Seq(Suppress(Literal(".")), Adjacent(Or(
		emphasised("c4", Word(digitChars, 1, 0)),
		Named("c4", Word(digitChars, 1, 0)),
	)))
	commentLevel3 = Seq(Suppress(Literal(".")), Adjacent(Named("c3", Word(upperChars, 1, 2))), Optional(commentLevel4))
	commentLevel2 = Seq(Suppress(Literal(".")), Adjacent(Named("c2", Word(romanChars, 1, 0))), Optional(commentLevel3))
	CommentLevel1 = Seq(Suppress(Literal("-")), Adjacent(Named("c1", Word(digitChars, 1, 0))), Optional(commentLevel2))
)

// Structural tokens.
var (
	Part            = Named("part", Word(digitChars, 1, 0))
	Section         = Named("section", Word(digitChars, 1, 0))
	Appendix        = Named("appendix", WordStart(Regex(`[A-Z]+[0-9]*\b`)))
	AppendixSection = Named("appendix_section", Word(digitChars, 1, 0))
	CFRTitle        = Named("cfr_title", Word(digitChars, 1, 0))
	CFRMark         = Suppress(Regex(`C\.?F\.?R\.?`))
)

// Marker words. Plural forms precede singular ones wherever both are tried.
var (
	SectionMarker    = Or(Marker("§"), Marker("Section"))
	SectionsMarker   = Or(Marker("§§"), Marker("Sections"))
	ParagraphMarker  = Marker("paragraph")
	ParagraphsMarker = Marker("paragraphs")
	PartMarker       = Marker("part")
	PartsMarker      = Marker("parts")
	AppendixMarker   = Marker("appendix")
	AppendicesMarker = Marker("appendices")
	CommentMarker    = Or(Marker("official comment"), Marker("comment"))
	CommentsMarker   = Marker("comments")
)

// Through marks a range ("(a) through (d)"); its presence is recorded under
// the "through" name.
var Through = Named("through", Suppress(Or(Marker("through"), Literal("-"), Literal("–"))))

// ConjPhrases joins the items of a compound citation.
var ConjPhrases = Or(
	Seq(Suppress(Literal(",")), Optional(Or(Marker("and"), Marker("or"))), Optional(Through)),
	Seq(Marker("and"), Optional(Through)),
	Marker("or"),
	Seq(Marker("except"), Marker("for")),
	Through,
)
