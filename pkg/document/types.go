// ABOUTME: Document section data model
// ABOUTME: A section is the byte range of one run of top-level definitions

package document

// Section kinds recognised by the locator
const (
	KindQuery        = "query"
	KindMutation     = "mutation"
	KindSubscription = "subscription"
	KindFragment     = "fragment"
	KindSchema       = "schema"
	KindType         = "type"
	KindInput        = "input"
	KindEnum         = "enum"
	KindScalar       = "scalar"
	KindInterface    = "interface"
	KindUnion        = "union"
	KindDirective    = "directive"

	// KindProbe marks a bounded read of the document head
	KindProbe = "probe"
)

var definitionKinds = map[string]bool{
	KindQuery:        true,
	KindMutation:     true,
	KindSubscription: true,
	KindFragment:     true,
	KindSchema:       true,
	KindType:         true,
	KindInput:        true,
	KindEnum:         true,
	KindScalar:       true,
	KindInterface:    true,
	KindUnion:        true,
	KindDirective:    true,
}

// IsDefinitionKind reports whether tag names a top-level definition keyword
func IsDefinitionKind(tag string) bool {
	return definitionKinds[tag]
}

// Position is a 1-based line and column in a document. Columns count runes.
type Position struct {
	Line   int
	Column int
}

// Section is a located region of a document
type Section struct {
	DocumentID string
	Kind       string // Requested tag, or KindProbe
	Content    string // Exactly the bytes [Start, End)
	Start      int64
	End        int64
	At         Position // Position of Start; zero when the section is empty
}

// Found reports whether the section was present in the document.
// A missing section is empty with Start == End == 0.
func (s *Section) Found() bool {
	return s != nil && s.End > s.Start
}

// Len returns the section length in bytes
func (s *Section) Len() int64 {
	if s == nil {
		return 0
	}
	return s.End - s.Start
}

func emptySection(docID, kind string) *Section {
	return &Section{DocumentID: docID, Kind: kind}
}

// Definition is one top-level definition found while scanning
type Definition struct {
	Kind  string
	Name  string // Empty for anonymous operations and schema blocks
	Start int64
	End   int64
	Line  int
}
