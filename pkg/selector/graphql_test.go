// ABOUTME: Tests for the GraphQL node selector
// ABOUTME: Covers executable and schema documents, axes, predicates and errors

package selector

import (
	"errors"
	"testing"
)

const heroDoc = `query { hero { name friends { name } } }`

const opsDoc = `
query HeroQuery($episode: Episode = JEDI, $withFriends: Boolean!) {
  hero(episode: $episode) {
    name
    smallPic: profilePic(size: 64)
    ...HeroFields
    ... on Droid { primaryFunction }
    friends @include(if: $withFriends) { name }
  }
}

mutation AddReview($review: ReviewInput!) {
  createReview(episode: EMPIRE, review: $review, note: "five stars") { stars }
}

fragment HeroFields on Character {
  id
  appearsIn
}
`

const schemaDoc = `
type Query {
  hero(episode: Episode): Character
}

enum Episode { NEWHOPE EMPIRE JEDI }

"Marks cached fields"
directive @cached(ttl: Int = 60) on FIELD_DEFINITION

input ReviewInput { stars: Int! commentary: String }

schema { query: Query }
`

func selectNames(t *testing.T, text, expression string) []string {
	t.Helper()
	nodes, err := NewGraphQL().SelectMany(text, expression, Origin{})
	if err != nil {
		t.Fatalf("SelectMany(%q) failed: %v", expression, err)
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHeroScenario(t *testing.T) {
	nodes, err := NewGraphQL().SelectMany(heroDoc, "//hero/name", Origin{})
	if err != nil {
		t.Fatalf("SelectMany failed: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(nodes))
	}

	n := nodes[0]
	if n.Kind != KindField || n.Name != "name" {
		t.Errorf("Expected field name, got %s %s", n.Kind, n.Name)
	}
	if n.Parent() == nil || n.Parent().Name != "hero" {
		t.Errorf("Expected parent hero, got %+v", n.Parent())
	}
	if n.Path != "/query/hero/name" {
		t.Errorf("Unexpected path %s", n.Path)
	}
	if n.Line != 1 || n.Column == 0 {
		t.Errorf("Expected a source position, got %d:%d", n.Line, n.Column)
	}
}

func TestDescendantAxis(t *testing.T) {
	got := selectNames(t, heroDoc, "//name")
	if len(got) != 2 {
		t.Errorf("Expected both name fields, got %v", got)
	}

	got = selectNames(t, heroDoc, "//friends//name")
	if !equalStrings(got, []string{"name"}) {
		t.Errorf("Expected friend name only, got %v", got)
	}
}

func TestBareNameIsDescendant(t *testing.T) {
	a := selectNames(t, heroDoc, "hero")
	b := selectNames(t, heroDoc, "//hero")
	if !equalStrings(a, b) || len(a) != 1 {
		t.Errorf("Expected bare name to match //hero, got %v vs %v", a, b)
	}
}

func TestOperationKeywords(t *testing.T) {
	tests := []struct {
		expression string
		want       []string
	}{
		{"//query", []string{"HeroQuery"}},
		{"//mutation", []string{"AddReview"}},
		{"//operation", []string{"HeroQuery", "AddReview"}},
		{"//operation[type=mutation]", []string{"AddReview"}},
		{"/query/hero", []string{"hero"}},
		{"//subscription", nil},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got := selectNames(t, opsDoc, tt.expression)
			if !equalStrings(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestComponentKinds(t *testing.T) {
	tests := []struct {
		expression string
		kind       Kind
		want       []string
	}{
		{"//fragment", KindFragmentDefinition, []string{"HeroFields"}},
		{"//...HeroFields", KindFragmentSpread, []string{"HeroFields"}},
		{"//@include", KindDirective, []string{"include"}},
		{"//arg:episode", KindArgument, []string{"episode", "episode"}},
		{"//$review", KindVariableDefinition, []string{"review"}},
		{"//alias:smallPic", KindField, []string{"profilePic"}},
		{"//smallPic", KindField, []string{"profilePic"}},
		{"//fragment/appearsIn", KindField, []string{"appearsIn"}},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			nodes, err := NewGraphQL().SelectMany(opsDoc, tt.expression, Origin{})
			if err != nil {
				t.Fatalf("SelectMany failed: %v", err)
			}
			names := make([]string, len(nodes))
			for i, n := range nodes {
				names[i] = n.Name
				if n.Kind != tt.kind {
					t.Errorf("Expected kind %s, got %s", tt.kind, n.Kind)
				}
			}
			if !equalStrings(names, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, names)
			}
		})
	}
}

func TestInlineFragments(t *testing.T) {
	nodes, err := NewGraphQL().SelectMany(opsDoc, "//... on Droid/primaryFunction", Origin{})
	if err != nil {
		t.Fatalf("SelectMany failed: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Parent().TypeCondition != "Droid" {
		t.Errorf("Expected primaryFunction under the Droid fragment, got %v", nodes)
	}

	nodes, err = NewGraphQL().SelectMany(opsDoc, "//...", Origin{})
	if err != nil {
		t.Fatalf("SelectMany failed: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Kind != KindInlineFragment {
		t.Errorf("Expected one inline fragment, got %v", nodes)
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		expression string
		want       []string
	}{
		{`//arg:note[value="five stars"]`, []string{"note"}},
		{"//arg:episode[value=EMPIRE]", []string{"episode"}},
		{"//arg:size[value=64]", []string{"size"}},
		{"//$episode[value=JEDI]", []string{"episode"}},
		{"//$withFriends[type=Boolean!]", []string{"withFriends"}},
		{"//hero/*[alias]", []string{"profilePic"}},
		{"//hero/*[1]", []string{"episode"}},
		{"//fragment[on=Character]", []string{"HeroFields"}},
		{"//fragment[on=Droid]", nil},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got := selectNames(t, opsDoc, tt.expression)
			if !equalStrings(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParentAndSelfAxes(t *testing.T) {
	got := selectNames(t, heroDoc, "//friends/name/..")
	if !equalStrings(got, []string{"friends"}) {
		t.Errorf("Expected friends, got %v", got)
	}

	got = selectNames(t, heroDoc, "//hero/.")
	if !equalStrings(got, []string{"hero"}) {
		t.Errorf("Expected hero, got %v", got)
	}
}

func TestAlternationIsOrderedUnion(t *testing.T) {
	got := selectNames(t, opsDoc, "//fragment | //createReview | //createReview")
	if !equalStrings(got, []string{"createReview", "HeroFields"}) {
		t.Errorf("Expected document order without duplicates, got %v", got)
	}
}

func TestSchemaDocument(t *testing.T) {
	tests := []struct {
		expression string
		want       []string
	}{
		{"//type", []string{"Query"}},
		{"//enum/JEDI", []string{"JEDI"}},
		{"//input/stars", []string{"stars"}},
		{"//directive", []string{"cached"}},
		{"//directive/arg:ttl[value=60]", []string{"ttl"}},
		{"//hero/arg:episode[type=Episode]", []string{"episode"}},
		{"//schema/*[type=Query]", []string{"query"}},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got := selectNames(t, schemaDoc, tt.expression)
			if !equalStrings(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSchemaDocumentOrder(t *testing.T) {
	root, err := Parse(schemaDoc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var kinds []string
	for _, c := range root.Children() {
		kinds = append(kinds, c.Kind.String())
	}
	want := []string{"type_definition", "type_definition", "directive_definition", "type_definition", "schema_definition"}
	if !equalStrings(kinds, want) {
		t.Errorf("Expected definitions in source order %v, got %v", want, kinds)
	}
}

func TestBlankTextAndEmptyExpression(t *testing.T) {
	s := NewGraphQL()

	nodes, err := s.SelectMany("   \n", "//hero", Origin{})
	if err != nil || len(nodes) != 0 {
		t.Errorf("Expected empty result for blank text, got %v, %v", nodes, err)
	}

	// Unparseable text is never parsed when the expression has no paths
	nodes, err = s.SelectMany("query {", "", Origin{})
	if err != nil || len(nodes) != 0 {
		t.Errorf("Expected empty result for empty expression, got %v, %v", nodes, err)
	}
}

func TestErrors(t *testing.T) {
	s := NewGraphQL()

	if _, err := s.SelectMany("query { hero ", "//hero", Origin{}); !errors.Is(err, ErrParse) {
		t.Errorf("Expected ErrParse, got %v", err)
	}
	if _, err := s.SelectMany(heroDoc, "count(//hero)", Origin{}); !errors.Is(err, ErrUnsupportedExpression) {
		t.Errorf("Expected ErrUnsupportedExpression, got %v", err)
	}
	if _, err := s.SelectMany(heroDoc, `//arg:note[value="a(b)"]`, Origin{}); err != nil {
		t.Errorf("Quoted parentheses should be accepted, got %v", err)
	}
}

func TestParseMemo(t *testing.T) {
	s := NewGraphQL()

	first, err := s.SelectMany(heroDoc, "//hero", Origin{})
	if err != nil {
		t.Fatalf("SelectMany failed: %v", err)
	}
	second, err := s.SelectMany(heroDoc, "//hero", Origin{})
	if err != nil {
		t.Fatalf("SelectMany failed: %v", err)
	}
	if first[0] != second[0] {
		t.Error("Expected the memoized tree to be reused for identical text")
	}

	other, err := s.SelectMany("query { hero { id } }", "//hero", Origin{})
	if err != nil {
		t.Fatalf("SelectMany failed: %v", err)
	}
	if other[0] == first[0] {
		t.Error("Expected a fresh tree for different text")
	}
}

func TestOriginShiftsPositions(t *testing.T) {
	s := NewGraphQL()
	text := "query {\n  hero { name }\n}"

	tests := []struct {
		name       string
		at         Origin
		expression string
		line, col  int
	}{
		{"zero origin", Origin{}, "//hero", 2, 3},
		{"later line", Origin{Line: 7, Column: 1}, "//hero", 8, 3},
		{"first line keeps column offset", Origin{Line: 4, Column: 5}, "/query", 4, 5},
		{"later lines ignore column offset", Origin{Line: 4, Column: 5}, "//name", 5, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := s.SelectMany(text, tt.expression, tt.at)
			if err != nil {
				t.Fatalf("SelectMany failed: %v", err)
			}
			if len(nodes) != 1 {
				t.Fatalf("Expected 1 node, got %d", len(nodes))
			}
			if nodes[0].Line != tt.line || nodes[0].Column != tt.col {
				t.Errorf("Expected %d:%d, got %d:%d", tt.line, tt.col, nodes[0].Line, nodes[0].Column)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if KindFragmentSpread.String() != "fragment_spread" {
		t.Errorf("Unexpected %s", KindFragmentSpread)
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("Unexpected %s", Kind(99))
	}
}
