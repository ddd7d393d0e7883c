// ABOUTME: Tests for the section locator and boundary scanner
// ABOUTME: Covers boundary detection, chunk invariance and lexical edge cases

package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/nainya/sectionquery/pkg/storage"
)

func newTestLocator(t *testing.T, content string, opts ...Option) *Locator {
	t.Helper()
	ms := storage.NewMemStore()
	ms.Put("doc", content)
	return NewLocator(ms, opts...)
}

// locateAllChunks runs Locate with a range of chunk sizes and requires the
// same answer from each
func locateAllChunks(t *testing.T, content, tag string) *Section {
	t.Helper()

	want, err := newTestLocator(t, content).Locate("doc", tag)
	if err != nil {
		t.Fatalf("Locate(%s) failed: %v", tag, err)
	}
	for size := 1; size <= 17; size++ {
		got, err := newTestLocator(t, content, WithChunkSize(size)).Locate("doc", tag)
		if err != nil {
			t.Fatalf("Locate(%s) chunk %d failed: %v", tag, size, err)
		}
		if *got != *want {
			t.Fatalf("Chunk size %d changed result for %s: got %+v, want %+v", size, tag, got, want)
		}
	}
	return want
}

func TestLocateQueryThenMutation(t *testing.T) {
	doc := "query Foo { a }\nmutation Bar { b }\n"

	q := locateAllChunks(t, doc, KindQuery)
	if q.Content != "query Foo { a }" {
		t.Errorf("Expected query section, got %q", q.Content)
	}
	if q.Start != 0 || q.End != 15 {
		t.Errorf("Expected [0,15), got [%d,%d)", q.Start, q.End)
	}

	m := locateAllChunks(t, doc, KindMutation)
	if m.Content != "mutation Bar { b }" {
		t.Errorf("Expected mutation section, got %q", m.Content)
	}
}

func TestLocateMutationThenQuery(t *testing.T) {
	doc := "mutation Bar { b }\nquery Foo { a }"

	q := locateAllChunks(t, doc, KindQuery)
	if q.Content != "query Foo { a }" {
		t.Errorf("Expected query section, got %q", q.Content)
	}
	if q.Start != 19 {
		t.Errorf("Expected query to start at 19, got %d", q.Start)
	}

	m := locateAllChunks(t, doc, KindMutation)
	if m.Content != "mutation Bar { b }" {
		t.Errorf("Expected mutation section, got %q", m.Content)
	}
}

func TestLocateContentMatchesRange(t *testing.T) {
	doc := "type Query { a: Int }\n\n# trailing\ninput Filter { q: String }\n"
	for _, tag := range []string{KindType, KindInput} {
		sec := locateAllChunks(t, doc, tag)
		if sec.Content != doc[sec.Start:sec.End] {
			t.Errorf("%s content %q does not match range [%d,%d)", tag, sec.Content, sec.Start, sec.End)
		}
	}
}

func TestLocateMissingSectionIsEmpty(t *testing.T) {
	l := newTestLocator(t, "query Foo { a }")

	for _, tag := range []string{KindMutation, "field:hero", "nonsense"} {
		sec, err := l.Locate("doc", tag)
		if err != nil {
			t.Fatalf("Locate(%s) failed: %v", tag, err)
		}
		if sec.Found() || sec.Content != "" || sec.Start != 0 || sec.End != 0 {
			t.Errorf("Expected empty section for %s, got %+v", tag, sec)
		}
		if sec.Kind != tag {
			t.Errorf("Expected kind %s, got %s", tag, sec.Kind)
		}
	}

	// Only the definition keyword needed a scan
	if l.Scans() != 1 {
		t.Errorf("Expected 1 scan, got %d", l.Scans())
	}
}

func TestLocateDocumentNotFound(t *testing.T) {
	l := NewLocator(storage.NewMemStore())
	if _, err := l.Locate("missing", KindQuery); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := l.Probe("missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from probe, got %v", err)
	}
}

func TestLocateIgnoresKeywordsInStringsAndComments(t *testing.T) {
	doc := `# mutation Hidden { x }
query Q { a(msg: "mutation { b }") }
`
	if sec := locateAllChunks(t, doc, KindMutation); sec.Found() {
		t.Errorf("Expected no mutation section, got %q", sec.Content)
	}
	q := locateAllChunks(t, doc, KindQuery)
	if q.Content != `query Q { a(msg: "mutation { b }") }` {
		t.Errorf("Unexpected query section %q", q.Content)
	}
}

func TestLocateBracesInTopLevelStrings(t *testing.T) {
	doc := "\"Has { brace\"\ntype T { a: Int }\nenum E { X }\n"

	e := locateAllChunks(t, doc, KindEnum)
	if e.Content != "enum E { X }" {
		t.Errorf("Expected enum section, got %q", e.Content)
	}
	ty := locateAllChunks(t, doc, KindType)
	if ty.Content != "\"Has { brace\"\ntype T { a: Int }" {
		t.Errorf("Expected described type section, got %q", ty.Content)
	}
}

func TestLocateBlockStringDescriptions(t *testing.T) {
	doc := `"Root"
type Query { a: Int }
"""
Input docs with "quotes" and { braces
"""
input Filter { q: String }
`
	ty := locateAllChunks(t, doc, KindType)
	if ty.Content != "\"Root\"\ntype Query { a: Int }" {
		t.Errorf("Unexpected type section %q", ty.Content)
	}

	in := locateAllChunks(t, doc, KindInput)
	if !strings.HasPrefix(in.Content, `"""`) || !strings.HasSuffix(in.Content, "input Filter { q: String }") {
		t.Errorf("Expected input section with its description, got %q", in.Content)
	}
}

func TestLocateAnonymousQuery(t *testing.T) {
	doc := "fragment F on Hero { name }\n{ hero { ...F } }\n"

	q := locateAllChunks(t, doc, KindQuery)
	if q.Content != "{ hero { ...F } }" {
		t.Errorf("Expected anonymous query, got %q", q.Content)
	}
	f := locateAllChunks(t, doc, KindFragment)
	if f.Content != "fragment F on Hero { name }" {
		t.Errorf("Expected fragment, got %q", f.Content)
	}
}

func TestLocateRunOfSameKind(t *testing.T) {
	doc := "type A { a: Int }\nextend type A { b: Int }\ntype B { c: Int }\nscalar Time\n"

	ty := locateAllChunks(t, doc, KindType)
	want := "type A { a: Int }\nextend type A { b: Int }\ntype B { c: Int }"
	if ty.Content != want {
		t.Errorf("Expected %q, got %q", want, ty.Content)
	}
	sc := locateAllChunks(t, doc, KindScalar)
	if sc.Content != "scalar Time" {
		t.Errorf("Expected scalar, got %q", sc.Content)
	}
}

func TestLocateImplementsClause(t *testing.T) {
	doc := "type Query { a: Int }\ntype Foo implements Node { id: ID }\n"
	ty := locateAllChunks(t, doc, KindType)
	if ty.End != int64(len(doc)-1) {
		t.Errorf("Expected type run to end at %d, got %d", len(doc)-1, ty.End)
	}
}

func TestProbe(t *testing.T) {
	doc := "query Foo { a }\nmutation Bar { b }\n"

	sec, err := newTestLocator(t, doc, WithProbeSize(8)).Probe("doc")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if sec.Kind != KindProbe || sec.Content != "query Fo" {
		t.Errorf("Unexpected probe %+v", sec)
	}

	sec, err = newTestLocator(t, "{ a }").Probe("doc")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if sec.Content != "{ a }" {
		t.Errorf("Expected whole short document, got %q", sec.Content)
	}
}

func TestDefinitions(t *testing.T) {
	doc := "query A { a }\nmutation B { b }\n{ c }"
	l := newTestLocator(t, doc, WithChunkSize(3))

	defs, err := l.Definitions("doc")
	if err != nil {
		t.Fatalf("Definitions failed: %v", err)
	}

	want := []Definition{
		{Kind: KindQuery, Name: "A", Start: 0, End: 13, Line: 1},
		{Kind: KindMutation, Name: "B", Start: 14, End: 30, Line: 2},
		{Kind: KindQuery, Name: "", Start: 31, End: 36, Line: 3},
	}
	if len(defs) != len(want) {
		t.Fatalf("Expected %d definitions, got %+v", len(want), defs)
	}
	for i := range want {
		if defs[i] != want[i] {
			t.Errorf("Definition %d: got %+v, want %+v", i, defs[i], want[i])
		}
	}
}

func TestSectionPosition(t *testing.T) {
	doc := "# héros\nquery A { a }\n\n  \"\"\"\n  Review\n  \"\"\"\n  mutation B { b }\nextend type Q { c: Int }\n"

	tests := []struct {
		tag  string
		want Position
	}{
		{KindQuery, Position{Line: 2, Column: 1}},
		{KindMutation, Position{Line: 4, Column: 3}},
		{KindType, Position{Line: 8, Column: 1}},
	}
	for _, tt := range tests {
		sec := locateAllChunks(t, doc, tt.tag)
		if sec.At != tt.want {
			t.Errorf("%s section at %+v, want %+v", tt.tag, sec.At, tt.want)
		}
	}

	sec := locateAllChunks(t, doc, KindEnum)
	if sec.At != (Position{}) {
		t.Errorf("Expected zero position for a missing section, got %+v", sec.At)
	}

	sec, err := newTestLocator(t, "é { a }\n{ b }").Locate("doc", KindQuery)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if sec.At != (Position{Line: 1, Column: 3}) {
		t.Errorf("Expected column counted in runes, got %+v", sec.At)
	}
}

func TestDirectiveDefinitionName(t *testing.T) {
	doc := "directive @cached(ttl: Int) on FIELD\ntype Query { a: Int }\n"
	defs, err := newTestLocator(t, doc).Definitions("doc")
	if err != nil {
		t.Fatalf("Definitions failed: %v", err)
	}
	if len(defs) != 2 || defs[0].Kind != KindDirective || defs[0].Name != "cached" {
		t.Errorf("Unexpected definitions %+v", defs)
	}
}

func TestObserverAndCounters(t *testing.T) {
	var events []ScanEvent
	doc := "query Foo { a }\nmutation Bar { b }\n"
	l := newTestLocator(t, doc, WithChunkSize(4), WithObserver(func(ev ScanEvent) {
		events = append(events, ev)
	}))

	if _, err := l.Locate("doc", KindQuery); err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if _, err := l.Locate("doc", KindSubscription); err != nil {
		t.Fatalf("Locate failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if !events[0].Found || events[1].Found {
		t.Errorf("Unexpected found flags %+v", events)
	}
	// The query scan stops at the mutation keyword, before end of input
	if events[0].Scanned >= int64(len(doc)) {
		t.Errorf("Expected early stop, scanned %d of %d", events[0].Scanned, len(doc))
	}
	if l.Scans() != 2 {
		t.Errorf("Expected 2 scans, got %d", l.Scans())
	}
	if l.BytesRead() == 0 {
		t.Error("Expected bytes read to be counted")
	}
}

func BenchmarkLocateLargeDocument(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 2000; i++ {
		sb.WriteString("type T")
		sb.WriteString(strings.Repeat("x", i%7))
		sb.WriteString(" { \"doc\" field: String # note\n }\n")
	}
	sb.WriteString("query Last { a }\n")

	ms := storage.NewMemStore()
	ms.Put("big", sb.String())
	l := NewLocator(ms)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := l.Locate("big", KindQuery); err != nil {
			b.Fatal(err)
		}
	}
}
