// ABOUTME: GraphQL selector built on gqlparser
// ABOUTME: Parses executable or type-system text into a node tree and evaluates paths over it

package selector

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/nainya/sectionquery/pkg/expr"
)

// GraphQL selects nodes from GraphQL documents. It remembers the tree of
// the last text it parsed, so repeated queries over one section parse once.
type GraphQL struct {
	mu       sync.Mutex
	lastHash uint64
	lastLen  int
	lastAt   Origin
	lastRoot *Node
}

// NewGraphQL creates a selector with an empty parse memo
func NewGraphQL() *GraphQL {
	return &GraphQL{}
}

// NewGraphQLFactory returns a factory producing independent GraphQL selectors
func NewGraphQLFactory() Factory {
	return func() Selector {
		return NewGraphQL()
	}
}

// SelectMany returns the nodes matching expression in document order
func (g *GraphQL) SelectMany(text, expression string, at Origin) ([]*Node, error) {
	if hasCall(expression) {
		return nil, fmt.Errorf("%w: function calls in %q", ErrUnsupportedExpression, expression)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	paths := expr.Parse(expression)
	if len(paths) == 0 {
		return nil, nil
	}

	root, err := g.tree(text, at.normalize())
	if err != nil {
		return nil, err
	}
	return evaluate(root, paths), nil
}

func (g *GraphQL) tree(text string, at Origin) (*Node, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	sum := h.Sum64()

	g.mu.Lock()
	if g.lastRoot != nil && g.lastHash == sum && g.lastLen == len(text) && g.lastAt == at {
		root := g.lastRoot
		g.mu.Unlock()
		return root, nil
	}
	g.mu.Unlock()

	root, err := ParseAt(text, at)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.lastHash, g.lastLen, g.lastAt, g.lastRoot = sum, len(text), at, root
	g.mu.Unlock()
	return root, nil
}

// Parse builds the node tree for an executable or type-system document
func Parse(text string) (*Node, error) {
	return ParseAt(text, Origin{})
}

// ParseAt is Parse for text that starts at position at of a larger document
func ParseAt(text string, at Origin) (*Node, error) {
	src := &ast.Source{Name: "section", Input: text}
	at = at.normalize()

	qdoc, qerr := parser.ParseQuery(src)
	if qerr == nil {
		return buildQuery(qdoc, at), nil
	}

	sdoc, serr := parser.ParseSchema(src)
	if serr == nil {
		return buildSchema(sdoc, at), nil
	}

	return nil, fmt.Errorf("%w: %v", ErrParse, qerr)
}

// hasCall reports whether expression has a '(' outside quotes
func hasCall(expression string) bool {
	var quote byte
	for i := 0; i < len(expression); i++ {
		c := expression[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			return true
		}
	}
	return false
}

type builder struct {
	root *Node
	at   Origin
}

func newBuilder(at Origin) *builder {
	return &builder{root: &Node{Kind: KindDocument, Path: "/"}, at: at}
}

func (b *builder) add(parent *Node, n *Node, label string, pos *ast.Position) *Node {
	n.parent = parent
	if pos != nil {
		n.Line, n.Column = b.at.shift(pos.Line, pos.Column)
	}
	if parent.Kind == KindDocument {
		n.Path = "/" + label
	} else {
		n.Path = parent.Path + "/" + label
	}
	parent.children = append(parent.children, n)
	return n
}

// finish sorts top-level definitions by position and numbers nodes in
// document order
func (b *builder) finish() *Node {
	sort.SliceStable(b.root.children, func(i, j int) bool {
		a, c := b.root.children[i], b.root.children[j]
		if a.Line != c.Line {
			return a.Line < c.Line
		}
		return a.Column < c.Column
	})

	order := 0
	var walk func(n *Node)
	walk = func(n *Node) {
		n.order = order
		order++
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(b.root)
	return b.root
}

func buildQuery(doc *ast.QueryDocument, at Origin) *Node {
	b := newBuilder(at)

	for _, op := range doc.Operations {
		label := string(op.Operation)
		if op.Name != "" {
			label += ":" + op.Name
		}
		n := b.add(b.root, &Node{
			Kind:  KindOperation,
			Name:  op.Name,
			attrs: map[string]string{"type": string(op.Operation), "kind": "operation"},
		}, label, op.Position)

		for _, v := range op.VariableDefinitions {
			b.addVariable(n, v)
		}
		b.addDirectives(n, op.Directives)
		b.addSelections(n, op.SelectionSet)
	}

	for _, frag := range doc.Fragments {
		n := b.add(b.root, &Node{
			Kind:          KindFragmentDefinition,
			Name:          frag.Name,
			TypeCondition: frag.TypeCondition,
			attrs:         map[string]string{"kind": "fragment"},
		}, "fragment:"+frag.Name, frag.Position)

		b.addDirectives(n, frag.Directives)
		b.addSelections(n, frag.SelectionSet)
	}

	return b.finish()
}

func (b *builder) addVariable(parent *Node, v *ast.VariableDefinition) {
	n := &Node{
		Kind:  KindVariableDefinition,
		Name:  v.Variable,
		Value: valueString(v.DefaultValue),
		attrs: map[string]string{"kind": "variable"},
	}
	if v.Type != nil {
		n.attrs["type"] = v.Type.String()
	}
	b.add(parent, n, "$"+v.Variable, v.Position)
	b.addDirectives(n, v.Directives)
}

func (b *builder) addDirectives(parent *Node, dirs ast.DirectiveList) {
	for _, d := range dirs {
		n := b.add(parent, &Node{
			Kind:  KindDirective,
			Name:  d.Name,
			attrs: map[string]string{"kind": "directive"},
		}, "@"+d.Name, d.Position)
		b.addArguments(n, d.Arguments)
	}
}

func (b *builder) addArguments(parent *Node, args ast.ArgumentList) {
	for _, a := range args {
		b.add(parent, &Node{
			Kind:  KindArgument,
			Name:  a.Name,
			Value: valueString(a.Value),
			attrs: map[string]string{"kind": "argument"},
		}, "arg:"+a.Name, a.Position)
	}
}

func (b *builder) addSelections(parent *Node, set ast.SelectionSet) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			label := s.Name
			if s.Alias != "" && s.Alias != s.Name {
				label = s.Alias + ":" + s.Name
			}
			alias := s.Alias
			if alias == s.Name {
				alias = ""
			}
			n := b.add(parent, &Node{
				Kind:  KindField,
				Name:  s.Name,
				Alias: alias,
				attrs: map[string]string{"kind": "field"},
			}, label, s.Position)
			b.addArguments(n, s.Arguments)
			b.addDirectives(n, s.Directives)
			b.addSelections(n, s.SelectionSet)

		case *ast.FragmentSpread:
			n := b.add(parent, &Node{
				Kind:  KindFragmentSpread,
				Name:  s.Name,
				attrs: map[string]string{"kind": "spread"},
			}, "..."+s.Name, s.Position)
			b.addDirectives(n, s.Directives)

		case *ast.InlineFragment:
			label := "..."
			if s.TypeCondition != "" {
				label += "on " + s.TypeCondition
			}
			n := b.add(parent, &Node{
				Kind:          KindInlineFragment,
				TypeCondition: s.TypeCondition,
				attrs:         map[string]string{"kind": "inline"},
			}, label, s.Position)
			b.addDirectives(n, s.Directives)
			b.addSelections(n, s.SelectionSet)
		}
	}
}

var definitionKeywords = map[ast.DefinitionKind]string{
	ast.Scalar:      "scalar",
	ast.Object:      "type",
	ast.Interface:   "interface",
	ast.Union:       "union",
	ast.Enum:        "enum",
	ast.InputObject: "input",
}

func buildSchema(doc *ast.SchemaDocument, at Origin) *Node {
	b := newBuilder(at)

	for _, s := range doc.Schema {
		n := b.add(b.root, &Node{
			Kind:  KindSchemaDefinition,
			attrs: map[string]string{"kind": "schema"},
		}, "schema", s.Position)
		b.addDirectives(n, s.Directives)
		for _, ot := range s.OperationTypes {
			b.add(n, &Node{
				Kind:  KindFieldDefinition,
				Name:  string(ot.Operation),
				attrs: map[string]string{"kind": "field", "type": ot.Type},
			}, string(ot.Operation), ot.Position)
		}
	}

	for _, d := range doc.Directives {
		n := b.add(b.root, &Node{
			Kind: KindDirectiveDefinition,
			Name: d.Name,
			attrs: map[string]string{
				"kind":      "directive",
				"locations": joinLocations(d.Locations),
			},
		}, "directive:@"+d.Name, d.Position)
		b.addArgumentDefinitions(n, d.Arguments)
	}

	for _, def := range doc.Definitions {
		b.addDefinition(def, false)
	}
	for _, def := range doc.Extensions {
		b.addDefinition(def, true)
	}

	return b.finish()
}

func (b *builder) addDefinition(def *ast.Definition, extension bool) {
	kw := definitionKeywords[def.Kind]
	attrs := map[string]string{"kind": kw}
	if extension {
		attrs["extend"] = "true"
	}
	if len(def.Interfaces) > 0 {
		attrs["implements"] = strings.Join(def.Interfaces, ",")
	}
	if len(def.Types) > 0 {
		attrs["types"] = strings.Join(def.Types, ",")
	}

	n := b.add(b.root, &Node{
		Kind:  KindTypeDefinition,
		Name:  def.Name,
		attrs: attrs,
	}, kw+":"+def.Name, def.Position)
	b.addDirectives(n, def.Directives)

	for _, f := range def.Fields {
		fn := &Node{
			Kind:  KindFieldDefinition,
			Name:  f.Name,
			Value: valueString(f.DefaultValue),
			attrs: map[string]string{"kind": "field"},
		}
		if f.Type != nil {
			fn.attrs["type"] = f.Type.String()
		}
		b.add(n, fn, f.Name, f.Position)
		b.addArgumentDefinitions(fn, f.Arguments)
		b.addDirectives(fn, f.Directives)
	}
	for _, v := range def.EnumValues {
		ev := b.add(n, &Node{
			Kind:  KindEnumValue,
			Name:  v.Name,
			attrs: map[string]string{"kind": "enum_value"},
		}, v.Name, v.Position)
		b.addDirectives(ev, v.Directives)
	}
}

func (b *builder) addArgumentDefinitions(parent *Node, args ast.ArgumentDefinitionList) {
	for _, a := range args {
		n := &Node{
			Kind:  KindArgument,
			Name:  a.Name,
			Value: valueString(a.DefaultValue),
			attrs: map[string]string{"kind": "argument"},
		}
		if a.Type != nil {
			n.attrs["type"] = a.Type.String()
		}
		b.add(parent, n, "arg:"+a.Name, a.Position)
	}
}

func joinLocations(locs []ast.DirectiveLocation) string {
	parts := make([]string, len(locs))
	for i, l := range locs {
		parts[i] = string(l)
	}
	return strings.Join(parts, ",")
}

// valueString renders a literal the way predicates compare it: strings
// without quotes, everything else in GraphQL syntax
func valueString(v *ast.Value) string {
	if v == nil {
		return ""
	}
	switch v.Kind {
	case ast.StringValue, ast.BlockValue:
		return v.Raw
	default:
		return v.String()
	}
}
