// ABOUTME: Node selector contract and the node model it returns
// ABOUTME: Node kinds are a closed enum so callers can switch exhaustively

package selector

import "errors"

var (
	// ErrParse is returned when the text is not a parseable document
	ErrParse = errors.New("selector: parse failed")
	// ErrUnsupportedExpression is returned for expression features the selector cannot evaluate
	ErrUnsupportedExpression = errors.New("selector: unsupported expression")
)

// Selector matches a path expression against document text. at is the
// document position of the first byte of text; node positions are reported
// relative to the document. Implementations must be safe for concurrent use.
type Selector interface {
	SelectMany(text, expression string, at Origin) ([]*Node, error)
}

// Origin is a 1-based document line and column. The zero value is the
// start of the document.
type Origin struct {
	Line   int
	Column int
}

func (o Origin) normalize() Origin {
	if o.Line < 1 {
		o.Line = 1
	}
	if o.Column < 1 {
		o.Column = 1
	}
	return o
}

// shift moves a position within text to its position in the document
func (o Origin) shift(line, column int) (int, int) {
	if line == 1 {
		column += o.Column - 1
	}
	return line + o.Line - 1, column
}

// Factory creates independent selector instances
type Factory func() Selector

// Kind is the variant of a Node
type Kind int

const (
	KindDocument Kind = iota
	KindOperation
	KindFragmentDefinition
	KindField
	KindFragmentSpread
	KindInlineFragment
	KindArgument
	KindDirective
	KindVariableDefinition
	KindTypeDefinition
	KindFieldDefinition
	KindEnumValue
	KindDirectiveDefinition
	KindSchemaDefinition
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindOperation:
		return "operation"
	case KindFragmentDefinition:
		return "fragment_definition"
	case KindField:
		return "field"
	case KindFragmentSpread:
		return "fragment_spread"
	case KindInlineFragment:
		return "inline_fragment"
	case KindArgument:
		return "argument"
	case KindDirective:
		return "directive"
	case KindVariableDefinition:
		return "variable_definition"
	case KindTypeDefinition:
		return "type_definition"
	case KindFieldDefinition:
		return "field_definition"
	case KindEnumValue:
		return "enum_value"
	case KindDirectiveDefinition:
		return "directive_definition"
	case KindSchemaDefinition:
		return "schema_definition"
	default:
		return "unknown"
	}
}

// Node is one element of a parsed document. Nodes returned by a selector
// are shared with its parse memo and must not be modified.
type Node struct {
	Kind          Kind
	Name          string
	Alias         string
	Value         string // Argument value, variable default
	TypeCondition string // Fragment and inline fragment type condition
	Line          int
	Column        int
	Path          string // Slash separated labels from the document root

	attrs    map[string]string
	parent   *Node
	children []*Node
	order    int
}

// Parent returns the enclosing node, nil for the document root
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the direct children in document order
func (n *Node) Children() []*Node {
	return n.children
}

// Attr returns a predicate attribute: name, alias, type, value, on or kind
func (n *Node) Attr(key string) string {
	switch key {
	case "name":
		return n.Name
	case "alias":
		return n.Alias
	case "value":
		return n.Value
	case "on":
		return n.TypeCondition
	}
	return n.attrs[key]
}
