// ABOUTME: Path expression model for document queries
// ABOUTME: Components, axes, steps and the analysis summary used by the engine

package expr

import "strings"

// Kind classifies a single path component
type Kind int

const (
	KindField Kind = iota
	KindFragment
	KindArgument
	KindDirective
	KindOperation
	KindAlias
	KindVariable
)

// String returns the lowercase name of the kind
func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindFragment:
		return "fragment"
	case KindArgument:
		return "argument"
	case KindDirective:
		return "directive"
	case KindOperation:
		return "operation"
	case KindAlias:
		return "alias"
	case KindVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// Axis is the navigation direction of a step
type Axis int

const (
	AxisChild Axis = iota
	AxisDescendant
	AxisParent
	AxisSelf
)

func (a Axis) String() string {
	switch a {
	case AxisChild:
		return "child"
	case AxisDescendant:
		return "descendant"
	case AxisParent:
		return "parent"
	case AxisSelf:
		return "self"
	default:
		return "unknown"
	}
}

// Sigils and markers recognised in name tests
const (
	MarkerDirective = "@"
	MarkerVariable  = "$"
	MarkerArgument  = "arg:"
	MarkerAlias     = "alias:"
	MarkerSpread    = "..."
	Wildcard        = "*"
)

// Component is one classified segment of a path expression
type Component struct {
	Kind       Kind
	Name       string            // Name without sigil; keyword for operations
	Marker     string            // Sigil the name carried ("@", "$", "arg:", "alias:", "...")
	Position   int               // Ordinal of the component in the expression
	Attributes map[string]string // Parsed predicates
}

// IsWildcard reports whether the component matches any name
func (c Component) IsWildcard() bool {
	return c.Name == Wildcard
}

// IsSpread reports whether the component is a fragment spread or inline fragment
func (c Component) IsSpread() bool {
	return c.Kind == KindFragment && c.Marker == MarkerSpread
}

// Step is a component plus the axis used to reach it
type Step struct {
	Axis      Axis
	Component Component
}

// Path is one alternative of an expression
type Path struct {
	Steps []Step
}

// String renders the path back in canonical form
func (p Path) String() string {
	var b strings.Builder
	for _, s := range p.Steps {
		switch s.Axis {
		case AxisDescendant:
			b.WriteString("//")
		case AxisParent:
			b.WriteString("/..")
			continue
		case AxisSelf:
			b.WriteString("/.")
			continue
		default:
			b.WriteByte('/')
		}
		b.WriteString(s.Component.Marker)
		b.WriteString(s.Component.Name)
	}
	return b.String()
}

// Complexity buckets the weighted expression score
type Complexity int

const (
	Simple Complexity = iota
	Medium
	Complex
	VeryComplex
)

func (c Complexity) String() string {
	switch c {
	case Simple:
		return "simple"
	case Medium:
		return "medium"
	case Complex:
		return "complex"
	default:
		return "very_complex"
	}
}

// Analysis is everything the engine needs to plan a query
type Analysis struct {
	Expression       string
	Paths            []Path
	Components       []Component
	RequiredSections []string // Sorted, never empty
	Predicates       map[string]string
	Complexity       Complexity
	Score            int
	Depth            int
	HasPredicates    bool
	Cacheable        bool
	Parallelizable   bool

	primary string
}

// PrimarySection is the section tag the engine loads for this expression
func (a *Analysis) PrimarySection() string {
	if a.primary == "" {
		return DefaultSection
	}
	return a.primary
}

// Requires reports whether tag is among the required sections
func (a *Analysis) Requires(tag string) bool {
	for _, s := range a.RequiredSections {
		if s == tag {
			return true
		}
	}
	return false
}
