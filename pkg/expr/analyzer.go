// ABOUTME: Path expression analyzer
// ABOUTME: Derives required sections, complexity and cacheability for the engine

package expr

import (
	"regexp"
	"sort"
	"strings"
)

// Complexity weights
const (
	weightPredicate   = 5
	weightFunction    = 3
	weightAlternation = 6
	weightAxis        = 4
	weightWildcard    = 2
	weightDepth       = 3

	maxSimpleDepth = 2
)

// trivialPattern is the fast-path shape: //name or //name/name
var trivialPattern = regexp.MustCompile(`^//[_A-Za-z][_0-9A-Za-z]*(?:/[_A-Za-z][_0-9A-Za-z]*)?$`)

// IsTrivial is the syntactic fast-path test run before any analysis
func IsTrivial(expression string) bool {
	return trivialPattern.MatchString(expression)
}

// FastSectionTag returns the section a trivial expression reads from
// without building a full Analysis. It agrees with Analyze(...).PrimarySection().
func FastSectionTag(expression string) string {
	for _, name := range strings.Split(expression, "/") {
		if tag, ok := SectionTag(name); ok {
			return tag
		}
	}
	return DefaultSection
}

// Analyze parses an expression and derives everything the engine plans with.
// It never fails: malformed input degrades to the default "query" section.
func Analyze(expression string) *Analysis {
	a := &Analysis{
		Expression: expression,
		Paths:      Parse(expression),
		Predicates: make(map[string]string),
	}

	sections := make(map[string]struct{})
	definitions := 0
	for _, p := range a.Paths {
		if len(p.Steps) > a.Depth {
			a.Depth = len(p.Steps)
		}
		for _, s := range p.Steps {
			c := s.Component
			a.Components = append(a.Components, c)
			for k, v := range c.Attributes {
				a.Predicates[k] = v
			}

			tag := sectionFor(c)
			if tag == "" {
				continue
			}
			if _, seen := sections[tag]; !seen && !strings.HasPrefix(tag, fieldTagPrefix) {
				definitions++
				if a.primary == "" {
					a.primary = tag
				}
			}
			sections[tag] = struct{}{}
		}
	}

	if definitions == 0 {
		sections[DefaultSection] = struct{}{}
	}
	for tag := range sections {
		a.RequiredSections = append(a.RequiredSections, tag)
	}
	sort.Strings(a.RequiredSections)

	a.HasPredicates = strings.Contains(expression, "[")
	a.Score = score(expression, a.Depth, a.HasPredicates, hasAxis(a.Paths))
	a.Complexity = classifyScore(a.Score)
	a.Cacheable = IsTrivial(expression)
	a.Parallelizable = len(a.Paths) > 1 || definitions > 1

	return a
}

const fieldTagPrefix = "field:"

// FieldTag is the section tag recorded for a field component
func FieldTag(name string) string {
	return fieldTagPrefix + name
}

func sectionFor(c Component) string {
	switch c.Kind {
	case KindOperation:
		if c.Name == "operation" {
			if t, ok := c.Attributes["type"]; ok {
				if tag, ok := sectionKeywords[t]; ok && (tag == "query" || tag == "mutation" || tag == "subscription") {
					return tag
				}
			}
		}
		return sectionKeywords[c.Name]
	case KindFragment:
		if c.Name == fragmentKeyword && c.Marker == "" {
			return fragmentKeyword
		}
	case KindField:
		if !c.IsWildcard() {
			return FieldTag(c.Name)
		}
	}
	return ""
}

func hasAxis(paths []Path) bool {
	for _, p := range paths {
		for _, s := range p.Steps {
			if s.Axis == AxisParent || s.Axis == AxisSelf {
				return true
			}
		}
	}
	return false
}

func score(expression string, depth int, predicates, axis bool) int {
	s := 0
	if predicates {
		s += weightPredicate
	}
	if strings.Contains(expression, "(") {
		s += weightFunction
	}
	if strings.Contains(expression, "|") {
		s += weightAlternation
	}
	if axis || strings.Contains(expression, "::") {
		s += weightAxis
	}
	if strings.Contains(expression, Wildcard) {
		s += weightWildcard
	}
	if depth > maxSimpleDepth {
		s += weightDepth
	}
	return s
}

func classifyScore(s int) Complexity {
	switch {
	case s <= 2:
		return Simple
	case s <= 5:
		return Medium
	case s <= 10:
		return Complex
	default:
		return VeryComplex
	}
}
