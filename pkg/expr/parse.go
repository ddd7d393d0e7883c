// ABOUTME: Tokenizer for XPath-like path expressions
// ABOUTME: Splits alternatives, steps and predicate blocks without ever failing

package expr

import (
	"strings"
)

// DefaultSection is used when an expression names no definition keyword
const DefaultSection = "query"

// sectionKeywords maps operation/definition keywords to the section tag they live in
var sectionKeywords = map[string]string{
	"query":        "query",
	"mutation":     "mutation",
	"subscription": "subscription",
	"operation":    "query",
	"schema":       "schema",
	"type":         "type",
	"input":        "input",
	"enum":         "enum",
	"scalar":       "scalar",
	"interface":    "interface",
	"union":        "union",
	"directive":    "directive",
}

const fragmentKeyword = "fragment"

var axisPrefixes = []struct {
	prefix string
	axis   Axis
}{
	{"descendant-or-self::", AxisDescendant},
	{"descendant::", AxisDescendant},
	{"child::", AxisChild},
	{"parent::", AxisParent},
	{"self::", AxisSelf},
}

// SectionTag returns the section a name test belongs to, if it is a keyword
func SectionTag(name string) (string, bool) {
	if name == fragmentKeyword {
		return fragmentKeyword, true
	}
	tag, ok := sectionKeywords[name]
	return tag, ok
}

// Parse splits an expression into its alternative paths.
// Segments that cannot be classified are dropped; an empty or
// malformed expression yields no paths.
func Parse(expression string) []Path {
	var paths []Path
	pos := 0
	for _, alt := range splitTopLevel(expression, '|') {
		p, next := parsePath(strings.TrimSpace(alt), pos)
		pos = next
		if len(p.Steps) > 0 {
			paths = append(paths, p)
		}
	}
	return paths
}

func parsePath(s string, pos int) (Path, int) {
	var p Path
	axis := AxisDescendant // bare names search the whole document

	i := 0
	for i < len(s) {
		if s[i] == '/' {
			if i+1 < len(s) && s[i+1] == '/' {
				axis = AxisDescendant
				i += 2
			} else {
				axis = AxisChild
				i++
			}
			continue
		}

		end := segmentEnd(s, i)
		seg := strings.TrimSpace(s[i:end])
		i = end

		if step, ok := parseStep(seg, axis); ok {
			step.Component.Position = pos
			pos++
			p.Steps = append(p.Steps, step)
		}
		axis = AxisChild
	}
	return p, pos
}

// segmentEnd finds the next '/' outside brackets and quotes
func segmentEnd(s string, i int) int {
	depth := 0
	var quote byte
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			if depth > 0 {
				depth--
			}
		case c == '/' && depth == 0:
			return i
		}
	}
	return len(s)
}

func parseStep(seg string, axis Axis) (Step, bool) {
	if seg == "" {
		return Step{}, false
	}

	for _, ap := range axisPrefixes {
		if strings.HasPrefix(seg, ap.prefix) {
			axis = ap.axis
			seg = strings.TrimSpace(seg[len(ap.prefix):])
			break
		}
	}

	switch seg {
	case "..":
		return Step{Axis: AxisParent, Component: Component{Kind: KindField, Name: Wildcard}}, true
	case ".":
		return Step{Axis: AxisSelf, Component: Component{Kind: KindField, Name: Wildcard}}, true
	}

	name := seg
	var attrs map[string]string
	if idx := strings.IndexByte(seg, '['); idx >= 0 {
		name = strings.TrimSpace(seg[:idx])
		attrs = parsePredicates(seg[idx:])
	}

	comp, ok := classify(name)
	if !ok {
		return Step{}, false
	}
	for k, v := range attrs {
		if comp.Attributes == nil {
			comp.Attributes = make(map[string]string, len(attrs))
		}
		comp.Attributes[k] = v
	}
	return Step{Axis: axis, Component: comp}, true
}

// classify applies the ordered heuristics: operation keywords, fragment
// markers, directive sigils, argument/variable markers, aliases, fields.
func classify(name string) (Component, bool) {
	if name == "" {
		return Component{}, false
	}

	if _, ok := sectionKeywords[name]; ok {
		return Component{Kind: KindOperation, Name: name}, true
	}

	if name == fragmentKeyword {
		return Component{Kind: KindFragment, Name: fragmentKeyword}, true
	}
	if strings.HasPrefix(name, MarkerSpread) {
		rest := strings.TrimSpace(name[len(MarkerSpread):])
		if rest == "" {
			return Component{Kind: KindFragment, Marker: MarkerSpread}, true
		}
		if strings.HasPrefix(rest, "on ") {
			typ := strings.TrimSpace(rest[3:])
			if !isName(typ) {
				return Component{}, false
			}
			return Component{
				Kind:       KindFragment,
				Marker:     MarkerSpread,
				Attributes: map[string]string{"on": typ},
			}, true
		}
		if !isName(rest) {
			return Component{}, false
		}
		return Component{Kind: KindFragment, Name: rest, Marker: MarkerSpread}, true
	}

	for _, m := range []struct {
		marker string
		kind   Kind
	}{
		{MarkerDirective, KindDirective},
		{MarkerArgument, KindArgument},
		{MarkerVariable, KindVariable},
		{MarkerAlias, KindAlias},
	} {
		if strings.HasPrefix(name, m.marker) {
			rest := name[len(m.marker):]
			if rest != Wildcard && !isName(rest) {
				return Component{}, false
			}
			return Component{Kind: m.kind, Name: rest, Marker: m.marker}, true
		}
	}

	if name != Wildcard && !isName(name) {
		return Component{}, false
	}
	return Component{Kind: KindField, Name: name}, true
}

// parsePredicates reads one or more [..] blocks; an unterminated block
// and anything after the last block are dropped.
func parsePredicates(s string) map[string]string {
	attrs := make(map[string]string)
	for len(s) > 0 && s[0] == '[' {
		end := closingBracket(s)
		if end < 0 {
			break
		}
		for _, tok := range splitFields(s[1:end]) {
			if tok == "and" || tok == "," {
				continue
			}
			tok = strings.TrimPrefix(tok, "@")
			key, val, hasVal := strings.Cut(tok, "=")
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if !hasVal {
				if isDigits(key) {
					attrs["position"] = key
				} else {
					attrs[key] = ""
				}
				continue
			}
			attrs[key] = unquote(strings.TrimSpace(val))
		}
		s = strings.TrimSpace(s[end+1:])
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func closingBracket(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

// splitFields splits on whitespace outside quotes
func splitFields(s string) []string {
	var out []string
	var quote byte
	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			if start < 0 {
				start = i
			}
		case c == ' ' || c == '\t' || c == ',':
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

// splitTopLevel splits on sep outside brackets and quotes
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// isName reports whether s is a GraphQL name: [_A-Za-z][_0-9A-Za-z]*
func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
