// ABOUTME: Path evaluation over the selector node tree
// ABOUTME: Applies axes, name tests and predicates, then unions alternatives

package selector

import (
	"sort"
	"strconv"

	"github.com/nainya/sectionquery/pkg/expr"
)

const positionKey = "position"

// evaluate runs every path from the root and returns the de-duplicated
// union in document order
func evaluate(root *Node, paths []expr.Path) []*Node {
	seen := make(map[*Node]bool)
	var out []*Node
	for _, p := range paths {
		for _, n := range evaluatePath(root, p) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sortByOrder(out)
	return out
}

func evaluatePath(root *Node, p expr.Path) []*Node {
	ctx := []*Node{root}
	for _, step := range p.Steps {
		var next []*Node
		seen := make(map[*Node]bool)
		for _, n := range ctx {
			for _, m := range applyStep(n, step) {
				if !seen[m] {
					seen[m] = true
					next = append(next, m)
				}
			}
		}
		sortByOrder(next)
		ctx = next
		if len(ctx) == 0 {
			return nil
		}
	}
	return ctx
}

func applyStep(n *Node, step expr.Step) []*Node {
	var candidates []*Node
	switch step.Axis {
	case expr.AxisChild:
		candidates = n.children
	case expr.AxisDescendant:
		candidates = descendants(n)
	case expr.AxisParent:
		if n.parent != nil {
			candidates = []*Node{n.parent}
		}
	case expr.AxisSelf:
		candidates = []*Node{n}
	}

	var matched []*Node
	for _, c := range candidates {
		if matches(step.Component, c) {
			matched = append(matched, c)
		}
	}

	if pos, ok := step.Component.Attributes[positionKey]; ok {
		i, err := strconv.Atoi(pos)
		if err != nil || i < 1 || i > len(matched) {
			return nil
		}
		return matched[i-1 : i]
	}
	return matched
}

func descendants(n *Node) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(x *Node) {
		for _, c := range x.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}

func matches(c expr.Component, n *Node) bool {
	if !matchesName(c, n) {
		return false
	}
	for k, v := range c.Attributes {
		if k == positionKey {
			continue
		}
		got := n.Attr(k)
		if v == "" {
			if got == "" {
				return false
			}
			continue
		}
		if got != v {
			return false
		}
	}
	return true
}

func matchesName(c expr.Component, n *Node) bool {
	if c.IsWildcard() && c.Kind == expr.KindField {
		return true
	}
	name := func() bool {
		return c.IsWildcard() || n.Name == c.Name
	}

	switch c.Kind {
	case expr.KindOperation:
		return matchesKeyword(c.Name, n)

	case expr.KindFragment:
		switch {
		case !c.IsSpread():
			return n.Kind == KindFragmentDefinition
		case c.Name != "":
			return n.Kind == KindFragmentSpread && n.Name == c.Name
		default:
			return n.Kind == KindInlineFragment
		}

	case expr.KindDirective:
		return n.Kind == KindDirective && name()
	case expr.KindArgument:
		return n.Kind == KindArgument && name()
	case expr.KindVariable:
		return n.Kind == KindVariableDefinition && name()
	case expr.KindAlias:
		return n.Kind == KindField && n.Alias != "" && (c.IsWildcard() || n.Alias == c.Name)

	case expr.KindField:
		switch n.Kind {
		case KindField:
			return n.Name == c.Name || n.Alias == c.Name
		case KindFieldDefinition, KindEnumValue:
			return n.Name == c.Name
		}
	}
	return false
}

func matchesKeyword(keyword string, n *Node) bool {
	switch keyword {
	case "operation":
		return n.Kind == KindOperation
	case "query", "mutation", "subscription":
		return n.Kind == KindOperation && n.attrs["type"] == keyword
	case "schema":
		return n.Kind == KindSchemaDefinition
	case "directive":
		return n.Kind == KindDirectiveDefinition
	default:
		return n.Kind == KindTypeDefinition && n.attrs["kind"] == keyword
	}
}

func sortByOrder(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].order < nodes[j].order
	})
}
