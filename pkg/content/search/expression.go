package search

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"mercator-hq/holds/pkg/content"
)

// Expression is a parsed search query. Terms with different keys are
// combined with AND; repeated keys are combined with OR.
//
// Supported terms:
//
//	path:<glob>     doublestar pattern over the node path (e.g. /cases/42/**)
//	name:<glob>     doublestar pattern over the node name (e.g. *.pdf)
//	type:<kind>     record, container or other
//	parent:<ref>    direct children of ref
//	ref:<ref>       the node itself
//
// The empty expression matches every node.
type Expression struct {
	Paths   []string
	Names   []string
	Kinds   []content.Kind
	Parents []content.NodeRef
	Refs    []content.NodeRef
}

// Parse parses a whitespace-separated list of key:value terms.
func Parse(query string) (*Expression, error) {
	expr := &Expression{}
	for _, term := range strings.Fields(query) {
		key, value, ok := strings.Cut(term, ":")
		if !ok || value == "" {
			return nil, fmt.Errorf("invalid term %q: expected key:value", term)
		}

		switch strings.ToLower(key) {
		case "path":
			if !doublestar.ValidatePattern(value) {
				return nil, fmt.Errorf("invalid path pattern %q", value)
			}
			expr.Paths = append(expr.Paths, value)
		case "name":
			if !doublestar.ValidatePattern(value) {
				return nil, fmt.Errorf("invalid name pattern %q", value)
			}
			expr.Names = append(expr.Names, value)
		case "type":
			kind := content.Kind(strings.ToLower(value))
			if !kind.IsValid() {
				return nil, fmt.Errorf("invalid type %q", value)
			}
			expr.Kinds = append(expr.Kinds, kind)
		case "parent":
			expr.Parents = append(expr.Parents, content.NodeRef(value))
		case "ref":
			expr.Refs = append(expr.Refs, content.NodeRef(value))
		default:
			return nil, fmt.Errorf("unknown search key %q", key)
		}
	}
	return expr, nil
}

// Match reports whether node satisfies every term group of the expression.
func (e *Expression) Match(node *content.Node) bool {
	if len(e.Paths) > 0 && !anyGlob(e.Paths, node.Path) {
		return false
	}
	if len(e.Names) > 0 && !anyGlob(e.Names, node.Name) {
		return false
	}
	if len(e.Kinds) > 0 && !contains(e.Kinds, node.Kind) {
		return false
	}
	if len(e.Parents) > 0 && !contains(e.Parents, node.Parent) {
		return false
	}
	if len(e.Refs) > 0 && !contains(e.Refs, node.Ref) {
		return false
	}
	return true
}

func anyGlob(patterns []string, target string) bool {
	for _, p := range patterns {
		// Patterns are validated at parse time, so the error is always nil.
		if ok, _ := doublestar.Match(p, target); ok {
			return true
		}
	}
	return false
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
