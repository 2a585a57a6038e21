package engine

import (
	"regexp"
	"strings"
	"sync"

	"mercator-hq/tribune/pkg/policy/ast"
)

// greater reports a > b. Values of different kinds are unordered.
func greater(a, b ast.Value) bool {
	order, ordered := ast.Compare(a, b)
	return ordered && order > 0
}

// greaterOrEqual reports a >= b. Unordered values fall back to equality.
func greaterOrEqual(a, b ast.Value) bool {
	order, ordered := ast.Compare(a, b)
	if !ordered {
		return ast.ValuesEqual(a, b)
	}
	return order >= 0
}

// contains checks substring or list membership. Other kinds never contain.
func contains(haystack, needle ast.Value) bool {
	switch h := haystack.(type) {
	case ast.String:
		n, ok := needle.(ast.String)
		return ok && strings.Contains(string(h), string(n))
	case ast.List:
		return ast.ListContains(h, needle)
	default:
		return false
	}
}

func hasPrefix(v ast.Value, prefix string) bool {
	s, ok := v.(ast.String)
	return ok && strings.HasPrefix(string(s), prefix)
}

func hasSuffix(v ast.Value, suffix string) bool {
	s, ok := v.(ast.String)
	return ok && strings.HasSuffix(string(s), suffix)
}

// patternCache memoizes compiled Matches patterns.
type patternCache struct {
	compiled sync.Map // string -> *regexp.Regexp
}

func newPatternCache() *patternCache {
	return &patternCache{}
}

func (c *patternCache) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.compiled.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := c.compiled.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}
