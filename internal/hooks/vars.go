package hooks

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// substitute replaces every {var} or {nested.path} placeholder in command
// with its string value from vars, per spec.md §4.10. Unresolved
// placeholders are left verbatim.
func substitute(command string, vars map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(command, func(match string) string {
		path := match[1 : len(match)-1]
		val, ok := lookupPath(vars, path)
		if !ok {
			return match
		}
		return fmt.Sprint(val)
	})
}

// lookupPath resolves a dotted path against a flat or nested map[string]any.
func lookupPath(vars map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = vars
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// matchesFilter reports whether hook's stage/tool filters (if any) match
// the given lifecycle vars. A filter matches only on exact equality.
func matchesFilter(h Hook, vars map[string]any) bool {
	if h.Stage != "" {
		name, _ := vars["stage_name"].(string)
		if name != h.Stage {
			return false
		}
	}
	if h.Tool != "" {
		name, _ := vars["tool_name"].(string)
		if name != h.Tool {
			return false
		}
	}
	return true
}
