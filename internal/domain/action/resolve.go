package action

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// reference is the wire form of a cross-step parameter reference.
// A JSON object {"$from": "<step-id>", "path": "a.b.0"} anywhere inside
// a param value is replaced before execution by the value at path inside
// the source step's result.
type reference struct {
	From string
	Path string
}

// ResolveParams returns a copy of params with every reference replaced by
// the referenced value, and the list of references that resolved to null
// (for warn logging). References are resolved recursively through object
// and array params; scalars and reference-free values pass through with
// their exact bytes untouched.
func ResolveParams(params map[string]json.RawMessage, results []StepResult) (map[string]json.RawMessage, []string) {
	if len(params) == 0 {
		return params, nil
	}

	resolved := make(map[string]json.RawMessage, len(params))
	var misses []string

	for key, raw := range params {
		// A value without the marker cannot hold a reference at any depth.
		if !strings.Contains(string(raw), `"$from"`) {
			resolved[key] = raw
			continue
		}

		var node any
		if err := json.Unmarshal(raw, &node); err != nil {
			resolved[key] = raw
			continue
		}

		node, changed := resolveNode(key, node, results, &misses)
		if !changed {
			resolved[key] = raw
			continue
		}

		out, err := json.Marshal(node)
		if err != nil {
			resolved[key] = raw
			continue
		}
		resolved[key] = out
	}

	return resolved, misses
}

// resolveNode rewrites reference objects at any depth of node and reports
// whether anything changed. The label tracks the position inside the
// param for miss reporting.
func resolveNode(label string, node any, results []StepResult, misses *[]string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		if ref, ok := referenceFromNode(n); ok {
			val, found := lookupResult(ref, results)
			if !found {
				*misses = append(*misses, label+" <- "+ref.From+"."+ref.Path)
				return nil, true
			}
			var decoded any
			if err := json.Unmarshal(val, &decoded); err != nil {
				return nil, true
			}
			return decoded, true
		}
		changed := false
		for k, v := range n {
			rv, c := resolveNode(label+"."+k, v, results, misses)
			if c {
				n[k] = rv
				changed = true
			}
		}
		return n, changed

	case []any:
		changed := false
		for i, v := range n {
			rv, c := resolveNode(label+"."+strconv.Itoa(i), v, results, misses)
			if c {
				n[i] = rv
				changed = true
			}
		}
		return n, changed

	default:
		return node, false
	}
}

// referenceFromNode reports whether a decoded object is a reference.
// Only objects with a non-empty "$from" string qualify; everything else
// is a literal.
func referenceFromNode(n map[string]any) (reference, bool) {
	from, _ := n["$from"].(string)
	if from == "" {
		return reference{}, false
	}
	path, _ := n["path"].(string)
	return reference{From: from, Path: path}, true
}

// lookupResult resolves a reference against the completed results.
// The source step must exist and have succeeded; the path walks the
// JSON form of its StepResult (so "data.items.1.id" reaches into Data).
func lookupResult(ref reference, results []StepResult) (json.RawMessage, bool) {
	r := ResultByStep(results, ref.From)
	if r == nil || !r.Success {
		return nil, false
	}

	// Round-trip through JSON so struct fields and typed Data values
	// walk uniformly as maps and slices.
	encoded, err := json.Marshal(r)
	if err != nil {
		return nil, false
	}
	var root any
	if err := json.Unmarshal(encoded, &root); err != nil {
		return nil, false
	}

	cur := root
	if ref.Path != "" {
		for _, seg := range strings.Split(ref.Path, ".") {
			cur, err = descend(cur, seg)
			if err != nil {
				return nil, false
			}
		}
	}

	out, err := json.Marshal(cur)
	if err != nil {
		return nil, false
	}
	return out, true
}

// descend walks one path segment: a map key or an array index.
func descend(cur any, seg string) (any, error) {
	switch node := cur.(type) {
	case map[string]any:
		v, ok := node[seg]
		if !ok {
			return nil, errPathMiss
		}
		return v, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(node) {
			return nil, errPathMiss
		}
		return node[idx], nil
	default:
		return nil, errPathMiss
	}
}

var errPathMiss = errors.New("path segment not found")
