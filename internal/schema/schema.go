// Package schema reduces JSON-Schema (draft-07) tool parameter schemas to
// the subset Gemini's function-declaration validator accepts. The rules
// are spec.md §4.1, applied as targeted field surgery in the teacher's
// style (see internal/translator/gemini-cli/claude/code/cli_cc_request.go's
// `walk` helper) generalized from "delete a couple of keys" to the full
// $ref/allOf/oneOf/union-type/const/enum rule set.
package schema

import "fmt"

// forbidden lists the keywords rule 7 requires dropping from output.
var forbidden = map[string]bool{
	"exclusiveMinimum":     true,
	"exclusiveMaximum":     true,
	"propertyNames":        true,
	"minProperties":        true,
	"maxProperties":        true,
	"default":              true,
	"$schema":              true,
	"$id":                  true,
	"additionalProperties": true,
	"title":                true,
	"examples":             true,
	"definitions":          true,
}

// Normalize reduces an arbitrary JSON-Schema fragment to the Gemini-accepted
// subset. definitions is the root schema's `definitions` map (or nil),
// consulted when resolving `$ref`.
func Normalize(fragment any, definitions map[string]any) any {
	return normalize(fragment, definitions)
}

// NormalizeSchema is the top-level entry point: it pulls `definitions` out
// of the root fragment itself (the common case for a tool's `parameters`
// schema) before recursing.
func NormalizeSchema(fragment any) any {
	obj, ok := fragment.(map[string]any)
	if !ok {
		return normalize(fragment, nil)
	}
	var definitions map[string]any
	if d, ok := obj["definitions"].(map[string]any); ok {
		definitions = d
	}
	return normalize(fragment, definitions)
}

func normalize(fragment any, definitions map[string]any) any {
	switch v := fragment.(type) {
	case map[string]any:
		return normalizeObject(v, definitions)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item, definitions)
		}
		return out
	default:
		// Rule 8: non-object, non-array inputs pass through unchanged.
		return v
	}
}

func normalizeObject(obj map[string]any, definitions map[string]any) any {
	// Rule 1: inline $ref before anything else — the resolved fragment
	// replaces this node entirely.
	if ref, ok := obj["$ref"].(string); ok {
		resolved := resolveRef(ref, definitions)
		return normalize(resolved, definitions)
	}

	// Rule 2: merge allOf members into the surrounding object, last-writer
	// wins, before normalizing the merged result.
	if allOf, ok := obj["allOf"].([]any); ok {
		merged := map[string]any{}
		for k, val := range obj {
			if k == "allOf" {
				continue
			}
			merged[k] = val
		}
		for _, member := range allOf {
			if m, ok := member.(map[string]any); ok {
				resolved := normalize(m, definitions)
				if rm, ok := resolved.(map[string]any); ok {
					for k, val := range rm {
						merged[k] = val
					}
				}
			}
		}
		return normalizeObject(merged, definitions)
	}

	// Rule 5: const collapses to a single-element enum.
	if constVal, ok := obj["const"]; ok {
		out := map[string]any{
			"type": primitiveType(constVal),
			"enum": []any{stringify(constVal)},
		}
		return finishObject(out)
	}

	// Rule 4: oneOf/anyOf.
	if members, ok := firstOf(obj, "oneOf", "anyOf"); ok {
		out := unionMembers(members, definitions)
		for k, v := range obj {
			if k == "oneOf" || k == "anyOf" {
				continue
			}
			if _, isOut := out[k]; !isOut {
				out[k] = normalize(v, definitions)
			}
		}
		return finishObject(out)
	}

	out := map[string]any{}
	nullable := false
	for k, v := range obj {
		if forbidden[k] {
			continue
		}
		switch k {
		case "type":
			var typeNullable bool
			out["type"], typeNullable = normalizeType(v)
			nullable = nullable || typeNullable
		case "nullable":
			if b, ok := v.(bool); ok {
				nullable = nullable || b
			}
		case "enum":
			// Rule 6: force type=string, stringify every value.
			out["type"] = "string"
			out["enum"] = stringifyEnum(v)
		default:
			out[k] = normalize(v, definitions)
		}
	}
	if nullable {
		out["nullable"] = true
	}
	return finishObject(out)
}

// finishObject applies any normalizer-wide cleanup before returning.
func finishObject(out map[string]any) map[string]any {
	if nv, ok := out["nullable"]; ok {
		if b, ok := nv.(bool); !ok || !b {
			delete(out, "nullable")
		}
	}
	return out
}

func firstOf(obj map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if arr, ok := obj[k].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

// unionMembers implements rule 4: if every member is {const: v}, emit a
// string enum; otherwise emit the first member carrying a `type`, defaulting
// to string.
func unionMembers(members []any, definitions map[string]any) map[string]any {
	allConst := true
	enumVals := make([]any, 0, len(members))
	for _, m := range members {
		obj, ok := m.(map[string]any)
		if !ok {
			allConst = false
			break
		}
		cv, hasConst := obj["const"]
		if !hasConst {
			allConst = false
			break
		}
		enumVals = append(enumVals, stringify(cv))
	}
	if allConst && len(members) > 0 {
		return map[string]any{"type": "string", "enum": enumVals}
	}
	for _, m := range members {
		obj, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if _, hasType := obj["type"]; hasType {
			resolved := normalize(obj, definitions)
			if rm, ok := resolved.(map[string]any); ok {
				return rm
			}
		}
	}
	return map[string]any{"type": "string"}
}

// normalizeType implements rule 3: a union `type` array collapses to a
// single type, with `nullable: true` attached when exactly one non-null
// member remains alongside "null".
func normalizeType(v any) (string, bool) {
	arr, ok := v.([]any)
	if !ok {
		if s, ok := v.(string); ok {
			return s, false
		}
		return "string", false
	}
	if len(arr) == 0 {
		return "string", false
	}
	var nonNull []string
	hasNull := false
	for _, t := range arr {
		s, _ := t.(string)
		if s == "null" {
			hasNull = true
			continue
		}
		nonNull = append(nonNull, s)
	}
	if hasNull && len(nonNull) == 1 {
		return nonNull[0], true
	}
	if len(nonNull) > 0 {
		return nonNull[0], false
	}
	return "string", false
}

func stringifyEnum(v any) []any {
	arr, ok := v.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, len(arr))
	for i, item := range arr {
		out[i] = stringify(item)
	}
	return out
}

// stringify renders a raw JSON value's "string form" for enum/const
// collapsing, matching spec.md rule 5/6.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func primitiveType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "string"
	case float64:
		return "string"
	default:
		return "string"
	}
}

// resolveRef implements rule 1: `#/definitions/X` resolves to a deep copy
// of definitions[X]; unknown refs become an empty schema.
func resolveRef(ref string, definitions map[string]any) map[string]any {
	const prefix = "#/definitions/"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return map[string]any{}
	}
	name := ref[len(prefix):]
	if definitions == nil {
		return map[string]any{}
	}
	def, ok := definitions[name].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return deepCopy(def)
}

func deepCopy(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return t
	}
}
