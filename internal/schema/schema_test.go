package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

// TestNormalize_S5 exercises spec.md §8 scenario S5 verbatim.
func TestNormalize_S5(t *testing.T) {
	input := parse(t, `{
		"type":"object",
		"properties":{
			"x":{"type":["string","null"]},
			"y":{"oneOf":[{"const":"a"},{"const":"b"}]}
		},
		"$schema":"http://json-schema.org/draft-07/schema#",
		"definitions":{"Unused":{"type":"string"}}
	}`)

	got := NormalizeSchema(input)

	want := parse(t, `{
		"type":"object",
		"properties":{
			"x":{"type":"string","nullable":true},
			"y":{"type":"string","enum":["a","b"]}
		}
	}`)

	require.Equal(t, want, got)
}

// TestNormalize_Idempotent checks the testable property in spec.md §8
// invariant 5 / §4.1: applying the normalizer twice equals applying it once.
func TestNormalize_Idempotent(t *testing.T) {
	input := parse(t, `{
		"type":"object",
		"properties":{
			"mode":{"enum":["a","b",1]},
			"nested":{"allOf":[{"type":"string"},{"minLength":1}]},
			"union":{"anyOf":[{"type":"integer"},{"type":"string"}]}
		},
		"additionalProperties": false,
		"title": "root"
	}`)

	once := NormalizeSchema(input)
	twice := NormalizeSchema(once)

	require.Equal(t, once, twice)
}

// TestNormalize_NoForbiddenKeywords checks spec.md §8 invariant 3.
func TestNormalize_NoForbiddenKeywords(t *testing.T) {
	input := parse(t, `{
		"type":"object",
		"exclusiveMinimum": 1,
		"exclusiveMaximum": 10,
		"propertyNames": {"pattern": "^x"},
		"minProperties": 1,
		"maxProperties": 2,
		"default": {},
		"$schema": "x",
		"$id": "y",
		"additionalProperties": false,
		"title": "t",
		"examples": [1,2],
		"definitions": {"A": {"type": "string"}},
		"properties": {
			"child": {"$schema": "nested-schema", "type": "string"}
		}
	}`)

	got := NormalizeSchema(input)
	assertNoForbiddenKeys(t, got)
}

func assertNoForbiddenKeys(t *testing.T, v any) {
	t.Helper()
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			if forbidden[k] {
				t.Fatalf("forbidden keyword %q present in normalized schema", k)
			}
			assertNoForbiddenKeys(t, val)
		}
	case []any:
		for _, item := range x {
			assertNoForbiddenKeys(t, item)
		}
	}
}

func TestNormalize_RefInlining(t *testing.T) {
	input := parse(t, `{
		"definitions": {"Color": {"type": "string", "enum": ["red", "blue"]}},
		"type": "object",
		"properties": {"c": {"$ref": "#/definitions/Color"}, "u": {"$ref": "#/definitions/Missing"}}
	}`)

	got := NormalizeSchema(input)
	want := parse(t, `{
		"type": "object",
		"properties": {"c": {"type": "string", "enum": ["red", "blue"]}, "u": {}}
	}`)
	require.Equal(t, want, got)
}

func TestNormalize_NonObjectPassThrough(t *testing.T) {
	require.Equal(t, "hello", NormalizeSchema("hello"))
	require.Equal(t, float64(3), NormalizeSchema(float64(3)))
	require.Nil(t, NormalizeSchema(nil))
}
