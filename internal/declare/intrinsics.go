package declare

import (
	"encoding/json"
	"strings"
)

// Ref refers to another resource's primary value
type Ref struct {
	LogicalID string
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"Ref": r.LogicalID})
}

func (r Ref) MarshalYAML() (interface{}, error) {
	return map[string]string{"Ref": r.LogicalID}, nil
}

// GetAtt refers to a named output attribute of another resource
type GetAtt struct {
	LogicalID string
	Attribute string
}

func (a GetAtt) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]string{"Fn::GetAtt": {a.LogicalID, a.Attribute}})
}

func (a GetAtt) MarshalYAML() (interface{}, error) {
	return map[string][]string{"Fn::GetAtt": {a.LogicalID, a.Attribute}}, nil
}

// Join concatenates literal strings and references
type Join struct {
	Delimiter string
	Values    []interface{}
}

func (j Join) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]interface{}{"Fn::Join": {j.Delimiter, j.Values}})
}

func (j Join) MarshalYAML() (interface{}, error) {
	return map[string][]interface{}{"Fn::Join": {j.Delimiter, j.Values}}, nil
}

// Field is one key of a JSON object whose value may be a reference
type Field struct {
	Key   string
	Value interface{}
}

// JSONObject builds a string value holding a flat JSON object. Literal
// values are escaped. Ref and GetAtt values are resolved by the engine at
// deploy time and placed between quotes unescaped, so they must resolve to
// JSON-safe strings.
func JSONObject(fields ...Field) interface{} {
	var parts []interface{}
	var lit strings.Builder
	lit.WriteString("{")
	for i, f := range fields {
		if i > 0 {
			lit.WriteString(",")
		}
		lit.WriteString(quote(f.Key))
		lit.WriteString(":")
		if s, ok := f.Value.(string); ok {
			lit.WriteString(quote(s))
			continue
		}
		lit.WriteString(`"`)
		parts = append(parts, lit.String(), f.Value)
		lit.Reset()
		lit.WriteString(`"`)
	}
	lit.WriteString("}")

	if len(parts) == 0 {
		return lit.String()
	}
	parts = append(parts, lit.String())
	return Join{Delimiter: "", Values: parts}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// references walks a property value and returns the logical ids it refers to
func references(v interface{}) []string {
	var out []string
	var walk func(interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case Ref:
			out = append(out, t.LogicalID)
		case GetAtt:
			out = append(out, t.LogicalID)
		case Join:
			for _, x := range t.Values {
				walk(x)
			}
		case map[string]interface{}:
			for _, x := range t {
				walk(x)
			}
		case []interface{}:
			for _, x := range t {
				walk(x)
			}
		case []map[string]interface{}:
			for _, x := range t {
				walk(x)
			}
		}
	}
	walk(v)
	return out
}
