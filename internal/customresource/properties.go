package customresource

import (
	"encoding/json"
	"fmt"
)

// Properties is the text view of a resource's ResourceProperties after
// coercion. CloudFormation's ServiceToken is never included.
type Properties map[string]string

// Get returns the named property, or "" when absent.
func (p Properties) Get(name string) string {
	return p[name]
}

// Has reports whether the property is present and non-empty.
func (p Properties) Has(name string) bool {
	return p[name] != ""
}

// StringMap decodes a KindJSON property into string pairs. Both a plain
// object and CloudFormation's [{"Key":..,"Value":..}] tag list are accepted.
func (p Properties) StringMap(name string) (map[string]string, error) {
	v, ok := p[name]
	if !ok || v == "" {
		return nil, nil
	}

	var obj map[string]string
	if err := json.Unmarshal([]byte(v), &obj); err == nil {
		return obj, nil
	}

	var pairs []struct {
		Key   string `json:"Key"`
		Value string `json:"Value"`
	}
	if err := json.Unmarshal([]byte(v), &pairs); err != nil {
		return nil, fmt.Errorf("%s must be an object of strings or a Key/Value list", name)
	}
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		out[kv.Key] = kv.Value
	}
	return out, nil
}
