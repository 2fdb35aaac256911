package customresource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type a property is coerced to before call parameters are built.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindJSON:
		return "JSON"
	default:
		return "string"
	}
}

// Coercion maps property names to kinds. Unlisted properties are KindString.
type Coercion map[string]Kind

// serviceTokenProperty is injected by CloudFormation into every request.
const serviceTokenProperty = "ServiceToken"

// Apply converts raw ResourceProperties into Properties. CloudFormation
// delivers scalars as strings; nested objects and lists arrive as decoded
// JSON and are re-encoded.
func (c Coercion) Apply(raw map[string]interface{}) (Properties, error) {
	props := make(Properties, len(raw))
	for name, value := range raw {
		if name == serviceTokenProperty || value == nil {
			continue
		}
		text, err := coerce(c[name], value)
		if err != nil {
			return nil, &ValidationError{Field: name, Message: err.Error()}
		}
		props[name] = text
	}
	return props, nil
}

func coerce(kind Kind, value interface{}) (string, error) {
	switch kind {
	case KindBool:
		return coerceBool(value)
	case KindInt:
		return coerceInt(value)
	case KindJSON:
		return coerceJSON(value)
	default:
		return asText(value)
	}
}

func coerceBool(value interface{}) (string, error) {
	if b, ok := value.(bool); ok {
		return strconv.FormatBool(b), nil
	}
	text, err := asText(value)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "1", "yes":
		return "true", nil
	case "false", "0", "no", "":
		return "false", nil
	}
	return "", fmt.Errorf("must be a boolean, got %q", text)
}

func coerceInt(value interface{}) (string, error) {
	text, err := asText(value)
	if err != nil {
		return "", err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return "", fmt.Errorf("must be an integer, got %q", text)
	}
	return strconv.FormatInt(n, 10), nil
}

func coerceJSON(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		if !json.Valid([]byte(s)) {
			return "", fmt.Errorf("must be valid JSON")
		}
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON: %w", err)
	}
	return string(b), nil
}

func asText(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode value: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}
