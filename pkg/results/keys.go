package results

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// StorageKeyFunc mints a storage key for a new result.
type StorageKeyFunc func() (string, error)

// DefaultStorageKeyFunc returns a random 32-character hex key.
func DefaultStorageKeyFunc() (string, error) {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// StaticKey returns a key function that always returns key.
func StaticKey(key string) StorageKeyFunc {
	return func() (string, error) { return key, nil }
}

// KeyVariables are the values a storage key template may reference, such
// as "flow_run.id" or "parameters[name]".
type KeyVariables map[string]string

// ParameterVariables exposes run parameters to key templates as
// "parameters[<name>]". Strings are used verbatim; other values are JSON
// encoded.
func ParameterVariables(params map[string]any) KeyVariables {
	vars := make(KeyVariables, len(params))
	for name, v := range params {
		if s, ok := v.(string); ok {
			vars["parameters["+name+"]"] = s
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			encoded = []byte(fmt.Sprint(v))
		}
		vars["parameters["+name+"]"] = string(encoded)
	}
	return vars
}

// Merge returns a copy of vars overlaid with other.
func (vars KeyVariables) Merge(other KeyVariables) KeyVariables {
	out := make(KeyVariables, len(vars)+len(other))
	for k, v := range vars {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// RenderStorageKey substitutes "{name}" placeholders in template with vars.
// "{{" and "}}" produce literal braces. Referencing a name missing from
// vars is an error, as is an unterminated placeholder.
func RenderStorageKey(template string, vars KeyVariables) (string, error) {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder in storage key template %q", template)
			}
			name := strings.TrimSpace(template[i+1 : i+1+end])
			value, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("storage key template %q references unknown variable %q (known: %s)",
					template, name, strings.Join(vars.names(), ", "))
			}
			b.WriteString(value)
			i += end + 1
		case c == '}':
			return "", fmt.Errorf("unmatched '}' in storage key template %q", template)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func (vars KeyVariables) names() []string {
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// TemplateKeyFunc renders template with vars each time a key is minted.
func TemplateKeyFunc(template string, vars KeyVariables) StorageKeyFunc {
	return func() (string, error) {
		return RenderStorageKey(template, vars)
	}
}
