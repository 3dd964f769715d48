package providers

import "encoding/json"

// idPaths is the ordered list of locations a provider message id may appear
// at in a send response. First non-empty result wins. Data-driven so new
// providers extend the list instead of branching.
var idPaths = [][]string{
	{"key", "id"},
	{"data", "key", "id"},
	{"messages", "0", "id"},
	{"messageId"},
	{"keyId"},
	{"id"},
	{"sid"},
}

// ExtractMessageID walks the known paths over a polymorphic provider response.
func ExtractMessageID(raw []byte) string {
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return ""
	}
	for _, path := range idPaths {
		if v, ok := walk(tree, path); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func walk(node any, path []string) (any, bool) {
	for _, key := range path {
		switch t := node.(type) {
		case map[string]any:
			v, ok := t[key]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			if key != "0" || len(t) == 0 {
				return nil, false
			}
			node = t[0]
		default:
			return nil, false
		}
	}
	return node, true
}
