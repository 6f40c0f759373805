package character

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prefix maps a literal leading token such as "(cheerful)" to a voice style.
type Prefix struct {
	Token string
	Style string
}

// PrefixTable is an ordered prefix list. It decodes from a JSON object or a
// YAML mapping and keeps the order the entries were written in, which
// decides which prefix wins when several match.
type PrefixTable []Prefix

// Match returns the first entry whose token starts text.
func (t PrefixTable) Match(text string) (Prefix, bool) {
	for _, p := range t {
		if p.Token != "" && strings.HasPrefix(text, p.Token) {
			return p, true
		}
	}
	return Prefix{}, false
}

// UnmarshalJSON walks the object token by token to keep key order.
func (t *PrefixTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*t = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("supported_prefixes: expected object, got %v", tok)
	}

	var out PrefixTable
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("supported_prefixes: expected string key, got %v", keyTok)
		}
		var style string
		if err := dec.Decode(&style); err != nil {
			return fmt.Errorf("supported_prefixes[%s]: %w", key, err)
		}
		out = append(out, Prefix{Token: key, Style: style})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = out
	return nil
}

// UnmarshalYAML reads a mapping node in document order.
func (t *PrefixTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*t = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("supported_prefixes: expected mapping at line %d", node.Line)
	}

	out := make(PrefixTable, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var style string
		if err := node.Content[i+1].Decode(&style); err != nil {
			return fmt.Errorf("supported_prefixes[%s]: %w", key, err)
		}
		out = append(out, Prefix{Token: key, Style: style})
	}
	*t = out
	return nil
}
