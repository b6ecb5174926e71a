package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

func isYAML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// coerceToJSONBytes turns a YAML document into JSON so both formats go
// through the same strict decoder. JSON input is returned unchanged.
func coerceToJSONBytes(name string, data []byte) ([]byte, string, error) {
	if !isYAML(name) {
		return data, "json", nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml: %w", err)
	}
	doc = stringKeys(doc)
	quoteEventIDs(doc)

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml to json: %w", err)
	}
	return out, "yaml", nil
}

func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	}
	return in
}

// quoteEventIDs lets `id: 1` stand for `id: "1"`; YAML would otherwise hand
// the decoder a number.
func quoteEventIDs(doc any) {
	root, ok := doc.(map[string]any)
	if !ok {
		return
	}
	events, _ := root["events"].([]any)
	for _, e := range events {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		switch id := m["id"].(type) {
		case int, int64, uint64, float64:
			m["id"] = fmt.Sprint(id)
		}
	}
}
