package content

import (
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	contentKey    = "content"
	contentPrefix = contentKey + "."
)

// Payload is a mutation payload in canonical shape.
type Payload struct {
	// Content holds every content field, slide-specific ones included.
	Content map[string]any
	// Rest holds root-level keys that are neither content channels nor legacy slide fields.
	Rest map[string]any
	// Deprecated lists the legacy root-level fields that were folded into Content.
	Deprecated []string
}

// Has reports whether field carries a non-blank string value.
func (p Payload) Has(field string) bool {
	return present(p.Content, field)
}

// Normalize folds the three input channels for content fields into one
// nested content map. A dotted key ("content.full_text") wins over the nested
// content map, which wins over a legacy root-level key. String values are
// NFC-normalized. Normalize never fails.
func Normalize(raw map[string]any) Payload {
	p := Payload{
		Content: map[string]any{},
		Rest:    map[string]any{},
	}

	var nested map[string]any
	dotted := map[string]any{}
	for k, v := range raw {
		switch {
		case k == contentKey:
			if m, ok := v.(map[string]any); ok {
				nested = m
			}
		case strings.HasPrefix(k, contentPrefix) && len(k) > len(contentPrefix):
			dotted[strings.TrimPrefix(k, contentPrefix)] = v
		case isSlideField(k):
			p.Content[k] = canonicalValue(v)
			p.Deprecated = append(p.Deprecated, k)
		default:
			p.Rest[k] = v
		}
	}
	for k, v := range nested {
		p.Content[k] = canonicalValue(v)
	}
	for k, v := range dotted {
		p.Content[k] = canonicalValue(v)
	}

	sort.Strings(p.Deprecated)
	for _, f := range p.Deprecated {
		slog.Warn("deprecated root-level content field", "field", f)
	}
	return p
}

func isSlideField(k string) bool {
	for _, f := range SlideFields {
		if k == f {
			return true
		}
	}
	return false
}

func canonicalValue(v any) any {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = canonicalValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalValue(e)
		}
		return out
	default:
		return v
	}
}

func present(content map[string]any, field string) bool {
	s, ok := content[field].(string)
	return ok && strings.TrimSpace(s) != ""
}
