package pipeline

import (
	"html"
	"regexp"
	"strings"
	"sync"
)

// Middleware transforms a Record and returns the (possibly modified)
// result; returning nil drops the record from the pipeline. Grounded on
// the teacher's pipeline.Middleware chain, retargeted from types.Item at
// the generic Record type.
type Middleware interface {
	Name() string
	Process(record *Record) (*Record, error)
}

// TrimMiddleware trims whitespace from every string field.
type TrimMiddleware struct{}

func (TrimMiddleware) Name() string { return "trim" }

func (TrimMiddleware) Process(r *Record) (*Record, error) {
	for k, v := range r.Fields {
		if s, ok := v.(string); ok {
			r.Fields[k] = strings.TrimSpace(s)
		}
	}
	return r, nil
}

// HTMLSanitizeMiddleware strips HTML tags and decodes entities in every
// string field.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{stripRe: regexp.MustCompile(`<[^>]*>`)}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(r *Record) (*Record, error) {
	for k, v := range r.Fields {
		s, ok := v.(string)
		if !ok {
			continue
		}
		cleaned := html.UnescapeString(m.stripRe.ReplaceAllString(s, ""))
		r.Fields[k] = strings.Join(strings.Fields(cleaned), " ")
	}
	return r, nil
}

// RequiredFieldsMiddleware drops records missing any of the named
// fields, or where the field is present but an empty string.
type RequiredFieldsMiddleware struct {
	Fields []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(r *Record) (*Record, error) {
	for _, field := range m.Fields {
		v, ok := r.Fields[field]
		if !ok {
			return nil, nil
		}
		if s, ok := v.(string); ok && s == "" {
			return nil, nil
		}
	}
	return r, nil
}

// DedupMiddleware drops records whose Checksum has already been seen.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{seen: make(map[string]struct{})}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(r *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.seen[r.Checksum]; exists {
		return nil, nil
	}
	m.seen[r.Checksum] = struct{}{}
	return r, nil
}
