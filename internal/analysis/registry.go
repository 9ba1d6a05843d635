package analysis

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"GoRowSearch/internal/index"
)

var (
	ErrUnknownAnalyzer = errors.New("unknown analyzer")
	ErrAnalyzerExists  = errors.New("analyzer already registered")
)

// Registry maps analyzer names to implementations.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
}

// NewRegistry returns a Registry holding the built-in analyzers.
func NewRegistry() *Registry {
	return &Registry{
		analyzers: map[string]Analyzer{
			index.AnalyzerStandard:   Standard,
			index.AnalyzerWhitespace: Whitespace,
			index.AnalyzerKeyword:    Keyword,
		},
	}
}

// Get returns the analyzer registered under name.
func (r *Registry) Get(name string) (Analyzer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyzers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalyzer, name)
	}
	return a, nil
}

// Register adds a custom analyzer.
func (r *Registry) Register(name string, a Analyzer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.analyzers[name]; exists {
		return fmt.Errorf("%w: %q", ErrAnalyzerExists, name)
	}
	r.analyzers[name] = a
	return nil
}

// Names returns registered analyzer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForField resolves the analyzer a schema assigns to field. Keyword fields
// always use the keyword analyzer.
func (r *Registry) ForField(s *index.Schema, field index.FieldDef) (Analyzer, error) {
	return r.Get(s.AnalyzerFor(field))
}

// FieldTerms analyzes every value of a row field with a and concatenates the
// terms. Keyword fields resolve to the keyword analyzer, so their terms are
// the raw values.
func FieldTerms(a Analyzer, field string, v any) []string {
	var terms []string
	for _, text := range index.TextValues(v) {
		terms = append(terms, Terms(a, field, text)...)
	}
	return terms
}
