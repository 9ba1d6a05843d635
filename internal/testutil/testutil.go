// Package testutil holds fixtures shared by package and integration tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"GoRowSearch/internal/index"
)

// WithTempDir creates a temporary directory, calls fn with its path,
// and cleans up afterwards.
func WithTempDir(t *testing.T, fn func(dir string)) {
	t.Helper()
	dir := t.TempDir()
	fn(dir)
}

// RowSchema returns a schema with one field of every searchable type.
func RowSchema() *index.Schema {
	return &index.Schema{
		Version:         1,
		CreatedAt:       time.Now(),
		DefaultAnalyzer: index.AnalyzerStandard,
		Fields: []index.FieldDef{
			{Name: "title", Type: index.FieldTypeText, Analyzer: index.AnalyzerStandard, Stored: true, Indexed: true},
			{Name: "status", Type: index.FieldTypeKeyword, Stored: true, Indexed: true},
			{Name: "tags", Type: index.FieldTypeKeyword, Stored: true, Indexed: true, MultiValued: true},
			{Name: "price", Type: index.FieldTypeNumeric, Stored: true, Indexed: true},
			{Name: "location", Type: index.FieldTypeGeoPoint, Stored: true, Indexed: true},
			{Name: "notes", Type: index.FieldTypeStoredOnly, Stored: true},
		},
	}
}

// WideSchema returns a schema with many text fields for stress testing.
func WideSchema() *index.Schema {
	s := &index.Schema{
		Version:         1,
		CreatedAt:       time.Now(),
		DefaultAnalyzer: index.AnalyzerStandard,
	}
	for i := 0; i < 50; i++ {
		s.Fields = append(s.Fields, index.FieldDef{
			Name:    "field_" + string(rune('a'+i%26)) + string(rune('0'+i/26)),
			Type:    index.FieldTypeText,
			Stored:  i%3 == 0,
			Indexed: true,
		})
	}
	return s
}

// Row is a fixture row.
type Row struct {
	Key     string
	Version uint64
	Fields  map[string]any
}

// SampleRows returns five rows, three of them with status "active".
func SampleRows() []Row {
	return []Row{
		{Key: "row-1", Version: 1, Fields: map[string]any{
			"title":    "Introduction to Search Engines",
			"status":   "active",
			"tags":     []any{"search", "tutorial"},
			"price":    10.0,
			"location": map[string]any{"lat": 40.4168, "lon": -3.7038},
		}},
		{Key: "row-2", Version: 1, Fields: map[string]any{
			"title":    "Advanced Query Processing",
			"status":   "archived",
			"tags":     []any{"search", "advanced"},
			"price":    25.0,
			"location": map[string]any{"lat": 48.8566, "lon": 2.3522},
		}},
		{Key: "row-3", Version: 1, Fields: map[string]any{
			"title":    "Building an Inverted Index",
			"status":   "active",
			"tags":     []any{"indexing", "tutorial"},
			"price":    5.0,
			"location": map[string]any{"lat": 41.3874, "lon": 2.1686},
		}},
		{Key: "row-4", Version: 1, Fields: map[string]any{
			"title":  "BM25 Scoring Algorithm",
			"status": "active",
			"tags":   []any{"scoring"},
			"price":  40.0,
		}},
		{Key: "row-5", Version: 1, Fields: map[string]any{
			"title":    "Fuzzy Search with Levenshtein Automata",
			"status":   "draft",
			"tags":     []any{"search", "fuzzy"},
			"location": map[string]any{"lat": 51.5074, "lon": -0.1278},
		}},
	}
}

// Upserter is anything rows can be written to: an index or a store.
type Upserter interface {
	Upsert(key string, version uint64, fields map[string]any) error
}

// Load writes rows to each target.
func Load(t *testing.T, rows []Row, targets ...Upserter) {
	t.Helper()
	for _, target := range targets {
		for _, r := range rows {
			if err := target.Upsert(r.Key, r.Version, r.Fields); err != nil {
				t.Fatalf("Upsert(%s): %v", r.Key, err)
			}
		}
	}
}

// Putter is a versioned row store.
type Putter interface {
	Put(ctx context.Context, key string, fields map[string]any) (uint64, error)
}

// Seed writes rows to the store and indexes each at the version the store
// assigned, leaving the two in sync.
func Seed(t *testing.T, rows []Row, p Putter, ix Upserter) {
	t.Helper()
	for _, r := range rows {
		v, err := p.Put(context.Background(), r.Key, r.Fields)
		if err != nil {
			t.Fatalf("Put(%s): %v", r.Key, err)
		}
		if err := ix.Upsert(r.Key, v, r.Fields); err != nil {
			t.Fatalf("Upsert(%s): %v", r.Key, err)
		}
	}
}

// WriteSchemaFile saves s into dir and returns the file path.
func WriteSchemaFile(t *testing.T, dir string, s *index.Schema) string {
	t.Helper()
	path := filepath.Join(dir, "schema.json")
	if err := index.SaveSchema(path, s); err != nil {
		t.Fatalf("SaveSchema: %v", err)
	}
	return path
}
