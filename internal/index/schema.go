package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"GoRowSearch/internal/checksum"
	"GoRowSearch/internal/storage"
)

// FieldType is the semantic type of an indexed field.
type FieldType string

// Field type constants.
const (
	FieldTypeText       FieldType = "text"
	FieldTypeKeyword    FieldType = "keyword"
	FieldTypeNumeric    FieldType = "numeric"
	FieldTypeGeoPoint   FieldType = "geo_point"
	FieldTypeGeoShape   FieldType = "geo_shape"
	FieldTypeStoredOnly FieldType = "stored_only"
)

// Analyzer constants.
const (
	AnalyzerStandard   = "standard"
	AnalyzerWhitespace = "whitespace"
	AnalyzerKeyword    = "keyword"
)

// Schema limits.
const (
	MaxFieldsPerSchema = 256
	MaxFieldNameLength = 255
)

// Reserved field names that cannot be used in user schemas.
var reservedFieldNames = map[string]bool{
	"_id":      true,
	"_score":   true,
	"_source":  true,
	"_version": true,
}

var (
	ErrSchemaCorrupt          = errors.New("schema checksum verification failed")
	ErrSchemaFieldLimit       = errors.New("schema exceeds maximum field count")
	ErrSchemaReservedField    = errors.New("field name is reserved")
	ErrSchemaDuplicateField   = errors.New("duplicate field name")
	ErrSchemaInvalidType      = errors.New("invalid field type")
	ErrSchemaInvalidAnalyzer  = errors.New("invalid analyzer")
	ErrSchemaFieldNameTooLong = errors.New("field name exceeds maximum length")
	ErrSchemaMissingAnalyzer  = errors.New("text field requires an analyzer")
	ErrSchemaEmptyFieldName   = errors.New("field name is empty")
)

// Provider resolves field names to semantic types. Compilers depend on this
// interface rather than on Schema so any metadata source can back them.
type Provider interface {
	// FieldType returns the semantic type of name, or false if the field is unknown.
	FieldType(name string) (FieldType, bool)

	// Field returns the full definition of name, or false if the field is unknown.
	Field(name string) (FieldDef, bool)

	// AnalyzerFor returns the analyzer name used for a text or keyword field.
	AnalyzerFor(f FieldDef) string
}

// Schema represents the immutable schema definition for an index.
type Schema struct {
	Version         uint32            `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	Fields          []FieldDef        `json:"fields"`
	DefaultAnalyzer string            `json:"default_analyzer"`
	Checksum        checksum.Checksum `json:"checksum,omitempty"`
}

// FieldDef defines a single field in the schema.
type FieldDef struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Analyzer    string    `json:"analyzer,omitempty"`
	Stored      bool      `json:"stored"`
	Indexed     bool      `json:"indexed"`
	MultiValued bool      `json:"multi_valued,omitempty"`
}

// FieldType implements Provider. Stored-only and unindexed fields are not
// searchable and therefore report false.
func (s *Schema) FieldType(name string) (FieldType, bool) {
	f, ok := s.Field(name)
	if !ok {
		return "", false
	}
	return f.Type, true
}

// Field implements Provider.
func (s *Schema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			if !f.Indexed || f.Type == FieldTypeStoredOnly {
				return FieldDef{}, false
			}
			return f, true
		}
	}
	return FieldDef{}, false
}

// AnalyzerFor returns the analyzer name for a field, falling back to the
// schema default and then to the standard analyzer.
func (s *Schema) AnalyzerFor(f FieldDef) string {
	if f.Type == FieldTypeKeyword {
		return AnalyzerKeyword
	}
	if f.Analyzer != "" {
		return f.Analyzer
	}
	if s.DefaultAnalyzer != "" {
		return s.DefaultAnalyzer
	}
	return AnalyzerStandard
}

// StoredFields returns the names of all stored fields.
func (s *Schema) StoredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Stored {
			names = append(names, f.Name)
		}
	}
	return names
}

// Validate checks the schema for correctness.
func (s *Schema) Validate() error {
	if len(s.Fields) > MaxFieldsPerSchema {
		return fmt.Errorf("%w: %d fields (max %d)", ErrSchemaFieldLimit, len(s.Fields), MaxFieldsPerSchema)
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return ErrSchemaEmptyFieldName
		}
		if reservedFieldNames[f.Name] {
			return fmt.Errorf("%w: %q", ErrSchemaReservedField, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %q", ErrSchemaDuplicateField, f.Name)
		}
		seen[f.Name] = true

		if len(f.Name) > MaxFieldNameLength {
			return fmt.Errorf("%w: %q (%d bytes, max %d)", ErrSchemaFieldNameTooLong, f.Name, len(f.Name), MaxFieldNameLength)
		}
		if err := validateFieldType(f.Type); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		if f.Analyzer != "" {
			if err := validateAnalyzer(f.Analyzer); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		if f.Type == FieldTypeText && f.Analyzer == "" && s.DefaultAnalyzer == "" {
			return fmt.Errorf("field %q: %w", f.Name, ErrSchemaMissingAnalyzer)
		}
		if f.Type == FieldTypeStoredOnly {
			if f.Indexed {
				return fmt.Errorf("field %q: stored_only fields cannot be indexed", f.Name)
			}
			if !f.Stored {
				return fmt.Errorf("field %q: stored_only fields must be stored", f.Name)
			}
		}
	}

	if s.DefaultAnalyzer != "" {
		if err := validateAnalyzer(s.DefaultAnalyzer); err != nil {
			return fmt.Errorf("default_analyzer: %w", err)
		}
	}

	return nil
}

// MarshalSchema serializes a schema to JSON and stamps its checksum.
func MarshalSchema(s *Schema) ([]byte, error) {
	sum, err := computeSchemaChecksum(s)
	if err != nil {
		return nil, fmt.Errorf("compute schema checksum: %w", err)
	}
	s.Checksum = sum

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// UnmarshalSchema deserializes and validates a schema. A checksum, when
// present, must match; hand-written schema files may omit it.
func UnmarshalSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	if s.Checksum != "" {
		saved := s.Checksum
		computed, err := computeSchemaChecksum(&s)
		if err != nil {
			return nil, fmt.Errorf("compute schema checksum for verification: %w", err)
		}
		if computed != saved {
			return nil, fmt.Errorf("%w: expected %s, got %s", ErrSchemaCorrupt, saved, computed)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchema reads a schema file from disk.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return UnmarshalSchema(data)
}

// SaveSchema stamps s with its checksum and atomically replaces the file at
// path.
func SaveSchema(path string, s *Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := MarshalSchema(s)
	if err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("save schema: %w", err)
	}
	return nil
}

func computeSchemaChecksum(s *Schema) (checksum.Checksum, error) {
	saved := s.Checksum
	s.Checksum = ""
	defer func() { s.Checksum = saved }()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	return checksum.Compute(data), nil
}

func validateFieldType(t FieldType) error {
	switch t {
	case FieldTypeText, FieldTypeKeyword, FieldTypeNumeric,
		FieldTypeGeoPoint, FieldTypeGeoShape, FieldTypeStoredOnly:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrSchemaInvalidType, t)
	}
}

func validateAnalyzer(a string) error {
	switch a {
	case AnalyzerStandard, AnalyzerWhitespace, AnalyzerKeyword:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrSchemaInvalidAnalyzer, a)
	}
}
