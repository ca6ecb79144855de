package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type FieldType string

const (
	FieldTypeText   FieldType = "TEXT"
	FieldTypeNumber FieldType = "NUMBER"
	FieldTypeDate   FieldType = "DATE"
	FieldTypeSelect FieldType = "SELECT"
)

func (t FieldType) String() string { return string(t) }

func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeNumber, FieldTypeDate, FieldTypeSelect:
		return true
	}
	return false
}

// ParseFieldType normalizes input. Returns (value, true) if valid.
func ParseFieldType(s string) (FieldType, bool) {
	t := FieldType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// apiNamePattern: lowercase start, lowercase/digits/underscores, "__c" suffix.
var apiNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*__c$`)

const dateLayout = "2006-01-02"

// ValidationError is returned for values that fail a field's rules. It never
// reaches the outbox; callers reject the mutation before persisting anything.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
}

// FieldDefinition describes a dynamically-defined attribute. The api name is
// immutable once created; both query paths resolve identifiers through it.
type FieldDefinition struct {
	ID           string    `db:"id"`
	APIName      string    `db:"api_name"`
	DisplayName  string    `db:"display_name"`
	Type         FieldType `db:"field_type"`
	Options      []string  `db:"-"`
	Required     bool      `db:"is_required"`
	Active       bool      `db:"is_active"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type NewFieldDefinitionArgs struct {
	ID          string
	APIName     string
	DisplayName string
	Type        FieldType
	Options     []string
	Required    bool
}

// NewFieldDefinition constructs an active definition, rejecting malformed api
// names and SELECT types without options.
func NewFieldDefinition(args NewFieldDefinitionArgs) (*FieldDefinition, error) {
	if !apiNamePattern.MatchString(args.APIName) {
		return nil, &ValidationError{Field: args.APIName, Reason: "api name must start with a lowercase letter and end with __c"}
	}
	if !args.Type.Valid() {
		return nil, &ValidationError{Field: args.APIName, Reason: fmt.Sprintf("unknown field type %q", args.Type)}
	}
	if args.Type == FieldTypeSelect && len(args.Options) == 0 {
		return nil, &ValidationError{Field: args.APIName, Reason: "SELECT type requires at least one option"}
	}
	if args.Type != FieldTypeSelect && len(args.Options) > 0 {
		return nil, &ValidationError{Field: args.APIName, Reason: "options are only allowed for SELECT type"}
	}
	if strings.TrimSpace(args.DisplayName) == "" {
		return nil, &ValidationError{Field: args.APIName, Reason: "display name is required"}
	}

	return &FieldDefinition{
		ID:          args.ID,
		APIName:     args.APIName,
		DisplayName: strings.TrimSpace(args.DisplayName),
		Type:        args.Type,
		Options:     args.Options,
		Required:    args.Required,
		Active:      true,
	}, nil
}

// Validate checks a candidate value against the definition's type and rules.
// nil is allowed unless the field is required.
func (d *FieldDefinition) Validate(value any) error {
	if value == nil {
		if d.Required {
			return &ValidationError{Field: d.APIName, Reason: "value is required"}
		}
		return nil
	}

	switch d.Type {
	case FieldTypeText:
		if _, ok := value.(string); !ok {
			return &ValidationError{Field: d.APIName, Reason: "value must be text"}
		}
	case FieldTypeNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
		default:
			return &ValidationError{Field: d.APIName, Reason: "value must be a number"}
		}
	case FieldTypeDate:
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Field: d.APIName, Reason: "value must be a YYYY-MM-DD date string"}
		}
		if _, err := time.Parse(dateLayout, s); err != nil {
			return &ValidationError{Field: d.APIName, Reason: "value must be a YYYY-MM-DD date string"}
		}
	case FieldTypeSelect:
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Field: d.APIName, Reason: "value must be one of the configured options"}
		}
		for _, opt := range d.Options {
			if opt == s {
				return nil
			}
		}
		return &ValidationError{Field: d.APIName, Reason: fmt.Sprintf("allowed values: %s", strings.Join(d.Options, ", "))}
	}

	return nil
}

// Deactivate soft-deletes the definition. Values written against it remain,
// but new writes are rejected by the aggregate.
func (d *FieldDefinition) Deactivate() { d.Active = false }

func (d *FieldDefinition) Activate() { d.Active = true }

// IsDynamicField reports whether a query identifier refers to a dynamic field
// rather than a fixed contact column.
func IsDynamicField(field string) bool { return strings.HasSuffix(field, "__c") }
