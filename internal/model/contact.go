package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// FieldValue is the EAV value row: exactly one typed slot is populated,
// matching the definition's type. It references its definition by id only;
// api name and type are denormalized scalars so snapshots need no lookup.
type FieldValue struct {
	ID                string     `db:"id"`
	ContactID         string     `db:"contact_id"`
	FieldDefinitionID string     `db:"field_definition_id"`
	APIName           string     `db:"api_name"`
	Type              FieldType  `db:"field_type"`
	ValueText         *string    `db:"value_text"`
	ValueNumber       *float64   `db:"value_number"`
	ValueDate         *string    `db:"value_date"`
	ValueSelect       *string    `db:"value_select"`
}

// NewFieldValue validates value against def and builds a row for it.
func NewFieldValue(id, contactID string, def *FieldDefinition, value any) (*FieldValue, error) {
	fv := &FieldValue{
		ID:                id,
		ContactID:         contactID,
		FieldDefinitionID: def.ID,
		APIName:           def.APIName,
		Type:              def.Type,
	}
	if err := fv.set(def, value); err != nil {
		return nil, err
	}
	return fv, nil
}

// Update re-validates and replaces the populated slot.
func (v *FieldValue) Update(def *FieldDefinition, value any) error {
	return v.set(def, value)
}

func (v *FieldValue) set(def *FieldDefinition, value any) error {
	if err := def.Validate(value); err != nil {
		return err
	}

	v.ValueText, v.ValueNumber, v.ValueDate, v.ValueSelect = nil, nil, nil, nil
	if value == nil {
		return nil
	}

	switch def.Type {
	case FieldTypeText:
		s := value.(string)
		v.ValueText = &s
	case FieldTypeNumber:
		n := toFloat(value)
		v.ValueNumber = &n
	case FieldTypeDate:
		s := value.(string)
		v.ValueDate = &s
	case FieldTypeSelect:
		s := value.(string)
		v.ValueSelect = &s
	}
	return nil
}

// Value returns the populated slot, or nil.
func (v *FieldValue) Value() any {
	switch v.Type {
	case FieldTypeText:
		if v.ValueText != nil {
			return *v.ValueText
		}
	case FieldTypeNumber:
		if v.ValueNumber != nil {
			return *v.ValueNumber
		}
	case FieldTypeDate:
		if v.ValueDate != nil {
			return *v.ValueDate
		}
	case FieldTypeSelect:
		if v.ValueSelect != nil {
			return *v.ValueSelect
		}
	}
	return nil
}

func toFloat(value any) float64 {
	switch n := value.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// Contact is the aggregate root: fixed columns plus an owned set of field
// values keyed by field definition id (at most one per definition).
type Contact struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time

	values map[string]*FieldValue
}

// NewContact validates email/name and builds an empty aggregate.
func NewContact(id, email, name string, now time.Time) (*Contact, error) {
	if !emailPattern.MatchString(email) {
		return nil, &ValidationError{Field: "email", Reason: "invalid email format"}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "name is required"}
	}
	return &Contact{
		ID:        id,
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		values:    make(map[string]*FieldValue),
	}, nil
}

// RestoreContact rebuilds an aggregate from persisted rows without
// re-validating values.
func RestoreContact(id, email, name string, createdAt, updatedAt time.Time, values []*FieldValue) *Contact {
	c := &Contact{
		ID:        id,
		Email:     email,
		Name:      name,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		values:    make(map[string]*FieldValue, len(values)),
	}
	for _, v := range values {
		c.values[v.FieldDefinitionID] = v
	}
	return c
}

func (c *Contact) UpdateName(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	c.Name = name
	c.UpdatedAt = now
	return nil
}

// SetField writes a value for def, replacing any existing one. Writes against
// inactive definitions are rejected.
func (c *Contact) SetField(def *FieldDefinition, value any, valueID string) error {
	if !def.Active {
		return &ValidationError{Field: def.APIName, Reason: "field is deactivated"}
	}

	if existing, ok := c.values[def.ID]; ok {
		return existing.Update(def, value)
	}

	fv, err := NewFieldValue(valueID, c.ID, def, value)
	if err != nil {
		return err
	}
	c.values[def.ID] = fv
	return nil
}

func (c *Contact) RemoveField(defID string) { delete(c.values, defID) }

func (c *Contact) Field(defID string) (*FieldValue, bool) {
	v, ok := c.values[defID]
	return v, ok
}

// Values returns the owned field values ordered by api name for deterministic
// snapshots.
func (c *Contact) Values() []*FieldValue {
	out := make([]*FieldValue, 0, len(c.values))
	for _, v := range c.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIName < out[j].APIName })
	return out
}

// Document builds the denormalized snapshot used as outbox payload and search
// index document.
func (c *Contact) Document() Document {
	custom := make(map[string]any, len(c.values))
	for _, v := range c.values {
		custom[v.APIName] = v.Value()
	}
	return Document{
		ID:           c.ID,
		Email:        c.Email,
		Name:         c.Name,
		CustomFields: custom,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (c *Contact) String() string {
	return fmt.Sprintf("Contact(%s %s)", c.ID, c.Email)
}
