package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContact(t *testing.T) *Contact {
	t.Helper()
	c, err := NewContact("c1", "minji.kim@acme.io", "Minji Kim", time.Now())
	require.NoError(t, err)
	return c
}

func TestNewContact_Validation(t *testing.T) {
	_, err := NewContact("c1", "not-an-email", "Minji", time.Now())
	assert.Error(t, err)

	_, err = NewContact("c1", "a@b.co", "   ", time.Now())
	assert.Error(t, err)

	c, err := NewContact("c1", "a@b.co", "  Minji ", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Minji", c.Name)
}

func TestSetField_RejectsInactive(t *testing.T) {
	c := newTestContact(t)
	def := newTestDef(t, "tier__c", FieldTypeSelect, false, "GOLD")
	def.Deactivate()

	err := c.SetField(def, "GOLD", "v1")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tier__c", verr.Field)
	assert.Empty(t, c.Values())
}

func TestSetField_ReplacesExistingValue(t *testing.T) {
	c := newTestContact(t)
	def := newTestDef(t, "score__c", FieldTypeNumber, false)

	require.NoError(t, c.SetField(def, float64(10), "v1"))
	require.NoError(t, c.SetField(def, float64(90), "v2"))

	values := c.Values()
	require.Len(t, values, 1)
	assert.Equal(t, float64(90), values[0].Value())
	// the original row id survives an update
	assert.Equal(t, "v1", values[0].ID)
}

func TestSetField_InvalidValueLeavesNoTrace(t *testing.T) {
	c := newTestContact(t)
	def := newTestDef(t, "score__c", FieldTypeNumber, false)

	require.Error(t, c.SetField(def, "not a number", "v1"))
	assert.Empty(t, c.Values())
}

func TestRemoveField(t *testing.T) {
	c := newTestContact(t)
	def := newTestDef(t, "notes__c", FieldTypeText, false)

	require.NoError(t, c.SetField(def, "call back", "v1"))
	c.RemoveField(def.ID)

	_, ok := c.Field(def.ID)
	assert.False(t, ok)
	assert.Empty(t, c.Values())
}

func TestValues_SortedByAPIName(t *testing.T) {
	c := newTestContact(t)
	require.NoError(t, c.SetField(newTestDef(t, "z_last__c", FieldTypeText, false), "z", "v1"))
	require.NoError(t, c.SetField(newTestDef(t, "a_first__c", FieldTypeText, false), "a", "v2"))

	values := c.Values()
	require.Len(t, values, 2)
	assert.Equal(t, "a_first__c", values[0].APIName)
	assert.Equal(t, "z_last__c", values[1].APIName)
}

func TestDocument(t *testing.T) {
	c := newTestContact(t)
	require.NoError(t, c.SetField(newTestDef(t, "tier__c", FieldTypeSelect, false, "GOLD"), "GOLD", "v1"))
	require.NoError(t, c.SetField(newTestDef(t, "score__c", FieldTypeNumber, false), float64(92), "v2"))
	require.NoError(t, c.SetField(newTestDef(t, "contract_start__c", FieldTypeDate, false), "2024-03-01", "v3"))

	doc := c.Document()
	assert.Equal(t, c.ID, doc.ID)
	assert.Equal(t, c.Email, doc.Email)
	assert.Equal(t, map[string]any{
		"tier__c":           "GOLD",
		"score__c":          float64(92),
		"contract_start__c": "2024-03-01",
	}, doc.CustomFields)
}

func TestFieldValue_SingleSlotPopulated(t *testing.T) {
	def := newTestDef(t, "score__c", FieldTypeNumber, false)
	fv, err := NewFieldValue("v1", "c1", def, 42)
	require.NoError(t, err)

	assert.NotNil(t, fv.ValueNumber)
	assert.Nil(t, fv.ValueText)
	assert.Nil(t, fv.ValueDate)
	assert.Nil(t, fv.ValueSelect)
	assert.Equal(t, float64(42), fv.Value())
}

func TestUpdateName(t *testing.T) {
	c := newTestContact(t)
	now := time.Now().Add(time.Hour)

	require.NoError(t, c.UpdateName("New Name", now))
	assert.Equal(t, "New Name", c.Name)
	assert.Equal(t, now, c.UpdatedAt)

	assert.Error(t, c.UpdateName("  ", now))
}
