package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDef(t *testing.T, apiName string, ft FieldType, required bool, options ...string) *FieldDefinition {
	t.Helper()
	def, err := NewFieldDefinition(NewFieldDefinitionArgs{
		ID:          "def-" + apiName,
		APIName:     apiName,
		DisplayName: apiName,
		Type:        ft,
		Required:    required,
		Options:     options,
	})
	require.NoError(t, err)
	return def
}

func TestNewFieldDefinition_APIName(t *testing.T) {
	valid := []string{"tier__c", "annual_revenue__c", "a__c", "f2_x__c"}
	for _, name := range valid {
		_, err := NewFieldDefinition(NewFieldDefinitionArgs{
			ID: "id", APIName: name, DisplayName: "x", Type: FieldTypeText,
		})
		assert.NoError(t, err, name)
	}

	invalid := []string{"Tier__c", "tier", "__c", "tier__C", "1tier__c", "tier c__c", ""}
	for _, name := range invalid {
		_, err := NewFieldDefinition(NewFieldDefinitionArgs{
			ID: "id", APIName: name, DisplayName: "x", Type: FieldTypeText,
		})
		assert.Error(t, err, name)
	}
}

func TestNewFieldDefinition_SelectNeedsOptions(t *testing.T) {
	_, err := NewFieldDefinition(NewFieldDefinitionArgs{
		ID: "id", APIName: "tier__c", DisplayName: "Tier", Type: FieldTypeSelect,
	})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tier__c", verr.Field)
}

func TestNewFieldDefinition_OptionsOnlyForSelect(t *testing.T) {
	_, err := NewFieldDefinition(NewFieldDefinitionArgs{
		ID: "id", APIName: "score__c", DisplayName: "Score", Type: FieldTypeNumber,
		Options: []string{"1", "2"},
	})
	assert.Error(t, err)
}

func TestValidate_Number(t *testing.T) {
	def := newTestDef(t, "score__c", FieldTypeNumber, false)

	assert.NoError(t, def.Validate(float64(25)))
	assert.NoError(t, def.Validate(25))
	assert.NoError(t, def.Validate(int64(25)))

	// numeric strings are not numbers
	err := def.Validate("25")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "score__c", verr.Field)
}

func TestValidate_Required(t *testing.T) {
	req := newTestDef(t, "name__c", FieldTypeText, true)
	assert.Error(t, req.Validate(nil))

	opt := newTestDef(t, "notes__c", FieldTypeText, false)
	assert.NoError(t, opt.Validate(nil))
}

func TestValidate_Date(t *testing.T) {
	def := newTestDef(t, "contract_start__c", FieldTypeDate, false)

	assert.NoError(t, def.Validate("2024-03-01"))
	assert.Error(t, def.Validate("2024-3-1"))
	assert.Error(t, def.Validate("03/01/2024"))
	assert.Error(t, def.Validate("2024-13-40"))
	assert.Error(t, def.Validate(20240301))
}

func TestValidate_Select(t *testing.T) {
	def := newTestDef(t, "tier__c", FieldTypeSelect, false, "BRONZE", "SILVER", "GOLD")

	assert.NoError(t, def.Validate("GOLD"))
	assert.Error(t, def.Validate("PLATINUM"))
	assert.Error(t, def.Validate("gold"))
	assert.Error(t, def.Validate(1))
}

func TestParseFieldType(t *testing.T) {
	ft, ok := ParseFieldType(" select ")
	assert.True(t, ok)
	assert.Equal(t, FieldTypeSelect, ft)

	_, ok = ParseFieldType("BOOLEAN")
	assert.False(t, ok)
}

func TestIsDynamicField(t *testing.T) {
	assert.True(t, IsDynamicField("tier__c"))
	assert.False(t, IsDynamicField("email"))
	assert.False(t, IsDynamicField("createdAt"))
}
