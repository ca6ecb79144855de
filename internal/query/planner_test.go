package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyeonlog/contact-hub/internal/model"
)

func testRegistry(t *testing.T) *registry {
	t.Helper()
	mk := func(apiName string, ft model.FieldType, options ...string) *model.FieldDefinition {
		def, err := model.NewFieldDefinition(model.NewFieldDefinitionArgs{
			ID: "def-" + apiName, APIName: apiName, DisplayName: apiName,
			Type: ft, Options: options,
		})
		require.NoError(t, err)
		return def
	}
	return newRegistry([]*model.FieldDefinition{
		mk("tier__c", model.FieldTypeSelect, "BRONZE", "SILVER", "GOLD"),
		mk("score__c", model.FieldTypeNumber),
		mk("contract_start__c", model.FieldTypeDate),
		mk("notes__c", model.FieldTypeText),
	})
}

func TestNeedsPivot(t *testing.T) {
	assert.False(t, needsPivot(model.QuerySpec{}))
	assert.False(t, needsPivot(model.QuerySpec{
		Filters: []model.Filter{{Field: "tier__c", Op: model.OpEq, Value: "GOLD"}},
	}))
	assert.False(t, needsPivot(model.QuerySpec{
		Sort:    []model.SortKey{{Field: "createdAt", Desc: true}},
		GroupBy: "email",
	}))
	assert.True(t, needsPivot(model.QuerySpec{
		Sort: []model.SortKey{{Field: "score__c", Desc: true}},
	}))
	assert.True(t, needsPivot(model.QuerySpec{GroupBy: "tier__c"}))
}

func TestValueColumn(t *testing.T) {
	assert.Equal(t, "fv.value_number", valueColumn(model.FieldTypeNumber))
	assert.Equal(t, "fv.value_date", valueColumn(model.FieldTypeDate))
	assert.Equal(t, "fv.value_select", valueColumn(model.FieldTypeSelect))
	assert.Equal(t, "fv.value_text", valueColumn(model.FieldTypeText))
}

func TestOpClause(t *testing.T) {
	clause, args, err := opClause("c.name", model.Filter{Op: model.OpContains, Value: "kim"})
	require.NoError(t, err)
	assert.Equal(t, "c.name LIKE ?", clause)
	assert.Equal(t, []any{"%kim%"}, args)

	clause, args, err = opClause("fv.value_number", model.Filter{Op: model.OpBetween, Value: "10", Value2: "90"})
	require.NoError(t, err)
	assert.Equal(t, "fv.value_number BETWEEN ? AND ?", clause)
	assert.Equal(t, []any{"10", "90"}, args)
}

func TestBuildBasicQuery(t *testing.T) {
	reg := testRegistry(t)
	spec := model.QuerySpec{
		Keyword: "kim",
		Filters: []model.Filter{
			{Field: "email", Op: model.OpContains, Value: "acme"},
			{Field: "tier__c", Op: model.OpEq, Value: "GOLD"},
		},
		Page:     2,
		PageSize: 10,
	}
	spec.Normalize()

	q, args, err := buildBasicQuery(spec, reg)
	require.NoError(t, err)

	assert.Contains(t, q, "SELECT c.id, c.email, c.name, c.created_at, c.updated_at FROM contacts c")
	assert.Contains(t, q, "(c.name LIKE ? OR c.email LIKE ?)")
	assert.Contains(t, q, "c.email LIKE ?")
	assert.Contains(t, q, "EXISTS (SELECT 1 FROM field_values fv")
	assert.Contains(t, q, "fd.api_name = ? AND fv.value_select = ?")
	assert.NotContains(t, q, "GROUP BY")
	assert.Contains(t, q, "ORDER BY c.created_at DESC LIMIT ? OFFSET ?")

	assert.Equal(t, []any{"%kim%", "%kim%", "%acme%", "tier__c", "GOLD", 10, 10}, args)
}

func TestBuildBasicQuery_UnknownFieldRejected(t *testing.T) {
	reg := testRegistry(t)

	_, _, err := buildBasicQuery(model.QuerySpec{
		Filters: []model.Filter{{Field: "missing__c", Op: model.OpEq, Value: "x"}},
	}, reg)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "missing__c", verr.Field)

	_, _, err = buildBasicQuery(model.QuerySpec{
		Filters: []model.Filter{{Field: "password", Op: model.OpEq, Value: "x"}},
	}, reg)
	assert.Error(t, err)
}

func TestBuildBasicCount(t *testing.T) {
	reg := testRegistry(t)
	spec := model.QuerySpec{
		Filters: []model.Filter{{Field: "score__c", Op: model.OpGte, Value: "80"}},
	}
	spec.Normalize()

	q, args, err := buildBasicCount(spec, reg)
	require.NoError(t, err)
	assert.Contains(t, q, "SELECT COUNT(*) FROM contacts c")
	assert.Contains(t, q, "fv.value_number >= ?")
	assert.Equal(t, []any{"score__c", "80"}, args)
}

func TestBuildPivotQuery(t *testing.T) {
	reg := testRegistry(t)
	spec := model.QuerySpec{
		Keyword: "kim",
		Filters: []model.Filter{
			{Field: "tier__c", Op: model.OpEq, Value: "GOLD"},
		},
		Sort:     []model.SortKey{{Field: "score__c", Desc: true}},
		Page:     1,
		PageSize: 20,
	}
	spec.Normalize()

	q, args, err := buildPivotQuery(spec, reg)
	require.NoError(t, err)

	assert.Contains(t, q, "MAX(CASE WHEN fd.api_name = ? THEN fv.value_select END) AS `tier__c`")
	assert.Contains(t, q, "MAX(CASE WHEN fd.api_name = ? THEN fv.value_number END) AS `score__c`")
	assert.Contains(t, q, "LEFT JOIN field_values fv ON fv.contact_id = c.id")
	assert.Contains(t, q, "GROUP BY c.id")
	assert.Contains(t, q, "HAVING `tier__c` = ?")
	assert.Contains(t, q, "ORDER BY `score__c` DESC")

	// arg order: one per pivot select, then where, then having, then paging
	require.Len(t, args, 4+2+1+2)
	assert.Equal(t, "tier__c", args[0])
	assert.Equal(t, []any{"%kim%", "%kim%"}, args[4:6])
	assert.Equal(t, "GOLD", args[6])
	assert.Equal(t, []any{20, 0}, args[7:])
}

func TestBuildPivotCount_AliasesAvailableForHaving(t *testing.T) {
	reg := testRegistry(t)
	spec := model.QuerySpec{
		Filters: []model.Filter{{Field: "score__c", Op: model.OpBetween, Value: "10", Value2: "90"}},
		Sort:    []model.SortKey{{Field: "score__c", Desc: false}},
	}
	spec.Normalize()

	q, args, err := buildPivotCount(spec, reg)
	require.NoError(t, err)

	assert.Contains(t, q, "SELECT COUNT(*) FROM (SELECT c.id")
	// the subquery must carry the pivot selects or the HAVING alias is unresolvable
	assert.Contains(t, q, "AS `score__c`")
	assert.Contains(t, q, "HAVING `score__c` BETWEEN ? AND ?")
	assert.Contains(t, q, ") AS sub")
	assert.Equal(t, []any{"tier__c", "score__c", "contract_start__c", "notes__c", "10", "90"}, args)
}

func TestBuildGroupQuery_DynamicField(t *testing.T) {
	reg := testRegistry(t)
	spec := model.QuerySpec{Keyword: "kim", GroupBy: "tier__c"}
	spec.Normalize()

	q, args, err := buildGroupQuery(spec, reg)
	require.NoError(t, err)

	assert.Contains(t, q, "SELECT fv.value_select AS group_key, COUNT(DISTINCT c.id) AS cnt")
	assert.Contains(t, q, "LEFT JOIN field_definitions fd ON fd.api_name = ?")
	assert.Contains(t, q, "LEFT JOIN field_values fv ON fv.contact_id = c.id AND fv.field_definition_id = fd.id")
	assert.Contains(t, q, "GROUP BY group_key ORDER BY cnt DESC LIMIT ?")
	assert.Equal(t, []any{"tier__c", "%kim%", "%kim%", model.GroupBucketCap}, args)
}

func TestBuildGroupQuery_FixedField(t *testing.T) {
	reg := testRegistry(t)
	spec := model.QuerySpec{GroupBy: "email"}
	spec.Normalize()

	q, args, err := buildGroupQuery(spec, reg)
	require.NoError(t, err)

	assert.Contains(t, q, "SELECT c.email AS group_key")
	assert.NotContains(t, q, "JOIN")
	assert.Equal(t, []any{model.GroupBucketCap}, args)
}

func TestOrderBy(t *testing.T) {
	order, err := orderBy(model.QuerySpec{}, false)
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY c.created_at DESC", order)

	order, err = orderBy(model.QuerySpec{
		Sort: []model.SortKey{{Field: "name"}, {Field: "createdAt", Desc: true}},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY c.name ASC, c.created_at DESC", order)

	_, err = orderBy(model.QuerySpec{Sort: []model.SortKey{{Field: "secret"}}}, false)
	assert.Error(t, err)
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, 92.5, coerce(model.FieldTypeNumber, []byte("92.5")))
	assert.Nil(t, coerce(model.FieldTypeNumber, []byte("abc")))
	assert.Equal(t, "GOLD", coerce(model.FieldTypeSelect, []byte("GOLD")))
}
