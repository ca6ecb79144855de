package http

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyeonlog/contact-hub/internal/model"
)

func specFor(t *testing.T, rawQuery string) (model.QuerySpec, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest("GET", "/v1/contacts/search?"+rawQuery, nil)
	rec := httptest.NewRecorder()
	return parseQuerySpec(e.NewContext(req, rec))
}

func TestParseQuerySpec_Basics(t *testing.T) {
	spec, err := specFor(t, "keyword=kim&page=2&pageSize=50&groupBy=tier__c")
	require.NoError(t, err)

	assert.Equal(t, "kim", spec.Keyword)
	assert.Equal(t, 2, spec.Page)
	assert.Equal(t, 50, spec.PageSize)
	assert.Equal(t, "tier__c", spec.GroupBy)
}

func TestParseQuerySpec_Filters(t *testing.T) {
	spec, err := specFor(t, "filter[tier__c]=GOLD&filter[score__c][gte]=80")
	require.NoError(t, err)
	require.Len(t, spec.Filters, 2)

	byField := map[string]model.Filter{}
	for _, f := range spec.Filters {
		byField[f.Field] = f
	}
	assert.Equal(t, model.OpEq, byField["tier__c"].Op)
	assert.Equal(t, "GOLD", byField["tier__c"].Value)
	assert.Equal(t, model.OpGte, byField["score__c"].Op)
	assert.Equal(t, "80", byField["score__c"].Value)
}

func TestParseQuerySpec_Between(t *testing.T) {
	spec, err := specFor(t, "filter[contract_start__c][between]=2024-01-01,2024-12-31")
	require.NoError(t, err)
	require.Len(t, spec.Filters, 1)

	f := spec.Filters[0]
	assert.Equal(t, model.OpBetween, f.Op)
	assert.Equal(t, "2024-01-01", f.Value)
	assert.Equal(t, "2024-12-31", f.Value2)

	_, err = specFor(t, "filter[score__c][between]=10")
	assert.Error(t, err)
}

func TestParseQuerySpec_Sort(t *testing.T) {
	spec, err := specFor(t, "sort[createdAt]=desc")
	require.NoError(t, err)
	require.Len(t, spec.Sort, 1)
	assert.Equal(t, model.SortKey{Field: "createdAt", Desc: true}, spec.Sort[0])

	_, err = specFor(t, "sort[createdAt]=sideways")
	assert.Error(t, err)
}

func TestParseQuerySpec_UnknownOperator(t *testing.T) {
	_, err := specFor(t, "filter[score__c][regex]=.*")
	require.Error(t, err)

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "score__c", verr.Field)
}

func TestSplitBracketKey(t *testing.T) {
	field, op, ok := splitBracketKey("tier__c")
	assert.True(t, ok)
	assert.Equal(t, "tier__c", field)
	assert.Empty(t, op)

	field, op, ok = splitBracketKey("score__c][gte")
	assert.True(t, ok)
	assert.Equal(t, "score__c", field)
	assert.Equal(t, "gte", op)

	_, _, ok = splitBracketKey("a][")
	assert.False(t, ok)

	_, _, ok = splitBracketKey("bad[key")
	assert.False(t, ok)
}
