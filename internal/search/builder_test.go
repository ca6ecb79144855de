package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyeonlog/contact-hub/internal/model"
)

func testDefs(t *testing.T) []*model.FieldDefinition {
	t.Helper()
	mk := func(apiName string, ft model.FieldType, options ...string) *model.FieldDefinition {
		def, err := model.NewFieldDefinition(model.NewFieldDefinitionArgs{
			ID: "def-" + apiName, APIName: apiName, DisplayName: apiName,
			Type: ft, Options: options,
		})
		require.NoError(t, err)
		return def
	}
	return []*model.FieldDefinition{
		mk("tier__c", model.FieldTypeSelect, "BRONZE", "SILVER", "GOLD"),
		mk("score__c", model.FieldTypeNumber),
		mk("contract_start__c", model.FieldTypeDate),
		mk("notes__c", model.FieldTypeText),
	}
}

func boolQuery(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	q, ok := body["query"].(map[string]any)
	require.True(t, ok)
	b, ok := q["bool"].(map[string]any)
	require.True(t, ok)
	return b
}

func TestBuildSearchBody_Keyword(t *testing.T) {
	body, err := BuildSearchBody(model.QuerySpec{Keyword: "kim"}, testDefs(t))
	require.NoError(t, err)

	must := boolQuery(t, body)["must"].([]any)
	require.Len(t, must, 1)
	mm := must[0].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "kim", mm["query"])
	assert.Equal(t, "best_fields", mm["type"])

	// text-bearing fields only: no number or date fields in keyword relevance
	fields := mm["fields"].([]string)
	assert.Contains(t, fields, "email.search")
	assert.Contains(t, fields, "name.search")
	assert.Contains(t, fields, "customFields.tier__c.search")
	assert.Contains(t, fields, "customFields.notes__c.search")
	assert.NotContains(t, fields, "customFields.score__c.search")
	assert.NotContains(t, fields, "customFields.contract_start__c.search")

	assert.Equal(t, true, body["track_total_hits"])
}

func TestBuildSearchBody_NoKeywordIsMatchAll(t *testing.T) {
	body, err := BuildSearchBody(model.QuerySpec{}, testDefs(t))
	require.NoError(t, err)

	must := boolQuery(t, body)["must"].([]any)
	require.Len(t, must, 1)
	_, ok := must[0].(map[string]any)["match_all"]
	assert.True(t, ok)
}

func TestBuildSearchBody_Filters(t *testing.T) {
	body, err := BuildSearchBody(model.QuerySpec{
		Filters: []model.Filter{
			{Field: "tier__c", Op: model.OpEq, Value: "GOLD"},
			{Field: "notes__c", Op: model.OpContains, Value: "call"},
			{Field: "score__c", Op: model.OpGte, Value: "80"},
			{Field: "contract_start__c", Op: model.OpBetween, Value: "2024-01-01", Value2: "2024-12-31"},
		},
	}, testDefs(t))
	require.NoError(t, err)

	filter := boolQuery(t, body)["filter"].([]any)
	require.Len(t, filter, 4)

	assert.Equal(t, map[string]any{
		"term": map[string]any{"customFields.tier__c": "GOLD"},
	}, filter[0])
	assert.Equal(t, map[string]any{
		"wildcard": map[string]any{"customFields.notes__c": "*call*"},
	}, filter[1])
	assert.Equal(t, map[string]any{
		"range": map[string]any{"customFields.score__c": map[string]any{"gte": "80"}},
	}, filter[2])
	assert.Equal(t, map[string]any{
		"range": map[string]any{"customFields.contract_start__c": map[string]any{"gte": "2024-01-01", "lte": "2024-12-31"}},
	}, filter[3])
}

func TestBuildSearchBody_UnknownFieldRejected(t *testing.T) {
	_, err := BuildSearchBody(model.QuerySpec{
		Filters: []model.Filter{{Field: "missing__c", Op: model.OpEq, Value: "x"}},
	}, testDefs(t))

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "missing__c", verr.Field)

	_, err = BuildSearchBody(model.QuerySpec{
		Sort: []model.SortKey{{Field: "internal_secret"}},
	}, testDefs(t))
	assert.Error(t, err)
}

func TestBuildSearchBody_SortFallbacks(t *testing.T) {
	// explicit sort
	body, err := BuildSearchBody(model.QuerySpec{
		Sort: []model.SortKey{{Field: "score__c", Desc: true}, {Field: "createdAt"}},
	}, testDefs(t))
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"customFields.score__c": "desc"},
		map[string]any{"createdAt": "asc"},
	}, body["sort"])

	// keyword present: relevance then recency
	body, err = BuildSearchBody(model.QuerySpec{Keyword: "kim"}, testDefs(t))
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"_score": "desc"},
		map[string]any{"createdAt": "desc"},
	}, body["sort"])

	// neither: recency only
	body, err = BuildSearchBody(model.QuerySpec{}, testDefs(t))
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"createdAt": "desc"}}, body["sort"])
}

func TestBuildSearchBody_Paging(t *testing.T) {
	body, err := BuildSearchBody(model.QuerySpec{Page: 3, PageSize: 25}, testDefs(t))
	require.NoError(t, err)
	assert.Equal(t, 50, body["from"])
	assert.Equal(t, 25, body["size"])
}

func TestBuildAggBody(t *testing.T) {
	body, err := BuildAggBody("tier__c", testDefs(t))
	require.NoError(t, err)

	assert.Equal(t, 0, body["size"])
	terms := body["aggs"].(map[string]any)["group_by_field"].(map[string]any)["terms"].(map[string]any)
	assert.Equal(t, "customFields.tier__c", terms["field"])
	assert.Equal(t, model.GroupBucketCap, terms["size"])
	assert.Equal(t, "null", terms["missing"])

	_, err = BuildAggBody("missing__c", testDefs(t))
	assert.Error(t, err)
}

func TestBuildIndexMapping(t *testing.T) {
	mapping := BuildIndexMapping(testDefs(t))

	props := mapping["mappings"].(map[string]any)["properties"].(map[string]any)
	email := props["email"].(map[string]any)
	assert.Equal(t, "keyword", email["type"])
	sub := email["fields"].(map[string]any)["search"].(map[string]any)
	assert.Equal(t, "ngram_analyzer", sub["analyzer"])
	assert.Equal(t, "standard", sub["search_analyzer"])

	custom := props["customFields"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "double"}, custom["score__c"])
	assert.Equal(t, map[string]any{"type": "date", "format": "yyyy-MM-dd"}, custom["contract_start__c"])
	assert.Equal(t, "keyword", custom["tier__c"].(map[string]any)["type"])

	settings := mapping["settings"].(map[string]any)
	assert.Equal(t, 8, settings["index.max_ngram_diff"])
}
