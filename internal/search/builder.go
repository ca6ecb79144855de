// Package search translates logical contact queries into Elasticsearch
// request bodies. Builders are pure: they take the query spec plus the active
// schema and return the JSON-shaped body, so they are testable without a
// cluster. Field paths are resolved through the registry only.
package search

import (
	"fmt"

	"github.com/hyeonlog/contact-hub/internal/model"
)

// fixedSearchFields are the identifying columns every keyword search covers.
// The .search subfield carries the ngram-analyzed view of the keyword value.
var fixedSearchFields = []string{"email.search", "name.search"}

var fixedFields = map[string]bool{
	"id":        true,
	"email":     true,
	"name":      true,
	"createdAt": true,
	"updatedAt": true,
}

// fieldPath maps a logical field name onto its document path.
func fieldPath(field string) string {
	if model.IsDynamicField(field) {
		return "customFields." + field
	}
	return field
}

func resolveField(field string, defs map[string]*model.FieldDefinition) (string, error) {
	if model.IsDynamicField(field) {
		if _, ok := defs[field]; !ok {
			return "", &model.ValidationError{Field: field, Reason: "unknown field"}
		}
	} else if !fixedFields[field] {
		return "", &model.ValidationError{Field: field, Reason: "unknown field"}
	}
	return fieldPath(field), nil
}

func defIndex(defs []*model.FieldDefinition) map[string]*model.FieldDefinition {
	idx := make(map[string]*model.FieldDefinition, len(defs))
	for _, d := range defs {
		idx[d.APIName] = d
	}
	return idx
}

// BuildSearchBody renders the full search request: bool query, sort, exact
// total tracking, and from/size paging.
func BuildSearchBody(spec model.QuerySpec, defs []*model.FieldDefinition) (map[string]any, error) {
	spec.Normalize()
	idx := defIndex(defs)

	var must []any
	var filter []any

	if spec.Keyword != "" {
		fields := append([]string{}, fixedSearchFields...)
		for _, d := range defs {
			// only text-bearing fields take part in keyword relevance
			if d.Type == model.FieldTypeText || d.Type == model.FieldTypeSelect {
				fields = append(fields, "customFields."+d.APIName+".search")
			}
		}
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  spec.Keyword,
				"fields": fields,
				"type":   "best_fields",
			},
		})
	}

	for _, f := range spec.Filters {
		path, err := resolveField(f.Field, idx)
		if err != nil {
			return nil, err
		}
		clause, err := filterClause(path, f)
		if err != nil {
			return nil, err
		}
		filter = append(filter, clause)
	}

	if len(must) == 0 {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}

	sort, err := sortClauses(spec, idx)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   must,
				"filter": filter,
			},
		},
		"sort":             sort,
		"track_total_hits": true,
		"from":             spec.Offset(),
		"size":             spec.PageSize,
	}, nil
}

func filterClause(path string, f model.Filter) (map[string]any, error) {
	switch f.Op {
	case model.OpEq, "":
		return map[string]any{"term": map[string]any{path: f.Value}}, nil
	case model.OpContains:
		return map[string]any{"wildcard": map[string]any{path: fmt.Sprintf("*%v*", f.Value)}}, nil
	case model.OpGt:
		return rangeClause(path, "gt", f.Value), nil
	case model.OpLt:
		return rangeClause(path, "lt", f.Value), nil
	case model.OpGte:
		return rangeClause(path, "gte", f.Value), nil
	case model.OpLte:
		return rangeClause(path, "lte", f.Value), nil
	case model.OpBetween:
		return map[string]any{
			"range": map[string]any{path: map[string]any{"gte": f.Value, "lte": f.Value2}},
		}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", f.Op)
	}
}

func rangeClause(path, op string, value any) map[string]any {
	return map[string]any{"range": map[string]any{path: map[string]any{op: value}}}
}

// sortClauses renders explicit sort keys, or relevance-then-recency when a
// keyword is present with no explicit sort, else recency descending.
func sortClauses(spec model.QuerySpec, idx map[string]*model.FieldDefinition) ([]any, error) {
	if len(spec.Sort) > 0 {
		out := make([]any, 0, len(spec.Sort))
		for _, k := range spec.Sort {
			path, err := resolveField(k.Field, idx)
			if err != nil {
				return nil, err
			}
			dir := "asc"
			if k.Desc {
				dir = "desc"
			}
			out = append(out, map[string]any{path: dir})
		}
		return out, nil
	}

	if spec.Keyword != "" {
		return []any{
			map[string]any{"_score": "desc"},
			map[string]any{"createdAt": "desc"},
		}, nil
	}
	return []any{map[string]any{"createdAt": "desc"}}, nil
}

// BuildAggBody renders a terms aggregation over the group-by key, capped at
// the shared bucket limit.
func BuildAggBody(groupBy string, defs []*model.FieldDefinition) (map[string]any, error) {
	path, err := resolveField(groupBy, defIndex(defs))
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"group_by_field": map[string]any{
				"terms": map[string]any{
					"field":   path,
					"size":    model.GroupBucketCap,
					"missing": "null",
				},
			},
		},
	}, nil
}

// BuildIndexMapping renders index settings and mappings from the active
// schema: keyword primary fields with an ngram-analyzed .search subfield for
// text-bearing types, typed fields otherwise. Indexing tokenizes with ngrams;
// query time uses the standard analyzer so search terms stay whole.
func BuildIndexMapping(defs []*model.FieldDefinition) map[string]any {
	searchable := map[string]any{
		"type": "keyword",
		"fields": map[string]any{
			"search": map[string]any{
				"type":            "text",
				"analyzer":        "ngram_analyzer",
				"search_analyzer": "standard",
			},
		},
	}

	custom := map[string]any{}
	for _, d := range defs {
		switch d.Type {
		case model.FieldTypeNumber:
			custom[d.APIName] = map[string]any{"type": "double"}
		case model.FieldTypeDate:
			custom[d.APIName] = map[string]any{"type": "date", "format": "yyyy-MM-dd"}
		default:
			custom[d.APIName] = searchable
		}
	}

	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":     1,
			"number_of_replicas":   0,
			"index.max_ngram_diff": 8,
			"analysis": map[string]any{
				"analyzer": map[string]any{
					"ngram_analyzer": map[string]any{
						"type":      "custom",
						"tokenizer": "ngram_tokenizer",
						"filter":    []string{"lowercase"},
					},
				},
				"tokenizer": map[string]any{
					"ngram_tokenizer": map[string]any{
						"type":        "ngram",
						"min_gram":    2,
						"max_gram":    10,
						"token_chars": []string{"letter", "digit"},
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":        map[string]any{"type": "keyword"},
				"email":     searchable,
				"name":      searchable,
				"createdAt": map[string]any{"type": "date"},
				"updatedAt": map[string]any{"type": "date"},
				"customFields": map[string]any{
					"type":       "object",
					"dynamic":    true,
					"properties": custom,
				},
			},
		},
	}
}
