package model

import "strings"

type Operator string

const (
	OpEq       Operator = "eq"
	OpContains Operator = "contains"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpBetween  Operator = "between"
)

// ParseOperator normalizes input; empty => eq.
func ParseOperator(s string) (Operator, bool) {
	switch Operator(strings.ToLower(strings.TrimSpace(s))) {
	case "", OpEq:
		return OpEq, true
	case OpContains:
		return OpContains, true
	case OpGt:
		return OpGt, true
	case OpLt:
		return OpLt, true
	case OpGte:
		return OpGte, true
	case OpLte:
		return OpLte, true
	case OpBetween:
		return OpBetween, true
	}
	return OpEq, false
}

type Filter struct {
	Field  string
	Op     Operator
	Value  any // between uses Value as the low bound and Value2 as the high
	Value2 any
}

type SortKey struct {
	Field string
	Desc  bool
}

// QuerySpec is the logical query both read paths answer: substring keyword
// match, typed filters, sort, optional single group-by, and paging.
type QuerySpec struct {
	Keyword  string
	Filters  []Filter
	Sort     []SortKey
	GroupBy  string
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	GroupBucketCap  = 50
)

// Normalize clamps paging to sane bounds.
func (s *QuerySpec) Normalize() {
	if s.Page < 1 {
		s.Page = 1
	}
	if s.PageSize <= 0 {
		s.PageSize = DefaultPageSize
	}
	if s.PageSize > MaxPageSize {
		s.PageSize = MaxPageSize
	}
}

func (s *QuerySpec) Offset() int { return (s.Page - 1) * s.PageSize }

// HasDynamicSort reports whether any sort key targets a dynamic field, which
// forces the relational planner onto the pivot path.
func (s *QuerySpec) HasDynamicSort() bool {
	for _, k := range s.Sort {
		if IsDynamicField(k.Field) {
			return true
		}
	}
	return false
}

type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// SearchResult is the shared shape of both read paths. Groups is populated
// only when GroupBy was requested.
type SearchResult struct {
	Data       []Document `json:"data"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	TotalPages int        `json:"totalPages"`
	Groups     []Bucket   `json:"groups,omitempty"`
}

// Paginate fills the derived page count.
func (r *SearchResult) Paginate(spec QuerySpec) {
	r.Page = spec.Page
	r.PageSize = spec.PageSize
	if spec.PageSize > 0 {
		r.TotalPages = int((r.Total + int64(spec.PageSize) - 1) / int64(spec.PageSize))
	}
}
