// Package query plans and executes logical contact queries against the
// relational EAV store. It chooses between a cheap two-step path and an
// expensive pivot path depending on whether dynamic fields appear in sort or
// group-by. All identifiers in generated SQL come from the field schema
// registry or a fixed-column whitelist; values are always parametrized.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/repository"
	"github.com/jmoiron/sqlx"
)

// fixedColumns whitelists the sortable/filterable contact columns and their
// SQL spellings. Anything else must resolve through the registry.
var fixedColumns = map[string]string{
	"id":        "c.id",
	"email":     "c.email",
	"name":      "c.name",
	"createdAt": "c.created_at",
	"updatedAt": "c.updated_at",
}

func valueColumn(t model.FieldType) string {
	switch t {
	case model.FieldTypeNumber:
		return "fv.value_number"
	case model.FieldTypeDate:
		return "fv.value_date"
	case model.FieldTypeSelect:
		return "fv.value_select"
	default:
		return "fv.value_text"
	}
}

// registry is the planner's view of the active schema.
type registry struct {
	byAPIName map[string]*model.FieldDefinition
	ordered   []*model.FieldDefinition
}

func newRegistry(defs []*model.FieldDefinition) *registry {
	r := &registry{byAPIName: make(map[string]*model.FieldDefinition, len(defs)), ordered: defs}
	for _, d := range defs {
		r.byAPIName[d.APIName] = d
	}
	return r
}

func (r *registry) resolve(field string) (*model.FieldDefinition, error) {
	def, ok := r.byAPIName[field]
	if !ok {
		return nil, &model.ValidationError{Field: field, Reason: "unknown field"}
	}
	return def, nil
}

type Planner struct {
	db     *sqlx.DB
	fields repository.FieldDefinitionsRepository
}

func NewPlanner(db *sqlx.DB, fields repository.FieldDefinitionsRepository) *Planner {
	return &Planner{db: db, fields: fields}
}

// Search answers a query spec against MySQL.
func (p *Planner) Search(ctx context.Context, spec model.QuerySpec) (model.SearchResult, error) {
	spec.Normalize()

	defs, err := p.fields.ListActive(ctx)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("load field definitions: %w", err)
	}
	reg := newRegistry(defs)

	var result model.SearchResult
	if needsPivot(spec) {
		result, err = p.searchPivot(ctx, spec, reg)
	} else {
		result, err = p.searchBasic(ctx, spec, reg)
	}
	if err != nil {
		return model.SearchResult{}, err
	}

	if spec.GroupBy != "" {
		groups, err := p.groupBy(ctx, spec, reg)
		if err != nil {
			return model.SearchResult{}, err
		}
		result.Groups = groups
	}

	result.Paginate(spec)
	return result, nil
}

// needsPivot reports whether the query requires the aggregated pivot shape:
// sorting or grouping by a dynamic field cannot be answered from the contact
// table alone.
func needsPivot(spec model.QuerySpec) bool {
	return spec.HasDynamicSort() || model.IsDynamicField(spec.GroupBy)
}

// ---- shared WHERE construction ----

// whereParts builds the WHERE conditions common to both paths: keyword
// substring match over identifying columns plus fixed-column filters. Dynamic
// filters are returned separately since the two paths express them differently.
func whereParts(spec model.QuerySpec, reg *registry) (conds []string, args []any, dynamic []model.Filter, err error) {
	if spec.Keyword != "" {
		conds = append(conds, "(c.name LIKE ? OR c.email LIKE ?)")
		kw := "%" + spec.Keyword + "%"
		args = append(args, kw, kw)
	}

	for _, f := range spec.Filters {
		if model.IsDynamicField(f.Field) {
			if _, err := reg.resolve(f.Field); err != nil {
				return nil, nil, nil, err
			}
			dynamic = append(dynamic, f)
			continue
		}
		col, ok := fixedColumns[f.Field]
		if !ok {
			return nil, nil, nil, &model.ValidationError{Field: f.Field, Reason: "unknown field"}
		}
		clause, clauseArgs, err := opClause(col, f)
		if err != nil {
			return nil, nil, nil, err
		}
		conds = append(conds, clause)
		args = append(args, clauseArgs...)
	}

	return conds, args, dynamic, nil
}

// opClause renders a single comparison. col is always a whitelisted
// identifier, never caller input.
func opClause(col string, f model.Filter) (string, []any, error) {
	switch f.Op {
	case model.OpEq, "":
		return col + " = ?", []any{f.Value}, nil
	case model.OpContains:
		return col + " LIKE ?", []any{fmt.Sprintf("%%%v%%", f.Value)}, nil
	case model.OpGt:
		return col + " > ?", []any{f.Value}, nil
	case model.OpLt:
		return col + " < ?", []any{f.Value}, nil
	case model.OpGte:
		return col + " >= ?", []any{f.Value}, nil
	case model.OpLte:
		return col + " <= ?", []any{f.Value}, nil
	case model.OpBetween:
		return col + " BETWEEN ? AND ?", []any{f.Value, f.Value2}, nil
	default:
		return "", nil, fmt.Errorf("unknown operator %q", f.Op)
	}
}

func orderBy(spec model.QuerySpec, pivot bool) (string, error) {
	if len(spec.Sort) == 0 {
		return "ORDER BY c.created_at DESC", nil
	}

	parts := make([]string, 0, len(spec.Sort))
	for _, k := range spec.Sort {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		if model.IsDynamicField(k.Field) {
			if !pivot {
				// basic path never sees dynamic sort keys
				continue
			}
			parts = append(parts, "`"+k.Field+"` "+dir)
			continue
		}
		col, ok := fixedColumns[k.Field]
		if !ok {
			return "", fmt.Errorf("unknown sort field %q", k.Field)
		}
		parts = append(parts, col+" "+dir)
	}
	if len(parts) == 0 {
		return "ORDER BY c.created_at DESC", nil
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// ---- basic path ----

// buildBasicQuery renders the page query: contacts only, dynamic filters as
// correlated EXISTS checks, no join across the whole attribute table.
func buildBasicQuery(spec model.QuerySpec, reg *registry) (string, []any, error) {
	conds, args, dynamic, err := whereParts(spec, reg)
	if err != nil {
		return "", nil, err
	}
	conds, args, err = appendExists(conds, args, dynamic, reg)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT c.id, c.email, c.name, c.created_at, c.updated_at FROM contacts c")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	order, err := orderBy(spec, false)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" " + order + " LIMIT ? OFFSET ?")
	args = append(args, spec.PageSize, spec.Offset())

	return b.String(), args, nil
}

func buildBasicCount(spec model.QuerySpec, reg *registry) (string, []any, error) {
	conds, args, dynamic, err := whereParts(spec, reg)
	if err != nil {
		return "", nil, err
	}
	conds, args, err = appendExists(conds, args, dynamic, reg)
	if err != nil {
		return "", nil, err
	}

	q := "SELECT COUNT(*) FROM contacts c"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q, args, nil
}

// appendExists renders each dynamic filter as a correlated existence check
// against the type-appropriate value column.
func appendExists(conds []string, args []any, dynamic []model.Filter, reg *registry) ([]string, []any, error) {
	for _, f := range dynamic {
		def, err := reg.resolve(f.Field)
		if err != nil {
			return nil, nil, err
		}
		clause, clauseArgs, err := opClause(valueColumn(def.Type), f)
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM field_values fv INNER JOIN field_definitions fd ON fd.id = fv.field_definition_id"+
				" WHERE fv.contact_id = c.id AND fd.api_name = ? AND %s)", clause))
		args = append(args, f.Field)
		args = append(args, clauseArgs...)
	}
	return conds, args, nil
}

func (p *Planner) searchBasic(ctx context.Context, spec model.QuerySpec, reg *registry) (model.SearchResult, error) {
	countQ, countArgs, err := buildBasicCount(spec, reg)
	if err != nil {
		return model.SearchResult{}, err
	}
	var total int64
	if err := p.db.GetContext(ctx, &total, countQ, countArgs...); err != nil {
		return model.SearchResult{}, fmt.Errorf("count contacts: %w", err)
	}

	dataQ, dataArgs, err := buildBasicQuery(spec, reg)
	if err != nil {
		return model.SearchResult{}, err
	}

	type contactRow struct {
		ID        string    `db:"id"`
		Email     string    `db:"email"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	var rows []contactRow
	if err := p.db.SelectContext(ctx, &rows, dataQ, dataArgs...); err != nil {
		return model.SearchResult{}, fmt.Errorf("select contacts: %w", err)
	}

	docs := make([]model.Document, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		docs = append(docs, model.Document{
			ID:           row.ID,
			Email:        row.Email,
			Name:         row.Name,
			CustomFields: map[string]any{},
			CreatedAt:    row.CreatedAt,
			UpdatedAt:    row.UpdatedAt,
		})
	}

	// Second query: attribute rows only for this page's ids, bounded by
	// page_size x field_count.
	if len(ids) > 0 {
		values, err := p.pageValues(ctx, ids, reg)
		if err != nil {
			return model.SearchResult{}, err
		}
		for i := range docs {
			if cf, ok := values[docs[i].ID]; ok {
				docs[i].CustomFields = cf
			}
		}
	}

	return model.SearchResult{Data: docs, Total: total}, nil
}

func (p *Planner) pageValues(ctx context.Context, contactIDs []string, reg *registry) (map[string]map[string]any, error) {
	const base = `
		SELECT contact_id, field_definition_id, value_text, value_number, value_date, value_select
		FROM field_values
		WHERE contact_id IN (?)
	`
	q, args, err := sqlx.In(base, contactIDs)
	if err != nil {
		return nil, err
	}
	q = p.db.Rebind(q)

	type valueRow struct {
		ContactID         string          `db:"contact_id"`
		FieldDefinitionID string          `db:"field_definition_id"`
		ValueText         sql.NullString  `db:"value_text"`
		ValueNumber       sql.NullFloat64 `db:"value_number"`
		ValueDate         sql.NullTime    `db:"value_date"`
		ValueSelect       sql.NullString  `db:"value_select"`
	}
	var rows []valueRow
	if err := p.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("select field values: %w", err)
	}

	defByID := make(map[string]*model.FieldDefinition, len(reg.ordered))
	for _, d := range reg.ordered {
		defByID[d.ID] = d
	}

	out := make(map[string]map[string]any, len(contactIDs))
	for _, row := range rows {
		def, ok := defByID[row.FieldDefinitionID]
		if !ok {
			continue // value of a deactivated definition
		}
		cf := out[row.ContactID]
		if cf == nil {
			cf = map[string]any{}
			out[row.ContactID] = cf
		}
		switch def.Type {
		case model.FieldTypeNumber:
			if row.ValueNumber.Valid {
				cf[def.APIName] = row.ValueNumber.Float64
			}
		case model.FieldTypeDate:
			if row.ValueDate.Valid {
				cf[def.APIName] = row.ValueDate.Time.Format("2006-01-02")
			}
		case model.FieldTypeSelect:
			if row.ValueSelect.Valid {
				cf[def.APIName] = row.ValueSelect.String
			}
		default:
			if row.ValueText.Valid {
				cf[def.APIName] = row.ValueText.String
			}
		}
	}
	return out, nil
}

// ---- pivot path ----

// pivotSelects renders one aggregated virtual column per active definition.
// The alias is the registry-validated api name; the comparison value is
// parametrized.
func pivotSelects(reg *registry) (string, []any) {
	if len(reg.ordered) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(reg.ordered))
	args := make([]any, 0, len(reg.ordered))
	for _, def := range reg.ordered {
		parts = append(parts, fmt.Sprintf("MAX(CASE WHEN fd.api_name = ? THEN %s END) AS `%s`", valueColumn(def.Type), def.APIName))
		args = append(args, def.APIName)
	}
	return ", " + strings.Join(parts, ", "), args
}

const pivotJoin = ` FROM contacts c
	LEFT JOIN field_values fv ON fv.contact_id = c.id
	LEFT JOIN field_definitions fd ON fd.id = fv.field_definition_id`

// buildPivotQuery renders the aggregated pivot page query: one virtual column
// per definition, fixed filters in WHERE, dynamic filters as HAVING on the
// pivot aliases.
func buildPivotQuery(spec model.QuerySpec, reg *registry) (string, []any, error) {
	selects, selectArgs := pivotSelects(reg)
	conds, whereArgs, dynamic, err := whereParts(spec, reg)
	if err != nil {
		return "", nil, err
	}
	having, havingArgs, err := havingParts(dynamic)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT c.id, c.email, c.name, c.created_at, c.updated_at")
	b.WriteString(selects)
	b.WriteString(pivotJoin)
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" GROUP BY c.id")
	if len(having) > 0 {
		b.WriteString(" HAVING " + strings.Join(having, " AND "))
	}
	order, err := orderBy(spec, true)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" " + order + " LIMIT ? OFFSET ?")

	args := make([]any, 0, len(selectArgs)+len(whereArgs)+len(havingArgs)+2)
	args = append(args, selectArgs...)
	args = append(args, whereArgs...)
	args = append(args, havingArgs...)
	args = append(args, spec.PageSize, spec.Offset())

	return b.String(), args, nil
}

// buildPivotCount wraps the same grouped subquery in COUNT(*).
func buildPivotCount(spec model.QuerySpec, reg *registry) (string, []any, error) {
	selects, selectArgs := pivotSelects(reg)
	conds, whereArgs, dynamic, err := whereParts(spec, reg)
	if err != nil {
		return "", nil, err
	}
	having, havingArgs, err := havingParts(dynamic)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM (SELECT c.id")
	b.WriteString(selects)
	b.WriteString(pivotJoin)
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" GROUP BY c.id")
	if len(having) > 0 {
		b.WriteString(" HAVING " + strings.Join(having, " AND "))
	}
	b.WriteString(") AS sub")

	args := make([]any, 0, len(selectArgs)+len(whereArgs)+len(havingArgs))
	args = append(args, selectArgs...)
	args = append(args, whereArgs...)
	args = append(args, havingArgs...)

	return b.String(), args, nil
}

func havingParts(dynamic []model.Filter) ([]string, []any, error) {
	var conds []string
	var args []any
	for _, f := range dynamic {
		clause, clauseArgs, err := opClause("`"+f.Field+"`", f)
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, clause)
		args = append(args, clauseArgs...)
	}
	return conds, args, nil
}

func (p *Planner) searchPivot(ctx context.Context, spec model.QuerySpec, reg *registry) (model.SearchResult, error) {
	countQ, countArgs, err := buildPivotCount(spec, reg)
	if err != nil {
		return model.SearchResult{}, err
	}
	var total int64
	if err := p.db.GetContext(ctx, &total, countQ, countArgs...); err != nil {
		return model.SearchResult{}, fmt.Errorf("count pivot: %w", err)
	}

	dataQ, dataArgs, err := buildPivotQuery(spec, reg)
	if err != nil {
		return model.SearchResult{}, err
	}

	rows, err := p.db.QueryxContext(ctx, dataQ, dataArgs...)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("select pivot: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		raw := map[string]any{}
		if err := rows.MapScan(raw); err != nil {
			return model.SearchResult{}, err
		}
		docs = append(docs, pivotRowToDocument(raw, reg))
	}
	if err := rows.Err(); err != nil {
		return model.SearchResult{}, err
	}

	return model.SearchResult{Data: docs, Total: total}, nil
}

func pivotRowToDocument(raw map[string]any, reg *registry) model.Document {
	doc := model.Document{
		ID:           asString(raw["id"]),
		Email:        asString(raw["email"]),
		Name:         asString(raw["name"]),
		CustomFields: map[string]any{},
	}
	if t, ok := raw["created_at"].(time.Time); ok {
		doc.CreatedAt = t
	}
	if t, ok := raw["updated_at"].(time.Time); ok {
		doc.UpdatedAt = t
	}
	for _, def := range reg.ordered {
		v, ok := raw[def.APIName]
		if !ok || v == nil {
			continue
		}
		doc.CustomFields[def.APIName] = coerce(def.Type, v)
	}
	return doc
}

// coerce maps raw driver values onto document value types per field type.
func coerce(t model.FieldType, v any) any {
	switch t {
	case model.FieldTypeNumber:
		if n, err := strconv.ParseFloat(asString(v), 64); err == nil {
			return n
		}
		return nil
	case model.FieldTypeDate:
		if tv, ok := v.(time.Time); ok {
			return tv.Format("2006-01-02")
		}
		return asString(v)
	default:
		return asString(v)
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

// ---- group-by aggregation ----

// buildGroupQuery renders the bucket query. For a dynamic key it joins the
// value rows of that one definition; for a fixed key no join is needed. The
// bucket filter reuses the keyword and fixed-column predicates.
func buildGroupQuery(spec model.QuerySpec, reg *registry) (string, []any, error) {
	conds, whereArgs, _, err := whereParts(spec, reg)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	var args []any
	if model.IsDynamicField(spec.GroupBy) {
		def, err := reg.resolve(spec.GroupBy)
		if err != nil {
			return "", nil, err
		}
		b.WriteString("SELECT " + valueColumn(def.Type) + " AS group_key, COUNT(DISTINCT c.id) AS cnt")
		b.WriteString(" FROM contacts c")
		b.WriteString(" LEFT JOIN field_definitions fd ON fd.api_name = ?")
		b.WriteString(" LEFT JOIN field_values fv ON fv.contact_id = c.id AND fv.field_definition_id = fd.id")
		args = append(args, spec.GroupBy)
	} else {
		col, ok := fixedColumns[spec.GroupBy]
		if !ok {
			return "", nil, &model.ValidationError{Field: spec.GroupBy, Reason: "unknown field"}
		}
		b.WriteString("SELECT " + col + " AS group_key, COUNT(DISTINCT c.id) AS cnt FROM contacts c")
	}

	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	args = append(args, whereArgs...)

	b.WriteString(" GROUP BY group_key ORDER BY cnt DESC LIMIT ?")
	args = append(args, model.GroupBucketCap)

	return b.String(), args, nil
}

func (p *Planner) groupBy(ctx context.Context, spec model.QuerySpec, reg *registry) ([]model.Bucket, error) {
	q, args, err := buildGroupQuery(spec, reg)
	if err != nil {
		return nil, err
	}

	type groupRow struct {
		Key sql.NullString `db:"group_key"`
		Cnt int64          `db:"cnt"`
	}
	var rows []groupRow
	if err := p.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("group contacts: %w", err)
	}

	buckets := make([]model.Bucket, 0, len(rows))
	for _, row := range rows {
		key := "null"
		if row.Key.Valid {
			key = row.Key.String
		}
		buckets = append(buckets, model.Bucket{Key: key, Count: row.Cnt})
	}
	return buckets, nil
}
