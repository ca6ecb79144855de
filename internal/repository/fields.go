package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("not found")

// FieldDefinitionsRepository is the field schema registry. Every identifier
// that ends up inside generated SQL or a search query comes from here.
type FieldDefinitionsRepository interface {
	Insert(ctx context.Context, def *model.FieldDefinition) error
	FindByID(ctx context.Context, id string) (*model.FieldDefinition, error)
	FindByAPIName(ctx context.Context, apiName string) (*model.FieldDefinition, error)
	ListActive(ctx context.Context) ([]*model.FieldDefinition, error)
	Deactivate(ctx context.Context, id string) error
}

type FieldDefinitionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewFieldDefinitionsRepository(db *sqlx.DB) *FieldDefinitionsRepositoryImpl {
	return &FieldDefinitionsRepositoryImpl{db: db}
}

// fieldDefRow carries the JSON-encoded options column alongside the model.
type fieldDefRow struct {
	model.FieldDefinition
	OptionsJSON []byte `db:"options"`
}

func (r fieldDefRow) toModel() (*model.FieldDefinition, error) {
	def := r.FieldDefinition
	if len(r.OptionsJSON) > 0 {
		if err := json.Unmarshal(r.OptionsJSON, &def.Options); err != nil {
			return nil, fmt.Errorf("decode options for %s: %w", def.APIName, err)
		}
	}
	return &def, nil
}

const fieldDefColumns = `
	id, api_name, display_name, field_type, options,
	is_required, is_active, display_order, created_at, updated_at
`

func (r *FieldDefinitionsRepositoryImpl) Insert(ctx context.Context, def *model.FieldDefinition) error {
	opts, err := json.Marshal(def.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}

	const q = `
		INSERT INTO field_definitions
		    (id, api_name, display_name, field_type, options, is_required, is_active, display_order, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`
	_, err = r.db.ExecContext(ctx, q,
		def.ID, def.APIName, def.DisplayName, def.Type.String(), opts,
		def.Required, def.Active, def.DisplayOrder,
	)
	return err
}

func (r *FieldDefinitionsRepositoryImpl) FindByID(ctx context.Context, id string) (*model.FieldDefinition, error) {
	return r.findOne(ctx, `SELECT `+fieldDefColumns+` FROM field_definitions WHERE id = ?`, id)
}

func (r *FieldDefinitionsRepositoryImpl) FindByAPIName(ctx context.Context, apiName string) (*model.FieldDefinition, error) {
	return r.findOne(ctx, `SELECT `+fieldDefColumns+` FROM field_definitions WHERE api_name = ?`, apiName)
}

func (r *FieldDefinitionsRepositoryImpl) findOne(ctx context.Context, q string, arg any) (*model.FieldDefinition, error) {
	var row fieldDefRow
	if err := r.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toModel()
}

// ListActive returns active definitions in display order; both query planners
// build their identifier whitelist from this set.
func (r *FieldDefinitionsRepositoryImpl) ListActive(ctx context.Context) ([]*model.FieldDefinition, error) {
	const q = `
		SELECT ` + fieldDefColumns + `
		FROM field_definitions
		WHERE is_active = TRUE
		ORDER BY display_order ASC, created_at ASC
	`
	var rows []fieldDefRow
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}

	defs := make([]*model.FieldDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := row.toModel()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Deactivate soft-deletes a definition. Existing values stay in place; the
// aggregate rejects new writes against it.
func (r *FieldDefinitionsRepositoryImpl) Deactivate(ctx context.Context, id string) error {
	const q = `UPDATE field_definitions SET is_active = FALSE, updated_at = NOW() WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
