package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/util"
	"github.com/jmoiron/sqlx"
)

var ErrDuplicateEmail = errors.New("email already exists")

// ContactsRepository persists the contact aggregate. Mutations go through
// SaveWithEvent/DeleteWithEvent so no contact write is ever observable without
// its outbox row.
type ContactsRepository interface {
	SaveWithEvent(ctx context.Context, c *model.Contact, eventType model.EventType) error
	DeleteWithEvent(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	FindByEmail(ctx context.Context, email string) (*model.Contact, error)
	ListAfter(ctx context.Context, afterID string, limit int) ([]*model.Contact, error)
}

type ContactsRepositoryImpl struct {
	db     *sqlx.DB
	outbox OutboxRepository
}

func NewContactsRepository(db *sqlx.DB, outbox OutboxRepository) *ContactsRepositoryImpl {
	return &ContactsRepositoryImpl{db: db, outbox: outbox}
}

type contactRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// isDuplicateEntry reports MySQL error 1062 (ER_DUP_ENTRY). Contact ids are
// fresh ULIDs, so on the contacts table only the email unique key can raise it.
func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// SaveWithEvent writes the contact, replaces its field value set, and inserts
// one outbox row carrying the commit-time snapshot, all in a single
// transaction. Either everything commits or nothing does. A CREATED save must
// insert a fresh row; letting it upsert would allow a racing create against
// the same email to overwrite the earlier row past the FindByEmail check.
func (r *ContactsRepositoryImpl) SaveWithEvent(ctx context.Context, c *model.Contact, eventType model.EventType) error {
	doc := c.Document()
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if eventType == model.EventCreated {
		const insert = `
			INSERT INTO contacts (id, email, name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, insert, c.ID, c.Email, c.Name, c.CreatedAt, c.UpdatedAt); err != nil {
			if isDuplicateEntry(err) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("insert contact: %w", err)
		}
	} else {
		const upsert = `
			INSERT INTO contacts (id, email, name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
			    name       = VALUES(name),
			    updated_at = VALUES(updated_at)
		`
		if _, err := tx.ExecContext(ctx, upsert, c.ID, c.Email, c.Name, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("upsert contact: %w", err)
		}
	}

	// Replace, not merge: the aggregate owns the full value set.
	if _, err := tx.ExecContext(ctx, `DELETE FROM field_values WHERE contact_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clear field values: %w", err)
	}

	const insertValue = `
		INSERT INTO field_values
		    (id, contact_id, field_definition_id, value_text, value_number, value_date, value_select, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`
	for _, v := range c.Values() {
		if _, err := tx.ExecContext(ctx, insertValue,
			v.ID, v.ContactID, v.FieldDefinitionID,
			v.ValueText, v.ValueNumber, v.ValueDate, v.ValueSelect,
		); err != nil {
			return fmt.Errorf("insert field value %s: %w", v.APIName, err)
		}
	}

	ev := model.NewOutboxEvent(util.New(), c.ID, eventType, payload)
	if err := r.outbox.InsertTx(ctx, tx, ev); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}

	return tx.Commit()
}

// DeleteWithEvent removes the contact (field values cascade) and records a
// DELETED event in the same transaction.
func (r *ContactsRepositoryImpl) DeleteWithEvent(ctx context.Context, id string) error {
	payload, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	ev := model.NewOutboxEvent(util.New(), id, model.EventDeleted, payload)
	if err := r.outbox.InsertTx(ctx, tx, ev); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}

	return tx.Commit()
}

func (r *ContactsRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	return r.findOne(ctx, `SELECT id, email, name, created_at, updated_at FROM contacts WHERE id = ?`, id)
}

func (r *ContactsRepositoryImpl) FindByEmail(ctx context.Context, email string) (*model.Contact, error) {
	return r.findOne(ctx, `SELECT id, email, name, created_at, updated_at FROM contacts WHERE email = ?`, email)
}

func (r *ContactsRepositoryImpl) findOne(ctx context.Context, q string, arg any) (*model.Contact, error) {
	var row contactRow
	if err := r.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	values, err := r.loadValues(ctx, []string{row.ID})
	if err != nil {
		return nil, err
	}
	return model.RestoreContact(row.ID, row.Email, row.Name, row.CreatedAt, row.UpdatedAt, values[row.ID]), nil
}

// ListAfter pages contacts by id keyset; ULIDs sort by creation time, so this
// walks the table oldest-first without OFFSET cost. Used by the reindexer.
func (r *ContactsRepositoryImpl) ListAfter(ctx context.Context, afterID string, limit int) ([]*model.Contact, error) {
	if limit <= 0 {
		limit = 500
	}

	const q = `
		SELECT id, email, name, created_at, updated_at
		FROM contacts
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`
	var rows []contactRow
	if err := r.db.SelectContext(ctx, &rows, q, afterID, limit); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	values, err := r.loadValues(ctx, ids)
	if err != nil {
		return nil, err
	}

	contacts := make([]*model.Contact, 0, len(rows))
	for _, row := range rows {
		contacts = append(contacts, model.RestoreContact(row.ID, row.Email, row.Name, row.CreatedAt, row.UpdatedAt, values[row.ID]))
	}
	return contacts, nil
}

// loadValues fetches field values for a bounded id set and joins in the api
// name and type from the registry.
func (r *ContactsRepositoryImpl) loadValues(ctx context.Context, contactIDs []string) (map[string][]*model.FieldValue, error) {
	if len(contactIDs) == 0 {
		return nil, nil
	}

	const base = `
		SELECT fv.id, fv.contact_id, fv.field_definition_id,
		       fd.api_name, fd.field_type,
		       fv.value_text, fv.value_number,
		       DATE_FORMAT(fv.value_date, '%Y-%m-%d') AS value_date,
		       fv.value_select
		FROM field_values fv
		INNER JOIN field_definitions fd ON fd.id = fv.field_definition_id
		WHERE fv.contact_id IN (?)
	`
	q, args, err := sqlx.In(base, contactIDs)
	if err != nil {
		return nil, err
	}
	q = r.db.Rebind(q)

	var rows []*model.FieldValue
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}

	out := make(map[string][]*model.FieldValue, len(contactIDs))
	for _, v := range rows {
		out[v.ContactID] = append(out[v.ContactID], v)
	}
	return out, nil
}
