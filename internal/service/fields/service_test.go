package fields

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/repository"
)

type fakeFieldsRepo struct {
	byID        map[string]*model.FieldDefinition
	findErr     error
	deactivated []string
}

func newFakeFieldsRepo() *fakeFieldsRepo {
	return &fakeFieldsRepo{byID: make(map[string]*model.FieldDefinition)}
}

func (f *fakeFieldsRepo) Insert(ctx context.Context, def *model.FieldDefinition) error {
	f.byID[def.ID] = def
	return nil
}

func (f *fakeFieldsRepo) FindByID(ctx context.Context, id string) (*model.FieldDefinition, error) {
	if def, ok := f.byID[id]; ok {
		return def, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeFieldsRepo) FindByAPIName(ctx context.Context, apiName string) (*model.FieldDefinition, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, def := range f.byID {
		if def.APIName == apiName {
			return def, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeFieldsRepo) ListActive(ctx context.Context) ([]*model.FieldDefinition, error) {
	var out []*model.FieldDefinition
	for _, def := range f.byID {
		if def.Active {
			out = append(out, def)
		}
	}
	return out, nil
}

func (f *fakeFieldsRepo) Deactivate(ctx context.Context, id string) error {
	def, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	def.Deactivate()
	f.deactivated = append(f.deactivated, id)
	return nil
}

func TestCreate(t *testing.T) {
	repo := newFakeFieldsRepo()
	svc := New(repo)

	def, err := svc.Create(context.Background(), CreateInput{
		APIName:     "tier__c",
		DisplayName: "Tier",
		Type:        "SELECT",
		Options:     []string{"BRONZE", "SILVER", "GOLD"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, def.ID)
	assert.Equal(t, model.FieldTypeSelect, def.Type)

	_, err = svc.Create(context.Background(), CreateInput{
		APIName: "tier__c", DisplayName: "Tier", Type: "TEXT",
	})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "apiName", verr.Field)
}

func TestCreate_UnknownType(t *testing.T) {
	svc := New(newFakeFieldsRepo())

	_, err := svc.Create(context.Background(), CreateInput{
		APIName: "score__c", DisplayName: "Score", Type: "DECIMAL",
	})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreate_WrappedNotFoundFromLookup(t *testing.T) {
	repo := newFakeFieldsRepo()
	repo.findErr = fmt.Errorf("lookup: %w", repository.ErrNotFound)
	svc := New(repo)

	_, err := svc.Create(context.Background(), CreateInput{
		APIName: "notes__c", DisplayName: "Notes", Type: "TEXT",
	})
	assert.NoError(t, err)
}

func TestGet(t *testing.T) {
	repo := newFakeFieldsRepo()
	svc := New(repo)

	def, err := svc.Create(context.Background(), CreateInput{
		APIName: "notes__c", DisplayName: "Notes", Type: "TEXT",
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), def.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes__c", got.APIName)

	// deactivated definitions stay readable
	require.NoError(t, svc.Deactivate(context.Background(), def.ID))
	got, err = svc.Get(context.Background(), def.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
