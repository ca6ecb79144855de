// Package fields manages the custom field registry.
package fields

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/repository"
	"github.com/hyeonlog/contact-hub/internal/util"
)

var ErrNotFound = repository.ErrNotFound

type Service struct {
	fields repository.FieldDefinitionsRepository
}

func New(fieldsRepo repository.FieldDefinitionsRepository) *Service {
	return &Service{fields: fieldsRepo}
}

type CreateInput struct {
	APIName     string
	DisplayName string
	Type        string
	Required    bool
	Options     []string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*model.FieldDefinition, error) {
	ft, ok := model.ParseFieldType(in.Type)
	if !ok {
		return nil, &model.ValidationError{Field: in.APIName, Reason: fmt.Sprintf("unknown field type %q", in.Type)}
	}

	if _, err := s.fields.FindByAPIName(ctx, in.APIName); err == nil {
		return nil, &model.ValidationError{Field: "apiName", Reason: "api name already exists"}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	def, err := model.NewFieldDefinition(model.NewFieldDefinitionArgs{
		ID:          util.New(),
		APIName:     in.APIName,
		DisplayName: in.DisplayName,
		Type:        ft,
		Required:    in.Required,
		Options:     in.Options,
	})
	if err != nil {
		return nil, err
	}

	if err := s.fields.Insert(ctx, def); err != nil {
		return nil, fmt.Errorf("insert field definition: %w", err)
	}
	return def, nil
}

// Get returns the definition regardless of active state, so deactivated
// fields stay inspectable.
func (s *Service) Get(ctx context.Context, id string) (*model.FieldDefinition, error) {
	return s.fields.FindByID(ctx, id)
}

func (s *Service) ListActive(ctx context.Context) ([]*model.FieldDefinition, error) {
	return s.fields.ListActive(ctx)
}

// Deactivate soft-deletes the definition. Stored values stay in place and
// keep appearing in reads, but new writes against the field are rejected.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.fields.Deactivate(ctx, id)
}
