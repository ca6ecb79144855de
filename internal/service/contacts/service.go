// Package contacts orchestrates the contact write path (aggregate validation,
// transactional outbox write, best-effort fast dispatch) and routes read
// queries to either the relational planner or the search index.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyeonlog/contact-hub/internal/es"
	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/outbox"
	"github.com/hyeonlog/contact-hub/internal/query"
	"github.com/hyeonlog/contact-hub/internal/repository"
	"github.com/hyeonlog/contact-hub/internal/search"
	"github.com/hyeonlog/contact-hub/internal/util"
)

var (
	ErrNotFound       = repository.ErrNotFound
	ErrDuplicateEmail = repository.ErrDuplicateEmail
	ErrUnknownEngine  = errors.New("unknown search engine")
)

const (
	EngineMySQL = "mysql"
	EngineES    = "es"
)

type Service struct {
	contacts   repository.ContactsRepository
	fields     repository.FieldDefinitionsRepository
	dispatcher *outbox.Dispatcher
	planner    *query.Planner
	index      *es.ContactIndex
}

func New(
	contactsRepo repository.ContactsRepository,
	fieldsRepo repository.FieldDefinitionsRepository,
	dispatcher *outbox.Dispatcher,
	planner *query.Planner,
	index *es.ContactIndex,
) *Service {
	return &Service{
		contacts:   contactsRepo,
		fields:     fieldsRepo,
		dispatcher: dispatcher,
		planner:    planner,
		index:      index,
	}
}

type CreateInput struct {
	Email        string
	Name         string
	CustomFields map[string]any
}

type UpdateInput struct {
	Name         *string
	CustomFields map[string]any
}

// Create builds and validates the aggregate, persists it atomically with its
// outbox event, then attempts the low-latency dispatch.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Contact, error) {
	if _, err := s.contacts.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	c, err := model.NewContact(util.New(), in.Email, in.Name, time.Now())
	if err != nil {
		return nil, err
	}
	if err := s.applyCustomFields(ctx, c, in.CustomFields); err != nil {
		return nil, err
	}

	if err := s.contacts.SaveWithEvent(ctx, c, model.EventCreated); err != nil {
		// Losing a same-email race surfaces here rather than at FindByEmail.
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("save contact: %w", err)
	}

	doc := c.Document()
	s.dispatcher.TryDispatch(ctx, model.EventCreated, c.ID, &doc)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Contact, error) {
	return s.contacts.FindByID(ctx, id)
}

// Update mutates name and/or custom fields. A nil custom field value clears
// that field.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*model.Contact, error) {
	c, err := s.contacts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if err := c.UpdateName(*in.Name, time.Now()); err != nil {
			return nil, err
		}
	} else {
		c.UpdatedAt = time.Now()
	}
	if err := s.applyCustomFields(ctx, c, in.CustomFields); err != nil {
		return nil, err
	}

	if err := s.contacts.SaveWithEvent(ctx, c, model.EventUpdated); err != nil {
		return nil, fmt.Errorf("save contact: %w", err)
	}

	doc := c.Document()
	s.dispatcher.TryDispatch(ctx, model.EventUpdated, c.ID, &doc)
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.contacts.DeleteWithEvent(ctx, id); err != nil {
		return err
	}
	s.dispatcher.TryDispatch(ctx, model.EventDeleted, id, nil)
	return nil
}

// applyCustomFields resolves each api name through the registry and lets the
// aggregate validate. Unknown fields are validation errors, and nothing is
// persisted on failure.
func (s *Service) applyCustomFields(ctx context.Context, c *model.Contact, fields map[string]any) error {
	for apiName, value := range fields {
		def, err := s.fields.FindByAPIName(ctx, apiName)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &model.ValidationError{Field: apiName, Reason: "unknown custom field"}
			}
			return err
		}

		if value == nil && !def.Required {
			c.RemoveField(def.ID)
			continue
		}
		if err := c.SetField(def, value, util.New()); err != nil {
			return err
		}
	}
	return nil
}

// Search answers the same logical query against either store.
func (s *Service) Search(ctx context.Context, engine string, spec model.QuerySpec) (model.SearchResult, error) {
	switch engine {
	case EngineMySQL:
		return s.planner.Search(ctx, spec)
	case "", EngineES:
		return s.searchES(ctx, spec)
	default:
		return model.SearchResult{}, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

func (s *Service) searchES(ctx context.Context, spec model.QuerySpec) (model.SearchResult, error) {
	spec.Normalize()

	defs, err := s.fields.ListActive(ctx)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("load field definitions: %w", err)
	}

	body, err := search.BuildSearchBody(spec, defs)
	if err != nil {
		return model.SearchResult{}, err
	}
	docs, total, err := s.index.Search(ctx, body)
	if err != nil {
		return model.SearchResult{}, err
	}

	result := model.SearchResult{Data: docs, Total: total}
	if spec.GroupBy != "" {
		aggBody, err := search.BuildAggBody(spec.GroupBy, defs)
		if err != nil {
			return model.SearchResult{}, err
		}
		groups, err := s.index.Aggregate(ctx, aggBody)
		if err != nil {
			return model.SearchResult{}, err
		}
		result.Groups = groups
	}

	result.Paginate(spec)
	return result, nil
}
