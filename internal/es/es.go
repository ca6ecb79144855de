// Package es wraps the Elasticsearch client for the contact index: index
// lifecycle, idempotent document writes, and query/aggregation execution.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/hyeonlog/contact-hub/internal/config"
	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/search"
	"go.uber.org/zap"
)

func NewClient(cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
}

// ContactIndex is the denormalized read model. Upsert and Delete are
// idempotent by contract: last write wins by id, delete tolerates not-found.
type ContactIndex struct {
	es    *elasticsearch.Client
	index string
	log   *zap.Logger
}

func NewContactIndex(es *elasticsearch.Client, index string, log *zap.Logger) *ContactIndex {
	return &ContactIndex{es: es, index: index, log: log}
}

// Ensure creates the index with the schema-derived mapping if it does not
// exist yet.
func (i *ContactIndex) Ensure(ctx context.Context, defs []*model.FieldDefinition) error {
	res, err := i.es.Indices.Exists([]string{i.index}, i.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index: %s", res.Status())
	}

	body, err := json.Marshal(search.BuildIndexMapping(defs))
	if err != nil {
		return err
	}
	createRes, err := i.es.Indices.Create(i.index,
		i.es.Indices.Create.WithBody(bytes.NewReader(body)),
		i.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("create index: %s", createRes.Status())
	}

	i.log.Info("created search index", zap.String("index", i.index))
	return nil
}

// Upsert indexes the snapshot keyed by contact id. Re-applying the same
// snapshot leaves the document unchanged.
func (i *ContactIndex) Upsert(ctx context.Context, doc model.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	res, err := i.es.Index(i.index, bytes.NewReader(body),
		i.es.Index.WithDocumentID(doc.ID),
		i.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index document %s: %s", doc.ID, res.Status())
	}
	return nil
}

// Delete removes a document. Not-found counts as success.
func (i *ContactIndex) Delete(ctx context.Context, id string) error {
	res, err := i.es.Delete(i.index, id, i.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		i.log.Debug("document already absent", zap.String("id", id))
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("delete document %s: %s", id, res.Status())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source model.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key      any   `json:"key"`
			DocCount int64 `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

func (i *ContactIndex) execute(ctx context.Context, body map[string]any) (*searchResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	res, err := i.es.Search(
		i.es.Search.WithIndex(i.index),
		i.es.Search.WithBody(bytes.NewReader(raw)),
		i.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &parsed, nil
}

// Search runs a built query body and returns the page and exact total.
func (i *ContactIndex) Search(ctx context.Context, body map[string]any) ([]model.Document, int64, error) {
	parsed, err := i.execute(ctx, body)
	if err != nil {
		return nil, 0, err
	}

	docs := make([]model.Document, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, parsed.Hits.Total.Value, nil
}

// Aggregate runs a built terms-aggregation body and returns its buckets.
func (i *ContactIndex) Aggregate(ctx context.Context, body map[string]any) ([]model.Bucket, error) {
	parsed, err := i.execute(ctx, body)
	if err != nil {
		return nil, err
	}

	agg, ok := parsed.Aggregations["group_by_field"]
	if !ok {
		return nil, nil
	}
	buckets := make([]model.Bucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		buckets = append(buckets, model.Bucket{Key: fmt.Sprintf("%v", b.Key), Count: b.DocCount})
	}
	return buckets, nil
}
