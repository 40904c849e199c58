// Package memory contains an in-process DocumentStore used by tests and
// single-node development setups.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/repository"
)

// Store keeps raw documents per collection under one mutex. Matching the
// postgres backend, Find filters on one top-level field and can sort
// descending by one field.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[uuid.UUID][]byte
}

// New constructs an empty store.
func New() *Store {
	return &Store{data: make(map[string]map[uuid.UUID][]byte)}
}

// Insert stores a new document.
func (s *Store) Insert(_ context.Context, collection string, doc repository.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.data[collection]
	if coll == nil {
		coll = make(map[uuid.UUID][]byte)
		s.data[collection] = coll
	}
	if _, exists := coll[doc.ID]; exists {
		return fmt.Errorf("%w: %s %s", errs.ErrAlreadyExists, collection, doc.ID)
	}
	coll[doc.ID] = append([]byte(nil), doc.Data...)
	return nil
}

// Get loads a document by id.
func (s *Store) Get(_ context.Context, collection string, id uuid.UUID) (repository.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[collection][id]
	if !ok {
		return repository.Document{}, fmt.Errorf("%w: %s %s", errs.ErrNotFound, collection, id)
	}
	return repository.Document{ID: id, Data: append([]byte(nil), data...)}, nil
}

// Update overwrites an existing document.
func (s *Store) Update(_ context.Context, collection string, doc repository.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.data[collection]
	if _, ok := coll[doc.ID]; !ok {
		return fmt.Errorf("%w: %s %s", errs.ErrNotFound, collection, doc.ID)
	}
	coll[doc.ID] = append([]byte(nil), doc.Data...)
	return nil
}

// Delete removes a document by id.
func (s *Store) Delete(_ context.Context, collection string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.data[collection]
	if _, ok := coll[id]; !ok {
		return fmt.Errorf("%w: %s %s", errs.ErrNotFound, collection, id)
	}
	delete(coll, id)
	return nil
}

// Find returns documents matching opts.
func (s *Store) Find(_ context.Context, collection string, opts repository.FindOptions) ([]repository.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type row struct {
		doc    repository.Document
		fields map[string]any
	}
	var rows []row
	for id, data := range s.data[collection] {
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("%w: decode %s %s: %v", errs.ErrStorage, collection, id, err)
		}
		if opts.Filter != nil && fieldString(fields, opts.Filter.Field) != opts.Filter.Value {
			continue
		}
		rows = append(rows, row{
			doc:    repository.Document{ID: id, Data: append([]byte(nil), data...)},
			fields: fields,
		})
	}

	if opts.SortField != "" {
		// RFC 3339 timestamps and canonical uuids both order correctly as strings.
		sort.Slice(rows, func(i, j int) bool {
			return fieldString(rows[i].fields, opts.SortField) > fieldString(rows[j].fields, opts.SortField)
		})
	} else {
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].doc.ID.String() < rows[j].doc.ID.String()
		})
	}

	docs := make([]repository.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.doc)
	}
	return docs, nil
}

func fieldString(fields map[string]any, name string) string {
	v, ok := fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
