package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/repository"
)

// identPattern guards collection and field names interpolated into SQL.
// Values always travel as bind parameters.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Store implements repository.DocumentStore on jsonb document tables, one
// table per collection: (id uuid primary key, doc jsonb not null).
type Store struct{ db *DB }

// NewStore constructs a document store over db.
func NewStore(db *DB) *Store { return &Store{db: db} }

// Insert stores a new document row.
func (s *Store) Insert(ctx context.Context, collection string, doc repository.Document) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, collection)
	_, err := s.db.Pool.Exec(ctx, q, doc.ID, doc.Data)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %s", errs.ErrAlreadyExists, collection, doc.ID)
	}
	if err != nil {
		return storeErr("insert", collection, doc.ID, err)
	}
	return nil
}

// Get loads a document row by id.
func (s *Store) Get(ctx context.Context, collection string, id uuid.UUID) (repository.Document, error) {
	if err := checkIdent(collection); err != nil {
		return repository.Document{}, err
	}
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE id=$1`, collection)
	var data []byte
	if err := s.db.Pool.QueryRow(ctx, q, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Document{}, fmt.Errorf("%w: %s %s", errs.ErrNotFound, collection, id)
		}
		return repository.Document{}, storeErr("get", collection, id, err)
	}
	return repository.Document{ID: id, Data: data}, nil
}

// Update overwrites an existing document row.
func (s *Store) Update(ctx context.Context, collection string, doc repository.Document) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET doc=$2 WHERE id=$1`, collection)
	tag, err := s.db.Pool.Exec(ctx, q, doc.ID, doc.Data)
	if err != nil {
		return storeErr("update", collection, doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", errs.ErrNotFound, collection, doc.ID)
	}
	return nil
}

// Delete removes a document row by id.
func (s *Store) Delete(ctx context.Context, collection string, id uuid.UUID) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, collection)
	tag, err := s.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return storeErr("delete", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", errs.ErrNotFound, collection, id)
	}
	return nil
}

// Find returns document rows matching opts. The sort field is cast to
// timestamptz so RFC 3339 values order chronologically.
func (s *Store) Find(ctx context.Context, collection string, opts repository.FindOptions) ([]repository.Document, error) {
	if err := checkIdent(collection); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT id, doc FROM %s`, collection)
	var args []any
	if opts.Filter != nil {
		if err := checkIdent(opts.Filter.Field); err != nil {
			return nil, err
		}
		q += fmt.Sprintf(` WHERE doc->>'%s' = $1`, opts.Filter.Field)
		args = append(args, opts.Filter.Value)
	}
	if opts.SortField != "" {
		if err := checkIdent(opts.SortField); err != nil {
			return nil, err
		}
		q += fmt.Sprintf(` ORDER BY (doc->>'%s')::timestamptz DESC`, opts.SortField)
	} else {
		q += ` ORDER BY id`
	}

	rows, err := s.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, storeErr("find", collection, uuid.Nil, err)
	}
	defer rows.Close()

	var docs []repository.Document
	for rows.Next() {
		var d repository.Document
		if err := rows.Scan(&d.ID, &d.Data); err != nil {
			return nil, storeErr("find scan", collection, uuid.Nil, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("find rows", collection, uuid.Nil, err)
	}
	return docs, nil
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: bad identifier %q", errs.ErrStorage, name)
	}
	return nil
}

// storeErr wraps engine failures into the single storage kind with enough
// context to locate the failing entity. Context cancellation passes through.
func storeErr(op, collection string, id uuid.UUID, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if id == uuid.Nil {
		return fmt.Errorf("%w: %s %s: %v", errs.ErrStorage, op, collection, err)
	}
	return fmt.Errorf("%w: %s %s %s: %v", errs.ErrStorage, op, collection, id, err)
}
