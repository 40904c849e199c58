// Package repository defines the keyed-document storage boundary and a
// generic typed repository implemented on top of it.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/model"
)

// Document is a raw stored record: canonical identifier plus JSON body.
type Document struct {
	ID   uuid.UUID
	Data []byte
}

// Filter is an exact match on one top-level document field.
type Filter struct {
	Field string
	Value string
}

// FindOptions narrows and orders a Find. SortField, when set, orders
// descending by that field; the boundary supports exactly one sort field.
type FindOptions struct {
	Filter    *Filter
	SortField string
}

// DocumentStore is the abstract keyed-document store every entity lives in.
// Implementations report errs.ErrNotFound for absent ids and wrap anything
// unexpected into errs.ErrStorage.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, doc Document) error
	Get(ctx context.Context, collection string, id uuid.UUID) (Document, error)
	Update(ctx context.Context, collection string, doc Document) error
	Delete(ctx context.Context, collection string, id uuid.UUID) error
	Find(ctx context.Context, collection string, opts FindOptions) ([]Document, error)
}

// Timestamped is implemented by entities embedding model.Timestamps.
type Timestamped interface {
	TouchCreate(now time.Time)
	TouchUpdate(now time.Time)
	Created() time.Time
	SetCreated(at time.Time)
}

// Audited is implemented by entities embedding model.Audit.
type Audited interface {
	StampCreate(actor uuid.UUID)
	StampUpdate(actor uuid.UUID)
}

// Mapping binds the three shapes of one entity family: the storage entity E,
// the outward projection O, and the creation payload C.
type Mapping[E any, O any, C any] struct {
	Collection string
	FromCreate func(c C) (E, error)
	ToOutput   func(e E) O
	// ID returns a pointer to the entity's identifier so the repository can
	// assign and restore it.
	ID func(e *E) *uuid.UUID
}

// Repository provides typed CRUD over a DocumentStore for one entity family.
// Writes are last-writer-wins; there is no optimistic-concurrency token.
type Repository[E any, O any, C any] struct {
	store DocumentStore
	m     Mapping[E, O, C]
	now   func() time.Time
}

// New constructs a repository from a store and a mapping.
func New[E any, O any, C any](store DocumentStore, m Mapping[E, O, C]) *Repository[E, O, C] {
	return &Repository[E, O, C]{store: store, m: m, now: time.Now}
}

// ParseID parses a canonical uuid string. Only the canonical lowercase form
// round-trips; anything else reports errs.ErrNotFound, matching the contract
// that a malformed id is indistinguishable from an absent one.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil || id.String() != s {
		return uuid.Nil, fmt.Errorf("%w: bad id %q", errs.ErrNotFound, s)
	}
	return id, nil
}

// GetByID loads one entity and projects it outward.
func (r *Repository[E, O, C]) GetByID(ctx context.Context, id string) (O, error) {
	var zero O
	e, err := r.Entity(ctx, id)
	if err != nil {
		return zero, err
	}
	return r.m.ToOutput(e), nil
}

// Entity loads one raw entity. Services use this for guard checks before a
// mutation; external callers only ever see the O projection.
func (r *Repository[E, O, C]) Entity(ctx context.Context, id string) (E, error) {
	var zero E
	uid, err := ParseID(id)
	if err != nil {
		return zero, err
	}
	doc, err := r.store.Get(ctx, r.m.Collection, uid)
	if err != nil {
		return zero, err
	}
	return r.decode(doc)
}

// List returns projections of all entities matching opts.
func (r *Repository[E, O, C]) List(ctx context.Context, opts FindOptions) ([]O, error) {
	ents, err := r.Entities(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]O, 0, len(ents))
	for i := range ents {
		out = append(out, r.m.ToOutput(ents[i]))
	}
	return out, nil
}

// Entities returns raw entities matching opts.
func (r *Repository[E, O, C]) Entities(ctx context.Context, opts FindOptions) ([]E, error) {
	docs, err := r.store.Find(ctx, r.m.Collection, opts)
	if err != nil {
		return nil, err
	}
	ents := make([]E, 0, len(docs))
	for _, d := range docs {
		e, err := r.decode(d)
		if err != nil {
			return nil, err
		}
		ents = append(ents, e)
	}
	return ents, nil
}

// Create materializes C into a fresh entity, assigns an identifier, stamps
// timestamps and audit fields when the entity carries them, and stores it.
func (r *Repository[E, O, C]) Create(ctx context.Context, c C, actor *model.Principal) (O, error) {
	var zero O
	e, err := r.m.FromCreate(c)
	if err != nil {
		return zero, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return zero, fmt.Errorf("%w: id generation: %v", errs.ErrStorage, err)
	}
	*r.m.ID(&e) = id

	if ts, ok := any(&e).(Timestamped); ok {
		ts.TouchCreate(r.now())
	}
	if actor != nil {
		if au, ok := any(&e).(Audited); ok {
			au.StampCreate(actor.ID)
		}
	}

	doc, err := r.encode(&e)
	if err != nil {
		return zero, err
	}
	if err := r.store.Insert(ctx, r.m.Collection, doc); err != nil {
		return zero, err
	}
	return r.m.ToOutput(e), nil
}

// Update loads the entity, applies the partial mutation, and writes it back.
// Only fields the apply function touches change; the identifier and creation
// time are restored even if apply touched them. UpdatedAt/UpdatedBy are
// stamped when the entity carries them. Last writer wins: a concurrent update
// on the same entity can overwrite this one's non-overlapping field changes.
func (r *Repository[E, O, C]) Update(ctx context.Context, id string, apply func(e *E), actor *model.Principal) (O, error) {
	var zero O
	e, err := r.Entity(ctx, id)
	if err != nil {
		return zero, err
	}

	keepID := *r.m.ID(&e)
	var keepCreated time.Time
	ts, timestamped := any(&e).(Timestamped)
	if timestamped {
		keepCreated = ts.Created()
	}

	if apply != nil {
		apply(&e)
	}

	*r.m.ID(&e) = keepID
	if timestamped {
		ts.SetCreated(keepCreated)
		ts.TouchUpdate(r.now())
	}
	if actor != nil {
		if au, ok := any(&e).(Audited); ok {
			au.StampUpdate(actor.ID)
		}
	}

	doc, err := r.encode(&e)
	if err != nil {
		return zero, err
	}
	if err := r.store.Update(ctx, r.m.Collection, doc); err != nil {
		return zero, err
	}
	return r.m.ToOutput(e), nil
}

// DeleteByID removes one entity.
func (r *Repository[E, O, C]) DeleteByID(ctx context.Context, id string) error {
	uid, err := ParseID(id)
	if err != nil {
		return err
	}
	return r.store.Delete(ctx, r.m.Collection, uid)
}

func (r *Repository[E, O, C]) encode(e *E) (Document, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Document{}, fmt.Errorf("%w: encode %s: %v", errs.ErrStorage, r.m.Collection, err)
	}
	return Document{ID: *r.m.ID(e), Data: data}, nil
}

func (r *Repository[E, O, C]) decode(doc Document) (E, error) {
	var e E
	if err := json.Unmarshal(doc.Data, &e); err != nil {
		return e, fmt.Errorf("%w: decode %s %s: %v", errs.ErrStorage, r.m.Collection, doc.ID, err)
	}
	return e, nil
}
