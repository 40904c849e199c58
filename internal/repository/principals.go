package repository

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/model"
)

// PrincipalsCollection names the principal document collection.
const PrincipalsCollection = "principals"

// PrincipalRepo stores principals. The subject field is unique per store
// schema; lookups by subject back both token verification and provisioning.
type PrincipalRepo struct {
	*Repository[model.Principal, model.PrincipalOut, model.PrincipalCreate]
}

// NewPrincipalRepo constructs a principal repository over store.
func NewPrincipalRepo(store DocumentStore) *PrincipalRepo {
	return &PrincipalRepo{New(store, Mapping[model.Principal, model.PrincipalOut, model.PrincipalCreate]{
		Collection: PrincipalsCollection,
		FromCreate: func(c model.PrincipalCreate) (model.Principal, error) {
			role := c.Role
			if role == "" {
				role = model.RoleUser
			}
			return model.Principal{
				Subject:     c.Subject,
				Email:       c.Email,
				AccountType: c.AccountType,
				Role:        role,
			}, nil
		},
		ToOutput: PrincipalOut,
		ID:       func(p *model.Principal) *uuid.UUID { return &p.ID },
	})}
}

// PrincipalOut projects a principal outward, dropping credential material.
func PrincipalOut(p model.Principal) model.PrincipalOut {
	return model.PrincipalOut{
		ID:          p.ID.String(),
		Subject:     p.Subject,
		Role:        p.Role,
		AccountType: p.AccountType,
		Email:       p.Email,
		HasProfile:  p.HasProfile,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// EntityBySubject loads the principal registered for an external subject.
// Reports errs.ErrNotFound when the subject is unknown.
func (r *PrincipalRepo) EntityBySubject(ctx context.Context, subject string) (*model.Principal, error) {
	ents, err := r.Entities(ctx, FindOptions{Filter: &Filter{Field: "subject", Value: subject}})
	if err != nil {
		return nil, err
	}
	if len(ents) == 0 {
		return nil, fmt.Errorf("%w: subject %q", errs.ErrNotFound, subject)
	}
	return &ents[0], nil
}
