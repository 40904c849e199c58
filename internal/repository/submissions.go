package repository

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/model"
)

// Submission collections. Audit and research records share one shape but
// live in separate collections, each with its own payload schema upstream.
const (
	AuditCollection    = "audit_submit"
	ResearchCollection = "research_submit"
)

// SubmissionRepo stores one kind of submission (audit or research).
type SubmissionRepo struct {
	*Repository[model.Submission, model.SubmissionOut, model.SubmissionCreate]
}

// NewSubmissionRepo constructs a submission repository for the given collection.
func NewSubmissionRepo(store DocumentStore, collection string) *SubmissionRepo {
	return &SubmissionRepo{New(store, Mapping[model.Submission, model.SubmissionOut, model.SubmissionCreate]{
		Collection: collection,
		FromCreate: func(c model.SubmissionCreate) (model.Submission, error) {
			if c.OwnerSubject == "" {
				return model.Submission{}, fmt.Errorf("%w: missing owner subject", errs.ErrValidation)
			}
			return model.Submission{
				OwnerSubject: c.OwnerSubject,
				State:        model.DefaultState,
				Payload:      c.Payload,
				Comments:     []model.Comment{},
			}, nil
		},
		ToOutput: SubmissionOut,
		ID:       func(s *model.Submission) *uuid.UUID { return &s.ID },
	})}
}

// SubmissionOut projects a submission outward with canonical string ids.
func SubmissionOut(s model.Submission) model.SubmissionOut {
	out := model.SubmissionOut{
		ID:           s.ID.String(),
		OwnerSubject: s.OwnerSubject,
		State:        s.State,
		Payload:      s.Payload,
		Comments:     s.Comments,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.CreatedBy != nil {
		v := s.CreatedBy.String()
		out.CreatedBy = &v
	}
	if s.UpdatedBy != nil {
		v := s.UpdatedBy.String()
		out.UpdatedBy = &v
	}
	return out
}

// GetByOwner lists submissions owned by subject.
func (r *SubmissionRepo) GetByOwner(ctx context.Context, subject string) ([]model.SubmissionOut, error) {
	return r.List(ctx, FindOptions{Filter: &Filter{Field: "owner_subject", Value: subject}})
}

// GetByState lists submissions in state, newest first.
func (r *SubmissionRepo) GetByState(ctx context.Context, state model.ReportState) ([]model.SubmissionOut, error) {
	return r.List(ctx, FindOptions{
		Filter:    &Filter{Field: "state", Value: string(state)},
		SortField: "created_at",
	})
}
