package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/model"
	"github.com/athenax/reviewd/internal/repository"
)

// SubmissionService runs the review workflow for one submission kind
// (audit or research); the two kinds share this logic over separate
// collections.
//
// Writes are last-writer-wins at document granularity: two concurrent
// mutations of the same submission race, and the earlier writer's changes to
// non-overlapping fields can be lost. That property is intentional and
// covered by tests; there is no version token on submissions.
type SubmissionService struct {
	repo *repository.SubmissionRepo
	now  func() time.Time
}

// NewSubmissionService constructs the workflow service over repo.
func NewSubmissionService(repo *repository.SubmissionRepo) *SubmissionService {
	return &SubmissionService{repo: repo, now: time.Now}
}

// Create stores a new submission in the Submitted state, owned by actor.
func (s *SubmissionService) Create(ctx context.Context, payload json.RawMessage, actor *model.Principal) (model.SubmissionOut, error) {
	if actor == nil {
		return model.SubmissionOut{}, errs.ErrNoCredentials
	}
	if len(payload) == 0 {
		return model.SubmissionOut{}, fmt.Errorf("%w: empty payload", errs.ErrValidation)
	}
	return s.repo.Create(ctx, model.SubmissionCreate{
		Payload:      payload,
		OwnerSubject: actor.Subject,
	}, actor)
}

// Edit replaces the payload. Only the owner may edit, and an owner edit
// restarts review: the state is forced to Checking regardless of what it was,
// including terminal states. This is the single sanctioned exception to the
// transition table.
func (s *SubmissionService) Edit(ctx context.Context, id string, payload json.RawMessage, actor *model.Principal) (model.SubmissionOut, error) {
	if actor == nil {
		return model.SubmissionOut{}, errs.ErrNoCredentials
	}
	if len(payload) == 0 {
		return model.SubmissionOut{}, fmt.Errorf("%w: empty payload", errs.ErrValidation)
	}
	ent, err := s.repo.Entity(ctx, id)
	if err != nil {
		return model.SubmissionOut{}, err
	}
	if ent.OwnerSubject != actor.Subject {
		return model.SubmissionOut{}, fmt.Errorf("%w: not the owner", errs.ErrPermissionDenied)
	}
	return s.repo.Update(ctx, id, func(sub *model.Submission) {
		sub.Payload = payload
		sub.State = model.StateChecking
	}, actor)
}

// AddComment appends a comment. Commenting requires read access: the owner or
// a reviewer role. When the author is a reviewer and the submission is not
// terminal, commenting also moves it to Update Info, the one place a role
// directly drives a state transition.
func (s *SubmissionService) AddComment(ctx context.Context, id, content string, actor *model.Principal) (model.Comment, error) {
	if actor == nil {
		return model.Comment{}, errs.ErrNoCredentials
	}
	if content == "" {
		return model.Comment{}, fmt.Errorf("%w: empty comment", errs.ErrValidation)
	}
	ent, err := s.repo.Entity(ctx, id)
	if err != nil {
		return model.Comment{}, err
	}
	if !actor.Role.Reviewer() && ent.OwnerSubject != actor.Subject {
		return model.Comment{}, fmt.Errorf("%w: not the owner", errs.ErrPermissionDenied)
	}
	cid, err := uuid.NewV4()
	if err != nil {
		return model.Comment{}, fmt.Errorf("%w: id generation: %v", errs.ErrStorage, err)
	}
	comment := model.Comment{
		ID:         cid,
		AuthorRole: actor.Role,
		Content:    content,
		CreatedAt:  s.now(),
	}
	_, err = s.repo.Update(ctx, id, func(sub *model.Submission) {
		sub.Comments = append(sub.Comments, comment)
		if actor.Role == model.RoleReviewerBD && !sub.State.Terminal() {
			sub.State = model.StateUpdateInfo
		}
	}, actor)
	if err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

// SetState is the explicit administrative transition. Only admins and
// reviewers may call it, and the requested transition must follow an edge of
// the workflow table; terminal states have none.
func (s *SubmissionService) SetState(ctx context.Context, id string, next model.ReportState, actor *model.Principal) (model.SubmissionOut, error) {
	if actor == nil {
		return model.SubmissionOut{}, errs.ErrNoCredentials
	}
	if !actor.Role.Reviewer() {
		return model.SubmissionOut{}, fmt.Errorf("%w: state changes require a reviewer role", errs.ErrPermissionDenied)
	}
	if !next.Valid() {
		return model.SubmissionOut{}, fmt.Errorf("%w: unknown state %q", errs.ErrValidation, next)
	}
	ent, err := s.repo.Entity(ctx, id)
	if err != nil {
		return model.SubmissionOut{}, err
	}
	if !ent.State.CanTransition(next) {
		return model.SubmissionOut{}, fmt.Errorf("%w: illegal transition %q -> %q", errs.ErrValidation, ent.State, next)
	}
	return s.repo.Update(ctx, id, func(sub *model.Submission) {
		sub.State = next
	}, actor)
}

// GetByID returns one submission. Regular users only see their own;
// reviewers and admins see all.
func (s *SubmissionService) GetByID(ctx context.Context, id string, actor *model.Principal) (model.SubmissionOut, error) {
	if actor == nil {
		return model.SubmissionOut{}, errs.ErrNoCredentials
	}
	ent, err := s.repo.Entity(ctx, id)
	if err != nil {
		return model.SubmissionOut{}, err
	}
	if !actor.Role.Reviewer() && ent.OwnerSubject != actor.Subject {
		return model.SubmissionOut{}, fmt.Errorf("%w: not the owner", errs.ErrPermissionDenied)
	}
	return repository.SubmissionOut(ent), nil
}

// GetAll lists submissions under the read projection: reviewer roles see
// everything, a regular user sees only their own.
func (s *SubmissionService) GetAll(ctx context.Context, actor *model.Principal) ([]model.SubmissionOut, error) {
	if actor == nil {
		return nil, errs.ErrNoCredentials
	}
	if !actor.Role.Reviewer() {
		return s.repo.GetByOwner(ctx, actor.Subject)
	}
	return s.repo.List(ctx, repository.FindOptions{})
}

// GetByOwner lists the actor's own submissions.
func (s *SubmissionService) GetByOwner(ctx context.Context, actor *model.Principal) ([]model.SubmissionOut, error) {
	if actor == nil {
		return nil, errs.ErrNoCredentials
	}
	return s.repo.GetByOwner(ctx, actor.Subject)
}

// GetByState lists submissions in a state, newest first, under the same read
// projection as GetAll.
func (s *SubmissionService) GetByState(ctx context.Context, state model.ReportState, actor *model.Principal) ([]model.SubmissionOut, error) {
	if actor == nil {
		return nil, errs.ErrNoCredentials
	}
	if !state.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", errs.ErrValidation, state)
	}
	if !actor.Role.Reviewer() {
		own, err := s.repo.GetByOwner(ctx, actor.Subject)
		if err != nil {
			return nil, err
		}
		outs := make([]model.SubmissionOut, 0, len(own))
		for _, o := range own {
			if o.State == state {
				outs = append(outs, o)
			}
		}
		return outs, nil
	}
	return s.repo.GetByState(ctx, state)
}
