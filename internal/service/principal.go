// Package service contains application services for principals and the
// submission review workflow.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgcrypto "github.com/athenax/reviewd/internal/crypto"
	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/model"
	"github.com/athenax/reviewd/internal/repository"
)

// GoogleOAuth is the account type whose company-domain emails are promoted
// to the reviewer role at provisioning time.
const GoogleOAuth = "google_oauth"

// PrincipalService provisions and manages principals. Provisioning is an
// explicit operation; token verification never creates principals as a side
// effect.
type PrincipalService struct {
	repo           *repository.PrincipalRepo
	reviewerDomain string
}

// NewPrincipalService constructs the service. reviewerDomain, when non-empty,
// enables the reviewer-role promotion rule for matching OAuth emails.
func NewPrincipalService(repo *repository.PrincipalRepo, reviewerDomain string) *PrincipalService {
	return &PrincipalService{repo: repo, reviewerDomain: reviewerDomain}
}

// Provision registers a principal for a verified external subject. A subject
// already registered fails ErrAlreadyExists. Google OAuth accounts on the
// reviewer domain are promoted to the reviewer role; everyone else starts as
// a regular user.
func (s *PrincipalService) Provision(ctx context.Context, c model.PrincipalCreate) (model.PrincipalOut, error) {
	if c.Subject == "" {
		return model.PrincipalOut{}, fmt.Errorf("%w: empty subject", errs.ErrValidation)
	}

	if _, err := s.repo.EntityBySubject(ctx, c.Subject); err == nil {
		return model.PrincipalOut{}, fmt.Errorf("%w: subject %q", errs.ErrAlreadyExists, c.Subject)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return model.PrincipalOut{}, err
	}

	c.Role = model.RoleUser
	if s.promoteToReviewer(c) {
		c.Role = model.RoleReviewerBD
	}
	return s.repo.Create(ctx, c, nil)
}

func (s *PrincipalService) promoteToReviewer(c model.PrincipalCreate) bool {
	if s.reviewerDomain == "" || c.AccountType == nil || *c.AccountType != GoogleOAuth {
		return false
	}
	return strings.HasSuffix(c.Email, "@"+s.reviewerDomain)
}

// EntityBySubject resolves a subject to its principal; the token verifier
// depends on this through authn.PrincipalResolver.
func (s *PrincipalService) EntityBySubject(ctx context.Context, subject string) (*model.Principal, error) {
	return s.repo.EntityBySubject(ctx, subject)
}

// Get returns the outward projection of one principal.
func (s *PrincipalService) Get(ctx context.Context, id string) (model.PrincipalOut, error) {
	return s.repo.GetByID(ctx, id)
}

// SetPassword attaches local credentials to a principal.
func (s *PrincipalService) SetPassword(ctx context.Context, id, password string) error {
	if len(password) < pkgcrypto.MinPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, pkgcrypto.MinPasswordLen)
	}
	salt, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return err
	}
	hash := pkgcrypto.HashPassword([]byte(password), salt)
	_, err = s.repo.Update(ctx, id, func(p *model.Principal) {
		p.SaltAuth = salt
		p.PwdHash = hash
	}, nil)
	return err
}

// CheckPassword verifies local credentials for a subject. A principal without
// local credentials, or a wrong password, fails ErrPermissionDenied; the two
// cases are indistinguishable to the caller.
func (s *PrincipalService) CheckPassword(ctx context.Context, subject, password string) (*model.Principal, error) {
	p, err := s.repo.EntityBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrPermissionDenied
		}
		return nil, err
	}
	if !pkgcrypto.VerifyPassword([]byte(password), p.SaltAuth, p.PwdHash) {
		return nil, errs.ErrPermissionDenied
	}
	return p, nil
}
