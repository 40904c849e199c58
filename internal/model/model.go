// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the privilege level attached to a principal.
type Role string

const (
	// RoleUser is the default role with basic privileges.
	RoleUser Role = "user"
	// RoleReviewerBD reviews submissions; commenting by this role advances the workflow.
	RoleReviewerBD Role = "bd"
	// RoleAdmin has full privileges.
	RoleAdmin Role = "admin"
)

// Reviewer reports whether the role may see and drive all submissions.
func (r Role) Reviewer() bool { return r == RoleReviewerBD || r == RoleAdmin }

// Timestamps carries creation/modification times shared by all stored entities.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TouchCreate initializes both timestamps.
func (t *Timestamps) TouchCreate(now time.Time) {
	t.CreatedAt = now
	t.UpdatedAt = now
}

// TouchUpdate bumps the modification time only.
func (t *Timestamps) TouchUpdate(now time.Time) { t.UpdatedAt = now }

// Created returns the creation time.
func (t *Timestamps) Created() time.Time { return t.CreatedAt }

// SetCreated restores the creation time; used to keep it immutable across updates.
func (t *Timestamps) SetCreated(at time.Time) { t.CreatedAt = at }

// Audit carries weak references to the principals that created/last changed an entity.
type Audit struct {
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
}

// StampCreate records the creating actor.
func (a *Audit) StampCreate(actor uuid.UUID) {
	a.CreatedBy = &actor
	a.UpdatedBy = &actor
}

// StampUpdate records the last modifying actor.
func (a *Audit) StampUpdate(actor uuid.UUID) { a.UpdatedBy = &actor }

// Principal is an authenticated identity recognized by the system, distinct
// from the raw token subject.
type Principal struct {
	ID          uuid.UUID `json:"id"`
	Subject     string    `json:"subject"` // external token subject, unique
	Role        Role      `json:"role"`
	AccountType *string   `json:"account_type,omitempty"`
	Email       string    `json:"email,omitempty"`
	HasProfile  bool      `json:"has_profile"`

	// Local-credential material; nil for token-only principals.
	PwdHash  []byte `json:"pwd_hash,omitempty"`
	SaltAuth []byte `json:"salt_auth,omitempty"`

	Timestamps
}

// PrincipalOut is the external projection of a principal. Credential material
// never leaves the storage shape.
type PrincipalOut struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Role        Role      `json:"role"`
	AccountType *string   `json:"account_type,omitempty"`
	Email       string    `json:"email,omitempty"`
	HasProfile  bool      `json:"has_profile"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PrincipalCreate is the registration payload for a new principal.
type PrincipalCreate struct {
	Subject     string  `json:"subject"`
	Email       string  `json:"email,omitempty"`
	AccountType *string `json:"account_type,omitempty"`
	Role        Role    `json:"-"` // assigned by the service, never by the caller
}

// Comment is a single reviewer/owner remark on a submission. Comments are
// append-only; none is ever edited or removed.
type Comment struct {
	ID         uuid.UUID `json:"id"`
	AuthorRole Role      `json:"author_role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Submission is an audit or research record progressing through the review
// lifecycle. OwnerSubject never changes after creation.
type Submission struct {
	ID           uuid.UUID       `json:"id"`
	OwnerSubject string          `json:"owner_subject"`
	State        ReportState     `json:"state"`
	Payload      json.RawMessage `json:"payload"`
	Comments     []Comment       `json:"comments"`

	Timestamps
	Audit
}

// SubmissionOut is the external projection of a submission.
type SubmissionOut struct {
	ID           string          `json:"id"`
	OwnerSubject string          `json:"owner_subject"`
	State        ReportState     `json:"state"`
	Payload      json.RawMessage `json:"payload"`
	Comments     []Comment       `json:"comments"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CreatedBy    *string         `json:"created_by,omitempty"`
	UpdatedBy    *string         `json:"updated_by,omitempty"`
}

// SubmissionCreate is the payload for a new submission. OwnerSubject is set
// by the service from the authenticated actor, never trusted from the wire.
type SubmissionCreate struct {
	Payload      json.RawMessage `json:"payload"`
	OwnerSubject string          `json:"-"`
}
