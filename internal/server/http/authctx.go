package httpserver

import (
	"context"

	"github.com/athenax/reviewd/internal/model"
)

type ctxKey string

const (
	principalKey ctxKey = "reviewd.principal"
	subjectKey   ctxKey = "reviewd.subject"
)

// WithPrincipal stores the authenticated principal in context.
func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromCtx fetches the authenticated principal, nil when anonymous.
func PrincipalFromCtx(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(principalKey).(*model.Principal)
	return p
}

// WithSubject stores a verified token subject that may not yet have a
// principal (pre-registration).
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

// SubjectFromCtx fetches the verified token subject, empty when anonymous.
func SubjectFromCtx(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}
