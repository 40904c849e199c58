package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/model"
)

// DefaultLeeway absorbs small clock skew when validating time claims.
const DefaultLeeway = 10 * time.Second

// signingAlg is the single accepted algorithm. Tokens declaring anything else
// are rejected before the keyfunc runs, closing the downgrade path.
const signingAlg = "ES256"

// PrincipalResolver looks up a principal by external token subject.
// Returns errs.ErrNotFound for unknown subjects.
type PrincipalResolver interface {
	EntityBySubject(ctx context.Context, subject string) (*model.Principal, error)
}

// Verifier validates bearer tokens and resolves them to principals. It never
// provisions principals; registration is an explicit operation a layer above.
type Verifier struct {
	keys       *KeyCache
	issuer     string
	audience   string
	leeway     time.Duration
	principals PrincipalResolver
}

// NewVerifier constructs a Verifier with the configured issuer/audience pins.
func NewVerifier(keys *KeyCache, issuer, audience string, leeway time.Duration, principals PrincipalResolver) *Verifier {
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{keys: keys, issuer: issuer, audience: audience, leeway: leeway, principals: principals}
}

// Verify validates raw and resolves its subject to a registered principal.
// Fails ErrNoCredentials on an empty token, ErrKeySetUnavailable/ErrUnknownKey
// on key trouble, ErrInvalidToken on any signature or claim mismatch, and
// ErrPrincipalNotFound for a valid token whose subject is not registered.
func (v *Verifier) Verify(ctx context.Context, raw string) (*model.Principal, error) {
	sub, err := v.VerifySubject(ctx, raw)
	if err != nil {
		return nil, err
	}
	p, err := v.principals.EntityBySubject(ctx, sub)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: subject %q", errs.ErrPrincipalNotFound, sub)
		}
		return nil, err
	}
	return p, nil
}

// TryVerify is the optional-auth variant: missing credentials, an unknown
// subject, or an unreachable key set all degrade to anonymous (nil principal),
// but a present-and-invalid token remains a hard failure. The verified subject
// is returned even when no principal exists yet, so callers can offer explicit
// registration.
func (v *Verifier) TryVerify(ctx context.Context, raw string) (*model.Principal, string, error) {
	if raw == "" {
		return nil, "", nil
	}
	sub, err := v.VerifySubject(ctx, raw)
	if err != nil {
		if errors.Is(err, errs.ErrKeySetUnavailable) {
			return nil, "", nil
		}
		return nil, "", err
	}
	p, err := v.principals.EntityBySubject(ctx, sub)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, sub, nil
		}
		return nil, "", err
	}
	return p, sub, nil
}

// VerifySubject checks signature and claims only, returning the token subject.
func (v *Verifier) VerifySubject(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", errs.ErrNoCredentials
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingAlg}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(raw, claims, v.keyfunc(ctx))
	if err != nil {
		// Key-cache failures pass through distinguishable; everything else
		// collapses into the invalid-token kind.
		if errors.Is(err, errs.ErrKeySetUnavailable) || errors.Is(err, errs.ErrUnknownKey) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", errs.ErrInvalidToken)
	}
	return claims.Subject, nil
}

// keyfunc resolves the unverified kid header through the shared key cache,
// carrying the request context into the fetch path.
func (v *Verifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid header", errs.ErrInvalidToken)
		}
		return v.keys.Key(ctx, kid)
	}
}
