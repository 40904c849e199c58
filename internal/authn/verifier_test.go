package authn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/model"
)

const (
	testIssuer   = "privy.io"
	testAudience = "app-test"
)

type fakePrincipals struct {
	bySubject map[string]*model.Principal
	err       error
}

func (f *fakePrincipals) EntityBySubject(_ context.Context, subject string) (*model.Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.bySubject[subject]
	if !ok {
		return nil, fmt.Errorf("%w: subject %q", errs.ErrNotFound, subject)
	}
	return p, nil
}

// jwksServer publishes the given keys as a JWK set over httptest.
func jwksServer(t *testing.T, keys map[string]*ecdsa.PrivateKey) *httptest.Server {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		type outKey struct {
			Kty string `json:"kty"`
			Crv string `json:"crv"`
			Kid string `json:"kid"`
			X   string `json:"x"`
			Y   string `json:"y"`
		}
		var set struct {
			Keys []outKey `json:"keys"`
		}
		for kid, k := range keys {
			set.Keys = append(set.Keys, outKey{
				Kty: "EC",
				Crv: "P-256",
				Kid: kid,
				X:   base64.RawURLEncoding.EncodeToString(k.PublicKey.X.Bytes()),
				Y:   base64.RawURLEncoding.EncodeToString(k.PublicKey.Y.Bytes()),
			})
		}
		_ = json.NewEncoder(w).Encode(set)
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return k
}

func signToken(t *testing.T, key *ecdsa.PrivateKey, kid, subject string, mutate func(*jwt.RegisteredClaims)) string {
	t.Helper()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	if mutate != nil {
		mutate(&claims)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func newVerifier(t *testing.T, jwksURL string, principals PrincipalResolver) *Verifier {
	t.Helper()
	cache := NewKeyCache(NewKeySetClient(jwksURL, time.Second), 5)
	return NewVerifier(cache, testIssuer, testAudience, DefaultLeeway, principals)
}

func TestVerifier_Verify_OK(t *testing.T) {
	t.Parallel()
	key := genKey(t)
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"k1": key})
	want := &model.Principal{Subject: "did:privy:u1", Role: model.RoleUser}
	v := newVerifier(t, srv.URL, &fakePrincipals{bySubject: map[string]*model.Principal{"did:privy:u1": want}})

	p, err := v.Verify(context.Background(), signToken(t, key, "k1", "did:privy:u1", nil))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Subject != "did:privy:u1" {
		t.Fatalf("wrong principal: %+v", p)
	}
}

func TestVerifier_NoCredentials(t *testing.T) {
	t.Parallel()
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"k1": genKey(t)})
	v := newVerifier(t, srv.URL, &fakePrincipals{})

	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, errs.ErrNoCredentials) {
		t.Fatalf("want ErrNoCredentials, got %v", err)
	}
}

func TestVerifier_RejectsForeignAlgorithm(t *testing.T) {
	t.Parallel()
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"k1": genKey(t)})
	v := newVerifier(t, srv.URL, &fakePrincipals{})

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "did:privy:u1",
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := v.Verify(context.Background(), signed); !errors.Is(err, errs.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken for HS256 downgrade, got %v", err)
	}
}

func TestVerifier_ClaimMismatches(t *testing.T) {
	t.Parallel()
	key := genKey(t)
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"k1": key})
	v := newVerifier(t, srv.URL, &fakePrincipals{})

	cases := map[string]string{
		"expired": signToken(t, key, "k1", "u1", func(c *jwt.RegisteredClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		}),
		"wrong issuer": signToken(t, key, "k1", "u1", func(c *jwt.RegisteredClaims) {
			c.Issuer = "someone-else"
		}),
		"wrong audience": signToken(t, key, "k1", "u1", func(c *jwt.RegisteredClaims) {
			c.Audience = jwt.ClaimStrings{"other-app"}
		}),
		"missing subject": signToken(t, key, "k1", "", nil),
	}
	for name, raw := range cases {
		if _, err := v.Verify(context.Background(), raw); !errors.Is(err, errs.ErrInvalidToken) {
			t.Fatalf("%s: want ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestVerifier_ExpiryLeeway(t *testing.T) {
	t.Parallel()
	key := genKey(t)
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"k1": key})
	p := &model.Principal{Subject: "u1"}
	v := newVerifier(t, srv.URL, &fakePrincipals{bySubject: map[string]*model.Principal{"u1": p}})

	// Expired 2s ago: inside the 10s leeway, still accepted.
	raw := signToken(t, key, "k1", "u1", func(c *jwt.RegisteredClaims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Second))
	})
	if _, err := v.Verify(context.Background(), raw); err != nil {
		t.Fatalf("token inside leeway rejected: %v", err)
	}
}

func TestVerifier_RetiredKeyDistinctFromBadSignature(t *testing.T) {
	t.Parallel()
	current := genKey(t)
	retired := genKey(t)
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"current": current})
	v := newVerifier(t, srv.URL, &fakePrincipals{})

	// kid absent from the published set even after a refresh.
	_, err := v.Verify(context.Background(), signToken(t, retired, "retired", "u1", nil))
	if !errors.Is(err, errs.ErrUnknownKey) {
		t.Fatalf("retired kid: want ErrUnknownKey, got %v", err)
	}

	// kid resolves but the signature was produced by a different key.
	_, err = v.Verify(context.Background(), signToken(t, retired, "current", "u1", nil))
	if !errors.Is(err, errs.ErrInvalidToken) {
		t.Fatalf("bad signature: want ErrInvalidToken, got %v", err)
	}
	if errors.Is(err, errs.ErrUnknownKey) {
		t.Fatalf("bad signature must not report unknown key")
	}
}

func TestVerifier_KeySetUnavailable(t *testing.T) {
	t.Parallel()
	key := genKey(t)
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"k1": key})
	srv.Close() // endpoint down before first fetch
	v := newVerifier(t, srv.URL, &fakePrincipals{})

	_, err := v.Verify(context.Background(), signToken(t, key, "k1", "u1", nil))
	if !errors.Is(err, errs.ErrKeySetUnavailable) {
		t.Fatalf("want ErrKeySetUnavailable, got %v", err)
	}
}

func TestVerifier_PrincipalNotFound(t *testing.T) {
	t.Parallel()
	key := genKey(t)
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"k1": key})
	v := newVerifier(t, srv.URL, &fakePrincipals{bySubject: map[string]*model.Principal{}})

	_, err := v.Verify(context.Background(), signToken(t, key, "k1", "u-unregistered", nil))
	if !errors.Is(err, errs.ErrPrincipalNotFound) {
		t.Fatalf("want ErrPrincipalNotFound, got %v", err)
	}
}

func TestVerifier_TryVerify(t *testing.T) {
	t.Parallel()
	key := genKey(t)
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"k1": key})
	registered := &model.Principal{Subject: "u1"}
	v := newVerifier(t, srv.URL, &fakePrincipals{bySubject: map[string]*model.Principal{"u1": registered}})

	// Missing credentials: anonymous, no error.
	p, sub, err := v.TryVerify(context.Background(), "")
	if err != nil || p != nil || sub != "" {
		t.Fatalf("empty token: got %v %q %v", p, sub, err)
	}

	// Registered subject: principal returned.
	p, sub, err = v.TryVerify(context.Background(), signToken(t, key, "k1", "u1", nil))
	if err != nil || p == nil || sub != "u1" {
		t.Fatalf("registered: got %v %q %v", p, sub, err)
	}

	// Verified but unregistered: anonymous with subject for provisioning.
	p, sub, err = v.TryVerify(context.Background(), signToken(t, key, "k1", "u-new", nil))
	if err != nil || p != nil || sub != "u-new" {
		t.Fatalf("unregistered: got %v %q %v", p, sub, err)
	}

	// Present but invalid never degrades to anonymous.
	bad := signToken(t, key, "k1", "u1", func(c *jwt.RegisteredClaims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	})
	if _, _, err := v.TryVerify(context.Background(), bad); !errors.Is(err, errs.ErrInvalidToken) {
		t.Fatalf("invalid token: want hard failure, got %v", err)
	}
}

func TestVerifier_TryVerify_KeySetDownIsAnonymous(t *testing.T) {
	t.Parallel()
	key := genKey(t)
	srv := jwksServer(t, map[string]*ecdsa.PrivateKey{"k1": key})
	srv.Close()
	v := newVerifier(t, srv.URL, &fakePrincipals{})

	p, sub, err := v.TryVerify(context.Background(), signToken(t, key, "k1", "u1", nil))
	if err != nil || p != nil || sub != "" {
		t.Fatalf("key set down: want anonymous, got %v %q %v", p, sub, err)
	}
}
