// Package authn verifies bearer tokens against a rotating remote key set and
// resolves verified subjects to principals.
package authn

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/athenax/reviewd/internal/errs"
)

// DefaultFetchTimeout bounds a single key-set fetch. No retry happens inside
// this package; retry policy, if any, belongs to the caller.
const DefaultFetchTimeout = 10 * time.Second

// jwk is a single published key. Only EC P-256 keys are usable here; the
// verifier pins ES256 and rejects everything else.
type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// KeySetClient fetches the published verification keys over HTTP.
type KeySetClient struct {
	url  string
	http *http.Client
}

// NewKeySetClient constructs a client for the given key-set endpoint.
func NewKeySetClient(url string, timeout time.Duration) *KeySetClient {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &KeySetClient{url: url, http: &http.Client{Timeout: timeout}}
}

// Fetch retrieves and parses the full key set, keyed by kid. Network or
// remote-service failure surfaces as ErrKeySetUnavailable, distinct from a
// key that is simply absent.
func (c *KeySetClient) Fetch(ctx context.Context) (map[string]crypto.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrKeySetUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrKeySetUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: key endpoint returned %d", errs.ErrKeySetUnavailable, resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", errs.ErrKeySetUnavailable, err)
	}

	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "EC" || k.Crv != "P-256" || k.Kid == "" {
			continue
		}
		pub, err := parseECKey(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func parseECKey(k jwk) (*ecdsa.PublicKey, error) {
	xb, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, err
	}
	yb, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, err
	}
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xb),
		Y:     new(big.Int).SetBytes(yb),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("point not on curve")
	}
	return pub, nil
}
