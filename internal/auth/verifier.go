// Package auth provides token verification helpers.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

// Verifier validates bearer tokens and extracts tenant/role claims.
// Modes: dev (token is "tenant:role", no verification) and hmac (HS256 JWT).
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	TenantClaim string
	RoleClaim   string
}

type Principal struct {
	Tenant string
	Role   string
}

func NewVerifierFromEnv() *Verifier {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:        mode,
		HMACSecret:  []byte(os.Getenv("AUTH_HMAC_SECRET")),
		TenantClaim: envOr("AUTH_TENANT_CLAIM", "tenant"),
		RoleClaim:   envOr("AUTH_ROLE_CLAIM", "role"),
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		// token format: tenant:role
		parts := strings.Split(token, ":")
		if len(parts) >= 2 {
			return Principal{Tenant: parts[0], Role: parts[1]}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected tenant:role")
	}

	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, errors.New("invalid JWT")
	}
	signed := segs[0] + "." + segs[1]
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, errors.New("invalid JWT signature encoding")
	}
	if len(v.HMACSecret) == 0 {
		return Principal{}, errors.New("AUTH_HMAC_SECRET not configured")
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(signed))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, errors.New("JWT signature mismatch")
	}

	payload, err := base64.RawURLEncoding.DecodeString(segs[1])
	if err != nil {
		return Principal{}, errors.New("invalid JWT payload encoding")
	}
	claims := map[string]any{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Principal{}, err
	}
	p := Principal{}
	if t, ok := claims[v.TenantClaim].(string); ok {
		p.Tenant = t
	}
	if r, ok := claims[v.RoleClaim].(string); ok {
		p.Role = r
	}
	if p.Tenant == "" {
		return Principal{}, errors.New("missing tenant claim")
	}
	return p, nil
}
