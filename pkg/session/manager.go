package session

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// GrantSnapshot is the grant state baked into a token at issuance
type GrantSnapshot struct {
	Permissions  []string
	Capabilities []string
	Roles        []string
	Level        int
	Superuser    bool
	ResolvedAt   time.Time
}

// GrantSource supplies the current grant snapshot for a user. Implemented
// by the access resolution engine; defined here so this package does not
// depend on it.
type GrantSource interface {
	Snapshot(ctx context.Context, userID int64) (*GrantSnapshot, error)
}

// Manager issues and validates session tokens
type Manager struct {
	signingKey jwk.Key
	issuer     string
	expiry     time.Duration
	window     time.Duration
	grants     GrantSource
}

// NewManager creates a session manager signing with HS256
func NewManager(signingKey []byte, issuer string, expiry, propagationWindow time.Duration, grants GrantSource) (*Manager, error) {
	key, err := jwk.FromRaw(signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signing key: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	return &Manager{
		signingKey: key,
		issuer:     issuer,
		expiry:     expiry,
		window:     propagationWindow,
		grants:     grants,
	}, nil
}

// PropagationWindow returns the configured grant staleness bound
func (m *Manager) PropagationWindow() time.Duration {
	return m.window
}

// Issue builds and signs a token with the user's current grants baked in
func (m *Manager) Issue(ctx context.Context, userID int64, username, email string) (string, *Claims, error) {
	snapshot, err := m.grants.Snapshot(ctx, userID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to snapshot grants: %w", err)
	}

	now := time.Now()
	claims := &Claims{
		UserID:       userID,
		Username:     username,
		Email:        email,
		Permissions:  snapshot.Permissions,
		Capabilities: snapshot.Capabilities,
		Roles:        snapshot.Roles,
		Level:        snapshot.Level,
		Superuser:    snapshot.Superuser,
		ResolvedAt:   snapshot.ResolvedAt,
		IssuedAt:     now,
		ExpiresAt:    now.Add(m.expiry),
	}

	token, err := jwt.NewBuilder().
		Issuer(m.issuer).
		Subject(fmt.Sprintf("%d", userID)).
		IssuedAt(now).
		Expiration(claims.ExpiresAt).
		Claim("user_id", userID).
		Claim("username", username).
		Claim("email", email).
		Claim("permissions", snapshot.Permissions).
		Claim("capabilities", snapshot.Capabilities).
		Claim("roles", snapshot.Roles).
		Claim("level", snapshot.Level).
		Claim("superuser", snapshot.Superuser).
		Claim("resolved_at", snapshot.ResolvedAt.Unix()).
		Build()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, m.signingKey))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), claims, nil
}

// Reissue produces a fresh token for an existing session, re-baking the
// user's current grants. Called by the auth middleware when a token's
// grants age past the propagation window.
func (m *Manager) Reissue(ctx context.Context, claims *Claims) (string, *Claims, error) {
	return m.Issue(ctx, claims.UserID, claims.Username, claims.Email)
}

// Validate parses and verifies a token, returning its claims
func (m *Manager) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.HS256, m.signingKey),
		jwt.WithIssuer(m.issuer),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims := &Claims{
		IssuedAt:  parsed.IssuedAt(),
		ExpiresAt: parsed.Expiration(),
	}

	if v, ok := parsed.Get("user_id"); ok {
		claims.UserID = toInt64(v)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("token missing user_id claim")
	}
	if v, ok := parsed.Get("username"); ok {
		claims.Username, _ = v.(string)
	}
	if v, ok := parsed.Get("email"); ok {
		claims.Email, _ = v.(string)
	}
	if v, ok := parsed.Get("permissions"); ok {
		claims.Permissions = toStringSlice(v)
	}
	if v, ok := parsed.Get("capabilities"); ok {
		claims.Capabilities = toStringSlice(v)
	}
	if v, ok := parsed.Get("roles"); ok {
		claims.Roles = toStringSlice(v)
	}
	if v, ok := parsed.Get("level"); ok {
		claims.Level = int(toInt64(v))
	}
	if v, ok := parsed.Get("superuser"); ok {
		claims.Superuser, _ = v.(bool)
	}
	if v, ok := parsed.Get("resolved_at"); ok {
		claims.ResolvedAt = time.Unix(toInt64(v), 0)
	}

	return claims, nil
}

// toInt64 converts the numeric representations the JWT library may hand
// back after a decode round trip.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// toStringSlice converts a decoded JSON array claim to []string
func toStringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
