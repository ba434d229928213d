package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KindConfig is the signing material for one token kind.
type KindConfig struct {
	Secret string
	TTL    time.Duration
}

// IssuerConfig configures the three signing contexts.
type IssuerConfig struct {
	Issuer    string
	Access    KindConfig
	TwoFactor KindConfig
	Refresh   KindConfig

	// Leeway allows small clock skew when validating exp/nbf.
	Leeway time.Duration

	// Now overrides the clock, used by tests. Defaults to time.Now.
	Now func() time.Time
}

type signingContext struct {
	secret []byte
	ttl    time.Duration
}

// Issuer mints and verifies HS256 tokens, one secret per kind.
type Issuer struct {
	issuer   string
	leeway   time.Duration
	now      func() time.Time
	contexts map[Kind]signingContext
}

// NewIssuer validates cfg and builds an Issuer. Secrets must be present and
// pairwise distinct.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	kinds := map[Kind]KindConfig{
		KindAccess:    cfg.Access,
		KindTwoFactor: cfg.TwoFactor,
		KindRefresh:   cfg.Refresh,
	}

	seen := make(map[string]Kind, len(kinds))
	contexts := make(map[Kind]signingContext, len(kinds))
	for kind, kc := range kinds {
		if kc.Secret == "" {
			return nil, fmt.Errorf("jwtx: missing %s secret", kind)
		}
		if other, dup := seen[kc.Secret]; dup {
			return nil, fmt.Errorf("jwtx: %s and %s secrets must differ", other, kind)
		}
		seen[kc.Secret] = kind

		if kc.TTL <= 0 {
			return nil, fmt.Errorf("jwtx: %s ttl must be positive", kind)
		}
		contexts[kind] = signingContext{secret: []byte(kc.Secret), ttl: kc.TTL}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Issuer{
		issuer:   cfg.Issuer,
		leeway:   cfg.Leeway,
		now:      now,
		contexts: contexts,
	}, nil
}

// TTL returns the configured lifetime for kind.
func (i *Issuer) TTL(kind Kind) time.Duration {
	return i.contexts[kind].ttl
}

// Issue signs a new token of kind for id. The returned claims carry the jti
// for refresh tokens.
func (i *Issuer) Issue(kind Kind, id Identity) (string, Claims, error) {
	sc, ok := i.contexts[kind]
	if !ok {
		return "", Claims{}, fmt.Errorf("jwtx: unknown kind %q", kind)
	}

	claims := NewClaims(kind, id, sc.ttl, i.issuer, i.now().UTC())
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["typ"] = "JWT"

	signed, err := t.SignedString(sc.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("jwtx: sign %s token: %w", kind, err)
	}
	return signed, claims, nil
}

// Verify parses tokenStr with the secret for kind. Failures are reported as
// ErrExpired or ErrInvalid only.
func (i *Issuer) Verify(kind Kind, tokenStr string) (Claims, error) {
	sc, ok := i.contexts[kind]
	if !ok {
		return Claims{}, ErrInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithLeeway(i.leeway),
		jwt.WithExpirationRequired(),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return sc.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}
	if !token.Valid {
		return Claims{}, ErrInvalid
	}

	if err := claims.ValidateKind(kind); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateIssuer(i.issuer); err != nil {
		return Claims{}, err
	}
	if claims.Subject == "" || claims.Email == "" {
		return Claims{}, ErrInvalid
	}
	if kind == KindRefresh && claims.ID == "" {
		return Claims{}, ErrInvalid
	}

	return claims, nil
}
