// Package jwt authenticates bearer tokens carrying a signed JWT.
//
// Tokens are verified either with RSA keys fetched from a JWKS endpoint
// or with a shared HMAC secret. Issuer and audience are checked when
// configured. The subject and scopes come from configurable claims.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/auth"
	"github.com/rhuss/ember/pkg/debug"
)

// Config holds the JWT authenticator configuration. At least one of
// JWKSURL and Secret must be set.
type Config struct {
	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// JWKSURL is where RSA verification keys are fetched from.
	JWKSURL string

	// Secret verifies HS256/384/512 tokens.
	Secret []byte

	// UserClaim names the claim used as subject. Default: "sub".
	UserClaim string

	// ScopesClaim names the claim holding scopes, either a space-separated
	// string or an array. Default: "scope".
	ScopesClaim string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient fetches the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

var errNoKey = errors.New("no verification key configured for signing method")

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config  Config
	keys    *keyCache
	methods []string
}

// New creates a JWT authenticator.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	a := &Authenticator{config: cfg}
	if cfg.JWKSURL != "" {
		a.keys = newKeyCache(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL)
		a.methods = append(a.methods, "RS256", "RS384", "RS512")
	}
	if len(cfg.Secret) > 0 {
		a.methods = append(a.methods, "HS256", "HS384", "HS512")
	}
	return a
}

// Authenticate abstains without a bearer token, says No for any token
// that fails verification and Yes with the extracted identity otherwise.
func (a *Authenticator) Authenticate(ctx context.Context, req *api.Request) auth.Result {
	tokenStr, ok := auth.BearerToken(req)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if tokenStr == "" {
		return auth.Result{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(tokenStr, claims, func(token *jwtlib.Token) (any, error) {
		return a.verificationKey(ctx, token)
	}, a.parserOptions()...)
	if err != nil {
		debug.Log("auth", "JWT validation failed", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject, _ := claims[a.config.UserClaim].(string)
	if subject == "" {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("JWT missing %q claim", a.config.UserClaim)}
	}

	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:  subject,
			Scopes:   scopes(claims[a.config.ScopesClaim]),
			Metadata: map[string]string{"auth": "jwt"},
		},
	}
}

func (a *Authenticator) verificationKey(ctx context.Context, token *jwtlib.Token) (any, error) {
	switch token.Method.(type) {
	case *jwtlib.SigningMethodHMAC:
		if len(a.config.Secret) == 0 {
			return nil, errNoKey
		}
		return a.config.Secret, nil
	case *jwtlib.SigningMethodRSA:
		if a.keys == nil {
			return nil, errNoKey
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return a.keys.get(ctx, kid)
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods(a.methods)}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.config.Audience))
	}
	return opts
}

// scopes accepts "read write" as well as ["read", "write"].
func scopes(v any) []string {
	var out []string
	switch v := v.(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
