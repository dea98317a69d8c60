package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/coreos/go-oidc"

	"jt-wrs/backend/internal/config"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type contextKey struct{}

// Principal identifies the caller of a guarded request.
type Principal struct {
	Subject string
	Email   string
	Scopes  []string
}

// FromContext returns the principal stored by RequireAuth or WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Auth verifies bearer access tokens issued by an OpenID Connect provider.
// A disabled Auth lets every request through.
type Auth struct {
	apiVerifier *oidc.IDTokenVerifier
	logger      Logger
	enabled     bool
}

// New creates a new Auth object using values from the application
// configuration. When auth is enabled it contacts the issuer to fetch the
// provider metadata and signing keys.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	if !cfg.Auth.Enable {
		return &Auth{logger: logger}, nil
	}
	if cfg.Auth.Issuer == "" {
		return nil, errors.New("auth configuration is incomplete")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}

	// Access tokens often carry an API audience rather than a client id.
	verifier := provider.Verifier(&oidc.Config{
		ClientID:          cfg.Auth.Audience,
		SkipClientIDCheck: cfg.Auth.Audience == "",
	})

	return &Auth{apiVerifier: verifier, logger: logger, enabled: true}, nil
}

// Enabled reports whether requests are verified.
func (a *Auth) Enabled() bool {
	return a.enabled
}

type tokenClaims struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email"`
	Scope   string   `json:"scope"`
	Scp     []string `json:"scp"`
}

func (c tokenClaims) scopes() []string {
	if len(c.Scp) > 0 {
		return c.Scp
	}
	return strings.Fields(c.Scope)
}

// Write authorization failures.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingScope = errors.New("token lacks scope " + ScopeWorkflowWrite)
)

type failureKey struct{}

// verify checks the bearer token of r and requires the workflow write scope.
func (a *Auth) verify(r *http.Request) (Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Principal{}, ErrMissingToken
	}

	token, err := a.apiVerifier.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		if a.logger != nil {
			a.logger.Debug("rejected bearer token", "error", err)
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims tokenClaims
	if err := token.Claims(&claims); err != nil {
		return Principal{}, fmt.Errorf("%w: failed to parse token claims", ErrInvalidToken)
	}
	scopes := claims.scopes()
	if !slices.Contains(scopes, ScopeWorkflowWrite) {
		return Principal{}, ErrMissingScope
	}
	return Principal{Subject: claims.Subject, Email: claims.Email, Scopes: scopes}, nil
}

// RequireAuth is middleware that requires a valid bearer token carrying the
// workflow write scope. The verified principal is stored in the request
// context.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.verify(r)
		switch {
		case errors.Is(err, ErrMissingToken):
			w.Header().Set("WWW-Authenticate", `Bearer realm="jt-wrs"`)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		case errors.Is(err, ErrMissingScope):
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		if a.logger != nil {
			a.logger.Debug("authorized write", "subject", principal.Subject, "path", r.URL.Path)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, principal)))
	})
}

// WithPrincipal attaches the outcome of verifying r to ctx without rejecting
// anything, for transports that mix reads and writes on one endpoint.
// CheckWrite then decides per operation.
func (a *Auth) WithPrincipal(ctx context.Context, r *http.Request) context.Context {
	if !a.enabled {
		return ctx
	}
	principal, err := a.verify(r)
	if err != nil {
		return context.WithValue(ctx, failureKey{}, err)
	}
	return context.WithValue(ctx, contextKey{}, principal)
}

// CheckWrite returns nil when ctx carries a principal allowed to write, or
// when auth is disabled.
func (a *Auth) CheckWrite(ctx context.Context) error {
	if !a.enabled {
		return nil
	}
	if _, ok := FromContext(ctx); ok {
		return nil
	}
	if err, ok := ctx.Value(failureKey{}).(error); ok {
		return err
	}
	return ErrMissingToken
}
