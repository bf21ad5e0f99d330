// Package sourceauth implements the pluggable outbound authentication
// strategies of spec.md §4.4: the HTTP client asks an Authenticator
// for headers to inject into each request, mirroring the narrow
// interface the design notes (spec.md §9) call for in place of the
// origin system's runtime polymorphism.
package sourceauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
)

// Authenticator prepares per-request headers for one source. Strategies
// that cache a token (OAuth runtime, Azure AD) refresh lazily inside
// Headers, coalescing concurrent callers onto a single fetch
// (spec.md §4.4's ordering guarantee).
type Authenticator interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// None injects nothing.
type None struct{}

func (None) Headers(context.Context) (map[string]string, error) { return nil, nil }

// Basic injects Authorization: Basic base64(user:pass), with user and
// pass read from named environment variables.
type Basic struct {
	UserEnv string
	PassEnv string
}

func (b Basic) Headers(context.Context) (map[string]string, error) {
	user, err := lookupRequiredEnv(b.UserEnv)
	if err != nil {
		return nil, err
	}
	pass, err := lookupRequiredEnv(b.PassEnv)
	if err != nil {
		return nil, err
	}
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	return map[string]string{"Authorization": "Basic " + token}, nil
}

// HeaderAPIKey injects a configured header with a value read from a
// named environment variable.
type HeaderAPIKey struct {
	Header string
	ValueEnv string
}

func (h HeaderAPIKey) Headers(context.Context) (map[string]string, error) {
	val, err := lookupRequiredEnv(h.ValueEnv)
	if err != nil {
		return nil, err
	}
	return map[string]string{h.Header: val}, nil
}

// OAuthStatic injects Authorization: Bearer {env}.
type OAuthStatic struct {
	TokenEnv string
}

func (o OAuthStatic) Headers(context.Context) (map[string]string, error) {
	tok, err := lookupRequiredEnv(o.TokenEnv)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

func lookupRequiredEnv(name string) (string, error) {
	val, ok := os.LookupEnv(name)
	if !ok || val == "" {
		return "", fmt.Errorf("sourceauth: environment variable %q is not set", name)
	}
	return val, nil
}
