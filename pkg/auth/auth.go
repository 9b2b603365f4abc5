// Package auth builds the http client shared by the registry and the
// package API. Authentication is a bearer token taken from the
// environment; without one, requests go out anonymously, which
// registries with public read access accept.
package auth

import (
	"context"
	"net/http"
	"os"

	"golang.org/x/oauth2"
)

// TokenEnv is the environment variable holding the API bearer token.
const TokenEnv = "CLOUDSMITH_API_KEY"

// headerTransport binds a fixed set of headers to every request sent
// through it.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// Client returns the http client used for every API call. The audit
// wants the registry's current view, so shared caches are disabled on
// each request. With TokenEnv set, the token is sent as a bearer
// Authorization header.
func Client(ctx context.Context) *http.Client {
	base := &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: map[string]string{"Cache-Control": "no-cache"},
		},
	}

	token := os.Getenv(TokenEnv)
	if token == "" {
		return base
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}
