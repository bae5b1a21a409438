package cloudauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/google"
)

// BearerTransport injects a bearer token from an oauth2.TokenSource.
// Tokens are cached and refreshed by the source.
type BearerTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

// NewBearerTransport wraps ts in a reusing token source.
func NewBearerTransport(base http.RoundTripper, ts oauth2.TokenSource) *BearerTransport {
	return &BearerTransport{base: base, source: oauth2.ReuseTokenSource(nil, ts)}
}

// RoundTrip obtains a token and sets the Authorization header.
func (t *BearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("cloudauth: obtain token: %w", err)
	}
	r2 := r.Clone(r.Context())
	tok.SetAuthHeader(r2)
	return baseOrDefault(t.base).RoundTrip(r2)
}

func newClientCredentialsTransport(ctx context.Context, cfg Config, base http.RoundTripper) (*BearerTransport, error) {
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("cloudauth: oauth2 requires token_url and client_id")
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	// The token endpoint is reached with the default client, not base, so
	// token fetches are not themselves authenticated.
	return NewBearerTransport(base, cc.TokenSource(context.WithoutCancel(ctx))), nil
}

func newGCPTransport(ctx context.Context, cfg Config, base http.RoundTripper) (*BearerTransport, error) {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"https://www.googleapis.com/auth/cloud-platform"}
	}
	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("cloudauth: find GCP credentials: %w", err)
	}
	return NewBearerTransport(base, creds.TokenSource), nil
}
