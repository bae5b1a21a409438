// Package cloudauth builds http.RoundTripper decorators that authenticate
// calls to a remote scoring service: static keys, OAuth2 client credentials,
// GCP application default credentials and AWS SigV4.
package cloudauth

import (
	"context"
	"fmt"
	"net/http"
)

// Kinds of authentication understood by New.
const (
	KindNone     = "none"
	KindAPIKey   = "api_key"
	KindOAuth2   = "oauth2"
	KindGCP      = "gcp"
	KindAWSSigV4 = "aws_sigv4"
)

// Config selects and parameterizes an authentication scheme.
type Config struct {
	Kind string

	// api_key
	APIKey string
	Header string // default "Authorization"
	Prefix string // default "Bearer " when Header is Authorization

	// oauth2 (client credentials) and gcp
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// aws_sigv4
	Region          string
	Service         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// New wraps base with the scheme named by cfg.Kind. An empty kind or
// "none" returns base unchanged.
func New(ctx context.Context, cfg Config, base http.RoundTripper) (http.RoundTripper, error) {
	switch cfg.Kind {
	case "", KindNone:
		return base, nil
	case KindAPIKey:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("cloudauth: api_key requires a key")
		}
		header, prefix := cfg.Header, cfg.Prefix
		if header == "" {
			header = "Authorization"
			if prefix == "" {
				prefix = "Bearer "
			}
		}
		return &HeaderTransport{Name: header, Value: prefix + cfg.APIKey, Base: base}, nil
	case KindOAuth2:
		return newClientCredentialsTransport(ctx, cfg, base)
	case KindGCP:
		return newGCPTransport(ctx, cfg, base)
	case KindAWSSigV4:
		return newAWSSigV4Transport(cfg, base)
	default:
		return nil, fmt.Errorf("cloudauth: unknown kind %q", cfg.Kind)
	}
}

// HeaderTransport sets a fixed header on every outbound request.
type HeaderTransport struct {
	Name  string
	Value string
	Base  http.RoundTripper
}

// RoundTrip clones the request and sets the header.
func (t *HeaderTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.Header.Set(t.Name, t.Value)
	return baseOrDefault(t.Base).RoundTrip(r2)
}

func baseOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt != nil {
		return rt
	}
	return http.DefaultTransport
}
