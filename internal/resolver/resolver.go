// Package resolver implements the request resolver: it reads the two
// per-request override headers, defaults them against the process-wide
// configuration, validates the result, and rewrites the inbound request
// to target the resolved API server.
package resolver

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpguts"

	"github.com/vmware-tanzu/pinniped-proxy/internal/certutil"
	"github.com/vmware-tanzu/pinniped-proxy/internal/config"
	"github.com/vmware-tanzu/pinniped-proxy/internal/proxyerr"
)

// HeaderAPIServerURL overrides the default Kubernetes API server URL.
const HeaderAPIServerURL = "PINNIPED_PROXY_API_SERVER_URL"

// HeaderAPIServerCert carries the base64-encoded PEM CA bundle to trust
// for the overridden API server. Required whenever HeaderAPIServerURL is
// present.
const HeaderAPIServerCert = "PINNIPED_PROXY_API_SERVER_CERT"

// Target is the resolved per-request destination: the https URL of the
// API server, its trust anchor, and the bearer token to exchange.
type Target struct {
	URL   *url.URL
	CA    []*x509.Certificate
	Token string
}

// Resolve reads the override headers from req, defaulting to defaultCfg's
// built-in target when absent, and validates the result. It does not
// mutate req.
func Resolve(req *http.Request, defaultCfg *config.Config) (*Target, error) {
	rawURL := req.Header.Get(HeaderAPIServerURL)
	if rawURL == "" {
		defaultURL := defaultCfg.DefaultAPIServerURL
		if defaultURL == "" {
			defaultURL = config.DefaultAPIServerURL
		}
		u, err := url.Parse(defaultURL)
		if err != nil {
			// The built-in default is a compile-time constant; this
			// would indicate a programming error, not a request error.
			return nil, fmt.Errorf("resolver: invalid built-in default URL: %w", err)
		}
		return &Target{
			URL:   u,
			CA:    defaultCfg.DefaultCABundle,
			Token: bearerToken(req),
		}, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, proxyerr.Newf(proxyerr.KindMalformedRequest, "invalid %s header: %w", HeaderAPIServerURL, err)
	}
	if u.Scheme != "https" {
		return nil, proxyerr.Newf(proxyerr.KindMalformedRequest, "invalid scheme %q in %s header, https required", u.Scheme, HeaderAPIServerURL)
	}

	rawCert := req.Header.Get(HeaderAPIServerCert)
	if rawCert == "" {
		return nil, proxyerr.Newf(proxyerr.KindMalformedRequest, "%s header required when %s is set", HeaderAPIServerCert, HeaderAPIServerURL)
	}
	pemBytes, err := base64.StdEncoding.DecodeString(rawCert)
	if err != nil {
		return nil, proxyerr.Newf(proxyerr.KindMalformedRequest, "invalid base64 in %s header: %w", HeaderAPIServerCert, err)
	}
	certs, err := certutil.ParsePEM(pemBytes)
	if err != nil {
		return nil, proxyerr.Newf(proxyerr.KindMalformedRequest, "invalid PEM in %s header: %w", HeaderAPIServerCert, err)
	}

	return &Target{
		URL:   u,
		CA:    certs,
		Token: bearerToken(req),
	}, nil
}

// bearerPrefix is stripped literally and case-sensitively, matching the
// sources this behavior was distilled from.
const bearerPrefix = "Bearer "

func bearerToken(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	if len(auth) >= len(bearerPrefix) && auth[:len(bearerPrefix)] == bearerPrefix {
		return auth[len(bearerPrefix):]
	}
	return auth
}

// Rewrite replaces req's URI and Host header in place so that it targets
// target.URL, preserving the original path and query byte-for-byte. No
// other header is touched.
func Rewrite(req *http.Request, target *Target) error {
	rewritten := *target.URL
	rewritten.Path = req.URL.Path
	rewritten.RawPath = req.URL.RawPath
	rewritten.RawQuery = req.URL.RawQuery
	rewritten.Fragment = req.URL.Fragment

	if !httpguts.ValidHostHeader(rewritten.Host) {
		return proxyerr.Newf(proxyerr.KindMalformedRequest, "resolved target has an invalid host %q", rewritten.Host)
	}

	req.URL = &rewritten
	req.Host = rewritten.Host
	return nil
}
