// Package upstream builds the outbound TLS client used to forward a
// proxied request to the resolved Kubernetes API server, presenting the
// assembled client identity and trusting only that request's CA bundle.
package upstream

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"

	"github.com/vmware-tanzu/pinniped-proxy/internal/certutil"
)

// NewClient builds a one-shot http.Client: its RootCAs pool contains only
// caBundle, its Certificates carries exactly identity, TLS is pinned at
// 1.2 minimum, and keep-alives are disabled so no connection is reused
// across requests bearing different identities.
func NewClient(caBundle []*x509.Certificate, identity *tls.Certificate) *http.Client {
	return &http.Client{
		Transport: NewTransport(caBundle, identity),
	}
}

// NewTransport builds the http.Transport underlying NewClient. Exposed
// separately so callers (the proxy service) can wrap it in a logging
// RoundTripper before attaching it to a Client.
func NewTransport(caBundle []*x509.Certificate, identity *tls.Certificate) *http.Transport {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    certutil.Pool(caBundle),
	}
	if identity != nil {
		tlsConfig.Certificates = []tls.Certificate{*identity}
	}
	return &http.Transport{
		TLSClientConfig:   tlsConfig,
		DisableKeepAlives: true,
	}
}
