// Package identity assembles the PEM certificate chain and private key
// returned by the concierge into a client-TLS identity usable by the
// outbound connector.
package identity

import (
	"crypto/tls"
	"fmt"

	"github.com/vmware-tanzu/pinniped-proxy/internal/proxyerr"
)

// Assemble builds a tls.Certificate from a PEM-encoded certificate chain
// and a PEM-encoded private key. Any valid RSA or ECDSA key accompanied
// by a well-formed certificate succeeds; anything else is a
// malformed-credential error.
func Assemble(certPEM, keyPEM string) (*tls.Certificate, error) {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, proxyerr.New(proxyerr.KindMalformedCredential, fmt.Errorf("assembling client identity: %w", err))
	}
	return &cert, nil
}
