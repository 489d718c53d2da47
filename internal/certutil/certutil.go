// Package certutil holds the small set of X.509/PEM helpers shared by the
// request resolver and the startup configuration loader.
package certutil

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/pomerium/pomerium/pkg/cryptutil"
)

// ParsePEM decodes one or more PEM-encoded CERTIFICATE blocks into X.509
// certificates, skipping any non-certificate blocks the input might also
// contain. Each block is parsed with cryptutil.ParsePEMCertificate, the same
// helper the teacher uses for its own single-certificate PEM parsing. It
// returns an error if no certificate was found.
func ParsePEM(raw []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := raw
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := cryptutil.ParsePEMCertificate(pem.EncodeToMemory(block))
		if err != nil {
			return nil, fmt.Errorf("invalid certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found")
	}
	return certs, nil
}

// Pool builds an *x509.CertPool containing exactly the given certificates
// and no others — the outbound TLS client factory's trust store is always
// built this way, never from the system pool.
func Pool(certs []*x509.Certificate) *x509.CertPool {
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool
}
