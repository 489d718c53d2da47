// Package config loads the process-wide, immutable configuration the
// proxy reads once at startup: the environment-sourced authenticator
// identifiers and the default CA bundle. Nothing here is re-read
// per-request.
package config

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/vmware-tanzu/pinniped-proxy/internal/certutil"
)

// DefaultAPISuffix is used when DEFAULT_PINNIPED_API_SUFFIX is unset.
const DefaultAPISuffix = "pinniped.dev"

// DefaultAPIServerURL is the target used when no per-request override
// header is present.
const DefaultAPIServerURL = "https://kubernetes.default"

// Config is the immutable, process-wide configuration assembled at
// startup from the environment and the CLI flags.
type Config struct {
	// Namespace is used for the namespace-scoped fallback submission.
	Namespace string
	// AuthenticatorName is spec.authenticator.name on every
	// TokenCredentialRequest this process issues.
	AuthenticatorName string
	// AuthenticatorType is spec.authenticator.kind.
	AuthenticatorType string
	// APISuffix is the concierge API group suffix (default
	// "pinniped.dev").
	APISuffix string
	// DefaultCABundle is the DER-encoded root CA certificates loaded
	// from the default CA file at startup, used whenever a request
	// does not override the target API server.
	DefaultCABundle []*x509.Certificate
	// DefaultAPIServerURL is the target used when a request carries no
	// HeaderAPIServerURL override. Set to DefaultAPIServerURL by
	// FromEnvironment; callers such as cmd/pinniped-proxy's --api-server-url
	// flag may overwrite it before the first request is served.
	DefaultAPIServerURL string
}

// FromEnvironment reads the four DEFAULT_PINNIPED_* environment variables
// documented as the wire contract. Namespace, AuthenticatorName, and
// AuthenticatorType are required; APISuffix defaults to "pinniped.dev".
func FromEnvironment() (*Config, error) {
	namespace := os.Getenv("DEFAULT_PINNIPED_NAMESPACE")
	if namespace == "" {
		return nil, fmt.Errorf("config: DEFAULT_PINNIPED_NAMESPACE must be set")
	}

	authenticatorName := os.Getenv("DEFAULT_PINNIPED_AUTHENTICATOR_NAME")
	if authenticatorName == "" {
		return nil, fmt.Errorf("config: DEFAULT_PINNIPED_AUTHENTICATOR_NAME must be set")
	}

	authenticatorType := os.Getenv("DEFAULT_PINNIPED_AUTHENTICATOR_TYPE")
	if authenticatorType == "" {
		return nil, fmt.Errorf("config: DEFAULT_PINNIPED_AUTHENTICATOR_TYPE must be set")
	}

	apiSuffix := os.Getenv("DEFAULT_PINNIPED_API_SUFFIX")
	if apiSuffix == "" {
		apiSuffix = DefaultAPISuffix
	}

	return &Config{
		Namespace:           namespace,
		AuthenticatorName:   authenticatorName,
		AuthenticatorType:   authenticatorType,
		APISuffix:           apiSuffix,
		DefaultAPIServerURL: DefaultAPIServerURL,
	}, nil
}

// LoadDefaultCABundle reads and parses the PEM file at path into the
// default CA bundle used whenever a request does not supply its own
// target/CA override headers.
func (c *Config) LoadDefaultCABundle(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading default CA file %q: %w", path, err)
	}
	certs, err := certutil.ParsePEM(raw)
	if err != nil {
		return fmt.Errorf("config: parsing default CA file %q: %w", path, err)
	}
	c.DefaultCABundle = certs
	return nil
}
