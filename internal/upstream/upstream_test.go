package upstream

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware-tanzu/pinniped-proxy/internal/certutil"
	"github.com/vmware-tanzu/pinniped-proxy/internal/identity"
	"github.com/vmware-tanzu/pinniped-proxy/internal/testutil"
)

func TestNewTransportPinsExactCABundle(t *testing.T) {
	certPEM, _ := testutil.GenerateSelfSigned(t, time.Now().Add(time.Hour))
	certs, err := certutil.ParsePEM(certPEM)
	require.NoError(t, err)

	tr := NewTransport(certs, nil)
	require.NotNil(t, tr.TLSClientConfig.RootCAs)
	assert.True(t, tr.TLSClientConfig.RootCAs.Equal(certutil.Pool(certs)))
	assert.Equal(t, uint16(0x0303), tr.TLSClientConfig.MinVersion) // TLS 1.2
}

func TestNewTransportDisablesKeepAlives(t *testing.T) {
	tr := NewTransport(nil, nil)
	assert.True(t, tr.DisableKeepAlives)
}

func TestNewTransportCarriesIdentity(t *testing.T) {
	certPEM, keyPEM := testutil.GenerateSelfSigned(t, time.Now().Add(time.Hour))
	cert, err := identity.Assemble(string(certPEM), string(keyPEM))
	require.NoError(t, err)

	tr := NewTransport(nil, cert)
	require.Len(t, tr.TLSClientConfig.Certificates, 1)
}

func TestNewClientUsesTransport(t *testing.T) {
	client := NewClient(nil, nil)
	_, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
}
