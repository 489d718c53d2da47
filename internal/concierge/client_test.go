package concierge

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware-tanzu/pinniped-proxy/internal/proxyerr"
)

// insecureTestClient builds a Client whose per-exchange http.Client trusts
// any server certificate, since httptest.NewTLSServer's certificate is
// unrelated to the CA bundle under test.
func insecureTestClient() *Client {
	return &Client{
		newHTTPClient: func([]*x509.Certificate) *http.Client {
			return &http.Client{
				Transport: &http.Transport{
					TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
				},
			}
		},
	}
}

func baseRequest(apiServerURL string) Request {
	return Request{
		APIServerURL:      apiServerURL,
		Token:             "abc",
		Namespace:         "pinniped-concierge",
		AuthenticatorName: "my-authenticator",
		AuthenticatorType: "WebhookAuthenticator",
		APISuffix:         "pinniped.dev",
	}
}

func TestExchangeSuccessClusterScoped(t *testing.T) {
	expires := metav1.NewTime(time.Now().Add(time.Hour))
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/apis/login.concierge.pinniped.dev/v1alpha1/tokencredentialrequests", r.URL.Path)

		var body TokenCredentialRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc", body.Spec.Token)
		assert.Equal(t, "my-authenticator", body.Spec.Authenticator.Name)

		resp := TokenCredentialRequest{
			Status: &TokenCredentialRequestStatus{
				Credential: &ClusterCredential{
					ExpirationTimestamp:   expires,
					ClientCertificateData: "CERT",
					ClientKeyData:         "KEY",
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)

	c := insecureTestClient()
	cred, err := c.Exchange(context.Background(), baseRequest(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "CERT", cred.ClientCertificateData)
	assert.Equal(t, "KEY", cred.ClientKeyData)
}

func TestExchangeFallsBackToNamespaceScopedOnNotFound(t *testing.T) {
	var clusterScopedCalls, namespacedCalls int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/apis/login.concierge.pinniped.dev/v1alpha1/tokencredentialrequests":
			clusterScopedCalls++
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(metav1.Status{
				Status:  metav1.StatusFailure,
				Reason:  metav1.StatusReasonNotFound,
				Code:    http.StatusNotFound,
				Message: "the server could not find the requested resource",
			})
		case "/apis/login.concierge.pinniped.dev/v1alpha1/namespaces/pinniped-concierge/tokencredentialrequests":
			namespacedCalls++
			resp := TokenCredentialRequest{
				Status: &TokenCredentialRequestStatus{
					Credential: &ClusterCredential{
						ExpirationTimestamp:   metav1.NewTime(time.Now().Add(time.Hour)),
						ClientCertificateData: "CERT",
						ClientKeyData:         "KEY",
					},
				},
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	c := insecureTestClient()
	cred, err := c.Exchange(context.Background(), baseRequest(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "CERT", cred.ClientCertificateData)
	assert.Equal(t, 1, clusterScopedCalls)
	assert.Equal(t, 1, namespacedCalls)
}

func TestExchangeAuthRejected(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		msg := "invalid token"
		resp := TokenCredentialRequest{
			Status: &TokenCredentialRequestStatus{Message: &msg},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	c := insecureTestClient()
	_, err := c.Exchange(context.Background(), baseRequest(srv.URL))
	require.Error(t, err)
	pe, ok := proxyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, proxyerr.KindAuthRejected, pe.Kind)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestExchangeMalformedUpstreamNoStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TokenCredentialRequest{})
	}))
	t.Cleanup(srv.Close)

	c := insecureTestClient()
	_, err := c.Exchange(context.Background(), baseRequest(srv.URL))
	require.Error(t, err)
	pe, ok := proxyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, proxyerr.KindMalformedUpstream, pe.Kind)
}

func TestExchangeMalformedUpstreamNeitherCredentialNorMessage(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := TokenCredentialRequest{Status: &TokenCredentialRequestStatus{}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	c := insecureTestClient()
	_, err := c.Exchange(context.Background(), baseRequest(srv.URL))
	require.Error(t, err)
	pe, ok := proxyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, proxyerr.KindMalformedUpstream, pe.Kind)
}

func TestExchangeUpstreamTransportFailure(t *testing.T) {
	c := insecureTestClient()
	_, err := c.Exchange(context.Background(), baseRequest("https://127.0.0.1:1"))
	require.Error(t, err)
	pe, ok := proxyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, proxyerr.KindUpstreamExchangeFailed, pe.Kind)
}
