// Package concierge adapts the per-request bearer token into a
// TokenCredentialRequest submitted to the concierge API: cluster-scoped
// first, namespace-scoped as a fallback on NotFound, interpreting the
// three-way response.
package concierge

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/vmware-tanzu/pinniped-proxy/internal/certutil"
	"github.com/vmware-tanzu/pinniped-proxy/internal/proxyerr"
)

// Request is everything the adapter needs to perform one exchange.
type Request struct {
	// APIServerURL is the https base URL of the target Kubernetes API
	// server (also the concierge's aggregated API).
	APIServerURL string
	// CABundle trusts the target API server's TLS certificate.
	CABundle []*x509.Certificate
	// Token is the bearer token, already stripped of any "Bearer "
	// prefix.
	Token string
	// Namespace is used for the namespace-scoped fallback submission.
	Namespace string
	// AuthenticatorName/AuthenticatorType/APISuffix configure
	// spec.authenticator and the resource's API group.
	AuthenticatorName string
	AuthenticatorType string
	APISuffix         string
}

// Client submits TokenCredentialRequests to a concierge API.
type Client struct {
	// newHTTPClient builds the per-exchange http.Client trusting only
	// req.CABundle. Overridable in tests.
	newHTTPClient func(caBundle []*x509.Certificate) *http.Client
}

// New creates a Client that dials with a fresh, CA-pinned http.Client per
// exchange, matching the outbound TLS client factory's "no pooling, one
// trust anchor" contract.
func New() *Client {
	return &Client{newHTTPClient: defaultHTTPClient}
}

func defaultHTTPClient(caBundle []*x509.Certificate) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
				RootCAs:    certutil.Pool(caBundle),
			},
		},
	}
}

// Exchange performs the cluster-scoped POST, falling back to the
// namespace-scoped endpoint on a NotFound response, and interprets the
// result per the response-shape table.
func (c *Client) Exchange(ctx context.Context, req Request) (*ClusterCredential, error) {
	body := buildRequest(req)
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, proxyerr.New(proxyerr.KindUpstreamExchangeFailed, fmt.Errorf("marshaling token credential request: %w", err))
	}

	httpClient := c.newHTTPClient(req.CABundle)

	resp, err := c.post(ctx, httpClient, clusterScopedURL(req.APIServerURL, req.APISuffix), raw)
	if err != nil {
		if isNotFound(err) {
			resp, err = c.post(ctx, httpClient, namespaceScopedURL(req.APIServerURL, req.APISuffix, req.Namespace), raw)
		}
		if err != nil {
			return nil, proxyerr.New(proxyerr.KindUpstreamExchangeFailed, fmt.Errorf("exchanging token credential (request body: %s): %w", raw, err))
		}
	}

	return interpretResponse(resp)
}

func buildRequest(req Request) *TokenCredentialRequest {
	apiGroup := AuthenticatorAPIGroup(req.APISuffix)
	return &TokenCredentialRequest{
		TypeMeta: metav1.TypeMeta{
			Kind:       "TokenCredentialRequest",
			APIVersion: GroupVersion(req.APISuffix),
		},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: req.Namespace,
		},
		Spec: TokenCredentialRequestSpec{
			Token: req.Token,
			Authenticator: corev1.TypedLocalObjectReference{
				APIGroup: &apiGroup,
				Kind:     req.AuthenticatorType,
				Name:     req.AuthenticatorName,
			},
		},
	}
}

func clusterScopedURL(apiServerURL, apiSuffix string) string {
	return fmt.Sprintf("%s/apis/%s/tokencredentialrequests", apiServerURL, GroupVersion(apiSuffix))
}

func namespaceScopedURL(apiServerURL, apiSuffix, namespace string) string {
	return fmt.Sprintf("%s/apis/%s/namespaces/%s/tokencredentialrequests", apiServerURL, GroupVersion(apiSuffix), namespace)
}

// post submits raw to url and returns the decoded TokenCredentialRequest
// on success. A non-2xx response is decoded as a metav1.Status and
// returned as a *apierrors.StatusError so callers can test IsNotFound.
func (c *Client) post(ctx context.Context, httpClient *http.Client, url string, raw []byte) (*TokenCredentialRequest, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("posting to %s: %w", url, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, statusError(httpResp.StatusCode, respBody)
	}

	var out TokenCredentialRequest
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return &out, nil
}

func statusError(httpStatusCode int, body []byte) error {
	var status metav1.Status
	if err := json.Unmarshal(body, &status); err != nil || status.Status == "" {
		return fmt.Errorf("concierge returned HTTP %d: %s", httpStatusCode, body)
	}
	if status.Code == 0 {
		status.Code = int32(httpStatusCode)
	}
	return apierrors.FromObject(&status)
}

func isNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// interpretResponse applies the three-way response-shape table: credential
// present means success, message-without-credential means auth rejection,
// and anything else (no status, or status with neither) is malformed.
func interpretResponse(resp *TokenCredentialRequest) (*ClusterCredential, error) {
	if resp.Status == nil {
		return nil, proxyerr.Newf(proxyerr.KindMalformedUpstream, "concierge response did not include a status")
	}
	if resp.Status.Credential != nil {
		return resp.Status.Credential, nil
	}
	if resp.Status.Message != nil {
		return nil, proxyerr.Newf(proxyerr.KindAuthRejected, "%s", *resp.Status.Message)
	}
	return nil, proxyerr.Newf(proxyerr.KindMalformedUpstream, "concierge response status had neither a credential nor a message")
}
