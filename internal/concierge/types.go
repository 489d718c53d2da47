package concierge

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// TokenCredentialRequest is the resource kind used as the RPC envelope
// for exchanging a bearer token for a short-lived client credential.
// Field shapes mirror go.pinniped.dev/generated/.../concierge/login/v1alpha1.
type TokenCredentialRequest struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   TokenCredentialRequestSpec    `json:"spec"`
	Status *TokenCredentialRequestStatus `json:"status,omitempty"`
}

// TokenCredentialRequestSpec is spec.token and spec.authenticator.
type TokenCredentialRequestSpec struct {
	// Token is the bearer token to exchange, with any "Bearer " prefix
	// already stripped.
	Token string `json:"token"`
	// Authenticator identifies which verifier the concierge should use.
	Authenticator corev1.TypedLocalObjectReference `json:"authenticator"`
}

// TokenCredentialRequestStatus is the three-way response: a credential on
// success, a message on rejection, or neither on malformed upstream
// responses.
type TokenCredentialRequestStatus struct {
	Credential *ClusterCredential `json:"credential,omitempty"`
	Message    *string            `json:"message,omitempty"`
}

// ClusterCredential is the cluster-specific credential returned on a
// successful credential request. The core only consumes the cert+key
// path; Token (a bearer-token alternative) is ignored.
type ClusterCredential struct {
	ExpirationTimestamp    metav1.Time `json:"expirationTimestamp"`
	Token                  *string     `json:"token,omitempty"`
	ClientCertificateData  string      `json:"clientCertificateData"`
	ClientKeyData          string      `json:"clientKeyData"`
}

// LoginGroupVersion builds the TokenCredentialRequest's schema.GroupVersion
// from the runtime-configured suffix, rather than duplicating a type per
// suffix generation.
func LoginGroupVersion(apiSuffix string) schema.GroupVersion {
	return schema.GroupVersion{Group: "login.concierge." + apiSuffix, Version: "v1alpha1"}
}

// GroupVersion returns the API group/version string for apiSuffix, e.g.
// "login.concierge.pinniped.dev/v1alpha1".
func GroupVersion(apiSuffix string) string {
	return LoginGroupVersion(apiSuffix).String()
}

// AuthenticatorAPIGroup returns the authenticator's api-group, e.g.
// "authentication.concierge.pinniped.dev".
func AuthenticatorAPIGroup(apiSuffix string) string {
	return "authentication.concierge." + apiSuffix
}
