// Package proxyservice orchestrates one inbound request through the
// resolver, credential cache, concierge adapter, identity assembler, and
// outbound TLS client factory, writing exactly one response and one
// access-log line per request.
package proxyservice

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vmware-tanzu/pinniped-proxy/internal/accesslog"
	"github.com/vmware-tanzu/pinniped-proxy/internal/concierge"
	"github.com/vmware-tanzu/pinniped-proxy/internal/config"
	"github.com/vmware-tanzu/pinniped-proxy/internal/credentialcache"
	"github.com/vmware-tanzu/pinniped-proxy/internal/httputil"
	"github.com/vmware-tanzu/pinniped-proxy/internal/identity"
	"github.com/vmware-tanzu/pinniped-proxy/internal/proxyerr"
	"github.com/vmware-tanzu/pinniped-proxy/internal/resolver"
	"github.com/vmware-tanzu/pinniped-proxy/internal/upstream"
)

// exchanger is the subset of *concierge.Client the service depends on,
// so tests can substitute a double without a live concierge.
type exchanger interface {
	Exchange(ctx context.Context, req concierge.Request) (*concierge.ClusterCredential, error)
}

// Service is the http.Handler implementing the proxy's state machine. It
// holds the one shared mutable value in the process: the credential
// cache, passed in once by main and never handed out again.
type Service struct {
	Config    *config.Config
	Cache     *credentialcache.Cache
	Concierge exchanger
	Logger    zerolog.Logger
}

// New builds a Service backed by a real concierge.Client.
func New(cfg *config.Config, cache *credentialcache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		Config:    cfg,
		Cache:     cache,
		Concierge: concierge.New(),
		Logger:    logger,
	}
}

// websocketRejectionBody is the fixed body returned whenever the target
// API server answers with 101 Switching Protocols.
const websocketRejectionBody = "pinniped-proxy does not support websockets yet"

var errUpgradeUnsupported = errors.New(websocketRejectionBody)

// ServeHTTP implements the resolver -> cache -> concierge -> identity ->
// upstream pipeline. A non-nil *proxyerr.Error short-circuits straight to
// a status response with no body written beforehand.
func (s *Service) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	requestID := uuid.New()

	target, err := resolver.Resolve(req, s.Config)
	if err != nil {
		s.fail(w, req, start, requestID, "", err)
		return
	}

	fp := credentialcache.NewFingerprint(
		target.Token,
		concierge.AuthenticatorAPIGroup(s.Config.APISuffix),
		s.Config.AuthenticatorType,
		s.Config.AuthenticatorName,
	)

	cred, err := s.Cache.GetOrExchange(req.Context(), fp, func(ctx context.Context) (*concierge.ClusterCredential, error) {
		return s.Concierge.Exchange(ctx, concierge.Request{
			APIServerURL:      target.URL.String(),
			CABundle:          target.CA,
			Token:             target.Token,
			Namespace:         s.Config.Namespace,
			AuthenticatorName: s.Config.AuthenticatorName,
			AuthenticatorType: s.Config.AuthenticatorType,
			APISuffix:         s.Config.APISuffix,
		})
	})
	if err != nil {
		s.fail(w, req, start, requestID, "", err)
		return
	}

	clientIdentity, err := identity.Assemble(cred.ClientCertificateData, cred.ClientKeyData)
	if err != nil {
		s.fail(w, req, start, requestID, "", err)
		return
	}

	if err := resolver.Rewrite(req, target); err != nil {
		s.fail(w, req, start, requestID, "", err)
		return
	}

	transport := httputil.NewLoggingRoundTripper(s.Logger, upstream.NewTransport(target.CA, clientIdentity))
	resp, err := transport.RoundTrip(req)
	if err != nil {
		s.fail(w, req, start, requestID, target.URL.Host, proxyerr.New(proxyerr.KindTransportFailed, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusSwitchingProtocols {
		s.fail(w, req, start, requestID, target.URL.Host, proxyerr.New(proxyerr.KindUnsupportedUpgrade, errUpgradeUnsupported))
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)

	accesslog.Log(s.Logger, accesslog.Entry{
		RequestID:  requestID,
		Method:     req.Method,
		Path:       req.URL.Path,
		Target:     target.URL.Host,
		Started:    start,
		StatusCode: resp.StatusCode,
	})
}

// fail writes err's mapped status and message as the entire response
// body, then logs the terminal edge. target is the resolved upstream
// host if one was reached, or "" if the request never got that far.
func (s *Service) fail(w http.ResponseWriter, req *http.Request, start time.Time, requestID uuid.UUID, target string, err error) {
	status := http.StatusInternalServerError
	body := err.Error()
	if pe, ok := proxyerr.As(err); ok {
		status = pe.StatusCode()
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)

	accesslog.Log(s.Logger, accesslog.Entry{
		RequestID:  requestID,
		Method:     req.Method,
		Path:       req.URL.Path,
		Target:     target,
		Started:    start,
		StatusCode: status,
		Err:        err,
	})
}
