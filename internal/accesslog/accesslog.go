// Package accesslog emits the one structured log line per terminal proxy
// edge that the proxy service is required to produce, in the same
// zerolog event-building style as internal/httputil's logging round
// tripper.
package accesslog

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vmware-tanzu/pinniped-proxy/internal/proxyerr"
)

// Entry describes one terminal edge of a proxied request: either it was
// forwarded upstream (Err is nil) or it was rejected/failed locally
// (Err carries the typed cause).
type Entry struct {
	RequestID uuid.UUID
	Method    string
	Path      string
	Target    string
	Started   time.Time
	// StatusCode is the status written to the client. For successful
	// forwards this is the upstream response's status; for local
	// rejections it is the proxyerr.Kind's StatusCode().
	StatusCode int
	Err        error
}

// Log writes one event for e at the appropriate level: error-level with
// the full cause chain on failure, info-level otherwise.
func Log(logger zerolog.Logger, e Entry) {
	evt := logger.Info()
	if e.Err != nil {
		evt = logger.Error().Err(e.Err)
		if pe, ok := proxyerr.As(e.Err); ok {
			evt = evt.Str("error-kind", pe.Kind.String())
		}
	}

	evt.
		Str("request-id", e.RequestID.String()).
		Str("method", e.Method).
		Str("path", e.Path).
		Str("target", e.Target).
		Int("status", e.StatusCode).
		Dur("duration", time.Since(e.Started)).
		Msg("proxy-request")
}
