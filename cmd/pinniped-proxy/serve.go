package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vmware-tanzu/pinniped-proxy/internal/config"
	"github.com/vmware-tanzu/pinniped-proxy/internal/credentialcache"
	"github.com/vmware-tanzu/pinniped-proxy/internal/proxyservice"
)

var serveOptions struct {
	listenAddr    string
	tlsCertFile   string
	tlsKeyFile    string
	defaultCAFile string
	apiServerURL  string
	cacheCapacity int
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&serveOptions.listenAddr, "listen-addr", envOrDefault("PINNIPED_PROXY_LISTEN_ADDR", ":3333"),
		"address the proxy listens on")
	flags.StringVar(&serveOptions.tlsCertFile, "tls-cert-file", os.Getenv("PINNIPED_PROXY_TLS_CERT_FILE"),
		"PEM certificate file for the inbound TLS listener (optional; plain HTTP if unset)")
	flags.StringVar(&serveOptions.tlsKeyFile, "tls-key-file", os.Getenv("PINNIPED_PROXY_TLS_KEY_FILE"),
		"PEM private key file for the inbound TLS listener")
	flags.StringVar(&serveOptions.defaultCAFile, "default-ca-file", os.Getenv("PINNIPED_PROXY_DEFAULT_CA_FILE"),
		"PEM CA bundle trusted for the built-in default API server target")
	flags.StringVarP(&serveOptions.apiServerURL, "api-server-url", "s",
		envOrDefault("PINNIPED_PROXY_API_SERVER_URL", config.DefaultAPIServerURL),
		"default Kubernetes API server URL used when a request carries no override header")
	flags.IntVar(&serveOptions.cacheCapacity, "cache-capacity", credentialcache.DefaultCapacity,
		"maximum number of cached credential exchanges")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromEnvironment()
	if err != nil {
		return err
	}

	if serveOptions.defaultCAFile != "" {
		if err := cfg.LoadDefaultCABundle(serveOptions.defaultCAFile); err != nil {
			return err
		}
	}

	if serveOptions.apiServerURL != "" {
		cfg.DefaultAPIServerURL = serveOptions.apiServerURL
	}

	if (serveOptions.tlsCertFile == "") != (serveOptions.tlsKeyFile == "") {
		return errors.New("serve: both --tls-cert-file and --tls-key-file must be set, or neither")
	}

	cache := credentialcache.New(serveOptions.cacheCapacity)
	svc := proxyservice.New(cfg, cache, log.Logger)

	server := &http.Server{
		Addr:    serveOptions.listenAddr,
		Handler: svc,
	}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return listenAndServe(ctx, server)
}

// listenAndServe binds server.Addr with an exponential-backoff bind
// retry loop, the same shape as the teacher's tunnel listener, and serves
// TLS when both a cert and key file are configured.
func listenAndServe(ctx context.Context, server *http.Server) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	var listener net.Listener
	for {
		li, err := net.Listen("tcp", server.Addr)
		if err == nil {
			listener = li
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error().Err(err).Msg("failed to bind listener, retrying")
		select {
		case <-time.After(bo.NextBackOff()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Info().Str("addr", listener.Addr().String()).Msg("listening")

	var err error
	if serveOptions.tlsCertFile != "" {
		err = server.ServeTLS(listener, serveOptions.tlsCertFile, serveOptions.tlsKeyFile)
	} else {
		err = server.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
