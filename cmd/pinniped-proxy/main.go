// Package main implements the pinniped-proxy binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vmware-tanzu/pinniped-proxy/version"
)

var rootCmd = &cobra.Command{
	Use:     "pinniped-proxy",
	Short:   "authenticating reverse proxy bridging bearer tokens to the Kubernetes API's mTLS",
	Version: version.FullVersion(),
	RunE:    runServe,
}

func main() {
	setupLogger()

	if err := rootCmd.ExecuteContext(signalContext()); err != nil {
		log.Error().Err(err).Msg("exit")
		os.Exit(1)
	}
}

func signalContext() context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigs
		log.Error().Str("signal", sig.String()).Msg("caught signal, shutting down")
		cancel()
		time.Sleep(2 * time.Second)
		log.Error().Msg("did not shut down gracefully, exit")
		os.Exit(1)
	}()
	return ctx
}

func setupLogger() {
	log.Logger = log.Level(zerolog.InfoLevel)
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if lvl, err := zerolog.ParseLevel(raw); err == nil {
			log.Logger = log.Logger.Level(lvl)
		}
	}
	zerolog.DefaultContextLogger = &log.Logger
}
