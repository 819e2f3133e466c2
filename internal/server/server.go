// Package server runs the web binding until the process is told to stop.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Options customise Run. The zero value listens on the server's Addr and
// stops on SIGINT or SIGTERM.
type Options struct {
	// Listener is served instead of the server's Addr when set.
	Listener net.Listener
	// Signals replaces the OS signal subscription. Closing it leaves the
	// server running until it fails on its own.
	Signals <-chan os.Signal
	// OnShutdown runs on every exit path once the server has stopped taking
	// requests. It shares the shutdown deadline.
	OnShutdown func(ctx context.Context) error
}

// Run serves srv until a stop signal arrives or serving fails, then drains
// in-flight requests and runs opts.OnShutdown.
func Run(srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, opts Options) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- serve(srv, opts.Listener)
	}()

	signals := opts.Signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	var (
		err      error
		draining bool
	)
	select {
	case err = <-serveErr:
	case sig, ok := <-signals:
		if ok {
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			draining = true
		} else {
			err = <-serveErr
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if draining {
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) {
			logger.Error("graceful shutdown failed", zap.Error(shutdownErr))
			err = shutdownErr
		} else {
			err = <-serveErr
		}
	}

	if opts.OnShutdown != nil {
		if hookErr := opts.OnShutdown(ctx); hookErr != nil {
			logger.Warn("shutdown hook failed", zap.Error(hookErr))
			err = errors.Join(err, hookErr)
		}
	}
	return err
}

func serve(srv *http.Server, listener net.Listener) error {
	var err error
	if listener != nil {
		err = srv.Serve(listener)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
