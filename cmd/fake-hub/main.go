// ABOUTME: Minimal fake agent-hub for end-to-end testing of agency-watch
// ABOUTME: Usage: fake-hub [-addr localhost:8787] [-token secret] [-step 300ms] [-flaky 30s]
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/config"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/logging"
)

func main() {
	addr := flag.String("addr", "localhost:8787", "HTTP listen address")
	token := flag.String("token", "", "Bearer token required from clients (empty disables auth)")
	step := flag.Duration("step", 300*time.Millisecond, "Delay between scripted run events")
	flaky := flag.Duration("flaky", 0, "Drop every event stream at this interval (0 disables)")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if err := run(*addr, *token, *step, *flaky, *level); err != nil {
		log.Fatal(err)
	}
}

func run(addr, token string, step, flaky time.Duration, level string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(config.LoggingConfig{Level: level, Format: "text"}, os.Stderr)
	h := newHub(token, step, logger)

	if flaky > 0 {
		go h.dropStreamsEvery(ctx, flaky)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	color.New(color.FgCyan).Fprintf(os.Stderr, "fake-hub listening on http://%s\n", addr)
	if token != "" {
		color.New(color.FgHiBlack).Fprintln(os.Stderr, "  bearer token required")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	h.closeStreams()
	return srv.Shutdown(shutdownCtx)
}
