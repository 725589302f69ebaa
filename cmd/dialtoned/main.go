// Command dialtoned runs the P3 server: a cobra CLI over Server with a
// serve subcommand, config loading, metrics registration and lifecycle
// logging wired up the way a standalone server binary is assembled.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	metrics "github.com/docker/go-metrics"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iconidentify/dialtone"
	"github.com/iconidentify/dialtone/config"
	"github.com/iconidentify/dialtone/events"
	"github.com/iconidentify/dialtone/fdo"
	dtmetrics "github.com/iconidentify/dialtone/metrics"
)

var configPath string

// shutdownGrace is added on top of cfg.CloseDrainTimeout so the process-
// level shutdown deadline always outlasts each connection's own CLOSING
// drain window.
const shutdownGrace = 2 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dialtoned",
	Short: "dialtoned serves the P3 client/server protocol",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the P3 server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logrus.StandardLogger()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	m := dtmetrics.New()
	dtmetrics.Register(m)

	pub := events.NewBroadcastPublisher(events.NewLoggingSink(log))
	defer pub.Close()

	registry := dialtone.NewRegistry()

	// No external FDO compiler is wired up out of the box; a deployment
	// that needs FDO compilation supplies its own fdo.Compiler here.
	var compiler fdo.Compiler = noopCompiler{}

	srv, err := dialtone.NewServer(cfg, registry, compiler, m, pub, log)
	if err != nil {
		return fmt.Errorf("dialtoned: building server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	color.Cyan("dialtoned listening on %s (metrics on %s)", cfg.ListenAddr, cfg.MetricsAddr)
	go serveMetrics(cfg.MetricsAddr, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CloseDrainTimeout+shutdownGrace)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func serveMetrics(addr string, log *logrus.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Warn("metrics server stopped")
	}
}

// noopCompiler is the default fdo.Compiler used when no deployment-supplied
// compiler is configured: it returns the source unchanged rather than
// actually compiling FDO, since FDO compilation is an external collaborator
// out of scope for this repository.
type noopCompiler struct{}

func (noopCompiler) Compile(source string) ([]byte, error) { return []byte(source), nil }

func (noopCompiler) CompileStreaming(source string, maxFragmentBytes int, sink fdo.FragmentSink) error {
	return sink([]byte(source), 0, true)
}
