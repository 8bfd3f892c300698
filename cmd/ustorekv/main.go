// Command ustorekv is the server binary: it opens the on-disk
// catalog, routes multi-database traffic through internal/pool, and
// serves the wire protocol from internal/ipc over a Unix domain
// socket, exposing internal/metrics on an HTTP side-channel.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/ustorekv/internal/config"
	"github.com/kartikbazzad/ustorekv/internal/ipc"
	"github.com/kartikbazzad/ustorekv/internal/logger"
	"github.com/kartikbazzad/ustorekv/internal/metrics"
	"github.com/kartikbazzad/ustorekv/internal/pool"
)

var version = "0.1.0"

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "ustorekv",
		Short: "ustorekv multi-modal embedded storage server",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a config file (optional)")

	root.AddCommand(newServeCmd(&cfgPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd(cfgPath *string) *cobra.Command {
	var (
		dataDir  string
		socket   string
		maxConns int
		debug    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the ustorekv server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if cmd.Flags().Changed("socket") {
				cfg.SocketPath = socket
			}
			if cmd.Flags().Changed("max-conns") {
				cfg.MaxConnections = maxConns
			}

			level := logger.LevelInfo
			if debug {
				level = logger.LevelDebug
			}
			log := logger.New(os.Stderr, level, "[ustorekv]")

			return run(cfg, log)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory for database files")
	cmd.Flags().StringVar(&socket, "socket", "/tmp/ustorekv.sock", "unix socket path")
	cmd.Flags().IntVar(&maxConns, "max-conns", 256, "max concurrent IPC connections")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")

	return cmd
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	p := pool.NewPool(cfg.DataDir, log)
	m := metrics.New()

	server := ipc.NewServer(cfg.SocketPath, cfg.MaxConnections, p, m, log)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting ipc server: %w", err)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			log.Info("metrics listening on %s", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	if err := server.Stop(); err != nil {
		log.Error("error during shutdown: %v", err)
	}
	time.Sleep(cfg.ShutdownGrace)
	log.Info("ustorekv stopped")
	return nil
}
